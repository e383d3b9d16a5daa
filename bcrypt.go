package flows

import (
	"context"
	"errors"
	"strings"
	"unicode"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// DefaultMinPasswordLength is the policy floor for new secrets
const DefaultMinPasswordLength = 10

// HashPassword will generate a password hash
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), 14)
	return string(h), err
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the hashed password
func ComparePasswordAndHash(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrMismatchedHashAndPassword
		}
		return err
	}
	return nil
}

// RandomPasswordHash is a temporary password
func RandomPasswordHash() string {
	pwd := uuid.New()

	h, err := HashPassword(pwd.String())
	if err != nil {
		return RandomPasswordHash()
	}

	return h
}

// BcryptCredentialStore implements CredentialStore over the accounts
// repository with bcrypt hashing and a small strength policy.
type BcryptCredentialStore struct {
	accounts  Accounts
	minLength int
	logger    Logger
}

// CredentialStoreOption customizes store construction.
type CredentialStoreOption func(*BcryptCredentialStore)

// WithMinPasswordLength overrides the policy floor for new secrets.
func WithMinPasswordLength(n int) CredentialStoreOption {
	return func(s *BcryptCredentialStore) {
		if n > 0 {
			s.minLength = n
		}
	}
}

// WithCredentialStoreLogger overrides the logger used by the store.
func WithCredentialStoreLogger(logger Logger) CredentialStoreOption {
	return func(s *BcryptCredentialStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewBcryptCredentialStore creates the default credential store.
func NewBcryptCredentialStore(accounts Accounts, opts ...CredentialStoreOption) *BcryptCredentialStore {
	s := &BcryptCredentialStore{
		accounts:  accounts,
		minLength: DefaultMinPasswordLength,
		logger:    defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

// CheckSecret evaluates the strength policy for a prospective secret without
// touching storage. The account only supplies the identifiers the policy
// compares against; it does not need to exist yet.
func (s *BcryptCredentialStore) CheckSecret(account *Account, secret string) *CredentialUpdateOutcome {
	if account == nil {
		account = &Account{}
	}
	if reasons := s.checkPolicy(account, secret); len(reasons) > 0 {
		return OutcomeRejected(reasons...)
	}
	return OutcomeAccepted()
}

// UpdateCredential hashes and stores a new secret. Policy refusals come back
// as a Rejected outcome; the error return is reserved for storage faults.
func (s *BcryptCredentialStore) UpdateCredential(ctx context.Context, accountID, newSecret string) (*CredentialUpdateOutcome, error) {
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		if IsAccountNotFound(err) {
			return OutcomeRejected(ReasonSubjectNotFound), nil
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load account for credential update")
	}

	if reasons := s.checkPolicy(account, newSecret); len(reasons) > 0 {
		return OutcomeRejected(reasons...), nil
	}

	hash, err := HashPassword(newSecret)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash new credential")
	}

	if err := s.accounts.ResetPassword(ctx, account.ID, hash); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store new credential")
	}

	return OutcomeAccepted(), nil
}

// VerifyCredential compares a cleartext secret against the stored hash.
func (s *BcryptCredentialStore) VerifyCredential(ctx context.Context, accountID, secret string) error {
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return err
	}

	return ComparePasswordAndHash(secret, account.PasswordHash)
}

func (s *BcryptCredentialStore) checkPolicy(account *Account, secret string) []RejectionReason {
	var reasons []RejectionReason

	if len(secret) < s.minLength {
		reasons = append(reasons, ReasonPasswordTooShort)
	}

	if !hasLetterAndDigit(secret) {
		reasons = append(reasons, ReasonPasswordTooWeak)
	}

	if secret != "" && (strings.EqualFold(secret, account.Username) || strings.EqualFold(secret, account.Email)) {
		reasons = append(reasons, ReasonPasswordMatchesIdentifier)
	}

	return reasons
}

func hasLetterAndDigit(s string) bool {
	var letter, digit bool
	for _, r := range s {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return letter && digit
}
