package flows

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/nyaruka/phonenumbers"
	"github.com/uptrace/bun"
)

// DefaultPhoneRegion resolves national phone numbers during registration.
const DefaultPhoneRegion = "US"

type RegisterAccountMessage struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Password    string `json:"password"`
	PhoneRegion string `json:"phone_region"`
	OnResponse  func(resp *RegisterAccountResponse)
}

func (e RegisterAccountMessage) Type() string { return "account.register" }

type RegisterAccountResponse struct {
	Account *Account
	// Outcome carries the credential policy verdict for the submitted
	// password; a rejection aborts registration.
	Outcome *CredentialUpdateOutcome
	// ActivationSent reports whether the activation message was dispatched.
	ActivationSent bool
	Success        bool
}

// RegisterAccountHandler creates an account in the pending activation state,
// runs the submitted password through the credential policy, and dispatches
// the activation nonce to the account's email.
type RegisterAccountHandler struct {
	repo        RepositoryManager
	credentials CredentialStore
	issuer      NonceTokenIssuer
	notifier    Notifier
	config      Config
	logger      Logger
}

func NewRegisterAccountHandler(repo RepositoryManager, credentials CredentialStore, issuer NonceTokenIssuer, notifier Notifier, config Config, logger Logger) *RegisterAccountHandler {
	if logger == nil {
		logger = defLogger{}
	}
	return &RegisterAccountHandler{
		repo:        repo,
		credentials: credentials,
		issuer:      issuer,
		notifier:    normalizeNotifier(notifier),
		config:      config,
		logger:      logger,
	}
}

func (h *RegisterAccountHandler) Execute(ctx context.Context, event RegisterAccountMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterAccountHandler) execute(ctx context.Context, event RegisterAccountMessage) error {
	resp := &RegisterAccountResponse{}
	account := &Account{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	username := getUsername(event.Username, event.Email)
	if username == "" {
		return goerrors.New("registration requires a username or email", goerrors.CategoryBadInput)
	}

	// refuse a weak secret before any record exists, a rejected registration
	// must leave nothing behind that blocks the corrected retry
	if event.Password != "" {
		candidate := &Account{Username: username, Email: event.Email}
		if outcome := h.credentials.CheckSecret(candidate, event.Password); !outcome.Accepted() {
			resp.Outcome = outcome
			if event.OnResponse != nil {
				event.OnResponse(resp)
			}
			return nil
		}
	}

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := h.repo.Accounts().FindByUsername(ctx, username); err == nil {
			return ErrDuplicateAccount
		} else if !IsAccountNotFound(err) {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check username availability")
		}

		if event.Email != "" {
			if _, err := h.repo.Accounts().FindByEmail(ctx, event.Email); err == nil {
				return ErrDuplicateAccount
			} else if !IsAccountNotFound(err) {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check email availability")
			}
		}

		account.Username = username
		account.Email = event.Email
		account.FirstName = event.FirstName
		account.LastName = event.LastName
		account.Phone = normalizePhone(event.Phone, event.PhoneRegion)
		account.Status = AccountStatusPending

		if id, err := hashid.NewUUID(account.Username); err == nil {
			account.ID = id
		}

		var err error
		if account, err = h.repo.Accounts().CreateTx(ctx, tx, account); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create account")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "account registration transaction failed")
	}

	resp.Account = account

	if event.Password != "" {
		outcome, err := h.credentials.UpdateCredential(ctx, account.ID.String(), event.Password)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store registration credential")
		}

		resp.Outcome = outcome
		if !outcome.Accepted() {
			if event.OnResponse != nil {
				event.OnResponse(resp)
			}
			return nil
		}

		if err := h.repo.Accounts().MarkCredentialSet(ctx, account.ID.String()); err != nil {
			h.logger.Warn("could not flag credential as set for %s: %v", account.ID, err)
		}
	}

	resp.ActivationSent = h.sendActivation(ctx, account)
	resp.Success = true

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

func (h *RegisterAccountHandler) sendActivation(ctx context.Context, account *Account) bool {
	if account.Email == "" {
		h.logger.Info("account %s registered without email, skipping activation message", account.ID)
		return false
	}

	claims := &NonceClaims{
		Purpose:   PurposeActivation,
		AccountID: account.ID.String(),
	}

	nonce, err := h.issuer.Issue(ctx, claims, h.config.GetActivationTokenTTL())
	if err != nil {
		h.logger.Error("failed to issue activation nonce for %s: %v", account.ID, err)
		return false
	}

	data := map[string]any{
		NotifyKeyNonce:          nonce,
		NotifyKeyAccountID:      account.ID.String(),
		NotifyKeyActionEndpoint: ActivationEndpoint(h.config),
	}

	if err := h.notifier.Send(ctx, account.Email, TemplateActivateAccount, data); err != nil {
		h.logger.Error("failed to dispatch activation message for %s: %v", account.ID, err)
		return false
	}

	return true
}

// ActivationEndpoint is the link base an activation message should point at.
// The combined flow lands on the activate and set password page instead.
func ActivationEndpoint(cfg Config) string {
	if cfg.GetSetPasswordAfterActivation() {
		return cfg.GetBaseURL() + RouteActivateAndSet
	}
	return cfg.GetBaseURL() + RouteActivateLanding
}

func getUsername(username, email string) string {
	if username != "" {
		return username
	}

	if strings.Contains(email, "@") {
		username = strings.Split(email, "@")[0]
	}

	return username
}

func normalizePhone(raw, region string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	if region == "" {
		region = DefaultPhoneRegion
	}

	num, err := phonenumbers.Parse(raw, region)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return raw
	}

	return phonenumbers.Format(num, phonenumbers.E164)
}
