package flows

import (
	"context"
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// AccountDirectory is the host identity server's account service. Lookups
// signal a missing account with an error satisfying IsAccountNotFound so that
// callers can branch without nil checks on the record.
type AccountDirectory interface {
	FindByUsername(ctx context.Context, username string) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByID(ctx context.Context, id string) (*Account, error)
	CreateAccount(ctx context.Context, account *Account) (*Account, error)
	Activate(ctx context.Context, accountID string) (*Account, error)
	MarkCredentialSet(ctx context.Context, accountID string) error
}

// CredentialStore verifies and updates credentials for a subject. Update
// returns a structured outcome rather than an error for policy rejections;
// the error return is reserved for infrastructure failures. CheckSecret runs
// the policy against a prospective account without touching storage, so
// registration can refuse a secret before any record exists.
type CredentialStore interface {
	CheckSecret(account *Account, secret string) *CredentialUpdateOutcome
	UpdateCredential(ctx context.Context, accountID, newSecret string) (*CredentialUpdateOutcome, error)
	VerifyCredential(ctx context.Context, accountID, secret string) error
}

// Notifier dispatches a templated message to a destination. Implementations
// are fire and forget from the workflow's perspective: delivery failures are
// logged, never surfaced to the end user.
type Notifier interface {
	Send(ctx context.Context, destination, templateID string, data map[string]any) error
}

// SessionStore is the host owned per session key value store. One opaque
// string value per key.
type SessionStore interface {
	Get(key string) (string, bool)
	Put(key, value string)
	Remove(key string)
}

// NonceTokenIssuer creates and introspects single use, time bounded nonce
// tokens. Introspect never consumes; Consume atomically claims the token so
// two racing requests cannot both succeed; Release returns a claimed token
// after an action was rejected without a state change.
type NonceTokenIssuer interface {
	Issue(ctx context.Context, claims *NonceClaims, ttl time.Duration) (string, error)
	Introspect(ctx context.Context, token string, purpose TokenPurpose) (*NonceClaims, error)
	Consume(ctx context.Context, token string, purpose TokenPurpose) (*NonceClaims, error)
	Release(ctx context.Context, token string) error
}

// Config holds flow options
type Config interface {
	GetSigningKey() string
	GetIssuer() string
	GetAudience() []string
	GetActivationTokenTTL() time.Duration
	GetRecoveryTokenTTL() time.Duration
	GetSetPasswordAfterActivation() bool
	GetBaseURL() string
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] FLOWS "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] FLOWS "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] FLOWS "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] FLOWS "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
