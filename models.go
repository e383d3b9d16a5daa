package flows

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AccountStatus is the account lifecycle state
type AccountStatus = string

const (
	// AccountStatusInactive is an account that exists but cannot be used
	AccountStatusInactive AccountStatus = "inactive"
	// AccountStatusPending is a registered account awaiting activation
	AccountStatusPending AccountStatus = "pending-activation"
	// AccountStatusActive is a fully usable account
	AccountStatusActive AccountStatus = "active"
)

// Account is the account model
type Account struct {
	bun.BaseModel `bun:"table:accounts,alias:acct"`
	ID            uuid.UUID     `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Username      string        `bun:"username,notnull,unique" json:"username,omitempty"`
	Email         string        `bun:"email,unique" json:"email,omitempty"`
	FirstName     string        `bun:"first_name" json:"first_name,omitempty"`
	LastName      string        `bun:"last_name" json:"last_name,omitempty"`
	Phone         string        `bun:"phone_number" json:"phone_number,omitempty"`
	Status        AccountStatus `bun:"status,notnull" json:"status,omitempty"`
	CredentialSet bool          `bun:"credential_set" json:"credential_set,omitempty"`
	PasswordHash  string        `bun:"password_hash" json:"password_hash,omitempty"`
	ActivatedAt   *time.Time    `bun:"activated_at,nullzero" json:"activated_at,omitempty"`
	CreatedAt     *time.Time    `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time    `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt     *time.Time    `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// EnsureStatus defaults the status for records predating the lifecycle field.
func (a *Account) EnsureStatus() {
	if a.Status == "" {
		a.Status = AccountStatusInactive
	}
}

// IsActive reports whether the account completed activation.
func (a *Account) IsActive() bool {
	return a.Status == AccountStatusActive
}

// TokenPurpose discriminates nonce tokens between flows so a token issued
// for one flow cannot be replayed against another.
type TokenPurpose = string

const (
	// PurposeActivation authorizes completing an account activation
	PurposeActivation TokenPurpose = "account-activation"
	// PurposeSetPassword authorizes setting or resetting a credential
	PurposeSetPassword TokenPurpose = "set-password"
)

// NonceRecord is the backing row for an issued nonce token. The token string
// itself is never stored; the row is keyed by the token's jti claim and owns
// the single use bookkeeping.
type NonceRecord struct {
	bun.BaseModel `bun:"table:nonce_tokens,alias:nonce"`
	ID            string       `bun:"id,pk" json:"id,omitempty"`
	AccountID     string       `bun:"account_id,notnull" json:"account_id,omitempty"`
	Purpose       TokenPurpose `bun:"purpose,notnull" json:"purpose,omitempty"`
	IssuedAt      time.Time    `bun:"issued_at,notnull" json:"issued_at,omitempty"`
	ExpiresAt     time.Time    `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	ConsumedAt    *time.Time   `bun:"consumed_at,nullzero" json:"consumed_at,omitempty"`
}

// Spendable reports whether the record can still honor a request at the
// given instant.
func (r *NonceRecord) Spendable(now time.Time) bool {
	return r.ConsumedAt == nil && now.Before(r.ExpiresAt)
}
