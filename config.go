package flows

import (
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
)

const (
	// DefaultActivationTokenTTL bounds how long an activation link stays valid.
	DefaultActivationTokenTTL = 24 * time.Hour
	// DefaultRecoveryTokenTTL bounds how long a password recovery link stays valid.
	DefaultRecoveryTokenTTL = 20 * time.Minute
)

// SimpleConfig is a struct backed Config for embedding and tests. Hosts with
// their own configuration layer implement the Config interface directly.
type SimpleConfig struct {
	SigningKey string
	Issuer     string
	Audience   []string
	BaseURL    string

	// ActivationTokenTTL defaults to DefaultActivationTokenTTL when zero.
	ActivationTokenTTL time.Duration

	// RecoveryTokenTTL defaults to DefaultRecoveryTokenTTL when zero.
	RecoveryTokenTTL time.Duration

	// SetPasswordAfterActivation makes activation links land on the combined
	// activate and set password flow instead of plain activation.
	SetPasswordAfterActivation bool
}

// Validate checks the fields a running flow set cannot do without.
func (c SimpleConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.SigningKey, validation.Required, validation.Length(32, 0)),
		validation.Field(&c.Issuer, validation.Required),
		validation.Field(&c.BaseURL, validation.Required),
	)
}

func (c SimpleConfig) GetSigningKey() string { return c.SigningKey }
func (c SimpleConfig) GetIssuer() string     { return c.Issuer }
func (c SimpleConfig) GetAudience() []string { return c.Audience }

func (c SimpleConfig) GetActivationTokenTTL() time.Duration {
	if c.ActivationTokenTTL <= 0 {
		return DefaultActivationTokenTTL
	}
	return c.ActivationTokenTTL
}

func (c SimpleConfig) GetRecoveryTokenTTL() time.Duration {
	if c.RecoveryTokenTTL <= 0 {
		return DefaultRecoveryTokenTTL
	}
	return c.RecoveryTokenTTL
}

func (c SimpleConfig) GetSetPasswordAfterActivation() bool {
	return c.SetPasswordAfterActivation
}

func (c SimpleConfig) GetBaseURL() string {
	return strings.TrimSuffix(c.BaseURL, "/")
}
