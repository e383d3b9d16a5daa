package flows

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// NonceClaims is the claim set carried by a nonce token. AccountID binds the
// token to the subject it authorizes a state change for; Purpose prevents
// cross flow replay. Extra values travel in Data.
type NonceClaims struct {
	jwt.RegisteredClaims
	Purpose   TokenPurpose   `json:"prp,omitempty"`
	AccountID string         `json:"aid,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// TokenID returns the jti claim keying the backing nonce record.
func (c *NonceClaims) TokenID() string {
	return c.RegisteredClaims.ID
}

// Expires returns the expiration time
func (c *NonceClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// Issued returns the issued at time
func (c *NonceClaims) Issued() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}

// Value returns a named entry from the extra claim data.
func (c *NonceClaims) Value(key string) (any, bool) {
	if c.Data == nil {
		return nil, false
	}
	v, ok := c.Data[key]
	return v, ok
}

func ensureTokenID(claims *jwt.RegisteredClaims) {
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}
}
