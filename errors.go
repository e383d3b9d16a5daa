package flows

import (
	"errors"

	goerrors "github.com/goliatone/go-errors"
)

const (
	// TextCodeInvalidToken is the opaque code covering expired, tampered,
	// unknown, consumed, and wrong purpose tokens alike.
	TextCodeInvalidToken = "INVALID_NONCE_TOKEN"
	// TextCodeTokenIssuance marks a signing or storage fault during issuance.
	TextCodeTokenIssuance = "TOKEN_ISSUANCE_ERROR"
	// TextCodeAccountNotFound marks a missing account record.
	TextCodeAccountNotFound = "ACCOUNT_NOT_FOUND"
	// TextCodeDuplicateAccount marks a registration collision.
	TextCodeDuplicateAccount = "DUPLICATE_ACCOUNT"
)

// ErrInvalidToken is returned whenever a nonce token cannot be honored.
// Expired, tampered, unknown, already consumed, and purpose mismatched
// tokens are indistinguishable through it, to avoid oracle behavior.
var ErrInvalidToken = goerrors.New("nonce token is invalid or has expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidToken).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenIssuance is returned when the signing or storage dependency is
// unavailable during issuance. It is a server side fault, not user error.
var ErrTokenIssuance = goerrors.New("failed to issue nonce token", goerrors.CategoryInternal).
	WithTextCode(TextCodeTokenIssuance).
	WithCode(goerrors.CodeInternal)

// ErrAccountNotFound is returned by directory lookups for missing accounts.
var ErrAccountNotFound = goerrors.New("account not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeAccountNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrDuplicateAccount is returned when a registration collides with an
// existing username or email.
var ErrDuplicateAccount = goerrors.New("an account with that identifier already exists", goerrors.CategoryConflict).
	WithTextCode(TextCodeDuplicateAccount).
	WithCode(goerrors.CodeConflict)

// ErrInvalidCredentials is the login failure returned for a bad password or
// an unknown identifier, deliberately undifferentiated.
var ErrInvalidCredentials = goerrors.New("incorrect username or password", goerrors.CategoryAuth).
	WithTextCode("INVALID_CREDENTIALS").
	WithCode(goerrors.CodeUnauthorized)

// ErrAccountNotActive is the login failure for accounts that have not
// completed activation.
var ErrAccountNotActive = goerrors.New("account is not active", goerrors.CategoryAuth).
	WithTextCode("ACCOUNT_NOT_ACTIVE").
	WithCode(goerrors.CodeUnauthorized)

// ErrNoEmptyString rejects empty secrets before hashing
var ErrNoEmptyString = errors.New("cannot hash an empty string")

// ErrMismatchedHashAndPassword is the bcrypt mismatch error
var ErrMismatchedHashAndPassword = errors.New("password does not match stored hash")

// IsAccountNotFound will check for missing account lookups
func IsAccountNotFound(err error) bool {
	return goerrors.Is(err, ErrAccountNotFound)
}

// IsInvalidToken will check for the opaque invalid token outcome
func IsInvalidToken(err error) bool {
	return goerrors.Is(err, ErrInvalidToken)
}

// IsDuplicateAccount will check for registration collisions
func IsDuplicateAccount(err error) bool {
	return goerrors.Is(err, ErrDuplicateAccount)
}
