package flows

import (
	"context"
	"strings"
)

// Authenticator verifies a username or email plus password against the
// account directory and the credential store.
type Authenticator struct {
	directory   AccountDirectory
	credentials CredentialStore
	logger      Logger
}

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(directory AccountDirectory, credentials CredentialStore) *Authenticator {
	return &Authenticator{
		directory:   directory,
		credentials: credentials,
		logger:      defLogger{},
	}
}

func (a *Authenticator) WithLogger(logger Logger) *Authenticator {
	if logger != nil {
		a.logger = logger
	}
	return a
}

// Login resolves the identifier, checks the credential, and requires an
// activated account. A missing account and a wrong password both surface as
// ErrInvalidCredentials so login cannot be used to probe for accounts.
func (a *Authenticator) Login(ctx context.Context, identifier, password string) (*Account, error) {
	account, err := a.findAccount(ctx, identifier)
	if err != nil {
		if IsAccountNotFound(err) {
			a.logger.Debug("login attempt for unknown identifier")
			return nil, ErrInvalidCredentials
		}
		a.logger.Error("login lookup error: %v", err)
		return nil, err
	}

	if err := a.credentials.VerifyCredential(ctx, account.ID.String(), password); err != nil {
		a.logger.Debug("login credential mismatch for %s", account.ID)
		return nil, ErrInvalidCredentials
	}

	account.EnsureStatus()
	if !account.IsActive() {
		a.logger.Warn("login blocked, account %s status is %s", account.ID, account.Status)
		return nil, ErrAccountNotActive
	}

	return account, nil
}

func (a *Authenticator) findAccount(ctx context.Context, identifier string) (*Account, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, ErrAccountNotFound
	}

	if strings.Contains(identifier, "@") {
		if account, err := a.directory.FindByEmail(ctx, identifier); err == nil {
			return account, nil
		} else if !IsAccountNotFound(err) {
			return nil, err
		}
	}

	return a.directory.FindByUsername(ctx, identifier)
}
