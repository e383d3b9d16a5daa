package flows_test

import (
	"context"
	"testing"

	flows "github.com/goliatone/go-account-flows"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type commandFixture struct {
	repo     *fakeRepo
	issuer   *countingIssuer
	notifier *recordingNotifier
	config   flows.SimpleConfig
}

func newCommandFixture(accounts ...*flows.Account) *commandFixture {
	repo := newFakeRepo(newFakeAccounts(accounts...))
	return &commandFixture{
		repo: repo,
		issuer: &countingIssuer{
			NonceTokenIssuer: newTestIssuer(repo.nonces, nil),
		},
		notifier: &recordingNotifier{},
		config:   newTestConfig(),
	}
}

func TestRegisterAccountCreatesPendingAccount(t *testing.T) {
	fx := newCommandFixture()
	credentials := flows.NewBcryptCredentialStore(fx.repo.accounts)
	handler := flows.NewRegisterAccountHandler(fx.repo, credentials, fx.issuer, fx.notifier, fx.config, nil)

	var res *flows.RegisterAccountResponse
	err := handler.Execute(context.Background(), flows.RegisterAccountMessage{
		FirstName: "Pepe",
		LastName:  "Rone",
		Email:     "pepe.rone@example.com",
		Password:  "correct horse 9 battery",
		OnResponse: func(resp *flows.RegisterAccountResponse) {
			res = resp
		},
	})
	require.NoError(t, err)
	require.NotNil(t, res)
	require.True(t, res.Success)

	account, err := fx.repo.accounts.FindByEmail(context.Background(), "pepe.rone@example.com")
	require.NoError(t, err)
	assert.Equal(t, flows.AccountStatusPending, account.Status)
	assert.Equal(t, "pepe.rone", account.Username, "username derived from email local part")
	assert.True(t, account.CredentialSet)

	// one activation message to the registered address
	require.True(t, res.ActivationSent)
	sends := fx.notifier.all()
	require.Len(t, sends, 1)
	assert.Equal(t, "pepe.rone@example.com", sends[0].Destination)
	assert.Equal(t, flows.TemplateActivateAccount, sends[0].TemplateID)
	assert.NotEmpty(t, sends[0].Data[flows.NotifyKeyNonce])
}

func TestRegisterAccountDuplicate(t *testing.T) {
	existing := &flows.Account{
		ID:       uuid.New(),
		Username: "pepe.rone",
		Email:    "pepe.rone@example.com",
		Status:   flows.AccountStatusActive,
	}
	fx := newCommandFixture(existing)
	credentials := flows.NewBcryptCredentialStore(fx.repo.accounts)
	handler := flows.NewRegisterAccountHandler(fx.repo, credentials, fx.issuer, fx.notifier, fx.config, nil)

	err := handler.Execute(context.Background(), flows.RegisterAccountMessage{
		Email:    "pepe.rone@example.com",
		Password: "correct horse 9 battery",
	})
	assert.True(t, flows.IsDuplicateAccount(err))
	assert.Empty(t, fx.notifier.all())
}

func TestRegisterAccountWeakPasswordAborts(t *testing.T) {
	fx := newCommandFixture()
	credentials := flows.NewBcryptCredentialStore(fx.repo.accounts)
	handler := flows.NewRegisterAccountHandler(fx.repo, credentials, fx.issuer, fx.notifier, fx.config, nil)

	var res *flows.RegisterAccountResponse
	err := handler.Execute(context.Background(), flows.RegisterAccountMessage{
		Email:    "pepe.rone@example.com",
		Password: "weak",
		OnResponse: func(resp *flows.RegisterAccountResponse) {
			res = resp
		},
	})
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.False(t, res.Success)
	require.NotNil(t, res.Outcome)
	assert.Equal(t, flows.UpdateRejected, res.Outcome.Status)
	assert.False(t, res.ActivationSent)
	assert.Empty(t, fx.notifier.all(), "no activation message for a refused registration")

	// a refused registration leaves no record behind
	_, err = fx.repo.accounts.FindByEmail(context.Background(), "pepe.rone@example.com")
	assert.True(t, flows.IsAccountNotFound(err))
}

func TestRegisterAccountRejectedPasswordLeavesNoAccount(t *testing.T) {
	fx := newCommandFixture()
	credentials := flows.NewBcryptCredentialStore(fx.repo.accounts)
	handler := flows.NewRegisterAccountHandler(fx.repo, credentials, fx.issuer, fx.notifier, fx.config, nil)

	var res *flows.RegisterAccountResponse
	// long enough to clear a length check, but no digit
	err := handler.Execute(context.Background(), flows.RegisterAccountMessage{
		Email:    "pepe.rone@example.com",
		Password: "longenoughbutnodigits",
		OnResponse: func(resp *flows.RegisterAccountResponse) {
			res = resp
		},
	})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.False(t, res.Success)
	require.NotNil(t, res.Outcome)
	assert.Contains(t, res.Outcome.Reasons, flows.ReasonPasswordTooWeak)

	_, err = fx.repo.accounts.FindByEmail(context.Background(), "pepe.rone@example.com")
	require.True(t, flows.IsAccountNotFound(err), "refusal must not commit the account")

	// the corrected retry registers cleanly instead of colliding
	err = handler.Execute(context.Background(), flows.RegisterAccountMessage{
		Email:    "pepe.rone@example.com",
		Password: "correct horse 9 battery",
		OnResponse: func(resp *flows.RegisterAccountResponse) {
			res = resp
		},
	})
	require.NoError(t, err)
	require.True(t, res.Success)

	account, err := fx.repo.accounts.FindByEmail(context.Background(), "pepe.rone@example.com")
	require.NoError(t, err)
	assert.Equal(t, flows.AccountStatusPending, account.Status)
}

func TestRegisterAccountNormalizesPhone(t *testing.T) {
	fx := newCommandFixture()
	credentials := flows.NewBcryptCredentialStore(fx.repo.accounts)
	handler := flows.NewRegisterAccountHandler(fx.repo, credentials, fx.issuer, fx.notifier, fx.config, nil)

	err := handler.Execute(context.Background(), flows.RegisterAccountMessage{
		Email:    "pepe.rone@example.com",
		Phone:    "(212) 555-0123",
		Password: "correct horse 9 battery",
	})
	require.NoError(t, err)

	account, err := fx.repo.accounts.FindByEmail(context.Background(), "pepe.rone@example.com")
	require.NoError(t, err)
	assert.Equal(t, "+12125550123", account.Phone)
}

func TestInitializeRecoveryKnownAccount(t *testing.T) {
	account := &flows.Account{
		ID:       uuid.New(),
		Username: "pepe.rone",
		Email:    "pepe.rone@example.com",
		Status:   flows.AccountStatusActive,
	}
	fx := newCommandFixture(account)
	handler := flows.NewInitializeRecoveryHandler(fx.repo, fx.issuer, fx.notifier, fx.config, nil)

	var res *flows.InitializeRecoveryResponse
	err := handler.Execute(context.Background(), flows.InitializeRecoveryMessage{
		Identifier: "pepe.rone@example.com",
		OnResponse: func(resp *flows.InitializeRecoveryResponse) {
			res = resp
		},
	})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Success)
	assert.Equal(t, "p***e@example.com", res.MaskedIdentifier)

	sends := fx.notifier.all()
	require.Len(t, sends, 1)
	assert.Equal(t, "pepe.rone@example.com", sends[0].Destination)
	assert.Equal(t, flows.TemplateForgotPassword, sends[0].TemplateID)

	// the mailed nonce is a spendable set-password token for the account
	nonce, _ := sends[0].Data[flows.NotifyKeyNonce].(string)
	require.NotEmpty(t, nonce)
	claims, err := fx.issuer.Introspect(context.Background(), nonce, flows.PurposeSetPassword)
	require.NoError(t, err)
	assert.Equal(t, account.ID.String(), claims.AccountID)
}

func TestInitializeRecoveryUnknownAccount(t *testing.T) {
	fx := newCommandFixture()
	handler := flows.NewInitializeRecoveryHandler(fx.repo, fx.issuer, fx.notifier, fx.config, nil)

	var res *flows.InitializeRecoveryResponse
	err := handler.Execute(context.Background(), flows.InitializeRecoveryMessage{
		Identifier: "nobody@example.com",
		OnResponse: func(resp *flows.InitializeRecoveryResponse) {
			res = resp
		},
	})
	require.NoError(t, err)
	require.NotNil(t, res)

	// identical response shape to the known-account branch
	assert.True(t, res.Success)
	assert.Equal(t, "n***y@example.com", res.MaskedIdentifier)

	// the decoy issuance and blackhole dispatch keep one call pattern
	sends := fx.notifier.all()
	require.Len(t, sends, 1)
	assert.Empty(t, sends[0].Destination)
	assert.Equal(t, flows.TemplateForgotPassword, sends[0].TemplateID)
}

func TestInitializeRecoveryBranchesAreShapeEquivalent(t *testing.T) {
	account := &flows.Account{
		ID:       uuid.New(),
		Username: "pepe.rone",
		Email:    "pepe.rone@example.com",
		Status:   flows.AccountStatusActive,
	}
	fx := newCommandFixture(account)
	handler := flows.NewInitializeRecoveryHandler(fx.repo, fx.issuer, fx.notifier, fx.config, nil)

	run := func(identifier string) *flows.InitializeRecoveryResponse {
		var res *flows.InitializeRecoveryResponse
		err := handler.Execute(context.Background(), flows.InitializeRecoveryMessage{
			Identifier: identifier,
			OnResponse: func(resp *flows.InitializeRecoveryResponse) {
				res = resp
			},
		})
		require.NoError(t, err)
		return res
	}

	known := run("pepe.rone@example.com")
	unknown := run("stranger@example.com")

	assert.Equal(t, known.Success, unknown.Success)
	assert.NotEmpty(t, known.MaskedIdentifier)
	assert.NotEmpty(t, unknown.MaskedIdentifier)

	sends := fx.notifier.all()
	require.Len(t, sends, 2)
	assert.Equal(t, sends[0].TemplateID, sends[1].TemplateID)
}

func TestForgotAccountIDKnownEmail(t *testing.T) {
	account := &flows.Account{
		ID:       uuid.New(),
		Username: "pepe.rone",
		Email:    "pepe.rone@example.com",
		Status:   flows.AccountStatusActive,
	}
	fx := newCommandFixture(account)
	handler := flows.NewForgotAccountIDHandler(fx.repo, fx.notifier, nil)

	var res *flows.ForgotAccountIDResponse
	err := handler.Execute(context.Background(), flows.ForgotAccountIDMessage{
		Email: "pepe.rone@example.com",
		OnResponse: func(resp *flows.ForgotAccountIDResponse) {
			res = resp
		},
	})
	require.NoError(t, err)
	assert.True(t, res.Success)

	sends := fx.notifier.all()
	require.Len(t, sends, 1)
	assert.Equal(t, "pepe.rone@example.com", sends[0].Destination)
	assert.Equal(t, flows.TemplateForgotAccountID, sends[0].TemplateID)
	assert.Equal(t, "pepe.rone", sends[0].Data[flows.NotifyKeyAccountID])
}

func TestForgotAccountIDUnknownEmail(t *testing.T) {
	fx := newCommandFixture()
	handler := flows.NewForgotAccountIDHandler(fx.repo, fx.notifier, nil)

	var res *flows.ForgotAccountIDResponse
	err := handler.Execute(context.Background(), flows.ForgotAccountIDMessage{
		Email: "nobody@example.com",
		OnResponse: func(resp *flows.ForgotAccountIDResponse) {
			res = resp
		},
	})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, "n***y@example.com", res.MaskedEmail)

	sends := fx.notifier.all()
	require.Len(t, sends, 1)
	assert.Empty(t, sends[0].Destination)
}

func TestCommandsHonorCancelledContext(t *testing.T) {
	fx := newCommandFixture()
	credentials := flows.NewBcryptCredentialStore(fx.repo.accounts)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	register := flows.NewRegisterAccountHandler(fx.repo, credentials, fx.issuer, fx.notifier, fx.config, nil)
	assert.Error(t, register.Execute(ctx, flows.RegisterAccountMessage{
		Email:    "pepe.rone@example.com",
		Password: "correct horse 9 battery",
	}))

	recovery := flows.NewInitializeRecoveryHandler(fx.repo, fx.issuer, fx.notifier, fx.config, nil)
	assert.Error(t, recovery.Execute(ctx, flows.InitializeRecoveryMessage{
		Identifier: "pepe.rone@example.com",
	}))
	assert.Empty(t, fx.notifier.all())
}
