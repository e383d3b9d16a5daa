package flows

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type InitializeRecoveryMessage struct {
	// Identifier is whatever the user typed: username or email.
	Identifier string `json:"identifier"`
	OnResponse func(resp *InitializeRecoveryResponse)
}

func (e InitializeRecoveryMessage) Type() string { return "account.recovery" }

type InitializeRecoveryResponse struct {
	// MaskedIdentifier echoes the submitted identifier, lightly masked. It is
	// identical in shape whether or not an account matched.
	MaskedIdentifier string
	Success          bool
}

// InitializeRecoveryHandler starts the forgot password flow: it issues a set
// password nonce for the matched account and mails the recovery link. When no
// account matches it performs the same issuance against a synthetic subject
// and a blackhole destination, so the two branches are indistinguishable from
// the outside.
type InitializeRecoveryHandler struct {
	repo     RepositoryManager
	issuer   NonceTokenIssuer
	notifier Notifier
	config   Config
	logger   Logger
}

func NewInitializeRecoveryHandler(repo RepositoryManager, issuer NonceTokenIssuer, notifier Notifier, config Config, logger Logger) *InitializeRecoveryHandler {
	if logger == nil {
		logger = defLogger{}
	}
	return &InitializeRecoveryHandler{
		repo:     repo,
		issuer:   issuer,
		notifier: normalizeNotifier(notifier),
		config:   config,
		logger:   logger,
	}
}

func (h *InitializeRecoveryHandler) Execute(ctx context.Context, event InitializeRecoveryMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during recovery initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializeRecoveryHandler) execute(ctx context.Context, event InitializeRecoveryMessage) error {
	resp := &InitializeRecoveryResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	identifier := strings.TrimSpace(event.Identifier)
	if identifier == "" {
		return goerrors.New("recovery requires a username or email", goerrors.CategoryBadInput)
	}

	resp.MaskedIdentifier = MaskIdentifier(identifier)

	account, err := h.lookup(ctx, identifier)
	if err != nil && !IsAccountNotFound(err) {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve account for recovery")
	}

	subject := syntheticAccountID()
	destination := blackholeDestination
	if account != nil {
		subject = account.ID.String()
		destination = account.Email
	}

	claims := &NonceClaims{
		Purpose:   PurposeSetPassword,
		AccountID: subject,
	}

	nonce, err := h.issuer.Issue(ctx, claims, h.config.GetRecoveryTokenTTL())
	if err != nil {
		return goerrors.Wrap(err, ErrTokenIssuance.Category, ErrTokenIssuance.Message).
			WithTextCode(ErrTokenIssuance.TextCode)
	}

	data := map[string]any{
		NotifyKeyNonce:           nonce,
		NotifyKeyAccountID:       subject,
		NotifyKeySetPasswordLink: h.config.GetBaseURL() + RouteSetPassword,
	}

	if err := h.notifier.Send(ctx, destination, TemplateForgotPassword, data); err != nil {
		// delivery faults stay server side, the user still sees success
		h.logger.Error("failed to dispatch recovery message: %v", err)
	}

	resp.Success = true

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

// lookup tries the identifier as an email first when it looks like one, then
// as a username.
func (h *InitializeRecoveryHandler) lookup(ctx context.Context, identifier string) (*Account, error) {
	if strings.Contains(identifier, "@") {
		if account, err := h.repo.Accounts().FindByEmail(ctx, identifier); err == nil {
			return account, nil
		} else if !IsAccountNotFound(err) {
			return nil, err
		}
	}

	return h.repo.Accounts().FindByUsername(ctx, identifier)
}
