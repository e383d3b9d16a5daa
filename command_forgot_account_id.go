package flows

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type ForgotAccountIDMessage struct {
	Email      string `json:"email"`
	OnResponse func(resp *ForgotAccountIDResponse)
}

func (e ForgotAccountIDMessage) Type() string { return "account.forgot_id" }

type ForgotAccountIDResponse struct {
	// MaskedEmail echoes the submitted address, lightly masked, in both the
	// matched and unmatched branches.
	MaskedEmail string
	Success     bool
}

// ForgotAccountIDHandler mails the account's username to the submitted email
// address. An unmatched address dispatches to the blackhole destination so
// the response shape and call pattern never reveal whether the address is
// registered.
type ForgotAccountIDHandler struct {
	repo     RepositoryManager
	notifier Notifier
	logger   Logger
}

func NewForgotAccountIDHandler(repo RepositoryManager, notifier Notifier, logger Logger) *ForgotAccountIDHandler {
	if logger == nil {
		logger = defLogger{}
	}
	return &ForgotAccountIDHandler{
		repo:     repo,
		notifier: normalizeNotifier(notifier),
		logger:   logger,
	}
}

func (h *ForgotAccountIDHandler) Execute(ctx context.Context, event ForgotAccountIDMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account id recovery",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ForgotAccountIDHandler) execute(ctx context.Context, event ForgotAccountIDMessage) error {
	resp := &ForgotAccountIDResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	email := strings.TrimSpace(event.Email)
	if email == "" {
		return goerrors.New("account id recovery requires an email", goerrors.CategoryBadInput)
	}

	resp.MaskedEmail = MaskIdentifier(email)

	account, err := h.repo.Accounts().FindByEmail(ctx, email)
	if err != nil && !IsAccountNotFound(err) {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve account by email")
	}

	destination := blackholeDestination
	username := ""
	if account != nil {
		destination = account.Email
		username = account.Username
	}

	data := map[string]any{
		NotifyKeyAccountID: username,
	}

	if err := h.notifier.Send(ctx, destination, TemplateForgotAccountID, data); err != nil {
		h.logger.Error("failed to dispatch account id message: %v", err)
	}

	resp.Success = true

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
