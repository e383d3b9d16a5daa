package flows

import "context"

// Template ids handed to the Notifier. The rendering of these templates is
// owned by the host.
const (
	TemplateActivateAccount = "email/activate-account/email"
	TemplateForgotPassword  = "email/forgot-password/email"
	TemplateForgotAccountID = "email/forgot-account-id/email"
)

// View data keys the workflow puts into notification payloads.
const (
	NotifyKeyNonce           = "nonce"
	NotifyKeyAccountID       = "accountId"
	NotifyKeyActionEndpoint  = "_activation_endpoint"
	NotifyKeySetPasswordLink = "_set_password_endpoint"
)

type noopNotifier struct{}

func (noopNotifier) Send(context.Context, string, string, map[string]any) error {
	return nil
}

// NewNoopNotifier returns a Notifier that silently drops every message.
// Used when no notification channel has been configured, so flows still run
// with their response shape intact.
func NewNoopNotifier() Notifier {
	return noopNotifier{}
}

type logNotifier struct {
	logger Logger
}

// NewLogNotifier returns a Notifier that prints messages through the given
// logger. Intended for development setups.
func NewLogNotifier(logger Logger) Notifier {
	if logger == nil {
		logger = defLogger{}
	}
	return &logNotifier{logger: logger}
}

func (n *logNotifier) Send(_ context.Context, destination, templateID string, data map[string]any) error {
	if destination == "" {
		// blackhole send, keep the call pattern without output
		return nil
	}
	n.logger.Info("notify %s template=%s data=%v", destination, templateID, data)
	return nil
}

func normalizeNotifier(n Notifier) Notifier {
	if n == nil {
		return noopNotifier{}
	}
	return n
}
