package flows

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
)

// FlowState is a recovery/activation flow instance state
type FlowState = string

const (
	// FlowAwaitingToken is the initial state, before a token was presented
	FlowAwaitingToken FlowState = "awaiting-token"
	// FlowTokenValidated means the token passed introspection and the
	// session is authorized for the guarded action
	FlowTokenValidated FlowState = "token-validated"
	// FlowActionCompleted is the terminal success state
	FlowActionCompleted FlowState = "action-completed"
	// FlowTokenInvalid is the absorbing error state
	FlowTokenInvalid FlowState = "token-invalid"
)

// GuardedAction is the capability the Act step runs once the session is
// authorized: activating the account or setting a credential.
type GuardedAction interface {
	Purpose() TokenPurpose
	Execute(ctx context.Context, account *Account, secret string) (*CredentialUpdateOutcome, error)
}

// ActResult is the outcome of an Act step.
type ActResult struct {
	State   FlowState
	Outcome *CredentialUpdateOutcome
}

// ActOption customizes a single Act invocation.
type ActOption func(*actOptions)

type actOptions struct {
	retainBinding bool
	spentToken    bool
}

// WithRetainedBinding keeps the session binding alive after a successful
// action instead of clearing it. The combined activate-and-set-password flow
// uses it so activation pre-authorizes the follow up credential set.
func WithRetainedBinding() ActOption {
	return func(o *actOptions) {
		o.retainBinding = true
	}
}

// WithSpentToken skips token consumption for an action authorized purely by
// the session binding. It only authorizes when the binding attests that an
// earlier completed action in this session already consumed the token; a
// binding created by introspection alone is refused.
func WithSpentToken() ActOption {
	return func(o *actOptions) {
		o.spentToken = true
	}
}

// Workflow drives the shared state machine behind activation, set-password,
// and activate-and-set-password. One instance serves every flow; the
// GuardedAction passed to Act decides what "completing" means.
type Workflow struct {
	issuer    NonceTokenIssuer
	directory AccountDirectory
	logger    Logger
}

// WorkflowOption customizes workflow construction.
type WorkflowOption func(*Workflow)

// WithWorkflowLogger overrides the logger used by the workflow.
func WithWorkflowLogger(logger Logger) WorkflowOption {
	return func(w *Workflow) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewWorkflow creates the recovery/activation workflow.
func NewWorkflow(issuer NonceTokenIssuer, directory AccountDirectory, opts ...WorkflowOption) *Workflow {
	w := &Workflow{
		issuer:    issuer,
		directory: directory,
		logger:    defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}

	return w
}

// Validate handles the GET on a token landing page. A binding hit short
// circuits introspection entirely, so refreshing the page is idempotent and
// does not spend the token. A fresh token is introspected and, on success,
// bound to the session.
func (w *Workflow) Validate(ctx context.Context, binding *TokenBinding, token string, purpose TokenPurpose) (FlowState, error) {
	if token == "" {
		return FlowTokenInvalid, nil
	}

	if binding.Matches(token) {
		w.logger.Debug("nonce found in the session binding")
		return FlowTokenValidated, nil
	}

	claims, err := w.issuer.Introspect(ctx, token, purpose)
	if err != nil {
		if IsInvalidToken(err) {
			return FlowTokenInvalid, nil
		}
		return FlowTokenInvalid, err
	}

	if claims.AccountID == "" {
		w.logger.Info("nonce exists but carries no account id, it cannot authorize the flow")
		return FlowTokenInvalid, nil
	}

	binding.Bind(token, claims.AccountID)
	w.logger.Debug("nonce accepted and bound to the session")

	return FlowTokenValidated, nil
}

// Act handles the POST submitting the guarded action. Authorization comes
// from the session binding; the nonce is atomically consumed before the
// mutation so two racers on the same token cannot both succeed, and released
// again if the action is rejected without a state change.
func (w *Workflow) Act(ctx context.Context, binding *TokenBinding, action GuardedAction, secret string, opts ...ActOption) (*ActResult, error) {
	options := &actOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}

	var token, accountID string
	var ok bool

	if options.spentToken {
		// authorization by binding alone requires the spent attestation, an
		// introspect-only binding must not bypass consumption
		token, accountID, ok = binding.ResolveSpent()
	} else {
		token, accountID, ok = binding.Resolve()
	}
	if !ok {
		w.logger.Debug("no valid nonce binding found in the session")
		return &ActResult{State: FlowTokenInvalid, Outcome: OutcomeInvalidToken()}, nil
	}

	if !options.spentToken {
		if _, err := w.issuer.Consume(ctx, token, action.Purpose()); err != nil {
			if IsInvalidToken(err) {
				return &ActResult{State: FlowTokenInvalid, Outcome: OutcomeInvalidToken()}, nil
			}
			return nil, err
		}
	}

	account, err := w.directory.FindByID(ctx, accountID)
	if err != nil {
		if IsAccountNotFound(err) {
			return &ActResult{State: FlowTokenInvalid, Outcome: OutcomeInvalidAccount()}, nil
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load account for guarded action")
	}

	outcome, err := action.Execute(ctx, account, secret)
	if err != nil {
		w.release(ctx, token, options)
		return nil, err
	}

	if !outcome.Accepted() {
		// no state changed, give the token back so the user can retry
		w.release(ctx, token, options)
		return &ActResult{State: FlowTokenValidated, Outcome: outcome}, nil
	}

	if options.retainBinding {
		// the retained binding attests the consumption, authorizing the
		// follow up step without a second token spend
		binding.BindSpent(token, accountID)
	} else {
		binding.Clear()
	}

	return &ActResult{State: FlowActionCompleted, Outcome: outcome}, nil
}

func (w *Workflow) release(ctx context.Context, token string, options *actOptions) {
	if options.spentToken {
		return
	}
	if err := w.issuer.Release(ctx, token); err != nil {
		w.logger.Warn("failed to release nonce after rejected action: %v", err)
	}
}

// ActivateAction marks the bound account active.
type ActivateAction struct {
	directory AccountDirectory
}

// NewActivateAction creates the activation capability.
func NewActivateAction(directory AccountDirectory) *ActivateAction {
	return &ActivateAction{directory: directory}
}

// Purpose pins activation tokens to this action.
func (a *ActivateAction) Purpose() TokenPurpose { return PurposeActivation }

// Execute transitions the account to active. The secret argument is unused.
func (a *ActivateAction) Execute(ctx context.Context, account *Account, _ string) (*CredentialUpdateOutcome, error) {
	if _, err := a.directory.Activate(ctx, account.ID.String()); err != nil {
		if IsAccountNotFound(err) {
			return OutcomeInvalidAccount(), nil
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to activate account")
	}
	return OutcomeAccepted(), nil
}

// SetCredentialAction updates the bound account's credential through the
// credential store and flips the account's credential flag on acceptance.
type SetCredentialAction struct {
	directory   AccountDirectory
	credentials CredentialStore
	purpose     TokenPurpose
}

// NewSetCredentialAction creates the credential update capability. The
// purpose is PurposeSetPassword for the standalone flow and
// PurposeActivation when it runs as the tail of activate-and-set-password.
func NewSetCredentialAction(directory AccountDirectory, credentials CredentialStore, purpose TokenPurpose) *SetCredentialAction {
	return &SetCredentialAction{
		directory:   directory,
		credentials: credentials,
		purpose:     purpose,
	}
}

// Purpose pins credential tokens to this action.
func (a *SetCredentialAction) Purpose() TokenPurpose { return a.purpose }

// Execute runs the credential update and maps the store outcome, filtering
// reasons that would reveal whether the subject exists.
func (a *SetCredentialAction) Execute(ctx context.Context, account *Account, secret string) (*CredentialUpdateOutcome, error) {
	outcome, err := a.credentials.UpdateCredential(ctx, account.ID.String(), secret)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "credential store failed during update")
	}

	if !outcome.Accepted() {
		return &CredentialUpdateOutcome{
			Status:  outcome.Status,
			Reasons: outcome.FilteredReasons(),
		}, nil
	}

	if err := a.directory.MarkCredentialSet(ctx, account.ID.String()); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to flag credential as set")
	}

	return outcome, nil
}
