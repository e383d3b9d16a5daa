package flows

import (
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-router/flash"
)

// Default route paths
const (
	RouteLogin           = "/login"
	RouteRegister        = "/register"
	RouteForgotPassword  = "/forgot-password"
	RouteForgotAccountID = "/forgot-account-id"
	RouteActivateLanding = "/activate/landing"
	RouteActivate        = "/activate"
	RouteActivateAndSet  = "/activate-and-set"
	RouteSetPassword     = "/set-password"
)

const tokenQueryParam = "token"

// RegisterFlowRoutes wires every flow endpoint into the router.
func RegisterFlowRoutes[T any](app router.Router[T], opts ...FlowControllerOption) {

	controller := NewFlowController(opts...)

	app.Get(controller.Routes.Login, controller.LoginShow).
		SetName("login.get")
	app.Post(controller.Routes.Login, controller.LoginPost).
		SetName("login.post")

	app.Get(controller.Routes.Register, controller.RegistrationShow).
		SetName("register.get")
	app.Post(controller.Routes.Register, controller.RegistrationCreate).
		SetName("register.post")

	app.Get(controller.Routes.ForgotPassword, controller.ForgotPasswordShow).
		SetName("forgot-password.get")
	app.Post(controller.Routes.ForgotPassword, controller.ForgotPasswordPost).
		SetName("forgot-password.post")

	app.Get(controller.Routes.ForgotAccountID, controller.ForgotAccountIDShow).
		SetName("forgot-account-id.get")
	app.Post(controller.Routes.ForgotAccountID, controller.ForgotAccountIDPost).
		SetName("forgot-account-id.post")

	app.Get(controller.Routes.ActivateLanding, controller.ActivationLanding).
		SetName("activate-landing.get")

	app.Get(controller.Routes.Activate, controller.ActivationShow).
		SetName("activate.get")
	app.Post(controller.Routes.Activate, controller.ActivationPost).
		SetName("activate.post")

	app.Get(controller.Routes.ActivateAndSet, controller.ActivateAndSetShow).
		SetName("activate-and-set.get")
	app.Post(controller.Routes.ActivateAndSet, controller.ActivateAndSetPost).
		SetName("activate-and-set.post")

	app.Get(controller.Routes.SetPassword, controller.SetPasswordShow).
		SetName("set-password.get")
	app.Post(controller.Routes.SetPassword, controller.SetPasswordPost).
		SetName("set-password.post")
}

type FlowControllerRoutes struct {
	Login           string
	Register        string
	ForgotPassword  string
	ForgotAccountID string
	ActivateLanding string
	Activate        string
	ActivateAndSet  string
	SetPassword     string
}

type FlowControllerViews struct {
	Login           string
	Register        string
	ForgotPassword  string
	ForgotAccountID string
	ActivateLanding string
	Activate        string
	ActivateAndSet  string
	SetPassword     string
	InvalidToken    string
}

type FlowController struct {
	Debug        bool
	Logger       Logger
	Repo         RepositoryManager
	Issuer       NonceTokenIssuer
	Notifier     Notifier
	Credentials  CredentialStore
	Config       Config
	Workflow     *Workflow
	Auther       *Authenticator
	Sessions     SessionProvider
	Routes       *FlowControllerRoutes
	Views        *FlowControllerViews
	ErrorHandler router.ErrorHandler
}

type FlowControllerOption func(*FlowController) *FlowController

func NewFlowController(opts ...FlowControllerOption) *FlowController {
	c := &FlowController{
		Logger:       defLogger{},
		ErrorHandler: defaultErrHandler,
		Routes: &FlowControllerRoutes{
			Login:           RouteLogin,
			Register:        RouteRegister,
			ForgotPassword:  RouteForgotPassword,
			ForgotAccountID: RouteForgotAccountID,
			ActivateLanding: RouteActivateLanding,
			Activate:        RouteActivate,
			ActivateAndSet:  RouteActivateAndSet,
			SetPassword:     RouteSetPassword,
		},
		Views: &FlowControllerViews{
			Login:           "login",
			Register:        "register",
			ForgotPassword:  "forgot_password",
			ForgotAccountID: "forgot_account_id",
			ActivateLanding: "activate_landing",
			Activate:        "activate",
			ActivateAndSet:  "activate_and_set",
			SetPassword:     "set_password",
			InvalidToken:    "invalid_token",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in flow controller...")
	}

	if c.Issuer == nil {
		panic("Missing NonceTokenIssuer in flow controller...")
	}

	if c.Config == nil {
		panic("Missing Config in flow controller...")
	}

	c.Notifier = normalizeNotifier(c.Notifier)

	if c.Credentials == nil {
		c.Credentials = NewBcryptCredentialStore(c.Repo.Accounts(), WithCredentialStoreLogger(c.Logger))
	}

	if c.Workflow == nil {
		c.Workflow = NewWorkflow(c.Issuer, c.Repo.Accounts(), WithWorkflowLogger(c.Logger))
	}

	if c.Auther == nil {
		c.Auther = NewAuthenticator(c.Repo.Accounts(), c.Credentials).WithLogger(c.Logger)
	}

	if c.Sessions == nil {
		provider := NewMemorySessionProvider()
		c.Sessions = provider.Resolve
	}

	return c
}

func (f *FlowController) binding(ctx router.Context) *TokenBinding {
	return NewTokenBinding(f.Sessions(ctx))
}

func (f *FlowController) preferences(ctx router.Context) *UserPreferences {
	return NewUserPreferences(f.Sessions(ctx))
}

func (f *FlowController) LoginShow(ctx router.Context) error {
	return ctx.Render(f.Views.Login, router.ViewContext{
		"errors":   nil,
		"username": f.preferences(ctx).Username(),
	})
}

// LoginRequest payload
type LoginRequest struct {
	Identifier string `form:"identifier" json:"identifier"`
	Password   string `form:"password" json:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Identifier, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

func (f *FlowController) LoginPost(ctx router.Context) error {
	payload := new(LoginRequest)
	errs := map[string]string{}

	if err := ctx.Bind(payload); err != nil {
		f.Logger.Error("login parse payload: %v", err)
		return f.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render(f.Views.Login, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	if f.Debug {
		fmt.Println("======= FLOW LOGIN ======")
		fmt.Println(print.MaybePrettyJSON(payload))
		fmt.Println("=========================")
	}

	account, err := f.Auther.Login(ctx.Context(), payload.Identifier, payload.Password)
	if err != nil {
		errs["authentication"] = "Incorrect username or password"
		return ctx.Render(f.Views.Login, router.ViewContext{
			"errors":   errs,
			"record":   payload,
			"username": payload.Identifier,
		})
	}

	f.preferences(ctx).SaveUsername(account.Username)

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Welcome back",
	}).Redirect("/", fiber.StatusSeeOther)
}

func (f *FlowController) RegistrationShow(ctx router.Context) error {
	return ctx.Render(f.Views.Register, router.ViewContext{
		"errors": map[string]string{},
		"record": RegisterAccountMessage{},
	})
}

// RegistrationCreatePayload is the form payload
type RegistrationCreatePayload struct {
	FirstName       string `form:"first_name" json:"first_name"`
	LastName        string `form:"last_name" json:"last_name"`
	Username        string `form:"username" json:"username"`
	Email           string `form:"email" json:"email"`
	Phone           string `form:"phone_number" json:"phone_number"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will validate the payload
func (r RegistrationCreatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FirstName, validation.Length(1, 200)),
		validation.Field(&r.LastName, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(DefaultMinPasswordLength, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (f *FlowController) RegistrationCreate(ctx router.Context) error {
	payload := new(RegistrationCreatePayload)

	if err := ctx.Bind(payload); err != nil {
		f.Logger.Error("register account parse payload: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(f.Views.Register, router.ViewContext{
			"errors": map[string]string{"form": "Failed to parse form"},
			"record": payload,
		})
	}

	if err := payload.Validate(); err != nil {
		f.Logger.Error("register account validate payload: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(f.Views.Register, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	var res *RegisterAccountResponse

	req := RegisterAccountMessage{
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
		Username:  payload.Username,
		Email:     payload.Email,
		Phone:     payload.Phone,
		Password:  payload.Password,
		OnResponse: func(resp *RegisterAccountResponse) {
			res = resp
		},
	}

	register := NewRegisterAccountHandler(f.Repo, f.Credentials, f.Issuer, f.Notifier, f.Config, f.Logger)
	if err := register.Execute(ctx.Context(), req); err != nil {
		f.Logger.Error("register account error: %v", err)

		message := "Registration failed"
		if IsDuplicateAccount(err) {
			message = "An account with that identifier already exists"
		}

		return flash.WithError(ctx, router.ViewContext{
			"error_message":  message,
			"system_message": message,
		}).Render(f.Views.Register, router.ViewContext{
			"record": payload,
			"errors": []string{message},
		})
	}

	if res != nil && res.Outcome != nil && !res.Outcome.Accepted() {
		return ctx.Render(f.Views.Register, router.ViewContext{
			"record":  payload,
			"reasons": res.Outcome.FilteredReasons(),
		})
	}

	if f.Debug {
		fmt.Println("======= FLOW REGISTER ======")
		fmt.Println(print.MaybePrettyJSON(res))
		fmt.Println("============================")
	}

	f.preferences(ctx).SaveUsername(req.Username)

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Check your email to activate your account",
	}).Redirect(f.Routes.Login, fiber.StatusSeeOther)
}

func (f *FlowController) ForgotPasswordShow(ctx router.Context) error {
	return ctx.Render(f.Views.ForgotPassword, router.ViewContext{
		"errors":   nil,
		"username": f.preferences(ctx).Username(),
	})
}

// ForgotPasswordPayload holds the recovery request form
type ForgotPasswordPayload struct {
	Identifier string `form:"identifier" json:"identifier"`
}

// Validate will validate the payload
func (r ForgotPasswordPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Identifier, validation.Required, validation.Length(1, 100)),
	)
}

func (f *FlowController) ForgotPasswordPost(ctx router.Context) error {
	payload := new(ForgotPasswordPayload)

	if err := ctx.Bind(payload); err != nil {
		f.Logger.Error("forgot password parse payload: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(f.Views.ForgotPassword, router.ViewContext{
			"errors": map[string]string{"form": "Failed to parse form"},
			"record": payload,
		})
	}

	if err := payload.Validate(); err != nil {
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(f.Views.ForgotPassword, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	var res *InitializeRecoveryResponse

	req := InitializeRecoveryMessage{
		Identifier: payload.Identifier,
		OnResponse: func(resp *InitializeRecoveryResponse) {
			res = resp
		},
	}

	recovery := NewInitializeRecoveryHandler(f.Repo, f.Issuer, f.Notifier, f.Config, f.Logger)
	if err := recovery.Execute(ctx.Context(), req); err != nil {
		f.Logger.Error("forgot password error: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  "Could not process the request",
			"system_message": "Could not process the request",
		}).Render(f.Views.ForgotPassword, router.ViewContext{
			"record": payload,
		})
	}

	// the rendered response is the same whether or not an account matched
	return ctx.Render(f.Views.ForgotPassword, router.ViewContext{
		"sent":       true,
		"identifier": res.MaskedIdentifier,
	})
}

func (f *FlowController) ForgotAccountIDShow(ctx router.Context) error {
	return ctx.Render(f.Views.ForgotAccountID, router.ViewContext{
		"errors": nil,
	})
}

// ForgotAccountIDPayload holds the account id recovery form
type ForgotAccountIDPayload struct {
	Email string `form:"email" json:"email"`
}

// Validate will validate the payload
func (r ForgotAccountIDPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

func (f *FlowController) ForgotAccountIDPost(ctx router.Context) error {
	payload := new(ForgotAccountIDPayload)

	if err := ctx.Bind(payload); err != nil {
		f.Logger.Error("forgot account id parse payload: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(f.Views.ForgotAccountID, router.ViewContext{
			"errors": map[string]string{"form": "Failed to parse form"},
			"record": payload,
		})
	}

	if err := payload.Validate(); err != nil {
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(f.Views.ForgotAccountID, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	var res *ForgotAccountIDResponse

	req := ForgotAccountIDMessage{
		Email: payload.Email,
		OnResponse: func(resp *ForgotAccountIDResponse) {
			res = resp
		},
	}

	forgot := NewForgotAccountIDHandler(f.Repo, f.Notifier, f.Logger)
	if err := forgot.Execute(ctx.Context(), req); err != nil {
		f.Logger.Error("forgot account id error: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  "Could not process the request",
			"system_message": "Could not process the request",
		}).Render(f.Views.ForgotAccountID, router.ViewContext{
			"record": payload,
		})
	}

	return ctx.Render(f.Views.ForgotAccountID, router.ViewContext{
		"sent":  true,
		"email": res.MaskedEmail,
	})
}

// ActivationLanding renders an interstitial page whose only job is to turn
// the emailed GET into a user initiated POST. Mail scanners following the
// link never spend the token because the landing does not touch the issuer.
func (f *FlowController) ActivationLanding(ctx router.Context) error {
	token := ctx.Query(tokenQueryParam)
	if token == "" {
		return ctx.Render(f.Views.InvalidToken, router.ViewContext{})
	}

	return ctx.Render(f.Views.ActivateLanding, router.ViewContext{
		"token":  token,
		"action": f.Routes.Activate,
	})
}

func (f *FlowController) ActivationShow(ctx router.Context) error {
	token := ctx.Query(tokenQueryParam)

	state, err := f.Workflow.Validate(ctx.Context(), f.binding(ctx), token, PurposeActivation)
	if err != nil {
		return f.ErrorHandler(ctx, err)
	}

	if state != FlowTokenValidated {
		return ctx.Render(f.Views.InvalidToken, router.ViewContext{})
	}

	return ctx.Render(f.Views.Activate, router.ViewContext{
		"action": f.Routes.Activate,
	})
}

func (f *FlowController) ActivationPost(ctx router.Context) error {
	action := NewActivateAction(f.Repo.Accounts())

	result, err := f.Workflow.Act(ctx.Context(), f.binding(ctx), action, "")
	if err != nil {
		return f.ErrorHandler(ctx, err)
	}

	if result.State != FlowActionCompleted {
		return ctx.Render(f.Views.InvalidToken, router.ViewContext{})
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Your account is now active",
	}).Redirect(f.Routes.Login, fiber.StatusSeeOther)
}

// ActivateAndSetShow validates the token and activates the account in one
// step, keeping the session binding alive so the follow up credential POST
// is authorized without a second token spend.
//
// The page is one shot: a refresh re-submits the already consumed token and
// lands on the invalid token view even though the account is active. The
// retained binding only authorizes the credential POST, never a second GET.
func (f *FlowController) ActivateAndSetShow(ctx router.Context) error {
	token := ctx.Query(tokenQueryParam)
	binding := f.binding(ctx)

	state, err := f.Workflow.Validate(ctx.Context(), binding, token, PurposeActivation)
	if err != nil {
		return f.ErrorHandler(ctx, err)
	}

	if state != FlowTokenValidated {
		return ctx.Render(f.Views.InvalidToken, router.ViewContext{})
	}

	action := NewActivateAction(f.Repo.Accounts())

	result, err := f.Workflow.Act(ctx.Context(), binding, action, "", WithRetainedBinding())
	if err != nil {
		return f.ErrorHandler(ctx, err)
	}

	if result.State != FlowActionCompleted {
		return ctx.Render(f.Views.InvalidToken, router.ViewContext{})
	}

	return ctx.Render(f.Views.ActivateAndSet, router.ViewContext{
		"action": f.Routes.ActivateAndSet,
	})
}

// SetPasswordPayload carries the new credential
type SetPasswordPayload struct {
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will validate the payload
func (r SetPasswordPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Password, validation.Required, validation.Length(1, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (f *FlowController) ActivateAndSetPost(ctx router.Context) error {
	payload := new(SetPasswordPayload)

	if err := ctx.Bind(payload); err != nil {
		f.Logger.Error("activate and set parse payload: %v", err)
		return f.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render(f.Views.ActivateAndSet, router.ViewContext{
			"action":     f.Routes.ActivateAndSet,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	action := NewSetCredentialAction(f.Repo.Accounts(), f.Credentials, PurposeActivation)

	// the activation step on the GET already spent the token, authorization
	// comes from the retained session binding
	result, err := f.Workflow.Act(ctx.Context(), f.binding(ctx), action, payload.Password, WithSpentToken())
	if err != nil {
		return f.ErrorHandler(ctx, err)
	}

	return f.renderCredentialResult(ctx, result, f.Views.ActivateAndSet, f.Routes.ActivateAndSet)
}

func (f *FlowController) SetPasswordShow(ctx router.Context) error {
	token := ctx.Query(tokenQueryParam)

	state, err := f.Workflow.Validate(ctx.Context(), f.binding(ctx), token, PurposeSetPassword)
	if err != nil {
		return f.ErrorHandler(ctx, err)
	}

	if state != FlowTokenValidated {
		return ctx.Render(f.Views.InvalidToken, router.ViewContext{})
	}

	return ctx.Render(f.Views.SetPassword, router.ViewContext{
		"action": f.Routes.SetPassword,
	})
}

func (f *FlowController) SetPasswordPost(ctx router.Context) error {
	payload := new(SetPasswordPayload)

	if err := ctx.Bind(payload); err != nil {
		f.Logger.Error("set password parse payload: %v", err)
		return f.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render(f.Views.SetPassword, router.ViewContext{
			"action":     f.Routes.SetPassword,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	action := NewSetCredentialAction(f.Repo.Accounts(), f.Credentials, PurposeSetPassword)

	result, err := f.Workflow.Act(ctx.Context(), f.binding(ctx), action, payload.Password)
	if err != nil {
		return f.ErrorHandler(ctx, err)
	}

	return f.renderCredentialResult(ctx, result, f.Views.SetPassword, f.Routes.SetPassword)
}

func (f *FlowController) renderCredentialResult(ctx router.Context, result *ActResult, view, route string) error {
	switch result.State {
	case FlowActionCompleted:
		return flash.WithSuccess(ctx, router.ViewContext{
			"system_message": "Your password has been updated",
		}).Redirect(f.Routes.Login, fiber.StatusSeeOther)
	case FlowTokenValidated:
		// rejected without a state change, the binding survives for a retry
		return ctx.Render(view, router.ViewContext{
			"action":  route,
			"reasons": result.Outcome.FilteredReasons(),
		})
	default:
		return ctx.Render(f.Views.InvalidToken, router.ViewContext{})
	}
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}

// FormatValidationErrorToMap flattens ozzo validation errors into a form
// friendly field to message map.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			out[field] = ferr.Error()
		}
		return out
	}

	out["form"] = err.Error()
	return out
}

func defaultErrHandler(c router.Context, err error) error {
	return c.Render("errors/500", router.ViewContext{
		"message": err.Error(),
	})
}
