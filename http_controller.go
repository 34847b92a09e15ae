package accounts

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-router/flash"
)

// GetRouterSession retrieves the session that ProtectedRoute stored under
// the given context key.
func GetRouterSession(c router.Context, key string) (Session, error) {
	val := c.Locals(key)
	if val == nil {
		return nil, ErrUnableToFindSession
	}

	session, ok := val.(Session)
	if session == nil || !ok {
		return nil, ErrUnableToDecodeSession
	}

	return session, nil
}

// RegisterAccountRoutes mounts the public account endpoints.
func RegisterAccountRoutes[T any](app router.Router[T], opts ...AccountsControllerOption) {

	controller := NewAccountsController(opts...)

	app.
		Get(controller.Routes.Login,
			controller.LoginShow,
		).
		SetName("sign-in.get")

	app.
		Post(
			controller.Routes.Login,
			// limitReq,
			controller.LoginPost,
		).
		SetName("sign-in.post")

	app.Get(controller.Routes.Logout, controller.LogOut).SetName("sign-out.get")

	app.Get(controller.Routes.Register, controller.RegistrationShow).
		SetName("register.get")
	app.Post(controller.Routes.Register, controller.RegistrationCreate).
		SetName("register.post")

	app.Get(fmt.Sprintf("%s/:uid/:token", controller.Routes.Activate), controller.ActivateAccount).
		SetName("activate.get")

	app.Get(controller.Routes.PasswordReset, controller.PasswordResetGet).
		SetName("pwd-reset.get")
	app.Post(controller.Routes.PasswordReset, controller.PasswordResetPost).
		SetName("pwd-reset.post")

	app.Get(fmt.Sprintf("%s/:uid/:token", controller.Routes.PasswordReset), controller.PasswordResetForm).
		SetName("pwd-reset-do.get")
	app.Post(fmt.Sprintf("%s/:uid/:token", controller.Routes.PasswordReset), controller.PasswordResetExecute).
		SetName("pwd-reset-do.post")
}

// RegisterProfileRoutes mounts the endpoints that require a session. The
// caller supplies the auth middleware, typically RouteAuthenticator's
// ProtectedRoute.
func RegisterProfileRoutes[T any](app router.Router[T], protected router.MiddlewareFunc, opts ...AccountsControllerOption) {

	controller := NewAccountsController(opts...)

	app.Get(controller.Routes.Profile, protected(controller.ProfileShow)).
		SetName("profile.get")
	app.Post(controller.Routes.Profile, protected(controller.ProfileUpdate)).
		SetName("profile.post")

	app.Get(controller.Routes.PasswordChange, protected(controller.PasswordChangeShow)).
		SetName("pwd-change.get")
	app.Post(controller.Routes.PasswordChange, protected(controller.PasswordChangePost)).
		SetName("pwd-change.post")

	app.Post(controller.Routes.AccountDelete, protected(controller.AccountDelete)).
		SetName("account-delete.post")
}

type AccountsControllerRoutes struct {
	Login          string
	Logout         string
	Register       string
	Activate       string
	PasswordReset  string
	PasswordChange string
	Profile        string
	AccountDelete  string
}

type AccountsControllerViews struct {
	Login          string
	Logout         string
	Register       string
	Activate       string
	PasswordReset  string
	PasswordChange string
	Profile        string
}

type AccountsController struct {
	Debug        bool
	Logger       Logger
	Repo         RepositoryManager
	Tokens       TokenService
	Notifier     Notifier
	BaseURL      string
	ContextKey   string
	Routes       *AccountsControllerRoutes
	Views        *AccountsControllerViews
	Auther       HTTPAuthenticator
	ErrorHandler router.ErrorHandler
}

type AccountsControllerOption func(*AccountsController) *AccountsController

func NewAccountsController(opts ...AccountsControllerOption) *AccountsController {
	c := &AccountsController{
		Logger:       defLogger{},
		ErrorHandler: defaultErrHandler,
		ContextKey:   "accounts:session",
		Routes: &AccountsControllerRoutes{
			Login:          "/login",
			Logout:         "/logout",
			Register:       "/register",
			Activate:       "/activate",
			PasswordReset:  "/password-reset",
			PasswordChange: "/password-change",
			Profile:        "/profile",
			AccountDelete:  "/account/delete",
		},
		Views: &AccountsControllerViews{
			Login:          "login",
			Logout:         "logout",
			Register:       "register",
			Activate:       "activate",
			PasswordReset:  "password_reset",
			PasswordChange: "password_change",
			Profile:        "profile",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in accounts controller...")
	}

	if c.Auther == nil {
		panic("Missing HTTPAuthenticator in accounts controller...")
	}

	if c.Tokens == nil {
		panic("Missing TokenService in accounts controller...")
	}

	return c
}

func (a *AccountsController) LoginShow(ctx router.Context) error {
	return ctx.Render(a.Views.Login, router.ViewContext{
		"errors": nil,
		"record": nil,
	})
}

// LoginRequest payload
type LoginRequest struct {
	Email      string `form:"email" json:"email"`
	Password   string `form:"password" json:"password"`
	RememberMe bool   `form:"remember_me" json:"remember_me"`
}

// GetEmail returns the login email
func (r LoginRequest) GetEmail() string {
	return r.Email
}

// GetPassword will return the password
func (r LoginRequest) GetPassword() string {
	return r.Password
}

// GetExtendedSession reports whether remember me was checked
func (r LoginRequest) GetExtendedSession() bool {
	return r.RememberMe
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&r.Password,
			validation.Required,
		),
	)
}

func (a *AccountsController) LoginPost(ctx router.Context) error {
	payload := new(LoginRequest)
	errs := map[string]string{}

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("login parse payload: ", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render(a.Views.Login, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	if a.Debug {
		fmt.Println("======= ACCOUNT LOGIN ======")
		fmt.Println(print.MaybePrettyJSON(payload))
		fmt.Println("============================")
	}

	if err := a.Auther.Login(ctx, payload); err != nil {
		errs["authentication"] = loginErrorMessage(err)
		return ctx.Render(a.Views.Login, router.ViewContext{
			"errors": errs,
			"record": payload,
		})
	}

	redirect := a.Auther.GetRedirect(ctx, "/")

	return ctx.Redirect(redirect, router.StatusSeeOther)
}

// loginErrorMessage keeps the unknown-email and wrong-password cases
// indistinguishable while letting confirmable states explain themselves.
func loginErrorMessage(err error) string {
	switch {
	case IsEmailNotConfirmedError(err):
		return "Confirm your email address before signing in"
	case IsAccountDisabledError(err):
		return "This account has been blocked"
	default:
		return "Invalid email or password"
	}
}

func (a *AccountsController) LogOut(ctx router.Context) error {
	a.Auther.Logout(ctx)
	return ctx.Redirect("/", router.StatusTemporaryRedirect)
}

func (a *AccountsController) RegistrationShow(ctx router.Context) error {
	return ctx.Render(a.Views.Register, router.ViewContext{
		"errors": map[string]string{},
		"record": RegisterAccountMessage{},
	})
}

// RegistrationCreatePayload is the form payload
type RegistrationCreatePayload struct {
	FirstName       string `form:"first_name" json:"first_name"`
	LastName        string `form:"last_name" json:"last_name"`
	Email           string `form:"email" json:"email"`
	Phone           string `form:"phone_number" json:"phone_number"`
	Address         string `form:"address" json:"address"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
	TermsAccepted   bool   `form:"terms_accepted" json:"terms_accepted"`
}

func (a *AccountsController) RegistrationCreate(ctx router.Context) error {
	payload := new(RegistrationCreatePayload)

	if err := ctx.Bind(payload); err != nil {
		errs := map[string]string{}
		errs["form"] = "Failed to parse form"
		a.Logger.Error("register account parse payload: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.Register, router.ViewContext{
			"errors": errs,
			"record": payload,
		})
	}

	req := RegisterAccountMessage{
		FirstName:       payload.FirstName,
		LastName:        payload.LastName,
		Email:           payload.Email,
		Phone:           payload.Phone,
		Address:         payload.Address,
		Password:        payload.Password,
		ConfirmPassword: payload.ConfirmPassword,
		TermsAccepted:   payload.TermsAccepted,
	}

	registerAccount := NewRegisterAccountHandler(a.Repo, a.Tokens, a.Notifier, a.BaseURL)
	if err := registerAccount.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("register account error: ", "error", err)

		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(a.Views.Register, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Check your inbox for the confirmation link",
	}).Redirect("/", fiber.StatusSeeOther)
}

func (a *AccountsController) ActivateAccount(ctx router.Context) error {
	req := ActivateAccountMessage{
		EncodedID: ctx.Param("uid", ""),
		Token:     ctx.Param("token", ""),
	}

	activate := NewActivateAccountHandler(a.Repo, a.Tokens)
	if err := activate.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("account activation error: ", "error", err)
		return ctx.Render(a.Views.Activate, router.ViewContext{
			"activated": false,
			"errors": map[string]string{
				"activation": "The confirmation link is invalid or has already been used",
			},
		})
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Your email is confirmed, you can sign in now",
	}).Render(a.Views.Activate, router.ViewContext{
		"activated": true,
		"errors":    map[string]string{},
	})
}

func (a *AccountsController) PasswordResetGet(ctx router.Context) error {
	return ctx.Render(a.Views.PasswordReset, router.ViewContext{
		"errors":    nil,
		"submitted": false,
	})
}

// PasswordResetRequestPayload holds values for password reset
type PasswordResetRequestPayload struct {
	Email string `form:"email" json:"email"`
}

func (a *AccountsController) PasswordResetPost(ctx router.Context) error {
	errs := map[string]string{}
	payload := new(PasswordResetRequestPayload)

	if err := ctx.Bind(payload); err != nil {
		errs["form"] = "Failed to parse form"
		a.Logger.Error("password reset parse payload: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.PasswordReset, router.ViewContext{
			"errors": errs,
			"record": payload,
		})
	}

	var res *InitializePasswordResetResponse

	req := InitializePasswordResetMessage{
		Email: payload.Email,
		OnResponse: func(resp *InitializePasswordResetResponse) {
			res = resp
		},
	}

	initPwdReset := NewInitializePasswordResetHandler(a.Repo, a.Tokens, a.Notifier, a.BaseURL)

	if err := initPwdReset.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("password reset error: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(a.Views.PasswordReset, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	if a.Debug {
		fmt.Println("================")
		fmt.Println(print.MaybePrettyJSON(res))
		fmt.Println("================")
	}

	// The rendered outcome is the same whether or not the email mapped to
	// an account.
	return ctx.Render(a.Views.PasswordReset, router.ViewContext{
		"errors":    errs,
		"submitted": true,
		"email":     payload.Email,
	})
}

func (a *AccountsController) PasswordResetForm(ctx router.Context) error {
	return ctx.Render(a.Views.PasswordReset, router.ViewContext{
		"errors": map[string]string{},
		"reset": map[string]string{
			"uid":   ctx.Param("uid", ""),
			"token": ctx.Param("token", ""),
		},
	})
}

// PasswordResetVerifyPayload holds values for password reset
type PasswordResetVerifyPayload struct {
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

func (a *AccountsController) PasswordResetExecute(ctx router.Context) error {
	uid := ctx.Param("uid", "")
	token := ctx.Param("token", "")

	errs := map[string]string{}
	payload := new(PasswordResetVerifyPayload)

	if err := ctx.Bind(payload); err != nil {
		errs["form"] = "Failed to parse form"
		a.Logger.Error("password reset parse payload: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.PasswordReset, router.ViewContext{
			"errors": errs,
			"record": payload,
		})
	}

	input := FinalizePasswordResetMessage{
		EncodedID:       uid,
		Token:           token,
		Password:        payload.Password,
		ConfirmPassword: payload.ConfirmPassword,
	}

	finalizePwdReset := NewFinalizePasswordResetHandler(a.Repo, a.Tokens)

	if err := finalizePwdReset.Execute(ctx.Context(), input); err != nil {
		if IsInvalidTokenError(err) {
			errs["reset"] = "The recovery link is invalid or has expired"
		} else {
			errs["validation"] = err.Error()
		}
		return ctx.Render(a.Views.PasswordReset, router.ViewContext{
			"errors":     errs,
			"validation": FormatValidationErrorToMap(err),
			"reset": map[string]string{
				"uid":   uid,
				"token": token,
			},
		})
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Your password was changed, sign in with the new one",
	}).Redirect(a.Routes.Login, fiber.StatusSeeOther)
}

func (a *AccountsController) ProfileShow(ctx router.Context) error {
	account, err := a.accountFromRequest(ctx)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.Render(a.Views.Profile, router.ViewContext{
		"errors": map[string]string{},
		"record": account,
	})
}

// ProfileUpdatePayload is the profile edit form payload
type ProfileUpdatePayload struct {
	FirstName   string `form:"first_name" json:"first_name"`
	LastName    string `form:"last_name" json:"last_name"`
	Phone       string `form:"phone_number" json:"phone_number"`
	Address     string `form:"address" json:"address"`
	DateOfBirth string `form:"date_of_birth" json:"date_of_birth"`
}

func (a *AccountsController) ProfileUpdate(ctx router.Context) error {
	account, err := a.accountFromRequest(ctx)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	payload := new(ProfileUpdatePayload)
	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("profile update parse payload: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.Profile, router.ViewContext{
			"errors": map[string]string{"form": "Failed to parse form"},
			"record": account,
		})
	}

	dob, err := parseDateOfBirth(payload.DateOfBirth)
	if err != nil {
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(a.Views.Profile, router.ViewContext{
			"errors": map[string]string{"date_of_birth": "Use the YYYY-MM-DD format"},
			"record": account,
		})
	}

	var res *UpdateProfileResponse

	req := UpdateProfileMessage{
		AccountID: account.ID,
		Profile: ProfileData{
			FirstName:   payload.FirstName,
			LastName:    payload.LastName,
			PhoneNumber: payload.Phone,
			Address:     payload.Address,
			DateOfBirth: dob,
		},
		OnResponse: func(resp *UpdateProfileResponse) {
			res = resp
		},
	}

	updateProfile := NewUpdateProfileHandler(a.Repo)
	if err := updateProfile.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("profile update error: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(a.Views.Profile, router.ViewContext{
			"record":     account,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Profile updated",
	}).Render(a.Views.Profile, router.ViewContext{
		"errors": map[string]string{},
		"record": res.Account,
	})
}

func (a *AccountsController) PasswordChangeShow(ctx router.Context) error {
	return ctx.Render(a.Views.PasswordChange, router.ViewContext{
		"errors": map[string]string{},
	})
}

// PasswordChangePayload is the authenticated password change form payload
type PasswordChangePayload struct {
	CurrentPassword string `form:"current_password" json:"current_password"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

func (a *AccountsController) PasswordChangePost(ctx router.Context) error {
	account, err := a.accountFromRequest(ctx)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	payload := new(PasswordChangePayload)
	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("password change parse payload: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.PasswordChange, router.ViewContext{
			"errors": map[string]string{"form": "Failed to parse form"},
		})
	}

	req := ChangePasswordMessage{
		AccountID:       account.ID,
		CurrentPassword: payload.CurrentPassword,
		Password:        payload.Password,
		ConfirmPassword: payload.ConfirmPassword,
	}

	changePassword := NewChangePasswordHandler(a.Repo)
	if err := changePassword.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("password change error: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(a.Views.PasswordChange, router.ViewContext{
			"validation": FormatValidationErrorToMap(err),
		})
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Password changed",
	}).Redirect(a.Routes.Profile, fiber.StatusSeeOther)
}

// AccountDeletePayload is the account deletion form payload
type AccountDeletePayload struct {
	Password  string `form:"password" json:"password"`
	Confirmed bool   `form:"confirmed" json:"confirmed"`
}

func (a *AccountsController) AccountDelete(ctx router.Context) error {
	account, err := a.accountFromRequest(ctx)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	payload := new(AccountDeletePayload)
	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("account delete parse payload: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.Profile, router.ViewContext{
			"errors": map[string]string{"form": "Failed to parse form"},
			"record": account,
		})
	}

	req := DeleteAccountMessage{
		AccountID: account.ID,
		Password:  payload.Password,
		Confirmed: payload.Confirmed,
	}

	deleteAccount := NewDeleteAccountHandler(a.Repo)
	if err := deleteAccount.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("account delete error: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(a.Views.Profile, router.ViewContext{
			"record":     account,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	a.Auther.Logout(ctx)

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Your account was deleted",
	}).Redirect("/", fiber.StatusSeeOther)
}

// accountFromRequest resolves the session stored by the auth middleware
// into the current account record.
func (a *AccountsController) accountFromRequest(ctx router.Context) (*Account, error) {
	session, err := GetRouterSession(ctx, a.ContextKey)
	if err != nil {
		return nil, err
	}

	id, err := session.GetAccountUUID()
	if err != nil {
		return nil, err
	}

	return a.Repo.Accounts().GetByID(ctx.Context(), id.String())
}

// parseDateOfBirth accepts an empty value or a YYYY-MM-DD date.
func parseDateOfBirth(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	dob, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, err
	}
	return &dob, nil
}

func defaultErrHandler(c router.Context, err error) error {
	return c.Render("errors/500", router.ViewContext{
		"message": err.Error(),
	})
}
