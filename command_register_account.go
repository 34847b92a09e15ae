package accounts

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// RegisterAccountMessage carries the registration submission. Profile
// fields are optional, everything else is required.
type RegisterAccountMessage struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Phone           string `json:"phone_number"`
	Address         string `json:"address"`
	TermsAccepted   bool   `json:"terms_accepted"`
	OnResponse      func(resp *RegisterAccountResponse)
}

func (e RegisterAccountMessage) Type() string { return "account.register" }

// Validate runs every field rule and reports all failures together.
func (e RegisterAccountMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Email, validation.Required, is.Email),
		validation.Field(&e.Password,
			validation.Required,
			validation.By(PasswordPolicyRule(e.Email, e.FirstName, e.LastName)),
		),
		validation.Field(&e.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(e.Password)),
		),
		validation.Field(&e.Phone, validation.By(PhoneRule)),
		validation.Field(&e.TermsAccepted, validation.By(RequireAssent(
			"you must accept the terms of service and the privacy policy",
		))),
	)
}

type RegisterAccountResponse struct {
	Account        *Account
	ActivationLink string
	Success        bool
}

// RegisterAccountHandler creates a pending account, issues an activation
// token, and dispatches the confirmation mail. A failed send rolls the
// account back so no orphaned pending accounts survive.
type RegisterAccountHandler struct {
	repo     RepositoryManager
	tokens   TokenService
	notifier Notifier
	baseURL  string
	logger   Logger
}

func NewRegisterAccountHandler(repo RepositoryManager, tokens TokenService, notifier Notifier, baseURL string) *RegisterAccountHandler {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &RegisterAccountHandler{
		repo:     repo,
		tokens:   tokens,
		notifier: notifier,
		baseURL:  baseURL,
		logger:   defLogger{},
	}
}

// WithLogger overrides the logger used by the handler.
func (h *RegisterAccountHandler) WithLogger(logger Logger) *RegisterAccountHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RegisterAccountHandler) Execute(ctx context.Context, event RegisterAccountMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterAccountHandler) execute(ctx context.Context, event RegisterAccountMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	fieldErrors := validation.Errors{}
	if err := event.Validate(); err != nil {
		verrs, ok := err.(validation.Errors)
		if !ok {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to validate registration payload")
		}
		for field, ferr := range verrs {
			fieldErrors[field] = ferr
		}
	}

	email := NormalizeEmail(event.Email)

	// Duplicate email is a validation failure like any other and is surfaced
	// alongside the field rules, not instead of them.
	if _, ok := fieldErrors["email"]; !ok && email != "" {
		if _, err := h.repo.Accounts().GetByEmail(ctx, email); err == nil {
			fieldErrors["email"] = duplicateEmailError(email)
		} else if !goerrors.IsNotFound(err) {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check email availability")
		}
	}

	if len(fieldErrors) > 0 {
		return goerrors.Wrap(fieldErrors, goerrors.CategoryValidation, "invalid registration payload")
	}

	phone, err := NormalizePhone(event.Phone)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid registration payload")
	}

	hash, err := HashPassword(event.Password)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	account := &Account{
		Email:        email,
		PasswordHash: hash,
		FirstName:    event.FirstName,
		LastName:     event.LastName,
		PhoneNumber:  phone,
		Address:      event.Address,
		// pending until the activation flow proves email ownership
		IsActive:       false,
		EmailConfirmed: false,
	}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		created, err := h.repo.Accounts().CreateTx(ctx, tx, account)
		if err != nil {
			if IsDuplicateEmail(err) {
				// lost a concurrent registration race
				return goerrors.Wrap(
					validation.Errors{"email": duplicateEmailError(email)},
					goerrors.CategoryValidation,
					"invalid registration payload",
				)
			}
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create account")
		}
		account = created
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "account registration transaction failed")
	}

	token, err := h.tokens.Issue(account, TokenPurposeActivate)
	if err != nil {
		h.compensate(ctx, account)
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to issue activation token")
	}

	link := ActivationLink(h.baseURL, account.ID, token)
	subject, textBody, htmlBody := activationEmail(account, link)

	if err := h.notifier.Send(ctx, account.Email, subject, textBody, htmlBody); err != nil {
		h.logger.Error("activation mail delivery failed", "email", account.Email, "error", err)
		h.compensate(ctx, account)
		return ErrRegistrationNotCompleted
	}

	if event.OnResponse != nil {
		event.OnResponse(&RegisterAccountResponse{
			Account:        account,
			ActivationLink: link,
			Success:        true,
		})
	}

	return nil
}

// compensate hard deletes the half-created account. Registration is not
// retried automatically. The send failure may have been the request
// deadline itself, so the rollback runs on its own deadline, detached
// from the caller's cancellation.
func (h *RegisterAccountHandler) compensate(ctx context.Context, account *Account) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second*5)
	defer cancel()

	if err := h.repo.Accounts().HardDelete(ctx, account); err != nil {
		h.logger.Error("failed to roll back pending account", "id", account.ID.String(), "error", err)
	}
}
