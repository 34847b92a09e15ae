package accounts

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
)

// InitializePasswordResetMessage carries a recovery request. The response
// shape is identical whether or not the email maps to a resettable account;
// callers learn nothing about account existence.
type InitializePasswordResetMessage struct {
	Email      string `json:"email"`
	OnResponse func(resp *InitializePasswordResetResponse)
}

func (e InitializePasswordResetMessage) Type() string { return "account.password_reset" }

// Validate runs the field rules.
func (e InitializePasswordResetMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Email, validation.Required, is.Email),
	)
}

type InitializePasswordResetResponse struct {
	Email   string
	Success bool
}

// InitializePasswordResetHandler issues a reset token and mails a recovery
// link for confirmed, active accounts. Unknown, unconfirmed, and disabled
// accounts produce the exact same outcome with nothing sent.
type InitializePasswordResetHandler struct {
	repo     RepositoryManager
	tokens   TokenService
	notifier Notifier
	baseURL  string
	logger   Logger
}

func NewInitializePasswordResetHandler(repo RepositoryManager, tokens TokenService, notifier Notifier, baseURL string) *InitializePasswordResetHandler {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &InitializePasswordResetHandler{
		repo:     repo,
		tokens:   tokens,
		notifier: notifier,
		baseURL:  baseURL,
		logger:   defLogger{},
	}
}

// WithLogger overrides the logger used by the handler.
func (h *InitializePasswordResetHandler) WithLogger(logger Logger) *InitializePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *InitializePasswordResetHandler) Execute(ctx context.Context, event InitializePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, event InitializePasswordResetMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password reset request")
	}

	email := NormalizeEmail(event.Email)

	respond := func() {
		if event.OnResponse != nil {
			event.OnResponse(&InitializePasswordResetResponse{
				Email:   email,
				Success: true,
			})
		}
	}

	account, err := h.repo.Accounts().GetByEmail(ctx, email)
	if err != nil {
		if goerrors.IsNotFound(err) {
			respond()
			return nil
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve account for password reset")
	}

	// Pending or disabled accounts cannot reset a password; report the same
	// success-shaped outcome as an unknown email.
	if !account.CanLogin() {
		respond()
		return nil
	}

	token, err := h.tokens.Issue(account, TokenPurposeReset)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to issue password reset token")
	}

	link := PasswordResetLink(h.baseURL, account.ID, token)
	subject, textBody, htmlBody := passwordResetEmail(account, link)

	if err := h.notifier.Send(ctx, account.Email, subject, textBody, htmlBody); err != nil {
		// Nothing was mutated, there is nothing to compensate. The caller
		// still gets the generic outcome; the failure is only logged.
		h.logger.Error("password reset mail delivery failed", "email", account.Email, "error", err)
	}

	respond()
	return nil
}
