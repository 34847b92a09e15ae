package accounts

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// FinalizePasswordResetMessage carries the confirmation link segments plus
// the replacement password pair.
type FinalizePasswordResetMessage struct {
	EncodedID       string `json:"uid"`
	Token           string `json:"token"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	OnResponse      func(resp *FinalizePasswordResetResponse)
}

func (e FinalizePasswordResetMessage) Type() string { return "account.password_reset_finalize" }

// Validate applies the password policy to the replacement pair.
func (e FinalizePasswordResetMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Password,
			validation.Required,
			validation.By(PasswordPolicyRule()),
		),
		validation.Field(&e.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(e.Password)),
		),
	)
}

type FinalizePasswordResetResponse struct {
	Account *Account
	Success bool
}

// FinalizePasswordResetHandler verifies a reset link and replaces the
// credential hash. The hash is part of the token fingerprint, so the
// replacement consumes the link; link failures collapse into
// ErrInvalidResetLink with the same shape as the activation flow's errors.
type FinalizePasswordResetHandler struct {
	repo   RepositoryManager
	tokens TokenService
	logger Logger
}

func NewFinalizePasswordResetHandler(repo RepositoryManager, tokens TokenService) *FinalizePasswordResetHandler {
	return &FinalizePasswordResetHandler{
		repo:   repo,
		tokens: tokens,
		logger: defLogger{},
	}
}

// WithLogger overrides the logger used by the handler.
func (h *FinalizePasswordResetHandler) WithLogger(logger Logger) *FinalizePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *FinalizePasswordResetHandler) Execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset finalization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *FinalizePasswordResetHandler) execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password reset payload")
	}

	id, err := DecodeAccountID(event.EncodedID)
	if err != nil {
		h.logger.Debug("reset id decode failed", "error", err)
		return ErrInvalidResetLink
	}

	var account *Account

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := h.repo.Accounts().GetByIDTx(ctx, tx, id.String())
		if err != nil {
			if goerrors.IsNotFound(err) {
				return ErrInvalidResetLink
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load account for password reset")
		}

		if !h.tokens.Verify(record, TokenPurposeReset, event.Token) {
			return ErrInvalidResetLink
		}

		hash, err := HashPassword(event.Password)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid new password provided")
		}

		updated, err := h.repo.Accounts().ReplacePasswordTx(ctx, tx, record.ID, hash)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to replace account password")
		}

		account = updated
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to finalize password reset")
	}

	if event.OnResponse != nil {
		event.OnResponse(&FinalizePasswordResetResponse{
			Account: account,
			Success: true,
		})
	}

	return nil
}
