package accounts

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// DeleteAccountMessage is the explicit account-deletion submission. The
// current password and an irreversibility acknowledgement are both
// required.
type DeleteAccountMessage struct {
	AccountID uuid.UUID `json:"account_id"`
	Password  string    `json:"password"`
	Confirmed bool      `json:"confirmed"`
}

func (e DeleteAccountMessage) Type() string { return "account.delete" }

// Validate runs the field rules.
func (e DeleteAccountMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Password, validation.Required),
		validation.Field(&e.Confirmed, validation.By(RequireAssent(
			"you must confirm that deleting the account is irreversible",
		))),
	)
}

// DeleteAccountHandler soft deletes the account after credential
// re-confirmation.
type DeleteAccountHandler struct {
	repo   RepositoryManager
	logger Logger
}

func NewDeleteAccountHandler(repo RepositoryManager) *DeleteAccountHandler {
	return &DeleteAccountHandler{
		repo:   repo,
		logger: defLogger{},
	}
}

func (h *DeleteAccountHandler) Execute(ctx context.Context, event DeleteAccountMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account deletion",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *DeleteAccountHandler) execute(ctx context.Context, event DeleteAccountMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid account deletion payload")
	}

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		account, err := h.repo.Accounts().GetByIDTx(ctx, tx, event.AccountID.String())
		if err != nil {
			if goerrors.IsNotFound(err) {
				return ErrInvalidCredentials
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load account for deletion")
		}

		if err := ComparePasswordAndHash(event.Password, account.PasswordHash); err != nil {
			return ErrInvalidCredentials
		}

		if err := h.repo.Accounts().SoftDeleteTx(ctx, tx, account); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete account")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete account")
	}

	return nil
}
