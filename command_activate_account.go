package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// ActivateAccountMessage carries the two opaque path segments from an
// inbound activation link. Both are untrusted.
type ActivateAccountMessage struct {
	EncodedID  string `json:"uid"`
	Token      string `json:"token"`
	OnResponse func(resp *ActivateAccountResponse)
}

func (e ActivateAccountMessage) Type() string { return "account.activate" }

type ActivateAccountResponse struct {
	Account *Account
	Success bool
}

// ActivateAccountHandler performs the pending to active transition. Every
// failure mode, malformed id, unknown account, stale or tampered token,
// collapses into ErrInvalidActivationLink so responses cannot be used to
// enumerate accounts.
type ActivateAccountHandler struct {
	repo   RepositoryManager
	tokens TokenService
	logger Logger
}

func NewActivateAccountHandler(repo RepositoryManager, tokens TokenService) *ActivateAccountHandler {
	return &ActivateAccountHandler{
		repo:   repo,
		tokens: tokens,
		logger: defLogger{},
	}
}

// WithLogger overrides the logger used by the handler.
func (h *ActivateAccountHandler) WithLogger(logger Logger) *ActivateAccountHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *ActivateAccountHandler) Execute(ctx context.Context, event ActivateAccountMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account activation",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ActivateAccountHandler) execute(ctx context.Context, event ActivateAccountMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	id, err := DecodeAccountID(event.EncodedID)
	if err != nil {
		h.logger.Debug("activation id decode failed", "error", err)
		return ErrInvalidActivationLink
	}

	var account *Account

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := h.repo.Accounts().GetByIDTx(ctx, tx, id.String())
		if err != nil {
			if goerrors.IsNotFound(err) {
				return ErrInvalidActivationLink
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load account for activation")
		}

		// Verification runs against the fingerprint visible in this
		// transaction. An already-activated account has consumed the
		// fingerprint the token was derived from, so replay fails here.
		if !h.tokens.Verify(record, TokenPurposeActivate, event.Token) {
			return ErrInvalidActivationLink
		}

		activated, err := h.repo.Accounts().ActivateTx(ctx, tx, record.ID)
		if err != nil {
			if goerrors.IsNotFound(err) {
				// concurrent activation won the guarded update
				return ErrInvalidActivationLink
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist account activation")
		}

		account = activated
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to activate account")
	}

	if event.OnResponse != nil {
		event.OnResponse(&ActivateAccountResponse{
			Account: account,
			Success: true,
		})
	}

	return nil
}
