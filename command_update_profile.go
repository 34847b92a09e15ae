package accounts

import (
	"context"
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	minProfileAge = 13
	maxProfileAge = 120
)

// UpdateProfileMessage edits the optional profile attributes. Email and
// credential changes go through their own flows.
type UpdateProfileMessage struct {
	AccountID  uuid.UUID   `json:"account_id"`
	Profile    ProfileData `json:"profile"`
	OnResponse func(resp *UpdateProfileResponse)
}

func (e UpdateProfileMessage) Type() string { return "account.update_profile" }

// Validate runs the profile field rules and reports all failures together.
func (e UpdateProfileMessage) Validate() error {
	return validation.ValidateStruct(&e.Profile,
		validation.Field(&e.Profile.FirstName, validation.Length(0, 30)),
		validation.Field(&e.Profile.LastName, validation.Length(0, 30)),
		validation.Field(&e.Profile.PhoneNumber, validation.By(PhoneRule)),
		validation.Field(&e.Profile.Address, validation.Length(0, 500)),
		validation.Field(&e.Profile.DateOfBirth, validation.By(DateOfBirthRule)),
	)
}

// DateOfBirthRule rejects future dates and implausible ages.
func DateOfBirthRule(value any) error {
	dob, _ := value.(*time.Time)
	if dob == nil {
		return nil
	}

	now := time.Now()
	if dob.After(now) {
		return errors.New("date of birth cannot be in the future")
	}
	if dob.After(now.AddDate(-minProfileAge, 0, 0)) {
		return errors.New("minimum age is 13 years")
	}
	if dob.Before(now.AddDate(-maxProfileAge, 0, 0)) {
		return errors.New("check the entered date")
	}

	return nil
}

type UpdateProfileResponse struct {
	Account *Account
	Success bool
}

// UpdateProfileHandler persists the profile edit.
type UpdateProfileHandler struct {
	repo   RepositoryManager
	logger Logger
}

func NewUpdateProfileHandler(repo RepositoryManager) *UpdateProfileHandler {
	return &UpdateProfileHandler{
		repo:   repo,
		logger: defLogger{},
	}
}

func (h *UpdateProfileHandler) Execute(ctx context.Context, event UpdateProfileMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during profile update",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *UpdateProfileHandler) execute(ctx context.Context, event UpdateProfileMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid profile payload")
	}

	phone, err := NormalizePhone(event.Profile.PhoneNumber)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid profile payload")
	}

	var account *Account

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := h.repo.Accounts().GetByIDTx(ctx, tx, event.AccountID.String())
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load account for profile update")
		}

		record.FirstName = event.Profile.FirstName
		record.LastName = event.Profile.LastName
		record.PhoneNumber = phone
		record.Address = event.Profile.Address
		record.DateOfBirth = event.Profile.DateOfBirth

		updated, err := h.repo.Accounts().UpdateTx(ctx, tx, record, repository.UpdateByID(record.ID.String()))
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist profile update")
		}

		account = updated
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update profile")
	}

	if event.OnResponse != nil {
		event.OnResponse(&UpdateProfileResponse{
			Account: account,
			Success: true,
		})
	}

	return nil
}
