package accounts_test

import (
	"context"
	"testing"
	"time"

	accounts "github.com/goliatone/go-accounts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestUpdateProfilePersistsEdits(t *testing.T) {
	accts := &MockAccounts{}
	account := &accounts.Account{
		ID:             uuid.New(),
		Email:          "peon@example.com",
		IsActive:       true,
		EmailConfirmed: true,
	}

	dob := time.Date(1990, 5, 20, 0, 0, 0, 0, time.UTC)

	accts.On("GetByIDTx", mock.Anything, mock.Anything, account.ID.String()).
		Return(account, nil).Once()
	accts.On("UpdateTx", mock.Anything, mock.Anything, mock.AnythingOfType("*accounts.Account")).
		Return(account, nil).Once()

	var resp *accounts.UpdateProfileResponse
	event := accounts.UpdateProfileMessage{
		AccountID: account.ID,
		Profile: accounts.ProfileData{
			FirstName:   "Boris",
			LastName:    "Britva",
			PhoneNumber: "89261234567",
			Address:     "Arbat 1, Moscow",
			DateOfBirth: &dob,
		},
		OnResponse: func(r *accounts.UpdateProfileResponse) {
			resp = r
		},
	}

	handler := accounts.NewUpdateProfileHandler(newTestRepoManager(accts))

	require.NoError(t, handler.Execute(context.Background(), event))
	require.NotNil(t, resp)
	assert.True(t, resp.Success)

	// the record handed to the repository carries the normalized edits
	assert.Equal(t, "Boris", account.FirstName)
	assert.Equal(t, "+79261234567", account.PhoneNumber)
	assert.Equal(t, "Arbat 1, Moscow", account.Address)
	require.NotNil(t, account.DateOfBirth)
	assert.Equal(t, dob, *account.DateOfBirth)

	accts.AssertExpectations(t)
}

func TestUpdateProfileEmailStaysUntouched(t *testing.T) {
	accts := &MockAccounts{}
	account := &accounts.Account{
		ID:    uuid.New(),
		Email: "peon@example.com",
	}

	accts.On("GetByIDTx", mock.Anything, mock.Anything, account.ID.String()).
		Return(account, nil).Once()
	accts.On("UpdateTx", mock.Anything, mock.Anything, mock.AnythingOfType("*accounts.Account")).
		Return(account, nil).Once()

	event := accounts.UpdateProfileMessage{
		AccountID: account.ID,
		Profile:   accounts.ProfileData{FirstName: "Boris"},
	}

	handler := accounts.NewUpdateProfileHandler(newTestRepoManager(accts))
	require.NoError(t, handler.Execute(context.Background(), event))

	assert.Equal(t, "peon@example.com", account.Email)
}

func TestUpdateProfileRejectsImplausibleBirthDates(t *testing.T) {
	future := time.Now().AddDate(1, 0, 0)
	tooYoung := time.Now().AddDate(-10, 0, 0)
	tooOld := time.Now().AddDate(-130, 0, 0)

	for name, dob := range map[string]time.Time{
		"future":    future,
		"too young": tooYoung,
		"too old":   tooOld,
	} {
		event := accounts.UpdateProfileMessage{
			AccountID: uuid.New(),
			Profile:   accounts.ProfileData{DateOfBirth: &dob},
		}

		assert.Error(t, event.Validate(), name)
	}
}

func TestUpdateProfileRejectsInvalidPhone(t *testing.T) {
	accts := &MockAccounts{}

	event := accounts.UpdateProfileMessage{
		AccountID: uuid.New(),
		Profile:   accounts.ProfileData{PhoneNumber: "12345"},
	}

	handler := accounts.NewUpdateProfileHandler(newTestRepoManager(accts))

	err := handler.Execute(context.Background(), event)
	require.Error(t, err)

	accts.AssertNotCalled(t, "GetByIDTx", mock.Anything, mock.Anything, mock.Anything)
}
