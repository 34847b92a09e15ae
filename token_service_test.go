package accounts_test

import (
	"testing"
	"time"

	accounts "github.com/goliatone/go-accounts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tokenKey = []byte("token-test-key-0123456789")

func pendingAccount() *accounts.Account {
	return &accounts.Account{
		ID:           uuid.New(),
		Email:        "peon@example.com",
		PasswordHash: "$2a$12$fakehashfakehashfakehash",
	}
}

func TestTokenServiceIssueAndVerify(t *testing.T) {
	svc := accounts.NewTokenService(tokenKey, 24, testLogger{})
	account := pendingAccount()

	token, err := svc.Issue(account, accounts.TokenPurposeActivate)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	assert.True(t, svc.Verify(account, accounts.TokenPurposeActivate, token))
}

func TestTokenServiceIssueRequiresPersistedAccount(t *testing.T) {
	svc := accounts.NewTokenService(tokenKey, 24, testLogger{})

	_, err := svc.Issue(nil, accounts.TokenPurposeActivate)
	require.Error(t, err)

	_, err = svc.Issue(&accounts.Account{}, accounts.TokenPurposeActivate)
	require.Error(t, err)
}

func TestTokenServiceIsDeterministicWithinBucket(t *testing.T) {
	now := time.Date(2025, 3, 10, 15, 20, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	svc := accounts.NewTokenService(tokenKey, 24, testLogger{}).WithClock(clock)
	account := pendingAccount()

	first, err := svc.Issue(account, accounts.TokenPurposeActivate)
	require.NoError(t, err)
	second, err := svc.Issue(account, accounts.TokenPurposeActivate)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestTokenServiceRejectsWrongPurpose(t *testing.T) {
	svc := accounts.NewTokenService(tokenKey, 24, testLogger{})
	account := pendingAccount()

	token, err := svc.Issue(account, accounts.TokenPurposeActivate)
	require.NoError(t, err)

	assert.False(t, svc.Verify(account, accounts.TokenPurposeReset, token))
}

func TestTokenServiceRejectsOtherAccount(t *testing.T) {
	svc := accounts.NewTokenService(tokenKey, 24, testLogger{})
	account := pendingAccount()
	other := pendingAccount()

	token, err := svc.Issue(account, accounts.TokenPurposeActivate)
	require.NoError(t, err)

	assert.False(t, svc.Verify(other, accounts.TokenPurposeActivate, token))
}

func TestTokenServiceRejectsTamperedToken(t *testing.T) {
	svc := accounts.NewTokenService(tokenKey, 24, testLogger{})
	account := pendingAccount()

	token, err := svc.Issue(account, accounts.TokenPurposeActivate)
	require.NoError(t, err)

	tampered := []byte(token)
	if tampered[0] == 'A' {
		tampered[0] = 'B'
	} else {
		tampered[0] = 'A'
	}

	assert.False(t, svc.Verify(account, accounts.TokenPurposeActivate, string(tampered)))
	assert.False(t, svc.Verify(account, accounts.TokenPurposeActivate, ""))
}

func TestTokenServiceFingerprintChangeConsumesToken(t *testing.T) {
	svc := accounts.NewTokenService(tokenKey, 24, testLogger{})
	account := pendingAccount()

	token, err := svc.Issue(account, accounts.TokenPurposeActivate)
	require.NoError(t, err)
	require.True(t, svc.Verify(account, accounts.TokenPurposeActivate, token))

	// activation flips the lifecycle flags, which are part of the
	// fingerprint the token was derived from
	account.IsActive = true
	account.EmailConfirmed = true

	assert.False(t, svc.Verify(account, accounts.TokenPurposeActivate, token))
}

func TestTokenServicePasswordChangeConsumesResetToken(t *testing.T) {
	svc := accounts.NewTokenService(tokenKey, 24, testLogger{})
	account := pendingAccount()
	account.IsActive = true
	account.EmailConfirmed = true

	token, err := svc.Issue(account, accounts.TokenPurposeReset)
	require.NoError(t, err)
	require.True(t, svc.Verify(account, accounts.TokenPurposeReset, token))

	account.PasswordHash = "$2a$12$replacementhashreplacement"

	assert.False(t, svc.Verify(account, accounts.TokenPurposeReset, token))
}

func TestTokenServiceExpiryWindow(t *testing.T) {
	issued := time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)
	current := issued

	svc := accounts.NewTokenService(tokenKey, 24, testLogger{}).
		WithClock(func() time.Time { return current })

	account := pendingAccount()

	token, err := svc.Issue(account, accounts.TokenPurposeActivate)
	require.NoError(t, err)

	// still valid just inside the 24h window
	current = issued.Add(23 * time.Hour)
	assert.True(t, svc.Verify(account, accounts.TokenPurposeActivate, token))

	// expired once the issuance bucket leaves the window
	current = issued.Add(25 * time.Hour)
	assert.False(t, svc.Verify(account, accounts.TokenPurposeActivate, token))
}

func TestEncodeDecodeAccountID(t *testing.T) {
	id := uuid.New()

	encoded := accounts.EncodeAccountID(id)
	require.NotEmpty(t, encoded)
	assert.NotContains(t, encoded, "/")

	decoded, err := accounts.DecodeAccountID(encoded)
	require.NoError(t, err)
	assert.Equal(t, id, decoded)
}

func TestDecodeAccountIDRejectsGarbage(t *testing.T) {
	cases := []string{
		"",
		"%%%%",
		"not-base64!!",
		accounts.EncodeAccountID(uuid.New()) + "x",
	}

	for _, encoded := range cases {
		_, err := accounts.DecodeAccountID(encoded)
		assert.Error(t, err, "expected decode failure for %q", encoded)
	}
}
