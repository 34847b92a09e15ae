package accounts_test

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"

	accounts "github.com/goliatone/go-accounts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func setupTestDB(t *testing.T) *bun.DB {
	t.Helper()

	// one shared in-memory database per test, not per process
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { db.Close() })

	_, err = db.NewCreateTable().
		Model((*accounts.Account)(nil)).
		Exec(context.Background())
	require.NoError(t, err)

	return db
}

func linkSegments(t *testing.T, link, prefix string) (string, string) {
	t.Helper()

	require.True(t, strings.HasPrefix(link, prefix), "link %q lacks prefix %q", link, prefix)
	segments := strings.Split(strings.TrimPrefix(link, prefix), "/")
	require.Len(t, segments, 2)
	return segments[0], segments[1]
}

func TestAccountLifecycleEndToEnd(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	repo := accounts.NewRepositoryManager(db)
	tokens := accounts.NewTokenService(tokenKey, 24, testLogger{})
	notifier := &captureNotifier{}

	auther := accounts.NewAuthenticator(repo, testConfig{}).WithLogger(testLogger{})

	// registration leaves a pending account and mails an activation link
	var regResp *accounts.RegisterAccountResponse
	register := accounts.NewRegisterAccountHandler(repo, tokens, notifier, testBaseURL).
		WithLogger(testLogger{})

	event := registerMessage()
	event.OnResponse = func(r *accounts.RegisterAccountResponse) { regResp = r }
	require.NoError(t, register.Execute(ctx, event))

	require.NotNil(t, regResp)
	require.Len(t, notifier.Sent, 1)

	stored, err := repo.Accounts().GetByEmail(ctx, "peon@example.com")
	require.NoError(t, err)
	assert.True(t, stored.IsPending())

	// login before confirmation is rejected with the explicit gate error
	_, err = auther.Login(ctx, "peon@example.com", "correct-horse-battery", testClientIP)
	assert.ErrorIs(t, err, accounts.ErrEmailNotConfirmed)

	// following the mailed link flips both flags atomically
	uid, token := linkSegments(t, regResp.ActivationLink, testBaseURL+"/activate/")
	activate := accounts.NewActivateAccountHandler(repo, tokens).WithLogger(testLogger{})

	require.NoError(t, activate.Execute(ctx, accounts.ActivateAccountMessage{
		EncodedID: uid,
		Token:     token,
	}))

	stored, err = repo.Accounts().GetByEmail(ctx, "peon@example.com")
	require.NoError(t, err)
	assert.True(t, stored.CanLogin())

	// replaying the consumed link fails like any bad link
	err = activate.Execute(ctx, accounts.ActivateAccountMessage{
		EncodedID: uid,
		Token:     token,
	})
	assert.ErrorIs(t, err, accounts.ErrInvalidActivationLink)

	// login now succeeds and records last-seen metadata
	sessionToken, err := auther.Login(ctx, "peon@example.com", "correct-horse-battery", testClientIP)
	require.NoError(t, err)
	require.NotEmpty(t, sessionToken)

	stored, err = repo.Accounts().GetByEmail(ctx, "peon@example.com")
	require.NoError(t, err)
	assert.Equal(t, testClientIP, stored.LastLoginIP)
	require.NotNil(t, stored.LoggedInAt)

	session, err := auther.SessionFromToken(sessionToken)
	require.NoError(t, err)
	assert.Equal(t, stored.ID.String(), session.GetAccountID())
}

func TestPasswordRecoveryEndToEnd(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	repo := accounts.NewRepositoryManager(db)
	tokens := accounts.NewTokenService(tokenKey, 24, testLogger{})
	notifier := &captureNotifier{}

	auther := accounts.NewAuthenticator(repo, testConfig{}).WithLogger(testLogger{})

	var regResp *accounts.RegisterAccountResponse
	register := accounts.NewRegisterAccountHandler(repo, tokens, notifier, testBaseURL).
		WithLogger(testLogger{})

	event := registerMessage()
	event.OnResponse = func(r *accounts.RegisterAccountResponse) { regResp = r }
	require.NoError(t, register.Execute(ctx, event))

	uid, token := linkSegments(t, regResp.ActivationLink, testBaseURL+"/activate/")
	activate := accounts.NewActivateAccountHandler(repo, tokens).WithLogger(testLogger{})
	require.NoError(t, activate.Execute(ctx, accounts.ActivateAccountMessage{
		EncodedID: uid,
		Token:     token,
	}))

	// request recovery for the confirmed account
	initReset := accounts.NewInitializePasswordResetHandler(repo, tokens, notifier, testBaseURL).
		WithLogger(testLogger{})
	require.NoError(t, initReset.Execute(ctx, accounts.InitializePasswordResetMessage{
		Email: "peon@example.com",
	}))

	require.Len(t, notifier.Sent, 2)
	body := notifier.Sent[1].Text
	idx := strings.Index(body, testBaseURL+"/password-reset/")
	require.GreaterOrEqual(t, idx, 0)
	link := strings.TrimSpace(strings.Split(body[idx:], "\n")[0])
	resetUID, resetToken := linkSegments(t, link, testBaseURL+"/password-reset/")

	// the recovery link replaces the credential
	finalize := accounts.NewFinalizePasswordResetHandler(repo, tokens).
		WithLogger(testLogger{})
	require.NoError(t, finalize.Execute(ctx, accounts.FinalizePasswordResetMessage{
		EncodedID:       resetUID,
		Token:           resetToken,
		Password:        "brand-new-secret-9",
		ConfirmPassword: "brand-new-secret-9",
	}))

	// old credential is dead, the new one works
	_, err := auther.Login(ctx, "peon@example.com", "correct-horse-battery", testClientIP)
	assert.ErrorIs(t, err, accounts.ErrInvalidCredentials)

	_, err = auther.Login(ctx, "peon@example.com", "brand-new-secret-9", testClientIP)
	require.NoError(t, err)

	// the hash replacement consumed the link
	err = finalize.Execute(ctx, accounts.FinalizePasswordResetMessage{
		EncodedID:       resetUID,
		Token:           resetToken,
		Password:        "another-secret-10",
		ConfirmPassword: "another-secret-10",
	})
	assert.ErrorIs(t, err, accounts.ErrInvalidResetLink)
}

func TestRegistrationReleasesSoftDeletedEmail(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	repo := accounts.NewRepositoryManager(db)
	tokens := accounts.NewTokenService(tokenKey, 24, testLogger{})
	notifier := &captureNotifier{}

	register := accounts.NewRegisterAccountHandler(repo, tokens, notifier, testBaseURL).
		WithLogger(testLogger{})

	var regResp *accounts.RegisterAccountResponse
	event := registerMessage()
	event.OnResponse = func(r *accounts.RegisterAccountResponse) { regResp = r }
	require.NoError(t, register.Execute(ctx, event))

	uid, token := linkSegments(t, regResp.ActivationLink, testBaseURL+"/activate/")
	activate := accounts.NewActivateAccountHandler(repo, tokens).WithLogger(testLogger{})
	require.NoError(t, activate.Execute(ctx, accounts.ActivateAccountMessage{
		EncodedID: uid,
		Token:     token,
	}))

	// the owner deletes the account; the row stays behind the soft-delete
	// marker but the address must be registrable again
	stored, err := repo.Accounts().GetByEmail(ctx, "peon@example.com")
	require.NoError(t, err)
	require.NoError(t, repo.Accounts().SoftDelete(ctx, stored))

	_, err = repo.Accounts().GetByEmail(ctx, "peon@example.com")
	require.Error(t, err)

	require.NoError(t, register.Execute(ctx, registerMessage()))

	revived, err := repo.Accounts().GetByEmail(ctx, "peon@example.com")
	require.NoError(t, err)
	assert.True(t, revived.IsPending())

	// the dead row was purged outright, not resurrected
	count, err := db.NewSelect().
		Model((*accounts.Account)(nil)).
		WhereAllWithDeleted().
		Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRegistrationEnforcesEmailUniqueness(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	repo := accounts.NewRepositoryManager(db)
	tokens := accounts.NewTokenService(tokenKey, 24, testLogger{})
	notifier := &captureNotifier{}

	register := accounts.NewRegisterAccountHandler(repo, tokens, notifier, testBaseURL).
		WithLogger(testLogger{})

	require.NoError(t, register.Execute(ctx, registerMessage()))

	// second registration with the same address, different case
	second := registerMessage()
	second.Email = "PEON@example.com"

	err := register.Execute(ctx, second)
	require.Error(t, err)

	fields := accounts.FormatValidationErrorToMap(err)
	assert.Contains(t, fields, "email")

	count, err := db.NewSelect().Model((*accounts.Account)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
