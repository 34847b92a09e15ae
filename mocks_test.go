package accounts_test

import (
	"context"
	"database/sql"
	"sync"

	accounts "github.com/goliatone/go-accounts"
	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/uptrace/bun"
)

// duplicateEmailForTest fabricates the conflict the repository raises when
// an insert trips the unique email constraint.
func duplicateEmailForTest() error {
	return goerrors.New(
		"an account with this email address already exists",
		goerrors.CategoryConflict,
	).WithTextCode(accounts.TextCodeDuplicateEmail)
}

type testLogger struct{}

func (testLogger) Debug(string, ...any) {}
func (testLogger) Info(string, ...any)  {}
func (testLogger) Warn(string, ...any)  {}
func (testLogger) Error(string, ...any) {}

// MockAccounts overrides the repository methods the lifecycle flows touch.
// The embedded interface stands in for the rest of the generic repository
// surface; calling an unstubbed method panics, which is the failure we want
// in a test.
type MockAccounts struct {
	mock.Mock
	accounts.Accounts
}

func (m *MockAccounts) GetByEmail(ctx context.Context, email string) (*accounts.Account, error) {
	args := m.Called(ctx, email)
	if acc, ok := args.Get(0).(*accounts.Account); ok {
		return acc, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAccounts) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*accounts.Account, error) {
	args := m.Called(ctx, id)
	if acc, ok := args.Get(0).(*accounts.Account); ok {
		return acc, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAccounts) GetByIDTx(ctx context.Context, tx bun.IDB, id string, criteria ...repository.SelectCriteria) (*accounts.Account, error) {
	args := m.Called(ctx, tx, id)
	if acc, ok := args.Get(0).(*accounts.Account); ok {
		return acc, args.Error(1)
	}
	return nil, args.Error(1)
}

// CreateTx echoes the submitted record with an assigned id when the
// expectation returns (nil, nil), mirroring what the real repository does.
func (m *MockAccounts) CreateTx(ctx context.Context, tx bun.IDB, record *accounts.Account, criteria ...repository.InsertCriteria) (*accounts.Account, error) {
	args := m.Called(ctx, tx, record)
	if acc, ok := args.Get(0).(*accounts.Account); ok {
		return acc, args.Error(1)
	}
	if args.Error(1) == nil && record != nil {
		if record.ID == uuid.Nil {
			record.ID = uuid.New()
		}
		return record, nil
	}
	return nil, args.Error(1)
}

func (m *MockAccounts) UpdateTx(ctx context.Context, tx bun.IDB, record *accounts.Account, criteria ...repository.UpdateCriteria) (*accounts.Account, error) {
	args := m.Called(ctx, tx, record)
	if acc, ok := args.Get(0).(*accounts.Account); ok {
		return acc, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAccounts) ActivateTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*accounts.Account, error) {
	args := m.Called(ctx, tx, id)
	if acc, ok := args.Get(0).(*accounts.Account); ok {
		return acc, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAccounts) ReplacePasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) (*accounts.Account, error) {
	args := m.Called(ctx, tx, id, passwordHash)
	if acc, ok := args.Get(0).(*accounts.Account); ok {
		return acc, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAccounts) TrackSucccessfulLogin(ctx context.Context, account *accounts.Account, remoteIP string) error {
	args := m.Called(ctx, account, remoteIP)
	return args.Error(0)
}

func (m *MockAccounts) HardDelete(ctx context.Context, account *accounts.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *MockAccounts) SoftDeleteTx(ctx context.Context, tx bun.IDB, account *accounts.Account) error {
	args := m.Called(ctx, tx, account)
	return args.Error(0)
}

// testRepoManager satisfies RepositoryManager with a pass-through
// transaction and a pluggable accounts repository.
type testRepoManager struct {
	accts accounts.Accounts
}

func newTestRepoManager(accts accounts.Accounts) *testRepoManager {
	return &testRepoManager{accts: accts}
}

func (m *testRepoManager) Validate() error { return nil }

func (m *testRepoManager) MustValidate() {}

func (m *testRepoManager) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	return f(ctx, bun.Tx{})
}

func (m *testRepoManager) Accounts() accounts.Accounts { return m.accts }

type sentMail struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// captureNotifier records every delivery, optionally failing them all.
type captureNotifier struct {
	mu   sync.Mutex
	Sent []sentMail
	Fail error
}

func (n *captureNotifier) Send(ctx context.Context, to, subject, textBody, htmlBody string) error {
	if n.Fail != nil {
		return n.Fail
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.Sent = append(n.Sent, sentMail{To: to, Subject: subject, Text: textBody, HTML: htmlBody})
	return nil
}

// testConfig is a fixed Config for authenticator and HTTP tests.
type testConfig struct{}

func (testConfig) GetSigningKey() string             { return "test-signing-key-0123456789" }
func (testConfig) GetSigningMethod() string          { return "HS256" }
func (testConfig) GetContextKey() string             { return "accounts:session" }
func (testConfig) GetTokenWindow() int               { return 24 }
func (testConfig) GetSessionDuration() int           { return 24 }
func (testConfig) GetExtendedSessionDuration() int   { return 720 }
func (testConfig) GetIssuer() string                 { return "test-app" }
func (testConfig) GetAudience() []string             { return nil }
func (testConfig) GetRejectedRouteKey() string       { return "rejected_route" }
func (testConfig) GetRejectedRouteDefault() string   { return "/" }
func (testConfig) GetBaseURL() string                { return "https://shop.example.com" }
