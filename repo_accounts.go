package accounts

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ActivateAccountSQL flips both lifecycle flags in one statement. The
// email_confirmed guard makes concurrent activation attempts safe: the
// second writer matches zero rows.
var ActivateAccountSQL = `UPDATE "accounts" AS "acc"
SET
	"is_active" = TRUE,
	"email_confirmed" = TRUE,
	"updated_at" = ?
WHERE
	"acc"."deleted_at" IS NULL
AND "acc"."email_confirmed" = FALSE
AND (
	"acc"."id" = ?
) RETURNING *;`

var ReplacePasswordSQL = `UPDATE "accounts" AS "acc"
SET
	"password_hash" = ?,
	"updated_at" = ?
WHERE
	"acc"."deleted_at" IS NULL
AND (
	"acc"."id" = ?
) RETURNING *;`

type Accounts interface {
	repository.Repository[*Account]

	GetByEmail(ctx context.Context, email string) (*Account, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Account, error)

	Activate(ctx context.Context, id uuid.UUID) (*Account, error)
	ActivateTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Account, error)

	ReplacePassword(ctx context.Context, id uuid.UUID, passwordHash string) (*Account, error)
	ReplacePasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) (*Account, error)

	TrackSucccessfulLogin(ctx context.Context, account *Account, remoteIP string) error
	TrackSucccessfulLoginTx(ctx context.Context, tx bun.IDB, account *Account, remoteIP string) error

	HardDelete(ctx context.Context, account *Account) error
	HardDeleteTx(ctx context.Context, tx bun.IDB, account *Account) error

	SoftDelete(ctx context.Context, account *Account) error
	SoftDeleteTx(ctx context.Context, tx bun.IDB, account *Account) error
}

type accountsRepo struct {
	repository.Repository[*Account]
	db *bun.DB
}

var (
	_ Accounts                        = (*accountsRepo)(nil)
	_ repository.Repository[*Account] = (*accountsRepo)(nil)
)

func NewAccountsRepository(db *bun.DB) Accounts {
	repo := repository.NewRepository[*Account](db, repository.ModelHandlers[*Account]{
		NewRecord: func() *Account { return &Account{} },
		GetID: func(a *Account) uuid.UUID {
			if a == nil {
				return uuid.Nil
			}
			return a.ID
		},
		SetID: func(a *Account, id uuid.UUID) {
			if a != nil {
				a.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &accountsRepo{
		Repository: repo,
		db:         db,
	}
}

func (a *accountsRepo) Create(ctx context.Context, record *Account, criteria ...repository.InsertCriteria) (*Account, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *accountsRepo) CreateTx(ctx context.Context, tx bun.IDB, record *Account, criteria ...repository.InsertCriteria) (*Account, error) {
	prepareAccountDefaults(record)

	// A soft-deleted account still holds its unique email (and, with
	// deterministic ids, its primary key). Release the row first so the
	// address can register again after an explicit account deletion.
	if err := a.purgeDeletedTx(ctx, tx, record.Email); err != nil {
		return nil, err
	}

	created, err := a.Repository.CreateTx(ctx, tx, record, criteria...)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, duplicateEmailError(record.Email)
		}
		return nil, err
	}

	return created, nil
}

func (a *accountsRepo) GetByEmail(ctx context.Context, email string) (*Account, error) {
	return a.GetByEmailTx(ctx, a.db, email)
}

func (a *accountsRepo) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Account, error) {
	record := &Account{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.email = ?", NormalizeEmail(email)).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) || strings.Contains(err.Error(), "no rows") {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"email": NormalizeEmail(email)})
		}
		return nil, err
	}

	return record, nil
}

func (a *accountsRepo) Activate(ctx context.Context, id uuid.UUID) (*Account, error) {
	return a.ActivateTx(ctx, a.db, id)
}

func (a *accountsRepo) ActivateTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Account, error) {
	res, err := a.Repository.RawTx(ctx, tx, ActivateAccountSQL, time.Now(), id.String())
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{"id": id.String()})
	}

	return res[0], nil
}

func (a *accountsRepo) ReplacePassword(ctx context.Context, id uuid.UUID, passwordHash string) (*Account, error) {
	return a.ReplacePasswordTx(ctx, a.db, id, passwordHash)
}

func (a *accountsRepo) ReplacePasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) (*Account, error) {
	res, err := a.Repository.RawTx(ctx, tx, ReplacePasswordSQL, passwordHash, time.Now(), id.String())
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{"id": id.String()})
	}

	return res[0], nil
}

func (a *accountsRepo) TrackSucccessfulLogin(ctx context.Context, account *Account, remoteIP string) error {
	return a.TrackSucccessfulLoginTx(ctx, a.db, account, remoteIP)
}

func (a *accountsRepo) TrackSucccessfulLoginTx(ctx context.Context, tx bun.IDB, account *Account, remoteIP string) error {
	loggedInAt := time.Now()
	_, err := tx.NewRaw(`
		UPDATE "accounts" AS "acc"
		SET
			"loggedin_at" = ?,
			"last_login_ip" = ?
		WHERE
			("acc".id = ?)
			AND "acc"."deleted_at" IS NULL;
	`, loggedInAt, remoteIP, account.ID).Exec(ctx)

	return err
}

// HardDelete removes the row entirely, bypassing soft delete. Used by the
// registration flow's compensating deletion.
func (a *accountsRepo) HardDelete(ctx context.Context, account *Account) error {
	return a.HardDeleteTx(ctx, a.db, account)
}

func (a *accountsRepo) HardDeleteTx(ctx context.Context, tx bun.IDB, account *Account) error {
	_, err := tx.NewDelete().
		Model(account).
		WherePK().
		ForceDelete().
		Exec(ctx)
	return err
}

// SoftDelete marks the account deleted, the terminal state of the explicit
// account-deletion operation.
func (a *accountsRepo) SoftDelete(ctx context.Context, account *Account) error {
	return a.SoftDeleteTx(ctx, a.db, account)
}

func (a *accountsRepo) SoftDeleteTx(ctx context.Context, tx bun.IDB, account *Account) error {
	_, err := tx.NewDelete().
		Model(account).
		WherePK().
		Exec(ctx)
	return err
}

func (a *accountsRepo) purgeDeletedTx(ctx context.Context, tx bun.IDB, email string) error {
	_, err := tx.NewDelete().
		Model((*Account)(nil)).
		Where("?TableAlias.email = ?", email).
		WhereDeleted().
		ForceDelete().
		Exec(ctx)
	return err
}

func prepareAccountDefaults(record *Account) {
	if record == nil {
		return
	}

	record.Email = NormalizeEmail(record.Email)

	if record.ID == uuid.Nil {
		if id, err := hashid.NewUUID(record.Email); err == nil {
			record.ID = id
		} else {
			record.ID = uuid.New()
		}
	}
}

func duplicateEmailError(email string) error {
	return goerrors.New(
		"an account with this email address already exists, sign in or recover your password",
		goerrors.CategoryConflict,
	).WithTextCode(TextCodeDuplicateEmail).
		WithMetadata(map[string]any{"email": email})
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "constraint failed: accounts.email")
}
