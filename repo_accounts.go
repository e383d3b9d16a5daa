package flows

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var ResetAccountPasswordSQL = `UPDATE "accounts" AS "acct"
SET
	"password_hash" = ?
WHERE
	"acct"."deleted_at" IS NULL
AND (
	"acct"."id" = ?
) RETURNING *;`

var ActivateAccountSQL = `UPDATE "accounts" AS "acct"
SET
	"status" = ?,
	"activated_at" = ?
WHERE
	"acct"."deleted_at" IS NULL
AND (
	"acct"."id" = ?
) RETURNING *;`

// Accounts is the account repository. It doubles as the AccountDirectory the
// workflows resolve subjects through.
type Accounts interface {
	repository.Repository[*Account]

	FindByUsername(ctx context.Context, username string) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByID(ctx context.Context, id string) (*Account, error)

	CreateAccount(ctx context.Context, account *Account) (*Account, error)
	Create(ctx context.Context, record *Account, criteria ...repository.InsertCriteria) (*Account, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *Account, criteria ...repository.InsertCriteria) (*Account, error)

	Activate(ctx context.Context, accountID string) (*Account, error)
	ActivateTx(ctx context.Context, tx bun.IDB, accountID string) (*Account, error)
	MarkCredentialSet(ctx context.Context, accountID string) error
	MarkCredentialSetTx(ctx context.Context, tx bun.IDB, accountID string) error

	ResetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	ResetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error
}

type accounts struct {
	repository.Repository[*Account]
	db *bun.DB
}

var (
	_ Accounts                        = (*accounts)(nil)
	_ repository.Repository[*Account] = (*accounts)(nil)
	_ AccountDirectory                = (*accounts)(nil)
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
			return "username"
		},
	})

	return &accounts{
		Repository: repo,
		db:         db,
	}
}

func (a *accounts) FindByUsername(ctx context.Context, username string) (*Account, error) {
	return a.findByColumn(ctx, "username", strings.TrimSpace(username))
}

func (a *accounts) FindByEmail(ctx context.Context, email string) (*Account, error) {
	return a.findByColumn(ctx, "email", strings.TrimSpace(email))
}

func (a *accounts) FindByID(ctx context.Context, id string) (*Account, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrAccountNotFound
	}
	return a.findByColumn(ctx, "id", id)
}

func (a *accounts) findByColumn(ctx context.Context, column, value string) (*Account, error) {
	if value == "" {
		return nil, ErrAccountNotFound
	}

	record := &Account{}
	err := a.db.NewSelect().
		Model(record).
		Where("?TableAlias."+column+" = ?", value).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, accountNotFound(column, value)
		}
		return nil, err
	}

	record.EnsureStatus()

	return record, nil
}

func (a *accounts) CreateAccount(ctx context.Context, account *Account) (*Account, error) {
	return a.CreateTx(ctx, a.db, account)
}

func (a *accounts) Create(ctx context.Context, record *Account, criteria ...repository.InsertCriteria) (*Account, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *accounts) CreateTx(ctx context.Context, tx bun.IDB, record *Account, criteria ...repository.InsertCriteria) (*Account, error) {
	prepareAccountDefaults(record)
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (a *accounts) Activate(ctx context.Context, accountID string) (*Account, error) {
	return a.ActivateTx(ctx, a.db, accountID)
}

func (a *accounts) ActivateTx(ctx context.Context, tx bun.IDB, accountID string) (*Account, error) {
	now := time.Now()
	res, err := a.Repository.RawTx(ctx, tx, ActivateAccountSQL, AccountStatusActive, now, accountID)
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, accountNotFound("id", accountID)
	}

	return res[0], nil
}

func (a *accounts) MarkCredentialSet(ctx context.Context, accountID string) error {
	return a.MarkCredentialSetTx(ctx, a.db, accountID)
}

func (a *accounts) MarkCredentialSetTx(ctx context.Context, tx bun.IDB, accountID string) error {
	result, err := tx.NewUpdate().
		Model((*Account)(nil)).
		Set("credential_set = ?", true).
		Where("?TableAlias.id = ?", accountID).
		Where("?TableAlias.deleted_at IS NULL").
		Exec(ctx)
	if err != nil {
		return err
	}

	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return accountNotFound("id", accountID)
	}

	return nil
}

func (a *accounts) ResetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return a.ResetPasswordTx(ctx, a.db, id, passwordHash)
}

func (a *accounts) ResetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error {
	res, err := a.Repository.RawTx(ctx, tx, ResetAccountPasswordSQL, passwordHash, id.String())
	if err != nil {
		return err
	}

	if len(res) == 0 {
		return accountNotFound("id", id.String())
	}

	return nil
}

// accountNotFound wraps the shared sentinel so metadata never mutates it.
func accountNotFound(column, value string) error {
	return goerrors.Wrap(ErrAccountNotFound, goerrors.CategoryNotFound, "account not found").
		WithTextCode(TextCodeAccountNotFound).
		WithMetadata(map[string]any{
			column: value,
		})
}

func prepareAccountDefaults(record *Account) {
	if record == nil {
		return
	}

	record.EnsureStatus()

	if record.PasswordHash == "" {
		record.PasswordHash = RandomPasswordHash()
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}
