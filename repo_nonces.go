package flows

import (
	"context"
	"database/sql"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// nonces is the bun backed NonceStore. Claim relies on a conditional UPDATE
// so concurrent consumers of the same token serialize at the database: the
// WHERE clause only matches an unconsumed, unexpired row, and exactly one
// racer observes an affected row.
type nonces struct {
	db *bun.DB
}

var _ NonceStore = (*nonces)(nil)

func NewNoncesRepository(db *bun.DB) NonceStore {
	return &nonces{db: db}
}

func (n *nonces) Create(ctx context.Context, record *NonceRecord) error {
	if record == nil || record.ID == "" {
		return goerrors.New("nonce record requires an id", goerrors.CategoryBadInput)
	}

	_, err := n.db.NewInsert().Model(record).Exec(ctx)
	return err
}

func (n *nonces) Get(ctx context.Context, id string) (*NonceRecord, error) {
	record := &NonceRecord{}
	err := n.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, goerrors.New("nonce record not found", goerrors.CategoryNotFound).
				WithMetadata(map[string]any{"id": id})
		}
		return nil, err
	}

	return record, nil
}

func (n *nonces) Claim(ctx context.Context, id string, at time.Time) (bool, error) {
	result, err := n.db.NewUpdate().
		Model((*NonceRecord)(nil)).
		Set("consumed_at = ?", at).
		Where("?TableAlias.id = ?", id).
		Where("?TableAlias.consumed_at IS NULL").
		Where("?TableAlias.expires_at > ?", at).
		Exec(ctx)
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rows == 1, nil
}

func (n *nonces) Unclaim(ctx context.Context, id string) error {
	_, err := n.db.NewUpdate().
		Model((*NonceRecord)(nil)).
		Set("consumed_at = NULL").
		Where("?TableAlias.id = ?", id).
		Exec(ctx)
	return err
}
