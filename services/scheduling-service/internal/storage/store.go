package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/tidyhome/scheduler/libs/db"
	"github.com/tidyhome/scheduler/services/scheduling-service/internal/outbox"
	"github.com/tidyhome/scheduler/services/scheduling-service/internal/scheduling"
)

// Store is the Postgres implementation of scheduling.Store.
type Store struct {
	queries
	db     db.TxBeginner
	outbox *outbox.Repository
}

func NewStore(conn db.TxBeginner, ob *outbox.Repository) *Store {
	return &Store{queries: queries{q: conn}, db: conn, outbox: ob}
}

// WithProviderLock takes a transaction-scoped advisory lock keyed by the
// provider id, so every writer for one provider runs one at a time.
func (s *Store) WithProviderLock(ctx context.Context, providerID string, fn func(scheduling.Tx) error) error {
	return db.WithTx(ctx, s.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, providerID); err != nil {
			return fmt.Errorf("provider lock: %w", err)
		}
		return fn(&txStore{queries: queries{q: tx}, outbox: s.outbox})
	})
}

type queries struct {
	q db.Querier
}

type txStore struct {
	queries
	outbox *outbox.Repository
}

func (t *txStore) AppendEvent(ctx context.Context, evt outbox.Event) error {
	return t.outbox.Insert(ctx, t.q, evt)
}

var (
	_ scheduling.Store = (*Store)(nil)
	_ scheduling.Tx    = (*txStore)(nil)
)
