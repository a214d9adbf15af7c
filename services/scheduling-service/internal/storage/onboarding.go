package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tidyhome/scheduler/libs/db"
	"github.com/tidyhome/scheduler/services/scheduling-service/internal/onboarding"
)

type OnboardingStore struct {
	db db.TxBeginner
}

func NewOnboardingStore(conn db.TxBeginner) *OnboardingStore {
	return &OnboardingStore{db: conn}
}

func (s *OnboardingStore) Get(ctx context.Context, providerID string) (onboarding.Progress, error) {
	p, err := selectProgress(ctx, s.db, providerID, false)
	if errors.Is(err, pgx.ErrNoRows) {
		return onboarding.Progress{ProviderID: providerID}, nil
	}
	return p, err
}

func (s *OnboardingStore) Update(ctx context.Context, providerID string, fn func(*onboarding.Progress) error) (onboarding.Progress, error) {
	var out onboarding.Progress
	err := db.WithTx(ctx, s.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO provider_onboarding (provider_id)
			VALUES ($1)
			ON CONFLICT (provider_id) DO NOTHING
		`, providerID)
		if err != nil {
			return err
		}
		p, err := selectProgress(ctx, tx, providerID, true)
		if err != nil {
			return err
		}
		if err := fn(&p); err != nil {
			return err
		}

		steps := make([]string, len(p.Completed))
		for i, st := range p.Completed {
			steps[i] = string(st)
		}
		_, err = tx.Exec(ctx, `
			UPDATE provider_onboarding
			SET completed_steps = $2,
				completed_at = $3,
				updated_at = now()
			WHERE provider_id = $1
		`, providerID, steps, p.CompletedAt)
		if err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}

func selectProgress(ctx context.Context, q db.Querier, providerID string, forUpdate bool) (onboarding.Progress, error) {
	sql := `
		SELECT completed_steps, completed_at, updated_at
		FROM provider_onboarding
		WHERE provider_id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}

	var (
		steps       []string
		completedAt *time.Time
	)
	p := onboarding.Progress{ProviderID: providerID}
	if err := q.QueryRow(ctx, sql, providerID).Scan(&steps, &completedAt, &p.UpdatedAt); err != nil {
		return onboarding.Progress{}, err
	}
	for _, raw := range steps {
		if st, ok := onboarding.ParseStep(raw); ok {
			p.Completed = append(p.Completed, st)
		}
	}
	p.CompletedAt = completedAt
	return p, nil
}

var _ onboarding.Store = (*OnboardingStore)(nil)
