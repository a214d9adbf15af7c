package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tidyhome/scheduler/services/scheduling-service/internal/apperr"
	"github.com/tidyhome/scheduler/services/scheduling-service/internal/model"
)

func (r queries) ProviderTimezone(ctx context.Context, providerID string) (string, error) {
	var tz string
	err := r.q.QueryRow(ctx, `
		SELECT timezone FROM provider_profiles WHERE provider_id = $1
	`, providerID).Scan(&tz)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return tz, err
}

func (r queries) ListWeeklyRules(ctx context.Context, providerID string) ([]model.WeeklyRule, error) {
	rows, err := r.q.Query(ctx, `
		SELECT day_of_week, start_minute, end_minute, buffer_minutes
		FROM weekly_availability
		WHERE provider_id = $1
		ORDER BY day_of_week, start_minute
	`, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.WeeklyRule
	for rows.Next() {
		var day int
		rule := model.WeeklyRule{ProviderID: providerID}
		if err := rows.Scan(&day, &rule.StartMinute, &rule.EndMinute, &rule.BufferMinutes); err != nil {
			return nil, err
		}
		rule.DayOfWeek = time.Weekday(day)
		out = append(out, rule)
	}
	return out, rows.Err()
}

// ReplaceWeeklyRules deletes and re-inserts the week; callers run it in a transaction.
func (r queries) ReplaceWeeklyRules(ctx context.Context, providerID string, rules []model.WeeklyRule) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM weekly_availability WHERE provider_id = $1`, providerID); err != nil {
		return err
	}
	for _, rule := range rules {
		_, err := r.q.Exec(ctx, `
			INSERT INTO weekly_availability (provider_id, day_of_week, start_minute, end_minute, buffer_minutes)
			VALUES ($1, $2, $3, $4, $5)
		`, providerID, int(rule.DayOfWeek), rule.StartMinute, rule.EndMinute, rule.BufferMinutes)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r queries) ListBlocks(ctx context.Context, providerID string, from, to time.Time) ([]model.UnavailabilityBlock, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, provider_id, start_ts, end_ts, reason, created_at
		FROM unavailability_blocks
		WHERE provider_id = $1
			AND start_ts < $3
			AND end_ts > $2
		ORDER BY start_ts ASC
	`, providerID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.UnavailabilityBlock
	for rows.Next() {
		var b model.UnavailabilityBlock
		if err := rows.Scan(&b.ID, &b.ProviderID, &b.Start, &b.End, &b.Reason, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r queries) InsertBlock(ctx context.Context, b model.UnavailabilityBlock) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO unavailability_blocks (id, provider_id, start_ts, end_ts, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, b.ID, b.ProviderID, b.Start, b.End, b.Reason, b.CreatedAt)
	return err
}

func (r queries) DeleteBlock(ctx context.Context, providerID, id string) error {
	tag, err := r.q.Exec(ctx, `
		DELETE FROM unavailability_blocks
		WHERE id = $1 AND provider_id = $2
	`, id, providerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("unavailability block")
	}
	return nil
}
