package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tidyhome/scheduler/libs/db"
	"github.com/tidyhome/scheduler/services/scheduling-service/internal/apperr"
	"github.com/tidyhome/scheduler/services/scheduling-service/internal/model"
	"github.com/tidyhome/scheduler/services/scheduling-service/internal/scheduling"
)

const bookingColumns = `id, provider_id, homeowner_id, start_ts, end_ts, status, service_type,
	description, buffer_minutes, cancelled_at, cancel_reason, created_at`

func scanBooking(row pgx.Row) (model.Booking, error) {
	var (
		b           model.Booking
		status      string
		cancelledAt *time.Time
	)
	err := row.Scan(
		&b.ID,
		&b.ProviderID,
		&b.HomeownerID,
		&b.Start,
		&b.End,
		&status,
		&b.ServiceType,
		&b.Description,
		&b.BufferMinutes,
		&cancelledAt,
		&b.CancelReason,
		&b.CreatedAt,
	)
	if err != nil {
		return model.Booking{}, err
	}
	b.Status = model.BookingStatus(status)
	b.CancelledAt = cancelledAt
	return b, nil
}

func collectBookings(rows pgx.Rows) ([]model.Booking, error) {
	defer rows.Close()
	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ListActiveBookings matches on the buffered interval. The outer bounds use
// the largest allowed buffer so the provider/start_ts index stays usable.
func (r queries) ListActiveBookings(ctx context.Context, providerID string, from, to time.Time) ([]model.Booking, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE provider_id = $1
			AND status IN ('pending', 'confirmed')
			AND start_ts < $3::timestamptz + interval '240 minutes'
			AND end_ts > $2::timestamptz - interval '240 minutes'
			AND start_ts - make_interval(mins => buffer_minutes) < $3
			AND end_ts + make_interval(mins => buffer_minutes) > $2
		ORDER BY start_ts ASC
	`, providerID, from, to)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (r queries) InsertBooking(ctx context.Context, b model.Booking) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO bookings
			(id, provider_id, homeowner_id, start_ts, end_ts, status, service_type, description, buffer_minutes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, b.ID, b.ProviderID, b.HomeownerID, b.Start, b.End, string(b.Status), b.ServiceType, b.Description,
		b.BufferMinutes, b.CreatedAt)
	if db.HasCode(err, db.CodeExclusionViolation, db.CodeUniqueViolation) {
		return apperr.SlotConflict("requested slot is not available")
	}
	return err
}

func (r queries) GetBooking(ctx context.Context, id string) (model.Booking, error) {
	b, err := scanBooking(r.q.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Booking{}, apperr.NotFound("booking")
	}
	return b, err
}

func (r queries) GetBookingForUpdate(ctx context.Context, id string) (model.Booking, error) {
	b, err := scanBooking(r.q.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Booking{}, apperr.NotFound("booking")
	}
	return b, err
}

func (r queries) UpdateBooking(ctx context.Context, b model.Booking) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE bookings
		SET status = $2,
			cancelled_at = $3,
			cancel_reason = $4,
			updated_at = now()
		WHERE id = $1
	`, b.ID, string(b.Status), b.CancelledAt, b.CancelReason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("booking")
	}
	return nil
}

func (r queries) ListBookings(ctx context.Context, f scheduling.BookingFilter) ([]model.Booking, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.ProviderID != "" {
		add("provider_id = $%d", f.ProviderID)
	}
	if f.HomeownerID != "" {
		add("homeowner_id = $%d", f.HomeownerID)
	}
	if f.From != nil {
		add("end_ts > $%d", *f.From)
	}
	if f.To != nil {
		add("start_ts < $%d", *f.To)
	}
	if len(where) == 0 {
		return nil, errors.New("list bookings: provider or homeowner filter required")
	}
	args = append(args, f.Limit)

	sql := `SELECT ` + bookingColumns + ` FROM bookings WHERE ` + strings.Join(where, " AND ") +
		fmt.Sprintf(` ORDER BY start_ts DESC LIMIT $%d`, len(args))
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}
