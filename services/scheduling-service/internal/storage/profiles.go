package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/tidyhome/scheduler/services/scheduling-service/internal/apperr"
	"github.com/tidyhome/scheduler/services/scheduling-service/internal/model"
)

func (r queries) EnsureProfile(ctx context.Context, providerID string) (model.ProviderProfile, error) {
	_, err := r.q.Exec(ctx, `
		INSERT INTO provider_profiles (provider_id)
		VALUES ($1)
		ON CONFLICT (provider_id) DO NOTHING
	`, providerID)
	if err != nil {
		return model.ProviderProfile{}, err
	}

	var p model.ProviderProfile
	err = r.q.QueryRow(ctx, `
		SELECT provider_id, display_name, email, phone, timezone, updated_at
		FROM provider_profiles
		WHERE provider_id = $1
	`, providerID).Scan(&p.ProviderID, &p.DisplayName, &p.Email, &p.Phone, &p.Timezone, &p.UpdatedAt)
	return p, err
}

func (r queries) UpdateProfile(ctx context.Context, p model.ProviderProfile) (model.ProviderProfile, error) {
	var out model.ProviderProfile
	err := r.q.QueryRow(ctx, `
		UPDATE provider_profiles
		SET display_name = $2,
			email = $3,
			phone = $4,
			timezone = $5,
			updated_at = now()
		WHERE provider_id = $1
		RETURNING provider_id, display_name, email, phone, timezone, updated_at
	`, p.ProviderID, p.DisplayName, p.Email, p.Phone, p.Timezone).Scan(
		&out.ProviderID, &out.DisplayName, &out.Email, &out.Phone, &out.Timezone, &out.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ProviderProfile{}, apperr.NotFound("provider profile")
	}
	return out, err
}
