package scheduling

import (
	"context"
	"strings"
	"time"

	"github.com/tidyhome/scheduler/services/scheduling-service/internal/apperr"
	"github.com/tidyhome/scheduler/services/scheduling-service/internal/model"
)

// GetProfile returns the provider's profile, creating a default one on first use.
func (s *Service) GetProfile(ctx context.Context, providerID string) (model.ProviderProfile, error) {
	if strings.TrimSpace(providerID) == "" {
		return model.ProviderProfile{}, apperr.Unauthorized("provider identity is required")
	}
	p, err := s.store.EnsureProfile(ctx, providerID)
	if err != nil {
		return model.ProviderProfile{}, apperr.Store("get profile", err)
	}
	return p, nil
}

func (s *Service) UpdateProfile(ctx context.Context, p model.ProviderProfile) (model.ProviderProfile, error) {
	if strings.TrimSpace(p.ProviderID) == "" {
		return model.ProviderProfile{}, apperr.Unauthorized("provider identity is required")
	}
	p.DisplayName = strings.TrimSpace(p.DisplayName)
	p.Email = strings.TrimSpace(p.Email)
	p.Phone = strings.TrimSpace(p.Phone)
	p.Timezone = strings.TrimSpace(p.Timezone)
	if p.Timezone == "" {
		p.Timezone = "UTC"
	}
	if _, err := time.LoadLocation(p.Timezone); err != nil {
		return model.ProviderProfile{}, apperr.Validation("unknown timezone %q", p.Timezone)
	}
	if len(p.DisplayName) > 200 || len(p.Email) > 254 || len(p.Phone) > 32 {
		return model.ProviderProfile{}, apperr.Validation("profile fields exceed their maximum length")
	}

	if _, err := s.store.EnsureProfile(ctx, p.ProviderID); err != nil {
		return model.ProviderProfile{}, apperr.Store("ensure profile", err)
	}
	updated, err := s.store.UpdateProfile(ctx, p)
	if err != nil {
		return model.ProviderProfile{}, apperr.Store("update profile", err)
	}
	return updated, nil
}
