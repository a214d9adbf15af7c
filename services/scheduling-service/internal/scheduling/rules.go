package scheduling

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tidyhome/scheduler/services/scheduling-service/internal/apperr"
	"github.com/tidyhome/scheduler/services/scheduling-service/internal/model"
)

const (
	maxBufferMinutes = 240
	maxReasonLength  = 500
)

// SetWeeklyAvailability replaces the provider's whole week. An empty set
// clears it. On any failure the previous rules stay in place.
func (s *Service) SetWeeklyAvailability(ctx context.Context, providerID string, rules []model.WeeklyRule) ([]model.WeeklyRule, error) {
	if strings.TrimSpace(providerID) == "" {
		return nil, apperr.Unauthorized("provider identity is required")
	}
	normalized, err := normalizeRules(providerID, rules)
	if err != nil {
		return nil, err
	}

	err = s.store.WithProviderLock(ctx, providerID, func(tx Tx) error {
		return tx.ReplaceWeeklyRules(ctx, providerID, normalized)
	})
	if err != nil {
		return nil, apperr.Store("replace weekly rules", err)
	}
	s.logger.Info("weekly availability replaced", "provider_id", providerID, "rules", len(normalized))
	return normalized, nil
}

func (s *Service) ListWeeklyAvailability(ctx context.Context, providerID string) ([]model.WeeklyRule, error) {
	if strings.TrimSpace(providerID) == "" {
		return nil, apperr.Unauthorized("provider identity is required")
	}
	rules, err := s.store.ListWeeklyRules(ctx, providerID)
	if err != nil {
		return nil, apperr.Store("list weekly rules", err)
	}
	return rules, nil
}

func normalizeRules(providerID string, rules []model.WeeklyRule) ([]model.WeeklyRule, error) {
	out := make([]model.WeeklyRule, len(rules))
	for i, r := range rules {
		if r.DayOfWeek < time.Sunday || r.DayOfWeek > time.Saturday {
			return nil, apperr.Validation("rule %d: day_of_week must be between 0 and 6", i)
		}
		if r.StartMinute < 0 || r.EndMinute > model.MinutesPerDay || r.StartMinute >= r.EndMinute {
			return nil, apperr.Validation("rule %d: start_time must be before end_time within one day", i)
		}
		if r.BufferMinutes < 0 || r.BufferMinutes > maxBufferMinutes {
			return nil, apperr.Validation("rule %d: buffer_minutes must be between 0 and %d", i, maxBufferMinutes)
		}
		r.ProviderID = providerID
		out[i] = r
	}

	sort.SliceStable(out, func(a, b int) bool {
		if out[a].DayOfWeek != out[b].DayOfWeek {
			return out[a].DayOfWeek < out[b].DayOfWeek
		}
		return out[a].StartMinute < out[b].StartMinute
	})
	for i := 1; i < len(out); i++ {
		prev, cur := out[i-1], out[i]
		if prev.DayOfWeek == cur.DayOfWeek && cur.StartMinute < prev.EndMinute {
			return nil, apperr.Validation("rules overlap on %s (%s-%s and %s-%s)",
				cur.DayOfWeek, model.FormatClock(prev.StartMinute), model.FormatClock(prev.EndMinute),
				model.FormatClock(cur.StartMinute), model.FormatClock(cur.EndMinute))
		}
	}
	return out, nil
}

type BlockRequest struct {
	ProviderID string
	Start      time.Time
	End        time.Time
	Reason     string
}

func (s *Service) AddUnavailability(ctx context.Context, req BlockRequest) (model.UnavailabilityBlock, error) {
	if strings.TrimSpace(req.ProviderID) == "" {
		return model.UnavailabilityBlock{}, apperr.Unauthorized("provider identity is required")
	}
	if req.Start.IsZero() || req.End.IsZero() {
		return model.UnavailabilityBlock{}, apperr.Validation("start_ts and end_ts are required")
	}
	if !req.End.After(req.Start) {
		return model.UnavailabilityBlock{}, apperr.Validation("end_ts must be after start_ts")
	}
	reason := strings.TrimSpace(req.Reason)
	if len(reason) > maxReasonLength {
		return model.UnavailabilityBlock{}, apperr.Validation("reason must be at most %d characters", maxReasonLength)
	}

	block := model.UnavailabilityBlock{
		ID:         uuid.NewString(),
		ProviderID: req.ProviderID,
		Start:      req.Start.UTC(),
		End:        req.End.UTC(),
		Reason:     reason,
		CreatedAt:  s.now().UTC(),
	}
	err := s.store.WithProviderLock(ctx, req.ProviderID, func(tx Tx) error {
		return tx.InsertBlock(ctx, block)
	})
	if err != nil {
		return model.UnavailabilityBlock{}, apperr.Store("insert unavailability", err)
	}
	return block, nil
}

func (s *Service) ListUnavailability(ctx context.Context, providerID string, from, to time.Time) ([]model.UnavailabilityBlock, error) {
	if strings.TrimSpace(providerID) == "" {
		return nil, apperr.Unauthorized("provider identity is required")
	}
	if err := s.validateRange(from, to); err != nil {
		return nil, err
	}
	blocks, err := s.store.ListBlocks(ctx, providerID, from, to)
	if err != nil {
		return nil, apperr.Store("list unavailability", err)
	}
	return blocks, nil
}

// RemoveUnavailability deletes a block owned by providerID; other providers'
// blocks look the same as missing ones.
func (s *Service) RemoveUnavailability(ctx context.Context, providerID, id string) error {
	if strings.TrimSpace(providerID) == "" {
		return apperr.Unauthorized("provider identity is required")
	}
	if _, err := uuid.Parse(id); err != nil {
		return apperr.Validation("id must be a UUID")
	}
	if err := s.store.DeleteBlock(ctx, providerID, id); err != nil {
		return apperr.Store("delete unavailability", err)
	}
	return nil
}
