package onboarding

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/tidyhome/scheduler/services/scheduling-service/internal/apperr"
)

type Step string

const (
	StepAccount         Step = "account"
	StepBusinessProfile Step = "business_profile"
	StepServices        Step = "services"
	StepServiceArea     Step = "service_area"
	StepAvailability    Step = "availability"
	StepDocuments       Step = "documents"
	StepPayouts         Step = "payouts"
	StepReview          Step = "review"
)

// Steps is the fixed order a provider must walk through.
var Steps = []Step{
	StepAccount,
	StepBusinessProfile,
	StepServices,
	StepServiceArea,
	StepAvailability,
	StepDocuments,
	StepPayouts,
	StepReview,
}

func ParseStep(raw string) (Step, bool) {
	s := Step(strings.TrimSpace(strings.ToLower(raw)))
	for _, known := range Steps {
		if s == known {
			return s, true
		}
	}
	return "", false
}

type Progress struct {
	ProviderID  string
	Completed   []Step
	CompletedAt *time.Time
	UpdatedAt   time.Time
}

func (p Progress) IsCompleted(step Step) bool {
	for _, s := range p.Completed {
		if s == step {
			return true
		}
	}
	return false
}

// CurrentStep is the first step not yet completed, or "" when all are done.
func (p Progress) CurrentStep() Step {
	for _, s := range Steps {
		if !p.IsCompleted(s) {
			return s
		}
	}
	return ""
}

// Accessible reports whether every step before step is completed.
func (p Progress) Accessible(step Step) bool {
	for _, s := range Steps {
		if s == step {
			return true
		}
		if !p.IsCompleted(s) {
			return false
		}
	}
	return false
}

func (p Progress) Done() bool {
	return p.CurrentStep() == ""
}

type Store interface {
	// Get returns the saved progress, or an empty one when none exists.
	Get(ctx context.Context, providerID string) (Progress, error)
	// Update loads the progress under a row lock, applies fn and saves the result.
	Update(ctx context.Context, providerID string, fn func(p *Progress) error) (Progress, error)
}

type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

func New(store Store, logger *slog.Logger, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, logger: logger, now: now}
}

func (s *Service) GetProgress(ctx context.Context, providerID string) (Progress, error) {
	if strings.TrimSpace(providerID) == "" {
		return Progress{}, apperr.Unauthorized("provider identity is required")
	}
	p, err := s.store.Get(ctx, providerID)
	if err != nil {
		return Progress{}, apperr.Store("get onboarding progress", err)
	}
	return p, nil
}

// CanAccess reports whether the provider may work on step. Step names are
// matched case-insensitively.
func (s *Service) CanAccess(ctx context.Context, providerID string, step Step) (bool, error) {
	parsed, ok := ParseStep(string(step))
	if !ok {
		return false, apperr.Validation("unknown onboarding step %q", step)
	}
	p, err := s.GetProgress(ctx, providerID)
	if err != nil {
		return false, err
	}
	return p.Accessible(parsed), nil
}

// CompleteStep marks step done. Locked steps are rejected and completing a
// step twice changes nothing.
func (s *Service) CompleteStep(ctx context.Context, providerID string, step Step) (Progress, error) {
	if strings.TrimSpace(providerID) == "" {
		return Progress{}, apperr.Unauthorized("provider identity is required")
	}
	raw := step
	step, ok := ParseStep(string(raw))
	if !ok {
		return Progress{}, apperr.Validation("unknown onboarding step %q", raw)
	}

	p, err := s.store.Update(ctx, providerID, func(p *Progress) error {
		if p.IsCompleted(step) {
			return nil
		}
		if !p.Accessible(step) {
			return apperr.Validation("step %q is locked until %q is completed", step, p.CurrentStep())
		}
		now := s.now().UTC()
		p.Completed = canonical(append(p.Completed, step))
		p.UpdatedAt = now
		if p.Done() && p.CompletedAt == nil {
			p.CompletedAt = &now
		}
		return nil
	})
	if err != nil {
		return Progress{}, apperr.Store("complete onboarding step", err)
	}
	if p.Done() {
		s.logger.Info("provider onboarding finished", "provider_id", providerID)
	}
	return p, nil
}

func canonical(steps []Step) []Step {
	out := make([]Step, 0, len(steps))
	for _, s := range Steps {
		for _, have := range steps {
			if have == s {
				out = append(out, s)
				break
			}
		}
	}
	return out
}
