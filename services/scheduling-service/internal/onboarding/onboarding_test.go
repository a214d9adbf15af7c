package onboarding

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidyhome/scheduler/services/scheduling-service/internal/apperr"
)

type memStore struct {
	mu   sync.Mutex
	data map[string]Progress
}

func (m *memStore) Get(_ context.Context, providerID string) (Progress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.data[providerID]
	if !ok {
		return Progress{ProviderID: providerID}, nil
	}
	return p, nil
}

func (m *memStore) Update(_ context.Context, providerID string, fn func(*Progress) error) (Progress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.data[providerID]
	if !ok {
		p = Progress{ProviderID: providerID}
	}
	p.Completed = append([]Step(nil), p.Completed...)
	if err := fn(&p); err != nil {
		return Progress{}, err
	}
	m.data[providerID] = p
	return p, nil
}

func newTestService() *Service {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return New(&memStore{data: map[string]Progress{}}, slog.New(slog.NewTextHandler(io.Discard, nil)), func() time.Time { return now })
}

func TestFreshProviderStartsAtAccount(t *testing.T) {
	svc := newTestService()
	p, err := svc.GetProgress(context.Background(), "prov-1")
	require.NoError(t, err)
	assert.Equal(t, StepAccount, p.CurrentStep())
	assert.True(t, p.Accessible(StepAccount))
	assert.False(t, p.Accessible(StepBusinessProfile))
}

func TestStepsMustBeCompletedInOrder(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	_, err := svc.CompleteStep(ctx, "prov-1", StepServices)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	for i, step := range Steps {
		ok, err := svc.CanAccess(ctx, "prov-1", step)
		require.NoError(t, err)
		require.True(t, ok, "step %s should be accessible", step)
		if i+1 < len(Steps) {
			locked, err := svc.CanAccess(ctx, "prov-1", Steps[i+1])
			require.NoError(t, err)
			require.False(t, locked, "step %s should still be locked", Steps[i+1])
		}

		p, err := svc.CompleteStep(ctx, "prov-1", step)
		require.NoError(t, err)
		assert.Equal(t, Steps[:i+1], p.Completed)
	}

	p, err := svc.GetProgress(ctx, "prov-1")
	require.NoError(t, err)
	assert.True(t, p.Done())
	assert.Equal(t, Step(""), p.CurrentStep())
	require.NotNil(t, p.CompletedAt)
}

func TestCompleteStepIsIdempotent(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	first, err := svc.CompleteStep(ctx, "prov-1", StepAccount)
	require.NoError(t, err)
	second, err := svc.CompleteStep(ctx, "prov-1", StepAccount)
	require.NoError(t, err)
	assert.Equal(t, first.Completed, second.Completed)
	assert.Equal(t, StepBusinessProfile, second.CurrentStep())
}

func TestUnknownStep(t *testing.T) {
	svc := newTestService()
	_, err := svc.CompleteStep(context.Background(), "prov-1", Step("taxes"))
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = svc.CanAccess(context.Background(), "prov-1", Step("taxes"))
	assert.ErrorIs(t, err, apperr.ErrValidation)

	s, ok := ParseStep(" Service_Area ")
	assert.True(t, ok)
	assert.Equal(t, StepServiceArea, s)
}

func TestStepNamesAreCaseInsensitive(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	ok, err := svc.CanAccess(ctx, "prov-1", Step("ACCOUNT"))
	require.NoError(t, err)
	assert.True(t, ok)

	p, err := svc.CompleteStep(ctx, "prov-1", Step(" Account "))
	require.NoError(t, err)
	assert.Equal(t, []Step{StepAccount}, p.Completed)
	assert.Equal(t, StepBusinessProfile, p.CurrentStep())

	ok, err = svc.CanAccess(ctx, "prov-1", Step("Business_Profile"))
	require.NoError(t, err)
	assert.True(t, ok)
}
