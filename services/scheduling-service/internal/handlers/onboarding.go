package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tidyhome/scheduler/libs/auth"
	"github.com/tidyhome/scheduler/services/scheduling-service/internal/apperr"
	"github.com/tidyhome/scheduler/services/scheduling-service/internal/onboarding"
)

type OnboardingHandler struct {
	svc       *onboarding.Service
	logger    *slog.Logger
	validator *requestValidator
}

func NewOnboardingHandler(svc *onboarding.Service, logger *slog.Logger) *OnboardingHandler {
	return &OnboardingHandler{svc: svc, logger: logger, validator: newRequestValidator()}
}

type progressResponse struct {
	ProviderID     string   `json:"provider_id"`
	CompletedSteps []string `json:"completed_steps"`
	CurrentStep    string   `json:"current_step"`
	Steps          []string `json:"steps"`
	CompletedAt    string   `json:"completed_at,omitempty"`
	UpdatedAt      string   `json:"updated_at,omitempty"`
	Accessible     *bool    `json:"accessible,omitempty"`
}

func toProgressResponse(p onboarding.Progress) progressResponse {
	resp := progressResponse{
		ProviderID:     p.ProviderID,
		CompletedSteps: make([]string, 0, len(p.Completed)),
		CurrentStep:    string(p.CurrentStep()),
		Steps:          make([]string, 0, len(onboarding.Steps)),
	}
	for _, s := range p.Completed {
		resp.CompletedSteps = append(resp.CompletedSteps, string(s))
	}
	for _, s := range onboarding.Steps {
		resp.Steps = append(resp.Steps, string(s))
	}
	if p.CompletedAt != nil {
		resp.CompletedAt = p.CompletedAt.UTC().Format(time.RFC3339)
	}
	if !p.UpdatedAt.IsZero() {
		resp.UpdatedAt = p.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// Progress returns the caller's onboarding state. With ?step= it also
// reports whether that step is open.
func (h *OnboardingHandler) Progress(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, h.logger, apperr.Unauthorized("authentication required"))
		return
	}
	p, err := h.svc.GetProgress(r.Context(), caller.Subject)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	resp := toProgressResponse(p)
	if raw := strings.TrimSpace(r.URL.Query().Get("step")); raw != "" {
		accessible, err := h.svc.CanAccess(r.Context(), caller.Subject, onboarding.Step(raw))
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		resp.Accessible = &accessible
	}
	writeJSON(w, http.StatusOK, resp)
}

type completeStepRequest struct {
	Step string `json:"step" validate:"required,max=64"`
}

func (h *OnboardingHandler) CompleteStep(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, h.logger, apperr.Unauthorized("authentication required"))
		return
	}
	var req completeStepRequest
	if err := h.validator.decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	p, err := h.svc.CompleteStep(r.Context(), caller.Subject, onboarding.Step(strings.TrimSpace(req.Step)))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toProgressResponse(p))
}
