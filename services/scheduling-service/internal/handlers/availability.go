package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/tidyhome/scheduler/libs/auth"
	"github.com/tidyhome/scheduler/services/scheduling-service/internal/apperr"
	"github.com/tidyhome/scheduler/services/scheduling-service/internal/model"
	"github.com/tidyhome/scheduler/services/scheduling-service/internal/scheduling"
)

type weeklyRuleItem struct {
	DayOfWeek     *int   `json:"day_of_week" validate:"required,min=0,max=6"`
	StartTime     string `json:"start_time" validate:"required,clock"`
	EndTime       string `json:"end_time" validate:"required,clock"`
	BufferMinutes int    `json:"buffer_minutes" validate:"min=0,max=240"`
}

type weeklyAvailabilityBody struct {
	Rules []weeklyRuleItem `json:"rules" validate:"max=100,dive"`
}

func toRuleItems(rules []model.WeeklyRule) weeklyAvailabilityBody {
	out := weeklyAvailabilityBody{Rules: make([]weeklyRuleItem, 0, len(rules))}
	for _, r := range rules {
		day := int(r.DayOfWeek)
		out.Rules = append(out.Rules, weeklyRuleItem{
			DayOfWeek:     &day,
			StartTime:     model.FormatClock(r.StartMinute),
			EndTime:       model.FormatClock(r.EndMinute),
			BufferMinutes: r.BufferMinutes,
		})
	}
	return out
}

func (h *SchedulingHandler) GetWeeklyAvailability(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, h.logger, apperr.Unauthorized("authentication required"))
		return
	}
	rules, err := h.svc.ListWeeklyAvailability(r.Context(), caller.Subject)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toRuleItems(rules))
}

// PutWeeklyAvailability replaces the provider's whole week. An empty list
// clears it.
func (h *SchedulingHandler) PutWeeklyAvailability(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, h.logger, apperr.Unauthorized("authentication required"))
		return
	}
	var body weeklyAvailabilityBody
	if err := h.validator.decode(r, &body); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	rules := make([]model.WeeklyRule, 0, len(body.Rules))
	for _, item := range body.Rules {
		start, _ := model.ParseClock(strings.TrimSpace(item.StartTime))
		end, _ := model.ParseClock(strings.TrimSpace(item.EndTime))
		rules = append(rules, model.WeeklyRule{
			DayOfWeek:     time.Weekday(*item.DayOfWeek),
			StartMinute:   start,
			EndMinute:     end,
			BufferMinutes: item.BufferMinutes,
		})
	}

	saved, err := h.svc.SetWeeklyAvailability(r.Context(), caller.Subject, rules)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toRuleItems(saved))
}

type blockItem struct {
	ID        string `json:"id"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Reason    string `json:"reason,omitempty"`
	CreatedAt string `json:"created_at"`
}

func toBlockItem(b model.UnavailabilityBlock) blockItem {
	return blockItem{
		ID:        b.ID,
		StartTime: b.Start.UTC().Format(time.RFC3339),
		EndTime:   b.End.UTC().Format(time.RFC3339),
		Reason:    b.Reason,
		CreatedAt: b.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type addBlockRequest struct {
	StartTime string `json:"start_time" validate:"required,rfc3339"`
	EndTime   string `json:"end_time" validate:"required,rfc3339"`
	Reason    string `json:"reason" validate:"max=500"`
}

func (h *SchedulingHandler) AddUnavailability(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, h.logger, apperr.Unauthorized("authentication required"))
		return
	}
	var req addBlockRequest
	if err := h.validator.decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	start, _ := time.Parse(time.RFC3339, strings.TrimSpace(req.StartTime))
	end, _ := time.Parse(time.RFC3339, strings.TrimSpace(req.EndTime))

	block, err := h.svc.AddUnavailability(r.Context(), scheduling.BlockRequest{
		ProviderID: caller.Subject,
		Start:      start,
		End:        end,
		Reason:     strings.TrimSpace(req.Reason),
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBlockItem(block))
}

type listBlocksResponse struct {
	Blocks []blockItem `json:"blocks"`
}

func (h *SchedulingHandler) ListUnavailability(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, h.logger, apperr.Unauthorized("authentication required"))
		return
	}
	q := r.URL.Query()
	from, err := parseTime("from", q.Get("from"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	to, err := parseTime("to", q.Get("to"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	blocks, err := h.svc.ListUnavailability(r.Context(), caller.Subject, from, to)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	resp := listBlocksResponse{Blocks: make([]blockItem, 0, len(blocks))}
	for _, b := range blocks {
		resp.Blocks = append(resp.Blocks, toBlockItem(b))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *SchedulingHandler) RemoveUnavailability(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, h.logger, apperr.Unauthorized("authentication required"))
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if err := h.svc.RemoveUnavailability(r.Context(), caller.Subject, id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type profileBody struct {
	ProviderID  string `json:"provider_id,omitempty" validate:"-"`
	DisplayName string `json:"display_name" validate:"max=200"`
	Email       string `json:"email" validate:"omitempty,email,max=254"`
	Phone       string `json:"phone" validate:"max=32"`
	Timezone    string `json:"timezone" validate:"max=64"`
	UpdatedAt   string `json:"updated_at,omitempty" validate:"-"`
}

func toProfileBody(p model.ProviderProfile) profileBody {
	body := profileBody{
		ProviderID:  p.ProviderID,
		DisplayName: p.DisplayName,
		Email:       p.Email,
		Phone:       p.Phone,
		Timezone:    p.Timezone,
	}
	if !p.UpdatedAt.IsZero() {
		body.UpdatedAt = p.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return body
}

func (h *SchedulingHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, h.logger, apperr.Unauthorized("authentication required"))
		return
	}
	p, err := h.svc.GetProfile(r.Context(), caller.Subject)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileBody(p))
}

func (h *SchedulingHandler) PutProfile(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, h.logger, apperr.Unauthorized("authentication required"))
		return
	}
	var body profileBody
	if err := h.validator.decode(r, &body); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	p, err := h.svc.UpdateProfile(r.Context(), model.ProviderProfile{
		ProviderID:  caller.Subject,
		DisplayName: body.DisplayName,
		Email:       body.Email,
		Phone:       body.Phone,
		Timezone:    body.Timezone,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileBody(p))
}
