package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/tidyhome/scheduler/libs/httpx"
	"github.com/tidyhome/scheduler/services/scheduling-service/internal/apperr"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err onto its HTTP status. Store failures are logged with
// their cause and answered with a generic body.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindStore {
		logger.Error("request failed",
			"request_id", httpx.RequestIDFromContext(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"err", err,
		)
	}
	writeJSON(w, kind.HTTPStatus(), errorResponse{Error: apperr.PublicMessage(err), Code: kind.String()})
}
