package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/La100/vibeplanner-sub001/internal/planner/confirm"
	"github.com/La100/vibeplanner-sub001/internal/planner/dispatch"
	"github.com/La100/vibeplanner-sub001/internal/planner/observability"
	"github.com/La100/vibeplanner-sub001/internal/planner/store"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// writeError maps engine errors onto status codes.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *dispatch.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: errorDetail{
			Code: "invalid_action", Message: verr.Error(), Field: verr.Field,
		}})
	case errors.Is(err, errMissingProject):
		writeErr(w, http.StatusBadRequest, "missing_project", err.Error())
	case errors.Is(err, confirm.ErrScopeMismatch):
		writeErr(w, http.StatusConflict, "project_mismatch", err.Error())
	case errors.Is(err, store.ErrConflict):
		writeErr(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, confirm.ErrNotFound), errors.Is(err, store.ErrNotFound):
		writeErr(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, confirm.ErrNotPending):
		writeErr(w, http.StatusConflict, "already_resolved", err.Error())
	case errors.Is(err, confirm.ErrInFlight):
		writeErr(w, http.StatusConflict, "in_flight", err.Error())
	default:
		observability.From(r.Context(), h.logger).Error("request failed", "path", r.URL.Path, "err", err)
		writeErr(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

func writeErr(w http.ResponseWriter, code int, errCode, message string) {
	writeJSON(w, code, errorBody{Error: errorDetail{Code: errCode, Message: message}})
}

// writeJSON serialises v as JSON and writes it to w with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("api: failed to encode JSON response", "err", err)
	}
}
