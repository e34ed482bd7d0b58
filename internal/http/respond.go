package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"bilancio/internal/core"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			slog.Error("Failed to encode response", "error", err)
		}
	}
}

// writeError maps domain sentinels onto HTTP statuses. Unrecognized
// errors become opaque 500s so internals never leak to clients.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	switch {
	case errors.Is(err, core.ErrNotAuthenticated),
		errors.Is(err, core.ErrInvalidToken),
		errors.Is(err, core.ErrBadCredentials):
		status, message = http.StatusUnauthorized, err.Error()
	case errors.Is(err, core.ErrNotConfirmed):
		status, message = http.StatusForbidden, err.Error()
	case errors.Is(err, core.ErrNotFound):
		status, message = http.StatusNotFound, err.Error()
	case errors.Is(err, core.ErrDuplicateBudget),
		errors.Is(err, core.ErrDuplicateCategory),
		errors.Is(err, core.ErrDuplicateEmail),
		errors.Is(err, core.ErrAccountInUse):
		status, message = http.StatusConflict, err.Error()
	case errors.Is(err, core.ErrReferenceNotFound),
		errors.Is(err, core.ErrExtractionFailed):
		status, message = http.StatusUnprocessableEntity, err.Error()
	// The field-level sentinels all wrap ErrValidation, so one class
	// check covers them.
	case errors.Is(err, core.ErrValidation):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, core.ErrExternalService):
		status, message = http.StatusBadGateway, err.Error()
	}

	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "Request failed",
			"method", r.Method, "url", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorBody{Error: message})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return core.ErrValidation
	}
	return nil
}
