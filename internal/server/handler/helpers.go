package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/optionsentry/optionsentry/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps known domain errors onto HTTP statuses. Unknown errors
// are logged and reported as 500 with a generic message so internals do not
// leak to clients.
func writeDomainError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error, action string) {
	var cfgErr *domain.ConfigError
	var transErr *domain.InvalidTransitionError

	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrUnknownOrder):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrNotRunning), errors.Is(err, domain.ErrAlreadyLoading):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &transErr):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &cfgErr):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrInvalidPercent), errors.Is(err, domain.ErrUnknownSymbol), errors.Is(err, domain.ErrNoPrice):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		logger.ErrorContext(r.Context(), "handler: "+action+" failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to "+action)
	}
}

// parseOrderFilter extracts kind/status filter parameters from the query
// string. Unknown values are rejected so typos do not silently match nothing.
func parseOrderFilter(r *http.Request) (domain.OrderFilter, error) {
	q := r.URL.Query()
	var f domain.OrderFilter

	switch kind := domain.OrderKind(q.Get("kind")); kind {
	case "", domain.OrderKindSimulated, domain.OrderKindLive:
		f.Kind = kind
	default:
		return f, fmt.Errorf("unknown order kind %q", kind)
	}

	switch status := domain.OrderStatus(q.Get("status")); status {
	case "", domain.OrderStatusPending, domain.OrderStatusConfirmed, domain.OrderStatusFilled,
		domain.OrderStatusPartiallyFilled, domain.OrderStatusCancelled, domain.OrderStatusFailed:
		f.Status = status
	default:
		return f, fmt.Errorf("unknown order status %q", status)
	}

	return f, nil
}

// pathParam extracts a named path parameter from the request using Go 1.22+
// built-in routing (http.Request.PathValue).
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}
