package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"energy-agent/internal/middleware"
	"energy-agent/internal/usecase"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to its status and safe message. The underlying cause
// is logged, never returned to the client.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	ue := usecase.AsError(err)
	requestID := middleware.GetRequestID(r.Context())
	status := ue.Code.HTTPStatus()

	attrs := []slog.Attr{
		slog.String("request_id", requestID),
		slog.String("code", string(ue.Code)),
		slog.String("reason", ue.Reason),
	}
	if ue.Err != nil {
		attrs = append(attrs, slog.String("error", ue.Err.Error()))
	}
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	logger.LogAttrs(r.Context(), level, "request failed", attrs...)

	middleware.WriteError(w, status, string(ue.Code), ue.Code.SafeMessage(), requestID)
}

func invalidBody(err error) error {
	return &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_body", Err: err}
}

// decodeJSON reads a single JSON value from the request body. Numbers are
// kept as json.Number so integers survive the round trip to the store.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return invalidBody(errors.New("empty body"))
		}
		return invalidBody(err)
	}
	if dec.More() {
		return invalidBody(errors.New("trailing data after JSON value"))
	}
	return nil
}
