package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/reloquent/catalogmap/internal/catalog"
	"github.com/reloquent/catalogmap/internal/engine"
	"github.com/reloquent/catalogmap/internal/tree"
)

// jsonResponse writes a JSON response.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("writing json response", "error", err)
	}
}

// errorResponse writes an error JSON response.
func errorResponse(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

// statusFor maps engine and session errors to HTTP status codes.
func statusFor(err error) int {
	var remote *catalog.RemoteError
	switch {
	case errors.Is(err, engine.ErrUnknownSession):
		return http.StatusNotFound
	case errors.Is(err, tree.ErrSessionClosed):
		return http.StatusGone
	case errors.Is(err, tree.ErrNoObjectsSelected):
		return http.StatusUnprocessableEntity
	case errors.As(err, &remote):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// requestLogger is middleware that logs HTTP requests.
func requestLogger(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}
