package api

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/tinywideclouds/go-pushrelay-service/internal/logctx"
)

const RequestIDHeader = "X-Request-ID"

// RequestID tags each request with a correlation id, taken from the
// X-Request-ID header when the caller sends one. The id is echoed on the
// response and attached to the request-scoped logger.
func RequestID(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)

			reqLogger := logger.With("request_id", id, "path", r.URL.Path)
			ctx := logctx.WithLogger(r.Context(), reqLogger)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
