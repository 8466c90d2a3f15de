package server

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime"
)

// ErrPanicRecovered indicates an HTTP handler panicked and was recovered.
var ErrPanicRecovered = errors.New("panic recovered in http handler")

// recoveryMiddleware recovers from panics in next, logging the panic
// value and a stack trace at Error level and returning a 500 to the
// client instead of tearing down the whole server.
func recoveryMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				buf := make([]byte, 4096)
				n := runtime.Stack(buf, false)

				logger.ErrorContext(r.Context(), "panic recovered in http handler",
					slog.String("path", r.URL.Path),
					slog.Any("panic", rec),
					slog.String("stack", string(buf[:n])),
				)

				writeError(w, http.StatusInternalServerError, ErrPanicRecovered)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
