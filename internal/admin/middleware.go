package admin

import (
	"log/slog"
	"net/http"
	"runtime"

	"github.com/astralis-bot/astralis/internal/jobs"
	"github.com/astralis-bot/astralis/pkg/id"
)

// requestIDHeaders are checked, in order, for an existing request id.
var requestIDHeaders = []string{"X-Request-ID", "X-Correlation-ID"}

// requestID assigns each request a correlation id, reusing one supplied
// by the caller when present. The id rides the request context so
// handler logs carry it, and is echoed in the response header.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var reqID string
		for _, h := range requestIDHeaders {
			if v := r.Header.Get(h); v != "" {
				reqID = v
				break
			}
		}
		if reqID == "" {
			reqID = id.NewCorrelationID()
		}

		w.Header().Set("X-Request-ID", reqID)
		ctx := jobs.WithCorrelationID(r.Context(), reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// recoverStackSize caps the stack captured on panic.
const recoverStackSize = 4096

// recoverer converts handler panics into 500 responses instead of
// killing the listener goroutine.
func recoverer(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					stack := make([]byte, recoverStackSize)
					stack = stack[:runtime.Stack(stack, false)]
					log.ErrorContext(r.Context(), "panic in admin handler",
						slog.Any("panic", rec),
						slog.String("path", r.URL.Path),
						slog.String("stack", string(stack)),
					)
					writeError(w, http.StatusInternalServerError, "internal error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
