package appMiddleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

type panicBody struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Recoverer turns a panic into a generic JSON 500. The timestamp in the body
// is the same one written to the log line.
func Recoverer(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				ts := time.Now().UTC().Format(time.RFC3339Nano)
				reqID := middleware.GetReqID(r.Context())
				logger.ErrorContext(r.Context(), "Panic recovered",
					slog.Any("panic", rec),
					slog.String("request_id", reqID),
					slog.String("timestamp", ts),
					slog.String("stack", string(debug.Stack())),
				)

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(panicBody{
					Success:   false,
					Error:     "internal error",
					RequestID: reqID,
					Timestamp: ts,
				})
			}()
			next.ServeHTTP(w, r)
		})
	}
}
