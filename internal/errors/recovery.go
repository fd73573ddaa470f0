package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/copyleftdev/warpbench/internal/logging"
)

// Body is the JSON error envelope of the REST API.
type Body struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// WriteJSON writes err as a JSON error body with its HTTP status.
func WriteJSON(w http.ResponseWriter, err error) {
	e := FromError(err)
	var body Body
	body.Error.Code = e.Status
	body.Error.Message = e.Public()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status)
	_ = json.NewEncoder(w).Encode(body)
}

// RecoveryMiddleware returns a middleware that recovers from panics and
// answers with a JSON 500.
func RecoveryMiddleware(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Error("recovered from panic", map[string]interface{}{
						"error":  fmt.Sprint(rec),
						"stack":  string(debug.Stack()),
						"method": r.Method,
						"path":   r.URL.Path,
						"query":  r.URL.RawQuery,
					})
					WriteJSON(w, Errorf("panic: %v", rec))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// HandlerFunc is an HTTP handler that reports failure by returning an
// error.
type HandlerFunc func(http.ResponseWriter, *http.Request) error

// ErrorHandler adapts fn to http.HandlerFunc. A returned error is written
// with WriteJSON; internal errors are logged with their stack.
func ErrorHandler(logger *logging.Logger, fn HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := fn(w, r)
		if err == nil {
			return
		}
		e := FromError(err)
		if e.Status >= http.StatusInternalServerError {
			logger.WithError(err).Error("request error", map[string]interface{}{
				"status": e.Status,
				"method": r.Method,
				"path":   r.URL.Path,
				"stack":  e.StackTrace(),
			})
		}
		WriteJSON(w, e)
	}
}
