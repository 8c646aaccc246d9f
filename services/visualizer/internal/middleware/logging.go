package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"VisualizerPlatform/pkg/logger"
)

// RequestIDHeader заголовок, в котором передается идентификатор запроса
const RequestIDHeader = "X-Request-ID"

// LoggingMiddleware логирует все HTTP запросы.
// Идентификатор запроса берется из X-Request-ID или генерируется, кладется в контекст и возвращается клиенту.
func LoggingMiddleware(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = uuid.NewString()
			}

			r = r.WithContext(logger.WithRequestID(r.Context(), requestID))
			w.Header().Set(RequestIDHeader, requestID)

			logFields := []logger.Field{
				logger.String("method", r.Method),
				logger.String("url", r.URL.String()),
				logger.String("remote_addr", r.RemoteAddr),
				logger.String("user_agent", r.UserAgent()),
				logger.CtxField(r.Context()),
			}

			log.Debug("Started request", logFields...)

			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			logFields = append(logFields,
				logger.Int("status_code", wrapped.statusCode),
				logger.Int64("bytes", wrapped.bytes),
				logger.Float64("duration_ms", float64(time.Since(start).Microseconds())/1000),
			)

			log.Info("Completed request", logFields...)
		})
	}
}

// responseWriter обертка для перехвата статуса ответа
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	bytes       int64
	wroteHeader bool
}

// WriteHeader перехватывает установку статуса
func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

// Write считает размер тела ответа
func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += int64(n)
	return n, err
}
