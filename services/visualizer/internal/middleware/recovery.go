package middleware

import (
	"fmt"
	"net/http"
	"runtime"

	pkgErrors "VisualizerPlatform/pkg/errors"
	"VisualizerPlatform/pkg/logger"
)

// RecoveryMiddleware обрабатывает паники в обработчиках HTTP
func RecoveryMiddleware(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				recovered := recover()
				if recovered == nil {
					return
				}
				// net/http сам обрывает соединение без записи в лог
				if recovered == http.ErrAbortHandler {
					panic(recovered)
				}

				log.Error("Panic recovered in HTTP handler",
					logger.Any("panic", recovered),
					logger.String("stack_trace", string(debugStack())),
					logger.String("method", r.Method),
					logger.String("path", r.URL.Path),
					logger.String("remote_addr", r.RemoteAddr),
					logger.CtxField(r.Context()))

				pkgErrors.WriteJSON(w, pkgErrors.New(pkgErrors.ErrInternal, "Internal server error").
					WithDetails(fmt.Sprintf("panic: %v", recovered)))
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// debugStack возвращает трейс стека
func debugStack() []byte {
	buf := make([]byte, 1024)
	for {
		n := runtime.Stack(buf, false)
		if n < len(buf) {
			return buf[:n]
		}
		buf = make([]byte, 2*len(buf))
	}
}
