package http

import (
	"encoding/json"
	"net/http"

	"VisualizerPlatform/pkg/logger"
)

// emptyObject JSON представление пустого объекта, без завершающего перевода строки
var emptyObject = mustMarshal(struct{}{})

// Handler обработчики публичного HTTP API
type Handler struct {
	logger logger.Logger
}

// NewHandler создает новый экземпляр Handler
func NewHandler(log logger.Logger) *Handler {
	return &Handler{logger: log}
}

// Root отвечает на GET / пустым JSON объектом.
// Заголовки, query и тело запроса игнорируются.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if r.Method == http.MethodHead {
		return
	}

	if _, err := w.Write(emptyObject); err != nil {
		// Клиент закрыл соединение, статус уже отправлен
		h.logger.Debug("Failed to write response",
			logger.Error(err),
			logger.CtxField(r.Context()))
	}
}

func mustMarshal(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
