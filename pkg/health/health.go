package health

import (
	"encoding/json"
	"net/http"
	"time"
)

// HealthChecker интерфейс для проверки здоровья сервиса
type HealthChecker interface {
	Check() *HealthStatus
}

// ReadinessChecker сообщает, готов ли сервис принимать трафик
type ReadinessChecker interface {
	Ready() bool
}

// ReadinessFunc адаптер функции к ReadinessChecker
type ReadinessFunc func() bool

// Ready вызывает f()
func (f ReadinessFunc) Ready() bool {
	return f()
}

// HealthStatus представляет статус здоровья сервиса
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]Status `json:"services,omitempty"`
	Version   string            `json:"version,omitempty"`
}

// Status представляет статус сервиса
type Status struct {
	Status  string `json:"status"`
	Details string `json:"details,omitempty"`
}

// SimpleHealthChecker простая реализация HealthChecker
type SimpleHealthChecker struct {
	version string
}

// NewSimpleHealthChecker создает новый SimpleHealthChecker
func NewSimpleHealthChecker(version string) *SimpleHealthChecker {
	return &SimpleHealthChecker{version: version}
}

// Check проверяет здоровье сервиса
func (s *SimpleHealthChecker) Check() *HealthStatus {
	return &HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   s.version,
	}
}

// Handler создает HTTP обработчик для health check эндпоинта
func Handler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, checker.Check())
	}
}

// ReadyHandler создает HTTP обработчик для ready check эндпоинта.
// Возвращает 200, если сервис готов принимать трафик, иначе 503.
func ReadyHandler(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !checker.Ready() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

// LiveHandler создает HTTP обработчик для live check эндпоинта
// Возвращает 200 если сервис жив
func LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
