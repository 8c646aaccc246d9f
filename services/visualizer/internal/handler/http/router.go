package http

import (
	"net/http"

	"github.com/gorilla/mux"
)

// UnmatchedEndpoint значение метки endpoint для запросов, не попавших ни в один маршрут
const UnmatchedEndpoint = "unmatched"

// NewRouter создает роутер публичного API.
// Обслуживается единственный маршрут GET /; любой другой путь или метод получает 404.
func NewRouter(h *Handler) *mux.Router {
	// Пути не нормализуются: "//" или "/./" не должны редиректить на "/"
	r := mux.NewRouter().SkipClean(true)

	r.HandleFunc("/", h.Root).Methods(http.MethodGet, http.MethodHead).Name("root")

	r.NotFoundHandler = http.NotFoundHandler()
	// Несовпадение метода для существующего пути отвечает так же, как неизвестный путь
	r.MethodNotAllowedHandler = http.NotFoundHandler()

	return r
}

// EndpointLabeler возвращает функцию, которая превращает запрос в шаблон маршрута роутера.
// Используется как метка endpoint в метриках, чтобы произвольные пути не раздували кардинальность.
func EndpointLabeler(router *mux.Router) func(*http.Request) string {
	return func(req *http.Request) string {
		var match mux.RouteMatch
		if !router.Match(req, &match) || match.MatchErr != nil || match.Route == nil {
			return UnmatchedEndpoint
		}
		tpl, err := match.Route.GetPathTemplate()
		if err != nil {
			return UnmatchedEndpoint
		}
		return tpl
	}
}
