package app

import (
	"context"
	"net"
	"net/http"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"VisualizerPlatform/pkg/config"
	pkgErrors "VisualizerPlatform/pkg/errors"
	"VisualizerPlatform/pkg/health"
	"VisualizerPlatform/pkg/logger"
	"VisualizerPlatform/pkg/metrics"
	handler "VisualizerPlatform/services/visualizer/internal/handler/http"
	"VisualizerPlatform/services/visualizer/internal/middleware"
	"VisualizerPlatform/services/visualizer/internal/server"
)

// ServiceName имя сервиса в логах, метриках и трассировке
const ServiceName = "visualizer"

// App собирает публичный и служебный серверы
type App struct {
	cfg     *config.Config
	logger  logger.Logger
	metrics *metrics.Metrics

	public *server.Server
	admin  *server.Server
}

// New создает приложение по конфигурации. Порты не занимаются до вызова Start.
func New(cfg *config.Config, log logger.Logger, version string) *App {
	router := handler.NewRouter(handler.NewHandler(log))
	m := metrics.NewMetrics(ServiceName, metrics.WithEndpointLabeler(handler.EndpointLabeler(router)))

	// recovery -> logging -> metrics -> router
	var publicHandler http.Handler = router
	publicHandler = m.Middleware(publicHandler)
	publicHandler = middleware.LoggingMiddleware(log)(publicHandler)
	publicHandler = middleware.RecoveryMiddleware(log)(publicHandler)

	a := &App{
		cfg:     cfg,
		logger:  log,
		metrics: m,
	}

	a.public = server.New("public", cfg.Server.Addr(), publicHandler, log,
		server.WithMetrics(m),
		server.WithTimeouts(cfg.Server.ReadTimeout.Std(), cfg.Server.WriteTimeout.Std(), cfg.Server.IdleTimeout.Std()),
		server.WithShutdownTimeout(cfg.Server.ShutdownTimeout.Std()),
	)

	if cfg.Admin.Enabled {
		adminRouter := handler.NewAdminRouter(
			health.NewSimpleHealthChecker(version),
			a.public,
			m.GetHandler(),
		)
		a.admin = server.New("admin", cfg.Admin.Addr(), pkgErrors.Middleware(adminRouter), log,
			server.WithShutdownTimeout(cfg.Server.ShutdownTimeout.Std()),
		)
	}

	return a
}

// Start занимает порты всех серверов. Если какой-то порт занять не удалось,
// уже занятые освобождаются и возвращается ошибка с кодом ErrBind.
func (a *App) Start() error {
	if err := a.public.Listen(); err != nil {
		return err
	}

	if a.admin != nil {
		if err := a.admin.Listen(); err != nil {
			return multierr.Append(err, a.public.Close())
		}
	}

	return nil
}

// Run обслуживает запросы до отмены ctx. Ошибка любого сервера останавливает остальные.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, s := range a.servers() {
		s := s
		g.Go(func() error {
			return s.Serve(gctx)
		})
	}

	return g.Wait()
}

// Close освобождает порты, если Run не вызывался
func (a *App) Close() error {
	var err error
	for _, s := range a.servers() {
		err = multierr.Append(err, s.Close())
	}
	return err
}

// PublicAddr фактический адрес публичного сервера
func (a *App) PublicAddr() net.Addr {
	return a.public.Addr()
}

// AdminAddr фактический адрес служебного сервера или nil, если он выключен
func (a *App) AdminAddr() net.Addr {
	if a.admin == nil {
		return nil
	}
	return a.admin.Addr()
}

// Metrics возвращает метрики приложения
func (a *App) Metrics() *metrics.Metrics {
	return a.metrics
}

func (a *App) servers() []*server.Server {
	servers := []*server.Server{a.public}
	if a.admin != nil {
		servers = append(servers, a.admin)
	}
	return servers
}
