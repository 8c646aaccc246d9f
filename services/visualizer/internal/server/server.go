package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	pkgErrors "VisualizerPlatform/pkg/errors"
	"VisualizerPlatform/pkg/logger"
	"VisualizerPlatform/pkg/metrics"
)

// DefaultShutdownTimeout время на завершение активных запросов при остановке
const DefaultShutdownTimeout = 30 * time.Second

// State состояние жизненного цикла сервера
type State int32

const (
	// StateNotListening порт еще не занят
	StateNotListening State = iota
	// StateListening порт занят, запросы принимаются
	StateListening
	// StateStopped сервер остановлен и больше не запускается
	StateStopped
)

// String возвращает имя состояния
func (s State) String() string {
	switch s {
	case StateNotListening:
		return "NOT_LISTENING"
	case StateListening:
		return "LISTENING"
	case StateStopped:
		return "STOPPED"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Server HTTP сервер с явным разделением привязки порта и обслуживания запросов
type Server struct {
	name            string
	addr            string
	httpServer      *http.Server
	logger          logger.Logger
	metrics         *metrics.Metrics
	shutdownTimeout time.Duration

	mu       sync.Mutex
	listener net.Listener
	state    atomic.Int32
}

// Option дополнительная настройка сервера
type Option func(*Server)

// WithMetrics включает учет подключений и состояния listener
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithTimeouts задает таймауты http.Server. Нулевое значение означает отсутствие таймаута.
func WithTimeouts(read, write, idle time.Duration) Option {
	return func(s *Server) {
		s.httpServer.ReadTimeout = read
		s.httpServer.WriteTimeout = write
		s.httpServer.IdleTimeout = idle
	}
}

// WithShutdownTimeout задает время на graceful shutdown
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// New создает сервер. name используется в логах и метриках ("public", "admin").
func New(name, addr string, handler http.Handler, log logger.Logger, opts ...Option) *Server {
	s := &Server{
		name:            name,
		addr:            addr,
		logger:          log.With(logger.String("listener", name)),
		shutdownTimeout: DefaultShutdownTimeout,
		httpServer: &http.Server{
			Addr:    addr,
			Handler: handler,
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	s.httpServer.ErrorLog = logger.StdLogger(s.logger)
	if s.metrics != nil {
		s.httpServer.ConnState = s.metrics.ConnStateHook(name)
	}

	return s
}

// Listen занимает порт. Ошибка привязки возвращается сразу и имеет код ErrBind.
// После успешной привязки пишется одна строка "Listening on <port>".
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if state := s.State(); state != StateNotListening {
		return pkgErrors.New(pkgErrors.ErrServe, fmt.Sprintf("%s server cannot listen in state %s", s.name, state))
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return pkgErrors.Wrap(err, pkgErrors.ErrBind, fmt.Sprintf("failed to bind %s listener on %s", s.name, s.addr))
	}

	s.listener = ln
	s.state.Store(int32(StateListening))
	if s.metrics != nil {
		s.metrics.SetListening(s.name, true)
	}

	port := Port(ln.Addr())
	s.logger.Info(fmt.Sprintf("Listening on %d", port),
		logger.Int("port", port),
		logger.String("address", ln.Addr().String()))

	return nil
}

// Serve обслуживает запросы на занятом порту до отмены ctx или ошибки сервера.
// При отмене ctx выполняется graceful shutdown; в этом случае возвращается nil.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()

	if ln == nil || s.State() != StateListening {
		return pkgErrors.New(pkgErrors.ErrServe, fmt.Sprintf("%s server is not listening", s.name))
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		s.markStopped()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return pkgErrors.Wrap(err, pkgErrors.ErrServe, fmt.Sprintf("%s server failed", s.name))
	case <-ctx.Done():
	}

	return s.shutdown()
}

// Close освобождает порт, если Serve так и не был вызван
func (s *Server) Close() error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()

	if ln == nil || s.State() != StateListening {
		return nil
	}

	err := ln.Close()
	s.markStopped()
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return pkgErrors.Wrap(err, pkgErrors.ErrServe, fmt.Sprintf("failed to close %s listener", s.name))
	}
	return nil
}

func (s *Server) shutdown() error {
	s.logger.Info("Shutting down server", logger.Duration("timeout", s.shutdownTimeout))

	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	err := s.httpServer.Shutdown(ctx)
	s.markStopped()
	if err != nil {
		return pkgErrors.Wrap(err, pkgErrors.ErrServe, fmt.Sprintf("%s server forced to shutdown", s.name))
	}
	return nil
}

func (s *Server) markStopped() {
	if s.state.Swap(int32(StateStopped)) == int32(StateStopped) {
		return
	}
	if s.metrics != nil {
		s.metrics.SetListening(s.name, false)
	}
	s.logger.Info("Server stopped")
}

// State возвращает текущее состояние сервера
func (s *Server) State() State {
	return State(s.state.Load())
}

// Ready сообщает, принимает ли сервер запросы
func (s *Server) Ready() bool {
	return s.State() == StateListening
}

// Addr возвращает фактический адрес listener или nil, если порт не занят
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Name возвращает имя сервера
func (s *Server) Name() string {
	return s.name
}

// Port извлекает номер порта из адреса listener
func Port(addr net.Addr) int {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}
