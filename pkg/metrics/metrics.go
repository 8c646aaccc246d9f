package metrics

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Metrics представляет систему метрик
type Metrics struct {
	// Стандартные метрики Prometheus
	RequestCount    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ErrorsCount     *prometheus.CounterVec

	// Дополнительные метрики
	ActiveConnections *prometheus.GaugeVec
	ListenerUp        *prometheus.GaugeVec

	// OpenTelemetry Tracer
	Tracer trace.Tracer `json:"-"`

	registry *prometheus.Registry
	labeler  func(*http.Request) string
}

// Option дополнительная настройка метрик
type Option func(*Metrics)

// WithEndpointLabeler задает функцию, которая превращает запрос в значение метки endpoint.
// По умолчанию используется путь запроса.
func WithEndpointLabeler(f func(*http.Request) string) Option {
	return func(m *Metrics) {
		m.labeler = f
	}
}

// NewMetrics создает новую систему метрик с собственным реестром Prometheus
func NewMetrics(serviceName string, opts ...Option) *Metrics {
	namespace := strings.ReplaceAll(serviceName, "-", "_")

	requestCount := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	errorsCount := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "errors_total",
			Help:      "Total number of HTTP errors",
		},
		[]string{"method", "endpoint", "error_type"},
	)

	activeConnections := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "active_connections",
			Help:      "Number of active connections",
		},
		[]string{"listener"},
	)

	listenerUp := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "listener_up",
			Help:      "1 while the listener is bound and serving",
		},
		[]string{"listener"},
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		requestCount,
		requestDuration,
		errorsCount,
		activeConnections,
		listenerUp,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		RequestCount:      requestCount,
		RequestDuration:   requestDuration,
		ErrorsCount:       errorsCount,
		ActiveConnections: activeConnections,
		ListenerUp:        listenerUp,
		Tracer:            otel.Tracer(serviceName),
		registry:          registry,
		labeler:           func(r *http.Request) string { return r.URL.Path },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Registry возвращает реестр, в котором зарегистрированы метрики
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// GetHandler возвращает HTTP обработчик для эндпоинта /metrics
func (m *Metrics) GetHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware создает middleware для сбора метрик и трассировки
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint := m.labeler(r)

		ctx, span := m.Tracer.Start(r.Context(), r.Method+" "+endpoint, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(wrapped, r.WithContext(ctx))

		duration := time.Since(start).Seconds()

		m.RequestCount.WithLabelValues(r.Method, endpoint, strconv.Itoa(wrapped.statusCode)).Inc()
		m.RequestDuration.WithLabelValues(r.Method, endpoint).Observe(duration)

		if wrapped.statusCode >= 400 {
			errorType := "client_error"
			if wrapped.statusCode >= 500 {
				errorType = "server_error"
				span.SetStatus(codes.Error, http.StatusText(wrapped.statusCode))
			}
			m.ErrorsCount.WithLabelValues(r.Method, endpoint, errorType).Inc()
		}

		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", endpoint),
			attribute.String("http.url", r.URL.String()),
			attribute.Int("http.status_code", wrapped.statusCode),
			attribute.Float64("http.duration", duration),
		)
	})
}

// ConnStateHook возвращает функцию для http.Server.ConnState, которая ведет счетчик активных подключений
func (m *Metrics) ConnStateHook(listener string) func(net.Conn, http.ConnState) {
	gauge := m.ActiveConnections.WithLabelValues(listener)
	return func(_ net.Conn, state http.ConnState) {
		switch state {
		case http.StateNew:
			gauge.Inc()
		case http.StateHijacked, http.StateClosed:
			gauge.Dec()
		}
	}
}

// SetListening отмечает, что listener привязан к порту (true) или остановлен (false)
func (m *Metrics) SetListening(listener string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	m.ListenerUp.WithLabelValues(listener).Set(v)
}

// responseWriter обертка для перехвата статуса ответа
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
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

// Write фиксирует статус 200, если обработчик не вызвал WriteHeader
func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

// InitializeOpenTelemetry инициализирует OpenTelemetry и устанавливает глобальный провайдер трассировки.
// Возвращает функцию остановки провайдера.
func InitializeOpenTelemetry(serviceName, version string) (func(context.Context) error, error) {
	res := resource.NewSchemaless(
		attribute.String("service.name", serviceName),
		attribute.String("service.version", version),
	)

	tp := tracesdk.NewTracerProvider(
		tracesdk.WithSampler(tracesdk.AlwaysSample()),
		tracesdk.WithResource(res),
	)

	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}
