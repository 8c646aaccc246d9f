package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	pkgErrors "VisualizerPlatform/pkg/errors"
	"VisualizerPlatform/pkg/logger"
	"VisualizerPlatform/pkg/metrics"
)

// syncBuffer буфер, безопасный для записи из нескольких горутин
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Sync() error { return nil }

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func emptyObjectHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("{}"))
	})
}

// runServer запускает Serve в горутине и возвращает функцию остановки
func runServer(t *testing.T, s *Server) func() error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Serve(ctx)
	}()

	return func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(5 * time.Second):
			t.Fatal("server did not stop in time")
			return nil
		}
	}
}

// TestServer_ListenAndServe проверяет полный цикл: привязка, запросы, остановка
func TestServer_ListenAndServe(t *testing.T) {
	s := New("public", "127.0.0.1:0", emptyObjectHandler(), logger.NewNop())
	assert.Equal(t, StateNotListening, s.State())
	assert.Nil(t, s.Addr())
	assert.False(t, s.Ready())

	require.NoError(t, s.Listen())
	assert.Equal(t, StateListening, s.State())
	assert.True(t, s.Ready())
	require.NotNil(t, s.Addr())
	assert.NotZero(t, Port(s.Addr()))

	stop := runServer(t, s)

	resp, err := http.Get(fmt.Sprintf("http://%s/", s.Addr()))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, "{}", string(body))

	resp, err = http.Get(fmt.Sprintf("http://%s/missing", s.Addr()))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	require.NoError(t, stop())
	assert.Equal(t, StateStopped, s.State())
	assert.False(t, s.Ready())
}

// TestServer_ListeningLog проверяет строку лога после привязки
func TestServer_ListeningLog(t *testing.T) {
	buf := &syncBuffer{}
	log, err := logger.NewLogger("prod", "info", "test-service", logger.WithOutput(buf))
	require.NoError(t, err)

	s := New("public", "127.0.0.1:0", emptyObjectHandler(), log)
	require.NoError(t, s.Listen())
	defer s.Close()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1, "exactly one line is logged on bind")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))

	port := Port(s.Addr())
	assert.Equal(t, fmt.Sprintf("Listening on %d", port), entry["msg"])
	assert.Equal(t, float64(port), entry["port"])
	assert.Equal(t, "public", entry["listener"])
	assert.Equal(t, "info", entry["level"])
}

// TestServer_BindConflict проверяет, что второй сервер на занятом порту получает ErrBind
func TestServer_BindConflict(t *testing.T) {
	first := New("public", "127.0.0.1:0", emptyObjectHandler(), logger.NewNop())
	require.NoError(t, first.Listen())
	defer first.Close()

	second := New("public", first.Addr().String(), emptyObjectHandler(), logger.NewNop())
	err := second.Listen()

	require.Error(t, err)
	assert.True(t, pkgErrors.HasCode(err, pkgErrors.ErrBind))
	assert.Equal(t, pkgErrors.ExitError, pkgErrors.ExitCode(err))
	assert.Contains(t, err.Error(), first.Addr().String())
	assert.Equal(t, StateNotListening, second.State())

	// Первый сервер продолжает работать
	assert.Equal(t, StateListening, first.State())
}

// TestServer_InvalidAddress проверяет ошибку привязки к некорректному адресу
func TestServer_InvalidAddress(t *testing.T) {
	s := New("public", "127.0.0.1:99999", emptyObjectHandler(), logger.NewNop())

	err := s.Listen()

	require.Error(t, err)
	assert.True(t, pkgErrors.HasCode(err, pkgErrors.ErrBind))
}

// TestServer_StateGuards проверяет недопустимые переходы состояния
func TestServer_StateGuards(t *testing.T) {
	t.Run("serve without listen", func(t *testing.T) {
		s := New("public", "127.0.0.1:0", emptyObjectHandler(), logger.NewNop())

		err := s.Serve(context.Background())

		require.Error(t, err)
		assert.True(t, pkgErrors.HasCode(err, pkgErrors.ErrServe))
	})

	t.Run("listen twice", func(t *testing.T) {
		s := New("public", "127.0.0.1:0", emptyObjectHandler(), logger.NewNop())
		require.NoError(t, s.Listen())
		defer s.Close()

		err := s.Listen()

		require.Error(t, err)
		assert.True(t, pkgErrors.HasCode(err, pkgErrors.ErrServe))
	})

	t.Run("no restart after stop", func(t *testing.T) {
		s := New("public", "127.0.0.1:0", emptyObjectHandler(), logger.NewNop())
		require.NoError(t, s.Listen())
		require.NoError(t, s.Close())
		assert.Equal(t, StateStopped, s.State())

		assert.Error(t, s.Listen())
		assert.Error(t, s.Serve(context.Background()))
	})
}

// TestServer_Close проверяет освобождение порта без вызова Serve
func TestServer_Close(t *testing.T) {
	s := New("public", "127.0.0.1:0", emptyObjectHandler(), logger.NewNop())
	require.NoError(t, s.Listen())
	addr := s.Addr().String()

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	// Порт снова свободен
	again := New("public", addr, emptyObjectHandler(), logger.NewNop())
	require.NoError(t, again.Listen())
	require.NoError(t, again.Close())
}

// TestServer_GracefulShutdown проверяет, что начатый запрос завершается при остановке
func TestServer_GracefulShutdown(t *testing.T) {
	started := make(chan struct{})
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte("{}"))
	})

	s := New("public", "127.0.0.1:0", handler, logger.NewNop(), WithShutdownTimeout(5*time.Second))
	require.NoError(t, s.Listen())
	stop := runServer(t, s)

	type result struct {
		code int
		err  error
	}
	resCh := make(chan result, 1)
	go func() {
		resp, err := http.Get(fmt.Sprintf("http://%s/", s.Addr()))
		if err != nil {
			resCh <- result{err: err}
			return
		}
		resp.Body.Close()
		resCh <- result{code: resp.StatusCode}
	}()

	<-started
	require.NoError(t, stop())

	res := <-resCh
	require.NoError(t, res.err)
	assert.Equal(t, http.StatusOK, res.code)
}

// TestServer_Metrics проверяет метрику состояния listener
func TestServer_Metrics(t *testing.T) {
	m := metrics.NewMetrics("test-service")
	s := New("public", "127.0.0.1:0", emptyObjectHandler(), logger.NewNop(),
		WithMetrics(m),
		WithTimeouts(time.Second, time.Second, time.Second))

	require.NoError(t, s.Listen())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ListenerUp.WithLabelValues("public")))

	stop := runServer(t, s)
	require.NoError(t, stop())

	assert.Equal(t, 0.0, testutil.ToFloat64(m.ListenerUp.WithLabelValues("public")))
}

// TestState_String проверяет имена состояний
func TestState_String(t *testing.T) {
	assert.Equal(t, "NOT_LISTENING", StateNotListening.String())
	assert.Equal(t, "LISTENING", StateListening.String())
	assert.Equal(t, "STOPPED", StateStopped.String())
	assert.Equal(t, "State(7)", State(7).String())
}

var _ zapcore.WriteSyncer = (*syncBuffer)(nil)
