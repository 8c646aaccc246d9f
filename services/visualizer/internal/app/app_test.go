package app

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"VisualizerPlatform/pkg/config"
	pkgErrors "VisualizerPlatform/pkg/errors"
	"VisualizerPlatform/pkg/logger"
)

func testConfig(adminEnabled bool) *config.Config {
	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.ShutdownTimeout = config.Duration(5 * time.Second)
	cfg.Admin.Enabled = adminEnabled
	cfg.Admin.Host = "127.0.0.1"
	cfg.Admin.Port = 0
	return cfg
}

func doRequest(t *testing.T, method, url string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

// startApp занимает порты и запускает Run в горутине
func startApp(t *testing.T, a *App) func() error {
	t.Helper()
	require.NoError(t, a.Start())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- a.Run(ctx)
	}()

	return func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(5 * time.Second):
			t.Fatal("app did not stop in time")
			return nil
		}
	}
}

// TestApp_PublicAPI проверяет публичный API через настоящий сокет
func TestApp_PublicAPI(t *testing.T) {
	a := New(testConfig(false), logger.NewNop(), "test")
	stop := startApp(t, a)

	base := fmt.Sprintf("http://%s", a.PublicAddr())

	resp, body := doRequest(t, http.MethodGet, base+"/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, "{}", body)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp, body = doRequest(t, http.MethodGet, base+"/?page=2")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "{}", body)

	resp, _ = doRequest(t, http.MethodHead, base+"/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/missing"},
		{http.MethodGet, "/health"},
		{http.MethodGet, "/metrics"},
		{http.MethodPost, "/"},
	} {
		resp, _ = doRequest(t, tc.method, base+tc.path)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, "%s %s", tc.method, tc.path)
	}

	require.NoError(t, stop())
	assert.Nil(t, a.AdminAddr())
}

// TestApp_AdminAPI проверяет служебный сервер и учет запросов в метриках
func TestApp_AdminAPI(t *testing.T) {
	a := New(testConfig(true), logger.NewNop(), "v1.2.3")
	stop := startApp(t, a)
	defer func() { require.NoError(t, stop()) }()

	require.NotNil(t, a.AdminAddr())
	public := fmt.Sprintf("http://%s", a.PublicAddr())
	admin := fmt.Sprintf("http://%s", a.AdminAddr())

	doRequest(t, http.MethodGet, public+"/")
	doRequest(t, http.MethodGet, public+"/does/not/exist")

	resp, body := doRequest(t, http.MethodGet, admin+"/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"version":"v1.2.3"`)

	resp, body = doRequest(t, http.MethodGet, admin+"/ready")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "ready")

	resp, _ = doRequest(t, http.MethodGet, admin+"/live")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = doRequest(t, http.MethodGet, admin+"/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `visualizer_http_requests_total{endpoint="/",method="GET",status="200"} 1`)
	assert.Contains(t, body, `visualizer_http_requests_total{endpoint="unmatched",method="GET",status="404"} 1`)
	assert.Contains(t, body, `visualizer_system_listener_up{listener="public"} 1`)
	assert.False(t, strings.Contains(body, "/does/not/exist"), "raw paths must not become label values")

	// Служебные эндпоинты не доступны на публичном порту
	resp, _ = doRequest(t, http.MethodGet, public+"/ready")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// TestApp_PublicBindConflict проверяет ошибку привязки публичного порта
func TestApp_PublicBindConflict(t *testing.T) {
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer occupied.Close()

	cfg := testConfig(false)
	cfg.Server.Port = occupied.Addr().(*net.TCPAddr).Port

	a := New(cfg, logger.NewNop(), "test")
	err = a.Start()

	require.Error(t, err)
	assert.True(t, pkgErrors.HasCode(err, pkgErrors.ErrBind))
	assert.Equal(t, pkgErrors.ExitError, pkgErrors.ExitCode(err))
}

// TestApp_AdminBindConflict проверяет, что при ошибке служебного порта публичный порт освобождается
func TestApp_AdminBindConflict(t *testing.T) {
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer occupied.Close()

	cfg := testConfig(true)
	cfg.Admin.Port = occupied.Addr().(*net.TCPAddr).Port

	a := New(cfg, logger.NewNop(), "test")
	err = a.Start()

	require.Error(t, err)
	assert.True(t, pkgErrors.HasCode(err, pkgErrors.ErrBind))

	publicAddr := a.PublicAddr()
	require.NotNil(t, publicAddr)
	ln, err := net.Listen("tcp", publicAddr.String())
	require.NoError(t, err, "public port must be released")
	ln.Close()
}

// TestApp_Close проверяет освобождение портов без Run
func TestApp_Close(t *testing.T) {
	a := New(testConfig(true), logger.NewNop(), "test")
	require.NoError(t, a.Start())

	assert.NoError(t, a.Close())
	assert.NoError(t, a.Close())
}
