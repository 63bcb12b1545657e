package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pelageech/indexserv/config"
	"github.com/pelageech/indexserv/metrics"
	"github.com/pelageech/indexserv/server"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func testConfig(t *testing.T, content string) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.html")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg := config.Default()
	cfg.Host = "127.0.0.1"
	cfg.Port = freePort(t)
	cfg.File = path
	cfg.ShutdownTimeout = config.Duration(time.Second)
	return cfg
}

func waitForServer(t *testing.T, url string) *http.Response {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		resp, err := http.Get(url)
		if err == nil {
			return resp
		}
		if time.Now().After(deadline) {
			t.Fatalf("server at %s did not come up: %v", url, err)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestNewHandler(t *testing.T) {
	cfg := testConfig(t, "<html>hi</html>")
	m := metrics.New()
	h := newHandler(cfg, log.New(io.Discard), m)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "<html>hi</html>", rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/index.html", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	require.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("200")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("404")))
}

func TestRun(t *testing.T) {
	cfg := testConfig(t, "<html>run</html>")
	cfg.MetricsPort = freePort(t)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx, cfg, log.New(io.Discard))
	}()

	resp := waitForServer(t, fmt.Sprintf("http://%s/", cfg.Address()))
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "<html>run</html>", string(body))

	resp = waitForServer(t, fmt.Sprintf("http://%s/metrics", cfg.MetricsAddress()))
	body, err = io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.Contains(t, string(body), `indexserv_requests_total{code="200"} 1`)

	// the metrics live on their own listener only
	resp, err = http.Get(fmt.Sprintf("http://%s/metrics", cfg.Address()))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}

func TestRunPortTaken(t *testing.T) {
	cfg := testConfig(t, "<html></html>")

	ln, err := net.Listen("tcp", cfg.Address())
	require.NoError(t, err)
	defer ln.Close()

	err = run(context.Background(), cfg, log.New(io.Discard))
	require.ErrorIs(t, err, server.ErrBind)
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, log.DebugLevel, parseLevel("debug"))
	require.Equal(t, log.WarnLevel, parseLevel("warn"))
	require.Equal(t, log.ErrorLevel, parseLevel("error"))
	require.Equal(t, log.InfoLevel, parseLevel("info"))
}

func TestServerOptions(t *testing.T) {
	cfg := config.Default()
	cfg.KeyFile = "server.key"

	opts := serverOptions(cfg)
	require.Empty(t, opts.CertFile)
	require.Empty(t, opts.KeyFile)
	require.Equal(t, 10*time.Second, opts.ReadTimeout)
	require.Equal(t, 5*time.Second, opts.ShutdownTimeout)

	cfg.CertFile = "server.crt"
	opts = serverOptions(cfg)
	require.Equal(t, "server.crt", opts.CertFile)
	require.Equal(t, "server.key", opts.KeyFile)
}
