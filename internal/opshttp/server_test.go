package opshttp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keithlinneman/storefront/internal/health"
	"github.com/keithlinneman/storefront/internal/log"
)

// adminGet runs a request from loopback through Handler.
func adminGet(h http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "127.0.0.1:41000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeStatus(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHandler_Probes(t *testing.T) {
	h := Handler(log.Nop(), &Options{
		Health:    health.Fixed(true, ""),
		Readiness: health.Fixed(false, "menu not loaded"),
	})

	for _, path := range []string{"/healthz", "/-/healthy"} {
		rec := adminGet(h, path)
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "ok", decodeStatus(t, rec)["status"], path)
	}
	for _, path := range []string{"/readyz", "/-/ready"} {
		rec := adminGet(h, path)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
		body := decodeStatus(t, rec)
		assert.Equal(t, "unavailable", body["status"], path)
		assert.Contains(t, body["reason"], "menu not loaded", path)
	}
}

func TestHandler_NilProbesPass(t *testing.T) {
	h := Handler(log.Nop(), &Options{})

	assert.Equal(t, http.StatusOK, adminGet(h, "/healthz").Code)
	assert.Equal(t, http.StatusOK, adminGet(h, "/readyz").Code)
}

func TestHandler_ReadinessFollowsProbe(t *testing.T) {
	var menuLoaded atomic.Bool
	h := Handler(log.Nop(), &Options{
		Readiness: health.CheckFunc(func(context.Context) error {
			if !menuLoaded.Load() {
				return errors.New("menu not loaded")
			}
			return nil
		}),
	})

	assert.Equal(t, http.StatusServiceUnavailable, adminGet(h, "/-/ready").Code)
	menuLoaded.Store(true)
	assert.Equal(t, http.StatusOK, adminGet(h, "/-/ready").Code)
}

func TestHandler_Metrics(t *testing.T) {
	metricsH := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "cms_requests_total 3\n")
	})

	rec := adminGet(Handler(log.Nop(), &Options{Metrics: metricsH}), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cms_requests_total 3\n", rec.Body.String())

	rec = adminGet(Handler(log.Nop(), &Options{}), "/metrics")
	assert.Equal(t, http.StatusNotFound, rec.Code, "nil metrics handler leaves the path unmounted")
}

func TestHandler_Pprof(t *testing.T) {
	on := adminGet(Handler(log.Nop(), &Options{EnablePprof: true}), "/debug/pprof/")
	assert.Equal(t, http.StatusOK, on.Code)
	assert.Contains(t, on.Body.String(), "goroutine")

	off := Handler(log.Nop(), &Options{})
	for _, path := range []string{"/debug/pprof/", "/debug/pprof/heap", "/debug/pprof/profile"} {
		assert.Equal(t, http.StatusNotFound, adminGet(off, path).Code, path)
	}
}

func TestHandler_PublicSourceRejected(t *testing.T) {
	h := Handler(log.Nop(), &Options{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.RemoteAddr = "203.0.113.50:5000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandler_RecoverMiddleware(t *testing.T) {
	var panics atomic.Int32
	h := Handler(log.Nop(), &Options{
		UseRecoverMW: true,
		OnPanic:      func() { panics.Add(1) },
		Readiness: health.CheckFunc(func(context.Context) error {
			panic("category tree nil")
		}),
	})

	rec := adminGet(h, "/readyz")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.EqualValues(t, 1, panics.Load())
}

func TestOptions_Port(t *testing.T) {
	assert.Equal(t, DefaultPort, (&Options{}).port())
	assert.Equal(t, 9102, (&Options{Port: 9102}).port())
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestStart_Lifecycle(t *testing.T) {
	port := freePort(t)
	stop, err := Start(context.Background(), log.Nop(), &Options{Port: port, Health: health.Fixed(true, "")})
	require.NoError(t, err)

	url := "http://127.0.0.1:" + strconv.Itoa(port) + "/healthz"
	var resp *http.Response
	require.Eventually(t, func() bool {
		resp, err = http.Get(url)
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))

	require.NoError(t, stop(context.Background()))
	assert.NoError(t, stop(context.Background()), "stop is idempotent")

	_, err = http.Get(url)
	assert.Error(t, err, "listener closed after stop")
}

func TestStart_PortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer ln.Close()

	_, err = Start(context.Background(), log.Nop(), &Options{Port: ln.Addr().(*net.TCPAddr).Port})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen admin")
}
