package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/craftshop-api/internal/health"
)

func okCheck(name string) health.Check {
	return health.Check{Name: name, Probe: func(context.Context) error { return nil }}
}

func readyStatus(t *testing.T, h health.Handler) (int, map[string]string) {
	t.Helper()
	rr := httptest.NewRecorder()
	h.Ready(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	var status map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	return rr.Code, status
}

func TestLive(t *testing.T) {
	rr := httptest.NewRecorder()
	health.Handler{}.Live(rr, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ok", rr.Body.String())
}

func TestReadySuccess(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	code, status := readyStatus(t, health.Handler{Checks: []health.Check{okCheck("db"), health.Redis(client)}})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, map[string]string{"db": "ok", "redis": "ok"}, status)
}

func TestReadyFailure(t *testing.T) {
	failing := health.Check{Name: "db", Probe: func(context.Context) error { return errors.New("db down") }}
	code, status := readyStatus(t, health.Handler{Checks: []health.Check{failing, okCheck("redis")}})
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, "db down", status["db"])
	require.Equal(t, "ok", status["redis"])
}

func TestReadyCheckTimeout(t *testing.T) {
	slow := health.Check{Name: "db", Timeout: 10 * time.Millisecond, Probe: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	code, status := readyStatus(t, health.Handler{Checks: []health.Check{slow}})
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, context.DeadlineExceeded.Error(), status["db"])
}

func TestReadinessAfterShutdown(t *testing.T) {
	h := health.Handler{Checks: []health.Check{okCheck("db")}}
	health.SetReady(false)
	t.Cleanup(func() { health.SetReady(true) })

	code, status := readyStatus(t, h)
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, "draining", status["status"])
}
