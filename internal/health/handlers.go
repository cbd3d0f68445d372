package health

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/craftshop-api/internal/common"
)

var draining atomic.Bool

// SetReady flips readiness. The API calls SetReady(false) when shutdown
// begins so load balancers stop routing before connections close.
func SetReady(ready bool) {
	draining.Store(!ready)
}

// Check probes a single dependency.
type Check struct {
	Name    string
	Timeout time.Duration
	Probe   func(ctx context.Context) error
}

// Postgres pings the pool.
func Postgres(pool *pgxpool.Pool) Check {
	return Check{Name: "db", Timeout: 500 * time.Millisecond, Probe: pool.Ping}
}

// Redis pings the client.
func Redis(client redis.UniversalClient) Check {
	return Check{Name: "redis", Timeout: 300 * time.Millisecond, Probe: func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}}
}

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	Checks []Check
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready runs every check concurrently and reports 503 if any fails.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if draining.Load() {
		common.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "draining"})
		return
	}
	status := make(map[string]string, len(h.Checks))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	healthy := true
	for _, c := range h.Checks {
		wg.Add(1)
		go func(c Check) {
			defer wg.Done()
			result := "ok"
			if err := c.run(r.Context()); err != nil {
				result = err.Error()
			}
			mu.Lock()
			defer mu.Unlock()
			status[c.Name] = result
			if result != "ok" {
				healthy = false
			}
		}(c)
	}
	wg.Wait()

	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	common.JSON(w, code, status)
}

func (c Check) run(ctx context.Context) error {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.Probe(ctx)
}
