package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// StatusError reports an upstream response the caller should treat as a failure.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("resilience: upstream responded %s", e.Status)
}

// HTTPClient wraps an http.Client with a per-call timeout and a circuit
// breaker. Calls are made exactly once. Transport errors, 5xx responses and
// expiry of Timeout count as breaker failures; a call abandoned by its caller
// says nothing about the upstream and is not reported.
type HTTPClient struct {
	Client  *http.Client
	Breaker *Breaker
	Timeout time.Duration
	Target  string
}

// Do executes req. The response body must be closed by the caller when err is
// nil. The returned cancel func releases the timeout context and must be called
// once the body has been consumed.
func (cl HTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, context.CancelFunc, error) {
	if cl.Client == nil {
		return nil, func() {}, errors.New("resilience: http client not configured")
	}
	target := cl.Target
	if target == "" {
		target = req.URL.Host
	}
	if cl.Breaker != nil && !cl.Breaker.Allow(ctx) {
		UpstreamRequests.WithLabelValues(target, "short_circuit").Inc()
		return nil, func() {}, ErrOpenCircuit
	}

	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if cl.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, cl.Timeout)
	}
	resp, err := cl.Client.Do(req.WithContext(callCtx))
	switch {
	case err != nil && ctx.Err() != nil:
		cl.release(ctx)
		UpstreamRequests.WithLabelValues(target, "canceled").Inc()
		cancel()
		return nil, func() {}, err
	case err != nil:
		cl.report(ctx, false)
		UpstreamRequests.WithLabelValues(target, outcomeFor(callCtx, err)).Inc()
		cancel()
		return nil, func() {}, err
	case resp.StatusCode >= http.StatusInternalServerError:
		cl.report(ctx, false)
		UpstreamRequests.WithLabelValues(target, "server_error").Inc()
		_ = resp.Body.Close()
		cancel()
		return nil, func() {}, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
	cl.report(ctx, true)
	UpstreamRequests.WithLabelValues(target, "ok").Inc()
	return resp, cancel, nil
}

func (cl HTTPClient) report(ctx context.Context, ok bool) {
	if cl.Breaker != nil {
		cl.Breaker.Report(ctx, ok)
	}
}

func (cl HTTPClient) release(ctx context.Context) {
	if cl.Breaker != nil {
		cl.Breaker.Release(ctx)
	}
}

func outcomeFor(ctx context.Context, err error) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "timeout"
	}
	return "error"
}
