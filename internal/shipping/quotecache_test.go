package shipping

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/craftshop-api/internal/money"
)

func newMiniRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestCachedProviderServesRepeatLookupsFromRedis(t *testing.T) {
	mr, rdb := newMiniRedis(t)
	next := &stubProvider{rates: []Rate{{ServiceName: "USPS Ground Advantage", Amount: "8.47", EstimatedDays: 3}}}
	cached := NewCachedProvider(next, rdb, time.Minute, zerolog.Nop())
	req := ShipmentRequest{To: dest, Parcel: Parcel{LengthIn: 18, WidthIn: 12, HeightIn: 1.5, WeightLbs: 4}}

	first, err := cached.Rates(context.Background(), req)
	require.NoError(t, err)
	second, err := cached.Rates(context.Background(), req)
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Equal(t, int32(1), next.calls.Load())
	require.Len(t, mr.Keys(), 1)

	mr.FastForward(2 * time.Minute)
	_, err = cached.Rates(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, int32(2), next.calls.Load(), "expired quotes are fetched again")
}

func TestCachedProviderDoesNotCacheFailures(t *testing.T) {
	mr, rdb := newMiniRedis(t)
	next := &stubProvider{err: errors.New("carrier down")}
	cached := NewCachedProvider(next, rdb, time.Minute, zerolog.Nop())

	_, err := cached.Rates(context.Background(), ShipmentRequest{To: dest})
	require.Error(t, err)
	require.Empty(t, mr.Keys())
}

func TestCachedProviderSurvivesRedisOutage(t *testing.T) {
	mr, rdb := newMiniRedis(t)
	mr.Close()
	next := &stubProvider{rates: []Rate{{ServiceName: "UPS Ground", Amount: "9.00"}}}
	cached := NewCachedProvider(next, rdb, time.Minute, zerolog.Nop())

	rates, err := cached.Rates(context.Background(), ShipmentRequest{To: dest})
	require.NoError(t, err)
	require.Len(t, rates, 1)
}

type slowProvider struct {
	calls   atomic.Int32
	release chan struct{}
}

func (s *slowProvider) Rates(ctx context.Context, _ ShipmentRequest) ([]Rate, error) {
	s.calls.Add(1)
	<-s.release
	return []Rate{{ServiceName: "UPS Ground", Amount: "9.00"}}, nil
}

func TestCachedProviderCoalescesConcurrentLookups(t *testing.T) {
	_, rdb := newMiniRedis(t)
	next := &slowProvider{release: make(chan struct{})}
	cached := NewCachedProvider(next, rdb, time.Minute, zerolog.Nop())
	req := ShipmentRequest{To: dest}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rates, err := cached.Rates(context.Background(), req)
			require.NoError(t, err)
			require.Len(t, rates, 1)
		}()
	}
	require.Eventually(t, func() bool { return next.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(next.release)
	wg.Wait()
	require.Equal(t, int32(1), next.calls.Load())
}

type gatedProvider struct {
	calls   atomic.Int32
	release chan struct{}
}

func (g *gatedProvider) Rates(ctx context.Context, _ ShipmentRequest) ([]Rate, error) {
	g.calls.Add(1)
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-g.release:
	}
	return []Rate{{ServiceName: "USPS Ground Advantage", Amount: "8.47", EstimatedDays: 3}}, nil
}

func TestCachedProviderWaiterSurvivesLeaderCancellation(t *testing.T) {
	_, rdb := newMiniRedis(t)
	next := &gatedProvider{release: make(chan struct{})}
	est := NewEstimator(NewCachedProvider(next, rdb, time.Minute, zerolog.Nop()), DefaultConfig(), zerolog.Nop())

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderDone := make(chan Estimate, 1)
	go func() {
		e, err := est.Estimate(leaderCtx, []Item{board()}, dest, money.FromUnits(125))
		require.NoError(t, err)
		leaderDone <- e
	}()
	require.Eventually(t, func() bool { return next.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	waiterDone := make(chan Estimate, 1)
	go func() {
		e, err := est.Estimate(context.Background(), []Item{board()}, dest, money.FromUnits(125))
		require.NoError(t, err)
		waiterDone <- e
	}()
	time.Sleep(20 * time.Millisecond)

	cancelLeader()
	leader := <-leaderDone
	require.True(t, leader.UsedFallback, "the cancelled caller stops waiting")

	close(next.release)
	waiter := <-waiterDone
	require.False(t, waiter.UsedFallback)
	require.Equal(t, "USPS Ground Advantage", waiter.ServiceName)
	require.Equal(t, int32(1), next.calls.Load())
}

func TestCachedProviderWaiterHonoursOwnDeadline(t *testing.T) {
	next := &gatedProvider{release: make(chan struct{})}
	t.Cleanup(func() { close(next.release) })
	cached := NewCachedProvider(next, nil, time.Minute, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := cached.Rates(ctx, ShipmentRequest{To: dest})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestCachedProviderSharedCallHasOwnTimeout(t *testing.T) {
	next := &gatedProvider{release: make(chan struct{})}
	t.Cleanup(func() { close(next.release) })
	cached := NewCachedProvider(next, nil, time.Minute, zerolog.Nop()).WithCallTimeout(20 * time.Millisecond)

	_, err := cached.Rates(context.Background(), ShipmentRequest{To: dest})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
