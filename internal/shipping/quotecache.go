package shipping

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/noah-isme/craftshop-api/internal/obs"
)

const defaultQuoteCallTimeout = 10 * time.Second

// CachedProvider coalesces identical concurrent rate lookups and keeps
// successful quotes in Redis for a short TTL. Cache failures degrade to a
// direct provider call.
//
// A coalesced lookup is detached from the cancellation of whichever caller
// started it and bounded by its own timeout instead. Each waiter still
// returns as soon as its own context is done.
type CachedProvider struct {
	next        Provider
	client      redis.UniversalClient
	ttl         time.Duration
	callTimeout time.Duration
	group       singleflight.Group
	logger      zerolog.Logger
}

// NewCachedProvider wraps next. A nil client disables caching but keeps coalescing.
func NewCachedProvider(next Provider, client redis.UniversalClient, ttl time.Duration, logger zerolog.Logger) *CachedProvider {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CachedProvider{next: next, client: client, ttl: ttl, callTimeout: defaultQuoteCallTimeout, logger: logger}
}

// WithCallTimeout bounds the shared carrier call.
func (c *CachedProvider) WithCallTimeout(d time.Duration) *CachedProvider {
	if d > 0 {
		c.callTimeout = d
	}
	return c
}

// Rates implements Provider.
func (c *CachedProvider) Rates(ctx context.Context, req ShipmentRequest) ([]Rate, error) {
	key, err := quoteKey(req)
	if err != nil {
		return nil, err
	}
	var cached []Rate
	if hit, err := c.getJSON(ctx, key, &cached); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("quote cache read failed")
	} else if hit {
		obs.IncCounter(obs.ShippingQuoteCacheTotal, "hit")
		return cached, nil
	}
	obs.IncCounter(obs.ShippingQuoteCacheTotal, "miss")

	ch := c.group.DoChan(key, func() (any, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.callTimeout)
		defer cancel()
		rates, err := c.next.Rates(callCtx, req)
		if err != nil {
			return nil, err
		}
		if len(rates) > 0 {
			if err := c.setJSON(callCtx, key, rates); err != nil {
				c.logger.Warn().Err(err).Str("key", key).Msg("quote cache write failed")
			}
		}
		return rates, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]Rate), nil
	}
}

func quoteKey(req ShipmentRequest) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("shipping: encode quote key: %w", err)
	}
	sum := sha256.Sum256(payload)
	return "shipquote:" + hex.EncodeToString(sum[:]), nil
}

func (c *CachedProvider) getJSON(ctx context.Context, key string, dst any) (bool, error) {
	if c.client == nil {
		return false, nil
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

func (c *CachedProvider) setJSON(ctx context.Context, key string, v any) error {
	if c.client == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}
