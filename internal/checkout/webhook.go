package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/noah-isme/craftshop-api/internal/common"
	"github.com/noah-isme/craftshop-api/internal/obs"
	"github.com/noah-isme/craftshop-api/internal/tasks"
)

const maxWebhookBody = 64 << 10

// StripeWebhook verifies Stripe callbacks and hands paid sessions to the worker.
type StripeWebhook struct {
	Secret    string
	Replay    redis.UniversalClient
	ReplayTTL time.Duration
	Queue     tasks.Enqueuer
	Logger    zerolog.Logger
}

// Handle processes POST /webhooks/stripe.
func (h StripeWebhook) Handle(w http.ResponseWriter, r *http.Request) {
	if h.Secret == "" {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "webhook unavailable", nil)
		return
	}
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			obs.IncCounter(obs.PaymentWebhookTotal, "unknown", "too_large")
			common.JSONError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "payload exceeds limit", nil)
			return
		}
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "unable to read payload", nil)
		return
	}
	event, err := webhook.ConstructEvent(payload, r.Header.Get("Stripe-Signature"), h.Secret)
	if err != nil {
		obs.IncCounter(obs.PaymentWebhookTotal, "unknown", "invalid_signature")
		common.JSONError(w, http.StatusBadRequest, "INVALID_SIGNATURE", "signature verification failed", nil)
		return
	}
	eventType := string(event.Type)
	logger := h.Logger.With().Str("event_id", event.ID).Str("event_type", eventType).Logger()
	ctx := r.Context()

	replayKey := "wh:stripe:" + event.ID
	if h.Replay != nil && h.ReplayTTL > 0 {
		ok, err := h.Replay.SetNX(ctx, replayKey, "1", h.ReplayTTL).Result()
		if err != nil {
			common.JSONError(w, http.StatusInternalServerError, "REPLAY_STORE_ERROR", "replay store unavailable", nil)
			return
		}
		if !ok {
			obs.IncCounter(obs.PaymentWebhookTotal, eventType, "duplicate")
			common.JSON(w, http.StatusOK, map[string]any{"received": true, "duplicate": true})
			return
		}
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		if err := h.completed(ctx, event); err != nil {
			h.release(ctx, replayKey)
			obs.IncCounter(obs.PaymentWebhookTotal, eventType, "error")
			logger.Error().Err(err).Msg("stripe webhook processing failed")
			common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "unable to process event", nil)
			return
		}
		obs.IncCounter(obs.PaymentWebhookTotal, eventType, "ok")
		logger.Info().Msg("checkout session completed")
	case stripe.EventTypeCheckoutSessionExpired:
		obs.IncCounter(obs.PaymentWebhookTotal, eventType, "ok")
		logger.Info().Msg("checkout session expired")
	default:
		obs.IncCounter(obs.PaymentWebhookTotal, eventType, "ignored")
		logger.Debug().Msg("stripe event ignored")
	}
	common.JSON(w, http.StatusOK, map[string]any{"received": true})
}

func (h StripeWebhook) completed(ctx context.Context, event stripe.Event) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return err
	}
	p := tasks.OrderConfirmationPayload{
		SessionID:         sess.ID,
		ClientReferenceID: sess.ClientReferenceID,
		Email:             sess.CustomerEmail,
		AmountTotal:       sess.AmountTotal,
		Currency:          string(sess.Currency),
	}
	if sess.CustomerDetails != nil {
		if sess.CustomerDetails.Email != "" {
			p.Email = sess.CustomerDetails.Email
		}
		p.CustomerName = sess.CustomerDetails.Name
	}
	if h.Queue == nil {
		return nil
	}
	return tasks.EnqueueOrderConfirmation(ctx, h.Queue, p)
}

// release lets Stripe's retry through after a failed attempt.
func (h StripeWebhook) release(ctx context.Context, key string) {
	if h.Replay != nil {
		_ = h.Replay.Del(context.WithoutCancel(ctx), key).Err()
	}
}
