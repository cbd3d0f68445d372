package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/craftshop-api/internal/common"
	"github.com/noah-isme/craftshop-api/internal/money"
	"github.com/noah-isme/craftshop-api/internal/obs"
)

var confirmationTmpl = template.Must(template.New("confirmation").Parse(`<p>Hi {{if .Name}}{{.Name}}{{else}}there{{end}},</p>
<p>Thanks for your order! We received your payment of {{.Amount}} {{.Currency}}.</p>
<p>Your order reference is <strong>{{.Reference}}</strong>. We will email you again when it ships.</p>`))

// OrderConfirmationHandler emails the customer once a session is paid.
type OrderConfirmationHandler struct {
	Mail   common.EmailSender
	Shop   string
	Logger zerolog.Logger
}

// ProcessTask implements asynq.Handler.
func (h OrderConfirmationHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p OrderConfirmationPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		obs.IncCounter(obs.TasksProcessedTotal, TypeOrderConfirmation, "invalid")
		return fmt.Errorf("tasks: decode order confirmation: %v: %w", err, asynq.SkipRetry)
	}
	logger := h.Logger.With().Str("session_id", p.SessionID).Logger()
	if strings.TrimSpace(p.Email) == "" {
		obs.IncCounter(obs.TasksProcessedTotal, TypeOrderConfirmation, "skipped")
		logger.Warn().Msg("order confirmation skipped: no customer email")
		return nil
	}

	reference := p.ClientReferenceID
	if reference == "" {
		reference = p.SessionID
	}
	var body bytes.Buffer
	if err := confirmationTmpl.Execute(&body, map[string]string{
		"Name":      p.CustomerName,
		"Amount":    money.Cents(p.AmountTotal).String(),
		"Currency":  strings.ToUpper(p.Currency),
		"Reference": reference,
	}); err != nil {
		return fmt.Errorf("tasks: render confirmation: %v: %w", err, asynq.SkipRetry)
	}

	shop := h.Shop
	if shop == "" {
		shop = "Craftshop"
	}
	if err := h.Mail.Send(ctx, common.Email{
		To:      p.Email,
		Subject: shop + " order confirmation",
		HTML:    body.String(),
	}); err != nil {
		obs.IncCounter(obs.TasksProcessedTotal, TypeOrderConfirmation, "error")
		logger.Error().Err(err).Msg("order confirmation email failed")
		return fmt.Errorf("tasks: send confirmation: %w", err)
	}
	obs.IncCounter(obs.TasksProcessedTotal, TypeOrderConfirmation, "ok")
	logger.Info().Str("event", "order_confirmation_sent").Msg("order confirmation sent")
	return nil
}

// NewServeMux routes task types to their handlers.
func NewServeMux(confirm OrderConfirmationHandler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypeOrderConfirmation, confirm)
	return mux
}
