// Package tasks defines the background jobs run after a payment completes.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
)

// TypeOrderConfirmation is the asynq task type for confirmation emails.
const TypeOrderConfirmation = "order:confirmation"

// OrderConfirmationPayload is the data needed to confirm a paid order.
type OrderConfirmationPayload struct {
	SessionID         string `json:"sessionId"`
	ClientReferenceID string `json:"clientReferenceId,omitempty"`
	Email             string `json:"email"`
	CustomerName      string `json:"customerName,omitempty"`
	AmountTotal       int64  `json:"amountTotal"`
	Currency          string `json:"currency"`
}

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// NewOrderConfirmationTask builds a task deduplicated on the session id.
func NewOrderConfirmationTask(p OrderConfirmationPayload) (*asynq.Task, error) {
	if strings.TrimSpace(p.SessionID) == "" {
		return nil, errors.New("tasks: session id is required")
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("tasks: encode order confirmation: %w", err)
	}
	return asynq.NewTask(TypeOrderConfirmation, payload,
		asynq.TaskID("order-confirmation:"+p.SessionID),
		asynq.MaxRetry(8),
		asynq.Timeout(30*time.Second),
		asynq.Retention(24*time.Hour),
	), nil
}

// EnqueueOrderConfirmation queues a confirmation. A task already queued for
// the same session counts as success.
func EnqueueOrderConfirmation(ctx context.Context, enq Enqueuer, p OrderConfirmationPayload) error {
	task, err := NewOrderConfirmationTask(p)
	if err != nil {
		return err
	}
	if _, err := enq.EnqueueContext(ctx, task); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			return nil
		}
		return fmt.Errorf("tasks: enqueue order confirmation: %w", err)
	}
	return nil
}
