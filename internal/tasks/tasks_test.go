package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/craftshop-api/internal/common"
	"github.com/noah-isme/craftshop-api/internal/obs"
)

func init() {
	obs.MustRegisterDomainMetrics("test", prometheus.NewRegistry())
}

type recordingEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (r *recordingEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.tasks = append(r.tasks, task)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

type failingSender struct{}

func (failingSender) Send(context.Context, common.Email) error { return errors.New("smtp unavailable") }

func samplePayload() OrderConfirmationPayload {
	return OrderConfirmationPayload{
		SessionID:         "cs_test_1",
		ClientReferenceID: "ref-1",
		Email:             "buyer@example.com",
		CustomerName:      "Ada",
		AmountTotal:       18200,
		Currency:          "usd",
	}
}

func TestNewOrderConfirmationTask(t *testing.T) {
	task, err := NewOrderConfirmationTask(samplePayload())
	require.NoError(t, err)
	require.Equal(t, TypeOrderConfirmation, task.Type())

	var p OrderConfirmationPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &p))
	require.Equal(t, samplePayload(), p)

	_, err = NewOrderConfirmationTask(OrderConfirmationPayload{})
	require.Error(t, err)
}

func TestEnqueueOrderConfirmation(t *testing.T) {
	q := &recordingEnqueuer{}
	require.NoError(t, EnqueueOrderConfirmation(context.Background(), q, samplePayload()))
	require.Len(t, q.tasks, 1)

	q.err = asynq.ErrTaskIDConflict
	require.NoError(t, EnqueueOrderConfirmation(context.Background(), q, samplePayload()))

	q.err = errors.New("redis down")
	require.Error(t, EnqueueOrderConfirmation(context.Background(), q, samplePayload()))
}

func TestOrderConfirmationHandlerSendsEmail(t *testing.T) {
	mail := &common.InMemoryEmail{}
	h := OrderConfirmationHandler{Mail: mail, Shop: "Walnut & Co", Logger: zerolog.Nop()}
	task, err := NewOrderConfirmationTask(samplePayload())
	require.NoError(t, err)

	before := testutil.ToFloat64(obs.TasksProcessedTotal.WithLabelValues(TypeOrderConfirmation, "ok"))
	require.NoError(t, h.ProcessTask(context.Background(), task))

	sent := mail.Sent()
	require.Len(t, sent, 1)
	require.Equal(t, "buyer@example.com", sent[0].To)
	require.Equal(t, "Walnut & Co order confirmation", sent[0].Subject)
	require.Contains(t, sent[0].HTML, "182.00 USD")
	require.Contains(t, sent[0].HTML, "ref-1")
	require.Contains(t, sent[0].HTML, "Hi Ada")
	require.Equal(t, before+1, testutil.ToFloat64(obs.TasksProcessedTotal.WithLabelValues(TypeOrderConfirmation, "ok")))
}

func TestOrderConfirmationHandlerSkipsWithoutEmail(t *testing.T) {
	mail := &common.InMemoryEmail{}
	h := OrderConfirmationHandler{Mail: mail, Logger: zerolog.Nop()}
	p := samplePayload()
	p.Email = ""
	task, err := NewOrderConfirmationTask(p)
	require.NoError(t, err)
	require.NoError(t, h.ProcessTask(context.Background(), task))
	require.Empty(t, mail.Sent())
}

func TestOrderConfirmationHandlerErrors(t *testing.T) {
	h := OrderConfirmationHandler{Mail: failingSender{}, Logger: zerolog.Nop()}
	task, err := NewOrderConfirmationTask(samplePayload())
	require.NoError(t, err)
	err = h.ProcessTask(context.Background(), task)
	require.Error(t, err)
	require.False(t, errors.Is(err, asynq.SkipRetry))

	bad := asynq.NewTask(TypeOrderConfirmation, []byte("{"))
	err = h.ProcessTask(context.Background(), bad)
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestNewServeMuxRoutesConfirmation(t *testing.T) {
	mail := &common.InMemoryEmail{}
	mux := NewServeMux(OrderConfirmationHandler{Mail: mail, Logger: zerolog.Nop()})
	task, err := NewOrderConfirmationTask(samplePayload())
	require.NoError(t, err)
	require.NoError(t, mux.ProcessTask(context.Background(), task))
	require.Len(t, mail.Sent(), 1)
}
