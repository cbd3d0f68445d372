package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// ShippingEstimatesTotal counts estimates by source (carrier or fallback).
	ShippingEstimatesTotal *prometheus.CounterVec
	// ShippingProviderLatency records carrier lookup latency in milliseconds.
	ShippingProviderLatency *prometheus.HistogramVec
	// ShippingQuoteCacheTotal counts quote cache lookups by result.
	ShippingQuoteCacheTotal *prometheus.CounterVec
	// CheckoutSessionsTotal counts checkout attempts by result.
	CheckoutSessionsTotal *prometheus.CounterVec
	// PaymentWebhookTotal counts inbound payment webhooks by event type and outcome.
	PaymentWebhookTotal *prometheus.CounterVec
	// TasksProcessedTotal counts background task executions.
	TasksProcessedTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		ShippingEstimatesTotal = registerVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shipping_estimates_total",
			Help:      "Count of shipping estimates by source.",
		}, []string{"source"}))
		ShippingProviderLatency = registerVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "shipping_provider_duration_ms",
			Help:      "Carrier rate lookup latency in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000, 8000},
		}, []string{"result"}))
		ShippingQuoteCacheTotal = registerVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shipping_quote_cache_total",
			Help:      "Carrier quote cache lookups by result.",
		}, []string{"result"}))
		CheckoutSessionsTotal = registerVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_sessions_total",
			Help:      "Count of checkout session attempts by result.",
		}, []string{"result"}))
		PaymentWebhookTotal = registerVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_webhook_total",
			Help:      "Count of processed payment webhooks by outcome.",
		}, []string{"event", "result"}))
		TasksProcessedTotal = registerVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_processed_total",
			Help:      "Count of background tasks processed by type and outcome.",
		}, []string{"task", "result"}))
	})
}

// IncCounter increments vec when domain metrics are registered.
func IncCounter(vec *prometheus.CounterVec, labels ...string) {
	if vec == nil {
		return
	}
	vec.WithLabelValues(labels...).Inc()
}

// ObserveHistogram records v when domain metrics are registered.
func ObserveHistogram(vec *prometheus.HistogramVec, v float64, labels ...string) {
	if vec == nil {
		return
	}
	vec.WithLabelValues(labels...).Observe(v)
}

func registerVec[T prometheus.Collector](reg prometheus.Registerer, collector T) T {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
			return collector
		}
		panic(fmt.Errorf("register metric: %w", err))
	}
	return collector
}
