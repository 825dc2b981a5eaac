// Package cloudmetrics pushes platform-level accounting to the upstream
// metering endpoint. It keeps its own registry so operational telemetry on
// /metrics never leaves the process.
package cloudmetrics

import (
	"context"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Accounting aggregates the counters the platform bills the reseller on.
type Accounting struct {
	registry *prometheus.Registry
	pusher   Pusher

	usageEvents         *prometheus.CounterVec
	tenantsTotal        prometheus.Gauge
	activeSubscriptions prometheus.Gauge
	usageCurrentTotal   prometheus.Gauge
	memoryBytes         prometheus.Gauge
}

func newAccounting(pusher Pusher, platformID string) *Accounting {
	registry := prometheus.NewRegistry()

	constLabels := prometheus.Labels{}
	if id := strings.TrimSpace(platformID); id != "" {
		constLabels["platform_id"] = id
	}

	usageEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "tollway_account_usage_events_total",
		Help:        "Metered requests accepted, by tenant and plan.",
		ConstLabels: constLabels,
	}, []string{"tenant_id", "plan"})
	tenantsTotal := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "tollway_account_tenants",
		Help:        "Tenants provisioned on this deployment.",
		ConstLabels: constLabels,
	})
	activeSubscriptions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "tollway_account_active_subscriptions",
		Help:        "Subscriptions currently in an active state.",
		ConstLabels: constLabels,
	})
	usageCurrentTotal := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "tollway_account_usage_current_total",
		Help:        "Requests recorded across all open billing periods.",
		ConstLabels: constLabels,
	})
	memoryBytes := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "tollway_account_memory_bytes",
		Help:        "Process memory obtained from the OS.",
		ConstLabels: constLabels,
	})

	registry.MustRegister(usageEvents, tenantsTotal, activeSubscriptions, usageCurrentTotal, memoryBytes)

	return &Accounting{
		registry:            registry,
		pusher:              pusher,
		usageEvents:         usageEvents,
		tenantsTotal:        tenantsTotal,
		activeSubscriptions: activeSubscriptions,
		usageCurrentTotal:   usageCurrentTotal,
		memoryBytes:         memoryBytes,
	}
}

func (a *Accounting) RecordUsageEvent(tenantID, plan string) {
	if a == nil {
		return
	}
	a.usageEvents.WithLabelValues(normalizeLabel(tenantID), normalizeLabel(plan)).Inc()
}

func (a *Accounting) SetTenantsTotal(count int64) {
	if a == nil {
		return
	}
	a.tenantsTotal.Set(float64(count))
}

func (a *Accounting) SetActiveSubscriptions(count int64) {
	if a == nil {
		return
	}
	a.activeSubscriptions.Set(float64(count))
}

func (a *Accounting) SetUsageCurrentTotal(count int64) {
	if a == nil {
		return
	}
	a.usageCurrentTotal.Set(float64(count))
}

func (a *Accounting) SetMemoryUsage(bytes uint64) {
	if a == nil {
		return
	}
	a.memoryBytes.Set(float64(bytes))
}

// Push sends the accounting registry upstream.
func (a *Accounting) Push(ctx context.Context) error {
	if a == nil || a.pusher == nil {
		return nil
	}
	return a.pusher.Push(ctx, a.registry)
}

func normalizeLabel(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return value
}

// The package-level recorder lets hot paths report accounting events without
// carrying an Accounting handle. It stays a noop until the exporter enables.
var (
	activeRecorder *Accounting
	recorderMu     sync.RWMutex
)

func setRecorder(a *Accounting) {
	recorderMu.Lock()
	activeRecorder = a
	recorderMu.Unlock()
}

// RecordUsageEvent counts one accepted metered request for upstream billing.
func RecordUsageEvent(tenantID, plan string) {
	recorderMu.RLock()
	rec := activeRecorder
	recorderMu.RUnlock()
	rec.RecordUsageEvent(tenantID, plan)
}
