package telemetry

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/coinvendo/gateway/internal/infra/config"
)

// Provider represents a telemetry provider handle.
type Provider struct {
	requestCounter   prometheus.Counter
	tickDuration     prometheus.Histogram
	activeUsers      prometheus.Gauge
	onlineSources    prometheus.Gauge
	coinPendingPesos prometheus.Gauge
}

// Attach configures telemetry exporters and returns a provider handle.
func Attach(_ context.Context, cfg *config.AppConfig) (*Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	requestCounter := promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gateway",
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests",
	})

	tickDuration := promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "gateway",
		Name:      "ticker_tick_duration_seconds",
		Help:      "Duration of one Ticker reconciliation pass",
		Buckets:   prometheus.DefBuckets,
	})

	activeUsers := promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "gateway",
		Name:      "active_users",
		Help:      "Number of users with credit_seconds > 0 and not paused",
	})

	onlineSources := promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "gateway",
		Name:      "online_sources",
		Help:      "Number of coin sources seen within the online window",
	})

	coinPendingPesos := promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "gateway",
		Name:      "coin_session_pending_pesos",
		Help:      "Pending peso amount of the currently open coin session, 0 when idle",
	})

	return &Provider{
		requestCounter:   requestCounter,
		tickDuration:     tickDuration,
		activeUsers:      activeUsers,
		onlineSources:    onlineSources,
		coinPendingPesos: coinPendingPesos,
	}, nil
}

// RequestCounter exposes the HTTP request metric.
func (p *Provider) RequestCounter() prometheus.Counter {
	if p == nil {
		return prometheus.NewCounter(prometheus.CounterOpts{})
	}
	return p.requestCounter
}

// TickDuration exposes the Ticker reconciliation-pass histogram.
func (p *Provider) TickDuration() prometheus.Histogram {
	if p == nil {
		return prometheus.NewHistogram(prometheus.HistogramOpts{})
	}
	return p.tickDuration
}

// ActiveUsers exposes the active-user gauge.
func (p *Provider) ActiveUsers() prometheus.Gauge {
	if p == nil {
		return prometheus.NewGauge(prometheus.GaugeOpts{})
	}
	return p.activeUsers
}

// OnlineSources exposes the online-source gauge.
func (p *Provider) OnlineSources() prometheus.Gauge {
	if p == nil {
		return prometheus.NewGauge(prometheus.GaugeOpts{})
	}
	return p.onlineSources
}

// ObserveTickDuration satisfies usecase.TickMetrics, letting a Provider
// be wired into Ticker.SetMetrics without usecase importing this package.
func (p *Provider) ObserveTickDuration(seconds float64) {
	p.TickDuration().Observe(seconds)
}

// CoinPendingPesos exposes the open coin session's pending-amount gauge.
func (p *Provider) CoinPendingPesos() prometheus.Gauge {
	if p == nil {
		return prometheus.NewGauge(prometheus.GaugeOpts{})
	}
	return p.coinPendingPesos
}
