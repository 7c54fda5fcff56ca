// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	PinsTotal          *prometheus.CounterVec // label outcome: pinned|rate_limited|failed
	VotesTotal         *prometheus.CounterVec // label kind: add|remove
	EventsTotal        *prometheus.CounterVec // label type: message|reaction_added|reaction_removed
	SessionsCreated    prometheus.Counter
	SessionsExpired    prometheus.Counter
	ReactionErrors     prometheus.Counter
	DuplicateEnvelopes prometheus.Counter
	Reconnects         prometheus.Counter

	// Histograms (seconds)
	PinDuration prometheus.Observer

	// Gauges
	SessionsActive prometheus.Gauge
	Connected      prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		PinsTotal = promauto.NewCounterVec(prometheus.CounterOpts{Name: "pinvote_pins_total", Help: "Pin attempts by outcome"}, []string{"outcome"})
		VotesTotal = promauto.NewCounterVec(prometheus.CounterOpts{Name: "pinvote_votes_total", Help: "Applied vote changes by kind"}, []string{"kind"})
		EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{Name: "pinvote_events_total", Help: "Inbound platform events by type"}, []string{"type"})
		SessionsCreated = promauto.NewCounter(prometheus.CounterOpts{Name: "pinvote_sessions_created_total", Help: "Voting sessions opened"})
		SessionsExpired = promauto.NewCounter(prometheus.CounterOpts{Name: "pinvote_sessions_expired_total", Help: "Voting sessions discarded by the expiry sweep"})
		ReactionErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "pinvote_reaction_errors_total", Help: "Failed attempts to attach voting reactions"})
		PinDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "pinvote_pin_duration_seconds", Help: "Latency of the platform pin call", Buckets: prometheus.DefBuckets})
		SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{Name: "pinvote_sessions_active", Help: "Currently open voting sessions"})
		DuplicateEnvelopes = promauto.NewCounter(prometheus.CounterOpts{Name: "pinvote_duplicate_envelopes_total", Help: "Socket Mode envelopes dropped as redeliveries"})
		Reconnects = promauto.NewCounter(prometheus.CounterOpts{Name: "pinvote_socket_reconnects_total", Help: "Socket Mode client restarts after a connection failure"})
		Connected = promauto.NewGauge(prometheus.GaugeOpts{Name: "pinvote_socket_connected", Help: "1 while the Socket Mode connection is up"})
	})
}

// CountPin increments the pin counter for outcome.
func CountPin(outcome string) {
	if PinsTotal != nil {
		PinsTotal.WithLabelValues(outcome).Inc()
	}
}

// CountVote increments the vote counter for kind.
func CountVote(kind string) {
	if VotesTotal != nil {
		VotesTotal.WithLabelValues(kind).Inc()
	}
}

// CountEvent increments the inbound event counter for typ.
func CountEvent(typ string) {
	if EventsTotal != nil {
		EventsTotal.WithLabelValues(typ).Inc()
	}
}

// IncCounter increments c if it has been registered.
func IncCounter(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// SetSessionsActive records the current number of open sessions.
func SetSessionsActive(n int) {
	if SessionsActive != nil {
		SessionsActive.Set(float64(n))
	}
}

// SetConnected records the socket connection state.
func SetConnected(up bool) {
	if Connected == nil {
		return
	}
	if up {
		Connected.Set(1)
	} else {
		Connected.Set(0)
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
