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
	PresenceEvents      prometheus.Counter
	CommandsSent        *prometheus.CounterVec
	CommandSendFailures *prometheus.CounterVec
	StatusReads         prometheus.Counter
	StatusReadMisses    prometheus.Counter

	// Histograms (seconds)
	TransitionDuration prometheus.Observer

	// Gauges
	ActiveSessionsGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		PresenceEvents = promauto.NewCounter(prometheus.CounterOpts{Name: "voice_presence_events_total", Help: "Number of watched-user presence transitions observed"})
		CommandsSent = promauto.NewCounterVec(prometheus.CounterOpts{Name: "voice_commands_sent_total", Help: "Number of IPC commands written for the recorder"}, []string{"action"})
		CommandSendFailures = promauto.NewCounterVec(prometheus.CounterOpts{Name: "voice_command_send_failures_total", Help: "Number of IPC command writes that failed"}, []string{"action"})
		StatusReads = promauto.NewCounter(prometheus.CounterOpts{Name: "voice_status_reads_total", Help: "Number of recorder status reads that returned a record"})
		StatusReadMisses = promauto.NewCounter(prometheus.CounterOpts{Name: "voice_status_read_misses_total", Help: "Number of recorder status reads with no usable record (absent or malformed)"})
		TransitionDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "voice_transition_duration_seconds", Help: "Presence transition handling duration seconds (includes confirmation delays)", Buckets: prometheus.DefBuckets})
		ActiveSessionsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "voice_active_sessions", Help: "Current number of guilds with an active recording session"})
	})
}

// IncPresenceEvent counts one observed presence transition for the watched user.
func IncPresenceEvent() {
	if PresenceEvents != nil {
		PresenceEvents.Inc()
	}
}

// IncCommandSent counts a successfully written IPC command.
func IncCommandSent(action string) {
	if CommandsSent != nil {
		CommandsSent.WithLabelValues(action).Inc()
	}
}

// IncCommandSendFailure counts a failed IPC command write.
func IncCommandSendFailure(action string) {
	if CommandSendFailures != nil {
		CommandSendFailures.WithLabelValues(action).Inc()
	}
}

// IncStatusRead counts a status read as a hit or a miss.
func IncStatusRead(ok bool) {
	if ok {
		if StatusReads != nil {
			StatusReads.Inc()
		}
	} else if StatusReadMisses != nil {
		StatusReadMisses.Inc()
	}
}

// SetActiveSessions records the current active session count.
func SetActiveSessions(n int) {
	if ActiveSessionsGauge != nil {
		ActiveSessionsGauge.Set(float64(n))
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

// WithCorrelation returns a new context embedding correlation id (if absent) and the id.
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
