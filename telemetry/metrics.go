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
	TasksSubmitted           prometheus.Counter
	TasksSubmitFailed        prometheus.Counter
	RateLimited              prometheus.Counter
	RateLimitPersistFailures prometheus.Counter
	PollErrors               prometheus.Counter

	// Labelled counters
	PollsByStatus   *prometheus.CounterVec // label: status
	MonitorOutcomes *prometheus.CounterVec // label: outcome
	VideoDownloads  *prometheus.CounterVec // label: result (ok|failed)

	// Histograms (seconds)
	APIRequestDuration *prometheus.HistogramVec // label: op
	DownloadDuration   prometheus.Observer

	// Gauges
	ActiveMonitors prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		TasksSubmitted = promauto.NewCounter(prometheus.CounterOpts{Name: "catbot_tasks_submitted_total", Help: "Number of generation tasks accepted by the remote service"})
		TasksSubmitFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "catbot_tasks_submit_failed_total", Help: "Number of generation submissions that failed"})
		RateLimited = promauto.NewCounter(prometheus.CounterOpts{Name: "catbot_rate_limited_total", Help: "Number of requests rejected by the per-user cooldown"})
		RateLimitPersistFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "catbot_rate_limit_persist_failures_total", Help: "Number of failed rate limit store writes"})
		PollErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "catbot_poll_errors_total", Help: "Number of status polls that returned an error"})
		PollsByStatus = promauto.NewCounterVec(prometheus.CounterOpts{Name: "catbot_polls_total", Help: "Status polls by reported status"}, []string{"status"})
		MonitorOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{Name: "catbot_monitor_outcomes_total", Help: "Finished monitors by outcome"}, []string{"outcome"})
		VideoDownloads = promauto.NewCounterVec(prometheus.CounterOpts{Name: "catbot_video_downloads_total", Help: "Video downloads by result"}, []string{"result"})
		APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{Name: "catbot_api_request_duration_seconds", Help: "Generation API request duration seconds", Buckets: prometheus.DefBuckets}, []string{"op"})
		DownloadDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "catbot_video_download_duration_seconds", Help: "Video download duration seconds", Buckets: prometheus.DefBuckets})
		ActiveMonitors = promauto.NewGauge(prometheus.GaugeOpts{Name: "catbot_active_monitors", Help: "Current number of running task monitors"})
	})
}

// ObservePoll counts a poll result by status.
func ObservePoll(status string) {
	if PollsByStatus != nil {
		PollsByStatus.WithLabelValues(status).Inc()
	}
}

// ObserveMonitorOutcome counts a finished monitor.
func ObserveMonitorOutcome(outcome string) {
	if MonitorOutcomes != nil {
		MonitorOutcomes.WithLabelValues(outcome).Inc()
	}
}

// ObserveDownload counts a finished video download by result.
func ObserveDownload(ok bool) {
	if VideoDownloads != nil {
		result := "failed"
		if ok {
			result = "ok"
		}
		VideoDownloads.WithLabelValues(result).Inc()
	}
}

// ObserveAPIRequest records how long a generation API call took.
func ObserveAPIRequest(op string, d time.Duration) {
	if APIRequestDuration != nil {
		APIRequestDuration.WithLabelValues(op).Observe(d.Seconds())
	}
}

// Inc increments c if it has been registered.
func Inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// AddActiveMonitors moves the active monitor gauge by delta.
func AddActiveMonitors(delta float64) {
	if ActiveMonitors != nil {
		ActiveMonitors.Add(delta)
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

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
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
