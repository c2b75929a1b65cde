package capture

import (
	"errors"

	"github.com/myuon/audiosink/wavsink"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the Prometheus metrics for capture sessions.
type Metrics struct {
	SessionsStarted   prometheus.Counter
	SessionsFinalized prometheus.Counter
	FinalizeFailures  prometheus.Counter
	FinalizeDuration  prometheus.Histogram
	BytesWritten      prometheus.Counter
	BuffersRejected   *prometheus.CounterVec
	ErrorsDropped     prometheus.Counter
	InProgress        prometheus.Gauge
}

// NewMetrics creates the metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "audiosink_sessions_started_total",
			Help: "Total number of capture sessions opened",
		}),
		SessionsFinalized: factory.NewCounter(prometheus.CounterOpts{
			Name: "audiosink_sessions_finalized_total",
			Help: "Total number of capture sessions finalized",
		}),
		FinalizeFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "audiosink_finalize_failures_total",
			Help: "Total number of failed finalize attempts",
		}),
		FinalizeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "audiosink_finalize_duration_seconds",
			Help:    "Time taken to flush and patch a capture file",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
		BytesWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "audiosink_payload_bytes_total",
			Help: "Total payload bytes written to finalized capture files",
		}),
		BuffersRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "audiosink_buffers_rejected_total",
			Help: "Total number of sample buffers dropped, by reason",
		}, []string{"reason"}),
		ErrorsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "audiosink_sink_errors_dropped_total",
			Help: "Total number of sink errors discarded because the error queue was full",
		}),
		InProgress: factory.NewGauge(prometheus.GaugeOpts{
			Name: "audiosink_capture_in_progress",
			Help: "1 while a capture session has written its header and is not finalized",
		}),
	}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, wavsink.ErrUnsupportedFormat):
		return "unsupported_format"
	case errors.Is(err, wavsink.ErrSessionNotOpen):
		return "session_not_open"
	case errors.Is(err, wavsink.ErrFileTooLarge):
		return "file_too_large"
	case errors.Is(err, wavsink.ErrIO):
		return "io"
	}
	return "other"
}
