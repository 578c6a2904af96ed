// Package telemetry exposes Prometheus counters for the poll and capture
// pipeline. Capture processes run short-lived, so the runner daemon is
// the main consumer; everything is nil-safe for binaries that never call
// Init.
package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	ChannelPolls        prometheus.Counter
	ChannelPollFailures prometheus.Counter
	ClassifierResults   *prometheus.CounterVec
	CapturesLaunched    prometheus.Counter
	UploadBytes         prometheus.Counter
	UploadRetries       prometheus.Counter
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		ChannelPolls = promauto.NewCounter(prometheus.CounterOpts{
			Name: "namacap_channel_polls_total",
			Help: "Number of channel poll passes",
		})
		ChannelPollFailures = promauto.NewCounter(prometheus.CounterOpts{
			Name: "namacap_channel_poll_failures_total",
			Help: "Number of channel poll passes that failed",
		})
		ClassifierResults = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "namacap_classifier_results_total",
			Help: "Video classification outcomes by state",
		}, []string{"state"})
		CapturesLaunched = promauto.NewCounter(prometheus.CounterOpts{
			Name: "namacap_captures_launched_total",
			Help: "Number of capture processes spawned",
		})
		UploadBytes = promauto.NewCounter(prometheus.CounterOpts{
			Name: "namacap_upload_bytes_total",
			Help: "Bytes durably uploaded to the remote store",
		})
		UploadRetries = promauto.NewCounter(prometheus.CounterOpts{
			Name: "namacap_upload_retries_total",
			Help: "Chunk uploads retried after connection failures",
		})
	})
}

// IncChannelPolls records one channel poll pass.
func IncChannelPolls() {
	if ChannelPolls != nil {
		ChannelPolls.Inc()
	}
}

// IncChannelPollFailures records one failed channel poll pass.
func IncChannelPollFailures() {
	if ChannelPollFailures != nil {
		ChannelPollFailures.Inc()
	}
}

// IncClassifierResult records one classification outcome.
func IncClassifierResult(state string) {
	if ClassifierResults != nil {
		ClassifierResults.WithLabelValues(state).Inc()
	}
}

// IncCapturesLaunched records one spawned capture process.
func IncCapturesLaunched() {
	if CapturesLaunched != nil {
		CapturesLaunched.Inc()
	}
}

// AddUploadBytes records n durably uploaded bytes.
func AddUploadBytes(n int) {
	if UploadBytes != nil {
		UploadBytes.Add(float64(n))
	}
}

// IncUploadRetries records one retried chunk upload.
func IncUploadRetries() {
	if UploadRetries != nil {
		UploadRetries.Inc()
	}
}
