package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the Prometheus instruments for the recording pipeline.
type Metrics struct {
	// Segmentation
	SegmentsFinalized prometheus.Counter
	SegmentsDiscarded prometheus.Counter

	// Enrichment queue
	EnrichmentRequests  prometheus.Counter
	EnrichmentSuccesses prometheus.Counter
	EnrichmentFailures  prometheus.Counter
	EnrichmentRetries   prometheus.Counter
	EnrichmentDropped   prometheus.Counter
	QueueDepth          prometheus.Gauge
	CooldownSeconds     prometheus.Gauge

	// Stream connection
	Reconnects      prometheus.Counter
	TransportErrors prometheus.Counter
	FramesForwarded prometheus.Counter
	DeltasReceived  prometheus.Counter
}

// New creates metrics registered on the given registerer; a nil registerer
// uses the default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		SegmentsFinalized: factory.NewCounter(prometheus.CounterOpts{
			Name: "transcriber_segments_finalized_total",
			Help: "Total number of finalized transcription segments",
		}),
		SegmentsDiscarded: factory.NewCounter(prometheus.CounterOpts{
			Name: "transcriber_segments_discarded_total",
			Help: "Total number of sub-minimum buffers discarded at finalize",
		}),
		EnrichmentRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "transcriber_enrichment_requests_total",
			Help: "Total number of refinement calls dispatched",
		}),
		EnrichmentSuccesses: factory.NewCounter(prometheus.CounterOpts{
			Name: "transcriber_enrichment_successes_total",
			Help: "Total number of refinement calls applied",
		}),
		EnrichmentFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "transcriber_enrichment_failures_total",
			Help: "Total number of failed refinement calls",
		}),
		EnrichmentRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "transcriber_enrichment_retries_total",
			Help: "Total number of enrichment jobs re-enqueued after failure",
		}),
		EnrichmentDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "transcriber_enrichment_dropped_total",
			Help: "Total number of enrichment jobs dropped after retry exhaustion",
		}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "transcriber_enrichment_queue_depth",
			Help: "Current number of pending enrichment jobs",
		}),
		CooldownSeconds: factory.NewGauge(prometheus.GaugeOpts{
			Name: "transcriber_enrichment_cooldown_seconds",
			Help: "Current adaptive cooldown between refinement calls",
		}),
		Reconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "transcriber_stream_reconnects_total",
			Help: "Total number of stream reconnect attempts",
		}),
		TransportErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "transcriber_stream_transport_errors_total",
			Help: "Total number of stream transport failures",
		}),
		FramesForwarded: factory.NewCounter(prometheus.CounterOpts{
			Name: "transcriber_stream_frames_forwarded_total",
			Help: "Total number of audio frames forwarded to the source",
		}),
		DeltasReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "transcriber_stream_deltas_received_total",
			Help: "Total number of transcript delta events received",
		}),
	}
}
