package video

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricFramesIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camtrap_frames_ingested_total",
		Help: "Frames written into the ring buffers, per stream.",
	}, []string{"stream"})

	metricMotionScore = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "camtrap_motion_score",
		Help: "Most recent filtered motion energy score.",
	})

	metricBufferFill = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "camtrap_buffer_fill_fraction",
		Help: "Active region fill fraction at the last recorder poll, per stream.",
	}, []string{"stream"})

	metricFlushSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "camtrap_buffer_flush_seconds",
		Help:    "Latency of switching and draining all three buffers to disk.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	metricEventsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "camtrap_events_started_total",
		Help: "Motion events opened on disk.",
	})

	metricEventsClosed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "camtrap_events_closed_total",
		Help: "Motion events closed and handed off for confirmation.",
	})

	metricEventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "camtrap_events_dropped_total",
		Help: "Closed events evicted because the indexing queue was full.",
	})

	metricMotionSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "camtrap_motion_frames_skipped_total",
		Help: "Vector frames recorded without a score to stay within the real-time budget.",
	})
)
