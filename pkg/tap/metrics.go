package tap

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	recordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zoomphone_tap_records_total",
		Help: "Total records emitted by stream",
	}, []string{"stream"})

	streamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "zoomphone_tap_stream_duration_seconds",
		Help:    "Duration of one stream or child partition sync in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
	}, []string{"stream"})

	streamErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zoomphone_tap_stream_errors_total",
		Help: "Total failed stream syncs by stream",
	}, []string{"stream"})
)
