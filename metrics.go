package denkmit

import "github.com/prometheus/client_golang/prometheus"

var (
	entriesGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Help:      "Number of live entries in the dataset",
			Name:      "entries",
			Namespace: "denkmit",
		},
		[]string{"dataset"},
	)
	heightGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Help:      "Number of forest layers",
			Name:      "forest_height",
			Namespace: "denkmit",
		},
		[]string{"dataset"},
	)
	rebuildDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Help:      "Time spent rebuilding the forest",
			Name:      "rebuild_duration_seconds",
			Namespace: "denkmit",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		},
		[]string{"dataset"},
	)
	syncCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Help:      "Remote heads processed, by outcome",
			Name:      "syncs_total",
			Namespace: "denkmit",
		},
		[]string{"dataset", "outcome"},
	)
	rejectedCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Help:      "Entries rejected by the consensus rule",
			Name:      "rejected_entries_total",
			Namespace: "denkmit",
		},
		[]string{"dataset"},
	)
	broadcastCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Help:      "Heads published to gossip",
			Name:      "head_broadcasts_total",
			Namespace: "denkmit",
		},
		[]string{"dataset"},
	)
)

func init() {
	prometheus.MustRegister(
		entriesGauge,
		heightGauge,
		rebuildDuration,
		syncCounter,
		rejectedCounter,
		broadcastCounter,
	)
}

func updateForestMetrics(dataset string, size, height int) {
	entriesGauge.WithLabelValues(dataset).Set(float64(size))
	heightGauge.WithLabelValues(dataset).Set(float64(height))
}
