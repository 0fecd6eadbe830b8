package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("fairlens.engine")

var (
	analysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fairlens",
		Subsystem: "engine",
		Name:      "analyses_total",
		Help:      "Completed session analyses by alert level",
	}, []string{"alert_level"})

	layerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fairlens",
		Subsystem: "engine",
		Name:      "layer_duration_seconds",
		Help:      "Latency of analysis layer calls",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"layer"})

	upstreamFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fairlens",
		Subsystem: "engine",
		Name:      "upstream_failures_total",
		Help:      "Failed calls to the analysis service by layer",
	}, []string{"layer"})

	alertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fairlens",
		Subsystem: "engine",
		Name:      "alerts_total",
		Help:      "Alert dispatch attempts by level and outcome",
	}, []string{"alert_level", "outcome"})

	coalescedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fairlens",
		Subsystem: "engine",
		Name:      "coalesced_total",
		Help:      "AnalyzeSession calls that shared an in-flight analysis of the same subject",
	})
)
