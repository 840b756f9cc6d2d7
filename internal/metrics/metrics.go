// Package metrics registers the prometheus instruments shared by the
// workers, guard, pipeline, DQM and alerter.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IngestDropped counts per-event drops by source and reason.
	IngestDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pulsefeed",
		Subsystem: "ingest",
		Name:      "dropped_total",
		Help:      "Events dropped during ingestion filtering, by source and reason.",
	}, []string{"source", "reason"})

	// IngestAccepted counts events handed to the pipeline.
	IngestAccepted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pulsefeed",
		Subsystem: "ingest",
		Name:      "accepted_total",
		Help:      "Events accepted by the ingestion workers, by source.",
	}, []string{"source"})

	// GuardDropped counts time-sync guard rejections.
	GuardDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pulsefeed",
		Subsystem: "guard",
		Name:      "dropped_total",
		Help:      "Events rejected by the time-sync guard, by source and reason.",
	}, []string{"source", "reason"})

	// GuardPassed counts events that cleared the guard.
	GuardPassed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pulsefeed",
		Subsystem: "guard",
		Name:      "passed_total",
		Help:      "Events that cleared the time-sync guard, by source.",
	}, []string{"source"})

	// StageErrors counts enrichment stage failures.
	StageErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pulsefeed",
		Subsystem: "pipeline",
		Name:      "stage_errors_total",
		Help:      "Enrichment stage failures, by stage.",
	}, []string{"stage"})

	// EventsStored counts persisted events by kind.
	EventsStored = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pulsefeed",
		Subsystem: "store",
		Name:      "events_total",
		Help:      "Events persisted to the event store, by kind.",
	}, []string{"kind"})

	// QualityDimension exposes the latest DQM status per dimension,
	// encoded 0=nominal, 1=degraded, 2=critical.
	QualityDimension = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "pulsefeed",
		Subsystem: "dqm",
		Name:      "dimension_status",
		Help:      "Latest data-quality status per dimension (0 nominal, 1 degraded, 2 critical).",
	}, []string{"dimension"})

	// AlertsSent counts alert deliveries by kind and outcome.
	AlertsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pulsefeed",
		Subsystem: "alert",
		Name:      "sent_total",
		Help:      "Alert dispatch outcomes, by kind and result (sent|suppressed|failed).",
	}, []string{"kind", "result"})

	// CycleDuration observes worker cycle latency per source.
	CycleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pulsefeed",
		Subsystem: "sched",
		Name:      "cycle_seconds",
		Help:      "Worker cycle duration, by source.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"source"})
)
