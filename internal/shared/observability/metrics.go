package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics definitions
var (
	ExtractionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "depaudit_extraction_seconds",
		Help:    "Time spent parsing and extracting references from one compiled unit.",
		Buckets: prometheus.DefBuckets,
	})

	UnitsExtractedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "depaudit_units_extracted_total",
		Help: "Total number of client compiled units processed, by outcome.",
	}, []string{"outcome"})

	ArchivesIndexed = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "depaudit_archives_indexed",
		Help: "Number of dependency archives in the current class index.",
	})

	IndexedClasses = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "depaudit_indexed_classes",
		Help: "Number of distinct class names in the current class index.",
	})

	UnattributedFiles = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "depaudit_unattributed_files",
		Help: "Number of files in the dependency directory not matched to a graph node.",
	})

	ReferencesResolved = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "depaudit_references",
		Help: "References in the last resolution pass, by result (mapped, unmapped).",
	}, []string{"result"})

	ArchiveUnitLoadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "depaudit_archive_unit_loads_total",
		Help: "Archive compiled-unit lookups during resolution, by source (cache, archive).",
	}, []string{"source"})

	AnalysisDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "depaudit_analysis_seconds",
		Help:    "Time spent on high-level analysis stages.",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})

	WatcherEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "depaudit_watcher_events_total",
		Help: "Total number of file system events received by the watcher.",
	})

	RunsThrottledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "depaudit_runs_throttled_total",
		Help: "Watch-triggered analysis runs delayed by the rate limiter.",
	})
)
