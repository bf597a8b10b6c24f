package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/regia-io/regia/internal/phases"
)

// PauseMetrics holds metrics related to collection pauses.
type PauseMetrics struct {
	// PausesTotal counts completed collection pauses.
	PausesTotal prometheus.Counter

	// PhaseSeconds tracks cleanup phase wall time, labeled by phase name.
	// Each observation is the summed worker time of one phase in one pause.
	PhaseSeconds *prometheus.HistogramVec

	// RegionsFreed counts collection set regions returned to the free list.
	RegionsFreed prometheus.Counter

	// EvacFailedRegions tracks the number of regions that failed evacuation
	// in the most recent pause.
	EvacFailedRegions prometheus.Gauge

	// HumongousCandidates tracks the number of humongous reclaim candidates
	// examined in the most recent pause.
	HumongousCandidates prometheus.Gauge

	// HumongousReclaimed counts humongous objects eagerly reclaimed.
	HumongousReclaimed prometheus.Counter

	// CardsRedirtied counts cards marked dirty again after the pause.
	CardsRedirtied prometheus.Counter

	// HeapUsedBytes tracks heap usage after the most recent pause.
	HeapUsedBytes prometheus.Gauge
}

var phaseSecondsBuckets = prometheus.ExponentialBuckets(0.000001, 4, 12)

// NewPauseMetrics creates and registers pause metrics.
// Uses promauto for automatic registration with the default registry.
func NewPauseMetrics() *PauseMetrics {
	return &PauseMetrics{
		PausesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "regia",
				Subsystem: "pause",
				Name:      "pauses_total",
				Help:      "Number of completed collection pauses.",
			},
		),
		PhaseSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "regia",
				Subsystem: "pause",
				Name:      "phase_seconds",
				Help:      "Summed worker time per cleanup phase per pause.",
				Buckets:   phaseSecondsBuckets,
			},
			[]string{"phase"},
		),
		RegionsFreed: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "regia",
				Subsystem: "pause",
				Name:      "regions_freed_total",
				Help:      "Number of collection set regions returned to the free list.",
			},
		),
		EvacFailedRegions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "regia",
				Subsystem: "pause",
				Name:      "evac_failed_regions",
				Help:      "Number of regions that failed evacuation in the most recent pause.",
			},
		),
		HumongousCandidates: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "regia",
				Subsystem: "pause",
				Name:      "humongous_candidates",
				Help:      "Number of humongous reclaim candidates examined in the most recent pause.",
			},
		),
		HumongousReclaimed: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "regia",
				Subsystem: "pause",
				Name:      "humongous_reclaimed_total",
				Help:      "Number of humongous objects eagerly reclaimed.",
			},
		),
		CardsRedirtied: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "regia",
				Subsystem: "pause",
				Name:      "cards_redirtied_total",
				Help:      "Number of cards marked dirty again after evacuation.",
			},
		),
		HeapUsedBytes: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "regia",
				Subsystem: "pause",
				Name:      "heap_used_bytes",
				Help:      "Heap usage after the most recent pause.",
			},
		),
	}
}

// NewPauseMetricsWithRegistry creates pause metrics registered with a custom registry.
// Useful for testing to avoid conflicts with the default registry.
func NewPauseMetricsWithRegistry(reg prometheus.Registerer) *PauseMetrics {
	pausesTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "regia",
			Subsystem: "pause",
			Name:      "pauses_total",
			Help:      "Number of completed collection pauses.",
		},
	)

	phaseSeconds := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "regia",
			Subsystem: "pause",
			Name:      "phase_seconds",
			Help:      "Summed worker time per cleanup phase per pause.",
			Buckets:   phaseSecondsBuckets,
		},
		[]string{"phase"},
	)

	regionsFreed := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "regia",
			Subsystem: "pause",
			Name:      "regions_freed_total",
			Help:      "Number of collection set regions returned to the free list.",
		},
	)

	evacFailedRegions := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "regia",
			Subsystem: "pause",
			Name:      "evac_failed_regions",
			Help:      "Number of regions that failed evacuation in the most recent pause.",
		},
	)

	humongousCandidates := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "regia",
			Subsystem: "pause",
			Name:      "humongous_candidates",
			Help:      "Number of humongous reclaim candidates examined in the most recent pause.",
		},
	)

	humongousReclaimed := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "regia",
			Subsystem: "pause",
			Name:      "humongous_reclaimed_total",
			Help:      "Number of humongous objects eagerly reclaimed.",
		},
	)

	cardsRedirtied := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "regia",
			Subsystem: "pause",
			Name:      "cards_redirtied_total",
			Help:      "Number of cards marked dirty again after evacuation.",
		},
	)

	heapUsedBytes := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "regia",
			Subsystem: "pause",
			Name:      "heap_used_bytes",
			Help:      "Heap usage after the most recent pause.",
		},
	)

	reg.MustRegister(pausesTotal)
	reg.MustRegister(phaseSeconds)
	reg.MustRegister(regionsFreed)
	reg.MustRegister(evacFailedRegions)
	reg.MustRegister(humongousCandidates)
	reg.MustRegister(humongousReclaimed)
	reg.MustRegister(cardsRedirtied)
	reg.MustRegister(heapUsedBytes)

	return &PauseMetrics{
		PausesTotal:         pausesTotal,
		PhaseSeconds:        phaseSeconds,
		RegionsFreed:        regionsFreed,
		EvacFailedRegions:   evacFailedRegions,
		HumongousCandidates: humongousCandidates,
		HumongousReclaimed:  humongousReclaimed,
		CardsRedirtied:      cardsRedirtied,
		HeapUsedBytes:       heapUsedBytes,
	}
}

// ObserveRecorder records one observation per phase from a completed
// phase recorder.
func (m *PauseMetrics) ObserveRecorder(rec *phases.Recorder) {
	for _, p := range rec.RecordedPhases() {
		m.PhaseSeconds.WithLabelValues(p.String()).Observe(rec.SumSecs(p))
	}
	m.CardsRedirtied.Add(float64(rec.SumWorkItems(phases.RedirtyCards, phases.RedirtyNumDirtied)))
	m.HumongousCandidates.Set(float64(rec.SumWorkItems(phases.EagerlyReclaimHumongous, phases.EagerlyReclaimNumCandidates)))
	m.HumongousReclaimed.Add(float64(rec.SumWorkItems(phases.EagerlyReclaimHumongous, phases.EagerlyReclaimNumReclaimed)))
}

// RecordPause records the summary numbers of one completed pause.
func (m *PauseMetrics) RecordPause(regionsFreed, evacFailed int, heapUsedBytes int64) {
	m.PausesTotal.Inc()
	m.RegionsFreed.Add(float64(regionsFreed))
	m.EvacFailedRegions.Set(float64(evacFailed))
	m.HeapUsedBytes.Set(float64(heapUsedBytes))
}
