// Package metrics exposes Prometheus counters for the
// engine's commit path, following the struct-of-fields +
// sync.Once-initialized + prometheus.MustRegister shape used throughout the
// retrieval pack's ingestion metrics.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/plexusdb/plexus/pkg/model"
)

// Metrics holds every Prometheus collector the engine reports through.
// Implements engine.MetricsRecorder and enrichment.CeilingRecorder.
type Metrics struct {
	once sync.Once

	commitsAccepted   prometheus.Counter
	itemsAccepted     prometheus.Counter
	itemsRejected     *prometheus.CounterVec
	persistFailures   prometheus.Counter
	enrichmentRounds  prometheus.Counter
	enrichmentCeiling prometheus.Counter
}

// New builds a Metrics instance and registers its collectors with the
// default Prometheus registry. Every call registers a fresh set of
// collectors under the same names, so a second call in one process panics.
func New() *Metrics {
	m := &Metrics{}
	m.init()
	return m
}

func (m *Metrics) init() {
	m.once.Do(func() {
		m.commitsAccepted = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "plexus_engine_commits_total", Help: "Emit calls that committed at least one item.",
		})
		m.itemsAccepted = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "plexus_engine_items_accepted_total", Help: "Emission items committed across all Emit calls.",
		})
		m.itemsRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "plexus_engine_items_rejected_total", Help: "Emission items rejected, by reason code.",
		}, []string{"reason"})
		m.persistFailures = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "plexus_engine_persist_failures_total", Help: "Emit calls whose commit succeeded but whose persist failed.",
		})
		m.enrichmentRounds = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "plexus_enrichment_rounds_total", Help: "Enrichment loop rounds run across all ingest calls.",
		})
		m.enrichmentCeiling = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "plexus_enrichment_round_ceiling_hits_total", Help: "Enrichment loop runs stopped by the round ceiling instead of quiescence.",
		})

		prometheus.MustRegister(
			m.commitsAccepted, m.itemsAccepted, m.itemsRejected,
			m.persistFailures, m.enrichmentRounds, m.enrichmentCeiling,
		)
	})
}

// CommitAccepted records a successful Emit call that accepted n items.
func (m *Metrics) CommitAccepted(_ string, n int) {
	if n > 0 {
		m.commitsAccepted.Inc()
	}
	m.itemsAccepted.Add(float64(n))
}

// CommitRejected records one rejected emission item.
func (m *Metrics) CommitRejected(_ string, reason model.RejectionReason) {
	m.itemsRejected.WithLabelValues(string(reason)).Inc()
}

// PersistFailed records an Emit call whose in-memory commit succeeded but
// whose durable write failed.
func (m *Metrics) PersistFailed(_ string) {
	m.persistFailures.Inc()
}

// EnrichmentRound records one round of the enrichment loop running against
// a context, whether or not it produced new events.
func (m *Metrics) EnrichmentRound(_ string) {
	m.enrichmentRounds.Inc()
}

// EnrichmentRoundCeilingHit records an enrichment loop run that exhausted
// its round ceiling before reaching quiescence.
func (m *Metrics) EnrichmentRoundCeilingHit(_ string) {
	m.enrichmentCeiling.Inc()
}
