package events

import (
	"math/big"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink exports event counts and amounts as Prometheus metrics.
// It is always registered, mirroring the teacher's direct dependency on
// client_golang for process-level observability.
type PrometheusSink struct {
	spends           prometheus.Counter
	quarantineSpends *prometheus.CounterVec
	slashingApplied  *prometheus.CounterVec
	notesMinted      *prometheus.CounterVec
	mintedAmount     *prometheus.CounterVec
}

// NewPrometheusSink registers the shielded-pool metric family against reg
// and returns a sink backed by it.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{
		spends: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shieldedpool",
			Name:      "spends_total",
			Help:      "Total number of nullifiers revealed into the canonical spent set.",
		}),
		quarantineSpends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shieldedpool",
			Name:      "quarantine_spends_total",
			Help:      "Total number of nullifiers placed into the quarantined-spent index, by validator.",
		}, []string{"validator"}),
		slashingApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shieldedpool",
			Name:      "slashing_applied_total",
			Help:      "Total number of validators whose quarantine schedule was erased by slashing.",
		}, []string{"validator"}),
		notesMinted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shieldedpool",
			Name:      "notes_minted_total",
			Help:      "Total number of notes minted, by source kind.",
		}, []string{"source_kind"}),
		mintedAmount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shieldedpool",
			Name:      "minted_amount_total",
			Help:      "Total amount minted, by asset id and source kind.",
		}, []string{"source_kind", "asset_id"}),
	}
	reg.MustRegister(s.spends, s.quarantineSpends, s.slashingApplied, s.notesMinted, s.mintedAmount)
	return s
}

func (s *PrometheusSink) RecordSpend(Spend) {
	s.spends.Inc()
}

func (s *PrometheusSink) RecordQuarantineSpend(e QuarantineSpend) {
	s.quarantineSpends.WithLabelValues(e.Validator).Inc()
}

func (s *PrometheusSink) RecordSlashingApplied(e SlashingApplied) {
	s.slashingApplied.WithLabelValues(e.Validator).Inc()
}

func (s *PrometheusSink) RecordNoteMinted(e NoteMinted) {
	kind := string(e.Source.Kind)
	s.notesMinted.WithLabelValues(kind).Inc()
	if e.Amount != nil {
		amount, _ := new(big.Float).SetInt(e.Amount).Float64()
		s.mintedAmount.WithLabelValues(kind, e.AssetID.String()).Add(amount)
	}
}
