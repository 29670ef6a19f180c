// Package events defines the structured records the shielded-pool
// controller emits on spend, quarantine, slashing, and mint (spec.md §6),
// and the sinks that consume them. Grounded on the teacher's
// pkg/database client/repository split: a Recorder fans a single event
// out to any number of sinks, the way the teacher's repository layer sat
// behind a pooled *sql.DB client.
package events

import (
	"math/big"

	"github.com/penumbra-zone/penumbra-sub011/pkg/field"
	"github.com/penumbra-zone/penumbra-sub011/pkg/source"
)

// Spend is recorded when a nullifier is revealed into the canonical
// spent set.
type Spend struct {
	Nullifier field.Element
	Height    uint64
}

// QuarantineSpend is recorded when a nullifier is placed into the
// quarantined-spent index pending unbonding.
type QuarantineSpend struct {
	Nullifier field.Element
	Epoch     uint64
	Validator string
	Height    uint64
}

// SlashingApplied is recorded once per validator erased from the
// quarantine schedule by ProcessSlashing.
type SlashingApplied struct {
	Validator string
	Height    uint64
}

// NoteMinted is recorded every time mintNote succeeds, whether from
// genesis, a funding-stream reward, a proposal refund, or a DEX output.
type NoteMinted struct {
	Source     source.Source
	Amount     *big.Int
	AssetID    field.Element
	Commitment field.Element
	Height     uint64
}

// Sink receives every event the controller records. Sinks are called
// synchronously on the caller's goroutine, so a slow sink delays the
// caller; PostgresSink, for example, inserts each event before returning,
// bounded by a per-insert timeout.
type Sink interface {
	RecordSpend(Spend)
	RecordQuarantineSpend(QuarantineSpend)
	RecordSlashingApplied(SlashingApplied)
	RecordNoteMinted(NoteMinted)
}

// Recorder fans each event out to every registered sink, in registration
// order. The zero Recorder has no sinks and is a safe no-op.
type Recorder struct {
	sinks []Sink
}

// NewRecorder returns a Recorder that forwards to sinks.
func NewRecorder(sinks ...Sink) *Recorder {
	return &Recorder{sinks: sinks}
}

// Add registers an additional sink.
func (r *Recorder) Add(s Sink) {
	r.sinks = append(r.sinks, s)
}

func (r *Recorder) RecordSpend(e Spend) {
	if r == nil {
		return
	}
	for _, s := range r.sinks {
		s.RecordSpend(e)
	}
}

func (r *Recorder) RecordQuarantineSpend(e QuarantineSpend) {
	if r == nil {
		return
	}
	for _, s := range r.sinks {
		s.RecordQuarantineSpend(e)
	}
}

func (r *Recorder) RecordSlashingApplied(e SlashingApplied) {
	if r == nil {
		return
	}
	for _, s := range r.sinks {
		s.RecordSlashingApplied(e)
	}
}

func (r *Recorder) RecordNoteMinted(e NoteMinted) {
	if r == nil {
		return
	}
	for _, s := range r.sinks {
		s.RecordNoteMinted(e)
	}
}
