// Package quarantine implements deferred application and rollback of
// notes and nullifiers tied to unbonding validators: an undelegation
// output sits in quarantine until its unbonding epoch ends, at which
// point it is applied to the canonical note-commitment tree and spent
// set — unless its validator is slashed first, in which case it is
// erased instead.
package quarantine

import (
	"sort"
	"sync"

	"github.com/penumbra-zone/penumbra-sub011/pkg/compactblock"
	"github.com/penumbra-zone/penumbra-sub011/pkg/field"
	"github.com/penumbra-zone/penumbra-sub011/pkg/source"
)

// Key identifies one quarantine bucket: everything scheduled for
// validator to unlock at unbonding_epoch.
type Key struct {
	UnbondingEpoch uint64
	Validator      string
}

// NoteEntry is one quarantined note awaiting release.
type NoteEntry struct {
	Payload compactblock.NotePayload
	Source  source.Source
}

// NullifierEntry is one quarantined spend awaiting release.
type NullifierEntry struct {
	Nullifier field.Element
	Source    source.Source
}

// Bucket is everything quarantined under one Key.
type Bucket struct {
	Notes      []NoteEntry
	Nullifiers []NullifierEntry
}

// Scheduler holds every quarantine bucket not yet applied or erased, plus
// the indices that let check_tx-time validation see a quarantined
// nullifier as already spent. It is safe for concurrent use; callers
// still serialize scheduling/flush/apply within one block via their own
// block-execution loop.
type Scheduler struct {
	mu sync.Mutex

	// scheduledToApply holds fully flushed buckets, keyed by unbonding
	// epoch and then validator — entries a prior block finished staging.
	scheduledToApply map[uint64]map[string]*Bucket

	// pending accumulates the current block's staged entries before
	// FlushToSchedule folds them into scheduledToApply.
	pending map[Key]*Bucket

	// quarantinedSpentNullifiers blocks re-spend of a nullifier while it
	// sits in quarantine, before it is promoted to the canonical set.
	quarantinedSpentNullifiers map[string]struct{}

	// noteSource records every quarantined note's provenance immediately
	// at scheduling time, so it can be rolled back (deleted) later even
	// though the note itself is not yet in the note-commitment tree.
	noteSource map[string]source.Source
}

// NewScheduler returns an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{
		scheduledToApply:           make(map[uint64]map[string]*Bucket),
		pending:                    make(map[Key]*Bucket),
		quarantinedSpentNullifiers: make(map[string]struct{}),
		noteSource:                 make(map[string]source.Source),
	}
}

func commitmentKey(c field.Element) string { return string(c.Bytes()) }
func nullifierKey(n field.Element) string  { return string(n.Bytes()) }

// ScheduleNote records payload's source immediately and stages it under
// (epoch, validator) for this block's flush.
func (s *Scheduler) ScheduleNote(epoch uint64, validator string, payload compactblock.NotePayload, src source.Source) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.noteSource[commitmentKey(payload.Commitment)] = src

	key := Key{UnbondingEpoch: epoch, Validator: validator}
	b := s.pending[key]
	if b == nil {
		b = &Bucket{}
		s.pending[key] = b
	}
	b.Notes = append(b.Notes, NoteEntry{Payload: payload, Source: src})
}

// ScheduleSpend records nullifier in the quarantined-spent index
// immediately (blocking double-spend while quarantined) and stages it
// under (epoch, validator) for this block's flush.
func (s *Scheduler) ScheduleSpend(epoch uint64, validator string, nullifier field.Element, src source.Source) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.quarantinedSpentNullifiers[nullifierKey(nullifier)] = struct{}{}

	key := Key{UnbondingEpoch: epoch, Validator: validator}
	b := s.pending[key]
	if b == nil {
		b = &Bucket{}
		s.pending[key] = b
	}
	b.Nullifiers = append(b.Nullifiers, NullifierEntry{Nullifier: nullifier, Source: src})
}

// IsQuarantinedSpent reports whether nullifier currently sits in the
// quarantined-spent index (not yet canonical, but already blocking
// re-spend).
func (s *Scheduler) IsQuarantinedSpent(nullifier field.Element) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.quarantinedSpentNullifiers[nullifierKey(nullifier)]
	return ok
}

// FlushToSchedule folds this block's pending entries into
// scheduledToApply and clears pending. Called once per block, after all
// transactions have executed.
func (s *Scheduler) FlushToSchedule() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, bucket := range s.pending {
		byValidator := s.scheduledToApply[key.UnbondingEpoch]
		if byValidator == nil {
			byValidator = make(map[string]*Bucket)
			s.scheduledToApply[key.UnbondingEpoch] = byValidator
		}
		existing := byValidator[key.Validator]
		if existing == nil {
			byValidator[key.Validator] = bucket
			continue
		}
		existing.Notes = append(existing.Notes, bucket.Notes...)
		existing.Nullifiers = append(existing.Nullifiers, bucket.Nullifiers...)
	}
	s.pending = make(map[Key]*Bucket)
}

// ProcessSlashing erases every quarantined entry belonging to
// slashedValidators across the full unbonding window
// [currentEpoch-unbondingEpochs, currentEpoch+unbondingEpochs], which
// covers entries scheduled for a future unbonding epoch: each such nullifier is
// dropped from the quarantined-spent index and each such note loses its
// recorded source. It returns the validators that actually had entries
// erased, for the caller to list in the compact block's slashed field.
// Must run before ApplyEpoch in the same block, so entries belonging to
// validators slashed this block are never applied.
func (s *Scheduler) ProcessSlashing(currentEpoch, unbondingEpochs uint64, slashedValidators []string) []string {
	if len(slashedValidators) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sortedValidators := append([]string(nil), slashedValidators...)
	sort.Strings(sortedValidators)

	var windowStart uint64
	if currentEpoch > unbondingEpochs {
		windowStart = currentEpoch - unbondingEpochs
	}

	erasedSeen := make(map[string]bool, len(sortedValidators))
	var result []string
	for epoch := windowStart; epoch <= currentEpoch+unbondingEpochs; epoch++ {
		byValidator := s.scheduledToApply[epoch]
		if byValidator == nil {
			continue
		}
		for _, validator := range sortedValidators {
			bucket, ok := byValidator[validator]
			if !ok {
				continue
			}
			for _, ne := range bucket.Nullifiers {
				delete(s.quarantinedSpentNullifiers, nullifierKey(ne.Nullifier))
			}
			for _, no := range bucket.Notes {
				delete(s.noteSource, commitmentKey(no.Payload.Commitment))
			}
			delete(byValidator, validator)
			if !erasedSeen[validator] {
				erasedSeen[validator] = true
				result = append(result, validator)
			}
		}
		if len(byValidator) == 0 {
			delete(s.scheduledToApply, epoch)
		}
	}

	sort.Strings(result)
	return result
}

// Release is one note or nullifier promoted out of quarantine at
// ApplyEpoch time.
type Release struct {
	Notes      []NoteEntry
	Nullifiers []NullifierEntry
}

// ApplyEpoch removes every bucket scheduled for epoch and returns their
// combined notes and nullifiers, ordered by validator identity then by
// per-entry insertion order, for the caller to insert into the
// note-commitment tree and canonical spent index respectively. The
// validator ordering is deterministic (sorted) so that every honest
// validator inserts these notes into the NCT in the same order and
// computes the same root. Nullifiers returned here are also removed
// from the quarantined-spent index, since they now belong to the
// canonical set.
func (s *Scheduler) ApplyEpoch(epoch uint64) Release {
	s.mu.Lock()
	defer s.mu.Unlock()

	byValidator := s.scheduledToApply[epoch]
	if byValidator == nil {
		return Release{}
	}
	delete(s.scheduledToApply, epoch)

	validators := make([]string, 0, len(byValidator))
	for validator := range byValidator {
		validators = append(validators, validator)
	}
	sort.Strings(validators)

	var release Release
	for _, validator := range validators {
		bucket := byValidator[validator]
		release.Notes = append(release.Notes, bucket.Notes...)
		release.Nullifiers = append(release.Nullifiers, bucket.Nullifiers...)
		for _, ne := range bucket.Nullifiers {
			delete(s.quarantinedSpentNullifiers, nullifierKey(ne.Nullifier))
		}
	}
	return release
}

// NoteSource returns the recorded source for a quarantined commitment, if
// still present (it is deleted by ProcessSlashing's erasure).
func (s *Scheduler) NoteSource(commitment field.Element) (source.Source, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.noteSource[commitmentKey(commitment)]
	return src, ok
}
