package quarantine

import (
	"testing"

	"github.com/penumbra-zone/penumbra-sub011/pkg/compactblock"
	"github.com/penumbra-zone/penumbra-sub011/pkg/field"
	"github.com/penumbra-zone/penumbra-sub011/pkg/source"
)

// TestUndelegationQuarantineRoundTrip exercises an undelegation output
// entering quarantine, surviving to its unbonding epoch, and being
// applied.
func TestUndelegationQuarantineRoundTrip(t *testing.T) {
	s := NewScheduler()

	cOut := compactblock.NotePayload{Commitment: field.FromUint64(42)}
	nIn := field.FromUint64(7)
	src := source.FromTransaction("tx-1")

	const epoch, validator = uint64(5), "validator-a"
	s.ScheduleNote(epoch, validator, cOut, src)
	s.ScheduleSpend(epoch, validator, nIn, src)

	if !s.IsQuarantinedSpent(nIn) {
		t.Fatalf("nullifier should be quarantined-spent immediately")
	}
	if got, ok := s.NoteSource(cOut.Commitment); !ok || got != src {
		t.Fatalf("note source not recorded immediately")
	}

	s.FlushToSchedule()

	// Erasing with unrelated slashing changes nothing.
	erased := s.ProcessSlashing(epoch, 5, []string{"validator-b"})
	if len(erased) != 0 {
		t.Fatalf("unrelated slashing erased something: %v", erased)
	}

	release := s.ApplyEpoch(epoch)
	if len(release.Notes) != 1 || !release.Notes[0].Payload.Commitment.Equal(cOut.Commitment) {
		t.Fatalf("expected cOut released, got %+v", release.Notes)
	}
	if len(release.Nullifiers) != 1 || !release.Nullifiers[0].Nullifier.Equal(nIn) {
		t.Fatalf("expected nIn released, got %+v", release.Nullifiers)
	}
	if s.IsQuarantinedSpent(nIn) {
		t.Fatalf("nullifier should have left the quarantined-spent index on release")
	}

	// A second ApplyEpoch on the same epoch returns nothing further.
	if again := s.ApplyEpoch(epoch); len(again.Notes) != 0 || len(again.Nullifiers) != 0 {
		t.Fatalf("re-applying epoch returned entries again: %+v", again)
	}
}

// TestSlashingBeforeUnbondingErasesEntries exercises a validator slashed
// before its scheduled epoch ends: the quarantined entries must vanish
// entirely rather than ever being applied.
func TestSlashingBeforeUnbondingErasesEntries(t *testing.T) {
	s := NewScheduler()

	cOut := compactblock.NotePayload{Commitment: field.FromUint64(100)}
	nIn := field.FromUint64(200)
	src := source.FromTransaction("tx-2")

	const epoch, validator = uint64(9), "validator-v"
	s.ScheduleNote(epoch, validator, cOut, src)
	s.ScheduleSpend(epoch, validator, nIn, src)
	s.FlushToSchedule()

	erased := s.ProcessSlashing(epoch, 5, []string{validator})
	if len(erased) != 1 || erased[0] != validator {
		t.Fatalf("expected validator erased, got %v", erased)
	}

	if s.IsQuarantinedSpent(nIn) {
		t.Fatalf("nullifier should have been erased from quarantined-spent index")
	}
	if _, ok := s.NoteSource(cOut.Commitment); ok {
		t.Fatalf("note source should have been erased")
	}

	release := s.ApplyEpoch(epoch)
	if len(release.Notes) != 0 || len(release.Nullifiers) != 0 {
		t.Fatalf("erased entries must never be applied, got %+v", release)
	}
}

// TestProcessSlashingOnlyErasesWithinWindow checks that slashing does not
// reach outside the unbonding window, e.g. epochs already far in the past
// relative to currentEpoch.
func TestProcessSlashingOnlyErasesWithinWindow(t *testing.T) {
	s := NewScheduler()

	cOut := compactblock.NotePayload{Commitment: field.FromUint64(1)}
	src := source.FromTransaction("tx-3")

	// Schedule far in the past relative to the slashing height's current epoch.
	s.ScheduleNote(1, "validator-x", cOut, src)
	s.FlushToSchedule()

	// currentEpoch=100, unbondingEpochs=5 => window is [95, 105], epoch 1 is outside it.
	erased := s.ProcessSlashing(100, 5, []string{"validator-x"})
	if len(erased) != 0 {
		t.Fatalf("expected no erasure outside the unbonding window, got %v", erased)
	}
	if _, ok := s.NoteSource(cOut.Commitment); !ok {
		t.Fatalf("note source should have survived outside the unbonding window")
	}
}

func TestFlushMergesMultipleBucketsAcrossBlocks(t *testing.T) {
	s := NewScheduler()
	const epoch, validator = uint64(3), "validator-m"

	s.ScheduleNote(epoch, validator, compactblock.NotePayload{Commitment: field.FromUint64(1)}, source.FromGenesis())
	s.FlushToSchedule()

	s.ScheduleNote(epoch, validator, compactblock.NotePayload{Commitment: field.FromUint64(2)}, source.FromGenesis())
	s.FlushToSchedule()

	release := s.ApplyEpoch(epoch)
	if len(release.Notes) != 2 {
		t.Fatalf("expected entries from both blocks merged, got %d", len(release.Notes))
	}
}
