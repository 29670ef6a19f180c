package compactblock

import (
	"testing"

	"github.com/penumbra-zone/penumbra-sub011/pkg/field"
)

func TestBuilderAppendOrderPreserved(t *testing.T) {
	b := NewBuilder(10, 0)
	b.AppendNote(NotePayload{Commitment: field.FromUint64(1)})
	b.AppendRolledUp(field.FromUint64(2))
	b.AppendNote(NotePayload{Commitment: field.FromUint64(3)})

	if got := b.StatePayloadCount(); got != 3 {
		t.Fatalf("StatePayloadCount = %d, want 3", got)
	}

	cb := b.Finish(field.FromUint64(99), nil)
	if len(cb.StatePayloads) != 3 {
		t.Fatalf("len(StatePayloads) = %d, want 3", len(cb.StatePayloads))
	}
	want := []uint64{1, 2, 3}
	for i, p := range cb.StatePayloads {
		if !p.Commitment().Equal(field.FromUint64(want[i])) {
			t.Fatalf("payload %d commitment mismatch", i)
		}
	}
	if cb.StatePayloads[1].Note != nil {
		t.Fatalf("payload 1 should be RolledUp, not Note")
	}
}

func TestRevealNullifierRejectsDuplicate(t *testing.T) {
	b := NewBuilder(1, 0)
	n := field.FromUint64(7)
	if err := b.RevealNullifier(n); err != nil {
		t.Fatalf("first reveal: %v", err)
	}
	if err := b.RevealNullifier(n); err != ErrDuplicateNullifier {
		t.Fatalf("second reveal: got %v, want ErrDuplicateNullifier", err)
	}
	cb := b.Finish(field.Zero(), nil)
	if len(cb.Nullifiers) != 1 {
		t.Fatalf("len(Nullifiers) = %d, want 1", len(cb.Nullifiers))
	}
}

func TestFinishCarriesMetadata(t *testing.T) {
	b := NewBuilder(5, 2)
	b.SetProposalStarted()
	b.SetAppParametersUpdated()
	b.SetGasPrices(GasPrices{BlockSpacePrice: 10, CompactBlockSpacePrice: 20, VerificationPrice: 30, ExecutionPrice: 40})
	b.AddSwapOutput(SwapOutput{SwapCommitment: field.FromUint64(1)})
	b.AddSlashed("validator-a")
	b.SetFMDParameters(FMDParameters{PrecisionBits: 4, AsOfBlockHeight: 5})

	epochRoot := field.FromUint64(55)
	cb := b.Finish(field.FromUint64(44), &epochRoot)

	if !cb.ProposalStarted || !cb.AppParametersUpdated {
		t.Fatalf("expected proposal/app-parameters flags set")
	}
	if cb.GasPrices.ExecutionPrice != 40 {
		t.Fatalf("gas prices not carried through")
	}
	if len(cb.SwapOutputs) != 1 || len(cb.Slashed) != 1 {
		t.Fatalf("swap outputs/slashed not carried through")
	}
	if cb.FMDParameters == nil || cb.FMDParameters.PrecisionBits != 4 {
		t.Fatalf("fmd parameters not carried through")
	}
	if cb.EpochRoot == nil || !cb.EpochRoot.Equal(epochRoot) {
		t.Fatalf("epoch root not carried through")
	}
	if cb.Height != 5 || cb.EpochIndex != 2 {
		t.Fatalf("height/epoch index mismatch")
	}
}
