package nct

import (
	"testing"

	"github.com/penumbra-zone/penumbra-sub011/pkg/field"
)

func TestDeterministicRootIndependentOfForget(t *testing.T) {
	build := func(forgetFirst bool) field.Element {
		tr := New()
		c1 := field.FromUint64(1)
		c2 := field.FromUint64(2)
		p1, err := tr.Insert(Keep, c1)
		if err != nil {
			t.Fatalf("insert c1: %v", err)
		}
		if _, err := tr.Insert(Forget, c2); err != nil {
			t.Fatalf("insert c2: %v", err)
		}
		if forgetFirst {
			tr.Forget(p1)
		}
		if _, err := tr.EndBlock(); err != nil {
			t.Fatalf("end block: %v", err)
		}
		return tr.Root()
	}

	r1 := build(false)
	r2 := build(true)
	if !r1.Equal(r2) {
		t.Fatalf("root depends on forget calls: %v != %v", r1, r2)
	}
}

func TestWitnessSoundness(t *testing.T) {
	tr := New()
	c := field.FromUint64(42)
	pos, err := tr.Insert(Keep, c)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	proof, err := tr.Witness(pos)
	if err != nil {
		t.Fatalf("witness: %v", err)
	}
	root := tr.Root()
	if !VerifyAuthPath(c, pos, proof.Path, root) {
		t.Fatalf("auth path failed to verify against live root")
	}

	tr.Forget(pos)
	if _, err := tr.Witness(pos); err != ErrNotWitnessed {
		t.Fatalf("expected ErrNotWitnessed after forget, got %v", err)
	}
}

func TestWitnessAcrossBlockAndEpochSeal(t *testing.T) {
	tr := New()
	c := field.FromUint64(7)
	pos, err := tr.Insert(Keep, c)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	if _, err := tr.EndBlock(); err != nil {
		t.Fatalf("end block: %v", err)
	}
	// Insert more commitments in later blocks so the tree state changes
	// after the witnessed commitment's block was sealed.
	if _, err := tr.Insert(Forget, field.FromUint64(99)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := tr.EndEpoch(); err != nil {
		t.Fatalf("end epoch: %v", err)
	}
	if _, err := tr.Insert(Forget, field.FromUint64(100)); err != nil {
		t.Fatalf("insert: %v", err)
	}

	proof, err := tr.Witness(pos)
	if err != nil {
		t.Fatalf("witness after seal: %v", err)
	}
	root := tr.Root()
	if !VerifyAuthPath(c, pos, proof.Path, root) {
		t.Fatalf("auth path failed to verify after the commitment's block and epoch were sealed")
	}
}

func TestAnchorInclusion(t *testing.T) {
	tr := New()
	c1 := field.FromUint64(1)
	c2 := field.FromUint64(2)
	if _, err := tr.Insert(Forget, c1); err != nil {
		t.Fatalf("insert c1: %v", err)
	}
	if _, err := tr.Insert(Forget, c2); err != nil {
		t.Fatalf("insert c2: %v", err)
	}

	blockRootFromEnd, err := tr.EndBlock()
	if err != nil {
		t.Fatalf("end block: %v", err)
	}
	anchorAfter := tr.Root()

	tr2 := New()
	if _, err := tr2.Insert(Forget, c1); err != nil {
		t.Fatalf("insert c1 (replay): %v", err)
	}
	if _, err := tr2.Insert(Forget, c2); err != nil {
		t.Fatalf("insert c2 (replay): %v", err)
	}
	blockRootReplay, err := tr2.EndBlock()
	if err != nil {
		t.Fatalf("end block (replay): %v", err)
	}
	anchorReplay := tr2.Root()

	if !blockRootFromEnd.Equal(blockRootReplay) {
		t.Fatalf("block root not reproducible from the same insertion sequence")
	}
	if !anchorAfter.Equal(anchorReplay) {
		t.Fatalf("anchor not reproducible from the same insertion sequence")
	}
}

func TestEmptyBlockRootIsFixedConstant(t *testing.T) {
	tr1 := New()
	r1, err := tr1.EndBlock()
	if err != nil {
		t.Fatalf("end empty block: %v", err)
	}

	tr2 := New()
	if _, err := tr2.Insert(Forget, field.FromUint64(1)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := tr2.EndBlock(); err != nil {
		t.Fatalf("end non-empty block: %v", err)
	}
	r2, err := tr2.EndBlock() // second block on tr2 is also empty
	if err != nil {
		t.Fatalf("end second empty block: %v", err)
	}

	if !r1.Equal(r2) {
		t.Fatalf("empty-block root is not a fixed constant across trees")
	}
}

func TestPositionPacking(t *testing.T) {
	pos := NewPosition(3, 500, 65535)
	if pos.Epoch() != 3 || pos.Block() != 500 || pos.Commitment() != 65535 {
		t.Fatalf("position packing/unpacking mismatch: %s", pos)
	}
}

func TestInsertOrderingIsMonotonic(t *testing.T) {
	tr := New()
	for i := uint16(0); i < 5; i++ {
		pos, err := tr.Insert(Forget, field.FromUint64(uint64(i)))
		if err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
		if pos.Commitment() != i {
			t.Fatalf("expected commitment index %d, got %d", i, pos.Commitment())
		}
	}
}
