package shieldedpool

import (
	"math/big"
	"testing"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/penumbra-zone/penumbra-sub011/pkg/compactblock"
	"github.com/penumbra-zone/penumbra-sub011/pkg/field"
	"github.com/penumbra-zone/penumbra-sub011/pkg/storage"
)

type stubVerifier struct{}

func (stubVerifier) VerifySpendProof(proof []byte, anchor, balanceCommitment, nullifier, rk field.Element) error {
	return nil
}
func (stubVerifier) VerifyOutputProof(proof []byte, balanceCommitment, commitment, ephemeralKey field.Element) error {
	return nil
}

type stubBinding struct{}

func (stubBinding) VerifyBindingSignature(authHash, signature, bindingVerificationKey []byte) error {
	return nil
}
func (stubBinding) VerifySpendAuthSignature(authHash, signature, rk []byte) error { return nil }

type stubValidators struct {
	state          map[string]ValidatorBondingState
	unbondingEpoch map[string]uint64
}

func newStubValidators() *stubValidators {
	return &stubValidators{state: make(map[string]ValidatorBondingState), unbondingEpoch: make(map[string]uint64)}
}

func (s *stubValidators) ValidatorInfo(v string) (ValidatorBondingState, uint64, bool) {
	st, ok := s.state[v]
	if !ok {
		return 0, 0, false
	}
	return st, s.unbondingEpoch[v], true
}

func newTestController(t *testing.T, validators ValidatorInfoSource) *Controller {
	t.Helper()
	store, err := storage.Load(storage.NewBackend(dbm.NewMemDB()), []string{"ibc", "dex", "misc"})
	if err != nil {
		t.Fatalf("storage.Load: %v", err)
	}
	return NewController(store, stubVerifier{}, stubBinding{}, validators, nil, 100, 5)
}

func addr(b byte) Address {
	var a Address
	a[0] = b
	return a
}

func assetID(tag string) AssetID { return field.HashToField("test-asset", []byte(tag)) }

func makeOutputAction(tag string) Output {
	commitment := field.HashToField("test-commitment", []byte(tag))
	return Output{
		Payload: compactblock.NotePayload{
			Commitment:    commitment,
			EncryptedNote: []byte("ciphertext-" + tag),
		},
	}
}

// TestInitChainGenesisAllocations exercises the genesis scenario: two
// allocations mint in order, supplies are recorded, and the height-0
// compact block carries exactly those two state payloads with no
// nullifiers.
func TestInitChainGenesisAllocations(t *testing.T) {
	c := newTestController(t, newStubValidators())

	upenumbra := assetID("upenumbra")
	testUSD := assetID("test_usd")

	genesis := GenesisState{
		Allocations: []GenesisAllocation{
			{Address: addr(0xA), Value: Value{Amount: big.NewInt(1_000_000), AssetID: upenumbra}, Denom: "upenumbra"},
			{Address: addr(0xB), Value: Value{Amount: big.NewInt(500), AssetID: testUSD}, Denom: "test_usd"},
		},
		FMDPrecisionBits: 4,
	}

	if err := c.InitChain(genesis); err != nil {
		t.Fatalf("InitChain: %v", err)
	}

	sn := c.Storage.LatestSnapshot()
	if got := AssetSupply(sn, upenumbra); got.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("upenumbra supply = %s, want 1000000", got)
	}
	if got := AssetSupply(sn, testUSD); got.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("test_usd supply = %s, want 500", got)
	}

	cb, ok, err := GetCompactBlock(sn, 0)
	if err != nil {
		t.Fatalf("GetCompactBlock: %v", err)
	}
	if !ok {
		t.Fatal("expected a compact block at height 0")
	}
	if len(cb.StatePayloads) != 2 {
		t.Fatalf("state_payloads len = %d, want 2", len(cb.StatePayloads))
	}
	if len(cb.Nullifiers) != 0 {
		t.Fatalf("nullifiers = %v, want empty", cb.Nullifiers)
	}
	if cb.BlockRoot.IsZero() {
		t.Fatal("block root should not be the zero element once notes were minted")
	}
}

// TestExecuteTxDirectSpendAndOutputs exercises the simple-spend scenario:
// a transaction with one spend and two outputs advances the compact
// block's nullifiers and state payloads, and the spend's nullifier
// becomes canonically spent.
func TestExecuteTxDirectSpendAndOutputs(t *testing.T) {
	c := newTestController(t, newStubValidators())
	asset := assetID("upenumbra")
	if err := c.InitChain(GenesisState{Allocations: []GenesisAllocation{
		{Address: addr(0xA), Value: Value{Amount: big.NewInt(100), AssetID: asset}},
	}}); err != nil {
		t.Fatalf("InitChain: %v", err)
	}

	bc := NewBlockContext(c.Storage, c.Storage.LatestSnapshot(), 1, 100)

	nullifier := field.HashToField("test-nullifier", []byte("n"))
	out1 := makeOutputAction("c1")
	out2 := makeOutputAction("c2")

	tx := Transaction{
		ID:     "tx1",
		Anchor: c.NCT.Root(),
		Actions: []Action{
			{Spend: &Spend{Nullifier: nullifier}},
			{Output: &out1},
			{Output: &out2},
		},
	}

	if err := c.ExecuteTx(bc, tx); err != nil {
		t.Fatalf("ExecuteTx: %v", err)
	}

	if !IsNullifierSpent(bc.Delta, nullifier) {
		t.Fatal("expected nullifier to be canonically spent")
	}
	if bc.CB.StatePayloadCount() != 2 {
		t.Fatalf("state payload count = %d, want 2", bc.CB.StatePayloadCount())
	}
}

// TestCheckTxStatefulRejectsDoubleSpend exercises the double-spend
// rejection scenario: once a nullifier is canonically spent,
// check_tx_stateful rejects a second transaction revealing it.
func TestCheckTxStatefulRejectsDoubleSpend(t *testing.T) {
	c := newTestController(t, newStubValidators())
	asset := assetID("upenumbra")
	if err := c.InitChain(GenesisState{
		Allocations:      []GenesisAllocation{{Address: addr(0xA), Value: Value{Amount: big.NewInt(100), AssetID: asset}}},
		FMDPrecisionBits: 4,
	}); err != nil {
		t.Fatalf("InitChain: %v", err)
	}

	bc := NewBlockContext(c.Storage, c.Storage.LatestSnapshot(), 1, 100)
	anchor := c.NCT.Root()
	bc.Delta.PutRaw(anchorLookupKey(anchor), heightBytes(0))

	nullifier := field.HashToField("test-nullifier", []byte("dup"))
	tx1 := Transaction{ID: "tx1", Anchor: anchor, FMDPrecisionBits: 4, Actions: []Action{{Spend: &Spend{Nullifier: nullifier}}}}

	if err := c.CheckTxStateful(bc.Delta, tx1, 1); err != nil {
		t.Fatalf("first CheckTxStateful: %v", err)
	}
	if err := c.ExecuteTx(bc, tx1); err != nil {
		t.Fatalf("ExecuteTx: %v", err)
	}

	tx2 := Transaction{ID: "tx2", Anchor: anchor, FMDPrecisionBits: 4, Actions: []Action{{Spend: &Spend{Nullifier: nullifier}}}}
	if err := c.CheckTxStateful(bc.Delta, tx2, 1); err != ErrNullifierAlreadySpent {
		t.Fatalf("second CheckTxStateful = %v, want ErrNullifierAlreadySpent", err)
	}
}

// TestUndelegationQuarantinesOutputAndNullifier exercises the
// undelegation-quarantine scenario: a transaction undelegating from a
// bonded validator quarantines its output and nullifier instead of
// applying them directly, and end_block records the erasure/apply
// bookkeeping around it.
func TestUndelegationQuarantinesOutputAndNullifier(t *testing.T) {
	validators := newStubValidators()
	validators.state["val1"] = Bonded

	c := newTestController(t, validators)
	asset := assetID("upenumbra")
	if err := c.InitChain(GenesisState{Allocations: []GenesisAllocation{
		{Address: addr(0xA), Value: Value{Amount: big.NewInt(100), AssetID: asset}},
	}}); err != nil {
		t.Fatalf("InitChain: %v", err)
	}

	bc := NewBlockContext(c.Storage, c.Storage.LatestSnapshot(), 1, 100)

	nullifier := field.HashToField("test-nullifier", []byte("n_in"))
	out := makeOutputAction("c_out")

	tx := Transaction{
		ID:     "tx-undelegate",
		Anchor: c.NCT.Root(),
		Actions: []Action{
			{Undelegate: &Undelegate{ValidatorIdentity: "val1"}},
			{Spend: &Spend{Nullifier: nullifier}},
			{Output: &out},
		},
	}

	if err := c.ExecuteTx(bc, tx); err != nil {
		t.Fatalf("ExecuteTx: %v", err)
	}

	if bc.CB.StatePayloadCount() != 0 {
		t.Fatalf("expected no state payloads for a quarantined output, got %d", bc.CB.StatePayloadCount())
	}
	if !c.Quarantine.IsQuarantinedSpent(nullifier) {
		t.Fatal("expected nullifier to be quarantine-spent")
	}
	if _, ok, _ := GetNoteSource(bc.Delta, out.Payload.Commitment); !ok {
		t.Fatal("expected quarantined output's note_source to be recorded immediately")
	}

	if err := c.EndBlock(bc, nil, nil, nil, nil, nil); err != nil {
		t.Fatalf("EndBlock: %v", err)
	}
	if _, err := c.Storage.Commit(bc.Delta); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

// TestSlashingErasesQuarantinedEntries exercises the slashing scenario:
// slashing a validator whose undelegation is still quarantined erases
// its note source and quarantined-spent nullifier, and lists it as
// slashed in the compact block.
func TestSlashingErasesQuarantinedEntries(t *testing.T) {
	validators := newStubValidators()
	validators.state["val1"] = Bonded

	c := newTestController(t, validators)
	asset := assetID("upenumbra")
	if err := c.InitChain(GenesisState{Allocations: []GenesisAllocation{
		{Address: addr(0xA), Value: Value{Amount: big.NewInt(100), AssetID: asset}},
	}}); err != nil {
		t.Fatalf("InitChain: %v", err)
	}

	bc1 := NewBlockContext(c.Storage, c.Storage.LatestSnapshot(), 1, 100)
	nullifier := field.HashToField("test-nullifier", []byte("n_in"))
	out := makeOutputAction("c_out")
	tx := Transaction{
		ID:     "tx-undelegate",
		Anchor: c.NCT.Root(),
		Actions: []Action{
			{Undelegate: &Undelegate{ValidatorIdentity: "val1"}},
			{Spend: &Spend{Nullifier: nullifier}},
			{Output: &out},
		},
	}
	if err := c.ExecuteTx(bc1, tx); err != nil {
		t.Fatalf("ExecuteTx: %v", err)
	}
	if err := c.EndBlock(bc1, nil, nil, nil, nil, nil); err != nil {
		t.Fatalf("EndBlock (block 1): %v", err)
	}
	if _, err := c.Storage.Commit(bc1.Delta); err != nil {
		t.Fatalf("Commit (block 1): %v", err)
	}

	bc2 := NewBlockContext(c.Storage, c.Storage.LatestSnapshot(), 2, 100)
	if err := c.EndBlock(bc2, nil, nil, nil, nil, []string{"val1"}); err != nil {
		t.Fatalf("EndBlock (slashing block): %v", err)
	}

	if c.Quarantine.IsQuarantinedSpent(nullifier) {
		t.Fatal("expected nullifier to be erased from quarantine after slashing")
	}
	if _, ok, _ := GetNoteSource(bc2.Delta, out.Payload.Commitment); ok {
		t.Fatal("expected note_source to be deleted by slashing erasure")
	}

	cb, ok, err := GetCompactBlock(bc2.Delta, 2)
	if err != nil || !ok {
		t.Fatalf("GetCompactBlock(2): ok=%v err=%v", ok, err)
	}
	found := false
	for _, v := range cb.Slashed {
		if v == "val1" {
			found = true
		}
	}
	if !found {
		t.Fatalf("compact_block.slashed = %v, want to contain val1", cb.Slashed)
	}
}
