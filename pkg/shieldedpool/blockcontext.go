package shieldedpool

import (
	"encoding/json"

	"github.com/penumbra-zone/penumbra-sub011/pkg/compactblock"
	"github.com/penumbra-zone/penumbra-sub011/pkg/field"
	"github.com/penumbra-zone/penumbra-sub011/pkg/source"
	"github.com/penumbra-zone/penumbra-sub011/pkg/storage"
)

// BlockContext is the single owned value carrying a block's pending
// compact block and staged storage delta through init_chain/execute_tx/
// end_block/commit. There are no back-references to the controller and
// no interior mutability: every phase receives bc by exclusive reference
// and mutates it directly.
type BlockContext struct {
	Height      uint64
	EpochIndex  uint64
	EpochEnding bool

	Delta *storage.Delta
	CB    *compactblock.Builder

	slashedThisBlock []string
}

// NewBlockContext stages a fresh delta over snapshot for height, whose
// epoch membership and ending status are derived from epochDuration.
func NewBlockContext(store *storage.Storage, snapshot storage.Snapshot, height, epochDuration uint64) *BlockContext {
	epoch := EpochIndexForHeight(height, epochDuration)
	return &BlockContext{
		Height:      height,
		EpochIndex:  epoch,
		EpochEnding: IsEpochEnding(height, epochDuration),
		Delta:       store.NewDelta(snapshot),
		CB:          compactblock.NewBuilder(height, epoch),
	}
}

// EpochIndexForHeight returns which epoch height belongs to.
func EpochIndexForHeight(height, epochDuration uint64) uint64 {
	if epochDuration == 0 {
		return 0
	}
	return height / epochDuration
}

// IsEpochEnding reports whether height is the last height of its epoch.
func IsEpochEnding(height, epochDuration uint64) bool {
	if epochDuration == 0 {
		return false
	}
	return (height+1)%epochDuration == 0
}

// GenesisAllocation mints one note at chain genesis.
type GenesisAllocation struct {
	Address Address
	Value   Value
	Denom   string
}

// GenesisState is init_chain's input: allocations to mint, plus the
// initial FMD precision to advertise.
type GenesisState struct {
	Allocations      []GenesisAllocation
	FMDPrecisionBits uint32
}

// RewardMint is a value mint produced outside ordinary transaction
// execution: a validator funding-stream reward, a DEX swap-claim output,
// or a governance proposal-deposit refund. Source records which: its
// EpochIndex for a funding-stream reward, its TransactionID for a DEX
// swap-claim output, or its ProposalID for a proposal refund.
type RewardMint struct {
	Address Address
	Value   Value
	Source  source.Source
}

// SwapClaimNullifier is one nullifier revealed by a DEX swap claim at
// end_block, attributed back to the claiming transaction so its spend
// carries the same provenance a transaction-time spend would.
type SwapClaimNullifier struct {
	Nullifier     field.Element
	SwapClaimTxID string
}

func marshalSource(src source.Source) []byte {
	b, err := json.Marshal(src)
	if err != nil {
		panic("shieldedpool: source is always json-serialisable: " + err.Error())
	}
	return b
}

func unmarshalSource(b []byte) (source.Source, error) {
	var src source.Source
	err := json.Unmarshal(b, &src)
	return src, err
}
