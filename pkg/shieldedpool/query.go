package shieldedpool

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/penumbra-zone/penumbra-sub011/pkg/compactblock"
	"github.com/penumbra-zone/penumbra-sub011/pkg/field"
	"github.com/penumbra-zone/penumbra-sub011/pkg/source"
)

func marshalFMD(p compactblock.FMDParameters) []byte {
	b, err := json.Marshal(p)
	if err != nil {
		panic("shieldedpool: FMDParameters is always json-serialisable: " + err.Error())
	}
	return b
}

func readFMD(r LedgerReader, key []byte) (compactblock.FMDParameters, bool) {
	v, ok := r.Get(key)
	if !ok {
		return compactblock.FMDParameters{}, false
	}
	var p compactblock.FMDParameters
	if err := json.Unmarshal(v, &p); err != nil {
		return compactblock.FMDParameters{}, false
	}
	return p, true
}

func marshalCompactBlock(cb compactblock.CompactBlock) ([]byte, error) {
	return json.Marshal(cb)
}

// GetCompactBlock reads back the finalised compact block for height.
func GetCompactBlock(r LedgerReader, height uint64) (compactblock.CompactBlock, bool, error) {
	v, ok := r.Get(compactBlockKey(height))
	if !ok {
		return compactblock.CompactBlock{}, false, nil
	}
	var cb compactblock.CompactBlock
	if err := json.Unmarshal(v, &cb); err != nil {
		return compactblock.CompactBlock{}, false, fmt.Errorf("shieldedpool: decoding compact block at height %d: %w", height, err)
	}
	return cb, true, nil
}

// GetNoteSource looks up the recorded provenance of a note commitment.
func GetNoteSource(r LedgerReader, commitment field.Element) (source.Source, bool, error) {
	v, has := r.Get(noteSourceKey(commitment))
	if !has {
		return source.Source{}, false, nil
	}
	src, err := unmarshalSource(v)
	if err != nil {
		return source.Source{}, false, fmt.Errorf("shieldedpool: decoding note source for %s: %w", commitment, err)
	}
	return src, true, nil
}

// IsNullifierSpent reports whether nullifier is recorded as canonically
// spent.
func IsNullifierSpent(r LedgerReader, nullifier field.Element) bool {
	_, ok := r.Get(spentNullifierKey(nullifier))
	return ok
}

// AssetSupply reports assetID's current token supply via a fresh
// AssetRegistry view over r.
func AssetSupply(r LedgerReader, assetID AssetID) *big.Int {
	return NewAssetRegistry(r).Supply(assetID)
}

// AnchorHeight looks up the height at which anchor was sealed as a
// commitment/block/epoch root, if any.
func AnchorHeight(r LedgerReader, anchor field.Element) (uint64, bool) {
	v, ok := r.Get(anchorLookupKey(anchor))
	if !ok || len(v) != 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(v), true
}
