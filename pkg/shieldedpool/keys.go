package shieldedpool

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/penumbra-zone/penumbra-sub011/pkg/field"
)

func hexKey(prefix string, b []byte) []byte {
	return []byte(prefix + hex.EncodeToString(b))
}

func heightBytes(h uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, h)
	return b
}

func epochBytes(e uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, e)
	return b
}

func noteSourceKey(commitment field.Element) []byte {
	return hexKey("note_source/", commitment.Bytes())
}

func spentNullifierKey(nullifier field.Element) []byte {
	return hexKey("spent_nullifier/", nullifier.Bytes())
}

func anchorByHeightKey(h uint64) []byte {
	return append([]byte("anchor_by_height/"), heightBytes(h)...)
}

func blockAnchorByHeightKey(h uint64) []byte {
	return append([]byte("block_anchor_by_height/"), heightBytes(h)...)
}

func epochAnchorByIndexKey(e uint64) []byte {
	return append([]byte("epoch_anchor_by_index/"), epochBytes(e)...)
}

func anchorLookupKey(anchor field.Element) []byte {
	return hexKey("anchor_lookup/", anchor.Bytes())
}

func compactBlockKey(h uint64) []byte {
	return append([]byte("compact_block/"), heightBytes(h)...)
}

func assetSupplyKey(assetID AssetID) []byte {
	return hexKey("asset_registry/supply/", assetID.Bytes())
}

func assetDenomKey(assetID AssetID) []byte {
	return hexKey("asset_registry/denom/", assetID.Bytes())
}

const assetRegistryPrefix = "asset_registry/denom/"

func fmdParametersKey() []byte {
	return []byte("fmd_parameters/current")
}

func previousFMDParametersKey() []byte {
	return []byte("fmd_parameters/previous")
}
