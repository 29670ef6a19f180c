package shieldedpool

import (
	"encoding/hex"
	"math/big"

	"github.com/penumbra-zone/penumbra-sub011/pkg/field"
	"github.com/penumbra-zone/penumbra-sub011/pkg/storage"
)

// AssetRegistry is the explicit handle onto asset_id -> denom_metadata
// and per-asset token supply, replacing a monolithic "known assets" blob
// with a key-prefix scan: RegisterDenom writes one key per asset, and
// KnownAssets discovers them by scanning the registry's key prefix.
type AssetRegistry struct {
	reader LedgerReader
}

// NewAssetRegistry wraps reader in an AssetRegistry view.
func NewAssetRegistry(reader LedgerReader) AssetRegistry {
	return AssetRegistry{reader: reader}
}

// RegisterDenom records denom's metadata for assetID. Re-registering the
// same asset ID overwrites the prior denom string.
func RegisterDenom(w LedgerWriter, assetID AssetID, denom string) {
	w.PutRaw(assetDenomKey(assetID), []byte(denom))
}

// Denom returns the registered denomination string for assetID, if any.
func (r AssetRegistry) Denom(assetID AssetID) (string, bool) {
	v, ok := r.reader.Get(assetDenomKey(assetID))
	if !ok {
		return "", false
	}
	return string(v), true
}

// KnownAssets lists every asset ID with a registered denomination, by
// scanning the registry's key prefix on a snapshot. Not available against
// a bare LedgerReader/LedgerWriter, since prefix scanning requires a
// concrete storage snapshot.
func KnownAssets(sn storage.Snapshot) []AssetID {
	keys := sn.KeysWithPrefix(assetRegistryPrefix)
	out := make([]AssetID, 0, len(keys))
	for _, k := range keys {
		idHex := k[len(assetRegistryPrefix):]
		b, err := hex.DecodeString(idHex)
		if err != nil {
			continue
		}
		out = append(out, field.SetBytes(b))
	}
	return out
}

// Supply returns asset's current token supply, or zero if never minted.
func (r AssetRegistry) Supply(assetID AssetID) *big.Int {
	v, ok := r.reader.Get(assetSupplyKey(assetID))
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).SetBytes(v)
}

// adjustSupply applies delta (positive for mint, negative for burn) to
// assetID's token supply with checked u128 arithmetic, persisting the new
// supply. Returns the supply-overflow/underflow execution errors verbatim.
func adjustSupply(rw LedgerWriter, assetID AssetID, delta *big.Int) error {
	reg := AssetRegistry{reader: rw}
	current := reg.Supply(assetID)

	var next *big.Int
	var err error
	if delta.Sign() >= 0 {
		next, err = addChecked(current, delta)
	} else {
		next, err = subChecked(current, new(big.Int).Neg(delta))
	}
	if err != nil {
		return err
	}
	if err := checkRange(next); err != nil {
		return err
	}
	rw.PutRaw(assetSupplyKey(assetID), next.Bytes())
	return nil
}
