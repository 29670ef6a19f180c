// Package shieldedpool orchestrates per-block processing of shielded
// actions (spend, output, reward minting, quarantine/unbonding,
// slashing rollback), builds the per-block compact block, and enforces
// value conservation and nullifier uniqueness across a chain's shielded
// pool.
package shieldedpool

import (
	"errors"
	"math/big"

	"github.com/penumbra-zone/penumbra-sub011/pkg/field"
	"github.com/penumbra-zone/penumbra-sub011/pkg/nct"
	"github.com/penumbra-zone/penumbra-sub011/pkg/source"
)

// maxU128 is the largest value a token supply or note amount may hold;
// checked arithmetic never silently wraps past it.
var maxU128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// Address is an opaque diversified-address identifier. Address derivation
// and diversifier cryptography are out of scope; the shielded pool only
// needs addresses to be stable, comparable byte strings it can hash into
// a note commitment.
type Address [32]byte

// AssetID identifies a token denomination.
type AssetID = field.Element

// Value is an amount of a specific asset. Amount is checked u128
// arithmetic via math/big; overflow or underflow is a fatal execution
// error, never a silent wraparound.
type Value struct {
	Amount  *big.Int
	AssetID AssetID
}

// ErrAmountOutOfRange is returned when a Value's amount is negative or
// exceeds the u128 ceiling.
var ErrAmountOutOfRange = errors.New("shieldedpool: amount out of u128 range")

func checkRange(amount *big.Int) error {
	if amount.Sign() < 0 || amount.Cmp(maxU128) > 0 {
		return ErrAmountOutOfRange
	}
	return nil
}

// ErrSupplyOverflow and ErrSupplyUnderflow are execution errors: a block
// minting or burning past the u128 ceiling, or below zero, aborts.
var (
	ErrSupplyOverflow  = errors.New("shieldedpool: token supply overflow")
	ErrSupplyUnderflow = errors.New("shieldedpool: token supply underflow")
)

func addChecked(a, b *big.Int) (*big.Int, error) {
	sum := new(big.Int).Add(a, b)
	if sum.Cmp(maxU128) > 0 {
		return nil, ErrSupplyOverflow
	}
	return sum, nil
}

func subChecked(a, b *big.Int) (*big.Int, error) {
	diff := new(big.Int).Sub(a, b)
	if diff.Sign() < 0 {
		return nil, ErrSupplyUnderflow
	}
	return diff, nil
}

// Note is an off-chain record of value owned by a single address: a
// diversified address, a Value, and a per-note random blinding (rseed).
type Note struct {
	Address Address
	Value   Value
	Rseed   field.Element
}

func addressElement(a Address) field.Element {
	return field.HashToField("note-address", a[:])
}

func amountElement(amount *big.Int) field.Element {
	return field.HashToField("note-amount", amount.Bytes())
}

// Commitment is a deterministic algebraic hash of the note's contents.
func (n Note) Commitment() field.Element {
	return field.Domain("note-commitment",
		addressElement(n.Address),
		amountElement(n.Value.Amount),
		n.Value.AssetID,
		n.Rseed,
	)
}

// mintDomainTag is the personalization string used to derive deterministic
// blinding for chain-minted notes; it is passed as the tag to
// field.HashToField.
const mintDomainTag = "mint-domain"

// positionLEBytes renders pos as 6 little-endian bytes (48 bits: epoch,
// block, commitment index, each 16 bits).
func positionLEBytes(pos nct.Position) []byte {
	v := uint64(pos)
	return []byte{
		byte(v),
		byte(v >> 8),
		byte(v >> 16),
		byte(v >> 24),
		byte(v >> 32),
		byte(v >> 40),
	}
}

// mintRseed derives the deterministic blinding for a chain-minted note at
// pos, so that public notes never collide: rseed = H("mint-domain" ||
// position_le_bytes).
func mintRseed(pos nct.Position) field.Element {
	return field.HashToField(mintDomainTag, positionLEBytes(pos))
}

// DeriveNullifier computes the nullifier for a spent note: deterministic
// in (nullifierKey, position, commitment).
func DeriveNullifier(nullifierKey field.Element, pos nct.Position, commitment field.Element) field.Element {
	return field.Domain("nullifier", nullifierKey, field.FromUint64(uint64(pos)), commitment)
}

// NoteSourceEntry pairs a note commitment with its recorded provenance,
// used by queries and tests that need to read back note_source.
type NoteSourceEntry struct {
	Commitment field.Element
	Source     source.Source
}
