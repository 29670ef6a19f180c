// Package field provides the prime-field arithmetic used by the
// note-commitment tree's algebraic hash. The field is the BLS12-377 scalar
// field (~253-bit prime order), the same order of magnitude as the field a
// real Poseidon/Rescue-style SNARK-friendly hash would run over.
package field

import (
	"crypto/subtle"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bls12-377/fr"
	"golang.org/x/crypto/blake2b"
)

// Element wraps fr.Element, the BLS12-377 scalar field element, and exposes
// only the operations the tree and mint-blinding logic need.
type Element struct {
	v fr.Element
}

// Zero returns the additive identity.
func Zero() Element { return Element{} }

// One returns the multiplicative identity.
func One() Element {
	var e Element
	e.v.SetOne()
	return e
}

// FromUint64 embeds a small integer into the field.
func FromUint64(x uint64) Element {
	var e Element
	e.v.SetUint64(x)
	return e
}

// SetBytes interprets b as a canonical little-endian encoding, reducing mod
// the field order if it does not fit.
func SetBytes(b []byte) Element {
	var e Element
	var be [fr.Bytes]byte
	// fr.Element.SetBytes expects big-endian; reverse the canonical
	// little-endian input this package uses everywhere else.
	n := len(b)
	if n > fr.Bytes {
		n = fr.Bytes
	}
	for i := 0; i < n; i++ {
		be[fr.Bytes-1-i] = b[i]
	}
	e.v.SetBytes(be[:])
	return e
}

// Bytes returns the canonical little-endian encoding.
func (e Element) Bytes() []byte {
	be := e.v.Bytes()
	out := make([]byte, fr.Bytes)
	for i := 0; i < fr.Bytes; i++ {
		out[i] = be[fr.Bytes-1-i]
	}
	return out
}

// Add returns e + o.
func (e Element) Add(o Element) Element {
	var r Element
	r.v.Add(&e.v, &o.v)
	return r
}

// Sub returns e - o.
func (e Element) Sub(o Element) Element {
	var r Element
	r.v.Sub(&e.v, &o.v)
	return r
}

// Mul returns e * o.
func (e Element) Mul(o Element) Element {
	var r Element
	r.v.Mul(&e.v, &o.v)
	return r
}

// Inverse returns e^-1. Calling it on the zero element is a programmer
// error, not a runtime condition: it panics.
func (e Element) Inverse() Element {
	if e.v.IsZero() {
		panic("field: inverse of zero element")
	}
	var r Element
	r.v.Inverse(&e.v)
	return r
}

// Square returns e * e.
func (e Element) Square() Element {
	var r Element
	r.v.Square(&e.v)
	return r
}

// Equal reports whether e and o encode the same field element, in constant
// time with respect to the encoded bytes.
func (e Element) Equal(o Element) bool {
	return subtle.ConstantTimeCompare(e.Bytes(), o.Bytes()) == 1
}

// IsZero reports whether e is the additive identity.
func (e Element) IsZero() bool {
	return e.v.IsZero()
}

// String renders e in decimal, for logs and test failure messages only.
func (e Element) String() string {
	return e.v.String()
}

// sponge is a small fixed-round algebraic permutation: each input is added
// into the running state, then each of spongeRounds rounds adds a round
// constant derived from the domain tag and cubes the state (square, then
// multiply by the state). It is deliberately not a
// specific named hash, only an algebraic, domain-separated function of
// its inputs with the field's own arithmetic as the nonlinearity.
const spongeRounds = 8

// Domain computes a domain-separated algebraic hash of children, seeded by
// tag. Equal (tag, children) always yields equal output; different tags
// over the same children yield different output with overwhelming
// probability.
func Domain(tag string, children ...Element) Element {
	state := HashToField(tag, nil)
	for i, c := range children {
		state = state.Add(c)
		for r := 0; r < spongeRounds; r++ {
			rc := roundConstant(tag, i, r)
			state = state.Add(rc)
			state = state.Square().Mul(state)
		}
	}
	return state
}

func roundConstant(tag string, childIndex, round int) Element {
	return HashToField(tag, []byte{byte(childIndex), byte(round)})
}

// HashToField maps an arbitrary byte string into the field using blake2b,
// domain-separated by prepending a fixed-width personalization block
// derived from tag (x/crypto/blake2b has no native personalization
// parameter, so the tag is folded in as an unambiguous length-prefixed
// header instead). Used for mint blinding, where tag is the shielded
// pool's mintDomainTag ("mint-domain") and data is the
// note-commitment-tree position's little-endian bytes.
func HashToField(tag string, data []byte) Element {
	h, err := blake2b.New256(nil)
	if err != nil {
		// blake2b.New256 only errors on an oversized key, which we never pass.
		panic(fmt.Sprintf("field: blake2b init: %v", err))
	}
	h.Write([]byte{byte(len(tag))})
	h.Write([]byte(tag))
	h.Write(data)
	digest := h.Sum(nil)

	return SetBytes(digest)
}
