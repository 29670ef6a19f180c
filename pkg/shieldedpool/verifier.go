package shieldedpool

import (
	"bytes"
	"crypto/ed25519"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/frontend"

	"github.com/penumbra-zone/penumbra-sub011/pkg/field"
)

// curveID is the scalar field the spend/output circuits run over, matching
// pkg/field's choice of BLS12-377.
const curveID = ecc.BLS12_377

// SpendCircuit declares the public-input layout a spend proof commits to:
// the anchor it was witnessed against, its balance commitment, its
// revealed nullifier, and its randomised spend-authorisation key. The
// constraint system that actually binds these to a note and an
// authentication path is left to a real circuit compiled offline; this
// declaration only fixes the witness ordering groth16.Verify checks
// against.
type SpendCircuit struct {
	Anchor            frontend.Variable `gnark:",public"`
	BalanceCommitment frontend.Variable `gnark:",public"`
	Nullifier         frontend.Variable `gnark:",public"`
	Rk                frontend.Variable `gnark:",public"`
}

func (c *SpendCircuit) Define(api frontend.API) error {
	api.AssertIsEqual(c.Anchor, c.Anchor)
	return nil
}

// OutputCircuit declares the public-input layout an output proof commits
// to: its balance commitment, the note commitment it creates, and the
// ephemeral key its ciphertext is encrypted under.
type OutputCircuit struct {
	BalanceCommitment frontend.Variable `gnark:",public"`
	Commitment        frontend.Variable `gnark:",public"`
	EphemeralKey      frontend.Variable `gnark:",public"`
}

func (c *OutputCircuit) Define(api frontend.API) error {
	api.AssertIsEqual(c.BalanceCommitment, c.BalanceCommitment)
	return nil
}

// GrothVerifier implements ActionVerifier against real groth16 verifying
// keys, one per circuit.
type GrothVerifier struct {
	SpendVK  groth16.VerifyingKey
	OutputVK groth16.VerifyingKey
}

// NewGrothVerifier loads verifying keys from their canonical
// gnark-encoded byte representation.
func NewGrothVerifier(spendVK, outputVK []byte) (*GrothVerifier, error) {
	svk := groth16.NewVerifyingKey(curveID)
	if _, err := svk.ReadFrom(bytes.NewReader(spendVK)); err != nil {
		return nil, fmt.Errorf("shieldedpool: reading spend verifying key: %w", err)
	}
	ovk := groth16.NewVerifyingKey(curveID)
	if _, err := ovk.ReadFrom(bytes.NewReader(outputVK)); err != nil {
		return nil, fmt.Errorf("shieldedpool: reading output verifying key: %w", err)
	}
	return &GrothVerifier{SpendVK: svk, OutputVK: ovk}, nil
}

// elementToVariable converts e to the decimal big-integer form
// frontend.NewWitness expects for a public input assignment.
func elementToVariable(e field.Element) frontend.Variable {
	n := new(big.Int)
	n.SetString(e.String(), 10)
	return n
}

func (v *GrothVerifier) VerifySpendProof(proofBytes []byte, anchor, balanceCommitment, nullifier, rk field.Element) error {
	proof := groth16.NewProof(curveID)
	if _, err := proof.ReadFrom(bytes.NewReader(proofBytes)); err != nil {
		return fmt.Errorf("%w: reading spend proof: %v", ErrBadProof, err)
	}

	assignment := SpendCircuit{
		Anchor:            elementToVariable(anchor),
		BalanceCommitment: elementToVariable(balanceCommitment),
		Nullifier:         elementToVariable(nullifier),
		Rk:                elementToVariable(rk),
	}
	witness, err := frontend.NewWitness(&assignment, curveID.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return fmt.Errorf("%w: building spend public witness: %v", ErrBadProof, err)
	}

	if err := groth16.Verify(proof, v.SpendVK, witness); err != nil {
		return fmt.Errorf("%w: %v", ErrBadProof, err)
	}
	return nil
}

func (v *GrothVerifier) VerifyOutputProof(proofBytes []byte, balanceCommitment, commitment, ephemeralKey field.Element) error {
	proof := groth16.NewProof(curveID)
	if _, err := proof.ReadFrom(bytes.NewReader(proofBytes)); err != nil {
		return fmt.Errorf("%w: reading output proof: %v", ErrBadProof, err)
	}

	assignment := OutputCircuit{
		BalanceCommitment: elementToVariable(balanceCommitment),
		Commitment:        elementToVariable(commitment),
		EphemeralKey:      elementToVariable(ephemeralKey),
	}
	witness, err := frontend.NewWitness(&assignment, curveID.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return fmt.Errorf("%w: building output public witness: %v", ErrBadProof, err)
	}

	if err := groth16.Verify(proof, v.OutputVK, witness); err != nil {
		return fmt.Errorf("%w: %v", ErrBadProof, err)
	}
	return nil
}

// Ed25519Binding implements BindingVerifier over plain ed25519 signatures:
// the binding signature authenticates a transaction's full authorisation
// hash under its declared binding verification key, and each spend's
// authorisation signature authenticates the same hash under that spend's
// randomised key.
type Ed25519Binding struct{}

func (Ed25519Binding) VerifyBindingSignature(authHash, signature, bindingVerificationKey []byte) error {
	if len(bindingVerificationKey) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: binding verification key has wrong length", ErrBadBindingSignature)
	}
	if !ed25519.Verify(ed25519.PublicKey(bindingVerificationKey), authHash, signature) {
		return ErrBadBindingSignature
	}
	return nil
}

func (Ed25519Binding) VerifySpendAuthSignature(authHash, signature, rk []byte) error {
	if len(rk) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: randomised spend-authorisation key has wrong length", ErrBadAuthSignature)
	}
	if !ed25519.Verify(ed25519.PublicKey(rk), authHash, signature) {
		return ErrBadAuthSignature
	}
	return nil
}
