package shieldedpool

import (
	"encoding/json"

	"github.com/penumbra-zone/penumbra-sub011/pkg/field"
	"github.com/penumbra-zone/penumbra-sub011/pkg/storage"
)

// validatorBondingRecord is what the external staking component (out of
// scope for this core, per spec.md §1) writes under
// staking/validator/<identity> for the controller to read through
// StorageValidatorInfoSource.
type validatorBondingRecord struct {
	State          ValidatorBondingState `json:"state"`
	UnbondingEpoch uint64                `json:"unbondingEpoch,omitempty"`
}

func validatorBondingKey(identity string) []byte {
	return hexKey("staking/validator/", field.HashToField("validator-identity", []byte(identity)).Bytes())
}

// PutValidatorBonding records v's current bonding state into w, for the
// external staking component to call whenever a validator transitions
// between Bonded/Unbonding/Unbonded.
func PutValidatorBonding(w LedgerWriter, identity string, state ValidatorBondingState, unbondingEpoch uint64) {
	raw, err := json.Marshal(validatorBondingRecord{State: state, UnbondingEpoch: unbondingEpoch})
	if err != nil {
		panic("shieldedpool: validatorBondingRecord is always json-serialisable: " + err.Error())
	}
	w.PutRaw(validatorBondingKey(identity), raw)
}

// StorageValidatorInfoSource implements ValidatorInfoSource by reading
// the bonding record the external staking component wrote for identity
// out of store's latest committed snapshot at call time, rather than
// holding its own copy of validator state.
type StorageValidatorInfoSource struct {
	Store *storage.Storage
}

func (s StorageValidatorInfoSource) ValidatorInfo(identity string) (ValidatorBondingState, uint64, bool) {
	v, ok := s.Store.LatestSnapshot().Get(validatorBondingKey(identity))
	if !ok {
		return 0, 0, false
	}
	var rec validatorBondingRecord
	if err := json.Unmarshal(v, &rec); err != nil {
		return 0, 0, false
	}
	return rec.State, rec.UnbondingEpoch, true
}
