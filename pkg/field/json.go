package field

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// MarshalJSON encodes e as a hex string of its canonical little-endian
// bytes, matching the wire-tag convention the compact block and storage
// proof types use throughout this repo.
func (e Element) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(e.Bytes()))
}

// UnmarshalJSON decodes a hex string produced by MarshalJSON.
func (e *Element) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("field: decoding hex element: %w", err)
	}
	*e = SetBytes(b)
	return nil
}
