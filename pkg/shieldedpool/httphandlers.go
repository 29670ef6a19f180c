package shieldedpool

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/penumbra-zone/penumbra-sub011/pkg/field"
	"github.com/penumbra-zone/penumbra-sub011/pkg/storage"
)

// parseHexElement decodes a hex-encoded canonical little-endian field
// element, i.e. the hex encoding of field.Element.Bytes (the form
// Element.MarshalJSON emits), passed through a query parameter.
func parseHexElement(s string) (field.Element, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return field.Element{}, err
	}
	return field.SetBytes(b), nil
}

// QueryHandlers provides plain net/http handlers for read-only queries
// against the latest committed snapshot, for operators and light clients
// that would rather poll HTTP than speak ABCI Query directly.
type QueryHandlers struct {
	store *storage.Storage
}

// NewQueryHandlers wraps store in an HTTP query surface.
func NewQueryHandlers(store *storage.Storage) *QueryHandlers {
	return &QueryHandlers{store: store}
}

// HandleCompactBlock handles GET /compact-block?height=N.
func (h *QueryHandlers) HandleCompactBlock(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	heightParam := r.URL.Query().Get("height")
	height, err := strconv.ParseUint(heightParam, 10, 64)
	if err != nil {
		http.Error(w, `{"error":"invalid or missing height parameter"}`, http.StatusBadRequest)
		return
	}

	cb, ok, err := GetCompactBlock(h.store.LatestSnapshot(), height)
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"error":"failed to load compact block: %s"}`, err.Error()), http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, `{"error":"compact block not found"}`, http.StatusNotFound)
		return
	}
	if err := json.NewEncoder(w).Encode(cb); err != nil {
		http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
	}
}

// HandleKnownAssets handles GET /known-assets.
func (h *QueryHandlers) HandleKnownAssets(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	sn := h.store.LatestSnapshot()
	assets := KnownAssets(sn)
	reg := NewAssetRegistry(sn)

	type assetInfo struct {
		AssetID string `json:"assetId"`
		Denom   string `json:"denom"`
		Supply  string `json:"supply"`
	}
	out := make([]assetInfo, 0, len(assets))
	for _, id := range assets {
		denom, _ := reg.Denom(id)
		out = append(out, assetInfo{
			AssetID: id.String(),
			Denom:   denom,
			Supply:  reg.Supply(id).String(),
		})
	}
	if err := json.NewEncoder(w).Encode(out); err != nil {
		http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
	}
}

// HandleNullifierStatus handles GET /nullifier-status?nullifier=<hex>.
func (h *QueryHandlers) HandleNullifierStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	hexParam := r.URL.Query().Get("nullifier")
	if hexParam == "" {
		http.Error(w, `{"error":"missing nullifier parameter"}`, http.StatusBadRequest)
		return
	}
	nullifier, err := parseHexElement(hexParam)
	if err != nil {
		http.Error(w, `{"error":"invalid nullifier hex"}`, http.StatusBadRequest)
		return
	}

	spent := IsNullifierSpent(h.store.LatestSnapshot(), nullifier)
	json.NewEncoder(w).Encode(map[string]bool{"spent": spent})
}
