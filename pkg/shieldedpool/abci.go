package shieldedpool

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	abcitypes "github.com/cometbft/cometbft/abci/types"
)

// App adapts Controller to CometBFT's ABCI 2.0 Application interface: one
// BlockContext lives between FinalizeBlock and Commit, and CheckTx runs
// stateless-then-stateful validation against the latest committed
// snapshot before a transaction ever reaches a block.
type App struct {
	mu sync.Mutex

	logger     *log.Logger
	controller *Controller
	chainID    string

	currentBC *BlockContext
}

// NewApp wraps controller in an ABCI application for chainID.
func NewApp(controller *Controller, chainID string) *App {
	return &App{
		logger:     log.New(log.Writer(), "[shieldedpool] ", log.LstdFlags),
		controller: controller,
		chainID:    chainID,
	}
}

func decodeTx(raw []byte) (Transaction, error) {
	var tx Transaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		return Transaction{}, fmt.Errorf("decoding transaction: %w", err)
	}
	return tx, nil
}

func (a *App) Info(ctx context.Context, req *abcitypes.RequestInfo) (*abcitypes.ResponseInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	height := a.controller.Storage.LatestVersion()
	root := a.controller.Storage.LatestSnapshot().RootHash()
	return &abcitypes.ResponseInfo{
		Data:             "shielded pool core",
		Version:          "1.0.0",
		AppVersion:       1,
		LastBlockHeight:  int64(height),
		LastBlockAppHash: root[:],
	}, nil
}

func (a *App) InitChain(ctx context.Context, req *abcitypes.RequestInitChain) (*abcitypes.ResponseInitChain, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var genesis GenesisState
	if len(req.AppStateBytes) > 0 {
		if err := json.Unmarshal(req.AppStateBytes, &genesis); err != nil {
			return nil, fmt.Errorf("shieldedpool: decoding genesis app_state: %w", err)
		}
	}
	if err := a.controller.InitChain(genesis); err != nil {
		return nil, fmt.Errorf("shieldedpool: init_chain: %w", err)
	}

	root := a.controller.Storage.LatestSnapshot().RootHash()
	return &abcitypes.ResponseInitChain{AppHash: root[:]}, nil
}

// CheckTx runs stateless then stateful validation against the latest
// committed snapshot, rejecting a transaction before it ever reaches the
// mempool's broadcast set.
func (a *App) CheckTx(ctx context.Context, req *abcitypes.RequestCheckTx) (*abcitypes.ResponseCheckTx, error) {
	tx, err := decodeTx(req.Tx)
	if err != nil {
		return &abcitypes.ResponseCheckTx{Code: 1, Log: err.Error()}, nil
	}

	if err := a.controller.CheckTxStateless(tx); err != nil {
		return &abcitypes.ResponseCheckTx{Code: 2, Log: "stateless: " + err.Error()}, nil
	}

	a.mu.Lock()
	sn := a.controller.Storage.LatestSnapshot()
	height := sn.Version()
	a.mu.Unlock()

	if err := a.controller.CheckTxStateful(sn, tx, height); err != nil {
		return &abcitypes.ResponseCheckTx{Code: 3, Log: "stateful: " + err.Error()}, nil
	}

	return &abcitypes.ResponseCheckTx{Code: 0, GasWanted: 1, GasUsed: 1}, nil
}

// FinalizeBlock stages a fresh BlockContext, re-validates and executes
// every transaction against it in order, then runs end_block with the
// height's evidence folded into the slashed-validator list.
func (a *App) FinalizeBlock(ctx context.Context, req *abcitypes.RequestFinalizeBlock) (*abcitypes.ResponseFinalizeBlock, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	height := uint64(req.Height)
	bc := NewBlockContext(a.controller.Storage, a.controller.Storage.LatestSnapshot(), height, a.EpochDuration())

	results := make([]*abcitypes.ExecTxResult, len(req.Txs))
	for i, raw := range req.Txs {
		tx, err := decodeTx(raw)
		if err != nil {
			results[i] = &abcitypes.ExecTxResult{Code: 1, Log: err.Error()}
			continue
		}
		if err := a.controller.CheckTxStateless(tx); err != nil {
			results[i] = &abcitypes.ExecTxResult{Code: 2, Log: err.Error()}
			continue
		}
		if err := a.controller.CheckTxStateful(bc.Delta, tx, height); err != nil {
			results[i] = &abcitypes.ExecTxResult{Code: 2, Log: err.Error()}
			continue
		}
		if err := a.controller.ExecuteTx(bc, tx); err != nil {
			results[i] = &abcitypes.ExecTxResult{Code: 3, Log: err.Error()}
			continue
		}
		results[i] = &abcitypes.ExecTxResult{Code: 0, Events: txEvents(tx)}
	}

	slashed := make([]string, 0, len(req.Misbehavior))
	for _, m := range req.Misbehavior {
		slashed = append(slashed, fmt.Sprintf("%X", m.Validator.Address))
	}

	if err := a.controller.EndBlock(bc, nil, nil, nil, nil, slashed); err != nil {
		return nil, fmt.Errorf("shieldedpool: end_block at height %d: %w", height, err)
	}

	a.currentBC = bc
	root := a.controller.NCT.Root()
	return &abcitypes.ResponseFinalizeBlock{
		TxResults: results,
		AppHash:   root.Bytes(),
	}, nil
}

func txEvents(tx Transaction) []abcitypes.Event {
	return []abcitypes.Event{{
		Type: "shielded_transaction",
		Attributes: []abcitypes.EventAttribute{
			{Key: "id", Value: tx.ID},
			{Key: "num_spends", Value: fmt.Sprintf("%d", len(tx.Spends()))},
			{Key: "num_outputs", Value: fmt.Sprintf("%d", len(tx.Outputs()))},
		},
	}}
}

// Commit publishes the BlockContext staged by the most recent
// FinalizeBlock call.
func (a *App) Commit(ctx context.Context, req *abcitypes.RequestCommit) (*abcitypes.ResponseCommit, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.currentBC == nil {
		return nil, fmt.Errorf("shieldedpool: Commit called with no pending block context")
	}
	if _, err := a.controller.Commit(a.currentBC); err != nil {
		return nil, fmt.Errorf("shieldedpool: commit: %w", err)
	}
	a.currentBC = nil
	return &abcitypes.ResponseCommit{}, nil
}

// Query dispatches read-only paths over the latest committed snapshot:
// /compact_block and /known_assets. Any other path is answered with an
// error code.
func (a *App) Query(ctx context.Context, req *abcitypes.RequestQuery) (*abcitypes.ResponseQuery, error) {
	a.mu.Lock()
	sn := a.controller.Storage.LatestSnapshot()
	a.mu.Unlock()

	switch req.Path {
	case "/compact_block":
		height := bytesToHeight(req.Data)
		cb, ok, err := GetCompactBlock(sn, height)
		if err != nil {
			return &abcitypes.ResponseQuery{Code: 1, Log: err.Error()}, nil
		}
		if !ok {
			return &abcitypes.ResponseQuery{Code: 1, Log: "compact block not found"}, nil
		}
		data, err := json.Marshal(cb)
		if err != nil {
			return &abcitypes.ResponseQuery{Code: 1, Log: err.Error()}, nil
		}
		return &abcitypes.ResponseQuery{Code: 0, Value: data}, nil

	case "/known_assets":
		assets := KnownAssets(sn)
		data, err := json.Marshal(assets)
		if err != nil {
			return &abcitypes.ResponseQuery{Code: 1, Log: err.Error()}, nil
		}
		return &abcitypes.ResponseQuery{Code: 0, Value: data}, nil

	default:
		return &abcitypes.ResponseQuery{Code: 2, Log: "unknown query path: " + req.Path}, nil
	}
}

func bytesToHeight(b []byte) uint64 {
	var h uint64
	for _, by := range b {
		h = h<<8 | uint64(by)
	}
	return h
}

// EpochDuration returns the controller's configured epoch length, so
// FinalizeBlock can derive the block's epoch membership without a
// circular import back into config.
func (a *App) EpochDuration() uint64 { return a.controller.EpochDuration }

func (a *App) PrepareProposal(ctx context.Context, req *abcitypes.RequestPrepareProposal) (*abcitypes.ResponsePrepareProposal, error) {
	return &abcitypes.ResponsePrepareProposal{Txs: req.Txs}, nil
}

func (a *App) ProcessProposal(ctx context.Context, req *abcitypes.RequestProcessProposal) (*abcitypes.ResponseProcessProposal, error) {
	for _, raw := range req.Txs {
		tx, err := decodeTx(raw)
		if err != nil {
			return &abcitypes.ResponseProcessProposal{Status: abcitypes.ResponseProcessProposal_REJECT}, nil
		}
		if err := a.controller.CheckTxStateless(tx); err != nil {
			return &abcitypes.ResponseProcessProposal{Status: abcitypes.ResponseProcessProposal_REJECT}, nil
		}
	}
	return &abcitypes.ResponseProcessProposal{Status: abcitypes.ResponseProcessProposal_ACCEPT}, nil
}

func (a *App) ExtendVote(ctx context.Context, req *abcitypes.RequestExtendVote) (*abcitypes.ResponseExtendVote, error) {
	return &abcitypes.ResponseExtendVote{}, nil
}

func (a *App) VerifyVoteExtension(ctx context.Context, req *abcitypes.RequestVerifyVoteExtension) (*abcitypes.ResponseVerifyVoteExtension, error) {
	return &abcitypes.ResponseVerifyVoteExtension{Status: abcitypes.ResponseVerifyVoteExtension_ACCEPT}, nil
}

func (a *App) ListSnapshots(ctx context.Context, req *abcitypes.RequestListSnapshots) (*abcitypes.ResponseListSnapshots, error) {
	return &abcitypes.ResponseListSnapshots{}, nil
}

func (a *App) OfferSnapshot(ctx context.Context, req *abcitypes.RequestOfferSnapshot) (*abcitypes.ResponseOfferSnapshot, error) {
	return &abcitypes.ResponseOfferSnapshot{Result: abcitypes.ResponseOfferSnapshot_ABORT}, nil
}

func (a *App) LoadSnapshotChunk(ctx context.Context, req *abcitypes.RequestLoadSnapshotChunk) (*abcitypes.ResponseLoadSnapshotChunk, error) {
	return &abcitypes.ResponseLoadSnapshotChunk{}, nil
}

func (a *App) ApplySnapshotChunk(ctx context.Context, req *abcitypes.RequestApplySnapshotChunk) (*abcitypes.ResponseApplySnapshotChunk, error) {
	return &abcitypes.ResponseApplySnapshotChunk{Result: abcitypes.ResponseApplySnapshotChunk_ABORT}, nil
}
