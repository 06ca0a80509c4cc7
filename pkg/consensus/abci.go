package consensus

import (
	"context"
	"log/slog"

	abcitypes "github.com/cometbft/cometbft/abci/types"
	"github.com/ethereum/go-ethereum/common"
)

// ABCIApplication adapts the BFT node's ABCI callbacks into the decision
// stream the scheduler consumes. Quorum, votes and view changes are handled
// by the node; by the time FinalizeBlock reaches us the block is decided.
type ABCIApplication struct {
	decisions chan Decision
	logger    *slog.Logger
	version   string
}

// NewABCIApplication creates a new ABCI application instance.
func NewABCIApplication(version string) *ABCIApplication {
	return &ABCIApplication{
		decisions: make(chan Decision, 64),
		logger:    slog.Default().With("component", "abci"),
		version:   version,
	}
}

// Decisions implements Source.
func (app *ABCIApplication) Decisions() <-chan Decision { return app.decisions }

func (app *ABCIApplication) emit(d Decision) {
	select {
	case app.decisions <- d:
	default:
		app.logger.Warn("Decision stream full, dropping decision",
			"kind", d.Kind.String(), "height", d.Height)
	}
}

// Info implements abcitypes.Application.Info
func (app *ABCIApplication) Info(ctx context.Context, req *abcitypes.RequestInfo) (*abcitypes.ResponseInfo, error) {
	return &abcitypes.ResponseInfo{
		Data:             "pbftbridge",
		Version:          app.version,
		AppVersion:       1,
		LastBlockHeight:  0,
		LastBlockAppHash: []byte{},
	}, nil
}

// Query implements abcitypes.Application.Query
func (app *ABCIApplication) Query(ctx context.Context, req *abcitypes.RequestQuery) (*abcitypes.ResponseQuery, error) {
	return &abcitypes.ResponseQuery{}, nil
}

// CheckTx implements abcitypes.Application.CheckTx
func (app *ABCIApplication) CheckTx(ctx context.Context, req *abcitypes.RequestCheckTx) (*abcitypes.ResponseCheckTx, error) {
	return &abcitypes.ResponseCheckTx{Code: abcitypes.CodeTypeOK}, nil
}

// InitChain implements abcitypes.Application.InitChain
func (app *ABCIApplication) InitChain(ctx context.Context, req *abcitypes.RequestInitChain) (*abcitypes.ResponseInitChain, error) {
	return &abcitypes.ResponseInitChain{}, nil
}

// PrepareProposal implements abcitypes.Application.PrepareProposal
func (app *ABCIApplication) PrepareProposal(ctx context.Context, req *abcitypes.RequestPrepareProposal) (*abcitypes.ResponsePrepareProposal, error) {
	return &abcitypes.ResponsePrepareProposal{Txs: req.Txs}, nil
}

// ProcessProposal implements abcitypes.Application.ProcessProposal
func (app *ABCIApplication) ProcessProposal(ctx context.Context, req *abcitypes.RequestProcessProposal) (*abcitypes.ResponseProcessProposal, error) {
	return &abcitypes.ResponseProcessProposal{
		Status: abcitypes.ResponseProcessProposal_ACCEPT,
	}, nil
}

// FinalizeBlock implements abcitypes.Application.FinalizeBlock. A finalized
// block is a commit decision for the scheduler.
func (app *ABCIApplication) FinalizeBlock(ctx context.Context, req *abcitypes.RequestFinalizeBlock) (*abcitypes.ResponseFinalizeBlock, error) {
	app.emit(Decision{
		Kind:    DecisionCommit,
		BlockID: common.BytesToHash(req.Hash),
		Height:  req.Height,
	})

	txResults := make([]*abcitypes.ExecTxResult, len(req.Txs))
	for i, tx := range req.Txs {
		txResults[i] = &abcitypes.ExecTxResult{
			Code: abcitypes.CodeTypeOK,
			Data: tx,
		}
	}
	return &abcitypes.ResponseFinalizeBlock{TxResults: txResults}, nil
}

// ExtendVote implements abcitypes.Application.ExtendVote
func (app *ABCIApplication) ExtendVote(ctx context.Context, req *abcitypes.RequestExtendVote) (*abcitypes.ResponseExtendVote, error) {
	return &abcitypes.ResponseExtendVote{}, nil
}

// VerifyVoteExtension implements abcitypes.Application.VerifyVoteExtension
func (app *ABCIApplication) VerifyVoteExtension(ctx context.Context, req *abcitypes.RequestVerifyVoteExtension) (*abcitypes.ResponseVerifyVoteExtension, error) {
	return &abcitypes.ResponseVerifyVoteExtension{}, nil
}

// Commit implements abcitypes.Application.Commit
func (app *ABCIApplication) Commit(ctx context.Context, req *abcitypes.RequestCommit) (*abcitypes.ResponseCommit, error) {
	return &abcitypes.ResponseCommit{}, nil
}

// ListSnapshots implements abcitypes.Application.ListSnapshots
func (app *ABCIApplication) ListSnapshots(ctx context.Context, req *abcitypes.RequestListSnapshots) (*abcitypes.ResponseListSnapshots, error) {
	return &abcitypes.ResponseListSnapshots{}, nil
}

// OfferSnapshot implements abcitypes.Application.OfferSnapshot
func (app *ABCIApplication) OfferSnapshot(ctx context.Context, req *abcitypes.RequestOfferSnapshot) (*abcitypes.ResponseOfferSnapshot, error) {
	return &abcitypes.ResponseOfferSnapshot{}, nil
}

// LoadSnapshotChunk implements abcitypes.Application.LoadSnapshotChunk
func (app *ABCIApplication) LoadSnapshotChunk(ctx context.Context, req *abcitypes.RequestLoadSnapshotChunk) (*abcitypes.ResponseLoadSnapshotChunk, error) {
	return &abcitypes.ResponseLoadSnapshotChunk{}, nil
}

// ApplySnapshotChunk implements abcitypes.Application.ApplySnapshotChunk
func (app *ABCIApplication) ApplySnapshotChunk(ctx context.Context, req *abcitypes.RequestApplySnapshotChunk) (*abcitypes.ResponseApplySnapshotChunk, error) {
	return &abcitypes.ResponseApplySnapshotChunk{}, nil
}
