package consensus

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pbftlabs/pbftbridge/pkg/engine"
)

// DecisionKind identifies the kind of agreement decision
type DecisionKind uint8

const (
	// DecisionCommit means the block was agreed and must be imported
	DecisionCommit DecisionKind = 1
	// DecisionInvalid means the block was rejected by the quorum
	DecisionInvalid DecisionKind = 2
	// DecisionViewChange means the current round was abandoned
	DecisionViewChange DecisionKind = 3
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionCommit:
		return "commit"
	case DecisionInvalid:
		return "invalid"
	case DecisionViewChange:
		return "view-change"
	default:
		return "unknown"
	}
}

// Decision is one agreement outcome delivered by the BFT protocol.
type Decision struct {
	Kind    DecisionKind
	BlockID common.Hash
	Height  int64
}

// Source is a pollable stream of agreement decisions. The scheduler consumes
// this interface; quorum and message validation live behind it.
type Source interface {
	Decisions() <-chan Decision
}

// Sink accepts locally built payloads for agreement and broadcasts accepted
// commits.
type Sink interface {
	SubmitPayload(ctx context.Context, envelope *engine.ExecutionPayloadEnvelope) error
	BroadcastCommit(ctx context.Context, id common.Hash) error
}
