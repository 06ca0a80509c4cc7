package engine

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// Payload status values reported by the execution engine.
const (
	StatusValid    = "VALID"
	StatusInvalid  = "INVALID"
	StatusSyncing  = "SYNCING"
	StatusAccepted = "ACCEPTED"
)

// LatestTag selects the current head in eth_getBlockByNumber.
const LatestTag = "latest"

// PayloadID identifies one in-progress build job on the engine. It is opaque
// to us and stays valid until consumed by engine_getPayload or abandoned.
type PayloadID = hexutil.Bytes

// ForkchoiceState tells the engine which block we consider canonical head.
type ForkchoiceState struct {
	HeadBlockHash      common.Hash `json:"headBlockHash"`
	SafeBlockHash      common.Hash `json:"safeBlockHash"`
	FinalizedBlockHash common.Hash `json:"finalizedBlockHash"`
}

// HeadState builds a forkchoice state with head, safe and finalized all set to
// the same block. We do not track safe/finalized independently.
func HeadState(id common.Hash) ForkchoiceState {
	return ForkchoiceState{
		HeadBlockHash:      id,
		SafeBlockHash:      id,
		FinalizedBlockHash: id,
	}
}

// PayloadAttributes requests a build job from the engine.
type PayloadAttributes struct {
	Timestamp             hexutil.Uint64      `json:"timestamp"`
	PrevRandao            common.Hash         `json:"prevRandao"`
	SuggestedFeeRecipient common.Address      `json:"suggestedFeeRecipient"`
	Withdrawals           []*types.Withdrawal `json:"withdrawals"`
}

// PayloadStatus is the engine's verdict on a payload or forkchoice update.
type PayloadStatus struct {
	Status          string       `json:"status"`
	LatestValidHash *common.Hash `json:"latestValidHash"`
	ValidationError *string      `json:"validationError"`
}

// IsValid reports whether the engine accepted unconditionally.
func (s PayloadStatus) IsValid() bool { return s.Status == StatusValid }

// ForkchoiceUpdatedResult is the response to engine_forkchoiceUpdated. The
// payload id is only present when build attributes were supplied.
type ForkchoiceUpdatedResult struct {
	PayloadStatus PayloadStatus `json:"payloadStatus"`
	PayloadID     PayloadID     `json:"payloadId"`
}

// ExecutionPayload is a candidate block body built by the engine.
type ExecutionPayload struct {
	ParentHash    common.Hash         `json:"parentHash"`
	FeeRecipient  common.Address      `json:"feeRecipient"`
	StateRoot     common.Hash         `json:"stateRoot"`
	ReceiptsRoot  common.Hash         `json:"receiptsRoot"`
	LogsBloom     hexutil.Bytes       `json:"logsBloom"`
	PrevRandao    common.Hash         `json:"prevRandao"`
	BlockNumber   hexutil.Uint64      `json:"blockNumber"`
	GasLimit      hexutil.Uint64      `json:"gasLimit"`
	GasUsed       hexutil.Uint64      `json:"gasUsed"`
	Timestamp     hexutil.Uint64      `json:"timestamp"`
	ExtraData     hexutil.Bytes       `json:"extraData"`
	BaseFeePerGas *hexutil.Big        `json:"baseFeePerGas"`
	BlockHash     common.Hash         `json:"blockHash"`
	Transactions  []hexutil.Bytes     `json:"transactions"`
	Withdrawals   []*types.Withdrawal `json:"withdrawals"`
}

// ExecutionPayloadEnvelope is the engine_getPayload response: the payload plus
// the value the fee recipient would receive, in wei.
type ExecutionPayloadEnvelope struct {
	ExecutionPayload ExecutionPayload `json:"executionPayload"`
	BlockValue       *hexutil.Big     `json:"blockValue"`
}

// ExecutionBlock is the subset of eth_getBlockByNumber we consume when
// resolving the chain tip.
type ExecutionBlock struct {
	Hash            common.Hash    `json:"hash"`
	Number          hexutil.Uint64 `json:"number"`
	ParentHash      common.Hash    `json:"parentHash"`
	TotalDifficulty *hexutil.Big   `json:"totalDifficulty"`
	Timestamp       hexutil.Uint64 `json:"timestamp"`
}
