package driver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/pbftlabs/pbftbridge/pkg/engine"
)

// EngineAPI is the slice of the execution engine client the driver consumes.
// *ethereum.Client implements it.
type EngineAPI interface {
	ForkchoiceUpdated(ctx context.Context, state engine.ForkchoiceState, attrs *engine.PayloadAttributes) (*engine.ForkchoiceUpdatedResult, error)
	NewPayload(ctx context.Context, payload *engine.ExecutionPayload) (*engine.PayloadStatus, error)
	GetPayload(ctx context.Context, id engine.PayloadID) (*engine.ExecutionPayloadEnvelope, error)
	GetBlockByNumber(ctx context.Context, tag string) (*engine.ExecutionBlock, error)
}

// Announcer broadcasts an accepted commit to the rest of the network.
type Announcer interface {
	BroadcastCommit(ctx context.Context, id common.Hash) error
}

// Driver owns the payload lifecycle for one node: it turns the consensus
// loop's blocking phase calls (Initialize, Summarize, Finalize, Commit) into
// correctly sequenced Engine API exchanges.
//
// Every operation drives exactly one RPC round trip to completion on a
// privately owned worker goroutine and returns only once it resolves. The
// consensus loop stays a plain blocking thread; the asynchronous client never
// leaks into it. The driver is never invoked from two call sites at once, so
// its state needs no lock. Operations carry no timeout: a hung RPC blocks the
// owning thread, and shutdown stops that thread rather than cancelling work.
type Driver struct {
	api          EngineAPI
	logger       *slog.Logger
	now          func() time.Time
	feeRecipient common.Address
	announcer    Announcer

	state *lifecycleState

	jobs chan func()
	done chan struct{}
}

// New creates a driver and starts its private worker. Callers must Close it
// when the owning thread shuts down; operations must not be used after Close.
func New(api EngineAPI, feeRecipient common.Address) *Driver {
	d := &Driver{
		api:          api,
		logger:       slog.Default().With("component", "driver"),
		now:          time.Now,
		feeRecipient: feeRecipient,
		state:        newLifecycleState(),
		jobs:         make(chan func()),
		done:         make(chan struct{}),
	}
	go d.run()
	return d
}

// SetAnnouncer injects the commit broadcaster (optional).
func (d *Driver) SetAnnouncer(a Announcer) { d.announcer = a }

func (d *Driver) run() {
	defer close(d.done)
	for job := range d.jobs {
		job()
	}
}

// Close stops the private worker. In-flight work is not cancelled.
func (d *Driver) Close() {
	close(d.jobs)
	<-d.done
}

// Head returns the block the driver currently builds on.
func (d *Driver) Head() (common.Hash, bool) { return d.state.head() }

// PreferredOrder returns the priority order recorded by Reprioritize.
func (d *Driver) PreferredOrder() []common.Hash { return d.state.checkOrder }

type resultKind int

const (
	resultBlockID resultKind = iota + 1
	resultForkchoice
	resultEnvelope
	resultStatus
)

// asyncResult is the single value an operation's worker job produces.
type asyncResult struct {
	kind       resultKind
	blockID    common.Hash
	forkchoice *engine.ForkchoiceUpdatedResult
	envelope   *engine.ExecutionPayloadEnvelope
	status     *engine.PayloadStatus
	err        error
}

// roundTrip hands one exchange to the private worker and blocks on its
// one-shot completion signal. Channel closure without a value means the
// worker dropped the signal.
func (d *Driver) roundTrip(op func(ctx context.Context) asyncResult) (asyncResult, error) {
	res := make(chan asyncResult, 1)
	d.jobs <- func() {
		res <- op(context.Background())
		close(res)
	}
	r, ok := <-res
	if !ok {
		return asyncResult{}, ErrResultChannelClosed
	}
	if r.err != nil {
		return asyncResult{}, r.err
	}
	return r, nil
}

// Initialize begins a new build cycle on top of previous. With previous nil
// the engine's current head is resolved and used. On success the resolved id
// becomes the base for the next Summarize.
func (d *Driver) Initialize(previous *common.Hash) error {
	r, err := d.roundTrip(func(ctx context.Context) asyncResult {
		var blockID common.Hash
		if previous != nil {
			blockID = *previous
		} else {
			block, err := d.api.GetBlockByNumber(ctx, engine.LatestTag)
			if err != nil {
				return asyncResult{err: fmt.Errorf("get block by number: %w", err)}
			}
			if block == nil {
				return asyncResult{err: fmt.Errorf("engine has no latest block: %w", ErrUnknownBlock)}
			}
			blockID = block.Hash
		}

		result, err := d.api.ForkchoiceUpdated(ctx, engine.HeadState(blockID), nil)
		if err != nil {
			return asyncResult{err: fmt.Errorf("forkchoice update: %w", err)}
		}
		if !result.PayloadStatus.IsValid() {
			return asyncResult{err: fmt.Errorf("forkchoice status %s: %w", result.PayloadStatus.Status, ErrBlockNotReady)}
		}
		return asyncResult{kind: resultBlockID, blockID: blockID}
	})
	if err != nil {
		d.logger.Error("Initialize failed", "error", err)
		return err
	}
	if r.kind != resultBlockID {
		return ErrMismatchedResult
	}

	d.state.setHead(r.blockID)
	d.logger.Debug("Initialized build cycle", "head", r.blockID.Hex())
	return nil
}

// Summarize requests a build job on the current head. The engine's payload id
// for the job is recorded against the head until Finalize consumes it.
func (d *Driver) Summarize() error {
	head, ok := d.state.head()
	if !ok {
		return ErrNoChainHead
	}

	attrs := d.buildAttributes()
	r, err := d.roundTrip(func(ctx context.Context) asyncResult {
		result, err := d.api.ForkchoiceUpdated(ctx, engine.HeadState(head), attrs)
		if err != nil {
			return asyncResult{err: fmt.Errorf("forkchoice update with attributes: %w", err)}
		}
		return asyncResult{kind: resultForkchoice, forkchoice: result}
	})
	if err != nil {
		d.logger.Error("Summarize failed", "head", head.Hex(), "error", err)
		return err
	}
	if r.kind != resultForkchoice {
		return ErrMismatchedResult
	}

	fcu := r.forkchoice
	if !fcu.PayloadStatus.IsValid() {
		d.logger.Error("Engine declined build request", "head", head.Hex(), "status", fcu.PayloadStatus.Status)
		return fmt.Errorf("forkchoice status %s: %w", fcu.PayloadStatus.Status, ErrBlockNotReady)
	}
	if len(fcu.PayloadID) == 0 {
		d.logger.Error("Engine returned no payload id", "head", head.Hex())
		return fmt.Errorf("missing payload id: %w", ErrBlockNotReady)
	}

	d.state.setPending(head, fcu.PayloadID)
	return nil
}

// Finalize retrieves the payload built for the current head and returns it
// for agreement. The payload is retained until a decision consumes it via
// Commit or releases it via Fail.
func (d *Driver) Finalize() (*engine.ExecutionPayloadEnvelope, error) {
	head, ok := d.state.head()
	if !ok {
		return nil, ErrNoChainHead
	}
	payloadID, ok := d.state.pending(head)
	if !ok {
		return nil, fmt.Errorf("no pending build for parent %s: %w", head.Hex(), ErrBlockNotReady)
	}

	r, err := d.roundTrip(func(ctx context.Context) asyncResult {
		envelope, err := d.api.GetPayload(ctx, payloadID)
		if err != nil {
			return asyncResult{err: fmt.Errorf("get payload: %w", err)}
		}
		return asyncResult{kind: resultEnvelope, envelope: envelope}
	})
	if err != nil {
		d.logger.Error("Finalize failed", "head", head.Hex(), "error", err)
		return nil, err
	}
	if r.kind != resultEnvelope {
		return nil, ErrMismatchedResult
	}

	payload := &r.envelope.ExecutionPayload
	if payload.ParentHash != head {
		d.logger.Error("Payload parent does not match chain head",
			"parent", payload.ParentHash.Hex(), "head", head.Hex())
		return nil, fmt.Errorf("payload parent %s, chain head %s: %w",
			payload.ParentHash.Hex(), head.Hex(), ErrConsistencyViolation)
	}

	d.state.addBuilt(payload.BlockHash, payloadID, r.envelope)
	return r.envelope, nil
}

// Commit imports the decided block into the engine. The head is not advanced
// here; the caller re-initializes from the committed id.
func (d *Driver) Commit(blockID common.Hash) error {
	bp, ok := d.state.built(blockID)
	if !ok {
		return fmt.Errorf("no built payload for block %s: %w", blockID.Hex(), ErrBlockNotReady)
	}

	r, err := d.roundTrip(func(ctx context.Context) asyncResult {
		status, err := d.api.NewPayload(ctx, &bp.envelope.ExecutionPayload)
		if err != nil {
			return asyncResult{err: fmt.Errorf("new payload: %w", err)}
		}
		return asyncResult{kind: resultStatus, status: status}
	})
	if err != nil {
		d.logger.Error("Commit failed", "block", blockID.Hex(), "error", err)
		return err
	}
	if r.kind != resultStatus {
		return ErrMismatchedResult
	}

	if !r.status.IsValid() {
		d.logger.Error("Engine rejected payload", "block", blockID.Hex(), "status", r.status.Status)
		return fmt.Errorf("payload status %s: %w", r.status.Status, ErrBlockNotReady)
	}
	if r.status.LatestValidHash == nil {
		d.logger.Error("Engine returned no latest valid hash", "block", blockID.Hex())
		return fmt.Errorf("missing latest valid hash: %w", ErrBlockNotReady)
	}

	d.logger.Info("Committed block", "block", blockID.Hex(), "latestValid", r.status.LatestValidHash.Hex())
	return nil
}

// Cancel abandons the in-flight build for the current head, if any. Calling
// it with nothing in flight is a no-op.
func (d *Driver) Cancel() error {
	head, ok := d.state.head()
	if !ok {
		return nil
	}
	if d.state.clearPending(head) {
		d.logger.Info("Abandoned pending build", "parent", head.Hex())
	}
	return nil
}

// Fail marks a candidate block invalid and releases everything held for it.
func (d *Driver) Fail(blockID common.Hash) error {
	if d.state.evict(blockID) {
		d.logger.Warn("Released failed block", "block", blockID.Hex())
	}
	return nil
}

// Announce broadcasts an accepted commit and releases the consumed build
// state for the block.
func (d *Driver) Announce(blockID common.Hash) error {
	if d.announcer != nil {
		if err := d.announcer.BroadcastCommit(context.Background(), blockID); err != nil {
			return fmt.Errorf("broadcast commit: %w", err)
		}
	}
	d.state.evict(blockID)
	return nil
}

// Sync nudges the engine toward the given block with a plain forkchoice
// update. SYNCING is the expected answer when we are behind and is success.
func (d *Driver) Sync(blockID common.Hash) error {
	r, err := d.roundTrip(func(ctx context.Context) asyncResult {
		result, err := d.api.ForkchoiceUpdated(ctx, engine.HeadState(blockID), nil)
		if err != nil {
			return asyncResult{err: fmt.Errorf("forkchoice update: %w", err)}
		}
		return asyncResult{kind: resultForkchoice, forkchoice: result}
	})
	if err != nil {
		d.logger.Error("Sync failed", "block", blockID.Hex(), "error", err)
		return err
	}
	if r.kind != resultForkchoice {
		return ErrMismatchedResult
	}

	switch r.forkchoice.PayloadStatus.Status {
	case engine.StatusValid, engine.StatusSyncing, engine.StatusAccepted:
		return nil
	default:
		return fmt.Errorf("forkchoice status %s: %w", r.forkchoice.PayloadStatus.Status, ErrBlockNotReady)
	}
}

// Reprioritize records the caller-supplied priority for pending decisions.
func (d *Driver) Reprioritize(order []common.Hash) error {
	d.state.setCheckOrder(order)
	return nil
}

func (d *Driver) buildAttributes() *engine.PayloadAttributes {
	return &engine.PayloadAttributes{
		Timestamp:             hexutil.Uint64(d.now().Unix()),
		PrevRandao:            common.Hash{},
		SuggestedFeeRecipient: d.feeRecipient,
		Withdrawals:           []*types.Withdrawal{},
	}
}
