package driver

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/pbftlabs/pbftbridge/pkg/engine"
)

// builtPayload pairs the engine's build-job id with the payload it produced.
type builtPayload struct {
	payloadID engine.PayloadID
	envelope  *engine.ExecutionPayloadEnvelope
}

// lifecycleState holds the per-build-cycle bookkeeping. It is owned by the
// Driver and only ever touched from one call site at a time, so it carries no
// lock. pendingByParent allows at most one in-flight build request per parent;
// a second Summarize for the same parent overwrites the first.
type lifecycleState struct {
	latestCommitted common.Hash
	headSet         bool

	pendingByParent map[common.Hash]engine.PayloadID
	builtByBlock    map[common.Hash]builtPayload

	// Caller-supplied priority order for draining pending decisions.
	checkOrder []common.Hash
}

func newLifecycleState() *lifecycleState {
	return &lifecycleState{
		pendingByParent: make(map[common.Hash]engine.PayloadID),
		builtByBlock:    make(map[common.Hash]builtPayload),
	}
}

func (s *lifecycleState) head() (common.Hash, bool) {
	return s.latestCommitted, s.headSet
}

func (s *lifecycleState) setHead(id common.Hash) {
	s.latestCommitted = id
	s.headSet = true
}

func (s *lifecycleState) pending(parent common.Hash) (engine.PayloadID, bool) {
	id, ok := s.pendingByParent[parent]
	return id, ok
}

func (s *lifecycleState) setPending(parent common.Hash, id engine.PayloadID) {
	s.pendingByParent[parent] = id
}

// clearPending abandons the build request for the given parent. Returns false
// if there was none, which is not an error.
func (s *lifecycleState) clearPending(parent common.Hash) bool {
	if _, ok := s.pendingByParent[parent]; !ok {
		return false
	}
	delete(s.pendingByParent, parent)
	return true
}

func (s *lifecycleState) built(blockID common.Hash) (builtPayload, bool) {
	bp, ok := s.builtByBlock[blockID]
	return bp, ok
}

func (s *lifecycleState) addBuilt(blockID common.Hash, payloadID engine.PayloadID, envelope *engine.ExecutionPayloadEnvelope) {
	s.builtByBlock[blockID] = builtPayload{payloadID: payloadID, envelope: envelope}
}

// evict releases all state owned for the given candidate block: its built
// payload and any pending build request that produced it.
func (s *lifecycleState) evict(blockID common.Hash) bool {
	bp, ok := s.builtByBlock[blockID]
	if ok {
		delete(s.builtByBlock, blockID)
		delete(s.pendingByParent, bp.envelope.ExecutionPayload.ParentHash)
	}
	for i, id := range s.checkOrder {
		if id == blockID {
			s.checkOrder = append(s.checkOrder[:i], s.checkOrder[i+1:]...)
			break
		}
	}
	return ok
}

func (s *lifecycleState) setCheckOrder(order []common.Hash) {
	s.checkOrder = append(s.checkOrder[:0:0], order...)
}
