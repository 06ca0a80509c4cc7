package driver

import "errors"

var (
	// ErrNoChainHead means a phase ran before Initialize established a head.
	ErrNoChainHead = errors.New("no chain head")

	// ErrBlockNotReady means the engine declined the request or required
	// state is missing. Not fatal; the caller retries on the next attempt.
	ErrBlockNotReady = errors.New("block not ready")

	// ErrUnknownBlock means the engine reports no block for the requested tag.
	ErrUnknownBlock = errors.New("unknown block")

	// ErrConsistencyViolation means the engine handed back a payload whose
	// parent does not match the block we asked it to build on. The owning
	// thread should log and re-initialize from the engine head.
	ErrConsistencyViolation = errors.New("parent linkage violation")

	// ErrMismatchedResult means the private worker delivered a result of the
	// wrong kind for the operation that requested it.
	ErrMismatchedResult = errors.New("mismatched async result type")

	// ErrResultChannelClosed means the one-shot completion signal was dropped
	// without delivering a result.
	ErrResultChannelClosed = errors.New("result channel closed without result")
)
