package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pbftlabs/pbftbridge/pkg/consensus"
	pldriver "github.com/pbftlabs/pbftbridge/pkg/driver"
	"github.com/pbftlabs/pbftbridge/pkg/engine"
)

// Driver is the block-build lifecycle the scheduler sequences. Satisfied by
// *driver.Driver.
type Driver interface {
	Initialize(previous *common.Hash) error
	Summarize() error
	Finalize() (*engine.ExecutionPayloadEnvelope, error)
	Commit(blockID common.Hash) error
	Announce(blockID common.Hash) error
	Fail(blockID common.Hash) error
	Cancel() error
	Sync(blockID common.Hash) error
	Reprioritize(order []common.Hash) error
	PreferredOrder() []common.Hash
}

// Config controls production pacing and backpressure.
type Config struct {
	Interval   time.Duration // ticker period between production attempts
	MaxBacklog int           // queued attempts beyond this drop the oldest
}

type buildResult struct {
	envelope *engine.ExecutionPayloadEnvelope
	err      error
}

// Scheduler paces block production. Each ticker firing queues a production
// attempt; each pass starts at most one build and never blocks. While a
// build is in flight the scheduler keeps ownership of the decision stream,
// holding arriving decisions until the build completes.
type Scheduler struct {
	cfg    Config
	driver Driver
	source consensus.Source
	sink   consensus.Sink
	logger *slog.Logger

	backlog    *backlog
	inFlight   bool
	buildDone  chan buildResult
	buildTimer *prometheus.Timer
	deferred   []consensus.Decision
	base       *common.Hash // committed block the next build extends, nil until first commit
}

// New creates a scheduler over the given driver and decision endpoints.
func New(cfg Config, d Driver, source consensus.Source, sink consensus.Sink) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 12 * time.Second
	}
	if cfg.MaxBacklog <= 0 {
		cfg.MaxBacklog = 64
	}
	return &Scheduler{
		cfg:       cfg,
		driver:    d,
		source:    source,
		sink:      sink,
		logger:    slog.Default().With("component", "scheduler"),
		backlog:   newBacklog(cfg.MaxBacklog),
		buildDone: make(chan buildResult, 1),
	}
}

// Run drives the production loop until the context is cancelled. The loop
// stays on one OS thread; all driver calls happen from here or from the
// single in-flight build goroutine, never both at once.
func (s *Scheduler) Run(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info("Production loop started",
		"interval", s.cfg.Interval, "maxBacklog", s.cfg.MaxBacklog)

	for {
		select {
		case <-ctx.Done():
			if s.inFlight {
				// Let the build goroutine finish so the driver is quiesced.
				res := <-s.buildDone
				s.settleBuild(res)
			}
			return ctx.Err()

		case t := <-ticker.C:
			s.Enqueue(ProductionAttempt{Timestamp: t})
			s.RunPass(ctx)

		case d, ok := <-s.source.Decisions():
			if !ok {
				return errors.New("decision stream closed")
			}
			s.handleDecision(ctx, d)

		case res := <-s.buildDone:
			s.completeBuild(ctx, res)
			s.RunPass(ctx)
		}
	}
}

// Enqueue adds a production attempt to the backlog.
func (s *Scheduler) Enqueue(a ProductionAttempt) {
	if s.backlog.push(a) {
		droppedAttempts.Inc()
		s.logger.Warn("Backlog full, dropped oldest attempt", "max", s.backlog.max)
	}
	backlogDepth.Set(float64(s.backlog.len()))
}

// RunPass makes one scheduling decision. It starts at most one build and
// returns immediately; if a build is already in flight it does nothing.
func (s *Scheduler) RunPass(ctx context.Context) {
	if s.inFlight {
		return
	}
	attempt, ok := s.backlog.pop()
	if !ok {
		return
	}
	backlogDepth.Set(float64(s.backlog.len()))

	s.inFlight = true
	s.buildTimer = prometheus.NewTimer(buildDuration)
	base := s.base
	s.logger.Debug("Starting build", "attempt", attempt.Timestamp)

	go func() {
		s.buildDone <- s.runBuild(base)
	}()
}

// runBuild drives one full build against the driver. It runs on its own
// goroutine; the run loop must not touch the driver until it reports back.
func (s *Scheduler) runBuild(base *common.Hash) buildResult {
	if err := s.driver.Initialize(base); err != nil {
		return buildResult{err: err}
	}
	if err := s.driver.Summarize(); err != nil {
		return buildResult{err: err}
	}
	envelope, err := s.driver.Finalize()
	if err != nil {
		return buildResult{err: err}
	}
	return buildResult{envelope: envelope}
}

// completeBuild takes back driver ownership, submits the payload for
// agreement and replays decisions that arrived during the build.
func (s *Scheduler) completeBuild(ctx context.Context, res buildResult) {
	s.settleBuild(res)

	if res.err == nil {
		payload := &res.envelope.ExecutionPayload
		s.logger.Info("Built payload",
			"block", payload.BlockHash.Hex(),
			"number", uint64(payload.BlockNumber))
		if err := s.sink.SubmitPayload(ctx, res.envelope); err != nil {
			s.logger.Error("Failed to submit payload for agreement",
				"block", payload.BlockHash.Hex(), "err", err)
			if err := s.driver.Fail(payload.BlockHash); err != nil {
				s.logger.Error("Failed to discard payload", "err", err)
			}
		}
	}

	s.drainDeferred(ctx)
}

func (s *Scheduler) settleBuild(res buildResult) {
	s.inFlight = false
	if s.buildTimer != nil {
		s.buildTimer.ObserveDuration()
		s.buildTimer = nil
	}
	if res.err != nil {
		buildFailures.Inc()
		s.logger.Warn("Build failed", "err", res.err)
		if err := s.driver.Cancel(); err != nil {
			s.logger.Error("Failed to cancel build", "err", err)
		}
	}
}

// handleDecision applies a decision now, or holds it if a build owns the
// driver.
func (s *Scheduler) handleDecision(ctx context.Context, d consensus.Decision) {
	if s.inFlight {
		s.deferred = append(s.deferred, d)
		return
	}
	s.applyDecision(ctx, d)
}

func (s *Scheduler) applyDecision(ctx context.Context, d consensus.Decision) {
	switch d.Kind {
	case consensus.DecisionCommit:
		err := s.driver.Commit(d.BlockID)
		if errors.Is(err, pldriver.ErrBlockNotReady) {
			// Another validator built this block. Follow it instead.
			s.logger.Info("Committed block not built locally, syncing",
				"block", d.BlockID.Hex(), "height", d.Height)
			if err := s.driver.Sync(d.BlockID); err != nil {
				s.logger.Error("Failed to sync to committed block",
					"block", d.BlockID.Hex(), "err", err)
			}
			return
		}
		if err != nil {
			s.logger.Error("Failed to commit block",
				"block", d.BlockID.Hex(), "err", err)
			return
		}
		if err := s.driver.Announce(d.BlockID); err != nil {
			s.logger.Error("Failed to announce commit",
				"block", d.BlockID.Hex(), "err", err)
		}
		id := d.BlockID
		s.base = &id
		s.logger.Info("Committed block", "block", d.BlockID.Hex(), "height", d.Height)

	case consensus.DecisionInvalid:
		if err := s.driver.Fail(d.BlockID); err != nil {
			s.logger.Error("Failed to discard rejected block",
				"block", d.BlockID.Hex(), "err", err)
		}

	case consensus.DecisionViewChange:
		if err := s.driver.Cancel(); err != nil {
			s.logger.Error("Failed to cancel build on view change", "err", err)
		}

	default:
		s.logger.Warn("Unknown decision kind", "kind", uint8(d.Kind))
	}
}

// drainDeferred replays decisions held during a build, in the driver's
// preferred order when one is set.
func (s *Scheduler) drainDeferred(ctx context.Context) {
	if len(s.deferred) == 0 {
		return
	}
	held := s.deferred
	s.deferred = nil

	if order := s.driver.PreferredOrder(); len(order) > 0 {
		rank := make(map[common.Hash]int, len(order))
		for i, id := range order {
			rank[id] = i
		}
		sortDecisions(held, rank)
	}
	for _, d := range held {
		s.applyDecision(ctx, d)
	}
}

// Reprioritize records the order in which held decisions should be applied.
func (s *Scheduler) Reprioritize(order []common.Hash) error {
	return s.driver.Reprioritize(order)
}

// sortDecisions is a stable insertion sort by rank. Unranked decisions keep
// their arrival order after ranked ones.
func sortDecisions(ds []consensus.Decision, rank map[common.Hash]int) {
	pos := func(d consensus.Decision) int {
		if r, ok := rank[d.BlockID]; ok {
			return r
		}
		return len(rank)
	}
	for i := 1; i < len(ds); i++ {
		for j := i; j > 0 && pos(ds[j]) < pos(ds[j-1]); j-- {
			ds[j], ds[j-1] = ds[j-1], ds[j]
		}
	}
}
