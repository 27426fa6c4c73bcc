package opqueue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Queue is the operation queue: one background worker goroutine owns the
// Executor exclusively; producers call the Enqueue* methods from any
// number of goroutines and wait on the returned Completion for a result.
type Queue struct {
	exec   Executor
	clock  Clock
	logger *slog.Logger

	buf *buffer

	// flushLock serializes chunk transactions against the Vacuum path
	// (spec §4.5): the worker holds it only while a chunk is between
	// BEGIN and COMMIT/ROLLBACK, never while idle, so Vacuum can acquire
	// it promptly once any in-flight chunk finishes.
	flushLock chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup // worker goroutine
	extra  sync.WaitGroup // in-flight Vacuum goroutines

	disposed atomic.Bool
	started  atomic.Bool
}

// NewQueue constructs a Queue over exec. logger defaults to
// slog.Default() when nil.
func NewQueue(exec Executor, clock Clock, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		exec:      exec,
		clock:     clock,
		logger:    logger,
		buf:       newBuffer(),
		flushLock: make(chan struct{}, 1),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start launches the worker goroutine. Calling Start more than once is a
// no-op.
func (q *Queue) Start() {
	if !q.started.CompareAndSwap(false, true) {
		return
	}
	q.wg.Add(1)
	go q.run()
}

// Shutdown stops the worker from taking new work, lets it finish any
// chunk already in flight, processes whatever remains queued in final
// chunks of at most ChunkSize, and waits for everything (including any concurrent Vacuum) to
// finish or for ctx to expire. After Shutdown returns, further Enqueue*
// calls return ErrDisposed.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.disposed.Store(true)
	q.cancel()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		q.extra.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) enqueue(it *item) error {
	if q.disposed.Load() {
		return ErrDisposed
	}
	q.buf.push(it)
	return nil
}

// EnqueueSelect requests the entries for keys, filtering out any whose
// Expiration is already in the past. Exactly one item is enqueued, as
// required by the one-item-per-request coalescing invariant (spec §4.1).
func (q *Queue) EnqueueSelect(keys []string) (*Completion[[]Entry], error) {
	c := newCompletion[[]Entry]()
	if err := q.enqueue(&item{kind: OpBulkSelectByKey, keys: keys, completion: c}); err != nil {
		return nil, err
	}
	return c, nil
}

// EnqueueSelectByType requests every live entry for each of typeNames.
func (q *Queue) EnqueueSelectByType(typeNames []string) (*Completion[[]Entry], error) {
	c := newCompletion[[]Entry]()
	if err := q.enqueue(&item{kind: OpBulkSelectByType, typeNames: typeNames, completion: c}); err != nil {
		return nil, err
	}
	return c, nil
}

// EnqueueInsert replace-on-conflict inserts entries.
func (q *Queue) EnqueueInsert(entries []Entry) (*Completion[Unit], error) {
	c := newCompletion[Unit]()
	if err := q.enqueue(&item{kind: OpBulkInsert, entries: entries, completion: c}); err != nil {
		return nil, err
	}
	return c, nil
}

// EnqueueInvalidate removes keys, if present; missing keys are no-ops.
func (q *Queue) EnqueueInvalidate(keys []string) (*Completion[Unit], error) {
	c := newCompletion[Unit]()
	if err := q.enqueue(&item{kind: OpBulkInvalidateByKey, keys: keys, completion: c}); err != nil {
		return nil, err
	}
	return c, nil
}

// EnqueueInvalidateByType removes every entry whose TypeName is in typeNames.
func (q *Queue) EnqueueInvalidateByType(typeNames []string) (*Completion[Unit], error) {
	c := newCompletion[Unit]()
	if err := q.enqueue(&item{kind: OpBulkInvalidateByType, typeNames: typeNames, completion: c}); err != nil {
		return nil, err
	}
	return c, nil
}

// EnqueueInvalidateAll empties the table.
func (q *Queue) EnqueueInvalidateAll() (*Completion[Unit], error) {
	c := newCompletion[Unit]()
	if err := q.enqueue(&item{kind: OpInvalidateAll, completion: c}); err != nil {
		return nil, err
	}
	return c, nil
}

// EnqueueGetAllKeys lists every key whose Expiration has not yet passed.
func (q *Queue) EnqueueGetAllKeys() (*Completion[[]string], error) {
	c := newCompletion[[]string]()
	if err := q.enqueue(&item{kind: OpGetAllKeys, completion: c}); err != nil {
		return nil, err
	}
	return c, nil
}

// EnqueueFlush enqueues a DoNothing barrier. Because the worker processes
// the queue in FIFO-by-chunk order, the barrier's completion fires only
// after everything enqueued before it has committed or errored (spec
// §4.5, §8 property 3).
func (q *Queue) EnqueueFlush() (*Completion[Unit], error) {
	c := newCompletion[Unit]()
	if err := q.enqueue(&item{kind: OpDoNothing, completion: c}); err != nil {
		return nil, err
	}
	return c, nil
}

// EnqueueVacuum runs the non-transactional vacuum path (spec §4.5): it
// takes the flush lock, drains and executes whatever remains queued,
// commits a DeleteExpired in its own transaction, steps VACUUM outside
// any transaction, then releases the lock. It runs on its own goroutine,
// not the worker's, since it must itself contend for the flush lock
// rather than being scheduled as a normal chunk item.
func (q *Queue) EnqueueVacuum() (*Completion[Unit], error) {
	if q.disposed.Load() {
		return nil, ErrDisposed
	}
	c := newCompletion[Unit]()
	q.extra.Add(1)
	go func() {
		defer q.extra.Done()
		q.runVacuum(c)
	}()
	return c, nil
}

// run is the worker's main loop: Idle (blocking take) -> Filling
// (non-blocking top-up to ChunkSize) -> Processing (one chunk). On
// shutdown it drains and processes everything left exactly once before
// exiting.
func (q *Queue) run() {
	defer q.wg.Done()
	for {
		it, ok := q.takeBlocking()
		if !ok {
			final := q.buf.drainAll()
			for len(final) > 0 {
				n := min(len(final), ChunkSize)
				q.processChunk(final[:n])
				final = final[n:]
			}
			return
		}
		chunk := append([]*item{it}, q.buf.tryTakeUpTo(ChunkSize-1)...)
		q.processChunk(chunk)
	}
}

// takeBlocking returns the next item, blocking until one arrives or the
// worker's context is cancelled (shutdown requested).
func (q *Queue) takeBlocking() (*item, bool) {
	for {
		if taken := q.buf.tryTakeUpTo(1); len(taken) == 1 {
			return taken[0], true
		}
		select {
		case <-q.buf.notify:
			continue
		case <-q.ctx.Done():
			return nil, false
		}
	}
}

// processChunk acquires the flush lock and runs one BEGIN/COMMIT cycle
// over raw.
func (q *Queue) processChunk(raw []*item) {
	q.flushLock <- struct{}{}
	defer func() { <-q.flushLock }()
	q.execChunkLocked(raw)
}

// execChunkLocked implements the Processing state; the caller must
// already hold flushLock.
func (q *Queue) execChunkLocked(raw []*item) {
	coalesced := coalesce(raw)

	if err := q.exec.Begin(); err != nil {
		// Transient: nothing in this chunk has been applied. Re-enqueue
		// the original, pre-coalesce items — the merged items and their
		// fan-out completions are discarded unused, since none of their
		// completions were ever touched.
		q.buf.pushFront(raw)
		q.logger.Warn("opqueue: begin failed, chunk requeued", "size", len(raw), "error", err)
		return
	}

	var pending []*item
	for _, it := range coalesced {
		val, err := q.dispatch(it)
		if err != nil {
			it.completion.failImmediate(&OpError{Kind: it.kind, Err: fmt.Errorf("%w: %v", ErrItemExecutionFailed, err)})
			continue
		}
		it.completion.stage1(val)
		pending = append(pending, it)
	}

	if err := q.exec.Commit(); err != nil {
		_ = q.exec.Rollback()
		commitErr := fmt.Errorf("%w: %v", ErrCommitFailed, err)
		for _, it := range pending {
			it.completion.terminal(commitErr)
		}
		q.logger.Error("opqueue: commit failed", "size", len(coalesced), "error", err)
		return
	}

	for _, it := range pending {
		it.completion.terminal(nil)
	}
	q.logger.Debug("opqueue: chunk committed", "raw_size", len(raw), "executed_size", len(coalesced))
}

// dispatch executes one (possibly merged) item's statement and returns
// its raw result (before it is staged on the item's completion).
func (q *Queue) dispatch(it *item) (any, error) {
	now := q.clock.NowTicks()
	switch it.kind {
	case OpBulkSelectByKey:
		return q.exec.ExecSelectByKey(it.keys, now)
	case OpBulkSelectByType:
		return q.exec.ExecSelectByType(it.typeNames, now)
	case OpBulkInsert:
		err := q.exec.ExecInsert(it.entries, now)
		return Unit{}, err
	case OpBulkInvalidateByKey:
		err := q.exec.ExecInvalidateByKey(it.keys)
		return Unit{}, err
	case OpBulkInvalidateByType:
		err := q.exec.ExecInvalidateByType(it.typeNames)
		return Unit{}, err
	case OpInvalidateAll:
		err := q.exec.ExecInvalidateAll()
		return Unit{}, err
	case OpGetAllKeys:
		return q.exec.ExecGetAllKeys(now)
	case OpDeleteExpired:
		err := q.exec.ExecDeleteExpired(now)
		return Unit{}, err
	case OpDoNothing:
		return Unit{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownOp, it.kind)
	}
}

// runVacuum implements EnqueueVacuum's path, on its own goroutine.
func (q *Queue) runVacuum(c *Completion[Unit]) {
	// Enqueue a cheap barrier so a worker that is mid-Filling wraps up
	// its current cycle quickly and releases the flush lock, rather
	// than us waiting behind an arbitrarily large unrelated chunk.
	_ = q.enqueue(&item{kind: OpDoNothing, completion: newCompletion[Unit]()})

	select {
	case q.flushLock <- struct{}{}:
	case <-q.ctx.Done():
		c.failImmediate(ErrDisposed)
		return
	}
	defer func() { <-q.flushLock }()

	// Drain whatever is left in the queue through the normal chunk
	// machinery before vacuuming, so the file being compacted reflects
	// every request that was enqueued before this vacuum.
	for {
		raw := q.buf.tryTakeUpTo(ChunkSize)
		if len(raw) == 0 {
			break
		}
		q.execChunkLocked(raw)
	}

	now := q.clock.NowTicks()
	if err := q.exec.Begin(); err != nil {
		c.failImmediate(fmt.Errorf("%w: %v", ErrTransientStorageBusy, err))
		return
	}
	if err := q.exec.ExecDeleteExpired(now); err != nil {
		_ = q.exec.Rollback()
		c.failImmediate(fmt.Errorf("%w: %v", ErrItemExecutionFailed, err))
		return
	}
	if err := q.exec.Commit(); err != nil {
		c.failImmediate(fmt.Errorf("%w: %v", ErrCommitFailed, err))
		return
	}
	if err := q.exec.ExecVacuum(); err != nil {
		c.failImmediate(fmt.Errorf("%w: %v", ErrItemExecutionFailed, err))
		return
	}
	c.terminal(nil)
}
