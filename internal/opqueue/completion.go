package opqueue

import (
	"context"
	"sync"
)

// completionHandle is the type-erased interface the worker and the
// coalescer use to resolve a request's outcome, regardless of the
// producer-facing result type. Completion[T] implements it.
//
// Two-phase signalling (spec §4.3):
//
//  1. stage1 delivers the item's own execution result as soon as its
//     statement has run, before the chunk commits.
//  2. terminal resolves the completion for good: on success it finalizes
//     with the value already delivered by stage1; on failure (including
//     a failed chunk commit) it finalizes with the error instead, even
//     if stage1 already fired.
//
// failImmediate is used when the item's own statement failed — there is
// no stage1 value to chain, so the completion terminates right away.
type completionHandle interface {
	stage1(v any)
	terminal(err error)
	failImmediate(err error)
}

// Completion is the one-shot handle returned to a producer. It is
// fulfilled by the queue worker (directly, or via a merged completion's
// fan-out) with either a result or an error.
type Completion[T any] struct {
	done chan struct{}
	once sync.Once

	mu        sync.Mutex
	staged    T
	hasStaged bool
	val       T
	err       error
}

func newCompletion[T any]() *Completion[T] {
	return &Completion[T]{done: make(chan struct{})}
}

func (c *Completion[T]) stage1(v any) {
	c.mu.Lock()
	c.staged = v.(T)
	c.hasStaged = true
	c.mu.Unlock()
}

func (c *Completion[T]) terminal(err error) {
	c.mu.Lock()
	staged := c.staged
	c.mu.Unlock()
	if err != nil {
		var zero T
		c.finish(zero, err)
		return
	}
	c.finish(staged, nil)
}

func (c *Completion[T]) failImmediate(err error) {
	var zero T
	c.finish(zero, err)
}

func (c *Completion[T]) finish(val T, err error) {
	c.once.Do(func() {
		c.mu.Lock()
		c.val, c.err = val, err
		c.mu.Unlock()
		close(c.done)
	})
}

// Wait blocks until the completion is terminal, or ctx is done.
func (c *Completion[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-c.done:
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.val, c.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Peek returns the stage-1 value if one has been staged, without waiting
// for commit. A false second return means no value is available: either
// nothing has been staged yet, or the completion terminated with an
// error. Callers that want
// guaranteed write atomicity should use Wait instead — Peek may return a
// value that a subsequent COMMIT failure later discards (spec §4.3).
func (c *Completion[T]) Peek() (T, bool) {
	select {
	case <-c.done:
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.val, c.err == nil
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hasStaged {
		return c.staged, true
	}
	var zero T
	return zero, false
}
