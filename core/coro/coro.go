// Package coro drives the per-connection request tasks.
//
// Each connection's request processing runs as a cooperatively scheduled
// coroutine owned by a single worker reactor. The coroutine suspends itself
// whenever a read or write would block; the reactor resumes it when the
// socket becomes ready again. Coroutines never migrate between workers.
package coro

import (
	"context"

	"github.com/tcard/coro"
)

// Yield suspends the running coroutine and returns control to the worker
// that called Resume. It must only be called from inside the coroutine.
type Yield func()

// Entry is the function a coroutine executes. Returning from it finishes
// the coroutine; subsequent resumes report it as finished.
type Entry func(yield Yield, data any)

// Coro is a single cooperatively scheduled task.
type Coro struct {
	resume coro.Resume
	kill   context.CancelFunc
	data   any
}

// New creates a coroutine primed to call entry on the first Resume.
// The data value is handed to entry and retrievable through Data.
func New(entry Entry, data any) *Coro {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coro{kill: cancel, data: data}
	c.resume = coro.New(func(yield func()) {
		entry(Yield(yield), data)
	}, coro.KillOnContextDone(ctx))
	return c
}

// Resume transfers control to the coroutine until it yields or returns.
// It reports true when the coroutine yielded and may be resumed again,
// false once entry has returned.
func (c *Coro) Resume() bool {
	return c.resume()
}

// Data returns the value passed to New.
func (c *Coro) Data() any {
	return c.data
}

// Free releases the coroutine. A suspended coroutine is unwound at its
// suspension point; a finished one is a no-op. Free must not be called
// while the coroutine is running.
func (c *Coro) Free() {
	c.kill()
}
