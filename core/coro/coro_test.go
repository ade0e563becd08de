package coro

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestResumeUntilReturn(t *testing.T) {
	steps := 0
	c := New(func(yield Yield, data any) {
		steps++
		yield()
		steps++
		yield()
		steps++
	}, nil)

	require.True(t, c.Resume(), "first resume should report a yield")
	require.Equal(t, 1, steps)
	require.True(t, c.Resume(), "second resume should report a yield")
	require.Equal(t, 2, steps)
	require.False(t, c.Resume(), "final resume should report the entry returned")
	require.Equal(t, 3, steps)
}

func TestDataReachesEntry(t *testing.T) {
	type payload struct{ n int }
	p := &payload{n: 42}

	var got any
	c := New(func(yield Yield, data any) {
		got = data
	}, p)

	require.False(t, c.Resume())
	require.Same(t, p, got)
	require.Same(t, p, c.Data())
}

func TestFreeUnwindsSuspended(t *testing.T) {
	released := make(chan struct{})
	c := New(func(yield Yield, data any) {
		defer close(released)
		yield()
	}, nil)

	require.True(t, c.Resume())
	c.Free()

	select {
	case <-released:
	case <-time.After(2 * time.Second):
		t.Fatal("suspended coroutine was not unwound")
	}
}

func TestFreeFinishedIsNoop(t *testing.T) {
	c := New(func(yield Yield, data any) {}, nil)
	require.False(t, c.Resume())
	c.Free()
	c.Free()
}
