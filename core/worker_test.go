//go:build linux

package core

import (
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/X4/lwan/core/http"
)

func TestUpdateTimeToDie(t *testing.T) {
	srv := &Server{keepAliveTimeout: 15}
	w := &worker{srv: srv, tick: 100}

	tests := []struct {
		name  string
		flags connFlags
		want  uint64
	}{
		{"keep-alive", connKeepAlive, 115},
		{"resumable coroutine", connShouldResume, 115},
		{"both", connKeepAlive | connShouldResume, 115},
		{"neither", 0, 100},
	}

	for _, tt := range tests {
		c := &Conn{flags: tt.flags}
		w.updateTimeToDie(c)
		assert.Equal(t, tt.want, c.timeToDie, tt.name)
	}
}

func fdOpen(t *testing.T, fd int) bool {
	t.Helper()
	_, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
	return err == nil
}

func newTestWorker(t *testing.T, slots int) *worker {
	t.Helper()
	srv := &Server{keepAliveTimeout: 5, log: hclog.NewNullLogger()}
	srv.conns = make([]Conn, slots)
	for i := range srv.conns {
		srv.conns[i].fd = i
		srv.conns[i].srv = srv
		srv.conns[i].buf = http.NewBuffer(0)
		srv.conns[i].queryParams = http.NoParams
	}
	return &worker{srv: srv, dq: newDeathQueue(16), log: srv.log}
}

func TestReapExpired(t *testing.T) {
	w := newTestWorker(t, 256)

	pipeFds := func() (int, int) {
		var p [2]int
		require.NoError(t, unix.Pipe(p[:]))
		return p[0], p[1]
	}

	expired, expiredW := pipeFds()
	defer unix.Close(expiredW)
	tombstone, tombstoneW := pipeFds()
	defer unix.Close(tombstoneW)
	fresh, freshW := pipeFds()
	defer unix.Close(freshW)

	// Expired and alive: reaped.
	w.srv.conns[expired].flags = connAlive
	w.srv.conns[expired].timeToDie = 1
	require.True(t, w.dq.push(expired))

	// Hung up earlier: tombstone, fd already closed, must only be skipped.
	unix.Close(tombstone)
	w.srv.conns[tombstone].flags = 0
	w.srv.conns[tombstone].timeToDie = 1
	require.True(t, w.dq.push(tombstone))

	// Not expired yet: the ordered scan stops here.
	w.srv.conns[fresh].flags = connAlive
	w.srv.conns[fresh].timeToDie = 10
	require.True(t, w.dq.push(fresh))

	w.tick = 5
	w.reapExpired()

	assert.Zero(t, w.srv.conns[expired].flags&connAlive, "expired conn must die")
	assert.False(t, fdOpen(t, expired), "expired conn's fd must be closed")

	assert.NotZero(t, w.srv.conns[fresh].flags&connAlive, "unexpired conn must survive")
	assert.True(t, fdOpen(t, fresh))

	require.Equal(t, uint32(1), w.dq.population, "only the unexpired entry remains")
	assert.Equal(t, fresh, w.dq.front())

	unix.Close(fresh)
}

func TestHangupLeavesTombstone(t *testing.T) {
	w := newTestWorker(t, 256)

	var p [2]int
	require.NoError(t, unix.Pipe(p[:]))
	fd, peer := p[0], p[1]
	defer unix.Close(peer)

	c := &w.srv.conns[fd]
	c.flags = connAlive | connKeepAlive
	c.timeToDie = 3
	require.True(t, w.dq.push(fd))

	w.hangup(c)

	assert.Zero(t, c.flags&connAlive)
	assert.Nil(t, c.coro)
	assert.False(t, fdOpen(t, fd))
	require.Equal(t, uint32(1), w.dq.population, "tombstone stays queued")

	// The tombstone is skipped, not double-closed.
	w.tick = 5
	w.reapExpired()
	assert.Zero(t, w.dq.population)
}

func TestDrainIncomingEnrollsOnce(t *testing.T) {
	w := newTestWorker(t, 256)
	efd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	require.NoError(t, err)
	defer unix.Close(efd)
	w.eventFd = efd
	w.pending = make(chan int, 8)
	w.tick = 2

	w.adopt(42)
	w.drainIncoming()

	c := &w.srv.conns[42]
	assert.NotZero(t, c.flags&connAlive)
	assert.Equal(t, uint64(7), c.timeToDie, "tick + keep-alive timeout")
	require.Equal(t, uint32(1), w.dq.population)

	// A second wakeup for an already-alive fd must not enroll it again.
	w.adopt(42)
	w.drainIncoming()
	require.Equal(t, uint32(1), w.dq.population)
}
