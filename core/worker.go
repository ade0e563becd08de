//go:build linux

package core

import (
	"encoding/binary"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sys/unix"

	"github.com/X4/lwan/core/coro"
	"github.com/X4/lwan/core/poller"
)

// Epoll interest masks for the two directions a connection's coroutine can
// wait on. Reads are edge-triggered; writes are level-triggered so a
// coroutine suspended mid-response is resumed as soon as the send buffer
// drains.
const (
	connEventsRead  uint32 = unix.EPOLLIN | unix.EPOLLRDHUP | unix.EPOLLERR | unix.EPOLLET
	connEventsWrite uint32 = unix.EPOLLOUT | unix.EPOLLRDHUP | unix.EPOLLERR
)

// worker is one reactor. It owns a disjoint set of fds, an epoll set, a
// death-queue ring and a tick counter, and is the only goroutine that
// touches the slab slots of its fds.
type worker struct {
	srv    *Server
	id     int
	poller *poller.Poller
	events []poller.Event
	dq     deathQueue
	tick   uint64
	log    hclog.Logger

	// eventFd wakes the worker when the acceptor hands it a connection
	// through pending. Enrollment into the death queue then happens on
	// the owning worker, so a silent client is reaped even though its fd
	// never produces a readiness event.
	eventFd int
	pending chan int
}

func newWorker(srv *Server, id int) (*worker, error) {
	p, err := poller.New()
	if err != nil {
		return nil, err
	}
	efd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		p.Close()
		return nil, err
	}
	if err := p.Add(efd, unix.EPOLLIN); err != nil {
		unix.Close(efd)
		p.Close()
		return nil, err
	}
	return &worker{
		srv:     srv,
		id:      id,
		poller:  p,
		events:  make([]poller.Event, srv.maxFDPerWorker),
		dq:      newDeathQueue(srv.maxFDPerWorker),
		log:     srv.log.Named("worker").With("worker", id),
		eventFd: efd,
		pending: make(chan int, srv.maxFDPerWorker),
	}, nil
}

// adopt queues a freshly accepted fd for enrollment. Called from the
// acceptor; everything that touches the slab slot runs on the worker.
func (w *worker) adopt(fd int) {
	select {
	case w.pending <- fd:
		var wake [8]byte
		binary.NativeEndian.PutUint64(wake[:], 1)
		unix.Write(w.eventFd, wake[:])
	default:
		// Enrollment then waits for the fd's first readiness event.
		w.log.Warn("adoption queue full", "fd", fd)
	}
}

// drainIncoming enrolls adopted fds into the death queue so idle
// connections expire. A connection whose first data event raced ahead of
// the wakeup is already alive and enrolled.
func (w *worker) drainIncoming() {
	var buf [8]byte
	unix.Read(w.eventFd, buf[:])

	for {
		select {
		case fd := <-w.pending:
			c := &w.srv.conns[fd]
			if c.flags&connAlive != 0 {
				continue
			}
			c.flags = connAlive
			c.timeToDie = w.tick + w.srv.keepAliveTimeout
			if !w.dq.push(fd) {
				w.log.Warn("death queue full, fd will not be reaped on idle", "fd", fd)
			}
		default:
			return
		}
	}
}

func (w *worker) run() {
	defer w.srv.wg.Done()

	for {
		timeout := -1
		if w.dq.population > 0 {
			timeout = 1000
		}

		n, err := w.poller.Wait(w.events, timeout)
		if err != nil {
			switch err {
			case unix.EINTR:
				continue
			case unix.EBADF, unix.EINVAL:
				// Epoll set destroyed by shutdown.
				w.log.Debug("epoll set closed, exiting")
				return
			default:
				w.log.Error("epoll_wait failed", "error", err)
				continue
			}
		}

		if n == 0 {
			w.tick++
			w.reapExpired()
			continue
		}
		for i := 0; i < n; i++ {
			if int(w.events[i].Fd) == w.eventFd {
				w.drainIncoming()
				continue
			}
			w.dispatch(&w.events[i])
		}
	}
}

func (w *worker) dispatch(ev *poller.Event) {
	fd := int(ev.Fd)
	c := &w.srv.conns[fd]

	if ev.Events&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
		w.hangup(c)
		return
	}

	w.cleanupCoro(c)
	w.spawnCoroIfNeeded(c)
	w.resumeCoroIfNeeded(c)
	w.updateTimeToDie(c)

	if c.flags&connAlive == 0 {
		if !w.dq.push(c.fd) {
			w.log.Warn("death queue full, fd will not be reaped on idle", "fd", c.fd)
		}
		c.flags |= connAlive
	}
}

// hangup tears the connection down in place. The coroutine is freed
// eagerly because a suspended coroutine pins a goroutine; the fd's death
// queue entry stays behind as a tombstone the reaper skips.
func (w *worker) hangup(c *Conn) {
	if c.coro != nil {
		c.coro.Free()
		c.coro = nil
		c.yield = nil
		c.flags &^= connShouldResume
	}
	if c.flags&connAlive != 0 {
		c.flags &^= connAlive
		unix.Close(c.fd)
	}
}

// cleanupCoro frees the coroutine if the last resume reported it finished.
func (w *worker) cleanupCoro(c *Conn) {
	if c.coro != nil && c.flags&connShouldResume == 0 {
		c.coro.Free()
		c.coro = nil
		c.yield = nil
	}
}

func (w *worker) spawnCoroIfNeeded(c *Conn) {
	if c.coro != nil {
		return
	}
	c.coro = coro.New(requestEntry, c)
	c.flags |= connShouldResume
	c.flags &^= connWriteEvents
}

// resumeCoroIfNeeded steps the coroutine once and reprograms the epoll
// interest when the coroutine's I/O direction flipped.
func (w *worker) resumeCoroIfNeeded(c *Conn) {
	if c.flags&connShouldResume == 0 {
		return
	}

	if c.coro.Resume() {
		c.flags |= connShouldResume
	} else {
		c.flags &^= connShouldResume
	}

	shouldResume := c.flags&connShouldResume != 0
	writeEvents := c.flags&connWriteEvents != 0
	if shouldResume == writeEvents {
		return
	}

	events := connEventsRead
	if shouldResume {
		events = connEventsWrite
	}
	if err := w.poller.Mod(c.fd, events); err != nil {
		// The connection may wedge; this only happens on kernel-level fd
		// corruption.
		w.log.Warn("epoll_ctl MOD failed", "fd", c.fd, "error", err)
	}
	c.flags ^= connWriteEvents
}

func (w *worker) updateTimeToDie(c *Conn) {
	if c.flags&(connKeepAlive|connShouldResume) != 0 {
		c.timeToDie = w.tick + w.srv.keepAliveTimeout
	} else {
		c.timeToDie = w.tick
	}
}

// reapExpired closes connections whose time to die has passed. The ring is
// ordered by enrollment, so the scan stops at the first entry still in the
// future. Tombstones left by hangups are skipped.
func (w *worker) reapExpired() {
	for w.dq.population > 0 {
		c := &w.srv.conns[w.dq.front()]
		if c.timeToDie > w.tick {
			return
		}
		w.dq.pop()

		if c.flags&connAlive == 0 {
			continue
		}
		if c.coro != nil {
			c.coro.Free()
			c.coro = nil
			c.yield = nil
			c.flags &^= connShouldResume
		}
		c.flags &^= connAlive
		unix.Close(c.fd)
	}
}
