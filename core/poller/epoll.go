//go:build linux

// Package poller wraps the epoll set owned by each reactor.
package poller

import (
	"golang.org/x/sys/unix"
)

// Event is a single readiness notification.
type Event = unix.EpollEvent

// Poller is an epoll-based I/O multiplexer. Add and Mod may be called from
// a thread other than the one blocked in Wait; the kernel serializes them.
type Poller struct {
	epfd int
}

// New creates an epoll set.
func New() (*Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &Poller{epfd: epfd}, nil
}

// Add enrolls fd with the given event mask.
func (p *Poller) Add(fd int, events uint32) error {
	ev := unix.EpollEvent{Events: events, Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

// Mod reprograms the event mask of an enrolled fd.
func (p *Poller) Mod(fd int, events uint32) error {
	ev := unix.EpollEvent{Events: events, Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

// Del removes fd from the set. A closed fd leaves the set on its own.
func (p *Poller) Del(fd int) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// Wait blocks until readiness events arrive or msec elapses. msec of -1
// blocks indefinitely. The error is returned raw; callers distinguish
// EINTR (retry) from EBADF/EINVAL (set destroyed by shutdown).
func (p *Poller) Wait(events []Event, msec int) (int, error) {
	return unix.EpollWait(p.epfd, events, msec)
}

// Close destroys the epoll set. A concurrent Wait fails with EBADF or
// EINVAL, which callers treat as the shutdown signal.
func (p *Poller) Close() error {
	return unix.Close(p.epfd)
}
