//go:build linux

package core

import (
	"github.com/hashicorp/go-hclog"
	"golang.org/x/sys/unix"

	"github.com/X4/lwan/core/poller"
)

// acceptor runs the root epoll set over the listening socket, draining
// pending accepts and round-robining each new fd into a worker's epoll
// set. The EPOLL_CTL_ADD into the target worker, which the kernel
// serializes, and the adoption handoff through the worker's pending channel
// and eventfd are the only cross-thread interactions with a worker.
type acceptor struct {
	srv      *Server
	poller   *poller.Poller
	listenFd int
	counter  int
	log      hclog.Logger
}

func newAcceptor(srv *Server, listenFd int) (*acceptor, error) {
	p, err := poller.New()
	if err != nil {
		return nil, err
	}
	if err := p.Add(listenFd, unix.EPOLLIN|unix.EPOLLERR|unix.EPOLLET); err != nil {
		p.Close()
		return nil, err
	}
	return &acceptor{
		srv:      srv,
		poller:   p,
		listenFd: listenFd,
		log:      srv.log.Named("acceptor"),
	}, nil
}

// run loops until the shutdown token is set. The 1s wait timeout bounds
// how long a pending shutdown goes unnoticed.
func (a *acceptor) run() {
	events := make([]poller.Event, 4)

	for !a.srv.shuttingDown.Load() {
		n, err := a.poller.Wait(events, 1000)
		if err != nil {
			switch err {
			case unix.EINTR:
				continue
			case unix.EBADF, unix.EINVAL:
				return
			default:
				a.log.Error("epoll_wait failed", "error", err)
				continue
			}
		}
		for i := 0; i < n; i++ {
			if int(events[i].Fd) == a.listenFd {
				a.acceptAll()
			}
		}
	}
}

// nextWorker picks the reactor for the next accepted connection,
// round-robin.
func (a *acceptor) nextWorker() int {
	id := a.counter % len(a.srv.workers)
	a.counter++
	return id
}

// acceptAll drains the listen backlog, handing each fd to the next worker
// in line.
func (a *acceptor) acceptAll() {
	for {
		fd, _, err := unix.Accept4(a.listenFd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			switch err {
			case unix.EAGAIN, unix.EWOULDBLOCK:
				return
			case unix.ECONNABORTED, unix.EINTR:
				continue
			default:
				a.log.Error("accept failed", "error", err)
				return
			}
		}

		if fd >= len(a.srv.conns) {
			// Cannot happen while the slab is sized to RLIMIT_NOFILE.
			a.log.Error("accepted fd beyond slab", "fd", fd)
			unix.Close(fd)
			continue
		}

		w := a.srv.workers[a.nextWorker()]

		if err := w.poller.Add(fd, connEventsRead); err != nil {
			a.log.Error("enrolling fd into worker failed", "fd", fd, "error", err)
			unix.Close(fd)
			continue
		}
		w.adopt(fd)
	}
}
