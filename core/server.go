//go:build linux

package core

import (
	"encoding/binary"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sys/unix"

	"github.com/X4/lwan/core/pools"
	"github.com/X4/lwan/core/router"
)

const (
	requestBufferSize = 4096

	defaultKeepAliveTimeout = 15
)

// Options configures a Server. Zero values pick the defaults.
type Options struct {
	// Port to listen on. 0 lets the kernel pick one (Port reports it).
	Port int
	// Workers is the reactor count; defaults to the online CPU count.
	Workers int
	// KeepAliveTimeout is the idle reap timeout in ticks (seconds).
	KeepAliveTimeout int
	// MaxFileDescriptors caps the slab below RLIMIT_NOFILE. Mainly for
	// embedders and tests; an accepted fd beyond the cap is refused.
	MaxFileDescriptors int
	Log                hclog.Logger
}

// Server owns the slab, the router and the reactors. One instance per
// process.
type Server struct {
	log hclog.Logger

	// conns is the slab: flat per-fd state, indexed by raw fd, shared by
	// all workers and sharded between them by fd ownership.
	conns []Conn

	router   *router.Router
	readBufs *pools.BytePool

	workers        []*worker
	maxFDPerWorker int

	keepAliveTimeout uint64

	listenFd int
	port     int

	shuttingDown atomic.Bool
	wg           sync.WaitGroup
}

// New raises the fd limit, allocates the slab and prepares the router.
// Handlers are mounted with SetHandlers before Run.
func New(opts Options) (*Server, error) {
	log := opts.Log
	if log == nil {
		log = hclog.Default().Named("lwan")
	}

	nWorkers := opts.Workers
	if nWorkers <= 0 {
		nWorkers = runtime.NumCPU()
	}
	keepAlive := opts.KeepAliveTimeout
	if keepAlive <= 0 {
		keepAlive = defaultKeepAliveTimeout
	}

	maxFD, err := raiseFDLimit()
	if err != nil {
		return nil, err
	}
	if opts.MaxFileDescriptors > 0 && opts.MaxFileDescriptors < maxFD {
		maxFD = opts.MaxFileDescriptors
	}

	s := &Server{
		log:              log,
		router:           router.New(),
		readBufs:         pools.NewBytePool(requestBufferSize),
		maxFDPerWorker:   (maxFD + nWorkers - 1) / nWorkers,
		keepAliveTimeout: uint64(keepAlive),
		listenFd:         -1,
		port:             opts.Port,
	}
	s.conns = newSlab(s, maxFD)
	s.workers = make([]*worker, nWorkers)

	log.Info("slab allocated", "slots", maxFD, "workers", nWorkers)
	return s, nil
}

// SetHandlers (re)registers the handler table. Re-registering tears every
// previous entry down before any new handler initializes.
func (s *Server) SetHandlers(entries []router.Entry) error {
	return s.router.Register(entries)
}

// Port reports the bound port, useful when Options.Port was 0. Only valid
// once the listening socket is bound, by Listen or by Run.
func (s *Server) Port() int {
	return s.port
}

// Listen binds the listening socket without starting the reactors. Run
// calls it implicitly; calling it first is useful with Port 0 to learn the
// bound port before the server is driven.
func (s *Server) Listen() error {
	if s.listenFd >= 0 {
		return nil
	}
	return s.listen()
}

// Run binds the listening socket, starts one reactor per worker slot and
// then turns the calling goroutine into the acceptor. It returns after
// Shutdown completes the teardown sequence.
func (s *Server) Run() error {
	if err := s.Listen(); err != nil {
		return err
	}

	for i := range s.workers {
		w, err := newWorker(s, i)
		if err != nil {
			return fmt.Errorf("creating worker %d: %w", i, err)
		}
		s.workers[i] = w
	}

	a, err := newAcceptor(s, s.listenFd)
	if err != nil {
		return fmt.Errorf("creating acceptor: %w", err)
	}

	for _, w := range s.workers {
		s.wg.Add(1)
		go w.run()
	}

	s.log.Info("ready", "port", s.port, "workers", len(s.workers),
		"keep_alive_timeout", s.keepAliveTimeout)
	a.run()

	// Teardown, in reverse of init: destroying each worker's epoll set
	// makes its next epoll_wait fail with EBADF, exiting the loop. A worker
	// already blocked in a wait without timeout is woken through its
	// eventfd, which stays registered while that wait holds the set.
	var wake [8]byte
	binary.NativeEndian.PutUint64(wake[:], 1)
	for _, w := range s.workers {
		w.poller.Close()
		unix.Write(w.eventFd, wake[:])
	}
	s.wg.Wait()
	for _, w := range s.workers {
		unix.Close(w.eventFd)
	}

	a.poller.Close()
	unix.Shutdown(s.listenFd, unix.SHUT_RDWR)
	unix.Close(s.listenFd)
	s.listenFd = -1

	s.router.Teardown()
	s.log.Info("shut down")
	return nil
}

// Shutdown asks the acceptor to stop; Run then performs the teardown. Safe
// to call from a signal-handling goroutine.
func (s *Server) Shutdown() {
	s.shuttingDown.Store(true)
}

func (s *Server) listen() error {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("socket: %w", err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return fmt.Errorf("SO_REUSEADDR: %w", err)
	}
	if err := unix.SetsockoptLinger(fd, unix.SOL_SOCKET, unix.SO_LINGER, &unix.Linger{Onoff: 1, Linger: 1}); err != nil {
		unix.Close(fd)
		return fmt.Errorf("SO_LINGER: %w", err)
	}

	sa := &unix.SockaddrInet4{Port: s.port}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return fmt.Errorf("bind port %d: %w", s.port, err)
	}

	backlog := len(s.workers) * s.maxFDPerWorker
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return fmt.Errorf("listen: %w", err)
	}

	if s.port == 0 {
		bound, err := unix.Getsockname(fd)
		if err != nil {
			unix.Close(fd)
			return fmt.Errorf("getsockname: %w", err)
		}
		s.port = bound.(*unix.SockaddrInet4).Port
	}

	s.listenFd = fd
	return nil
}
