//go:build linux

package core

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/X4/lwan/core/http"
)

// raiseFDLimit raises the soft open-files limit to the hard limit, or to
// 8x the current soft limit when the hard limit is unbounded. The returned
// value sizes the slab: any fd the process may legally receive indexes it.
func raiseFDLimit() (int, error) {
	var lim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &lim); err != nil {
		return 0, fmt.Errorf("getrlimit: %w", err)
	}

	if lim.Max == unix.RLIM_INFINITY {
		lim.Cur *= 8
	} else if lim.Cur != lim.Max {
		lim.Cur = lim.Max
	}

	if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &lim); err != nil {
		return 0, fmt.Errorf("setrlimit: %w", err)
	}
	return int(lim.Cur), nil
}

// newSlab allocates the flat per-fd connection table. There is no free
// list; the OS fd allocator is the free list. After close(fd) the slot
// stays valid and is reused when the OS reuses that fd.
func newSlab(srv *Server, size int) []Conn {
	conns := make([]Conn, size)
	for i := range conns {
		conns[i].fd = i
		conns[i].srv = srv
		// The buffer object lives for the slot's whole lifetime; its
		// backing storage grows on first use and is then retained.
		conns[i].buf = http.NewBuffer(0)
		conns[i].queryParams = http.NoParams
	}
	return conns
}
