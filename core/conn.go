//go:build linux

package core

import (
	"io"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/X4/lwan/core/coro"
	"github.com/X4/lwan/core/http"
	"github.com/X4/lwan/core/router"
)

type connFlags uint8

const (
	// connAlive means the reactor tracks this fd and the OS fd is open.
	connAlive connFlags = 1 << iota
	// connShouldResume means the last coroutine step did not finish.
	connShouldResume
	// connWriteEvents means the current epoll interest is write-readiness.
	connWriteEvents
	// connKeepAlive means the in-progress or completed request asked for
	// keep-alive.
	connKeepAlive
)

// Conn is one connection slot in the slab. Its index in the slab is its
// file descriptor; all access happens on the single worker the fd was
// dispatched to.
type Conn struct {
	fd    int
	flags connFlags

	coro  *coro.Coro
	yield coro.Yield

	// timeToDie is the worker tick at which the death queue reaps this fd
	// unless activity pushes it forward.
	timeToDie uint64

	// buf is the response buffer. Allocated once when the slab is built,
	// reset between requests, never moved to another slot.
	buf *http.Buffer

	// queryParams rests on the shared http.NoParams sentinel whenever the
	// current request has no parsed parameters.
	queryParams []http.Param

	srv *Server // non-owning back-reference
}

// requestEntry is the per-request coroutine body.
func requestEntry(yield coro.Yield, data any) {
	c := data.(*Conn)
	c.yield = yield
	c.reset()
	c.processRequest()
}

// reset clears the request-scoped state. Identity of fd, srv, coro and the
// response buffer is preserved; the reactor-owned lifecycle flags and
// timeToDie belong to the worker and are not touched here.
func (c *Conn) reset() {
	c.flags &^= connKeepAlive
	c.queryParams = http.NoParams
	c.buf.Reset()
}

// processRequest reads, parses, routes and answers a single request. It
// suspends through c.yield whenever the socket would block.
func (c *Conn) processRequest() {
	buf := c.srv.readBufs.Get(requestBufferSize)
	defer c.srv.readBufs.Put(buf)

	read := 0
	for http.HeaderEnd(buf[:read]) == -1 {
		if read == len(buf) {
			c.flags &^= connKeepAlive
			c.sendError(http.StatusTooLarge)
			return
		}
		n, err := c.read(buf[read:])
		if err != nil {
			// Peer went away mid-request; the reactor reaps the fd.
			return
		}
		read += n
	}

	var req http.Request
	if err := http.ParseRequest(buf[:read], &req); err != nil {
		c.flags &^= connKeepAlive
		c.sendError(http.StatusBadRequest)
		return
	}
	if req.WantsKeepAlive() {
		c.flags |= connKeepAlive
	}

	entry := c.srv.router.Lookup(req.Path)
	if entry == nil {
		c.sendError(http.StatusNotFound)
		return
	}
	req.Tail = strings.TrimPrefix(req.Path[len(entry.Prefix):], "/")

	if entry.Flags()&router.ParseQueryString != 0 {
		c.queryParams = http.ParseQueryParams(c.queryParams[:0], &req)
		req.QueryParams = c.queryParams
	}

	resp := http.NewResponse(c.buf)
	status := entry.Callback()(&req, &resp, entry.Data())
	c.writeResponse(status, &resp)
}

// sendError answers with a bare error page.
func (c *Conn) sendError(status http.Status) {
	c.buf.Reset()
	resp := http.NewResponse(c.buf)
	resp.WriteString(http.StatusAsString(status))
	resp.WriteString("\n")
	c.writeResponse(status, &resp)
}

func (c *Conn) writeResponse(status http.Status, resp *http.Response) {
	head := http.AppendResponseHead(make([]byte, 0, 256), status, resp, c.flags&connKeepAlive != 0)
	if err := c.write(head); err != nil {
		return
	}
	c.write(resp.Buffer().Bytes())
}

// read fills p with at least one byte, yielding to the reactor while the
// socket has nothing to offer.
func (c *Conn) read(p []byte) (int, error) {
	for {
		n, err := unix.Read(c.fd, p)
		if n > 0 {
			return n, nil
		}
		if n == 0 && err == nil {
			return 0, io.EOF
		}
		switch err {
		case unix.EAGAIN:
			c.yield()
		case unix.EINTR:
		default:
			return 0, err
		}
	}
}

// write sends all of p, yielding to the reactor whenever the socket's send
// buffer is full.
func (c *Conn) write(p []byte) error {
	for len(p) > 0 {
		n, err := unix.Write(c.fd, p)
		if n > 0 {
			p = p[n:]
			continue
		}
		switch err {
		case unix.EAGAIN:
			c.yield()
		case unix.EINTR:
		default:
			return err
		}
	}
	return nil
}
