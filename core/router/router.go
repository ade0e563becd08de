// Package router maps URL-path prefixes to handler descriptors.
//
// Lookups resolve to the longest registered prefix that is a prefix of the
// request path. The trie is built once at registration time and read-only
// afterwards, so workers share it without locking.
package router

import (
	"fmt"

	"github.com/X4/lwan/core/http"
)

// ParseFlags tells the core which parts of the request a handler needs
// pre-parsed before its callback runs.
type ParseFlags uint8

const (
	ParseQueryString ParseFlags = 1 << iota
	ParseIfModifiedSince
	ParseRange

	ParseAll = ParseQueryString | ParseIfModifiedSince | ParseRange
)

// HandleFunc processes one request. It runs inside the connection's
// coroutine and may suspend through the request's read/write primitives.
type HandleFunc func(req *http.Request, resp *http.Response, data any) http.Status

// Handler describes a pluggable handler module.
type Handler struct {
	// Init builds the handler's per-mount state from its args. Optional;
	// absence means no state and ParseAll flags.
	Init func(args map[string]string) (any, error)
	// Teardown releases what Init built. Optional.
	Teardown func(data any)
	Handle   HandleFunc
	Flags    ParseFlags
}

// Entry mounts a handler at a URL prefix.
type Entry struct {
	Prefix  string
	Handler *Handler
	Args    map[string]string

	data     any
	callback HandleFunc
	flags    ParseFlags
}

// Data returns the state Init produced for this mount.
func (e *Entry) Data() any { return e.data }

// Callback returns the resolved handler function.
func (e *Entry) Callback() HandleFunc { return e.callback }

// Flags returns the resolved parse mask.
func (e *Entry) Flags() ParseFlags { return e.flags }

type node struct {
	children map[byte]*node
	entry    *Entry
}

// Router is a byte trie of URL prefixes.
type Router struct {
	root    *node
	entries []*Entry
}

// New returns an empty router.
func New() *Router {
	return &Router{root: &node{}}
}

// Register tears down any previously registered entries, then walks the
// given table: each handler's Init runs, its state is stored, and the
// callback and flags are resolved. Teardown of every old entry completes
// before any new Init runs.
func (r *Router) Register(entries []Entry) error {
	r.Teardown()

	for i := range entries {
		copied := entries[i]
		e := &copied
		if e.Handler == nil || e.Handler.Handle == nil {
			return fmt.Errorf("router: entry %q has no handler", e.Prefix)
		}

		if e.Handler.Init != nil {
			data, err := e.Handler.Init(e.Args)
			if err != nil {
				return fmt.Errorf("router: init %q: %w", e.Prefix, err)
			}
			e.data = data
			e.flags = e.Handler.Flags
		} else {
			e.flags = ParseAll
		}
		e.callback = e.Handler.Handle

		r.insert(e)
		r.entries = append(r.entries, e)
	}
	return nil
}

// Teardown calls every registered handler's Teardown exactly once and
// empties the trie.
func (r *Router) Teardown() {
	for _, e := range r.entries {
		if e.Handler.Teardown != nil {
			e.Handler.Teardown(e.data)
		}
	}
	r.entries = nil
	r.root = &node{}
}

func (r *Router) insert(e *Entry) {
	n := r.root
	for i := 0; i < len(e.Prefix); i++ {
		c := e.Prefix[i]
		if n.children == nil {
			n.children = make(map[byte]*node)
		}
		child := n.children[c]
		if child == nil {
			child = &node{}
			n.children[c] = child
		}
		n = child
	}
	n.entry = e
}

// Lookup returns the entry for the longest registered prefix of path, or
// nil when no prefix matches.
func (r *Router) Lookup(path string) *Entry {
	n := r.root
	best := n.entry
	for i := 0; i < len(path); i++ {
		if n.children == nil {
			break
		}
		n = n.children[path[i]]
		if n == nil {
			break
		}
		if n.entry != nil {
			best = n.entry
		}
	}
	return best
}
