// Package files implements the serve-files handler: static content out of
// the change-watched file cache.
package files

import (
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/X4/lwan/core/fcache"
	"github.com/X4/lwan/core/http"
	"github.com/X4/lwan/core/router"
)

const modifiedSinceFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

type state struct {
	cache *fcache.Cache
}

// New returns the serve-files handler descriptor. Args: "root" (required)
// is the directory to serve, "cache_entries" optionally caps the cache.
func New(log hclog.Logger) *router.Handler {
	return &router.Handler{
		Init: func(args map[string]string) (any, error) {
			maxEntries := 1024
			if v, ok := args["cache_entries"]; ok {
				if n, err := strconv.Atoi(v); err == nil && n > 0 {
					maxEntries = n
				}
			}
			cache, err := fcache.New(args["root"], maxEntries, log.Named("fcache"))
			if err != nil {
				return nil, err
			}
			return &state{cache: cache}, nil
		},
		Teardown: func(data any) {
			data.(*state).cache.Close()
		},
		Handle: serve,
		Flags:  router.ParseIfModifiedSince | router.ParseRange,
	}
}

func serve(req *http.Request, resp *http.Response, data any) http.Status {
	if req.Method != "GET" && req.Method != "HEAD" {
		return http.StatusNotAllowed
	}

	st := data.(*state)
	tail := req.Tail
	if tail == "" || strings.HasSuffix(tail, "/") {
		tail += "index.html"
	}

	path := filepath.Join(st.cache.Root(), filepath.FromSlash(tail))
	if !strings.HasPrefix(path, st.cache.Root()+string(filepath.Separator)) {
		return http.StatusForbidden
	}

	entry, err := st.cache.Get(path)
	if err != nil {
		return http.StatusNotFound
	}

	if req.Range != "" {
		if !rangeSatisfiable(req.Range, len(entry.Content)) {
			return http.StatusRangeUnsatisfiable
		}
	}

	if req.IfModifiedSince != "" {
		if since, err := time.Parse(modifiedSinceFormat, req.IfModifiedSince); err == nil {
			if !entry.ModTime.Truncate(time.Second).After(since) {
				return http.StatusNotModified
			}
		}
	}

	resp.Mime = entry.MimeType
	resp.AddHeader("Last-Modified", entry.ModTime.UTC().Format(modifiedSinceFormat))
	if req.Method != "HEAD" {
		resp.Write(entry.Content)
	}
	return http.StatusOK
}

// rangeSatisfiable checks the first range's start offset against the file
// size. Partial content is not produced at this layer; an in-bounds range
// is answered with the whole file.
func rangeSatisfiable(spec string, size int) bool {
	spec = strings.TrimPrefix(spec, "bytes=")
	if i := strings.IndexByte(spec, ','); i != -1 {
		spec = spec[:i]
	}
	dash := strings.IndexByte(spec, '-')
	if dash <= 0 {
		// "-N" suffix ranges are always satisfiable for non-empty files.
		return size > 0
	}
	start, err := strconv.Atoi(spec[:dash])
	if err != nil {
		return true
	}
	return start < size
}
