package files

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/X4/lwan/core/http"
)

func newTestHandler(t *testing.T) (any, func(req *http.Request) (*http.Response, http.Status)) {
	t.Helper()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("<html>home</html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("plain text"), 0o644))

	h := New(hclog.NewNullLogger())
	data, err := h.Init(map[string]string{"root": root})
	require.NoError(t, err)
	t.Cleanup(func() { h.Teardown(data) })

	call := func(req *http.Request) (*http.Response, http.Status) {
		resp := http.NewResponse(http.NewBuffer(0))
		status := h.Handle(req, &resp, data)
		return &resp, status
	}
	return data, call
}

func TestServeFile(t *testing.T) {
	_, call := newTestHandler(t)

	resp, status := call(&http.Request{Method: "GET", Tail: "notes.txt"})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "text/plain", resp.Mime)
	assert.Equal(t, "plain text", string(resp.Buffer().Bytes()))
}

func TestServeDirectoryIndex(t *testing.T) {
	_, call := newTestHandler(t)

	resp, status := call(&http.Request{Method: "GET", Tail: ""})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "text/html", resp.Mime)
	assert.Equal(t, "<html>home</html>", string(resp.Buffer().Bytes()))
}

func TestHeadOmitsBody(t *testing.T) {
	_, call := newTestHandler(t)

	resp, status := call(&http.Request{Method: "HEAD", Tail: "notes.txt"})
	assert.Equal(t, http.StatusOK, status)
	assert.Zero(t, resp.Buffer().Len())
}

func TestMissingFileIs404(t *testing.T) {
	_, call := newTestHandler(t)

	_, status := call(&http.Request{Method: "GET", Tail: "ghost.txt"})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestTraversalEscapeIs403(t *testing.T) {
	_, call := newTestHandler(t)

	for _, tail := range []string{"../secret", "a/../../secret", ".."} {
		_, status := call(&http.Request{Method: "GET", Tail: tail})
		assert.Equal(t, http.StatusForbidden, status, "tail %q", tail)
	}
}

func TestNonGetIs405(t *testing.T) {
	_, call := newTestHandler(t)

	_, status := call(&http.Request{Method: "POST", Tail: "notes.txt"})
	assert.Equal(t, http.StatusNotAllowed, status)
}

func TestIfModifiedSinceIs304(t *testing.T) {
	_, call := newTestHandler(t)

	// Prime the cache to learn the mtime.
	resp, status := call(&http.Request{Method: "GET", Tail: "notes.txt"})
	require.Equal(t, http.StatusOK, status)

	var lastModified string
	for _, h := range resp.Headers {
		if h.Key == "Last-Modified" {
			lastModified = h.Value
		}
	}
	require.NotEmpty(t, lastModified)

	_, status = call(&http.Request{Method: "GET", Tail: "notes.txt", IfModifiedSince: lastModified})
	assert.Equal(t, http.StatusNotModified, status)

	stale := time.Now().Add(-24 * time.Hour).UTC().Format(modifiedSinceFormat)
	_, status = call(&http.Request{Method: "GET", Tail: "notes.txt", IfModifiedSince: stale})
	assert.Equal(t, http.StatusOK, status)
}

func TestUnsatisfiableRangeIs416(t *testing.T) {
	_, call := newTestHandler(t)

	_, status := call(&http.Request{Method: "GET", Tail: "notes.txt", Range: "bytes=100000-"})
	assert.Equal(t, http.StatusRangeUnsatisfiable, status)

	_, status = call(&http.Request{Method: "GET", Tail: "notes.txt", Range: "bytes=0-4"})
	assert.Equal(t, http.StatusOK, status)
}
