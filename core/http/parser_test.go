package http

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequest(t *testing.T) {
	var req Request
	data := []byte("GET /files/logo.png?w=64&h=64 HTTP/1.1\r\n" +
		"Host: example.org\r\n" +
		"Connection: close\r\n" +
		"X-Custom: yes\r\n" +
		"\r\n")
	require.NoError(t, ParseRequest(data, &req))

	assert.Equal(t, "GET", req.Method)
	assert.Equal(t, "/files/logo.png", req.Path)
	assert.Equal(t, "HTTP/1.1", req.Proto)
	assert.Equal(t, "example.org", req.Host)
	assert.Equal(t, "close", req.Connection)
	assert.Equal(t, "yes", req.Header("X-Custom"))

	params := ParseQueryParams(NoParams, &req)
	require.Equal(t, []Param{{Key: "w", Value: "64"}, {Key: "h", Value: "64"}}, params)
	assert.Empty(t, NoParams, "sentinel must never be mutated")
}

func TestParseRequestIncomplete(t *testing.T) {
	var req Request
	err := ParseRequest([]byte("GET / HTTP/1.1\r\nHost: h\r\n"), &req)
	require.ErrorIs(t, err, ErrIncompleteRequest)
}

func TestParseRequestInvalid(t *testing.T) {
	tests := []string{
		"FOO\r\n\r\n",
		"GET\r\n\r\n",
		"GET /\r\n\r\n",
		"GET nopath HTTP/1.1\r\n\r\n",
	}
	for _, raw := range tests {
		var req Request
		err := ParseRequest([]byte(raw), &req)
		require.ErrorIs(t, err, ErrInvalidRequest, "raw %q", raw)
	}
}

func TestHeaderEnd(t *testing.T) {
	assert.Equal(t, -1, HeaderEnd([]byte("GET / HTTP/1.1\r\n")))
	assert.Equal(t, 18, HeaderEnd([]byte("GET / HTTP/1.1\r\n\r\nxx")))
	assert.Equal(t, 16, HeaderEnd([]byte("GET / HTTP/1.1\n\nxx")))
}

func TestQueryParamDecoding(t *testing.T) {
	var req Request
	data := []byte("GET /s?q=hello+world%21&flag&empty= HTTP/1.1\r\n\r\n")
	require.NoError(t, ParseRequest(data, &req))

	params := ParseQueryParams(NoParams, &req)
	require.Equal(t, []Param{
		{Key: "q", Value: "hello world!"},
		{Key: "flag"},
		{Key: "empty", Value: ""},
	}, params)
}

func TestWantsKeepAlive(t *testing.T) {
	tests := []struct {
		proto      string
		connection string
		want       bool
	}{
		{"HTTP/1.1", "", true},
		{"HTTP/1.1", "keep-alive", true},
		{"HTTP/1.1", "close", false},
		{"HTTP/1.0", "", false},
		{"HTTP/1.0", "keep-alive", true},
		{"HTTP/1.0", "close", false},
	}

	for _, tt := range tests {
		req := Request{Proto: tt.proto, Connection: tt.connection}
		assert.Equal(t, tt.want, req.WantsKeepAlive(),
			"proto %s connection %q", tt.proto, tt.connection)
	}
}
