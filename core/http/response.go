package http

import (
	"strconv"
	"time"
)

// Header is one response header line.
type Header struct {
	Key   string
	Value string
}

// Response accumulates a handler's output for one request. The body goes
// through the connection's pre-allocated buffer; the head is serialized
// separately once the handler returns.
type Response struct {
	Mime    string
	Headers []Header

	buf *Buffer
}

// NewResponse wraps the connection's buffer for one request. The buffer
// must already be reset.
func NewResponse(buf *Buffer) Response {
	return Response{buf: buf}
}

// Buffer exposes the body buffer for handlers that build output
// incrementally.
func (r *Response) Buffer() *Buffer {
	return r.buf
}

// Write appends body bytes. Implements io.Writer.
func (r *Response) Write(p []byte) (int, error) {
	return r.buf.Write(p)
}

// WriteString appends a body string.
func (r *Response) WriteString(s string) (int, error) {
	return r.buf.WriteString(s)
}

// AddHeader adds a header line to the response head.
func (r *Response) AddHeader(key, value string) {
	r.Headers = append(r.Headers, Header{Key: key, Value: value})
}

const dateFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

// AppendResponseHead serializes the status line and headers into dst and
// returns the extended slice. The body (r.Buffer) is written separately so
// the head never copies it.
func AppendResponseHead(dst []byte, status Status, r *Response, keepAlive bool) []byte {
	dst = append(dst, "HTTP/1.1 "...)
	dst = strconv.AppendInt(dst, int64(status), 10)
	dst = append(dst, ' ')
	dst = append(dst, StatusAsString(status)...)
	dst = append(dst, "\r\n"...)

	mime := r.Mime
	if mime == "" {
		mime = "text/plain"
	}
	dst = append(dst, "Content-Type: "...)
	dst = append(dst, mime...)
	dst = append(dst, "\r\nContent-Length: "...)
	dst = strconv.AppendInt(dst, int64(r.buf.Len()), 10)
	dst = append(dst, "\r\nConnection: "...)
	if keepAlive {
		dst = append(dst, "keep-alive"...)
	} else {
		dst = append(dst, "close"...)
	}
	dst = append(dst, "\r\nDate: "...)
	dst = append(dst, time.Now().UTC().Format(dateFormat)...)
	dst = append(dst, "\r\nServer: lwan\r\n"...)

	for _, h := range r.Headers {
		dst = append(dst, h.Key...)
		dst = append(dst, ": "...)
		dst = append(dst, h.Value...)
		dst = append(dst, "\r\n"...)
	}

	return append(dst, "\r\n"...)
}
