package http

import "strconv"

// Buffer is a growable byte buffer. Every connection slot owns exactly one,
// allocated when the slab is built and reset (never freed) between requests
// on the same connection.
type Buffer struct {
	b []byte
}

// NewBuffer returns a buffer with the given initial capacity.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{b: make([]byte, 0, capacity)}
}

// Reset truncates the buffer, keeping its capacity.
func (b *Buffer) Reset() {
	b.b = b.b[:0]
}

// Write appends p. It implements io.Writer and never fails.
func (b *Buffer) Write(p []byte) (int, error) {
	b.b = append(b.b, p...)
	return len(p), nil
}

// WriteString appends s.
func (b *Buffer) WriteString(s string) (int, error) {
	b.b = append(b.b, s...)
	return len(s), nil
}

// AppendInt appends the decimal representation of n.
func (b *Buffer) AppendInt(n int) {
	b.b = strconv.AppendInt(b.b, int64(n), 10)
}

// Bytes returns the accumulated bytes. The slice is only valid until the
// next mutation.
func (b *Buffer) Bytes() []byte {
	return b.b
}

// Len returns the number of accumulated bytes.
func (b *Buffer) Len() int {
	return len(b.b)
}
