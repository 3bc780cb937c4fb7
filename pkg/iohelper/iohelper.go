// Package iohelper provides bounded I/O helpers: limited reads of untrusted
// input and capped capture buffers for subprocess output.
package iohelper

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// ErrTooLarge is returned by ReadLimited when the input exceeds the limit.
var ErrTooLarge = errors.New("iohelper: input exceeds size limit")

// ReadBody reads from an io.Reader with a size limit, silently stopping at
// maxSize. If r is nil, returns empty slice and no error.
//
// Usage:
//
//	body, err := iohelper.ReadBody(resp.Body, defaults.MaxConfigBytes)
func ReadBody(r io.Reader, maxSize int64) ([]byte, error) {
	if r == nil {
		return []byte{}, nil
	}
	return io.ReadAll(io.LimitReader(r, maxSize))
}

// ReadLimited reads all of r, failing with ErrTooLarge instead of truncating
// when more than maxSize bytes are available.
func ReadLimited(r io.Reader, maxSize int64) ([]byte, error) {
	if r == nil {
		return []byte{}, nil
	}
	data, err := io.ReadAll(io.LimitReader(r, maxSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxSize {
		return nil, fmt.Errorf("%w (%d bytes)", ErrTooLarge, maxSize)
	}
	return data, nil
}

// ReadFileLimited opens path and reads it through ReadLimited.
func ReadFileLimited(path string, maxSize int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := ReadLimited(f, maxSize)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return data, nil
}

// CappedBuffer is an io.Writer that keeps the first Limit bytes written to
// it and discards the rest. Writes never fail, so a producer piping into it
// is never blocked or errored by the ceiling.
//
// It is safe for concurrent use.
type CappedBuffer struct {
	mu        sync.Mutex
	buf       []byte
	limit     int
	written   int64
	truncated bool
}

// NewCappedBuffer returns a buffer retaining at most limit bytes.
// A non-positive limit retains nothing.
func NewCappedBuffer(limit int) *CappedBuffer {
	if limit < 0 {
		limit = 0
	}
	return &CappedBuffer{limit: limit}
}

// Write implements io.Writer. It always reports len(p), nil.
func (b *CappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.written += int64(len(p))
	room := b.limit - len(b.buf)
	if room <= 0 {
		if len(p) > 0 {
			b.truncated = true
		}
		return len(p), nil
	}
	if len(p) > room {
		b.buf = append(b.buf, p[:room]...)
		b.truncated = true
		return len(p), nil
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}

// String returns the retained prefix.
func (b *CappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

// Len returns the number of retained bytes.
func (b *CappedBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}

// Truncated reports whether any byte was discarded.
func (b *CappedBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truncated
}

// Written returns the total number of bytes offered, retained or not.
func (b *CappedBuffer) Written() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.written
}
