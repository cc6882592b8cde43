package stream

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
)

// DefaultFlushBytes is how much unflushed data a buffer tolerates before it
// pushes it to the file.
const DefaultFlushBytes = 50000

// Artifact is a finalized recording on disk.
type Artifact struct {
	Path string
	Size int64
}

// Buffer accumulates one session's audio in a temp file. All methods are
// safe for concurrent use; Append and Finalize exclude each other.
type Buffer struct {
	mu         sync.Mutex
	file       *os.File
	w          *bufio.Writer
	path       string
	size       int64
	unflushed  int
	flushEvery int

	closed      bool
	finalized   bool
	finalizeErr error
	discarded   bool
}

// NewBuffer creates the backing file audio-stream-<sessionID>-*.raw in dir.
func NewBuffer(dir, sessionID string, flushEvery int) (*Buffer, error) {
	if flushEvery <= 0 {
		flushEvery = DefaultFlushBytes
	}
	f, err := os.CreateTemp(dir, "audio-stream-"+sessionID+"-*.raw")
	if err != nil {
		return nil, newError(CodeResource, "failed to create session buffer", err)
	}
	return &Buffer{
		file:       f,
		w:          bufio.NewWriterSize(f, 64*1024),
		path:       f.Name(),
		flushEvery: flushEvery,
	}, nil
}

// Append writes p and returns the cumulative byte count.
func (b *Buffer) Append(p []byte) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return b.size, ErrClosedBuffer
	}
	n, err := b.w.Write(p)
	b.size += int64(n)
	b.unflushed += n
	if err != nil {
		return b.size, newError(CodeResource, "failed to write session buffer", err)
	}
	if b.unflushed >= b.flushEvery {
		if err := b.w.Flush(); err != nil {
			return b.size, newError(CodeResource, "failed to flush session buffer", err)
		}
		b.unflushed = 0
	}
	return b.size, nil
}

// Finalize flushes, syncs and closes the file. Later calls return the same
// result without touching the file again.
func (b *Buffer) Finalize() (Artifact, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.discarded {
		return Artifact{}, ErrClosedBuffer
	}
	if b.finalized {
		return Artifact{Path: b.path, Size: b.size}, b.finalizeErr
	}
	b.finalized = true
	b.closed = true

	err := b.w.Flush()
	if err == nil {
		err = b.file.Sync()
	}
	if cerr := b.file.Close(); err == nil {
		err = cerr
	}
	b.file = nil
	if err != nil {
		b.finalizeErr = newError(CodeResource, "failed to finalize session buffer", err)
	}
	return Artifact{Path: b.path, Size: b.size}, b.finalizeErr
}

// Discard closes the file if still open and removes it. It may be called any
// number of times, before or after Finalize.
func (b *Buffer) Discard() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.discarded {
		return nil
	}
	b.discarded = true
	b.closed = true

	var errs []error
	if b.file != nil {
		if err := b.file.Close(); err != nil {
			errs = append(errs, err)
		}
		b.file = nil
	}
	if err := os.Remove(b.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("discard %s: %w", b.path, err)
	}
	return nil
}

func (b *Buffer) Size() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

func (b *Buffer) Path() string {
	return b.path
}
