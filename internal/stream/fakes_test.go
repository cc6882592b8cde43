package stream

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/himanishpuri/sonicres/internal/match"
	"github.com/himanishpuri/sonicres/pkg/logger"
	"github.com/himanishpuri/sonicres/pkg/models"
)

// fakeConn records everything the hub and jobs send.
type fakeConn struct {
	id      string
	sendErr error

	mu         sync.Mutex
	sent       []any
	closed     bool
	closeCodes []int
	done       chan struct{}
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id, done: make(chan struct{})}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, v)
	return nil
}

func (c *fakeConn) Close(code int, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeCodes = append(c.closeCodes, code)
	if !c.closed {
		c.closed = true
		close(c.done)
	}
	return nil
}

func (c *fakeConn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// drop simulates the peer going away.
func (c *fakeConn) drop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
}

func (c *fakeConn) messages() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]any(nil), c.sent...)
}

func (c *fakeConn) codes() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.closeCodes...)
}

func (c *fakeConn) waitClosed(t *testing.T) {
	t.Helper()
	select {
	case <-c.done:
	case <-time.After(5 * time.Second):
		t.Fatalf("connection %s was never closed", c.id)
	}
}

// outcomes returns the result and error messages sent, in order.
func (c *fakeConn) outcomes() []any {
	var out []any
	for _, m := range c.messages() {
		switch m.(type) {
		case ResultMessage, ErrorMessage:
			out = append(out, m)
		}
	}
	return out
}

// rawDecoder treats the recording as canonical PCM already.
type rawDecoder struct {
	mu    sync.Mutex
	calls int
}

func (d *rawDecoder) Decode(ctx context.Context, src, dst string, profile models.PCMProfile) (models.PCM, error) {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	data, err := os.ReadFile(src)
	if err != nil {
		return models.PCM{}, err
	}
	if len(data)%2 == 1 {
		data = data[:len(data)-1]
	}
	if len(data) == 0 {
		return models.PCM{}, errors.New("no samples")
	}
	return models.PCM{Profile: profile, Data: data}, nil
}

func (d *rawDecoder) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type funcDecoder func(ctx context.Context, src, dst string, profile models.PCMProfile) (models.PCM, error)

func (f funcDecoder) Decode(ctx context.Context, src, dst string, profile models.PCMProfile) (models.PCM, error) {
	return f(ctx, src, dst, profile)
}

type funcMatcher func(ctx context.Context, pcm models.PCM) (models.Identification, error)

func (f funcMatcher) Match(ctx context.Context, pcm models.PCM) (models.Identification, error) {
	return f(ctx, pcm)
}

var (
	_ match.Matcher = funcMatcher(nil)
	_ Conn          = (*fakeConn)(nil)
)

// blockingDecoder parks every call until release is closed.
type blockingDecoder struct {
	started chan struct{}
	release chan struct{}
}

func newBlockingDecoder() *blockingDecoder {
	return &blockingDecoder{started: make(chan struct{}, 16), release: make(chan struct{})}
}

func (d *blockingDecoder) Decode(ctx context.Context, src, dst string, profile models.PCMProfile) (models.PCM, error) {
	d.started <- struct{}{}
	select {
	case <-d.release:
	case <-ctx.Done():
		return models.PCM{}, ctx.Err()
	}
	return (&rawDecoder{}).Decode(ctx, src, dst, profile)
}

func assertDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		t.Errorf("temp dir not empty: %v", names)
	}
}

// eventually polls cond for up to two seconds.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func quietLogger() *logger.Logger { return logger.Discard() }

func readDirNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return names, err
}
