package stream

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/himanishpuri/sonicres/internal/decode"
	"github.com/himanishpuri/sonicres/internal/match"
	"github.com/himanishpuri/sonicres/internal/observe"
	"github.com/himanishpuri/sonicres/pkg/logger"
)

func newTestHub(t *testing.T, dec decode.Decoder, opts ...Option) (*Hub, string) {
	t.Helper()
	dir := t.TempDir()
	if dec == nil {
		dec = &rawDecoder{}
	}
	opts = append([]Option{
		WithTempDir(dir),
		WithLogger(quietLogger()),
		WithDecodeTimeout(time.Second),
		WithMatchTimeout(time.Second),
	}, opts...)
	h := NewHub(dec, match.NewStatic(), opts...)
	t.Cleanup(func() { h.Shutdown(context.Background()) })
	return h, dir
}

func TestHubOpenGreets(t *testing.T) {
	h, _ := newTestHub(t, nil)
	c := newFakeConn("abc")
	h.OnOpen(c)

	msgs := c.messages()
	if len(msgs) != 1 {
		t.Fatalf("sent %v", msgs)
	}
	want := ConnectedMessage{Type: TypeConnected, SessionID: "abc", Message: "Ready to receive audio"}
	if msgs[0] != want {
		t.Errorf("greeting = %+v", msgs[0])
	}
	if h.SessionCount() != 1 {
		t.Errorf("SessionCount = %d", h.SessionCount())
	}
}

func TestHubAcksFrames(t *testing.T) {
	h, _ := newTestHub(t, nil)
	c := newFakeConn("abc")
	h.OnOpen(c)
	h.OnBinary(c, make([]byte, 100))
	h.OnBinary(c, make([]byte, 50))

	msgs := c.messages()
	if len(msgs) != 3 {
		t.Fatalf("sent %v", msgs)
	}
	if msgs[1] != (AckMessage{Type: TypeAck, Bytes: 100, TotalBytes: 100}) ||
		msgs[2] != (AckMessage{Type: TypeAck, Bytes: 50, TotalBytes: 150}) {
		t.Errorf("acks = %+v %+v", msgs[1], msgs[2])
	}
}

// Scenario A: frames, done, result, normal close.
func TestHubFullSession(t *testing.T) {
	h, dir := newTestHub(t, nil)
	c := newFakeConn("abc")
	h.OnOpen(c)
	h.OnBinary(c, make([]byte, 1000))
	h.OnBinary(c, make([]byte, 1000))
	h.OnText(c, []byte(`{"type":"done"}`))
	c.waitClosed(t)

	msgs := c.messages()
	if len(msgs) != 5 {
		t.Fatalf("sent %d messages: %v", len(msgs), msgs)
	}
	if msgs[3] != (StatusMessage{Type: TypeProcessing, Message: "Analyzing audio..."}) {
		t.Errorf("processing notice = %+v", msgs[3])
	}
	res, ok := msgs[4].(ResultMessage)
	if !ok || res.Data.TrackName != "Demo Song" {
		t.Errorf("outcome = %+v", msgs[4])
	}
	if codes := c.codes(); len(codes) != 1 || codes[0] != websocket.CloseNormalClosure {
		t.Errorf("close codes = %v", codes)
	}
	eventually(t, func() bool { return h.SessionCount() == 0 }, "session still registered")
	h.OnClose(c)
	assertDirEmpty(t, dir)
}

// Scenario B: done with nothing recorded.
func TestHubDoneWithoutAudio(t *testing.T) {
	h, dir := newTestHub(t, nil)
	c := newFakeConn("abc")
	h.OnOpen(c)
	h.OnText(c, []byte(`{"type":"done"}`))
	c.waitClosed(t)

	out := c.outcomes()
	if len(out) != 1 || out[0] != (ErrorMessage{Type: TypeError, Message: "No audio data received"}) {
		t.Errorf("outcomes = %v", out)
	}
	assertDirEmpty(t, dir)
}

// Scenario C: client leaves mid-stream.
func TestHubDisconnectDiscardsBuffer(t *testing.T) {
	dec := &rawDecoder{}
	h, dir := newTestHub(t, dec)
	c := newFakeConn("abc")
	h.OnOpen(c)
	h.OnBinary(c, make([]byte, 500))
	c.drop()
	h.OnTransportError(c, fmt.Errorf("unexpected EOF"))

	if h.SessionCount() != 0 {
		t.Errorf("SessionCount = %d", h.SessionCount())
	}
	if dec.count() != 0 {
		t.Error("abandoned session was processed")
	}
	assertDirEmpty(t, dir)

	// The connection is gone, so the id is free again.
	h.OnClose(c)
}

func TestHubDuplicateDone(t *testing.T) {
	h, _ := newTestHub(t, nil)
	c := newFakeConn("abc")
	h.OnOpen(c)
	h.OnBinary(c, []byte("xxxx"))
	h.OnText(c, []byte(`{"type":"done"}`))
	h.OnText(c, []byte(`{"type":"done"}`))
	c.waitClosed(t)
	time.Sleep(20 * time.Millisecond)

	if out := c.outcomes(); len(out) != 1 {
		t.Errorf("sent %d outcomes, want 1: %v", len(out), out)
	}
}

func TestHubFramesAfterDoneDropped(t *testing.T) {
	dec := newBlockingDecoder()
	h, _ := newTestHub(t, dec)
	c := newFakeConn("abc")
	h.OnOpen(c)
	h.OnBinary(c, []byte("xxxx"))
	h.OnText(c, []byte(`{"type":"done"}`))
	<-dec.started

	before := len(c.messages())
	h.OnBinary(c, []byte("late"))
	if len(c.messages()) != before {
		t.Errorf("late frame was acknowledged: %v", c.messages()[before:])
	}
	if h.SessionCount() != 0 {
		t.Error("late frame opened a new session")
	}
	close(dec.release)
	c.waitClosed(t)
}

func TestHubDoneForUnknownConnection(t *testing.T) {
	h, _ := newTestHub(t, nil)
	c := newFakeConn("ghost")
	h.OnControl(c, SignalDone)

	out := c.outcomes()
	if len(out) != 1 || out[0] != (ErrorMessage{Type: TypeError, Message: "No audio data received"}) {
		t.Errorf("outcomes = %v", out)
	}
	if codes := c.codes(); len(codes) != 1 || codes[0] != websocket.CloseNormalClosure {
		t.Errorf("close codes = %v", codes)
	}
}

func TestHubLazySession(t *testing.T) {
	h, _ := newTestHub(t, nil)
	c := newFakeConn("abc")
	h.OnBinary(c, []byte("xxxx"))

	msgs := c.messages()
	if len(msgs) != 1 || msgs[0] != (AckMessage{Type: TypeAck, Bytes: 4, TotalBytes: 4}) {
		t.Errorf("sent %v", msgs)
	}
	if h.SessionCount() != 1 {
		t.Errorf("SessionCount = %d", h.SessionCount())
	}
}

func TestHubTextMessages(t *testing.T) {
	h, _ := newTestHub(t, nil)
	c := newFakeConn("abc")
	h.OnOpen(c)
	h.OnText(c, []byte(`{"type":"ping"}`))
	h.OnText(c, []byte(`not json`))
	h.OnText(c, []byte(`{"type":"rewind"}`))
	h.OnText(c, []byte(`{}`))

	msgs := c.messages()
	if len(msgs) != 2 || msgs[1] != (StatusMessage{Type: TypePong}) {
		t.Errorf("sent %v", msgs)
	}
	if !c.IsOpen() {
		t.Error("bad control message closed the connection")
	}
}

func TestHubQueueFull(t *testing.T) {
	dec := newBlockingDecoder()
	h, _ := newTestHub(t, dec, WithWorkers(1), WithQueueSize(1))

	conns := make([]*fakeConn, 3)
	for i := range conns {
		conns[i] = newFakeConn(fmt.Sprintf("c%d", i))
		h.OnOpen(conns[i])
		h.OnBinary(conns[i], []byte("xxxx"))
	}
	h.OnControl(conns[0], SignalDone)
	<-dec.started
	h.OnControl(conns[1], SignalDone)
	h.OnControl(conns[2], SignalDone)

	conns[2].waitClosed(t)
	out := conns[2].outcomes()
	if len(out) != 1 {
		t.Fatalf("outcomes = %v", out)
	}
	em, ok := out[0].(ErrorMessage)
	if !ok || !strings.HasPrefix(em.Message, "Audio processing error: ") {
		t.Errorf("rejected outcome = %+v", out[0])
	}

	close(dec.release)
	conns[0].waitClosed(t)
	conns[1].waitClosed(t)
	for _, c := range conns[:2] {
		if out := c.outcomes(); len(out) != 1 {
			t.Errorf("%s got %d outcomes", c.id, len(out))
		}
	}
}

func TestHubShutdown(t *testing.T) {
	h, dir := newTestHub(t, nil)
	c := newFakeConn("abc")
	h.OnOpen(c)
	h.OnBinary(c, []byte("xxxx"))

	if err := h.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if codes := c.codes(); len(codes) != 1 || codes[0] != websocket.CloseGoingAway {
		t.Errorf("close codes = %v", codes)
	}
	assertDirEmpty(t, dir)

	late := newFakeConn("late")
	h.OnOpen(late)
	if codes := late.codes(); len(codes) != 1 || codes[0] != websocket.CloseGoingAway {
		t.Errorf("late connection close codes = %v", codes)
	}
	if h.SessionCount() != 0 {
		t.Errorf("SessionCount = %d", h.SessionCount())
	}
}

func TestHubConcurrentSessions(t *testing.T) {
	h, dir := newTestHub(t, nil, WithQueueSize(64))
	const n = 32

	conns := make([]*fakeConn, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		conns[i] = newFakeConn(fmt.Sprintf("c%02d", i))
		wg.Add(1)
		go func(c *fakeConn, i int) {
			defer wg.Done()
			h.OnOpen(c)
			for j := 0; j <= i%4; j++ {
				h.OnBinary(c, make([]byte, 256))
			}
			if i%5 == 0 {
				c.drop()
				h.OnClose(c)
				return
			}
			h.OnText(c, []byte(`{"type":"done"}`))
		}(conns[i], i)
	}
	wg.Wait()

	for i, c := range conns {
		c.waitClosed(t)
		want := 1
		if i%5 == 0 {
			want = 0
		}
		eventually(t, func() bool { return len(c.outcomes()) == want }, fmt.Sprintf("%s outcomes", c.id))
	}
	eventually(t, func() bool {
		entries, _ := readDirNames(dir)
		return len(entries) == 0
	}, "temp files left behind")
}

func TestHubMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatal(err)
	}

	h, _ := newTestHub(t, nil, WithMetrics(m))
	c := newFakeConn("abc")
	h.OnOpen(c)
	h.OnBinary(c, make([]byte, 64))
	h.OnText(c, []byte(`{"type":"done"}`))
	c.waitClosed(t)

	var rm metricdata.ResourceMetrics
	eventually(t, func() bool {
		reader.Collect(context.Background(), &rm)
		return sumValue(rm, "sonicres.outcomes") == 1 && sumValue(rm, "sonicres.active_sessions") == 0
	}, "outcome not recorded or session still counted active")
	if got := sumValue(rm, "sonicres.bytes.received"); got != 64 {
		t.Errorf("bytes received = %d", got)
	}
}

func sumValue(rm metricdata.ResourceMetrics, name string) int64 {
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != name {
				continue
			}
			if s, ok := met.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range s.DataPoints {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func TestHubRegisterLogsDiscardFailure(t *testing.T) {
	var logs bytes.Buffer
	h, _ := newTestHub(t, nil, WithLogger(logger.New(logger.Config{Level: logger.WARN, Output: &logs})))
	h.OnOpen(newFakeConn("dup"))

	loser := h.newSession(newFakeConn("dup"))
	path := loser.buffer.Path()
	// A non-empty directory where the recording was makes removal fail.
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(path, "x"), 0o755); err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(path)

	if h.register(loser) {
		t.Fatal("second session with the same id was registered")
	}
	if !strings.Contains(logs.String(), "discarding session buffer") {
		t.Errorf("discard failure not logged: %q", logs.String())
	}
	if h.SessionCount() != 1 {
		t.Errorf("sessions = %d, want 1", h.SessionCount())
	}
}
