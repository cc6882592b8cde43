package stream

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/websocket"

	"github.com/himanishpuri/sonicres/internal/decode"
	"github.com/himanishpuri/sonicres/internal/match"
	"github.com/himanishpuri/sonicres/internal/observe"
	"github.com/himanishpuri/sonicres/pkg/logger"
)

// Signal is an out-of-band control event from the client.
type Signal int

const (
	// SignalDone marks the end of the audio stream.
	SignalDone Signal = iota
)

// Hub routes connection events to sessions and hands finished recordings to
// the worker pool. All On* methods for a single connection must be called
// from one goroutine, in arrival order.
type Hub struct {
	registry *Registry
	pool     *Pool

	decoder decode.Decoder
	matcher match.Matcher

	tempDir       string
	flushBytes    int
	workers       int
	queueSize     int
	decodeTimeout time.Duration
	matchTimeout  time.Duration

	metrics *observe.Metrics
	log     *logger.Logger

	closing atomic.Bool
}

type Option func(*Hub)

func WithTempDir(dir string) Option { return func(h *Hub) { h.tempDir = dir } }

func WithFlushBytes(n int) Option { return func(h *Hub) { h.flushBytes = n } }

func WithWorkers(n int) Option { return func(h *Hub) { h.workers = n } }

func WithQueueSize(n int) Option { return func(h *Hub) { h.queueSize = n } }

func WithDecodeTimeout(d time.Duration) Option { return func(h *Hub) { h.decodeTimeout = d } }

func WithMatchTimeout(d time.Duration) Option { return func(h *Hub) { h.matchTimeout = d } }

func WithMetrics(m *observe.Metrics) Option { return func(h *Hub) { h.metrics = m } }

func WithLogger(l *logger.Logger) Option { return func(h *Hub) { h.log = l } }

// NewHub starts the worker pool. Call Shutdown to stop it.
func NewHub(dec decode.Decoder, m match.Matcher, opts ...Option) *Hub {
	h := &Hub{
		registry:      NewRegistry(),
		decoder:       dec,
		matcher:       m,
		flushBytes:    DefaultFlushBytes,
		workers:       DefaultWorkers(),
		queueSize:     64,
		decodeTimeout: 30 * time.Second,
		matchTimeout:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.log == nil {
		h.log = logger.GetLogger().WithPrefix("[hub]")
	}
	h.pool = NewPool(h.workers, h.queueSize, h.log)
	return h
}

// SessionCount is the number of sessions still receiving audio.
func (h *Hub) SessionCount() int {
	return h.registry.Len()
}

// awaitingOutcome reports whether the connection has signalled done. Its
// outcome is then owned by a job or already on the way.
func (h *Hub) awaitingOutcome(id string) bool {
	return h.registry.IsRetired(id)
}

func (h *Hub) newSession(conn Conn) *Session {
	s := &Session{
		ID:   conn.ID(),
		conn: conn,
		log:  h.log.WithPrefix("[session " + conn.ID() + "]"),
	}
	s.buffer, s.bufErr = NewBuffer(h.tempDir, s.ID, h.flushBytes)
	if s.bufErr != nil {
		s.log.Errorf("session opened without a buffer: %v", s.bufErr)
	}
	return s
}

// register adds s and accounts for it. A session that loses the race is
// discarded.
func (h *Hub) register(s *Session) bool {
	if !h.registry.Add(s) {
		if s.buffer != nil {
			if err := s.buffer.Discard(); err != nil {
				s.log.Warnf("discarding session buffer: %v", err)
			}
		}
		return false
	}
	if h.metrics != nil {
		h.metrics.ActiveSessions.Add(context.Background(), 1)
	}
	return true
}

// OnOpen creates the connection's session and greets the client.
func (h *Hub) OnOpen(conn Conn) {
	if h.closing.Load() {
		conn.Close(websocket.CloseGoingAway, "server shutting down")
		return
	}
	s := h.newSession(conn)
	if !h.register(s) {
		h.log.Warnf("session %s already exists", conn.ID())
		return
	}
	s.log.Infof("connected")
	if err := conn.Send(ConnectedMessage{Type: TypeConnected, SessionID: s.ID, Message: readyMessage}); err != nil {
		s.log.Warnf("greeting not delivered: %v", err)
	}
}

// OnBinary appends an audio frame and acknowledges it.
func (h *Hub) OnBinary(conn Conn, data []byte) {
	s, ok := h.registry.Get(conn.ID())
	if !ok {
		if h.registry.IsRetired(conn.ID()) {
			h.log.Warnf("[session %s] %v: dropping %d byte frame", conn.ID(), ErrClosedBuffer, len(data))
			return
		}
		if h.closing.Load() {
			return
		}
		// Frame for a connection that was never opened through OnOpen.
		s = h.newSession(conn)
		if !h.register(s) {
			if s, ok = h.registry.Get(conn.ID()); !ok {
				return
			}
		}
	}
	if s.buffer == nil {
		s.log.Warnf("dropping %d byte frame: %v", len(data), s.bufErr)
		return
	}

	total, err := s.buffer.Append(data)
	if err != nil {
		s.log.Warnf("dropping %d byte frame: %v", len(data), err)
		return
	}
	if h.metrics != nil {
		h.metrics.RecordFrame(context.Background(), len(data))
	}
	s.log.Debugf("received %s (total %s)", humanize.Bytes(uint64(len(data))), humanize.Bytes(uint64(total)))

	if err := conn.Send(AckMessage{Type: TypeAck, Bytes: len(data), TotalBytes: total}); err != nil {
		s.log.Debugf("ack not delivered: %v", err)
	}
}

// OnText handles a JSON control message. Anything unrecognized is ignored.
func (h *Hub) OnText(conn Conn, data []byte) {
	msg, err := ParseControl(data)
	if err != nil {
		h.log.Warnf("[session %s] ignoring malformed control message: %v", conn.ID(), err)
		return
	}
	switch msg.Type {
	case TypeDone:
		h.OnControl(conn, SignalDone)
	case TypePing:
		if err := conn.Send(StatusMessage{Type: TypePong}); err != nil {
			h.log.Debugf("[session %s] pong not delivered: %v", conn.ID(), err)
		}
	default:
		h.log.Warnf("[session %s] ignoring unknown message type %q", conn.ID(), msg.Type)
	}
}

// OnControl handles the end-of-stream signal. Exactly one outcome follows
// for the session, either from a job or right here.
func (h *Hub) OnControl(conn Conn, sig Signal) {
	if sig != SignalDone {
		return
	}
	if h.registry.IsRetired(conn.ID()) {
		h.log.Warnf("[session %s] duplicate done signal ignored", conn.ID())
		return
	}
	s, ok := h.registry.Take(conn.ID())
	if !ok {
		h.log.Warnf("[session %s] done signal without a session", conn.ID())
		h.finishOrphan(conn, Failure(CodeEmptyInput, msgNoAudio, nil))
		return
	}
	s.Advance(StateFinalizing)

	if err := conn.Send(StatusMessage{Type: TypeProcessing, Message: processingMessage}); err != nil {
		s.log.Debugf("processing notice not delivered: %v", err)
	}

	if s.buffer == nil {
		h.finish(s, Failure(CodeResource, msgProcessing+"audio could not be recorded", s.bufErr))
		return
	}
	if _, err := s.buffer.Finalize(); err != nil {
		h.finish(s, Failure(CodeResource, msgProcessing+"audio could not be recorded", err))
		return
	}

	job := &Job{
		SessionID:     s.ID,
		Buffer:        s.buffer,
		Conn:          conn,
		Decoder:       h.decoder,
		Matcher:       h.matcher,
		TempDir:       h.tempDir,
		DecodeTimeout: h.decodeTimeout,
		MatchTimeout:  h.matchTimeout,
		Metrics:       h.metrics,
		Log:           s.log,
	}
	err := h.pool.Submit(func(ctx context.Context) {
		s.Advance(StateProcessing)
		defer h.end(s)
		job.Run(ctx)
	})
	if err != nil {
		if h.metrics != nil {
			h.metrics.JobsRejected.Add(context.Background(), 1)
		}
		msg := msgProcessing + "server is busy, try again later"
		if errors.Is(err, ErrPoolClosed) {
			msg = msgProcessing + "server is shutting down"
		}
		h.finish(s, Failure(CodeResource, msg, err))
		return
	}
	s.log.Infof("queued for processing")
}

// OnClose releases a session the client abandoned before it was handed to
// a job.
func (h *Hub) OnClose(conn Conn) {
	h.release(conn, nil)
}

// OnTransportError is OnClose for connections that ended abnormally.
func (h *Hub) OnTransportError(conn Conn, err error) {
	h.release(conn, err)
}

func (h *Hub) release(conn Conn, cause error) {
	s, ok := h.registry.Take(conn.ID())
	h.registry.Forget(conn.ID())
	if !ok {
		return
	}
	if cause != nil {
		s.log.Warnf("transport error: %v", cause)
	} else {
		s.log.Infof("disconnected before done")
	}
	if s.buffer != nil {
		if err := s.buffer.Discard(); err != nil {
			s.log.Warnf("discarding session buffer: %v", err)
		}
	}
	h.end(s)
}

// finish delivers an outcome that never reached a job and tears the
// session down.
func (h *Hub) finish(s *Session, out Outcome) {
	s.log.Warnf("session ended before processing: %v", out.Err())
	h.finishOrphan(s.conn, out)
	if s.buffer != nil {
		if err := s.buffer.Discard(); err != nil {
			s.log.Warnf("discarding session buffer: %v", err)
		}
	}
	h.end(s)
}

func (h *Hub) finishOrphan(conn Conn, out Outcome) {
	if conn.IsOpen() {
		if err := conn.Send(out.Message()); err != nil {
			h.log.Warnf("[session %s] %v", conn.ID(), newError(CodeDeliveryFailed, "outcome delivery failed", err))
		}
		conn.Close(websocket.CloseNormalClosure, "")
	}
	if h.metrics != nil {
		h.metrics.RecordOutcome(context.Background(), out.Code())
	}
}

func (h *Hub) end(s *Session) {
	s.endOnce.Do(func() {
		s.Advance(StateTerminated)
		if h.metrics != nil {
			h.metrics.ActiveSessions.Add(context.Background(), -1)
		}
	})
}

// Shutdown refuses new sessions, waits for queued jobs within ctx, then
// drops every session still receiving audio.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.closing.Store(true)
	err := h.pool.Shutdown(ctx)

	sessions := h.registry.Drain()
	for _, s := range sessions {
		if s.buffer != nil {
			if derr := s.buffer.Discard(); derr != nil {
				s.log.Warnf("discarding session buffer: %v", derr)
			}
		}
		s.conn.Close(websocket.CloseGoingAway, "server shutting down")
		h.end(s)
	}
	if len(sessions) > 0 {
		h.log.Infof("dropped %d open sessions", len(sessions))
	}
	return err
}
