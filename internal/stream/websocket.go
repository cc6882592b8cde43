package stream

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/himanishpuri/sonicres/pkg/logger"
)

const (
	DefaultReadLimit   = 10 << 20
	DefaultIdleTimeout = 60 * time.Second
)

type HandlerConfig struct {
	// AllowedOrigins lists acceptable Origin headers. "*" allows any; a
	// request without an Origin header is always allowed.
	AllowedOrigins []string
	ReadLimit      int64
	IdleTimeout    time.Duration
	Log            *logger.Logger
}

// Handler upgrades requests to WebSocket connections and feeds their frames
// to a Hub.
type Handler struct {
	hub         *Hub
	upgrader    websocket.Upgrader
	readLimit   int64
	idleTimeout time.Duration
	log         *logger.Logger
}

func NewHandler(hub *Hub, cfg HandlerConfig) *Handler {
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = DefaultReadLimit
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Log == nil {
		cfg.Log = logger.GetLogger().WithPrefix("[ws]")
	}
	h := &Handler{
		hub:         hub,
		readLimit:   cfg.ReadLimit,
		idleTimeout: cfg.IdleTimeout,
		log:         cfg.Log,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  32 * 1024,
		WriteBufferSize: 4 * 1024,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		// Same host is always fine.
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.log.Warnf("upgrade from %s failed: %v", r.RemoteAddr, err)
		return
	}
	conn := newWSConn(uuid.NewString(), ws)
	h.serve(conn)
}

// serve is the connection's read loop. It returns once the socket is done
// and always reports the end of the connection to the hub.
func (h *Handler) serve(conn *wsConn) {
	ws := conn.ws
	defer ws.Close()

	ws.SetReadLimit(h.readLimit)
	h.hub.OnOpen(conn)

	for {
		h.extendDeadline(conn)
		mt, data, err := ws.ReadMessage()
		if err != nil {
			initiated := !conn.IsOpen()
			conn.markClosed()
			if initiated || websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived) {
				h.hub.OnClose(conn)
			} else {
				h.hub.OnTransportError(conn, err)
			}
			return
		}

		switch mt {
		case websocket.BinaryMessage:
			h.hub.OnBinary(conn, data)
		case websocket.TextMessage:
			h.hub.OnText(conn, data)
		}
	}
}

// extendDeadline pushes the idle deadline out unless a close is already in
// flight, in which case the shorter close deadline must stand. Once the
// recording has been handed to a job the client has nothing left to send, so
// the connection waits without a deadline until the job closes it.
func (h *Handler) extendDeadline(conn *wsConn) {
	if !conn.IsOpen() {
		return
	}
	var deadline time.Time
	if !h.hub.awaitingOutcome(conn.ID()) {
		deadline = time.Now().Add(h.idleTimeout)
	}
	conn.ws.SetReadDeadline(deadline)
	if !conn.IsOpen() {
		conn.ws.SetReadDeadline(time.Now().Add(closeGrace))
	}
}
