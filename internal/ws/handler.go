// Package ws owns the websocket transport: the upgrade handshake, the
// per-connection read loop feeding the core dispatcher, and the write
// pump draining the session's outbound queue.
package ws

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"uwuchat/internal/core"
	"uwuchat/internal/protocol"
)

const writeTimeout = 5 * time.Second

// DefaultPingInterval is how often the server pings an otherwise quiet
// connection.
const DefaultPingInterval = 40 * time.Second

// DefaultMaxMessageBytes bounds one inbound websocket message.
const DefaultMaxMessageBytes = 250 << 10

// Options tunes the websocket transport.
type Options struct {
	// PingInterval is the keepalive ping cadence. A connection that
	// misses roughly one ping's worth of grace is considered gone.
	PingInterval time.Duration
	// MaxMessageBytes caps one inbound message. Raised to the largest
	// legal frame if set below it.
	MaxMessageBytes int64
}

// Handler owns websocket transport for the chat server.
type Handler struct {
	state    *core.State
	log      zerolog.Logger
	upgrader websocket.Upgrader

	pingInterval time.Duration
	maxMessage   int64
}

// NewHandler creates a websocket handler bound to the server core.
func NewHandler(state *core.State, log zerolog.Logger, opts Options) *Handler {
	if opts.PingInterval <= 0 {
		opts.PingInterval = DefaultPingInterval
	}
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = DefaultMaxMessageBytes
	}
	if opts.MaxMessageBytes < protocol.MaxFrameSize {
		opts.MaxMessageBytes = protocol.MaxFrameSize
	}
	return &Handler{
		state: state,
		log:   log.With().Str("component", "ws").Logger(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
		pingInterval: opts.PingInterval,
		maxMessage:   opts.MaxMessageBytes,
	}
}

// Register binds websocket routes on an Echo router.
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/ws", h.HandleWebSocket)
}

// HandleWebSocket validates the requested name, upgrades the request and
// serves the connection until disconnect. Bad names are refused before
// the upgrade so the client gets a plain 400.
func (h *Handler) HandleWebSocket(c echo.Context) error {
	name := c.QueryParam("name")
	if err := protocol.ValidateName(name); err != nil {
		metricUpgradeRejections.WithLabelValues("invalid_name").Inc()
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if h.state.Exists(name) {
		metricUpgradeRejections.WithLabelValues("duplicate_name").Inc()
		return echo.NewHTTPError(http.StatusBadRequest, "name already taken")
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return fmt.Errorf("upgrade websocket: %w", err)
	}
	h.serveConn(conn, name)
	return nil
}

func (h *Handler) serveConn(conn *websocket.Conn, name string) {
	defer conn.Close()

	sess, err := h.state.Open(name)
	if err != nil {
		// The pre-upgrade check passed but someone claimed the name in
		// between, or the server is shutting down.
		h.log.Warn().Err(err).Str("name", name).Msg("refusing connection after upgrade")
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()))
		return
	}
	defer h.state.Close(sess)
	defer func() {
		if r := recover(); r != nil {
			h.log.Error().Interface("panic", r).Str("user", name).Msg("connection handler panicked")
		}
	}()

	conn.SetReadLimit(h.maxMessage)
	pongWait := h.pingInterval * 10 / 9
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go h.writePump(conn, sess)

	for {
		// Text and binary payloads carry the same frame layout.
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return
		}
		h.state.HandleFrame(sess, frame)
	}
}

// writePump drains the session queue onto the wire and keeps the
// connection alive with pings. When the core drops the session, the pump
// closes the connection, which unblocks the read loop.
func (h *Handler) writePump(conn *websocket.Conn, sess *core.Session) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame := <-sess.Frames():
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-sess.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			_ = conn.Close()
			return
		}
	}
}
