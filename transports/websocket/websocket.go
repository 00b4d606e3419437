package websocket

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"
	"tutorkit/core"
	"tutorkit/events/tutor"
	"tutorkit/handlers/emitter"
	"tutorkit/handlers/turn"
	"tutorkit/runner"
	"tutorkit/utils/audio"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// HeaderSessionID carries the session id on the upgrade request and response.
const HeaderSessionID = "X-Session-ID"

const writeWait = 10 * time.Second

// ClientMessage is a typed turn sent by the browser as a text frame.
type ClientMessage struct {
	Message string `json:"message"`
}

// Conn sends turn events to one client as JSON text frames. It implements
// emitter.Sink.
type Conn struct {
	conn *websocket.Conn
	mu   sync.Mutex // protects writes
}

func NewConn(conn *websocket.Conn) *Conn {
	return &Conn{conn: conn}
}

// Send writes one event in its wire form.
func (c *Conn) Send(ctx context.Context, ev core.IEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := tutor.Encode(ev)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// CloseNormal sends a close frame and closes the connection.
func (c *Conn) CloseNormal(reason string) error {
	c.mu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	c.mu.Unlock()
	return c.conn.Close()
}

func (c *Conn) Close() error {
	return c.conn.Close()
}

// Handler runs tutor turns over a WebSocket. Text frames carry
// {"message": "..."} (or plain text); binary frames carry a recording.
type Handler struct {
	sessions *runner.SessionManager
	upgrader websocket.Upgrader
	logger   *core.Logger
}

// NewHandler builds a handler. An empty allowedOrigins accepts any origin.
func NewHandler(sessions *runner.SessionManager, allowedOrigins []string, logger *core.Logger) *Handler {
	return &Handler{
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
		logger: logger.OrDefault().With(map[string]interface{}{"transport": "websocket"}),
	}
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}

// Register mounts GET /ws.
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/ws", h.Serve)
}

// Serve upgrades the request and runs turns until the client leaves or sends
// /quit. The session is taken from the X-Session-ID header or the "session"
// query parameter and survives a disconnect.
func (h *Handler) Serve(c echo.Context) error {
	id := c.Request().Header.Get(HeaderSessionID)
	if id == "" {
		id = c.QueryParam("session")
	}
	sess, _, err := h.sessions.GetOrCreate(id)
	if err != nil {
		if errors.Is(err, runner.ErrSessionLimit) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "too many active sessions")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "could not start a session")
	}

	header := http.Header{}
	header.Set(HeaderSessionID, sess.ID)
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), header)
	if err != nil {
		// Upgrade has already written the error response.
		h.logger.Warn("upgrade failed", "error", err)
		return nil
	}
	conn := NewConn(ws)
	detach := sess.Attach()
	defer detach()
	log := h.logger.With(map[string]interface{}{"session_id": sess.ID})
	log.Info("client connected")

	ctx := c.Request().Context()
	for {
		kind, data, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				log.Debug("read ended", "error", err)
			}
			conn.Close()
			log.Info("client disconnected")
			return nil
		}
		sess.Touch()

		var out turn.Outcome
		switch kind {
		case websocket.BinaryMessage:
			in := core.AudioInput{Data: data, Filename: "input.webm", DurationSec: audio.EstimateDurationSeconds(data)}
			out, err = sess.Controller.HandleAudio(ctx, in, conn, emitter.WithAudioEnd())
		case websocket.TextMessage:
			out, err = sess.Controller.Handle(ctx, parseText(data), conn, emitter.WithAudioEnd())
		default:
			continue
		}
		if err != nil {
			log.Debug("turn ended early", "error", err)
		}
		if out.State == turn.StateTerminated {
			h.sessions.Remove(context.Background(), sess.ID)
			conn.CloseNormal("session ended")
			log.Info("session ended by client")
			return nil
		}
	}
}

// parseText accepts {"message": "..."} and falls back to the raw frame.
func parseText(data []byte) string {
	var msg ClientMessage
	if err := sonic.Unmarshal(data, &msg); err == nil && msg.Message != "" {
		return msg.Message
	}
	return string(data)
}
