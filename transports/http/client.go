package http

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"tutorkit/core"
	"tutorkit/events/tutor"
	"tutorkit/handlers/emitter"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
)

// maxEventBytes bounds one SSE line. Whole-buffer synthesis sends the reply
// audio as a single base64 chunk.
const maxEventBytes = 16 << 20

// Client talks to a running tutor server. It keeps the session id the server
// assigns, so successive turns share one conversation. A Client is not safe
// for concurrent turns.
type Client struct {
	BaseURL   string
	HTTP      *http.Client
	SessionID string
	logger    *core.Logger
}

func NewClient(baseURL string, logger *core.Logger) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 2 * time.Minute},
		logger:  logger.OrDefault().With(map[string]interface{}{"component": "http_client"}),
	}
}

// ChatStream posts message to /chat/stream and returns the turn's events as
// they arrive. The channel is closed after complete; a stream that breaks
// early ends with an error event instead. Callers drain the channel or
// cancel ctx.
func (c *Client) ChatStream(ctx context.Context, message string) (<-chan core.IEvent, error) {
	body, err := sonic.Marshal(ChatRequest{Message: message})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/chat/stream", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderAccept, "text/event-stream")
	if c.SessionID != "" {
		req.Header.Set(HeaderSessionID, c.SessionID)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tutor client: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("tutor client: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	if id := resp.Header.Get(HeaderSessionID); id != "" {
		c.SessionID = id
	}

	sink := emitter.NewChannelSink(16)
	go func() {
		defer resp.Body.Close()
		defer sink.Close()
		if err := readEvents(ctx, resp.Body, sink); err != nil {
			c.logger.Warn("turn stream broken", "session_id", c.SessionID, "error", err)
			sink.Send(ctx, &tutor.ErrorEvent{Message: err.Error()})
		}
	}()
	return sink.Events(), nil
}

// EndSession deletes the client's session on the server.
func (c *Client) EndSession(ctx context.Context) error {
	if c.SessionID == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.BaseURL+"/session", nil)
	if err != nil {
		return err
	}
	req.Header.Set(HeaderSessionID, c.SessionID)
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("tutor client: %w", err)
	}
	resp.Body.Close()
	c.SessionID = ""
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("tutor client: end session: %s", resp.Status)
	}
	return nil
}

// readEvents decodes `data:` lines into sink until the complete event.
func readEvents(ctx context.Context, r io.Reader, sink emitter.Sink) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxEventBytes)
	for sc.Scan() {
		payload, ok := strings.CutPrefix(sc.Text(), sseDataPrefix)
		if !ok {
			continue
		}
		ev, err := tutor.Decode([]byte(payload))
		if err != nil {
			return err
		}
		if err := sink.Send(ctx, ev); err != nil {
			return err
		}
		if ev.GetType() == tutor.TypeComplete {
			return nil
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return errors.New("stream ended before complete")
}
