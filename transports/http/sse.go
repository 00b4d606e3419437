package http

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"tutorkit/core"
	"tutorkit/events/tutor"

	"github.com/labstack/echo/v4"
)

// sseDataPrefix starts every event line of a turn stream.
const sseDataPrefix = "data: "

// sseSink writes each turn event as one `data: {json}` server-sent event.
type sseSink struct {
	mu  sync.Mutex
	res *echo.Response
}

func newSSESink(c echo.Context) *sseSink {
	h := c.Response().Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set(echo.HeaderCacheControl, "no-cache")
	h.Set(echo.HeaderConnection, "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)
	return &sseSink{res: c.Response()}
}

func (s *sseSink) Send(ctx context.Context, ev core.IEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := tutor.Encode(ev)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.res, "%s%s\n\n", sseDataPrefix, data); err != nil {
		return err
	}
	s.res.Flush()
	return nil
}
