// Package http serves the tutor over HTTP: JSON turns, SSE turn streams and
// session housekeeping for the browser frontend.
package http

import (
	"context"
	"errors"
	"net/http"
	"time"
	"tutorkit/core"
	"tutorkit/handlers/latency"
	"tutorkit/handlers/memory"
	"tutorkit/runner"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const (
	// HeaderSessionID selects the conversation a request belongs to.
	HeaderSessionID = "X-Session-ID"
	sessionCookie   = "tutorkit_session"

	defaultMaxUploadBytes = 25 << 20
)

// WordTranslator translates a sentence word by word.
type WordTranslator interface {
	TranslateWords(ctx context.Context, sentence, targetLanguage string) (map[string]string, error)
}

// LatencyStore returns the most recent latency records.
type LatencyStore interface {
	Recent(ctx context.Context, limit int) ([]latency.Record, error)
}

// Config configures the HTTP server.
type Config struct {
	AllowedOrigins []string
	// MaxUploadBytes caps audio uploads. Default: 25 MiB, the Whisper API limit.
	MaxUploadBytes int64
}

// Option configures optional server features.
type Option func(*Server)

// WithWordTranslator enables POST /translate/words.
func WithWordTranslator(t WordTranslator) Option {
	return func(s *Server) { s.words = t }
}

// WithLatencyStore enables GET /latency.
func WithLatencyStore(store LatencyStore) Option {
	return func(s *Server) { s.latency = store }
}

// Server is the HTTP front of the tutor.
type Server struct {
	echo      *echo.Echo
	sessions  *runner.SessionManager
	scenarios memory.Scenarios
	words     WordTranslator
	latency   LatencyStore
	config    Config
	logger    *core.Logger
}

// NewServer creates the server and registers its routes.
func NewServer(sessions *runner.SessionManager, scenarios memory.Scenarios, config Config, logger *core.Logger, opts ...Option) *Server {
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = defaultMaxUploadBytes
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = sonicSerializer{}

	s := &Server{
		echo:      e,
		sessions:  sessions,
		scenarios: scenarios,
		config:    config,
		logger:    logger.OrDefault().With(map[string]interface{}{"component": "http"}),
	}
	for _, opt := range opts {
		opt(s)
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Debug("request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency_ms", v.Latency.Milliseconds())
			return nil
		},
	}))
	if len(config.AllowedOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:     config.AllowedOrigins,
			AllowHeaders:     []string{echo.HeaderContentType, HeaderSessionID},
			ExposeHeaders:    []string{HeaderSessionID},
			AllowCredentials: true,
		}))
	}

	s.RegisterRoutes(e)
	return s
}

// RegisterRoutes registers the tutor routes.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.POST("/chat", s.Chat)
	e.POST("/chat/stream", s.ChatStream)
	e.POST("/chat/audio", s.ChatAudio)
	e.POST("/chat/audio/stream", s.ChatAudioStream)

	e.GET("/scenarios", s.ListScenarios)
	e.POST("/scenario", s.SelectScenario)
	e.POST("/clear", s.Clear)
	e.GET("/history", s.History)
	e.DELETE("/session", s.EndSession)

	e.POST("/translate/words", s.TranslateWords)
	e.GET("/latency", s.RecentLatency)

	e.GET("/healthz", s.Health)
}

// Echo exposes the router so other transports can mount routes on it.
func (s *Server) Echo() *echo.Echo { return s.echo }

// Start starts the HTTP server.
func (s *Server) Start(addr string) error {
	s.logger.Info("listening", "addr", addr)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Health returns health status.
func (s *Server) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":   "healthy",
		"sessions": s.sessions.Len(),
		"time":     time.Now().UTC().Format(time.RFC3339),
	})
}

// session resolves the caller's session from the header or cookie, creating
// one when neither names a live session. The id is echoed in the response.
func (s *Server) session(c echo.Context) (*runner.Session, error) {
	id := c.Request().Header.Get(HeaderSessionID)
	if id == "" {
		if ck, err := c.Cookie(sessionCookie); err == nil {
			id = ck.Value
		}
	}
	sess, created, err := s.sessions.GetOrCreate(id)
	if err != nil {
		if errors.Is(err, runner.ErrSessionLimit) {
			return nil, echo.NewHTTPError(http.StatusServiceUnavailable, "too many active sessions")
		}
		s.logger.Error("failed to create session", "error", err)
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "could not start a session")
	}
	c.Response().Header().Set(HeaderSessionID, sess.ID)
	if created {
		c.SetCookie(&http.Cookie{
			Name:     sessionCookie,
			Value:    sess.ID,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return sess, nil
}
