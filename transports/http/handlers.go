package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"tutorkit/core"
	"tutorkit/events/tutor"
	"tutorkit/handlers/emitter"
	"tutorkit/handlers/memory"
	"tutorkit/handlers/turn"
	"tutorkit/runner"
	"tutorkit/utils/audio"

	"github.com/labstack/echo/v4"
)

// ChatRequest is the body of POST /chat and POST /chat/stream.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse summarizes a finished turn.
type ChatResponse struct {
	UserMessage string `json:"user_message,omitempty"`
	Response    string `json:"response"`
	Translation string `json:"translation,omitempty"`
	// Audio is the synthesized reply, base64 encoded.
	Audio   []byte `json:"audio,omitempty"`
	Command string `json:"command,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Chat runs one typed turn and returns the result as JSON.
// POST /chat
func (s *Server) Chat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	sess.Touch()

	events := &emitter.Collector{}
	out, err := sess.Controller.Handle(c.Request().Context(), req.Message, events)
	return s.respond(c, sess, out, err, events)
}

// ChatAudio transcribes an uploaded recording, runs the turn and returns JSON.
// POST /chat/audio (multipart: audio, input_duration)
func (s *Server) ChatAudio(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	in, err := s.readUpload(c)
	if err != nil {
		return err
	}
	sess.Touch()

	events := &emitter.Collector{}
	out, err := sess.Controller.HandleAudio(c.Request().Context(), in, events)
	return s.respond(c, sess, out, err, events)
}

// ChatStream runs one typed turn and streams its events over SSE.
// POST /chat/stream
func (s *Server) ChatStream(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	sess.Touch()

	out, err := sess.Controller.Handle(c.Request().Context(), req.Message, newSSESink(c), emitter.WithAudioEnd())
	s.afterStream(sess, out, err)
	return nil
}

// ChatAudioStream transcribes an uploaded recording and streams the turn
// events over SSE: text, audio_chunk*, audio_end, translation, complete.
// POST /chat/audio/stream (multipart: audio, input_duration)
func (s *Server) ChatAudioStream(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	in, err := s.readUpload(c)
	if err != nil {
		return err
	}
	sess.Touch()

	out, err := sess.Controller.HandleAudio(c.Request().Context(), in, newSSESink(c), emitter.WithAudioEnd())
	s.afterStream(sess, out, err)
	return nil
}

// respond renders a finished turn. Generation failures map to 502 and
// unusable recordings to 422; the session stays alive either way.
func (s *Server) respond(c echo.Context, sess *runner.Session, out turn.Outcome, err error, events *emitter.Collector) error {
	resp := ChatResponse{
		UserMessage: out.UserText,
		Response:    out.Response,
		Translation: out.Translation,
		Audio:       out.Audio,
	}
	if out.Command != turn.CommandNone {
		resp.Command = out.Command.String()
	}
	for _, ev := range events.Events() {
		switch e := ev.(type) {
		case *tutor.ErrorEvent:
			resp.Error = e.Message
		case *tutor.TextEvent:
			if resp.Response == "" {
				resp.Response = e.Response
			}
		}
	}

	if out.State == turn.StateTerminated {
		s.sessions.Remove(c.Request().Context(), sess.ID)
	}

	var genErr *core.GenerationError
	var transErr *core.TranscriptionError
	switch {
	case errors.As(err, &genErr):
		return c.JSON(http.StatusBadGateway, resp)
	case errors.As(err, &transErr):
		return c.JSON(http.StatusUnprocessableEntity, resp)
	case err != nil:
		s.logger.Error("turn failed", "session_id", sess.ID, "error", err)
		return c.JSON(http.StatusInternalServerError, resp)
	}
	return c.JSON(http.StatusOK, resp)
}

// afterStream ends terminated sessions once the stream is written. Errors
// have already reached the client as error events.
func (s *Server) afterStream(sess *runner.Session, out turn.Outcome, err error) {
	if err != nil {
		s.logger.Debug("streamed turn degraded", "session_id", sess.ID, "error", err)
	}
	if out.State == turn.StateTerminated {
		s.sessions.Remove(context.Background(), sess.ID)
	}
}

// readUpload reads the multipart "audio" field. Raw PCM and G.711 uploads,
// bare or in a WAV container, become 16-bit PCM WAV; compressed containers
// pass through. input_duration, when
// absent, is estimated from the payload.
func (s *Server) readUpload(c echo.Context) (core.AudioInput, error) {
	c.Request().Body = http.MaxBytesReader(c.Response(), c.Request().Body, s.config.MaxUploadBytes)
	fh, err := c.FormFile("audio")
	if err != nil {
		return core.AudioInput{}, echo.NewHTTPError(http.StatusBadRequest, "no audio file provided")
	}
	data, err := readFile(fh)
	if err != nil {
		return core.AudioInput{}, echo.NewHTTPError(http.StatusBadRequest, "could not read audio file").SetInternal(err)
	}
	if len(data) == 0 {
		return core.AudioInput{}, echo.NewHTTPError(http.StatusBadRequest, "empty audio file")
	}

	name := uploadFilename(fh)
	var in core.AudioInput
	switch format := audio.FormatFromFilename(name); format {
	case core.PCM, core.ULAW, core.ALAW:
		rate := 16000
		if format != core.PCM {
			rate = 8000
		}
		if v, err := strconv.Atoi(c.FormValue("sample_rate")); err == nil && v > 0 {
			rate = v
		}
		in, err = audio.ToTranscribable(core.AudioChunk{Data: data, SampleRate: rate, Channels: 1, Format: format})
		if err != nil {
			return core.AudioInput{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	default:
		in = core.AudioInput{Data: data, Filename: name, DurationSec: audio.EstimateDurationSeconds(data)}
		if strings.EqualFold(filepath.Ext(name), ".wav") {
			// G.711 WAVs from telephony clients are rewrapped as 16-bit PCM.
			if in, err = audio.ToTranscribable(core.AudioChunk{Data: data, Format: core.WAV}); err != nil {
				return core.AudioInput{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
			}
		}
	}

	if v := c.FormValue("input_duration"); v != "" {
		d, err := strconv.ParseFloat(v, 64)
		if err != nil || d < 0 {
			return core.AudioInput{}, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid input_duration %q", v))
		}
		in.DurationSec = d
	}
	return in, nil
}

func readFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

var extByContentType = map[string]string{
	"audio/webm":  ".webm",
	"audio/ogg":   ".ogg",
	"audio/wav":   ".wav",
	"audio/x-wav": ".wav",
	"audio/wave":  ".wav",
	"audio/mpeg":  ".mp3",
	"audio/mp4":   ".m4a",
	"audio/basic": ".ulaw",
}

// uploadFilename keeps the client's file name when it has an extension.
// Browser blobs arrive as "blob", so the part's content type decides.
func uploadFilename(fh *multipart.FileHeader) string {
	name := filepath.Base(fh.Filename)
	if filepath.Ext(name) != "" {
		return name
	}
	ct := strings.ToLower(strings.TrimSpace(strings.Split(fh.Header.Get(echo.HeaderContentType), ";")[0]))
	if ext, ok := extByContentType[ct]; ok {
		return "input" + ext
	}
	return "input.webm"
}

// ScenarioSummary is one entry of GET /scenarios.
type ScenarioSummary struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Difficulty string `json:"difficulty,omitempty"`
}

// ListScenarios lists the roleplay catalogue.
// GET /scenarios
func (s *Server) ListScenarios(c echo.Context) error {
	out := make([]ScenarioSummary, 0, len(s.scenarios))
	for _, id := range s.scenarios.IDs() {
		sc := s.scenarios[id]
		out = append(out, ScenarioSummary{ID: id, Name: sc.Name, Difficulty: sc.Difficulty})
	}
	return c.JSON(http.StatusOK, out)
}

// SelectScenarioRequest is the body of POST /scenario.
type SelectScenarioRequest struct {
	ID string `json:"id"`
}

// SelectScenario sets the session's roleplay scenario.
// POST /scenario
func (s *Server) SelectScenario(c echo.Context) error {
	var req SelectScenarioRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	sess.Touch()

	err = memory.SelectScenario(sess.Controller.Memory(), s.scenarios, req.ID, sess.Logger)
	switch {
	case errors.Is(err, memory.ErrUnknownScenario):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, memory.ErrScenarioAlreadySet):
		return echo.NewHTTPError(http.StatusConflict, "a scenario is already active; clear the conversation first")
	case err != nil:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"scenario": req.ID})
}

// Clear resets the session history through the /clear command.
// POST /clear
func (s *Server) Clear(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	sess.Touch()
	if _, err := sess.Controller.Handle(c.Request().Context(), "/clear", nil); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "cleared"})
}

// History returns the stored exchanges, oldest first.
// GET /history
func (s *Server) History(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sess.Controller.Memory().History())
}

// EndSession closes the caller's session.
// DELETE /session
func (s *Server) EndSession(c echo.Context) error {
	id := c.Request().Header.Get(HeaderSessionID)
	if id == "" {
		if ck, err := c.Cookie(sessionCookie); err == nil {
			id = ck.Value
		}
	}
	if id == "" || !s.sessions.Remove(c.Request().Context(), id) {
		return echo.NewHTTPError(http.StatusNotFound, "no such session")
	}
	return c.NoContent(http.StatusNoContent)
}

// TranslateWordsRequest is the body of POST /translate/words.
type TranslateWordsRequest struct {
	Sentence string `json:"sentence"`
	Target   string `json:"target,omitempty"`
}

// TranslateWords returns a per-word gloss of a sentence.
// POST /translate/words
func (s *Server) TranslateWords(c echo.Context) error {
	if s.words == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "word translation is not configured")
	}
	var req TranslateWordsRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if req.Target == "" {
		req.Target = turn.DefaultConfig().TargetLanguage
	}
	words, err := s.words.TranslateWords(c.Request().Context(), req.Sentence, req.Target)
	if err != nil {
		s.logger.Warn("word translation failed", "error", err)
		return echo.NewHTTPError(http.StatusBadGateway, "translation failed")
	}
	return c.JSON(http.StatusOK, words)
}

// RecentLatency returns the latest latency records.
// GET /latency?limit=N
func (s *Server) RecentLatency(c echo.Context) error {
	if s.latency == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "latency store is not configured")
	}
	limit := 50
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}
	records, err := s.latency.Recent(c.Request().Context(), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, records)
}
