package turn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"tutorkit/core"
	"tutorkit/handlers/emitter"
	"tutorkit/handlers/latency"
	"tutorkit/handlers/memory"
	"tutorkit/utils/audio"
	"tutorkit/utils/text"

	"github.com/google/uuid"
)

// User-facing notices sent as error events.
const (
	MsgNotHeard         = "Sorry, I couldn't understand the audio. Please try again."
	MsgGenerationFailed = "The tutor could not answer right now. Please try again."
)

// Ports are the external services a Controller drives. Only Responder is
// required.
type Ports struct {
	Responder   core.Responder
	Transcriber core.Transcriber
	Translator  core.Translator
	Synthesis   core.Synthesis
}

// Outcome summarises one call to Handle or HandleAudio.
type Outcome struct {
	TurnID      string
	State       State
	Command     Command
	UserText    string
	Response    string
	Translation string
	Audio       []byte // all audio of the turn, concatenated
	Latency     latency.Record
	// Degraded lists the non-fatal failures of the turn (translation, synthesis).
	Degraded []error
}

// Controller runs the turns of one session, one at a time. It owns the
// session's memory for its lifetime.
type Controller struct {
	cfg       Config
	ports     Ports
	memory    *memory.State
	recorder  latency.Recorder
	logger    *core.Logger
	sessionID string

	turnMu sync.Mutex // held for a whole turn

	stateMu sync.Mutex
	state   State
}

// NewController validates the ports and returns a controller in
// StateAwaitingInput. A nil recorder discards latency records.
func NewController(sessionID string, cfg Config, mem *memory.State, ports Ports, recorder latency.Recorder, logger *core.Logger) (*Controller, error) {
	if ports.Responder == nil {
		return nil, errors.New("turn: a responder is required")
	}
	if mem == nil {
		return nil, errors.New("turn: memory state is required")
	}
	if recorder == nil {
		recorder = latency.Nop{}
	}
	return &Controller{
		cfg:       cfg.withDefaults(),
		ports:     ports,
		memory:    mem,
		recorder:  recorder,
		logger:    logger.OrDefault().With(map[string]interface{}{"session_id": sessionID}),
		sessionID: sessionID,
		state:     StateAwaitingInput,
	}, nil
}

func (c *Controller) Config() Config { return c.cfg }

func (c *Controller) Memory() *memory.State { return c.memory }

// CanTranscribe reports whether HandleAudio is usable.
func (c *Controller) CanTranscribe() bool { return c.ports.Transcriber != nil }

// State returns the current step of the state machine.
func (c *Controller) State() State {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
}

// Handle runs one turn for typed input and streams its events to sink.
//
// The returned error is non-nil only when the turn was aborted: a
// *core.GenerationError leaves memory untouched and produces no audio.
// Translation and synthesis failures are reported in Outcome.Degraded.
func (c *Controller) Handle(ctx context.Context, raw string, sink emitter.Sink, opts ...emitter.Option) (Outcome, error) {
	c.turnMu.Lock()
	defer c.turnMu.Unlock()

	em := emitter.New(sinkOrDiscard(sink), opts...)
	return c.run(ctx, uuid.NewString(), raw, em, latency.NewStopwatch(), 0)
}

// HandleAudio transcribes in and runs the transcript as a turn. A failed or
// empty transcription skips the turn with an error event and no side effects.
func (c *Controller) HandleAudio(ctx context.Context, in core.AudioInput, sink emitter.Sink, opts ...emitter.Option) (Outcome, error) {
	c.turnMu.Lock()
	defer c.turnMu.Unlock()

	em := emitter.New(sinkOrDiscard(sink), opts...)
	sw := latency.NewStopwatch()
	sw.Add(latency.StageCapture, in.CaptureTime)
	turnID := uuid.NewString()
	log := c.logger.With(map[string]interface{}{"turn_id": turnID})

	if c.ports.Transcriber == nil {
		return c.skip(ctx, em, turnID, &core.TranscriptionError{Err: errors.New("no transcriber configured")}, sw, in.DurationSec, log)
	}

	stop := sw.Start(latency.StageTranscription)
	transcript, err := c.ports.Transcriber.Transcribe(ctx, in)
	stop()
	if err == nil && strings.TrimSpace(transcript) == "" {
		err = errors.New("empty transcript")
	}
	if err != nil {
		var te *core.TranscriptionError
		if !errors.As(err, &te) {
			err = &core.TranscriptionError{Err: err}
		}
		return c.skip(ctx, em, turnID, err, sw, in.DurationSec, log)
	}
	log.Info("transcribed", "text", transcript, "ms", sw.Stage(latency.StageTranscription).Milliseconds())
	return c.run(ctx, turnID, transcript, em, sw, in.DurationSec)
}

func (c *Controller) skip(ctx context.Context, em *emitter.Emitter, turnID string, err error, sw *latency.Stopwatch, inputSec float64, log *core.Logger) (Outcome, error) {
	log.Warn("turn skipped", "error", err)
	c.notify(em.Error(ctx, MsgNotHeard), log)
	c.notify(em.Complete(ctx), log)
	c.setState(StateAwaitingInput)
	return Outcome{TurnID: turnID, State: StateResume, Latency: c.record(ctx, sw, inputSec, 0)}, err
}

// record writes the turn's latency row. Turns that end early keep the stages
// they reached and zero for the rest.
func (c *Controller) record(ctx context.Context, sw *latency.Stopwatch, inputSec, outputSec float64) latency.Record {
	rec := sw.Record(inputSec, outputSec)
	rec.SessionID = c.sessionID
	c.recorder.Record(ctx, rec)
	return rec
}

func (c *Controller) run(ctx context.Context, turnID, raw string, em *emitter.Emitter, sw *latency.Stopwatch, inputSec float64) (Outcome, error) {
	out := Outcome{TurnID: turnID, UserText: raw}
	log := c.logger.With(map[string]interface{}{"turn_id": out.TurnID})

	c.setState(StateClassifying)
	out.Command = Classify(raw)
	switch {
	case out.Command == CommandQuit:
		c.notify(em.Complete(ctx), log)
		c.setState(StateTerminated)
		out.State = StateTerminated
		return out, nil
	case out.Command == CommandClear:
		c.memory.Clear()
		log.Info("history cleared")
		c.notify(em.Complete(ctx), log)
		return c.resume(out), nil
	case out.Command == CommandHelp:
		out.Response = c.cfg.HelpText
		c.notify(em.Text(ctx, raw, c.cfg.HelpText), log)
		c.notify(em.Complete(ctx), log)
		return c.resume(out), nil
	case strings.TrimSpace(raw) == "":
		c.notify(em.Complete(ctx), log)
		return c.resume(out), nil
	}

	c.setState(StateProcessing)
	defer c.setState(StateAwaitingInput)
	out.State = StateAwaitingInput

	prompt := c.memory.BuildPrompt(raw)
	stop := sw.Start(latency.StageGeneration)
	reply, err := c.ports.Responder.Respond(ctx, prompt)
	stop()
	if err != nil {
		var ge *core.GenerationError
		if !errors.As(err, &ge) {
			err = &core.GenerationError{Err: err}
		}
		log.Error("generation failed", "error", err)
		c.notify(em.Error(ctx, MsgGenerationFailed), log)
		c.notify(em.Complete(ctx), log)
		out.Latency = c.record(ctx, sw, inputSec, 0)
		return out, err
	}

	out.Response = text.Clean(reply)
	c.notify(em.Text(ctx, raw, out.Response), log)

	if out.Response != "" {
		if c.cfg.TranslateFirst {
			c.translate(ctx, &out, sw, log)
			c.synthesize(ctx, &out, em, sw, log)
		} else {
			c.synthesize(ctx, &out, em, sw, log)
			c.translate(ctx, &out, sw, log)
		}
		if out.Translation != "" {
			c.notify(em.Translation(ctx, out.Translation), log)
		}
	}

	c.memory.AddExchange(raw, out.Response)
	c.notify(em.Complete(ctx), log)

	out.Latency = c.record(ctx, sw, inputSec, audio.EstimateDurationSeconds(out.Audio))
	log.Info("turn complete",
		"generation_ms", out.Latency.GenerationMs,
		"synthesis_ms", out.Latency.SynthesisMs,
		"audio_chunks", em.Chunks(),
		"total_ms", out.Latency.TotalMs,
		"history", c.memory.Len(),
	)
	return out, nil
}

func (c *Controller) resume(out Outcome) Outcome {
	c.setState(StateAwaitingInput)
	out.State = StateResume
	return out
}

func (c *Controller) translate(ctx context.Context, out *Outcome, sw *latency.Stopwatch, log *core.Logger) {
	if c.ports.Translator == nil {
		return
	}
	stop := sw.Start(latency.StageTranslation)
	translated, err := c.ports.Translator.Translate(ctx, out.Response, c.cfg.TargetLanguage)
	stop()
	if err == nil && strings.TrimSpace(translated) == "" {
		err = errors.New("empty translation")
	}
	if err != nil {
		var te *core.TranslationError
		if !errors.As(err, &te) {
			err = &core.TranslationError{Err: err}
		}
		log.Warn("translation omitted", "error", err)
		out.Degraded = append(out.Degraded, err)
		return
	}
	out.Translation = text.Clean(translated)
}

// synthesize prefers the streaming shape and emits each chunk as it arrives.
// A failed stream is not retried with the blocking shape.
func (c *Controller) synthesize(ctx context.Context, out *Outcome, em *emitter.Emitter, sw *latency.Stopwatch, log *core.Logger) {
	syn := c.ports.Synthesis
	if !syn.Available() {
		return
	}
	defer sw.Start(latency.StageSynthesis)()

	var err error
	if syn.Streaming != nil {
		err = c.stream(ctx, out, em, log)
	} else {
		var buf []byte
		buf, err = syn.Blocking.Synthesize(ctx, out.Response)
		if err == nil && len(buf) == 0 {
			err = errors.New("no audio returned")
		}
		if err == nil {
			out.Audio = buf
			c.notify(em.AudioChunk(ctx, buf), log)
		}
	}
	if err != nil {
		var se *core.SynthesisError
		if !errors.As(err, &se) {
			err = &core.SynthesisError{Err: err}
		}
		log.Warn("audio omitted", "error", err)
		out.Degraded = append(out.Degraded, err)
	}
	c.notify(em.AudioDone(ctx), log)
}

func (c *Controller) stream(ctx context.Context, out *Outcome, em *emitter.Emitter, log *core.Logger) error {
	chunks, errs := c.ports.Synthesis.Streaming.SynthesizeStream(ctx, out.Response)
	for chunks != nil {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			out.Audio = append(out.Audio, chunk...)
			c.notify(em.AudioChunk(ctx, chunk), log)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if errs == nil {
		return nil
	}
	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// notify logs a failed event delivery. The turn carries on regardless.
func (c *Controller) notify(err error, log *core.Logger) {
	if err != nil {
		log.Debug("event not delivered", "error", err)
	}
}

func sinkOrDiscard(s emitter.Sink) emitter.Sink {
	if s == nil {
		return emitter.Discard
	}
	return s
}

// String describes the controller for logs.
func (c *Controller) String() string {
	return fmt.Sprintf("turn.Controller{session=%s state=%s history=%d}", c.sessionID, c.State(), c.memory.Len())
}
