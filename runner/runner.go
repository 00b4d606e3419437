package runner

import (
	"context"
	"errors"
	"io"
	"tutorkit/core"
	"tutorkit/events/tutor"
	"tutorkit/handlers/emitter"
	"tutorkit/handlers/playback"
	"tutorkit/handlers/turn"
)

// MsgCaptureFailed is shown when a recoverable capture error skips a turn.
const MsgCaptureFailed = "Recording failed. Please try again."

// Input is what an InputSource produced for one turn: typed text or
// captured audio.
type Input struct {
	Text  string
	Audio *core.AudioInput
}

// InputSource yields user input. Next blocks until input is available and
// returns io.EOF when the source is exhausted.
type InputSource interface {
	Next(ctx context.Context) (Input, error)
}

// Runner drives a session's turns from an interactive input source until the
// user quits, the source ends, or ctx is cancelled.
type Runner struct {
	session *Session
	player  *playback.Player
	sink    emitter.Sink
	logger  *core.Logger
}

// NewRunner plays turn audio through out when it is non-nil. Events of every
// turn go to sink.
func NewRunner(session *Session, out playback.Output, sink emitter.Sink) *Runner {
	if sink == nil {
		sink = emitter.Discard
	}
	r := &Runner{
		session: session,
		sink:    sink,
		logger:  session.Logger.With(map[string]interface{}{"component": "runner"}),
	}
	if out != nil {
		r.player = playback.NewPlayer(session.Gate, out, session.Logger)
	}
	return r
}

// Run loops over turns. Capture only starts once the previous turn's audio
// has finished playing.
func (r *Runner) Run(ctx context.Context, input InputSource) error {
	defer r.stopPlayer(ctx)

	ctl := r.session.Controller
	for {
		if err := r.session.Gate.AcquireInput(ctx); err != nil {
			return err
		}

		in, err := input.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				r.logger.Info("input closed")
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var capture *core.InputCaptureError
			if !errors.As(err, &capture) {
				err = &core.InputCaptureError{Err: err}
			}
			if core.IsFatalToTurn(err) {
				r.logger.Error("input capture failed", "error", err)
				return err
			}
			r.logger.Warn("input capture failed, skipping turn", "error", err)
			r.sink.Send(ctx, &tutor.ErrorEvent{Message: MsgCaptureFailed})
			continue
		}

		var out turn.Outcome
		if in.Audio != nil {
			out, err = ctl.HandleAudio(ctx, *in.Audio, r.sink)
		} else {
			out, err = ctl.Handle(ctx, in.Text, r.sink)
		}
		r.session.Touch()
		if err != nil {
			// Failed turns are reported through the sink; the session goes on.
			r.logger.Debug("turn aborted", "turn_id", out.TurnID, "error", err)
			continue
		}
		if out.State == turn.StateTerminated {
			r.logger.Info("quit requested")
			return nil
		}
		if r.player != nil && len(out.Audio) > 0 {
			if err := r.player.Enqueue(ctx, out.Audio); err != nil {
				r.logger.Warn("audio not played", "error", err)
			}
		}
	}
}

// stopPlayer lets the last reply finish, unless ctx is already done.
func (r *Runner) stopPlayer(ctx context.Context) {
	if r.player == nil {
		return
	}
	closeCtx := context.Background()
	if ctx.Err() != nil {
		closeCtx = ctx
	}
	if err := r.player.Close(closeCtx); err != nil && !errors.Is(err, ctx.Err()) {
		r.logger.Warn("player close", "error", err)
	}
}
