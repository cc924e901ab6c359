package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/atotto/clipboard"
	"github.com/gen2brain/beeep"
)

// ============================================================================
// Recording Pipeline - Action Execution
// ============================================================================
// The pipeline is the only component that performs side effects: audio
// capture, the transcription upload, clipboard writes, and cancel feedback.
// The daemon loop calls Apply with the action the processor returned;
// observer-facing broadcasts go through the emit callback.
// ============================================================================

// PipelineConfig holds the effect-side settings.
type PipelineConfig struct {
	// MinimumKeyTime feeds the stop-time Decide check. Updated on
	// reconfigure via SetMinimumKeyTime.
	MinimumKeyTime time.Duration

	// CopyToClipboard places successful transcripts on the clipboard.
	CopyToClipboard bool

	// CancelSound plays an audible beep on ActionCancel.
	CancelSound bool
}

// Pipeline executes recording-control actions against the recorder and
// transcriber. Single caller (the daemon loop); transcription uploads run in
// a background goroutine so the event loop never blocks on HTTP.
type Pipeline struct {
	recorder    AudioRecorder
	transcriber Transcriber // nil disables transcription
	logger      *slog.Logger
	cfg         PipelineConfig

	current *session

	// Indirections for tests.
	cancelBeep func() error
	copyText   func(string) error
}

func NewPipeline(recorder AudioRecorder, transcriber Transcriber, cfg PipelineConfig, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		recorder:    recorder,
		transcriber: transcriber,
		logger:      logger,
		cfg:         cfg,
		cancelBeep: func() error {
			return beeep.Beep(beeep.DefaultFreq, beeep.DefaultDuration)
		},
		copyText: clipboard.WriteAll,
	}
}

// Recording reports whether a session is in flight.
func (p *Pipeline) Recording() bool { return p.current != nil }

// CurrentSessionID returns the in-flight session id, or "".
func (p *Pipeline) CurrentSessionID() string {
	if p.current == nil {
		return ""
	}
	return p.current.ID
}

// SetMinimumKeyTime updates the stop-time check after a reconfigure.
func (p *Pipeline) SetMinimumKeyTime(d time.Duration) {
	p.cfg.MinimumKeyTime = d
}

// Observe lets an in-flight session see the keys pressed during it.
func (p *Pipeline) Observe(ev KeyEvent) {
	if p.current != nil {
		p.current.Observe(ev)
	}
}

// Apply executes one processor action. ev is the event that produced it;
// its timestamp anchors the session elapsed time.
func (p *Pipeline) Apply(ctx context.Context, action Action, ev KeyEvent, emit func(StateBroadcast)) {
	switch action {
	case ActionStartRecording:
		p.start(ctx, ev, emit)
	case ActionStopRecording:
		p.stop(ctx, ev, emit)
	case ActionCancel:
		p.cancel(ev, emit)
	case ActionDiscard:
		p.discard(ev, "short_hold", emit)
	}
}

// Abort drops an in-flight recording without user feedback. Used when the
// hotkey is reconfigured mid-session.
func (p *Pipeline) Abort(reason string, emit func(StateBroadcast)) {
	if p.current == nil {
		return
	}
	p.discard(KeyEvent{At: time.Now()}, reason, emit)
}

func (p *Pipeline) start(ctx context.Context, ev KeyEvent, emit func(StateBroadcast)) {
	if p.current != nil {
		p.logger.Warn("start requested while recording, ignoring", "session_id", p.current.ID)
		return
	}
	sess := newSession(ev.At)
	if err := p.recorder.Start(ctx); err != nil {
		p.logger.Error("recorder start failed", "error", err)
		return
	}
	// The starting snapshot itself counts: a keyed chord held for its
	// whole life is a printable-key session even if nothing else is typed.
	sess.Observe(ev)
	p.current = sess
	p.logger.Info("recording started", "session_id", sess.ID)
	emit(BroadcastRecordingStarted{SessionID: sess.ID, At: ev.At})
}

func (p *Pipeline) stop(ctx context.Context, ev KeyEvent, emit func(StateBroadcast)) {
	sess := p.current
	if sess == nil {
		p.logger.Warn("stop requested with no recording in flight")
		return
	}
	p.current = nil

	res, err := p.recorder.Stop()
	if err != nil {
		p.logger.Error("recorder stop failed", "session_id", sess.ID, "error", err)
		emit(BroadcastRecordingDiscarded{SessionID: sess.ID, Reason: "recorder_error", At: ev.At})
		return
	}

	elapsed := sess.Elapsed(ev.At)
	if Decide(elapsed, sess.SawPrintableKey, p.cfg.MinimumKeyTime) == DecisionDiscardShortRecording {
		p.logger.Info("recording below minimum, discarding",
			"session_id", sess.ID, "elapsed_ms", elapsed.Milliseconds())
		if res.WavPath != "" {
			_ = os.Remove(res.WavPath)
		}
		emit(BroadcastRecordingDiscarded{SessionID: sess.ID, Reason: "below_minimum", At: ev.At})
		return
	}

	p.logger.Info("recording stopped",
		"session_id", sess.ID, "elapsed_ms", elapsed.Milliseconds(), "wav", res.WavPath)

	if p.transcriber == nil {
		emit(BroadcastRecordingStopped{SessionID: sess.ID, WavPath: res.WavPath, Elapsed: elapsed, At: ev.At})
		return
	}

	emit(BroadcastRecordingStopped{SessionID: sess.ID, Elapsed: elapsed, At: ev.At})
	go p.transcribe(ctx, sess.ID, res.WavPath, emit)
}

// transcribe uploads the WAV and broadcasts the result. The temp file is
// removed whether or not the upload succeeds.
func (p *Pipeline) transcribe(ctx context.Context, sessionID, wavPath string, emit func(StateBroadcast)) {
	defer func() {
		if wavPath != "" {
			_ = os.Remove(wavPath)
		}
	}()

	text, err := p.transcriber.Transcribe(ctx, wavPath)
	if err != nil {
		p.logger.Error("transcription failed", "session_id", sessionID, "error", err)
		emit(BroadcastTranscriptFailed{SessionID: sessionID, Error: err.Error(), At: time.Now()})
		return
	}

	p.logger.Info("transcript ready", "session_id", sessionID, "chars", len(text))
	if p.cfg.CopyToClipboard && text != "" {
		if err := p.copyText(text); err != nil {
			p.logger.Warn("clipboard write failed", "error", err)
		}
	}
	emit(BroadcastTranscript{SessionID: sessionID, Text: text, At: time.Now()})
}

func (p *Pipeline) cancel(ev KeyEvent, emit func(StateBroadcast)) {
	sess := p.current
	if sess == nil {
		p.logger.Warn("cancel requested with no recording in flight")
		return
	}
	p.current = nil

	if _, err := p.recorder.Cancel(); err != nil {
		p.logger.Error("recorder cancel failed", "session_id", sess.ID, "error", err)
	}
	if p.cfg.CancelSound {
		if err := p.cancelBeep(); err != nil {
			p.logger.Debug("cancel beep failed", "error", err)
		}
	}
	p.logger.Info("recording canceled", "session_id", sess.ID)
	emit(BroadcastRecordingCanceled{SessionID: sess.ID, At: ev.At})
}

func (p *Pipeline) discard(ev KeyEvent, reason string, emit func(StateBroadcast)) {
	sess := p.current
	if sess == nil {
		p.logger.Warn("discard requested with no recording in flight")
		return
	}
	p.current = nil

	if _, err := p.recorder.Cancel(); err != nil {
		p.logger.Error("recorder cancel failed", "session_id", sess.ID, "error", err)
	}
	p.logger.Info("recording discarded", "session_id", sess.ID, "reason", reason)
	emit(BroadcastRecordingDiscarded{SessionID: sess.ID, Reason: reason, At: ev.At})
}
