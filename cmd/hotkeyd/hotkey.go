package main

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ============================================================================
// Hotkey Processor - Pure Press-Detection State Machine
// ============================================================================
//
// The processor turns a serial stream of key state snapshots into recording
// control actions. It performs no I/O and owns no timers: every timing
// decision compares the incoming event's timestamp against timestamps it
// stored from earlier events. The daemon loop is the only caller.
//
// States:
//   - idle:            waiting for the chord
//   - press_and_hold:  chord held, recording in progress
//   - double_tap_lock: hands-free recording entered via double tap
//
// Auxiliary state:
//   - dirty:      set after Cancel/Discard while keys are still down;
//                 suppresses all actions until a full release
//   - lastTapAt:  first-tap timestamp for double-tap detection
//   - lockTapped: a chord re-tap has been seen while locked; its release
//                 stops the recording (the release of the tap that entered
//                 the lock must not)
//
// ============================================================================

// Action is what the processor tells the daemon to do with the recording
// pipeline. Exactly one action is returned per event.
type Action int

const (
	// ActionNone: nothing to do.
	ActionNone Action = iota
	// ActionDiscard: stop capture and silently drop the audio.
	ActionDiscard
	// ActionCancel: stop capture, drop the audio, give user feedback.
	ActionCancel
	// ActionStartRecording: begin audio capture.
	ActionStartRecording
	// ActionStopRecording: stop capture and hand off for transcription.
	ActionStopRecording
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionDiscard:
		return "discard"
	case ActionCancel:
		return "cancel"
	case ActionStartRecording:
		return "start_recording"
	case ActionStopRecording:
		return "stop_recording"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// HotkeyDefinition is the chord that triggers recording: a set of modifiers
// plus an optional non-modifier key. Modifier-only chords are allowed.
type HotkeyDefinition struct {
	Key       Key
	Modifiers Modifiers
}

// ModifierOnly reports whether the chord has no non-modifier key.
func (h HotkeyDefinition) ModifierOnly() bool {
	return h.Key == KeyNone
}

// Matches reports whether a snapshot is exactly the chord: the chord's
// modifiers and nothing else, plus the chord key (or no key for
// modifier-only chords).
func (h HotkeyDefinition) Matches(ev KeyEvent) bool {
	return ev.Modifiers == h.Modifiers && ev.Key == h.Key
}

// String renders the chord in config notation, e.g. "ctrl+alt" or "ctrl+space".
func (h HotkeyDefinition) String() string {
	parts := h.Modifiers.Names()
	if h.Key != KeyNone {
		parts = append(parts, KeyName(h.Key))
	}
	return strings.Join(parts, "+")
}

// Validate checks that the chord can actually be pressed.
func (h HotkeyDefinition) Validate() error {
	if h.Key == KeyNone && h.Modifiers == 0 {
		return errors.New("hotkey must name at least one modifier or key")
	}
	return nil
}

// ProcessorConfig holds the press-detection thresholds.
type ProcessorConfig struct {
	// MinimumKeyTime is the user-set floor below which a hold is discarded.
	MinimumKeyTime time.Duration

	// DoubleTapWindow is the maximum gap between two chord presses that
	// still counts as a double tap.
	DoubleTapWindow time.Duration

	// ModifierOnlyMinimum is the floor applied on top of MinimumKeyTime
	// for modifier-only holds.
	ModifierOnlyMinimum time.Duration

	// PressAndHoldCancelWindow bounds the different-key stop shortcut.
	PressAndHoldCancelWindow time.Duration

	// UseDoubleTapOnly selects double-tap lock mode instead of
	// press-and-hold. A single chord press then does nothing.
	UseDoubleTapOnly bool
}

// DefaultProcessorConfig returns the stock thresholds.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		MinimumKeyTime:           defaultMinimumKeyTime,
		DoubleTapWindow:          doubleTapWindow,
		ModifierOnlyMinimum:      modifierOnlyMinimumDuration,
		PressAndHoldCancelWindow: pressAndHoldCancelWindow,
	}
}

// Validate checks threshold invariants.
func (c ProcessorConfig) Validate() error {
	if c.MinimumKeyTime <= 0 {
		return errors.New("minimum key time must be > 0")
	}
	if c.DoubleTapWindow <= 0 {
		return errors.New("double tap window must be > 0")
	}
	if c.ModifierOnlyMinimum < 0 {
		return errors.New("modifier-only minimum must be >= 0")
	}
	if c.PressAndHoldCancelWindow <= 0 {
		return errors.New("press-and-hold cancel window must be > 0")
	}
	return nil
}

type processorState int

const (
	stateIdle processorState = iota
	statePressAndHold
	stateDoubleTapLock
)

func (s processorState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case statePressAndHold:
		return "press_and_hold"
	case stateDoubleTapLock:
		return "double_tap_lock"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// TraceFunc observes every processed event. It runs after the transition and
// must not block; it exists for diagnostics only.
type TraceFunc func(ev KeyEvent, action Action, state string)

// Processor is the press-detection state machine. Not safe for concurrent
// use; the daemon loop is its single caller.
type Processor struct {
	chord HotkeyDefinition
	cfg   ProcessorConfig

	state      processorState
	dirty      bool
	startedAt  time.Time
	lastTapAt  time.Time
	lockTapped bool

	trace TraceFunc
}

// NewProcessor validates the chord and thresholds and returns a processor in
// the idle state. trace may be nil.
func NewProcessor(chord HotkeyDefinition, cfg ProcessorConfig, trace TraceFunc) (*Processor, error) {
	if err := chord.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Processor{chord: chord, cfg: cfg, trace: trace}, nil
}

// Configure atomically replaces the chord and thresholds and resets the
// machine to idle. On validation failure nothing changes, including any
// in-flight hold state.
func (p *Processor) Configure(chord HotkeyDefinition, cfg ProcessorConfig) error {
	if err := chord.Validate(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	p.chord = chord
	p.cfg = cfg
	p.state = stateIdle
	p.dirty = false
	p.startedAt = time.Time{}
	p.lastTapAt = time.Time{}
	p.lockTapped = false
	return nil
}

// StateName returns the current state for snapshots and broadcasts.
func (p *Processor) StateName() string { return p.state.String() }

// Dirty reports whether actions are suppressed until the next full release.
func (p *Processor) Dirty() bool { return p.dirty }

// Chord returns the active hotkey definition.
func (p *Processor) Chord() HotkeyDefinition { return p.chord }

// Config returns the active thresholds.
func (p *Processor) Config() ProcessorConfig { return p.cfg }

// ProcessEvent advances the machine by one snapshot and returns the action
// the daemon must execute. Events must arrive one at a time in timestamp
// order; an event with an earlier timestamp than the hold start is treated
// as a zero-length hold.
func (p *Processor) ProcessEvent(ev KeyEvent) Action {
	action := p.step(ev)
	if p.trace != nil {
		p.trace(ev, action, p.state.String())
	}
	return action
}

func (p *Processor) step(ev KeyEvent) Action {
	// A full release is handled before the dirty guard: it is the one event
	// that always clears dirty, and it may also terminate an active hold.
	if ev.FullRelease() {
		action := ActionNone
		switch p.state {
		case statePressAndHold:
			action = p.finishHold(ev.At)
		case stateDoubleTapLock:
			if p.lockTapped {
				p.state = stateIdle
				p.lockTapped = false
				action = ActionStopRecording
			}
		}
		// Dirty clearing is independent of the hold evaluation above: a
		// short hold discarded on its own full release must not stay dirty.
		p.dirty = false
		return action
	}

	if p.dirty {
		return ActionNone
	}

	switch p.state {
	case stateIdle:
		return p.stepIdle(ev)
	case statePressAndHold:
		return p.stepPressAndHold(ev)
	case stateDoubleTapLock:
		return p.stepDoubleTapLock(ev)
	default:
		return ActionNone
	}
}

// stepIdle waits for an exact chord press. Mouse clicks never arm the chord,
// even if the snapshot happens to match.
func (p *Processor) stepIdle(ev KeyEvent) Action {
	if ev.Kind != KindKeyChange || !p.chord.Matches(ev) {
		return ActionNone
	}

	if p.cfg.UseDoubleTapOnly {
		if !p.lastTapAt.IsZero() && ev.At.Sub(p.lastTapAt) < p.cfg.DoubleTapWindow {
			p.state = stateDoubleTapLock
			p.startedAt = ev.At
			p.lastTapAt = time.Time{}
			p.lockTapped = false
			return ActionStartRecording
		}
		p.lastTapAt = ev.At
		return ActionNone
	}

	p.state = statePressAndHold
	p.startedAt = ev.At
	return ActionStartRecording
}

// stepPressAndHold classifies every snapshot while the chord is held.
// Branch order matters: ESC beats everything, chord release beats the
// different-key shortcut, and the extra-input rule is the fallback.
func (p *Processor) stepPressAndHold(ev KeyEvent) Action {
	if ev.Key == KeyEscape {
		p.state = stateIdle
		p.dirty = true
		return ActionCancel
	}

	elapsed := p.elapsed(ev.At)

	// Chord no longer fully held: a chord modifier went up, or a keyed
	// chord's key went up with nothing pressed in its place.
	if ev.Modifiers&p.chord.Modifiers != p.chord.Modifiers ||
		(p.chord.Key != KeyNone && ev.Key == KeyNone) {
		action := p.finishHold(ev.At)
		if action == ActionDiscard {
			// Keys may still be down; stay quiet until the full release.
			p.dirty = true
		}
		return action
	}

	// Keyed chords only: a different printable key pressed while the chord
	// is held stops the recording cleanly, inside the cancel window.
	if p.chord.Key != KeyNone && ev.Key != p.chord.Key && ev.Key != KeyNone {
		switch {
		case elapsed < p.cfg.MinimumKeyTime:
			p.state = stateIdle
			p.dirty = true
			return ActionDiscard
		case elapsed < p.cfg.PressAndHoldCancelWindow:
			p.state = stateIdle
			return ActionStopRecording
		default:
			return ActionNone
		}
	}

	// Any other extra input (mouse click, added modifier, added key on a
	// modifier-only chord): early input discards, later input is ignored.
	if ev.Kind == KindMouseClick || ev.Modifiers != p.chord.Modifiers || ev.Key != p.chord.Key {
		if elapsed < p.effectiveMinimum() {
			p.state = stateIdle
			p.dirty = true
			return ActionDiscard
		}
		return ActionNone
	}

	return ActionNone
}

// stepDoubleTapLock keeps recording hands-free until ESC or a completed
// chord re-tap.
func (p *Processor) stepDoubleTapLock(ev KeyEvent) Action {
	if ev.Key == KeyEscape {
		p.state = stateIdle
		p.dirty = true
		p.lockTapped = false
		return ActionCancel
	}

	// A chord press while locked arms the exit; its release stops.
	if ev.Kind == KindKeyChange && p.chord.Matches(ev) {
		p.lockTapped = true
		return ActionNone
	}

	chordKeysUp := ev.Modifiers&p.chord.Modifiers == 0 &&
		(p.chord.Key == KeyNone || ev.Key != p.chord.Key)
	if chordKeysUp && p.lockTapped {
		p.state = stateIdle
		p.lockTapped = false
		return ActionStopRecording
	}

	return ActionNone
}

// finishHold ends press-and-hold at the given instant. Holds shorter than
// the effective minimum are discarded.
func (p *Processor) finishHold(at time.Time) Action {
	p.state = stateIdle
	if p.elapsed(at) < p.effectiveMinimum() {
		return ActionDiscard
	}
	return ActionStopRecording
}

// effectiveMinimum is the hold duration below which a release discards.
// Modifier-only chords get the fixed floor on top of the user setting.
func (p *Processor) effectiveMinimum() time.Duration {
	min := p.cfg.MinimumKeyTime
	if p.chord.ModifierOnly() && p.cfg.ModifierOnlyMinimum > min {
		min = p.cfg.ModifierOnlyMinimum
	}
	return min
}

func (p *Processor) elapsed(at time.Time) time.Duration {
	d := at.Sub(p.startedAt)
	if d < 0 {
		return 0
	}
	return d
}
