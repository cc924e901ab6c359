package main

import (
	"encoding/json"
	"fmt"
	"time"
)

// ============================================================================
// Event Types
// ============================================================================
// Events are what the daemon loop consumes. Key state snapshots come from the
// evdev tracker or synthetically over IPC; configuration changes and state
// snapshot requests also flow through the same loop so processor state is
// only ever touched from one goroutine.
// ============================================================================

// Event is a marker interface for everything the daemon loop consumes.
type Event interface {
	eventMarker()
}

// EventKind distinguishes what kind of input produced a key state snapshot.
type EventKind int

const (
	// KindKeyChange is a keyboard press or release.
	KindKeyChange EventKind = iota
	// KindMouseClick is a mouse button press. The held-key fields still
	// describe the full keyboard state at click time.
	KindMouseClick
)

func (k EventKind) String() string {
	switch k {
	case KindKeyChange:
		return "key"
	case KindMouseClick:
		return "mouse"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// KeyEvent is a full snapshot of input state at one instant: every held
// modifier plus the most recently pressed non-modifier key. Snapshots (rather
// than deltas) mean a single missed event cannot wedge the processor.
type KeyEvent struct {
	At        time.Time
	Modifiers Modifiers
	Key       Key
	Kind      EventKind
}

func (KeyEvent) eventMarker() {}

// FullRelease reports whether nothing at all is held. The processor treats
// any full-release snapshot as a hard reset point.
func (e KeyEvent) FullRelease() bool {
	return e.Modifiers == 0 && e.Key == KeyNone
}

// ConfigureRequest atomically replaces the active chord and thresholds.
type ConfigureRequest struct {
	Chord  HotkeyDefinition
	Config ProcessorConfig
}

func (ConfigureRequest) eventMarker() {}

// RequestStateSnapshot asks the daemon loop for a state snapshot.
// The reply channel should be buffered (size 1).
type RequestStateSnapshot struct {
	Reply chan StateSnapshot
}

func (RequestStateSnapshot) eventMarker() {}

// StateSnapshot is the daemon-owned state exposed to observers (WS state_init).
type StateSnapshot struct {
	State            string    `json:"state"`
	Dirty            bool      `json:"dirty"`
	Hotkey           string    `json:"hotkey"`
	UseDoubleTapOnly bool      `json:"use_double_tap_only"`
	Recording        bool      `json:"recording"`
	SessionID        string    `json:"session_id,omitempty"`
	At               time.Time `json:"at"`
}

// ============================================================================
// State Broadcasts
// ============================================================================
// Broadcasts are emitted by the daemon loop and the recording pipeline, and
// fanned out to websocket observers. They never feed back into the processor.
// ============================================================================

// StateBroadcast is a marker interface for observer-facing state events.
type StateBroadcast interface {
	broadcastMarker()
}

// BroadcastStateChanged reports a processor transition that produced an action.
type BroadcastStateChanged struct {
	State  string
	Action string
	At     time.Time
}

func (BroadcastStateChanged) broadcastMarker() {}

// BroadcastRecordingStarted reports that audio capture began.
type BroadcastRecordingStarted struct {
	SessionID string
	At        time.Time
}

func (BroadcastRecordingStarted) broadcastMarker() {}

// BroadcastRecordingStopped reports a clean stop that passed the minimum-time
// check. WavPath is set when no transcriber is configured.
type BroadcastRecordingStopped struct {
	SessionID string
	WavPath   string
	Elapsed   time.Duration
	At        time.Time
}

func (BroadcastRecordingStopped) broadcastMarker() {}

// BroadcastRecordingDiscarded reports a silently dropped recording.
type BroadcastRecordingDiscarded struct {
	SessionID string
	Reason    string
	At        time.Time
}

func (BroadcastRecordingDiscarded) broadcastMarker() {}

// BroadcastRecordingCanceled reports a user-initiated cancel (ESC).
type BroadcastRecordingCanceled struct {
	SessionID string
	At        time.Time
}

func (BroadcastRecordingCanceled) broadcastMarker() {}

// BroadcastTranscript carries the transcription result for a session.
type BroadcastTranscript struct {
	SessionID string
	Text      string
	At        time.Time
}

func (BroadcastTranscript) broadcastMarker() {}

// BroadcastTranscriptFailed reports a failed transcription upload.
type BroadcastTranscriptFailed struct {
	SessionID string
	Error     string
	At        time.Time
}

func (BroadcastTranscriptFailed) broadcastMarker() {}

// ============================================================================
// JSON Encoding/Decoding Support
// ============================================================================
// EventEnvelope wraps events for JSON serialization across the IPC boundary.
// Since Go doesn't have union types, we use a type discriminator.
// ============================================================================

// EventEnvelope wraps an event with a type discriminator for JSON marshaling.
type EventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// keyEventWire is the IPC representation of a KeyEvent. Timestamps are
// assigned by the daemon on receipt, not carried on the wire.
type keyEventWire struct {
	Modifiers []string `json:"modifiers,omitempty"`
	Key       string   `json:"key,omitempty"`
	Kind      string   `json:"kind,omitempty"` // "key" (default) or "mouse"
}

// configureWire is the IPC representation of a ConfigureRequest.
// Omitted minimum_key_time_ms keeps the default.
type configureWire struct {
	Modifiers        []string `json:"modifiers,omitempty"`
	Key              string   `json:"key,omitempty"`
	UseDoubleTapOnly bool     `json:"use_double_tap_only,omitempty"`
	MinimumKeyTimeMS int      `json:"minimum_key_time_ms,omitempty"`
}

// UnmarshalEvent deserializes a JSON event envelope into a concrete Event.
func UnmarshalEvent(data []byte) (Event, error) {
	var env EventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	switch env.Type {
	case "key_event":
		var w keyEventWire
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &w); err != nil {
				return nil, fmt.Errorf("unmarshal key_event: %w", err)
			}
		}
		mods, err := ParseModifiers(w.Modifiers)
		if err != nil {
			return nil, fmt.Errorf("key_event: %w", err)
		}
		key, err := ParseKeyName(w.Key)
		if err != nil {
			return nil, fmt.Errorf("key_event: %w", err)
		}
		kind := KindKeyChange
		switch w.Kind {
		case "", "key":
		case "mouse":
			kind = KindMouseClick
		default:
			return nil, fmt.Errorf("key_event: unknown kind %q", w.Kind)
		}
		return KeyEvent{Modifiers: mods, Key: key, Kind: kind}, nil

	case "configure":
		var w configureWire
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &w); err != nil {
				return nil, fmt.Errorf("unmarshal configure: %w", err)
			}
		}
		mods, err := ParseModifiers(w.Modifiers)
		if err != nil {
			return nil, fmt.Errorf("configure: %w", err)
		}
		key, err := ParseKeyName(w.Key)
		if err != nil {
			return nil, fmt.Errorf("configure: %w", err)
		}
		cfg := DefaultProcessorConfig()
		cfg.UseDoubleTapOnly = w.UseDoubleTapOnly
		if w.MinimumKeyTimeMS != 0 {
			cfg.MinimumKeyTime = time.Duration(w.MinimumKeyTimeMS) * time.Millisecond
		}
		return ConfigureRequest{
			Chord:  HotkeyDefinition{Key: key, Modifiers: mods},
			Config: cfg,
		}, nil

	default:
		return nil, fmt.Errorf("unknown event type: %q", env.Type)
	}
}

// MarshalEvent serializes an Event into a JSON envelope with type discriminator.
func MarshalEvent(e Event) ([]byte, error) {
	var env EventEnvelope

	switch e := e.(type) {
	case KeyEvent:
		env.Type = "key_event"
		w := keyEventWire{
			Modifiers: e.Modifiers.Names(),
			Key:       KeyName(e.Key),
			Kind:      e.Kind.String(),
		}
		data, err := json.Marshal(w)
		if err != nil {
			return nil, fmt.Errorf("marshal key_event: %w", err)
		}
		env.Data = data

	case ConfigureRequest:
		env.Type = "configure"
		w := configureWire{
			Modifiers:        e.Chord.Modifiers.Names(),
			Key:              KeyName(e.Chord.Key),
			UseDoubleTapOnly: e.Config.UseDoubleTapOnly,
			MinimumKeyTimeMS: int(e.Config.MinimumKeyTime / time.Millisecond),
		}
		data, err := json.Marshal(w)
		if err != nil {
			return nil, fmt.Errorf("marshal configure: %w", err)
		}
		env.Data = data

	default:
		return nil, fmt.Errorf("unsupported event type: %T", e)
	}

	return json.Marshal(env)
}
