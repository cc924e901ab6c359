package main

import (
	"time"

	"github.com/google/uuid"
)

// session tracks one recording from StartRecording until its terminal action.
// SawPrintableKey feeds the stop-time Decide check: ESC never counts, the
// chord's own key does (holding ctrl+space to dictate is a printable-key
// session even though nothing else was typed).
type session struct {
	ID              string
	StartedAt       time.Time
	SawPrintableKey bool
}

func newSession(at time.Time) *session {
	return &session{
		ID:        uuid.NewString(),
		StartedAt: at,
	}
}

// Observe marks the session as printable-key when the snapshot holds any
// non-modifier key other than ESC.
func (s *session) Observe(ev KeyEvent) {
	if ev.Key != KeyNone && ev.Key != KeyEscape {
		s.SawPrintableKey = true
	}
}

// Elapsed returns the session length at a given instant. Never negative.
func (s *session) Elapsed(now time.Time) time.Duration {
	d := now.Sub(s.StartedAt)
	if d < 0 {
		return 0
	}
	return d
}
