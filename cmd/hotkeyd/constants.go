package main

import "time"

// Linux input event types and codes (from <linux/input-event-codes.h>)
const (
	EV_SYN = 0x00
	EV_KEY = 0x01

	KEY_ESC        = 1
	KEY_BACKSPACE  = 14
	KEY_TAB        = 15
	KEY_LEFTCTRL   = 29
	KEY_ENTER      = 28
	KEY_LEFTSHIFT  = 42
	KEY_RIGHTSHIFT = 54
	KEY_LEFTALT    = 56
	KEY_SPACE      = 57
	KEY_CAPSLOCK   = 58
	KEY_RIGHTCTRL  = 97
	KEY_RIGHTALT   = 100
	KEY_LEFTMETA   = 125
	KEY_RIGHTMETA  = 126

	BTN_LEFT   = 0x110
	BTN_RIGHT  = 0x111
	BTN_MIDDLE = 0x112
)

// Input event value constants
const (
	evValueRelease = 0
	evValuePress   = 1
	evValueRepeat  = 2
)

// Press-detection thresholds.
//
// Only minimumKeyTime is user-tunable. The other three are fixed: they encode
// interaction feel that was hand-tuned once and should not drift per install.
const (
	defaultMinimumKeyTime = 200 * time.Millisecond

	// Two chord presses closer together than this form a double tap.
	doubleTapWindow = 300 * time.Millisecond

	// Floor applied to minimumKeyTime for recordings that never saw a
	// printable key. Modifier-only chords are easy to graze by accident.
	modifierOnlyMinimumDuration = 300 * time.Millisecond

	// While press-and-hold is active, a different printable key pressed
	// before this window expires stops the recording cleanly.
	pressAndHoldCancelWindow = 1 * time.Second
)

// Daemon defaults
const (
	defaultIPCSocketPath = "/tmp/hotkeyd.sock"
	defaultStateWSPort   = 3002
	defaultSampleRate    = 16000
	defaultChannels      = 1

	defaultTranscribeTimeoutMS = 30000
)
