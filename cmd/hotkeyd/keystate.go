package main

import "time"

// keyTracker folds raw evdev press/release events into full key state
// snapshots. It is the adapter between the kernel's delta stream and the
// processor's snapshot contract.
//
// Non-modifier keys are kept in press order; the snapshot's primary key is
// the most recently pressed one still held. Key repeats (value 2) do not
// change state and are dropped, as are mouse button releases.
type keyTracker struct {
	mods Modifiers
	held []Key
}

func newKeyTracker() *keyTracker {
	return &keyTracker{}
}

// Translate consumes one raw input event. ok is false when the event does
// not produce a snapshot.
func (t *keyTracker) Translate(ev inputEvent) (out KeyEvent, ok bool) {
	if ev.Type != EV_KEY {
		return KeyEvent{}, false
	}

	at := time.Unix(ev.Sec, ev.Usec*1000)
	if ev.Sec == 0 {
		at = time.Now()
	}

	if isMouseButton(ev.Code) {
		if ev.Value != evValuePress {
			return KeyEvent{}, false
		}
		return t.snapshot(at, KindMouseClick), true
	}

	if ev.Value == evValueRepeat {
		return KeyEvent{}, false
	}

	if m, isMod := modifierFromCode(ev.Code); isMod {
		if ev.Value == evValuePress {
			t.mods |= m
		} else {
			t.mods &^= m
		}
		return t.snapshot(at, KindKeyChange), true
	}

	k := Key(ev.Code)
	if ev.Value == evValuePress {
		t.press(k)
	} else {
		t.release(k)
	}
	return t.snapshot(at, KindKeyChange), true
}

func (t *keyTracker) snapshot(at time.Time, kind EventKind) KeyEvent {
	key := KeyNone
	if n := len(t.held); n > 0 {
		key = t.held[n-1]
	}
	return KeyEvent{At: at, Modifiers: t.mods, Key: key, Kind: kind}
}

func (t *keyTracker) press(k Key) {
	for _, h := range t.held {
		if h == k {
			return
		}
	}
	t.held = append(t.held, k)
}

func (t *keyTracker) release(k Key) {
	for i, h := range t.held {
		if h == k {
			t.held = append(t.held[:i], t.held[i+1:]...)
			return
		}
	}
}
