package main

import (
	"fmt"
	"sort"
	"strings"
)

// Modifiers is a bitmask of held modifier keys. Left/right variants of the
// same modifier are folded together; chord matching does not care which side
// was pressed.
type Modifiers uint8

const (
	ModCtrl Modifiers = 1 << iota
	ModShift
	ModAlt
	ModSuper
)

var modifierNames = []struct {
	bit  Modifiers
	name string
}{
	{ModCtrl, "ctrl"},
	{ModShift, "shift"},
	{ModAlt, "alt"},
	{ModSuper, "super"},
}

// Names returns the set modifier names in canonical order.
func (m Modifiers) Names() []string {
	var out []string
	for _, mn := range modifierNames {
		if m&mn.bit != 0 {
			out = append(out, mn.name)
		}
	}
	return out
}

// ParseModifier maps a config/IPC modifier name to its bit.
func ParseModifier(name string) (Modifiers, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "ctrl", "control":
		return ModCtrl, nil
	case "shift":
		return ModShift, nil
	case "alt", "option":
		return ModAlt, nil
	case "super", "meta", "cmd", "win":
		return ModSuper, nil
	default:
		return 0, fmt.Errorf("unknown modifier: %q (must be ctrl, shift, alt, or super)", name)
	}
}

// ParseModifiers folds a list of modifier names into a bitmask.
func ParseModifiers(names []string) (Modifiers, error) {
	var m Modifiers
	for _, n := range names {
		bit, err := ParseModifier(n)
		if err != nil {
			return 0, err
		}
		m |= bit
	}
	return m, nil
}

// Key is a non-modifier key, identified by its Linux evdev code.
// KeyNone means "no non-modifier key held".
type Key uint16

const (
	KeyNone   Key = 0
	KeyEscape Key = KEY_ESC
	KeySpace  Key = KEY_SPACE
)

// keyNames maps config/IPC key names to evdev codes. Letters, digits and a
// few common special keys; extend as needed.
var keyNames = map[string]Key{
	"esc":       KeyEscape,
	"space":     KeySpace,
	"enter":     KEY_ENTER,
	"tab":       KEY_TAB,
	"backspace": KEY_BACKSPACE,
	"capslock":  KEY_CAPSLOCK,

	"1": 2, "2": 3, "3": 4, "4": 5, "5": 6,
	"6": 7, "7": 8, "8": 9, "9": 10, "0": 11,

	"q": 16, "w": 17, "e": 18, "r": 19, "t": 20,
	"y": 21, "u": 22, "i": 23, "o": 24, "p": 25,
	"a": 30, "s": 31, "d": 32, "f": 33, "g": 34,
	"h": 35, "j": 36, "k": 37, "l": 38,
	"z": 44, "x": 45, "c": 46, "v": 47, "b": 48,
	"n": 49, "m": 50,

	"f1": 59, "f2": 60, "f3": 61, "f4": 62, "f5": 63,
	"f6": 64, "f7": 65, "f8": 66, "f9": 67, "f10": 68,
}

var keyCodeNames = func() map[Key]string {
	m := make(map[Key]string, len(keyNames))
	for name, code := range keyNames {
		// Prefer the shortest (canonical) name when aliases exist.
		if prev, ok := m[code]; !ok || len(name) < len(prev) {
			m[code] = name
		}
	}
	return m
}()

// ParseKeyName maps a key name to its evdev code. Empty means KeyNone.
func ParseKeyName(name string) (Key, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return KeyNone, nil
	}
	if k, ok := keyNames[name]; ok {
		return k, nil
	}
	keys := make([]string, 0, len(keyNames))
	for n := range keyNames {
		keys = append(keys, n)
	}
	sort.Strings(keys)
	return KeyNone, fmt.Errorf("unknown key: %q (known: %s)", name, strings.Join(keys, ", "))
}

// KeyName returns the config name for a key code, or "key<code>" for codes
// outside the name table.
func KeyName(k Key) string {
	if k == KeyNone {
		return ""
	}
	if n, ok := keyCodeNames[k]; ok {
		return n
	}
	return fmt.Sprintf("key%d", uint16(k))
}

// modifierFromCode maps an evdev key code to its modifier bit.
func modifierFromCode(code uint16) (Modifiers, bool) {
	switch code {
	case KEY_LEFTCTRL, KEY_RIGHTCTRL:
		return ModCtrl, true
	case KEY_LEFTSHIFT, KEY_RIGHTSHIFT:
		return ModShift, true
	case KEY_LEFTALT, KEY_RIGHTALT:
		return ModAlt, true
	case KEY_LEFTMETA, KEY_RIGHTMETA:
		return ModSuper, true
	default:
		return 0, false
	}
}

// isMouseButton reports whether an evdev key code is a mouse button.
func isMouseButton(code uint16) bool {
	switch code {
	case BTN_LEFT, BTN_RIGHT, BTN_MIDDLE:
		return true
	default:
		return false
	}
}
