package main

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
)

// ============================================================================
// hotkeyctl - Command-line IPC Client
// ============================================================================
// This tool injects synthetic key state snapshots into the hotkeyd daemon
// via IPC, and can reconfigure the hotkey chord at runtime.
//
// Usage:
//   hotkeyctl press ctrl+alt
//   hotkeyctl release
//   hotkeyctl tap ctrl+space
//   hotkeyctl esc
//   hotkeyctl click ctrl+alt
//   hotkeyctl set-hotkey ctrl+space --double-tap-only
//
// Options:
//   -socket PATH    Unix domain socket path (default: /tmp/hotkeyd.sock)
// ============================================================================

// Wire types (duplicated from main package for standalone binary)

type KeyEventWire struct {
	Modifiers []string `json:"modifiers,omitempty"`
	Key       string   `json:"key,omitempty"`
	Kind      string   `json:"kind,omitempty"`
}

type ConfigureWire struct {
	Modifiers        []string `json:"modifiers"`
	Key              string   `json:"key,omitempty"`
	UseDoubleTapOnly bool     `json:"use_double_tap_only,omitempty"`
	MinimumKeyTimeMS int      `json:"minimum_key_time_ms,omitempty"`
}

// EventEnvelope wraps events for JSON
type EventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// IPCResponse represents the daemon's response
type IPCResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

var modifierNames = map[string]bool{
	"ctrl": true, "control": true,
	"shift": true,
	"alt":   true, "option": true,
	"super": true, "meta": true, "cmd": true, "win": true,
}

// parseChord splits "ctrl+alt+space" into modifier names and a key name.
// Unknown names are passed through as the key; the daemon validates them.
func parseChord(s string) (mods []string, key string, err error) {
	for _, part := range strings.Split(s, "+") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if modifierNames[strings.ToLower(part)] {
			mods = append(mods, strings.ToLower(part))
			continue
		}
		if key != "" {
			return nil, "", fmt.Errorf("chord %q names more than one key (%s, %s)", s, key, part)
		}
		key = part
	}
	if len(mods) == 0 && key == "" {
		return nil, "", fmt.Errorf("empty chord %q", s)
	}
	return mods, key, nil
}

func main() {
	socketPath := "/tmp/hotkeyd.sock"

	// Parse arguments
	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	// Check for -socket flag
	if args[0] == "-socket" || args[0] == "--socket" {
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: -socket requires an argument\n")
			os.Exit(1)
		}
		socketPath = args[1]
		args = args[2:]
	}

	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	// Parse command
	var envelopes []EventEnvelope

	switch args[0] {
	case "press":
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: press requires a chord (e.g. ctrl+alt)\n")
			os.Exit(1)
		}
		env, err := keyEventEnvelope(args[1], "key")
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		envelopes = append(envelopes, env)

	case "release":
		// An empty snapshot means all keys are up.
		envelopes = append(envelopes, EventEnvelope{Type: "key_event"})

	case "tap":
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: tap requires a chord (e.g. ctrl+alt)\n")
			os.Exit(1)
		}
		env, err := keyEventEnvelope(args[1], "key")
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		envelopes = append(envelopes, env, EventEnvelope{Type: "key_event"})

	case "esc":
		env, err := keyEventEnvelope("esc", "key")
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		envelopes = append(envelopes, env)

	case "click":
		chord := ""
		if len(args) >= 2 {
			chord = args[1]
		}
		env, err := mouseClickEnvelope(chord)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		envelopes = append(envelopes, env)

	case "set-hotkey":
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: set-hotkey requires a chord (e.g. ctrl+space)\n")
			os.Exit(1)
		}
		env, err := configureEnvelope(args[1], args[2:])
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		envelopes = append(envelopes, env)

	case "help", "-h", "--help":
		printUsage()
		os.Exit(0)

	default:
		fmt.Fprintf(os.Stderr, "error: unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}

	// Send events
	for _, env := range envelopes {
		if err := sendEvent(socketPath, env); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Println("ok")
}

func keyEventEnvelope(chord, kind string) (EventEnvelope, error) {
	mods, key, err := parseChord(chord)
	if err != nil {
		return EventEnvelope{}, err
	}
	data, err := json.Marshal(KeyEventWire{Modifiers: mods, Key: key, Kind: kind})
	if err != nil {
		return EventEnvelope{}, fmt.Errorf("marshal key event: %w", err)
	}
	return EventEnvelope{Type: "key_event", Data: data}, nil
}

func mouseClickEnvelope(chord string) (EventEnvelope, error) {
	var mods []string
	var key string
	if chord != "" {
		var err error
		mods, key, err = parseChord(chord)
		if err != nil {
			return EventEnvelope{}, err
		}
	}
	data, err := json.Marshal(KeyEventWire{Modifiers: mods, Key: key, Kind: "mouse"})
	if err != nil {
		return EventEnvelope{}, fmt.Errorf("marshal mouse click: %w", err)
	}
	return EventEnvelope{Type: "key_event", Data: data}, nil
}

func configureEnvelope(chord string, opts []string) (EventEnvelope, error) {
	mods, key, err := parseChord(chord)
	if err != nil {
		return EventEnvelope{}, err
	}
	wire := ConfigureWire{Modifiers: mods, Key: key}

	for i := 0; i < len(opts); i++ {
		switch opts[i] {
		case "--double-tap-only":
			wire.UseDoubleTapOnly = true
		case "--min-key-time-ms":
			if i+1 >= len(opts) {
				return EventEnvelope{}, fmt.Errorf("--min-key-time-ms requires a value")
			}
			ms, err := strconv.Atoi(opts[i+1])
			if err != nil {
				return EventEnvelope{}, fmt.Errorf("invalid --min-key-time-ms value: %v", err)
			}
			wire.MinimumKeyTimeMS = ms
			i++
		default:
			return EventEnvelope{}, fmt.Errorf("unknown option: %s", opts[i])
		}
	}

	data, err := json.Marshal(wire)
	if err != nil {
		return EventEnvelope{}, fmt.Errorf("marshal configure: %w", err)
	}
	return EventEnvelope{Type: "configure", Data: data}, nil
}

func sendEvent(socketPath string, env EventEnvelope) error {
	// Connect to socket
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	// Send event (line-delimited JSON)
	if _, err := fmt.Fprintf(conn, "%s\n", data); err != nil {
		return fmt.Errorf("send event: %w", err)
	}

	// Read response
	var response IPCResponse
	decoder := json.NewDecoder(conn)
	if err := decoder.Decode(&response); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	// Check response status
	if response.Status == "error" {
		return fmt.Errorf("daemon error: %s", response.Error)
	}

	return nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `hotkeyctl - Control hotkeyd daemon via IPC

Usage:
  hotkeyctl [options] <command> [args]

Options:
  -socket PATH    Unix domain socket path (default: /tmp/hotkeyd.sock)

Commands:
  press <chord>             Simulate pressing a chord (held until release)
  release                   Simulate releasing all keys
  tap <chord>               Press then immediately release a chord
  esc                       Simulate pressing ESC (cancels a recording)
  click [chord]             Simulate a mouse click, optionally with keys held
  set-hotkey <chord> [opts] Change the hotkey chord at runtime
      --double-tap-only         require a double tap to start recording
      --min-key-time-ms <ms>    minimum hold duration in milliseconds
  help, -h, --help          Show this help message

Examples:
  hotkeyctl press ctrl+alt
  hotkeyctl release
  hotkeyctl tap ctrl+space
  hotkeyctl set-hotkey ctrl+space --double-tap-only
  hotkeyctl -socket /var/run/hotkeyd.sock esc
`)
}
