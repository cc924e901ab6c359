package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration for the hotkeyd daemon.
//
// The config file is the primary configuration surface; flags exist for
// small overrides and environments where a file is awkward. Defaults and
// validation are centralized so the rest of the code can assume a
// well-formed config.
type Config struct {
	// Hotkey chord and press mode
	Hotkey HotkeyConfig `yaml:"hotkey"`

	// Press-detection timing (only the user-tunable part)
	Timing TimingConfig `yaml:"timing"`

	// Input device configuration
	Input InputConfig `yaml:"input"`

	// Audio capture configuration
	Audio AudioConfig `yaml:"audio"`

	// Speech-to-text upload configuration
	Transcriber TranscriberConfig `yaml:"transcriber"`

	// User feedback configuration
	Feedback FeedbackConfig `yaml:"feedback"`

	// IPC configuration
	IPC IPCConfig `yaml:"ipc"`

	// State WebSocket configuration
	StateWS StateWSConfig `yaml:"state_ws"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

type HotkeyConfig struct {
	// Key is the chord's non-modifier key name; empty for modifier-only
	// chords (e.g. modifiers: [ctrl, alt]).
	Key              string   `yaml:"key,omitempty"`
	Modifiers        []string `yaml:"modifiers"`
	UseDoubleTapOnly bool     `yaml:"use_double_tap_only"`
}

type TimingConfig struct {
	MinimumKeyTimeMS int `yaml:"minimum_key_time_ms"`
}

type InputConfig struct {
	Devices []string `yaml:"devices"`
}

type AudioConfig struct {
	SampleRate int    `yaml:"sample_rate"`
	Channels   int    `yaml:"channels"`
	TempDir    string `yaml:"temp_dir,omitempty"`
}

type TranscriberConfig struct {
	// URL empty disables transcription; recordings are kept as WAV files.
	URL             string `yaml:"url,omitempty"`
	Language        string `yaml:"language,omitempty"`
	TokenFile       string `yaml:"token_file,omitempty"`
	TimeoutMS       int    `yaml:"timeout_ms"`
	CopyToClipboard bool   `yaml:"copy_to_clipboard"`
}

type FeedbackConfig struct {
	CancelSound bool `yaml:"cancel_sound"`
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"`
}

type StateWSConfig struct {
	Port int `yaml:"port"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a fully-populated Config with defaults.
// Keep this aligned with constants.go defaults and current CLI defaults.
func DefaultConfig() Config {
	return Config{
		Hotkey: HotkeyConfig{
			Modifiers: []string{"ctrl", "alt"},
		},
		Timing: TimingConfig{
			MinimumKeyTimeMS: int(defaultMinimumKeyTime / time.Millisecond),
		},
		Input: InputConfig{
			Devices: []string{"/dev/input/event0"},
		},
		Audio: AudioConfig{
			SampleRate: defaultSampleRate,
			Channels:   defaultChannels,
		},
		Transcriber: TranscriberConfig{
			TimeoutMS:       defaultTranscribeTimeoutMS,
			CopyToClipboard: true,
		},
		Feedback: FeedbackConfig{
			CancelSound: true,
		},
		IPC: IPCConfig{
			SocketPath: defaultIPCSocketPath,
		},
		StateWS: StateWSConfig{
			Port: defaultStateWSPort,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file.
//
// Unknown fields are rejected (helps catch typos) via KnownFields(true).
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	return parseConfig(b)
}

func parseConfig(b []byte) (Config, error) {
	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Only whitespace/comments are allowed after the document.
	if err := dec.Decode(&struct{}{}); err == nil {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides applies flag values on top of a loaded config. Flags pass
// pointers; a nil pointer means "not set, keep the config value".
type FlagOverrides struct {
	HotkeyKey        *string
	HotkeyModifiers  *string // comma-separated
	UseDoubleTapOnly *bool

	MinimumKeyTimeMS *int

	InputDevice *string

	TranscriberURL *string

	IPCSocketPath *string
	StateWSPort   *int

	LogLevel *string
}

// Apply merges the overrides into cfg. If an override pointer is nil, it is
// ignored; a non-nil pointer is applied even when it holds a zero value.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.HotkeyKey != nil {
		cfg.Hotkey.Key = *o.HotkeyKey
	}
	if o.HotkeyModifiers != nil {
		cfg.Hotkey.Modifiers = splitModifierList(*o.HotkeyModifiers)
	}
	if o.UseDoubleTapOnly != nil {
		cfg.Hotkey.UseDoubleTapOnly = *o.UseDoubleTapOnly
	}
	if o.MinimumKeyTimeMS != nil {
		cfg.Timing.MinimumKeyTimeMS = *o.MinimumKeyTimeMS
	}
	if o.InputDevice != nil {
		cfg.Input.Devices = []string{*o.InputDevice}
	}
	if o.TranscriberURL != nil {
		cfg.Transcriber.URL = *o.TranscriberURL
	}
	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}
	if o.StateWSPort != nil {
		cfg.StateWS.Port = *o.StateWSPort
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

func splitModifierList(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' || s[i] == '+' {
			if part := s[start:i]; part != "" {
				out = append(out, part)
			}
			start = i + 1
		}
	}
	return out
}

// Validate checks config invariants and returns a user-friendly error.
// This is intended to be called after defaults + file + overrides are applied.
func (c *Config) Validate() error {
	// Hotkey
	if _, err := c.ToChord(); err != nil {
		return err
	}

	// Timing
	if c.Timing.MinimumKeyTimeMS <= 0 {
		return errors.New("timing.minimum_key_time_ms must be > 0")
	}

	// Input
	if len(c.Input.Devices) == 0 {
		return errors.New("input.devices must not be empty")
	}
	for i, dev := range c.Input.Devices {
		if dev == "" {
			return fmt.Errorf("input.devices[%d] is empty", i)
		}
	}

	// Audio
	if c.Audio.SampleRate < 8000 || c.Audio.SampleRate > 192000 {
		return errors.New("audio.sample_rate must be between 8000 and 192000")
	}
	if c.Audio.Channels < 1 || c.Audio.Channels > 2 {
		return errors.New("audio.channels must be 1 or 2")
	}

	// Transcriber
	if c.Transcriber.URL != "" && c.Transcriber.TimeoutMS <= 0 {
		return errors.New("transcriber.timeout_ms must be > 0")
	}

	// State WS
	if c.StateWS.Port <= 0 || c.StateWS.Port > 65535 {
		return errors.New("state_ws.port must be between 1 and 65535")
	}

	// IPC
	if c.IPC.SocketPath == "" {
		return errors.New("ipc.socket_path must not be empty")
	}

	// Logging
	if _, err := parseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	return nil
}

// ToChord converts the hotkey section into a HotkeyDefinition.
func (c *Config) ToChord() (HotkeyDefinition, error) {
	mods, err := ParseModifiers(c.Hotkey.Modifiers)
	if err != nil {
		return HotkeyDefinition{}, fmt.Errorf("hotkey.modifiers: %w", err)
	}
	key, err := ParseKeyName(c.Hotkey.Key)
	if err != nil {
		return HotkeyDefinition{}, fmt.Errorf("hotkey.key: %w", err)
	}
	chord := HotkeyDefinition{Key: key, Modifiers: mods}
	if err := chord.Validate(); err != nil {
		return HotkeyDefinition{}, err
	}
	return chord, nil
}

// ToProcessorConfig converts the user-tunable timing settings plus the fixed
// thresholds into the processor config.
func (c *Config) ToProcessorConfig() ProcessorConfig {
	cfg := DefaultProcessorConfig()
	cfg.MinimumKeyTime = time.Duration(c.Timing.MinimumKeyTimeMS) * time.Millisecond
	cfg.UseDoubleTapOnly = c.Hotkey.UseDoubleTapOnly
	return cfg
}

// ExpandPath expands a leading "~" in a path using $HOME.
// Handy for config values like transcriber.token_file and audio.temp_dir.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
