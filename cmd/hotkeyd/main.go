package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

const version = "1.0.0"

func printVersion() {
	fmt.Printf("hotkeyd v%s\n", version)
	fmt.Println("Push-to-talk dictation hotkey daemon")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  hotkeyd [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Daemon that watches Linux input devices for a configured hotkey chord,")
	fmt.Println("  records microphone audio while the chord is held (or after a double")
	fmt.Println("  tap in lock mode), and uploads finished recordings for transcription.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        Path to YAML config file (flags override file values)")
	fmt.Println()
	fmt.Println("  -hotkey-modifiers string")
	fmt.Println("        Chord modifiers, comma or plus separated (default \"ctrl,alt\")")
	fmt.Println()
	fmt.Println("  -hotkey-key string")
	fmt.Println("        Chord non-modifier key name; empty for a modifier-only chord")
	fmt.Println()
	fmt.Println("  -double-tap-only")
	fmt.Println("        Require a double tap to start recording (hands-free lock mode)")
	fmt.Println()
	fmt.Println("  -min-key-time-ms int")
	fmt.Printf("        Minimum hold duration before a recording is kept (default %d)\n", int(defaultMinimumKeyTime/time.Millisecond))
	fmt.Println()
	fmt.Println("  -input-device string")
	fmt.Println("        Linux input event device (default \"/dev/input/event0\")")
	fmt.Println()
	fmt.Println("  -transcriber-url string")
	fmt.Println("        Speech-to-text upload endpoint; empty keeps WAV files instead")
	fmt.Println()
	fmt.Println("  -ipc-socket string")
	fmt.Printf("        Unix domain socket path for IPC (default %q)\n", defaultIPCSocketPath)
	fmt.Println()
	fmt.Println("  -state-ws-port int")
	fmt.Printf("        State WebSocket listener port (default %d)\n", defaultStateWSPort)
	fmt.Println()
	fmt.Println("  -log-level string")
	fmt.Println("        Log level: error, warn, info, debug (default \"info\")")
	fmt.Println()
	fmt.Println("  -version")
	fmt.Println("        Print version and exit")
	fmt.Println()
	fmt.Println("  -help")
	fmt.Println("        Print this help message")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Hold ctrl+alt to dictate")
	fmt.Println("  hotkeyd -hotkey-modifiers ctrl,alt -input-device /dev/input/event3")
	fmt.Println()
	fmt.Println("  # Double-tap ctrl+space to lock recording, ESC to cancel")
	fmt.Println("  hotkeyd -hotkey-modifiers ctrl -hotkey-key space -double-tap-only")
	fmt.Println()
	fmt.Println("NOTES:")
	fmt.Println("  - Requires read access to input devices (run as root or add user to 'input' group)")
	fmt.Println("  - Recording requires a working PortAudio input device")
	fmt.Println()
}

func main() {
	// Check for version/help flags early
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" {
			printVersion()
			return
		}
		if arg == "-help" || arg == "--help" || arg == "-h" {
			printUsage()
			return
		}
	}

	var (
		configPath      = flag.String("config", "", "Path to YAML config file")
		hotkeyModifiers = flag.String("hotkey-modifiers", "ctrl,alt", "Chord modifiers, comma or plus separated")
		hotkeyKey       = flag.String("hotkey-key", "", "Chord non-modifier key name (empty for modifier-only)")
		doubleTapOnly   = flag.Bool("double-tap-only", false, "Require a double tap to start recording")
		minKeyTimeMS    = flag.Int("min-key-time-ms", int(defaultMinimumKeyTime/time.Millisecond), "Minimum hold duration in ms")
		inputDevice     = flag.String("input-device", "/dev/input/event0", "Linux input event device")
		transcriberURL  = flag.String("transcriber-url", "", "Speech-to-text upload endpoint")
		ipcSocketPath   = flag.String("ipc-socket", defaultIPCSocketPath, "Unix domain socket path for IPC")
		stateWSPort     = flag.Int("state-ws-port", defaultStateWSPort, "State WebSocket listener port")
		logLevelStr     = flag.String("log-level", "info", "Log level: error, warn, info, debug")
		showVersion     = flag.Bool("version", false, "Print version and exit")
		showHelp        = flag.Bool("help", false, "Print help message")
	)

	flag.Usage = printUsage
	flag.Parse()

	if *showHelp {
		printUsage()
		return
	}
	if *showVersion {
		printVersion()
		return
	}

	// Config file first, then only the flags the user actually set on top.
	cfg := DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = LoadConfigFile(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
	}

	var o FlagOverrides
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "hotkey-modifiers":
			o.HotkeyModifiers = hotkeyModifiers
		case "hotkey-key":
			o.HotkeyKey = hotkeyKey
		case "double-tap-only":
			o.UseDoubleTapOnly = doubleTapOnly
		case "min-key-time-ms":
			o.MinimumKeyTimeMS = minKeyTimeMS
		case "input-device":
			o.InputDevice = inputDevice
		case "transcriber-url":
			o.TranscriberURL = transcriberURL
		case "ipc-socket":
			o.IPCSocketPath = ipcSocketPath
		case "state-ws-port":
			o.StateWSPort = stateWSPort
		case "log-level":
			o.LogLevel = logLevelStr
		}
	})
	o.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	logLevel, err := parseLogLevel(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	logger := setupLogger(logLevel)

	chord, err := cfg.ToChord()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	procCfg := cfg.ToProcessorConfig()

	proc, err := NewProcessor(chord, procCfg, func(ev KeyEvent, action Action, state string) {
		if action != ActionNone {
			logger.Debug("processor",
				"state", state, "action", action.String(),
				"modifiers", ev.Modifiers.Names(), "key", KeyName(ev.Key))
		}
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	// Transcriber (optional)
	var transcriber Transcriber
	if cfg.Transcriber.URL != "" {
		token := ""
		if cfg.Transcriber.TokenFile != "" {
			b, err := os.ReadFile(ExpandPath(cfg.Transcriber.TokenFile))
			if err != nil {
				logger.Error("failed to read transcriber token file", "error", err)
				os.Exit(1)
			}
			token = strings.TrimSpace(string(b))
		}
		transcriber = NewHTTPTranscriber(
			cfg.Transcriber.URL,
			cfg.Transcriber.Language,
			token,
			time.Duration(cfg.Transcriber.TimeoutMS)*time.Millisecond,
		)
	}

	recorder := NewRecorder(RecorderConfig{
		SampleRate: cfg.Audio.SampleRate,
		Channels:   cfg.Audio.Channels,
		TempDir:    ExpandPath(cfg.Audio.TempDir),
	}, logger)

	pipe := NewPipeline(recorder, transcriber, PipelineConfig{
		MinimumKeyTime:  procCfg.MinimumKeyTime,
		CopyToClipboard: cfg.Transcriber.CopyToClipboard,
		CancelSound:     cfg.Feedback.CancelSound,
	}, logger)

	// Open input devices
	var files []*os.File
	for _, dev := range cfg.Input.Devices {
		f, err := os.Open(ExpandPath(dev))
		if err != nil {
			logger.Error("failed to open input device", "device", dev, "error", err,
				"tip", "run as root or add user to 'input' group")
			os.Exit(1)
		}
		defer f.Close()
		files = append(files, f)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	events := make(chan Event, 64)
	broadcasts := make(chan StateBroadcast, 128)

	wsServer := NewServer(logger, events, ServerConfig{})
	mux := http.NewServeMux()
	wsServer.Register(mux, "/ws")
	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.StateWS.Port),
		Handler: mux,
	}

	raw := make(chan inputEvent, 64)
	readErr := make(chan error, 1)
	startInputReaders(files, raw, readErr)

	logger.Info("listening",
		"hotkey", chord.String(),
		"double_tap_only", procCfg.UseDoubleTapOnly,
		"minimum_key_time_ms", procCfg.MinimumKeyTime.Milliseconds(),
		"devices", cfg.Input.Devices,
		"ipc", cfg.IPC.SocketPath,
		"state_ws_port", cfg.StateWS.Port,
		"transcriber", cfg.Transcriber.URL != "")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		runDaemon(ctx, events, proc, pipe, broadcasts, logger)
		return nil
	})

	g.Go(func() error {
		return runIPCServer(ctx, cfg.IPC.SocketPath, events, logger)
	})

	g.Go(func() error {
		wsServer.Hub().Run(ctx)
		return nil
	})

	g.Go(func() error {
		RunBroadcaster(ctx, wsServer.Hub(), broadcasts, logger)
		return nil
	})

	g.Go(func() error {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("state ws server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	// Raw input events are translated into key state snapshots here so the
	// daemon loop only ever sees the snapshot contract.
	g.Go(func() error {
		tracker := newKeyTracker()
		for {
			select {
			case <-ctx.Done():
				return nil
			case err := <-readErr:
				return fmt.Errorf("input reader: %w", err)
			case rev := <-raw:
				kev, ok := tracker.Translate(rev)
				if !ok {
					continue
				}
				select {
				case events <- kev:
				case <-ctx.Done():
					return nil
				}
			}
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("daemon exited", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}
