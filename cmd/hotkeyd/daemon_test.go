package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// mockRecorder is a test double for AudioRecorder.
type mockRecorder struct {
	mu          sync.Mutex
	startCalls  int
	stopCalls   int
	cancelCalls int
	wavPath     string
	startErr    error
}

func (m *mockRecorder) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startCalls++
	return m.startErr
}

func (m *mockRecorder) Stop() (RecordResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopCalls++
	return RecordResult{WavPath: m.wavPath}, nil
}

func (m *mockRecorder) Cancel() (RecordResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelCalls++
	return RecordResult{Canceled: true}, nil
}

func (m *mockRecorder) counts() (start, stop, cancel int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startCalls, m.stopCalls, m.cancelCalls
}

// mockTranscriber is a test double for Transcriber.
type mockTranscriber struct {
	mu    sync.Mutex
	paths []string
	text  string
	err   error
}

func (m *mockTranscriber) Transcribe(ctx context.Context, wavPath string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paths = append(m.paths, wavPath)
	return m.text, m.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type daemonHarness struct {
	events     chan Event
	broadcasts chan StateBroadcast
	recorder   *mockRecorder
	pipe       *Pipeline
	cancel     context.CancelFunc
	done       chan struct{}
}

// startDaemon wires a real processor + pipeline to runDaemon with mocked
// effects. Beep and clipboard are stubbed out.
func startDaemon(t *testing.T, chord HotkeyDefinition, doubleTap bool, rec *mockRecorder, tr Transcriber) *daemonHarness {
	t.Helper()

	cfg := DefaultProcessorConfig()
	cfg.UseDoubleTapOnly = doubleTap
	proc, err := NewProcessor(chord, cfg, nil)
	if err != nil {
		t.Fatalf("NewProcessor failed: %v", err)
	}

	pipe := NewPipeline(rec, tr, PipelineConfig{
		MinimumKeyTime:  cfg.MinimumKeyTime,
		CopyToClipboard: false,
		CancelSound:     false,
	}, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	h := &daemonHarness{
		events:     make(chan Event, 16),
		broadcasts: make(chan StateBroadcast, 32),
		recorder:   rec,
		pipe:       pipe,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	go func() {
		defer close(h.done)
		runDaemon(ctx, h.events, proc, pipe, h.broadcasts, quietLogger())
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-h.done:
		case <-time.After(time.Second):
			t.Error("daemon did not stop in time")
		}
	})
	return h
}

func (h *daemonHarness) recv(t *testing.T) StateBroadcast {
	t.Helper()
	select {
	case b := <-h.broadcasts:
		return b
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for broadcast")
		return nil
	}
}

// TestDaemon_HoldStopAndTranscribe: a full hold produces started, stopped,
// and transcript broadcasts, and the temp wav is cleaned up.
func TestDaemon_HoldStopAndTranscribe(t *testing.T) {
	wav := filepath.Join(t.TempDir(), "rec.wav")
	if err := os.WriteFile(wav, []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}

	rec := &mockRecorder{wavPath: wav}
	tr := &mockTranscriber{text: "hello world"}
	h := startDaemon(t, ctrlAltChord(), false, rec, tr)

	h.events <- keyEv(0, ModCtrl|ModAlt, KeyNone)
	started, ok := h.recv(t).(BroadcastRecordingStarted)
	if !ok {
		t.Fatal("expected recording_started first")
	}
	if _, ok := h.recv(t).(BroadcastStateChanged); !ok {
		t.Fatal("expected state_changed after start")
	}

	h.events <- keyEv(2*time.Second, 0, KeyNone)
	stopped, ok := h.recv(t).(BroadcastRecordingStopped)
	if !ok {
		t.Fatal("expected recording_stopped")
	}
	if stopped.SessionID != started.SessionID {
		t.Errorf("session id mismatch: %s vs %s", stopped.SessionID, started.SessionID)
	}
	if stopped.WavPath != "" {
		t.Error("wav path must not be exposed when a transcriber is configured")
	}
	if stopped.Elapsed != 2*time.Second {
		t.Errorf("expected 2s elapsed, got %v", stopped.Elapsed)
	}
	// Transcription runs async, so its broadcast may arrive before or after
	// the daemon's state_changed.
	var tb BroadcastTranscript
	gotTranscript := false
	for i := 0; i < 2; i++ {
		switch b := h.recv(t).(type) {
		case BroadcastStateChanged:
		case BroadcastTranscript:
			tb = b
			gotTranscript = true
		default:
			t.Fatalf("unexpected broadcast %T", b)
		}
	}
	if !gotTranscript {
		t.Fatal("expected transcript broadcast")
	}
	if tb.Text != "hello world" || tb.SessionID != started.SessionID {
		t.Errorf("unexpected transcript broadcast: %+v", tb)
	}

	waitUntil(t, time.Second, func() bool {
		_, err := os.Stat(wav)
		return os.IsNotExist(err)
	}, "temp wav should be removed after transcription")

	start, stop, cancel := rec.counts()
	if start != 1 || stop != 1 || cancel != 0 {
		t.Errorf("unexpected recorder calls: start=%d stop=%d cancel=%d", start, stop, cancel)
	}
}

// TestDaemon_NoTranscriberExposesWav: without a transcriber the stop
// broadcast carries the wav path and the file stays.
func TestDaemon_NoTranscriberExposesWav(t *testing.T) {
	wav := filepath.Join(t.TempDir(), "rec.wav")
	if err := os.WriteFile(wav, []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}

	rec := &mockRecorder{wavPath: wav}
	h := startDaemon(t, ctrlAltChord(), false, rec, nil)

	h.events <- keyEv(0, ModCtrl|ModAlt, KeyNone)
	h.recv(t) // started
	h.recv(t) // state_changed

	h.events <- keyEv(time.Second, 0, KeyNone)
	stopped, ok := h.recv(t).(BroadcastRecordingStopped)
	if !ok {
		t.Fatal("expected recording_stopped")
	}
	if stopped.WavPath != wav {
		t.Errorf("expected wav path %q, got %q", wav, stopped.WavPath)
	}
	if _, err := os.Stat(wav); err != nil {
		t.Errorf("wav must be kept when no transcriber is configured: %v", err)
	}
}

// TestDaemon_ShortHoldDiscards: a 100ms modifier-only hold discards without
// any transcription.
func TestDaemon_ShortHoldDiscards(t *testing.T) {
	rec := &mockRecorder{}
	tr := &mockTranscriber{text: "should never appear"}
	h := startDaemon(t, ctrlAltChord(), false, rec, tr)

	h.events <- keyEv(0, ModCtrl|ModAlt, KeyNone)
	h.recv(t) // started
	h.recv(t) // state_changed

	h.events <- keyEv(100*time.Millisecond, 0, KeyNone)
	d, ok := h.recv(t).(BroadcastRecordingDiscarded)
	if !ok {
		t.Fatal("expected recording_discarded")
	}
	if d.Reason != "short_hold" {
		t.Errorf("expected short_hold reason, got %q", d.Reason)
	}

	_, _, cancel := rec.counts()
	if cancel != 1 {
		t.Errorf("expected 1 recorder cancel, got %d", cancel)
	}
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if len(tr.paths) != 0 {
		t.Errorf("discarded recording must not be transcribed, got %v", tr.paths)
	}
}

// TestDaemon_KeyedChordShortHoldTranscribes: a keyed chord held between the
// minimum key time and the modifier-only floor is a printable-key session,
// so the stop-time check must let it through even when nothing else was
// typed during the hold.
func TestDaemon_KeyedChordShortHoldTranscribes(t *testing.T) {
	wav := filepath.Join(t.TempDir(), "rec.wav")
	if err := os.WriteFile(wav, []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}

	rec := &mockRecorder{wavPath: wav}
	tr := &mockTranscriber{text: "quick dictation"}
	h := startDaemon(t, ctrlSpaceChord(), false, rec, tr)

	h.events <- keyEv(0, ModCtrl, KeySpace)
	h.recv(t) // started
	h.recv(t) // state_changed

	// Release the key at 250ms: past the 200ms minimum, under the 300ms
	// modifier-only floor. The floor must not apply here.
	h.events <- keyEv(250*time.Millisecond, ModCtrl, KeyNone)
	stopped, ok := h.recv(t).(BroadcastRecordingStopped)
	if !ok {
		t.Fatal("expected recording_stopped, not a discard")
	}
	if stopped.Elapsed != 250*time.Millisecond {
		t.Errorf("expected 250ms elapsed, got %v", stopped.Elapsed)
	}

	var tb BroadcastTranscript
	gotTranscript := false
	for i := 0; i < 2; i++ {
		switch b := h.recv(t).(type) {
		case BroadcastStateChanged:
		case BroadcastTranscript:
			tb = b
			gotTranscript = true
		default:
			t.Fatalf("unexpected broadcast %T", b)
		}
	}
	if !gotTranscript {
		t.Fatal("expected transcript broadcast")
	}
	if tb.Text != "quick dictation" {
		t.Errorf("unexpected transcript: %+v", tb)
	}
}

// TestPipeline_StartingChordKeyMarksPrintable: the snapshot that starts the
// session already carries the chord key, and it alone decides printable.
func TestPipeline_StartingChordKeyMarksPrintable(t *testing.T) {
	rec := &mockRecorder{}
	pipe := NewPipeline(rec, nil, PipelineConfig{MinimumKeyTime: defaultMinimumKeyTime}, quietLogger())

	emit := func(StateBroadcast) {}
	pipe.Apply(context.Background(), ActionStartRecording, keyEv(0, ModCtrl, KeySpace), emit)
	if pipe.current == nil || !pipe.current.SawPrintableKey {
		t.Fatal("starting snapshot with a chord key must mark the session printable")
	}

	pipe2 := NewPipeline(rec, nil, PipelineConfig{MinimumKeyTime: defaultMinimumKeyTime}, quietLogger())
	pipe2.Apply(context.Background(), ActionStartRecording, keyEv(0, ModCtrl|ModAlt, KeyNone), emit)
	if pipe2.current == nil || pipe2.current.SawPrintableKey {
		t.Fatal("modifier-only start must not mark the session printable")
	}
}

// TestDaemon_LockExitBelowMinimumDiscards: the processor's clean stop on a
// quick double-tap lock exit is still discarded by the stop-time check, and
// the wav is removed.
func TestDaemon_LockExitBelowMinimumDiscards(t *testing.T) {
	wav := filepath.Join(t.TempDir(), "rec.wav")
	if err := os.WriteFile(wav, []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}

	rec := &mockRecorder{wavPath: wav}
	tr := &mockTranscriber{text: "nope"}
	h := startDaemon(t, ctrlAltChord(), true, rec, tr)

	// Double tap into the lock.
	h.events <- keyEv(0, ModCtrl|ModAlt, KeyNone)
	h.events <- keyEv(50*time.Millisecond, 0, KeyNone)
	h.events <- keyEv(200*time.Millisecond, ModCtrl|ModAlt, KeyNone)
	h.recv(t) // started
	h.recv(t) // state_changed
	h.events <- keyEv(250*time.Millisecond, 0, KeyNone)

	// Immediate re-tap exit: session is only 90ms long.
	h.events <- keyEv(280*time.Millisecond, ModCtrl|ModAlt, KeyNone)
	h.events <- keyEv(290*time.Millisecond, 0, KeyNone)

	d, ok := h.recv(t).(BroadcastRecordingDiscarded)
	if !ok {
		t.Fatal("expected recording_discarded")
	}
	if d.Reason != "below_minimum" {
		t.Errorf("expected below_minimum reason, got %q", d.Reason)
	}

	waitUntil(t, time.Second, func() bool {
		_, err := os.Stat(wav)
		return os.IsNotExist(err)
	}, "below-minimum wav should be removed")

	tr.mu.Lock()
	defer tr.mu.Unlock()
	if len(tr.paths) != 0 {
		t.Errorf("below-minimum recording must not be transcribed, got %v", tr.paths)
	}
}

// TestDaemon_EscapeCancels: ESC cancels the recording and triggers the
// cancel feedback hook.
func TestDaemon_EscapeCancels(t *testing.T) {
	rec := &mockRecorder{}
	h := startDaemon(t, ctrlAltChord(), false, rec, nil)

	beeps := 0
	h.pipe.cfg.CancelSound = true
	h.pipe.cancelBeep = func() error { beeps++; return nil }

	h.events <- keyEv(0, ModCtrl|ModAlt, KeyNone)
	h.recv(t) // started
	h.recv(t) // state_changed

	h.events <- keyEv(600*time.Millisecond, ModCtrl|ModAlt, KeyEscape)
	if _, ok := h.recv(t).(BroadcastRecordingCanceled); !ok {
		t.Fatal("expected recording_canceled")
	}

	_, _, cancel := rec.counts()
	if cancel != 1 {
		t.Errorf("expected 1 recorder cancel, got %d", cancel)
	}
	if beeps != 1 {
		t.Errorf("expected 1 cancel beep, got %d", beeps)
	}
}

// TestDaemon_TranscriptFailure: a failing upload produces transcript_failed.
func TestDaemon_TranscriptFailure(t *testing.T) {
	rec := &mockRecorder{wavPath: filepath.Join(t.TempDir(), "missing.wav")}
	tr := &mockTranscriber{err: os.ErrDeadlineExceeded}
	h := startDaemon(t, ctrlAltChord(), false, rec, tr)

	h.events <- keyEv(0, ModCtrl|ModAlt, KeyNone)
	h.recv(t) // started
	h.recv(t) // state_changed
	h.events <- keyEv(time.Second, 0, KeyNone)
	h.recv(t) // stopped

	// The failure broadcast may arrive before or after state_changed.
	var f BroadcastTranscriptFailed
	gotFailed := false
	for i := 0; i < 2; i++ {
		switch b := h.recv(t).(type) {
		case BroadcastStateChanged:
		case BroadcastTranscriptFailed:
			f = b
			gotFailed = true
		default:
			t.Fatalf("unexpected broadcast %T", b)
		}
	}
	if !gotFailed {
		t.Fatal("expected transcript_failed")
	}
	if f.Error == "" {
		t.Error("expected error text in broadcast")
	}
}

// TestDaemon_ReconfigureAbortsInFlight: a configure request drops the
// in-flight recording silently and the new chord takes effect.
func TestDaemon_ReconfigureAbortsInFlight(t *testing.T) {
	rec := &mockRecorder{}
	h := startDaemon(t, ctrlAltChord(), false, rec, nil)

	h.events <- keyEv(0, ModCtrl|ModAlt, KeyNone)
	h.recv(t) // started
	h.recv(t) // state_changed

	h.events <- ConfigureRequest{Chord: ctrlSpaceChord(), Config: DefaultProcessorConfig()}
	d, ok := h.recv(t).(BroadcastRecordingDiscarded)
	if !ok {
		t.Fatal("expected recording_discarded on reconfigure")
	}
	if d.Reason != "reconfigured" {
		t.Errorf("expected reconfigured reason, got %q", d.Reason)
	}
	sc, ok := h.recv(t).(BroadcastStateChanged)
	if !ok || sc.Action != "configured" {
		t.Fatalf("expected configured state_changed, got %#v", sc)
	}

	// The old chord no longer arms; the new one does.
	h.events <- keyEv(5*time.Second, ModCtrl|ModAlt, KeyNone)
	h.events <- keyEv(5100*time.Millisecond, 0, KeyNone)
	h.events <- keyEv(6*time.Second, ModCtrl, KeySpace)
	if _, ok := h.recv(t).(BroadcastRecordingStarted); !ok {
		t.Fatal("expected recording_started on the new chord")
	}
}

// TestDaemon_InvalidReconfigureKeepsChord: a rejected configure leaves the
// active chord working.
func TestDaemon_InvalidReconfigureKeepsChord(t *testing.T) {
	rec := &mockRecorder{}
	h := startDaemon(t, ctrlAltChord(), false, rec, nil)

	h.events <- ConfigureRequest{Chord: HotkeyDefinition{}, Config: DefaultProcessorConfig()}

	h.events <- keyEv(time.Second, ModCtrl|ModAlt, KeyNone)
	if _, ok := h.recv(t).(BroadcastRecordingStarted); !ok {
		t.Fatal("expected the original chord to still arm")
	}
}

// TestDaemon_SnapshotRequest: snapshot requests reflect live state.
func TestDaemon_SnapshotRequest(t *testing.T) {
	rec := &mockRecorder{}
	h := startDaemon(t, ctrlAltChord(), false, rec, nil)

	reply := make(chan StateSnapshot, 1)
	h.events <- RequestStateSnapshot{Reply: reply}
	snap := <-reply
	if snap.State != "idle" || snap.Recording || snap.Hotkey != "ctrl+alt" {
		t.Errorf("unexpected idle snapshot: %+v", snap)
	}

	h.events <- keyEv(0, ModCtrl|ModAlt, KeyNone)
	h.recv(t) // started
	h.recv(t) // state_changed

	reply2 := make(chan StateSnapshot, 1)
	h.events <- RequestStateSnapshot{Reply: reply2}
	snap = <-reply2
	if snap.State != "press_and_hold" || !snap.Recording || snap.SessionID == "" {
		t.Errorf("unexpected recording snapshot: %+v", snap)
	}
}

// TestDaemon_ShutdownAbortsRecording: canceling the daemon context drops an
// in-flight recording.
func TestDaemon_ShutdownAbortsRecording(t *testing.T) {
	rec := &mockRecorder{}
	h := startDaemon(t, ctrlAltChord(), false, rec, nil)

	h.events <- keyEv(0, ModCtrl|ModAlt, KeyNone)
	h.recv(t) // started
	h.recv(t) // state_changed

	h.cancel()
	select {
	case <-h.done:
	case <-time.After(time.Second):
		t.Fatal("daemon did not stop")
	}

	_, _, cancel := rec.counts()
	if cancel != 1 {
		t.Errorf("expected in-flight recording to be aborted on shutdown, cancel=%d", cancel)
	}
}

// TestPipeline_ClipboardCopy: successful transcripts land on the clipboard
// when enabled.
func TestPipeline_ClipboardCopy(t *testing.T) {
	rec := &mockRecorder{}
	tr := &mockTranscriber{text: "copied text"}
	pipe := NewPipeline(rec, tr, PipelineConfig{
		MinimumKeyTime:  defaultMinimumKeyTime,
		CopyToClipboard: true,
	}, quietLogger())

	var mu sync.Mutex
	var copied string
	pipe.copyText = func(s string) error {
		mu.Lock()
		defer mu.Unlock()
		copied = s
		return nil
	}

	var emitted []StateBroadcast
	var emitMu sync.Mutex
	emit := func(b StateBroadcast) {
		emitMu.Lock()
		defer emitMu.Unlock()
		emitted = append(emitted, b)
	}

	ctx := context.Background()
	pipe.Apply(ctx, ActionStartRecording, keyEv(0, ModCtrl|ModAlt, KeyNone), emit)
	pipe.Apply(ctx, ActionStopRecording, keyEv(time.Second, 0, KeyNone), emit)

	waitUntil(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return copied == "copied text"
	}, "transcript should be copied to the clipboard")
}

// TestPipeline_StartWhileRecordingIgnored: a second start is a no-op.
func TestPipeline_StartWhileRecordingIgnored(t *testing.T) {
	rec := &mockRecorder{}
	pipe := NewPipeline(rec, nil, PipelineConfig{MinimumKeyTime: defaultMinimumKeyTime}, quietLogger())

	emit := func(StateBroadcast) {}
	ctx := context.Background()

	pipe.Apply(ctx, ActionStartRecording, keyEv(0, ModCtrl|ModAlt, KeyNone), emit)
	first := pipe.CurrentSessionID()
	pipe.Apply(ctx, ActionStartRecording, keyEv(time.Second, ModCtrl|ModAlt, KeyNone), emit)

	start, _, _ := rec.counts()
	if start != 1 {
		t.Errorf("expected 1 recorder start, got %d", start)
	}
	if pipe.CurrentSessionID() != first {
		t.Error("second start must not replace the session")
	}
}
