package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"
	"github.com/gordonklaus/portaudio"
)

// AudioRecorder captures microphone audio between Start and Stop/Cancel.
// The pipeline depends on this interface so tests can substitute a fake.
type AudioRecorder interface {
	Start(ctx context.Context) error
	Stop() (RecordResult, error)
	Cancel() (RecordResult, error)
}

// RecordResult is returned when a recording completes or is canceled.
type RecordResult struct {
	WavPath  string
	Canceled bool
	Err      error
}

// RecorderConfig holds audio capture settings.
type RecorderConfig struct {
	SampleRate int
	Channels   int
	TempDir    string
}

type recorderState int

const (
	recIdle recorderState = iota
	recRecording
	recStopping
	recCanceled
)

// Recorder streams PortAudio input into a temporary WAV file. One recording
// at a time; the processor guarantees Start is never issued while recording.
type Recorder struct {
	mu         sync.Mutex
	state      recorderState
	cfg        RecorderConfig
	logger     *slog.Logger
	stopCtx    context.Context
	stopCancel context.CancelFunc
	done       chan RecordResult
}

func NewRecorder(cfg RecorderConfig, logger *slog.Logger) *Recorder {
	return &Recorder{cfg: cfg, logger: logger, state: recIdle}
}

// Start begins capturing in a background goroutine.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.state != recIdle {
		r.mu.Unlock()
		return fmt.Errorf("recorder not idle")
	}
	r.state = recRecording
	r.done = make(chan RecordResult, 1)
	r.stopCtx, r.stopCancel = context.WithCancel(ctx)
	r.mu.Unlock()

	go r.recordLoop()
	return nil
}

// Stop requests a clean stop and waits for the WAV to be finalized.
func (r *Recorder) Stop() (RecordResult, error) {
	return r.end(recStopping)
}

// Cancel requests immediate stop; the temp file is removed.
func (r *Recorder) Cancel() (RecordResult, error) {
	return r.end(recCanceled)
}

func (r *Recorder) end(next recorderState) (RecordResult, error) {
	r.mu.Lock()
	if r.state != recRecording {
		r.mu.Unlock()
		return RecordResult{}, fmt.Errorf("recorder not running")
	}
	r.state = next
	cancel := r.stopCancel
	done := r.done
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	res := <-done
	return res, res.Err
}

func (r *Recorder) recordLoop() {
	wavPath := r.tempWavPath()
	r.logger.Debug("recording started", "wav", wavPath)

	if err := portaudio.Initialize(); err != nil {
		r.finish(RecordResult{Err: fmt.Errorf("portaudio init: %w", err)})
		return
	}
	defer portaudio.Terminate()

	in := make([]int16, 1024)
	stream, err := portaudio.OpenDefaultStream(r.cfg.Channels, 0, float64(r.cfg.SampleRate), len(in), in)
	if err != nil {
		r.finish(RecordResult{Err: fmt.Errorf("open stream: %w", err)})
		return
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		r.finish(RecordResult{Err: fmt.Errorf("start stream: %w", err)})
		return
	}

	file, err := os.Create(wavPath)
	if err != nil {
		_ = stream.Stop()
		_ = stream.Close()
		r.finish(RecordResult{Err: fmt.Errorf("create wav: %w", err)})
		return
	}

	enc := wav.NewEncoder(file, r.cfg.SampleRate, 16, r.cfg.Channels, 1)
	format := &audio.Format{NumChannels: r.cfg.Channels, SampleRate: r.cfg.SampleRate}
	intBuf := make([]int, len(in))

	for {
		select {
		case <-r.stopCtx.Done():
			goto done
		default:
		}

		if err := stream.Read(); err != nil {
			r.logger.Debug("stream read error", "error", err)
			continue
		}
		for i, v := range in {
			intBuf[i] = int(v)
		}
		buf := &audio.IntBuffer{Format: format, Data: intBuf, SourceBitDepth: 16}
		if err := enc.Write(buf); err != nil {
			_ = enc.Close()
			_ = file.Close()
			_ = stream.Stop()
			_ = stream.Close()
			_ = os.Remove(wavPath)
			r.finish(RecordResult{Err: fmt.Errorf("wav write: %w", err)})
			return
		}
	}

done:
	_ = stream.Stop()
	_ = stream.Close()

	if r.isCanceled() {
		_ = enc.Close()
		_ = file.Close()
		_ = os.Remove(wavPath)
		r.finish(RecordResult{Canceled: true})
		return
	}

	if err := enc.Close(); err != nil {
		_ = file.Close()
		_ = os.Remove(wavPath)
		r.finish(RecordResult{Err: fmt.Errorf("wav close: %w", err)})
		return
	}
	_ = file.Close()

	r.finish(RecordResult{WavPath: wavPath})
}

func (r *Recorder) finish(res RecordResult) {
	r.mu.Lock()
	r.state = recIdle
	r.mu.Unlock()
	r.done <- res
}

func (r *Recorder) isCanceled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == recCanceled
}

func (r *Recorder) tempWavPath() string {
	dir := r.cfg.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, fmt.Sprintf("hotkeyd_%s.wav", uuid.NewString()))
}
