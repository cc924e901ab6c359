package main

import (
	"context"
	"log/slog"
	"time"
)

// ============================================================================
// Central Daemon Loop
// ============================================================================
//
// Design rules enforced here:
//   - The processor performs no I/O; it only classifies events into actions.
//   - The daemon loop is the only goroutine that touches the processor and
//     the pipeline, so neither needs locking.
//   - Snapshot requests flow through the loop instead of exposing state.
//   - Events without a timestamp (synthetic IPC events) are stamped here.
//
// ============================================================================

// runDaemon consumes events until ctx is canceled or the events channel is
// closed, executing processor actions against the pipeline and fanning
// broadcasts out to observers.
func runDaemon(
	ctx context.Context,
	events <-chan Event,
	proc *Processor,
	pipe *Pipeline,
	broadcasts chan<- StateBroadcast,
	logger *slog.Logger,
) {
	emit := func(b StateBroadcast) {
		select {
		case broadcasts <- b:
		default:
			logger.Warn("broadcast queue full, dropping", "broadcast", b)
		}
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("daemon stopping (context canceled)")
			pipe.Abort("shutdown", emit)
			return

		case ev, ok := <-events:
			if !ok {
				logger.Info("daemon stopping (events channel closed)")
				pipe.Abort("shutdown", emit)
				return
			}

			switch e := ev.(type) {
			case KeyEvent:
				if e.At.IsZero() {
					e.At = time.Now()
				}
				// Session bookkeeping happens before classification so the
				// terminating event itself still counts toward the session.
				pipe.Observe(e)

				action := proc.ProcessEvent(e)
				if action == ActionNone {
					continue
				}
				logger.Debug("action",
					"action", action.String(),
					"state", proc.StateName(),
					"modifiers", e.Modifiers.Names(),
					"key", KeyName(e.Key))
				pipe.Apply(ctx, action, e, emit)
				emit(BroadcastStateChanged{State: proc.StateName(), Action: action.String(), At: e.At})

			case ConfigureRequest:
				// The processor resets to idle without a synthetic stop; the
				// daemon owns the consumer, so it drops any in-flight
				// recording silently first.
				pipe.Abort("reconfigured", emit)
				if err := proc.Configure(e.Chord, e.Config); err != nil {
					logger.Error("reconfigure rejected", "error", err)
					continue
				}
				pipe.SetMinimumKeyTime(e.Config.MinimumKeyTime)
				logger.Info("hotkey reconfigured",
					"hotkey", e.Chord.String(),
					"double_tap_only", e.Config.UseDoubleTapOnly,
					"minimum_key_time_ms", e.Config.MinimumKeyTime.Milliseconds())
				emit(BroadcastStateChanged{State: proc.StateName(), Action: "configured", At: time.Now()})

			case RequestStateSnapshot:
				snap := StateSnapshot{
					State:            proc.StateName(),
					Dirty:            proc.Dirty(),
					Hotkey:           proc.Chord().String(),
					UseDoubleTapOnly: proc.Config().UseDoubleTapOnly,
					Recording:        pipe.Recording(),
					SessionID:        pipe.CurrentSessionID(),
					At:               time.Now(),
				}
				select {
				case e.Reply <- snap:
				default:
					logger.Warn("snapshot reply channel not ready, dropping")
				}

			default:
				logger.Warn("unknown event type", "event", ev)
			}
		}
	}
}
