package main

import "time"

// Decision is the outcome of the stop-time recording check.
type Decision int

const (
	// DecisionDiscardShortRecording: drop the audio without feedback.
	DecisionDiscardShortRecording Decision = iota
	// DecisionProceedToTranscription: the recording is long enough to keep.
	DecisionProceedToTranscription
)

func (d Decision) String() string {
	switch d {
	case DecisionDiscardShortRecording:
		return "discard_short_recording"
	case DecisionProceedToTranscription:
		return "proceed_to_transcription"
	default:
		return "decision_unknown"
	}
}

// Decide is the second gate on a stopped recording: the processor can emit a
// clean StopRecording for sessions that are still too short to transcribe
// (double-tap lock exits in particular). Sessions that never saw a printable
// key get the fixed modifier-only floor on top of the user minimum.
func Decide(elapsed time.Duration, includesPrintableKey bool, minimumKeyTime time.Duration) Decision {
	effective := minimumKeyTime
	if !includesPrintableKey && modifierOnlyMinimumDuration > effective {
		effective = modifierOnlyMinimumDuration
	}
	if elapsed < effective {
		return DecisionDiscardShortRecording
	}
	return DecisionProceedToTranscription
}
