package audio

import (
	"math"
	"time"
)

// SuppressionConfig tunes how aggressively the suppressor gates silence.
// Speech is always checked first and sent immediately regardless of these
// values; they only affect what happens once speech has stopped.
type SuppressionConfig struct {
	// SpeechThresholdRMS is the i16-scale RMS above which a frame counts
	// as speech.
	SpeechThresholdRMS float32

	// SpeechHangover is how long to keep sending full frames after the
	// last speech frame, before switching to keepalives. This never
	// delays speech onset, only postpones the switch to silence.
	SpeechHangover time.Duration

	// SilenceKeepaliveInterval is how often a SendSilence frame is
	// emitted once suppressed, so the sink's stream never stalls.
	SilenceKeepaliveInterval time.Duration
}

// MicrophonePreset is tuned for close-talk microphone levels.
func MicrophonePreset() SuppressionConfig {
	return SuppressionConfig{
		SpeechThresholdRMS:       100.0,
		SpeechHangover:           200 * time.Millisecond,
		SilenceKeepaliveInterval: 100 * time.Millisecond,
	}
}

// SystemAudioPreset is more permissive: system audio loopback is typically
// much quieter than a microphone at comparable playback volume.
func SystemAudioPreset() SuppressionConfig {
	return SuppressionConfig{
		SpeechThresholdRMS:       30.0,
		SpeechHangover:           300 * time.Millisecond,
		SilenceKeepaliveInterval: 100 * time.Millisecond,
	}
}

type suppressionState int

const (
	stateActive suppressionState = iota
	stateHangover
	stateSuppressed
)

// FrameActionKind classifies what the suppressor decided to do with a frame.
type FrameActionKind int

const (
	// ActionSend delivers the frame unchanged.
	ActionSend FrameActionKind = iota
	// ActionSendSilence replaces the frame with an all-zero keepalive.
	ActionSendSilence
	// ActionSuppress drops the frame; timing is maintained by keepalives.
	ActionSuppress
)

// FrameAction is the suppressor's verdict for one frame.
type FrameAction struct {
	Kind  FrameActionKind
	Frame Frame
}

// SilenceSuppressor gates 20ms frames into Send/SendSilence/Suppress
// decisions so a continuous-stream sink never sees a gap, while most
// silent audio is never transmitted. Speech is evaluated before anything
// else in Process, so it is never delayed by the state machine.
type SilenceSuppressor struct {
	cfg SuppressionConfig

	state             suppressionState
	lastSpeechTime    time.Time
	lastKeepaliveTime time.Time

	framesSent       uint64
	framesSuppressed uint64
}

// NewSilenceSuppressor creates a suppressor starting in the Active state
// with the last-speech time set to now, so frames arriving within
// SpeechHangover of construction are sent even when they are below the
// speech threshold.
func NewSilenceSuppressor(cfg SuppressionConfig) *SilenceSuppressor {
	now := time.Now()
	return &SilenceSuppressor{
		cfg:               cfg,
		state:             stateActive,
		lastSpeechTime:    now,
		lastKeepaliveTime: now,
	}
}

// Process decides what to do with one frame and updates internal state.
func (s *SilenceSuppressor) Process(frame Frame) FrameAction {
	now := time.Now()
	rms := frameRMS(frame)

	if rms >= s.cfg.SpeechThresholdRMS {
		s.state = stateActive
		s.lastSpeechTime = now
		s.framesSent++
		return FrameAction{Kind: ActionSend, Frame: frame}
	}

	switch s.state {
	case stateActive, stateHangover:
		if now.Sub(s.lastSpeechTime) > s.cfg.SpeechHangover {
			s.state = stateSuppressed
		} else {
			s.state = stateHangover
			s.framesSent++
			return FrameAction{Kind: ActionSend, Frame: frame}
		}
	case stateSuppressed:
		// already suppressed
	}

	if now.Sub(s.lastKeepaliveTime) >= s.cfg.SilenceKeepaliveInterval {
		s.lastKeepaliveTime = now
		s.framesSent++
		return FrameAction{Kind: ActionSendSilence}
	}

	s.framesSuppressed++
	return FrameAction{Kind: ActionSuppress}
}

// Stats returns the cumulative count of frames sent (Send or SendSilence)
// and suppressed. Both counters are monotonically non-decreasing for the
// lifetime of the suppressor.
func (s *SilenceSuppressor) Stats() (sent, suppressed uint64) {
	return s.framesSent, s.framesSuppressed
}

// IsSpeech reports whether the suppressor currently considers the stream
// to be carrying speech (Active or within hangover of the last speech
// frame).
func (s *SilenceSuppressor) IsSpeech() bool {
	return s.state == stateActive || s.state == stateHangover
}

// Reset returns the suppressor to its just-created state, e.g. when a
// session restarts after being idle.
func (s *SilenceSuppressor) Reset() {
	now := time.Now()
	s.state = stateActive
	s.lastSpeechTime = now
	s.lastKeepaliveTime = now
}

// frameRMS computes the root-mean-square level of a frame, sampling every
// 4th value: 80 samples out of 320 is plenty of signal for a speech/silence
// decision and keeps this off the critical path even on slow hardware.
func frameRMS(frame Frame) float32 {
	var sumSquares float64
	count := 0
	for i := 0; i < len(frame); i += 4 {
		v := float64(frame[i])
		sumSquares += v * v
		count++
	}
	if count == 0 {
		return 0
	}
	return float32(math.Sqrt(sumSquares / float64(count)))
}
