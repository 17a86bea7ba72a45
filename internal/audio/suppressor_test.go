package audio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loudFrame() Frame {
	var f Frame
	for i := range f {
		f[i] = 20000
	}
	return f
}

func quietFrame() Frame {
	return Frame{}
}

func TestSilenceSuppressorSendsSpeechImmediately(t *testing.T) {
	s := NewSilenceSuppressor(MicrophonePreset())
	action := s.Process(loudFrame())
	assert.Equal(t, ActionSend, action.Kind)
	assert.True(t, s.IsSpeech())
}

func TestSilenceSuppressorHangoverKeepsSendingAfterSpeechStops(t *testing.T) {
	cfg := MicrophonePreset()
	cfg.SpeechHangover = 10 * time.Millisecond
	s := NewSilenceSuppressor(cfg)

	s.Process(loudFrame())
	action := s.Process(quietFrame())
	assert.Equal(t, ActionSend, action.Kind, "still within hangover window")
}

func TestSilenceSuppressorSuppressesAfterHangoverExpires(t *testing.T) {
	cfg := MicrophonePreset()
	cfg.SpeechHangover = 1 * time.Millisecond
	cfg.SilenceKeepaliveInterval = time.Hour // isolate the suppress path
	s := NewSilenceSuppressor(cfg)

	s.Process(loudFrame())
	time.Sleep(5 * time.Millisecond)

	action := s.Process(quietFrame())
	assert.Equal(t, ActionSuppress, action.Kind)
	assert.False(t, s.IsSpeech())
}

func TestSilenceSuppressorEmitsKeepalivesOnInterval(t *testing.T) {
	cfg := MicrophonePreset()
	cfg.SpeechHangover = 1 * time.Millisecond
	cfg.SilenceKeepaliveInterval = 1 * time.Millisecond
	s := NewSilenceSuppressor(cfg)

	s.Process(loudFrame())
	time.Sleep(5 * time.Millisecond)

	action := s.Process(quietFrame())
	require.Equal(t, ActionSendSilence, action.Kind)
	assert.Equal(t, Frame{}, action.Frame)
}

func TestSilenceSuppressorStatsAreMonotonic(t *testing.T) {
	s := NewSilenceSuppressor(SystemAudioPreset())
	var lastSent, lastSuppressed uint64
	for i := 0; i < 50; i++ {
		if i%5 == 0 {
			s.Process(loudFrame())
		} else {
			s.Process(quietFrame())
		}
		sent, suppressed := s.Stats()
		assert.GreaterOrEqual(t, sent, lastSent)
		assert.GreaterOrEqual(t, suppressed, lastSuppressed)
		lastSent, lastSuppressed = sent, suppressed
	}
}

func TestSilenceSuppressorResetReturnsToActive(t *testing.T) {
	cfg := MicrophonePreset()
	cfg.SpeechHangover = 1 * time.Millisecond
	cfg.SilenceKeepaliveInterval = time.Hour
	s := NewSilenceSuppressor(cfg)

	s.Process(loudFrame())
	time.Sleep(5 * time.Millisecond)
	s.Process(quietFrame())
	require.False(t, s.IsSpeech())

	s.Reset()
	assert.True(t, s.IsSpeech())
}
