package audio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpeechIndicatorStartsIdle(t *testing.T) {
	v := NewSpeechIndicator()
	assert.Equal(t, SpeechIdle, v.Current())
	assert.False(t, v.IsSpeech())
}

func TestSpeechIndicatorGoesActiveAboveStartThreshold(t *testing.T) {
	v := NewSpeechIndicator()
	state := v.Update(loudFrame())
	assert.Equal(t, SpeechActive, state)
	assert.True(t, v.IsSpeech())
}

func TestSpeechIndicatorHangoverBeforeIdle(t *testing.T) {
	v := NewSpeechIndicator()
	v.Update(loudFrame())
	state := v.Update(quietFrame())
	require.Equal(t, SpeechHangover, state)
	assert.True(t, v.IsSpeech(), "hangover still counts as speech")
}

func TestSpeechIndicatorReturnsToIdleAfterHangoverExpires(t *testing.T) {
	v := NewSpeechIndicator()
	v.Update(loudFrame())
	v.Update(quietFrame())
	v.hangoverStarted = time.Now().Add(-(vadHangoverDur + time.Millisecond))

	state := v.Update(quietFrame())
	assert.Equal(t, SpeechIdle, state)
}

func TestSpeechIndicatorResumesActiveDuringHangover(t *testing.T) {
	v := NewSpeechIndicator()
	v.Update(loudFrame())
	v.Update(quietFrame())

	state := v.Update(loudFrame())
	assert.Equal(t, SpeechActive, state)
}

func TestSpeechIndicatorReset(t *testing.T) {
	v := NewSpeechIndicator()
	v.Update(loudFrame())
	v.Reset()
	assert.Equal(t, SpeechIdle, v.Current())
}
