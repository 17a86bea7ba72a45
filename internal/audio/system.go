package audio

import (
	"fmt"

	"github.com/fenwick-labs/sttcapture/internal/telemetry"
)

// sckForceSentinel, passed as deviceID, forces the ScreenCaptureKit backend
// instead of the audio-tap backend on platforms where both exist. It is
// not a real device identifier.
const sckForceSentinel = "sck"

// NewSystemSource opens a system-audio (loopback) capture source for the
// given output device id (empty for the default output device). Backend
// selection is a tagged dispatch, never an inheritance hierarchy: each
// platform file below implements the same source interface, and this
// function only picks which concrete type to construct.
func NewSystemSource(deviceID string, log *telemetry.Logger) (source, error) {
	return newSystemSource(deviceID, log)
}

// ListOutputDevices enumerates playback/output devices that can be used as
// a system-audio tap target.
func ListOutputDevices() ([]DeviceInfo, error) {
	return listOutputDevices()
}

func wrapSystemErr(backend string, err error) error {
	return fmt.Errorf("system audio (%s): %w", backend, err)
}
