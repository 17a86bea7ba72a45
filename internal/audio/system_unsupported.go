//go:build !darwin && !windows

package audio

import (
	"fmt"

	"github.com/fenwick-labs/sttcapture/internal/telemetry"
)

func newSystemSource(deviceID string, log *telemetry.Logger) (source, error) {
	return nil, fmt.Errorf("system audio capture is not supported on this platform")
}

func listOutputDevices() ([]DeviceInfo, error) {
	return nil, nil
}
