//go:build windows

package audio

import (
	"encoding/hex"
	"fmt"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/fenwick-labs/sttcapture/internal/telemetry"
	"github.com/fenwick-labs/sttcapture/pkg/ringbuf"
)

// loopbackSource captures the default (or named) playback device's output
// via miniaudio's native WASAPI loopback device type. Unlike macOS, no
// aggregate-device composition is needed: the backend exposes loopback as
// a first-class device, so this is the simplest of the system-audio
// backends.
type loopbackSource struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device

	deviceRate     uint32
	deviceChannels uint32
	deviceFormat   malgo.FormatType

	producer *ringbuf.Producer
	consumer *ringbuf.Consumer

	running atomic.Bool
	log     *telemetry.Logger
}

const sysRingCapacity = 32768

func newSystemSource(deviceID string, log *telemetry.Logger) (source, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, wrapSystemErr("wasapi-loopback", fmt.Errorf("init audio context: %w", err))
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Loopback)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.PeriodSizeInMilliseconds = 20

	if deviceID != "" {
		id, err := resolveDeviceID(ctx, malgo.Playback, deviceID)
		if err != nil {
			ctx.Uninit() //nolint:errcheck
			ctx.Free()
			return nil, wrapSystemErr("wasapi-loopback", err)
		}
		deviceConfig.Capture.DeviceID = id
	}

	probe, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{})
	if err != nil {
		ctx.Uninit() //nolint:errcheck
		ctx.Free()
		return nil, wrapSystemErr("wasapi-loopback", fmt.Errorf("probe loopback device: %w", err))
	}

	l := &loopbackSource{ctx: ctx, log: log}
	l.deviceRate = probe.SampleRate()
	l.deviceChannels = deviceConfig.Capture.Channels
	if l.deviceChannels == 0 {
		l.deviceChannels = 2
	}
	l.deviceFormat = deviceConfig.Capture.Format
	probe.Uninit()

	producer, consumer := ringbuf.New(sysRingCapacity)
	l.producer = producer
	l.consumer = consumer

	onRecvFrames := func(_, input []byte, frameCount uint32) {
		if !l.running.Load() || len(input) == 0 {
			return
		}
		downmixToRing(l.producer, input, l.deviceFormat, l.deviceChannels)
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onRecvFrames})
	if err != nil {
		ctx.Uninit() //nolint:errcheck
		ctx.Free()
		return nil, wrapSystemErr("wasapi-loopback", fmt.Errorf("init loopback device: %w", err))
	}
	l.device = device

	return l, nil
}

func (l *loopbackSource) SampleRate() uint32              { return l.deviceRate }
func (l *loopbackSource) TakeConsumer() *ringbuf.Consumer { return l.consumer }
func (l *loopbackSource) Producer() *ringbuf.Producer     { return l.producer }

func (l *loopbackSource) Play() error {
	if l.running.Load() {
		return nil
	}
	if err := l.device.Start(); err != nil {
		return wrapSystemErr("wasapi-loopback", fmt.Errorf("start loopback device: %w", err))
	}
	l.running.Store(true)
	return nil
}

func (l *loopbackSource) Close() error {
	l.running.Store(false)
	if l.device != nil {
		l.device.Stop() //nolint:errcheck
		l.device.Uninit()
		l.device = nil
	}
	if l.ctx != nil {
		if err := l.ctx.Uninit(); err != nil {
			return wrapSystemErr("wasapi-loopback", fmt.Errorf("uninit context: %w", err))
		}
		l.ctx.Free()
		l.ctx = nil
	}
	return nil
}

func listOutputDevices() ([]DeviceInfo, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, wrapSystemErr("wasapi-loopback", fmt.Errorf("init audio context: %w", err))
	}
	defer func() {
		ctx.Uninit() //nolint:errcheck
		ctx.Free()
	}()

	infos, err := ctx.Devices(malgo.Playback)
	if err != nil {
		return nil, wrapSystemErr("wasapi-loopback", fmt.Errorf("enumerate playback devices: %w", err))
	}

	out := make([]DeviceInfo, len(infos))
	for i, info := range infos {
		out[i] = DeviceInfo{ID: hex.EncodeToString(info.ID[:]), Name: info.Name()}
	}
	return out, nil
}
