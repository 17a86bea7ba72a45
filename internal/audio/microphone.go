package audio

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/fenwick-labs/sttcapture/pkg/ringbuf"
)

// MicrophoneSource captures mono float32 audio from an input device and
// pushes it into a ring buffer. The malgo data callback (producer side)
// never waits on the consumer; it takes its scratch buffer from monoPool
// and allocates only when the pool has no free buffer or a callback
// delivers more frames than the pooled buffer holds. Format conversion
// happens inline against the format and channel count recorded when the
// source is created.
type MicrophoneSource struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device

	deviceRate     uint32
	deviceChannels uint32
	deviceFormat   malgo.FormatType

	producer *ringbuf.Producer
	consumer *ringbuf.Consumer

	running atomic.Bool
}

// micRingCapacity is sized for a little over half a second at 48kHz so a
// momentary DSP stall doesn't immediately start dropping samples.
const micRingCapacity = 32768

// NewMicrophoneSource opens the named input device (empty string for the
// system default) and prepares, but does not start, capture. Following the
// teacher's pattern of probing a device with a throwaway instance before
// committing to a configuration, the device's native channel count is
// queried first so the callback can downmix correctly. The sample format is
// requested as f32, so miniaudio converts the format but leaves the channel
// layout native.
func NewMicrophoneSource(deviceID string) (*MicrophoneSource, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}

	m := &MicrophoneSource{ctx: ctx}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.PeriodSizeInMilliseconds = 20

	if deviceID != "" {
		id, err := resolveDeviceID(ctx, malgo.Capture, deviceID)
		if err != nil {
			ctx.Uninit() //nolint:errcheck
			ctx.Free()
			return nil, err
		}
		deviceConfig.Capture.DeviceID = id
	}

	// Probe the device's native sample rate/channel count the same way the
	// teacher probes sample rate: a throwaway device, immediately torn
	// down once its properties are read.
	probe, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{})
	if err != nil {
		ctx.Uninit() //nolint:errcheck
		ctx.Free()
		return nil, fmt.Errorf("probe capture device: %w", err)
	}
	m.deviceRate = probe.SampleRate()
	m.deviceChannels = probe.CaptureChannels()
	if m.deviceChannels == 0 {
		m.deviceChannels = 1
	}
	m.deviceFormat = deviceConfig.Capture.Format
	probe.Uninit()

	producer, consumer := ringbuf.New(micRingCapacity)
	m.producer = producer
	m.consumer = consumer

	onRecvFrames := func(_, input []byte, frameCount uint32) {
		if !m.running.Load() || len(input) == 0 {
			return
		}
		downmixToRing(m.producer, input, m.deviceFormat, m.deviceChannels)
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onRecvFrames})
	if err != nil {
		ctx.Uninit() //nolint:errcheck
		ctx.Free()
		return nil, fmt.Errorf("init capture device: %w", err)
	}
	m.device = device

	return m, nil
}

// SampleRate returns the device's native sample rate, which the caller's
// resampler must target.
func (m *MicrophoneSource) SampleRate() uint32 { return m.deviceRate }

// TakeConsumer returns the consumer half of this source's ring buffer.
// Only one caller should ever drain it.
func (m *MicrophoneSource) TakeConsumer() *ringbuf.Consumer { return m.consumer }

// Producer exposes the producer half, for tests that want to push
// synthetic samples without a real device.
func (m *MicrophoneSource) Producer() *ringbuf.Producer { return m.producer }

// Play starts (or resumes) the capture device.
func (m *MicrophoneSource) Play() error {
	if m.running.Load() {
		return nil
	}
	if err := m.device.Start(); err != nil {
		return fmt.Errorf("start capture device: %w", err)
	}
	m.running.Store(true)
	return nil
}

// Pause stops delivering samples without tearing down the device, so
// Play can resume quickly.
func (m *MicrophoneSource) Pause() {
	m.running.Store(false)
}

// IsRunning reports whether the device is currently capturing.
func (m *MicrophoneSource) IsRunning() bool { return m.running.Load() }

// Close stops capture and releases the device and context.
func (m *MicrophoneSource) Close() error {
	m.running.Store(false)
	if m.device != nil {
		m.device.Stop() //nolint:errcheck
		m.device.Uninit()
		m.device = nil
	}
	if m.ctx != nil {
		if err := m.ctx.Uninit(); err != nil {
			return fmt.Errorf("uninit audio context: %w", err)
		}
		m.ctx.Free()
		m.ctx = nil
	}
	return nil
}

// ListInputDevices enumerates available capture devices.
func ListInputDevices() ([]DeviceInfo, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	defer func() {
		ctx.Uninit() //nolint:errcheck
		ctx.Free()
	}()

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("enumerate capture devices: %w", err)
	}

	out := make([]DeviceInfo, len(infos))
	for i, info := range infos {
		out[i] = DeviceInfo{
			ID:   hex.EncodeToString(info.ID[:]),
			Name: info.Name(),
		}
	}
	return out, nil
}

func resolveDeviceID(ctx *malgo.AllocatedContext, deviceType malgo.DeviceType, id string) (malgo.DeviceID, error) {
	want, err := hex.DecodeString(id)
	if err != nil {
		return malgo.DeviceID{}, fmt.Errorf("invalid device id %q: %w", id, err)
	}

	infos, err := ctx.Devices(deviceType)
	if err != nil {
		return malgo.DeviceID{}, fmt.Errorf("enumerate devices: %w", err)
	}
	for _, info := range infos {
		if hex.EncodeToString(info.ID[:]) == hex.EncodeToString(want) {
			return info.ID, nil
		}
	}
	return malgo.DeviceID{}, fmt.Errorf("no device with id %q", id)
}

// monoPool reduces allocations in the audio callback hot path. Buffers are
// sized for a 20ms period at 48kHz (960 samples) with headroom; a callback
// that needs more just grows its own buffer once rather than blocking the
// pool for everyone else.
var monoPool = sync.Pool{
	New: func() interface{} {
		buf := make([]float32, 2048)
		return &buf
	},
}

// downmixToRing converts one callback's worth of raw device bytes to mono
// float32 and pushes them into the ring. When the device is multi-channel,
// only channel 0 is kept: a straight average would be more "correct" but
// the capture this is modeled on always takes the first channel, and a
// speech-to-text front-end has no use for stereo. The scratch buffer comes
// from monoPool, so the callback allocates only on a pool miss or when n
// exceeds the pooled buffer's capacity.
func downmixToRing(p *ringbuf.Producer, data []byte, format malgo.FormatType, channels uint32) {
	frameBytes := bytesPerSample(format) * int(channels)
	if frameBytes == 0 {
		return
	}
	n := len(data) / frameBytes
	if n == 0 {
		return
	}

	pBuf := monoPool.Get().(*[]float32)
	if cap(*pBuf) < n {
		*pBuf = make([]float32, n)
	}
	mono := (*pBuf)[:n]

	switch format {
	case malgo.FormatF32:
		for i := 0; i < n; i++ {
			bits := binary.LittleEndian.Uint32(data[i*frameBytes:])
			mono[i] = math.Float32frombits(bits)
		}
	case malgo.FormatS16:
		for i := 0; i < n; i++ {
			v := int16(binary.LittleEndian.Uint16(data[i*frameBytes:]))
			mono[i] = float32(v) / 32768.0
		}
	case malgo.FormatS32:
		for i := 0; i < n; i++ {
			v := int32(binary.LittleEndian.Uint32(data[i*frameBytes:]))
			mono[i] = float32(v) / 2147483648.0
		}
	default:
		// Unsupported device format; drop this callback's worth of audio
		// rather than misinterpret it.
		monoPool.Put(pBuf)
		return
	}

	p.Push(mono)
	monoPool.Put(pBuf)
}

func bytesPerSample(format malgo.FormatType) int {
	switch format {
	case malgo.FormatF32, malgo.FormatS32:
		return 4
	case malgo.FormatS16:
		return 2
	default:
		return 0
	}
}
