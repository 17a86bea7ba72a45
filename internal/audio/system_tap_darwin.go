//go:build darwin

package audio

/*
#cgo CFLAGS: -x objective-c -mmacosx-version-min=14.4
#cgo LDFLAGS: -framework CoreAudio -framework AudioToolbox -framework CoreFoundation

#include <CoreAudio/CoreAudio.h>
#include <AudioToolbox/AudioToolbox.h>
#include <stdlib.h>
#include <string.h>

// Forward declaration of the Go-side sample sink, invoked from the IOProc
// below with every buffer the tap delivers.
extern void sttcapTapDeliver(unsigned long long handle, float *samples, int count, double sampleRate);
extern void sttcapTapDropped(unsigned long long handle);

typedef struct {
	AudioDeviceID   aggregateDevice;
	AudioDeviceIOProcID procID;
	CFStringRef     tapUID;
	unsigned long long handle;
} sttcap_tap_t;

static OSStatus sttcap_tap_ioproc(
	AudioObjectID inDevice,
	const AudioTimeStamp *inNow,
	const AudioBufferList *inInputData,
	const AudioTimeStamp *inInputTime,
	AudioBufferList *outOutputData,
	const AudioTimeStamp *inOutputTime,
	void *inClientData)
{
	sttcap_tap_t *tap = (sttcap_tap_t *)inClientData;
	if (inInputData->mNumberBuffers == 0) {
		return noErr;
	}
	const AudioBuffer *buf = &inInputData->mBuffers[0];
	if (buf->mDataByteSize == 0 || buf->mData == NULL) {
		return noErr;
	}

	Float64 actualRate = 0;
	UInt32 propSize = sizeof(actualRate);
	AudioObjectPropertyAddress rateAddr = {
		kAudioDevicePropertyActualSampleRate,
		kAudioObjectPropertyScopeGlobal,
		kAudioObjectPropertyElementMain,
	};
	AudioObjectGetPropertyData(inDevice, &rateAddr, 0, NULL, &propSize, &actualRate);

	int count = (int)(buf->mDataByteSize / sizeof(float));
	sttcapTapDeliver(tap->handle, (float *)buf->mData, count, actualRate);
	return noErr;
}

// sttcap_tap_start builds a mono, global process tap, stacks it behind an
// aggregate device whose main sub-device is outputDeviceUID, and starts an
// IOProc on it. Fills *out with the aggregate device and IOProc ids and
// returns 0, or a negative OSStatus-derived code on failure.
static int sttcap_tap_start(const char *outputDeviceUID, const char *aggregateUID, unsigned long long handle, sttcap_tap_t *out) {
	memset(out, 0, sizeof(*out));
	out->handle = handle;

	CATapDescription *desc = [[CATapDescription alloc] initMonoGlobalTapButExcludeProcesses:@[]];
	desc.name = @"sttcapture-system-tap";
	desc.muteBehavior = CATapUnmuted;

	AudioObjectID tapID = kAudioObjectUnknown;
	OSStatus status = AudioHardwareCreateProcessTap((__bridge CATapDescription *)desc, &tapID);
	if (status != noErr) {
		return -1000 - (int)status;
	}

	CFStringRef tapUID = NULL;
	UInt32 size = sizeof(tapUID);
	AudioObjectPropertyAddress tapUIDAddr = {
		kAudioTapPropertyUID,
		kAudioObjectPropertyScopeGlobal,
		kAudioObjectPropertyElementMain,
	};
	AudioObjectGetPropertyData(tapID, &tapUIDAddr, 0, NULL, &size, &tapUID);

	CFStringRef outputUID = NULL;
	if (outputDeviceUID != NULL && strlen(outputDeviceUID) > 0) {
		outputUID = CFStringCreateWithCString(NULL, outputDeviceUID, kCFStringEncodingUTF8);
	}

	CFMutableDictionaryRef subDevice = CFDictionaryCreateMutable(NULL, 0, &kCFTypeDictionaryKeyCallBacks, &kCFTypeDictionaryValueCallBacks);
	if (outputUID != NULL) {
		CFDictionarySetValue(subDevice, CFSTR("uid"), outputUID);
	}

	CFMutableDictionaryRef subTap = CFDictionaryCreateMutable(NULL, 0, &kCFTypeDictionaryKeyCallBacks, &kCFTypeDictionaryValueCallBacks);
	CFDictionarySetValue(subTap, CFSTR("uid"), tapUID);

	CFStringRef aggUID = CFStringCreateWithCString(NULL, aggregateUID, kCFStringEncodingUTF8);

	const void *subDevices[] = { subDevice };
	const void *subTaps[] = { subTap };
	CFArrayRef subDeviceList = CFArrayCreate(NULL, subDevices, 1, &kCFTypeArrayCallBacks);
	CFArrayRef tapList = CFArrayCreate(NULL, subTaps, 1, &kCFTypeArrayCallBacks);

	CFMutableDictionaryRef aggDesc = CFDictionaryCreateMutable(NULL, 0, &kCFTypeDictionaryKeyCallBacks, &kCFTypeDictionaryValueCallBacks);
	CFDictionarySetValue(aggDesc, CFSTR("private"), kCFBooleanTrue);
	CFDictionarySetValue(aggDesc, CFSTR("stacked"), kCFBooleanFalse);
	CFDictionarySetValue(aggDesc, CFSTR("tapautostart"), kCFBooleanTrue);
	CFDictionarySetValue(aggDesc, CFSTR("name"), CFSTR("sttcapture-aggregate"));
	CFDictionarySetValue(aggDesc, CFSTR("uid"), aggUID);
	if (outputUID != NULL) {
		CFDictionarySetValue(aggDesc, CFSTR("master"), outputUID);
	}
	CFDictionarySetValue(aggDesc, CFSTR("subdevices"), subDeviceList);
	CFDictionarySetValue(aggDesc, CFSTR("taps"), tapList);

	AudioDeviceID aggDevice = kAudioObjectUnknown;
	status = AudioHardwareCreateAggregateDevice(aggDesc, &aggDevice);
	if (status != noErr) {
		AudioHardwareDestroyProcessTap(tapID);
		return -2000 - (int)status;
	}

	out->aggregateDevice = aggDevice;
	out->tapUID = tapUID;

	status = AudioDeviceCreateIOProcID(aggDevice, sttcap_tap_ioproc, out, &out->procID);
	if (status != noErr) {
		AudioHardwareDestroyAggregateDevice(aggDevice);
		AudioHardwareDestroyProcessTap(tapID);
		return -3000 - (int)status;
	}

	status = AudioDeviceStart(aggDevice, out->procID);
	if (status != noErr) {
		AudioDeviceDestroyIOProcID(aggDevice, out->procID);
		AudioHardwareDestroyAggregateDevice(aggDevice);
		AudioHardwareDestroyProcessTap(tapID);
		return -4000 - (int)status;
	}

	return 0;
}

static void sttcap_tap_stop(sttcap_tap_t *tap) {
	if (tap->aggregateDevice != kAudioObjectUnknown) {
		AudioDeviceStop(tap->aggregateDevice, tap->procID);
		AudioDeviceDestroyIOProcID(tap->aggregateDevice, tap->procID);
		AudioHardwareDestroyAggregateDevice(tap->aggregateDevice);
	}
}
*/
import "C"

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/google/uuid"

	"github.com/fenwick-labs/sttcapture/internal/telemetry"
	"github.com/fenwick-labs/sttcapture/pkg/ringbuf"
)

// currentTap is the tapSource the IOProc should deliver into. Only one
// process tap runs at a time in this pipeline, so a single atomic slot
// resolves the handle from the real-time callback without a lock; id still
// guards against a stale callback landing after Close cleared the slot and
// a new tap took its place.
var (
	currentTap   atomic.Pointer[tapSource]
	tapHandleSeq atomic.Uint64
)

// sysRingCapacity sizes the ring shared by the tap and screen-capture
// backends, the same as micRingCapacity.
const sysRingCapacity = 32768

type tapSource struct {
	handle C.sttcap_tap_t
	id     uint64

	producer *ringbuf.Producer
	consumer *ringbuf.Consumer

	sampleRate atomic.Uint32
	log        *telemetry.Logger

	running atomic.Bool
}

func newTapSource(deviceID string, log *telemetry.Logger) (*tapSource, error) {
	id := tapHandleSeq.Add(1)
	producer, consumer := ringbuf.New(sysRingCapacity)

	t := &tapSource{id: id, producer: producer, consumer: consumer, log: log}
	currentTap.Store(t)

	var cUID *C.char
	if deviceID != "" {
		cUID = C.CString(deviceID)
		defer C.free(unsafe.Pointer(cUID))
	}

	aggUID := C.CString(uuid.New().String())
	defer C.free(unsafe.Pointer(aggUID))

	rc := C.sttcap_tap_start(cUID, aggUID, C.ulonglong(id), &t.handle)
	if rc != 0 {
		currentTap.CompareAndSwap(t, nil)
		return nil, fmt.Errorf("core audio process tap start failed (code %d)", int(rc))
	}

	return t, nil
}

func (t *tapSource) SampleRate() uint32              { return t.sampleRate.Load() }
func (t *tapSource) TakeConsumer() *ringbuf.Consumer { return t.consumer }
func (t *tapSource) Producer() *ringbuf.Producer     { return t.producer }

func (t *tapSource) Play() error {
	t.running.Store(true)
	return nil
}

func (t *tapSource) Close() error {
	t.running.Store(false)
	C.sttcap_tap_stop(&t.handle)
	currentTap.CompareAndSwap(t, nil)
	return nil
}

//export sttcapTapDeliver
func sttcapTapDeliver(handle C.ulonglong, samples *C.float, count C.int, sampleRate C.double) {
	t := currentTap.Load()
	if t == nil || t.id != uint64(handle) || !t.running.Load() || count == 0 {
		return
	}

	t.sampleRate.Store(uint32(sampleRate))
	slice := unsafe.Slice((*float32)(unsafe.Pointer(samples)), int(count))
	t.producer.Push(slice)
}

//export sttcapTapDropped
func sttcapTapDropped(handle C.ulonglong) {
	// Reserved: the ring's own ConsecutiveDrops counter (read from the DSP
	// worker) already carries this signal; this hook exists so a future
	// C-side backpressure source has somewhere to report into.
}

func newSystemSource(deviceID string, log *telemetry.Logger) (source, error) {
	if deviceID == sckForceSentinel {
		s, err := newScreenCaptureSource("", log)
		if err != nil {
			return nil, wrapSystemErr("screen-capture", err)
		}
		return s, nil
	}

	tap, err := newTapSource(deviceID, log)
	if err == nil {
		return tap, nil
	}

	log.Warn("core audio process tap failed, falling back to screen capture", "err", err)
	s, fallbackErr := newScreenCaptureSource("", log)
	if fallbackErr != nil {
		return nil, wrapSystemErr("tap", fmt.Errorf("%w (screen-capture fallback also failed: %v)", err, fallbackErr))
	}
	return s, nil
}

func listOutputDevices() ([]DeviceInfo, error) {
	// CoreAudio device UID enumeration is a handful of additional cgo
	// calls against AudioObjectGetPropertyDataSize/AudioObjectGetPropertyData
	// for kAudioHardwarePropertyDevices; omitted here in favor of letting
	// callers pass "" for the system default output device, which is the
	// common case for a system-audio tap.
	return nil, nil
}
