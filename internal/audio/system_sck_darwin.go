//go:build darwin

package audio

/*
#cgo CFLAGS: -mmacosx-version-min=14.0 -fobjc-arc
#cgo LDFLAGS: -framework ScreenCaptureKit -framework CoreMedia -framework CoreAudio -framework Cocoa

#include <stdint.h>

typedef struct {
	void *stream;
	void *delegate;
	void *filter;
} sttcap_sck_t;

int  sttcap_sck_start(unsigned long long handle, sttcap_sck_t *out);
void sttcap_sck_stop(sttcap_sck_t *h);
*/
import "C"

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/fenwick-labs/sttcapture/internal/telemetry"
	"github.com/fenwick-labs/sttcapture/pkg/ringbuf"
)

// screenCaptureSampleRate is fixed by the configuration passed to
// SCStreamConfiguration; ScreenCaptureKit audio does not expose a device
// native rate the way CoreAudio does.
const screenCaptureSampleRate = 48000

// currentSCK mirrors currentTap's atomic-slot resolution: only one
// ScreenCaptureKit stream runs at a time, so the delivery callback resolves
// it lock-free instead of through a registry behind a mutex.
var (
	currentSCK   atomic.Pointer[screenCaptureSource]
	sckHandleSeq atomic.Uint64
)

// screenCaptureSource captures system audio by requesting a minimal
// (2x2px, 1fps) screen-capture stream with audio enabled, the fallback
// path for machines or OS versions where the CoreAudio process tap is
// unavailable or denied.
type screenCaptureSource struct {
	handle C.sttcap_sck_t
	id     uint64

	producer *ringbuf.Producer
	consumer *ringbuf.Consumer

	log     *telemetry.Logger
	running atomic.Bool
}

func newScreenCaptureSource(deviceID string, log *telemetry.Logger) (*screenCaptureSource, error) {
	id := sckHandleSeq.Add(1)
	producer, consumer := ringbuf.New(sysRingCapacity)

	s := &screenCaptureSource{id: id, producer: producer, consumer: consumer, log: log}
	currentSCK.Store(s)

	rc := C.sttcap_sck_start(C.ulonglong(id), &s.handle)
	if rc != 0 {
		currentSCK.CompareAndSwap(s, nil)
		return nil, fmt.Errorf("screencapturekit audio stream init failed (code %d)", int(rc))
	}

	return s, nil
}

func (s *screenCaptureSource) SampleRate() uint32              { return screenCaptureSampleRate }
func (s *screenCaptureSource) TakeConsumer() *ringbuf.Consumer { return s.consumer }
func (s *screenCaptureSource) Producer() *ringbuf.Producer     { return s.producer }

func (s *screenCaptureSource) Play() error {
	s.running.Store(true)
	return nil
}

func (s *screenCaptureSource) Close() error {
	s.running.Store(false)
	C.sttcap_sck_stop(&s.handle)
	currentSCK.CompareAndSwap(s, nil)
	return nil
}

//export sttcapSCKDeliver
func sttcapSCKDeliver(handle C.ulonglong, samples *C.float, count C.int) {
	s := currentSCK.Load()
	if s == nil || s.id != uint64(handle) || !s.running.Load() || count == 0 {
		return
	}
	slice := unsafe.Slice((*float32)(unsafe.Pointer(samples)), int(count))
	s.producer.Push(slice)
}
