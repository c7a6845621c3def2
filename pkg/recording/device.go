package recording

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/datacounter"
)

// CaptureDevice is the media-recorder analog: while started it buffers the
// data written to it and delivers it as periodic fragments; Stop flushes
// whatever is still buffered before returning. A device may be started
// again after a Stop; each Start..Stop span is one capture cycle.
//
// The audio path keeps writing regardless of capture state (the stream
// flows whether or not a recorder listens); writes outside a cycle are
// discarded, never blocked on.
type CaptureDevice interface {
	Start(ctx context.Context, timeslice time.Duration, onData func(fragment []byte)) error
	Stop(ctx context.Context) error
	Write(p []byte) (int, error)
}

// PCMRecorder is the in-process CaptureDevice: a Writer tap on a PCM
// stream. Total captured bytes are tracked with a datacounter across
// cycles.
type PCMRecorder struct {
	locker    sync.Mutex
	active    bool
	timeslice time.Duration
	lastFlush time.Time
	pending   []byte
	onData    func(fragment []byte)
	counter   *datacounter.WriterCounter
}

var _ CaptureDevice = (*PCMRecorder)(nil)

func NewPCMRecorder() *PCMRecorder {
	return &PCMRecorder{
		counter: datacounter.NewWriterCounter(io.Discard),
	}
}

// BytesCaptured reports the total bytes delivered as fragments across all
// cycles of this recorder.
func (r *PCMRecorder) BytesCaptured() uint64 {
	return r.counter.Count()
}

func (r *PCMRecorder) Start(_ context.Context, timeslice time.Duration, onData func(fragment []byte)) error {
	if timeslice <= 0 {
		return fmt.Errorf("timeslice must be positive, received %v", timeslice)
	}
	r.locker.Lock()
	defer r.locker.Unlock()
	if r.active {
		return fmt.Errorf("the capture device is already started")
	}
	r.active = true
	r.timeslice = timeslice
	r.lastFlush = time.Now()
	r.pending = r.pending[:0]
	r.onData = onData
	return nil
}

// Write feeds live stream data into the recorder. Outside a cycle the data
// is discarded. A full timeslice of buffered data triggers a fragment
// delivery, synchronously on this call.
func (r *PCMRecorder) Write(p []byte) (int, error) {
	r.locker.Lock()
	defer r.locker.Unlock()
	if !r.active {
		return len(p), nil
	}
	r.pending = append(r.pending, p...)
	if time.Since(r.lastFlush) >= r.timeslice {
		r.flushLocked()
	}
	return len(p), nil
}

// Stop ends the cycle, flushing the buffered tail through onData before
// returning.
func (r *PCMRecorder) Stop(ctx context.Context) error {
	r.locker.Lock()
	defer r.locker.Unlock()
	if !r.active {
		return nil
	}
	r.flushLocked()
	r.active = false
	r.onData = nil
	logger.Tracef(ctx, "capture device stopped, %d bytes captured so far", r.counter.Count())
	return nil
}

func (r *PCMRecorder) flushLocked() {
	if len(r.pending) == 0 {
		return
	}
	fragment := make([]byte, len(r.pending))
	copy(fragment, r.pending)
	r.pending = r.pending[:0]
	r.lastFlush = time.Now()
	r.counter.Write(fragment)
	r.onData(fragment)
}
