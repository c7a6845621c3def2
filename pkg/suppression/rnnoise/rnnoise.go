//go:build rnnoise
// +build rnnoise

package rnnoise

import (
	"context"
	"fmt"
	"sync"
	"unsafe"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/voxfilter-go/voxfilter/pkg/frame"
	"github.com/voxfilter-go/voxfilter/pkg/suppression"
)

/*
#cgo pkg-config: rnnoise
#cgo CFLAGS: -march=native
#include <rnnoise.h>
*/
import "C"

// RNNoise wraps one native denoiser state. It is the real neural
// suppressor; samples must already be in the fixed-point-in-float
// convention (see frame.Codec), which is exactly what rnnoise expects.
type RNNoise struct {
	locker sync.Mutex
	state  *C.DenoiseState
}

var _ suppression.Suppressor = (*RNNoise)(nil)

// Supported reports whether this build carries the neural backend.
const Supported = true

func New(ctx context.Context) (suppression.Suppressor, error) {
	nativeFrameSize := int(C.rnnoise_get_frame_size())
	if nativeFrameSize != frame.Size {
		return nil, fmt.Errorf("the native frame size does not match the pipeline frame size: %d != %d", nativeFrameSize, frame.Size)
	}
	logger.Debugf(ctx, "initialized an rnnoise state, frame size: %d", nativeFrameSize)
	return &RNNoise{
		state: C.rnnoise_create(nil),
	}, nil
}

func (s *RNNoise) Close() error {
	s.locker.Lock()
	defer s.locker.Unlock()
	if s.state == nil {
		return fmt.Errorf("double-free attempt")
	}
	C.rnnoise_destroy(s.state)
	s.state = nil
	return nil
}

func (s *RNNoise) Process(ctx context.Context, scaled []float32) (_ret float64, _err error) {
	logger.Tracef(ctx, "Process, len:%d", len(scaled))
	defer func() { logger.Tracef(ctx, "/Process: %v %v", _ret, _err) }()

	if len(scaled) != frame.Size {
		return 0, fmt.Errorf("expected exactly %d samples, received %d", frame.Size, len(scaled))
	}

	s.locker.Lock()
	defer s.locker.Unlock()
	if s.state == nil {
		return 0, fmt.Errorf("the denoiser state is already closed")
	}

	buf := (*C.float)(unsafe.Pointer(unsafe.SliceData(scaled)))
	voiceProb := C.rnnoise_process_frame(s.state, buf, buf)
	return float64(voiceProb), nil
}
