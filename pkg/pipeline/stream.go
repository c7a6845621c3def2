package pipeline

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/iamcalledrob/circular"
	"github.com/voxfilter-go/voxfilter/pkg/frame"
	"github.com/xaionaro-go/observability"
)

const (
	// DefaultStreamBufferSize is the default capacity of the rolling input
	// and output byte queues of a Stream.
	DefaultStreamBufferSize = 64 * 1024

	frameBytes = frame.Size * 4
)

// Stream adapts a Loop to an io.Reader of PCM bytes (float32le, mono,
// 48kHz): raw samples are pulled from the input reader into a rolling
// buffer, denoised frame by frame, and served through Read.
type Stream struct {
	loop *Loop

	inputBufferLocker sync.Mutex
	inputBuffer       *circular.Buffer
	inputEOF          bool

	outputBufferLocker sync.Mutex
	outputBuffer       *circular.Buffer
	outputEOF          bool
	resultError        error

	readCtx    context.Context
	cancelFunc context.CancelFunc

	readProgressedCh          chan struct{}
	processInputProgressedCh  chan struct{}
	processOutputProgressedCh chan struct{}
	outputProgressedCh        chan struct{}
}

var _ io.ReadCloser = (*Stream)(nil)

func NewStream(
	ctx context.Context,
	input io.Reader,
	loop *Loop,
	inputBufferSize uint,
	outputBufferSize uint,
) (*Stream, error) {
	if inputBufferSize == 0 {
		inputBufferSize = DefaultStreamBufferSize
	}
	if outputBufferSize == 0 {
		outputBufferSize = DefaultStreamBufferSize
	}
	if inputBufferSize < frameBytes || outputBufferSize < frameBytes {
		return nil, fmt.Errorf("buffer sizes must hold at least one frame (%d bytes)", frameBytes)
	}

	ctx, cancelFunc := context.WithCancel(ctx)
	s := &Stream{
		loop:         loop,
		inputBuffer:  circular.NewBuffer(int(inputBufferSize)),
		outputBuffer: circular.NewBuffer(int(outputBufferSize)),
		readCtx:      ctx,
		cancelFunc:   cancelFunc,

		readProgressedCh:          make(chan struct{}),
		processInputProgressedCh:  make(chan struct{}),
		processOutputProgressedCh: make(chan struct{}),
		outputProgressedCh:        make(chan struct{}),
	}
	observability.Go(ctx, func() {
		err := s.readerLoop(ctx, input)
		if err != nil {
			s.setResultError(fmt.Errorf("got an error from the reader loop: %w", err))
		}
	})
	observability.Go(ctx, func() {
		defer cancelFunc()
		err := s.processLoop(ctx)
		if err != nil {
			s.setResultError(fmt.Errorf("got an error from the processing loop: %w", err))
		}
	})
	return s, nil
}

func (s *Stream) setResultError(err error) {
	s.outputBufferLocker.Lock()
	defer s.outputBufferLocker.Unlock()
	if s.resultError == nil {
		s.resultError = err
	}
	s.signalProcessOutputProgressedLocked()
}

func (s *Stream) readerLoop(ctx context.Context, input io.Reader) (_err error) {
	logger.Tracef(ctx, "readerLoop")
	defer func() { logger.Tracef(ctx, "/readerLoop: %v", _err) }()

	readBuf := make([]byte, 65536)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		n, err := input.Read(readBuf)
		if n > 0 {
			if wErr := s.enqueueInput(ctx, readBuf[:n]); wErr != nil {
				return wErr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.markInputEOF()
				return nil
			}
			s.markInputEOF()
			return fmt.Errorf("unable to read the input: %w", err)
		}
	}
}

func (s *Stream) enqueueInput(ctx context.Context, data []byte) error {
	s.inputBufferLocker.Lock()
	defer s.inputBufferLocker.Unlock()
	for len(data) > 0 {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		w, err := s.inputBuffer.Write(data)
		if err != nil && !errors.Is(err, circular.ErrNoSpace) {
			return fmt.Errorf("unable to write to the input buffer: %w", err)
		}
		data = data[w:]
		oldCh := s.readProgressedCh
		s.readProgressedCh = make(chan struct{})
		close(oldCh)
		if len(data) == 0 {
			return nil
		}
		// buffer full: wait for the processing loop to drain some
		waitCh := s.processInputProgressedCh
		s.inputBufferLocker.Unlock()
		select {
		case <-ctx.Done():
		case <-waitCh:
		}
		s.inputBufferLocker.Lock()
	}
	return nil
}

func (s *Stream) markInputEOF() {
	s.inputBufferLocker.Lock()
	defer s.inputBufferLocker.Unlock()
	s.inputEOF = true
	oldCh := s.readProgressedCh
	s.readProgressedCh = make(chan struct{})
	close(oldCh)
}

func (s *Stream) processLoop(ctx context.Context) (_err error) {
	logger.Tracef(ctx, "processLoop")
	defer func() { logger.Tracef(ctx, "/processLoop: %v", _err) }()

	inBytes := make([]byte, frameBytes)
	outBytes := make([]byte, frameBytes)
	var inSamples, outSamples [frame.Size]float32

	for {
		lastFrame, err := s.gatherFrame(ctx, inBytes)
		if err != nil {
			return err
		}
		if lastFrame && allZero(inBytes) {
			s.markOutputEOF()
			return nil
		}

		bytesToSamples(inBytes, inSamples[:])
		s.loop.ProcessCallback(ctx, inSamples[:], outSamples[:])
		samplesToBytes(outSamples[:], outBytes)

		if err := s.enqueueOutput(ctx, outBytes); err != nil {
			return err
		}
		if lastFrame {
			s.markOutputEOF()
			return nil
		}

		select {
		case <-ctx.Done():
			s.markOutputEOF()
			return nil
		default:
		}
	}
}

// gatherFrame blocks until a full frame of bytes is available or the input
// hit EOF; a short tail at EOF is padded with silence and reported as the
// last frame.
func (s *Stream) gatherFrame(ctx context.Context, dst []byte) (bool, error) {
	received := 0
	for {
		s.inputBufferLocker.Lock()
		n, err := s.inputBuffer.Read(dst[received:])
		waitCh := s.readProgressedCh
		eof := s.inputEOF
		oldCh := s.processInputProgressedCh
		s.processInputProgressedCh = make(chan struct{})
		close(oldCh)
		s.inputBufferLocker.Unlock()

		if err != nil && !errors.Is(err, io.EOF) {
			return false, fmt.Errorf("unable to read from the input buffer: %w", err)
		}
		received += n
		if received >= len(dst) {
			return false, nil
		}
		if eof {
			for idx := received; idx < len(dst); idx++ {
				dst[idx] = 0
			}
			return true, nil
		}

		select {
		case <-ctx.Done():
			for idx := received; idx < len(dst); idx++ {
				dst[idx] = 0
			}
			return true, nil
		case <-waitCh:
		}
	}
}

func (s *Stream) enqueueOutput(ctx context.Context, data []byte) error {
	s.outputBufferLocker.Lock()
	defer s.outputBufferLocker.Unlock()
	for len(data) > 0 {
		w, err := s.outputBuffer.Write(data)
		if err != nil && !errors.Is(err, circular.ErrNoSpace) {
			return fmt.Errorf("unable to write to the output buffer: %w", err)
		}
		data = data[w:]
		s.signalProcessOutputProgressedLocked()
		if len(data) == 0 {
			return nil
		}
		// output full: wait until a consumer drains some
		waitCh := s.outputProgressedCh
		s.outputBufferLocker.Unlock()
		select {
		case <-ctx.Done():
			s.outputBufferLocker.Lock()
			return nil
		case <-waitCh:
		}
		s.outputBufferLocker.Lock()
	}
	return nil
}

func (s *Stream) signalProcessOutputProgressedLocked() {
	oldCh := s.processOutputProgressedCh
	s.processOutputProgressedCh = make(chan struct{})
	close(oldCh)
}

func (s *Stream) markOutputEOF() {
	s.outputBufferLocker.Lock()
	defer s.outputBufferLocker.Unlock()
	s.outputEOF = true
	s.signalProcessOutputProgressedLocked()
}

// Read serves denoised PCM bytes, blocking until data is available, the
// stream ends, or the stream fails.
func (s *Stream) Read(p []byte) (_ret int, _err error) {
	logger.Tracef(s.readCtx, "Read, len:%d", len(p))
	defer func() { logger.Tracef(s.readCtx, "/Read: %d, %v", _ret, _err) }()

	s.outputBufferLocker.Lock()
	defer s.outputBufferLocker.Unlock()
	for {
		n, err := s.outputBuffer.Read(p)
		if err == nil {
			oldCh := s.outputProgressedCh
			s.outputProgressedCh = make(chan struct{})
			close(oldCh)
			return n, nil
		}
		if !errors.Is(err, io.EOF) {
			return n, err
		}
		if s.resultError != nil {
			return 0, s.resultError
		}
		if s.outputEOF {
			return 0, io.EOF
		}
		if err := s.readCtx.Err(); err != nil {
			return 0, err
		}

		waitCh := s.processOutputProgressedCh
		s.outputBufferLocker.Unlock()
		select {
		case <-s.readCtx.Done():
		case <-waitCh:
		}
		s.outputBufferLocker.Lock()
	}
}

func (s *Stream) Close() error {
	s.cancelFunc()
	return nil
}

func bytesToSamples(src []byte, dst []float32) {
	for idx := range dst {
		dst[idx] = math.Float32frombits(binary.LittleEndian.Uint32(src[idx*4:]))
	}
}

func samplesToBytes(src []float32, dst []byte) {
	for idx, v := range src {
		binary.LittleEndian.PutUint32(dst[idx*4:], math.Float32bits(v))
	}
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
