// Package portaudio captures microphone audio through the portaudio
// library, already converted to the processing format of this module.
package portaudio

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/gordonklaus/portaudio"
	"github.com/voxfilter-go/voxfilter/pkg/capture"
	"github.com/voxfilter-go/voxfilter/pkg/frame"
	"github.com/xaionaro-go/observability"
)

// CaptureBufferSize is the hardware-side buffering; 100ms keeps the
// added latency well under a recording fragment.
const CaptureBufferSize = time.Millisecond * 100

type Source struct{}

var _ capture.Source = (*Source)(nil)

func NewSource() (*Source, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, err
	}
	return &Source{}, nil
}

func (*Source) Close() error {
	return portaudio.Terminate()
}

func (*Source) Ping(ctx context.Context) error {
	info, err := portaudio.DefaultInputDevice()
	if err != nil {
		return err
	}
	logger.Debugf(ctx, "device info: %#+v", info)

	if devices, err := portaudio.Devices(); err == nil {
		for idx, device := range devices {
			logger.Tracef(ctx, "devices[%d]: %#+v", idx, device)
		}
	}
	return nil
}

func (*Source) Capture(ctx context.Context, writer io.Writer) (capture.Stream, error) {
	bufferItemsCount := int(CaptureBufferSize.Seconds() * float64(frame.SampleRate))

	buf := make([]float32, bufferItemsCount)
	logger.Debugf(ctx, "opening a capture stream: mono, %dHz, buffer of %d samples", frame.SampleRate, bufferItemsCount)
	paStream, err := portaudio.OpenDefaultStream(1, 0, float64(frame.SampleRate), bufferItemsCount, buf)
	if err != nil {
		return nil, fmt.Errorf("unable to open the default stream: %w", err)
	}

	s := &captureStream{
		paStream:    paStream,
		inputBuffer: buf,
		writer:      writer,
	}
	if err := s.start(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("unable to start the stream: %w", err)
	}
	return s, nil
}

type captureStream struct {
	paStream    *portaudio.Stream
	inputBuffer []float32
	writer      io.Writer
	cancelFunc  context.CancelFunc
	waitGroup   sync.WaitGroup
	closeOnce   sync.Once
	closeErr    error
}

func (s *captureStream) start(ctx context.Context) error {
	ctx, s.cancelFunc = context.WithCancel(ctx)

	if err := s.paStream.Start(); err != nil {
		return err
	}

	s.waitGroup.Add(1)
	observability.Go(ctx, func() {
		defer s.waitGroup.Done()
		<-ctx.Done()
		s.Close()
	})
	s.waitGroup.Add(1)
	observability.Go(ctx, func() {
		defer s.waitGroup.Done()
		defer s.cancelFunc()
		if err := s.readerLoop(ctx); err != nil && ctx.Err() == nil {
			logger.Errorf(ctx, "the capture reader loop failed: %v", err)
		}
	})
	return nil
}

func (s *captureStream) readerLoop(ctx context.Context) (_ret error) {
	logger.Debugf(ctx, "readerLoop")
	defer func() { logger.Debugf(ctx, "/readerLoop: %v", _ret) }()

	outBytes := make([]byte, len(s.inputBuffer)*4)
	for {
		logger.Tracef(ctx, "Read")
		err := s.paStream.Read()
		logger.Tracef(ctx, "/Read: %v", err)
		if err != nil {
			return fmt.Errorf("unable to read: %w", err)
		}

		samplesToBytes(s.inputBuffer, outBytes)
		n, err := s.writer.Write(outBytes)
		if err != nil {
			return fmt.Errorf("unable to write: %w", err)
		}
		if n != len(outBytes) {
			return fmt.Errorf("invalid write length: %d != %d", n, len(outBytes))
		}
	}
}

func (s *captureStream) Close() error {
	s.closeOnce.Do(func() {
		s.cancelFunc()
		s.closeErr = s.paStream.Abort()
	})
	return s.closeErr
}

func (s *captureStream) Drain() error {
	s.waitGroup.Wait()
	return nil
}

func samplesToBytes(src []float32, dst []byte) {
	for idx, v := range src {
		binary.LittleEndian.PutUint32(dst[idx*4:], math.Float32bits(v))
	}
}
