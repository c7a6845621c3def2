// Package dummy is a capture source producing silence, for tests and
// hosts without audio hardware. It is not registered; pass it
// explicitly.
package dummy

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/voxfilter-go/voxfilter/pkg/capture"
	"github.com/voxfilter-go/voxfilter/pkg/frame"
	"github.com/xaionaro-go/observability"
)

type Source struct{}

var _ capture.Source = (*Source)(nil)

func NewSource() *Source {
	return &Source{}
}

func (*Source) Close() error {
	return nil
}

func (*Source) Ping(context.Context) error {
	return nil
}

// Capture writes zeroed float32le mono 48kHz PCM in 10ms batches, paced
// to real time.
func (*Source) Capture(ctx context.Context, writer io.Writer) (capture.Stream, error) {
	ctx, cancelFunc := context.WithCancel(ctx)
	s := &Stream{cancelFunc: cancelFunc}

	s.waitGroup.Add(1)
	observability.Go(ctx, func() {
		defer s.waitGroup.Done()
		batch := make([]byte, frame.Size*4)
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if _, err := writer.Write(batch); err != nil {
				return
			}
		}
	})
	return s, nil
}

type Stream struct {
	cancelFunc context.CancelFunc
	waitGroup  sync.WaitGroup
}

func (s *Stream) Close() error {
	s.cancelFunc()
	return nil
}

func (s *Stream) Drain() error {
	s.waitGroup.Wait()
	return nil
}
