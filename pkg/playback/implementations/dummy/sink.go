// Package dummy is a playback sink that discards everything, for tests
// and headless hosts. It is not registered; pass it explicitly.
package dummy

import (
	"context"
	"io"
	"sync"

	"github.com/voxfilter-go/voxfilter/pkg/playback"
	"github.com/xaionaro-go/observability"
)

type Sink struct{}

var _ playback.Sink = (*Sink)(nil)

func NewSink() *Sink {
	return &Sink{}
}

func (*Sink) Close() error {
	return nil
}

func (*Sink) Ping(context.Context) error {
	return nil
}

func (*Sink) Play(ctx context.Context, reader io.Reader) (playback.Stream, error) {
	ctx, cancelFunc := context.WithCancel(ctx)
	s := &Stream{cancelFunc: cancelFunc}
	s.waitGroup.Add(1)
	observability.Go(ctx, func() {
		defer s.waitGroup.Done()
		buf := make([]byte, 4096)
		for ctx.Err() == nil {
			if _, err := reader.Read(buf); err != nil {
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
