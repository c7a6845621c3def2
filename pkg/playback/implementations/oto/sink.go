// Package oto renders audio through the ebitengine oto library.
package oto

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/voxfilter-go/voxfilter/pkg/frame"
	"github.com/voxfilter-go/voxfilter/pkg/playback"
)

// BufferSize is the backend-side buffering.
const BufferSize = time.Millisecond * 100

// oto permits exactly one context per process, so it is created once and
// shared by every Sink.
var (
	otoContextOnce sync.Once
	otoContext     *oto.Context
	otoContextErr  error
)

func getOtoContext() (*oto.Context, error) {
	otoContextOnce.Do(func() {
		otoCtx, readyChan, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   int(frame.SampleRate),
			ChannelCount: 1,
			Format:       oto.FormatFloat32LE,
			BufferSize:   BufferSize,
		})
		if err != nil {
			otoContextErr = err
			return
		}
		<-readyChan
		otoContext = otoCtx
	})
	return otoContext, otoContextErr
}

type Sink struct {
	otoCtx *oto.Context
}

var _ playback.Sink = (*Sink)(nil)

func NewSink() (*Sink, error) {
	otoCtx, err := getOtoContext()
	if err != nil {
		return nil, fmt.Errorf("unable to get an oto context: %w", err)
	}
	return &Sink{otoCtx: otoCtx}, nil
}

func (s *Sink) Close() error {
	return nil
}

func (*Sink) Ping(context.Context) error {
	// do not know how to do that, yet
	return nil
}

func (s *Sink) Play(_ context.Context, reader io.Reader) (playback.Stream, error) {
	player := s.otoCtx.NewPlayer(reader)
	player.Play()
	return &Stream{player: player}, nil
}

type Stream struct {
	player *oto.Player
}

func (s *Stream) Close() error {
	return s.player.Close()
}

func (s *Stream) Drain() error {
	for s.player.IsPlaying() {
		time.Sleep(10 * time.Millisecond)
	}
	return nil
}
