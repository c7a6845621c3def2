package oto

import (
	"github.com/voxfilter-go/voxfilter/pkg/playback"
	"github.com/voxfilter-go/voxfilter/pkg/playback/registry"
)

const (
	Priority = 50
)

func init() {
	registry.RegisterSinkFactory(Priority, SinkFactory{})
}

type SinkFactory struct{}

func (SinkFactory) NewSink() (playback.Sink, error) {
	return NewSink()
}
