package portaudio

import (
	"github.com/voxfilter-go/voxfilter/pkg/capture"
	"github.com/voxfilter-go/voxfilter/pkg/capture/registry"
)

const (
	Priority = 60
)

func init() {
	registry.RegisterSourceFactory(Priority, SourceFactory{})
}

type SourceFactory struct{}

func (SourceFactory) NewSource() (capture.Source, error) {
	return NewSource()
}
