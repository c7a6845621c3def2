// Package registry is the playback backend registry, the output-side
// twin of the capture registry.
package registry

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/voxfilter-go/voxfilter/pkg/playback"
)

type SinkFactory interface {
	NewSink() (playback.Sink, error)
}

type factoryWithPriority struct {
	Priority int
	SinkFactory
}

var factoryRegistry = map[reflect.Type]factoryWithPriority{}

func RegisterSinkFactory(priority int, factory SinkFactory) {
	t := reflect.ValueOf(factory).Type()
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if _, ok := factoryRegistry[t]; ok {
		panic(fmt.Errorf("there is already a registered playback sink factory of type %v", t))
	}
	factoryRegistry[t] = factoryWithPriority{
		Priority:    priority,
		SinkFactory: factory,
	}
}

func SinkFactories() []SinkFactory {
	var withPriorities []factoryWithPriority
	for _, factory := range factoryRegistry {
		withPriorities = append(withPriorities, factory)
	}
	sort.Slice(withPriorities, func(i, j int) bool {
		return withPriorities[i].Priority > withPriorities[j].Priority
	})

	var factories []SinkFactory
	for _, factory := range withPriorities {
		factories = append(factories, factory.SinkFactory)
	}
	return factories
}

// NewSinkAuto returns the highest-priority sink that works on this host.
func NewSinkAuto(ctx context.Context) (playback.Sink, error) {
	var mErr *multierror.Error
	for _, factory := range SinkFactories() {
		sink, err := factory.NewSink()
		if err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("unable to initialize %T: %w", factory, err))
			continue
		}
		if err := sink.Ping(ctx); err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("%T did not answer the ping: %w", factory, err))
			if closeErr := sink.Close(); closeErr != nil {
				logger.Errorf(ctx, "unable to close a non-answering sink %T: %v", factory, closeErr)
			}
			continue
		}
		logger.Debugf(ctx, "using the playback sink %T", sink)
		return sink, nil
	}
	if err := mErr.ErrorOrNil(); err != nil {
		return nil, fmt.Errorf("unable to find a working playback sink: %w", err)
	}
	return nil, fmt.Errorf("no playback backends are registered in this build")
}
