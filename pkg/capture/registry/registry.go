// Package registry is the capture backend registry: backends register a
// factory with a priority from their init, and NewSourceAuto walks the
// factories in priority order until one produces a source that answers a
// Ping.
package registry

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/voxfilter-go/voxfilter/pkg/capture"
)

type SourceFactory interface {
	NewSource() (capture.Source, error)
}

type factoryWithPriority struct {
	Priority int
	SourceFactory
}

var factoryRegistry = map[reflect.Type]factoryWithPriority{}

func RegisterSourceFactory(priority int, factory SourceFactory) {
	t := reflect.ValueOf(factory).Type()
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if _, ok := factoryRegistry[t]; ok {
		panic(fmt.Errorf("there is already a registered capture source factory of type %v", t))
	}
	factoryRegistry[t] = factoryWithPriority{
		Priority:      priority,
		SourceFactory: factory,
	}
}

func SourceFactories() []SourceFactory {
	var withPriorities []factoryWithPriority
	for _, factory := range factoryRegistry {
		withPriorities = append(withPriorities, factory)
	}
	sort.Slice(withPriorities, func(i, j int) bool {
		return withPriorities[i].Priority > withPriorities[j].Priority
	})

	var factories []SourceFactory
	for _, factory := range withPriorities {
		factories = append(factories, factory.SourceFactory)
	}
	return factories
}

// NewSourceAuto returns the highest-priority source that works on this
// host. When none does, the error aggregates every backend's failure.
func NewSourceAuto(ctx context.Context) (capture.Source, error) {
	var mErr *multierror.Error
	for _, factory := range SourceFactories() {
		source, err := factory.NewSource()
		if err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("unable to initialize %T: %w", factory, err))
			continue
		}
		if err := source.Ping(ctx); err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("%T did not answer the ping: %w", factory, err))
			if closeErr := source.Close(); closeErr != nil {
				logger.Errorf(ctx, "unable to close a non-answering source %T: %v", factory, closeErr)
			}
			continue
		}
		logger.Debugf(ctx, "using the capture source %T", source)
		return source, nil
	}
	if err := mErr.ErrorOrNil(); err != nil {
		return nil, fmt.Errorf("unable to find a working capture source: %w", err)
	}
	return nil, fmt.Errorf("no capture backends are registered in this build")
}
