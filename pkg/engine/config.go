package engine

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/voxfilter-go/voxfilter/pkg/pipeline"
	"github.com/voxfilter-go/voxfilter/pkg/suppression"
	"github.com/voxfilter-go/voxfilter/pkg/suppression/rnnoise"
)

// Algorithm selects the noise suppression backend.
type Algorithm string

const (
	// AlgorithmAuto picks the neural backend when the build carries it,
	// and the noise gate otherwise.
	AlgorithmAuto    = Algorithm("auto")
	AlgorithmRNNoise = Algorithm("rnnoise")
	AlgorithmGate    = Algorithm("gate")
)

const (
	DefaultBufferSize      = pipeline.DefaultBufferSize
	DefaultCleanupDelay    = 30 * time.Second
	DefaultMetricsInterval = 100 * time.Millisecond
	DefaultAGCTargetLevel  = 0.3
)

// AudioContext is the backend resource bundle the engine owns between
// Initialize and Destroy. The default implementation holds nothing; live
// deployments pass a factory returning their capture/playback handle so
// its teardown failures surface through Destroy.
type AudioContext interface {
	io.Closer
}

type noopAudioContext struct{}

func (noopAudioContext) Close() error { return nil }

type Config struct {
	// NoiseReductionLevel is one of pipeline's reduction levels; the
	// zero value falls back to medium.
	NoiseReductionLevel pipeline.Level

	// BufferSize is the stream callback size in samples.
	BufferSize int

	// Algorithm selects the suppression backend; SuppressorFactory, when
	// set, overrides it entirely.
	Algorithm         Algorithm
	SuppressorFactory suppression.Factory

	// ContextFactory constructs the AudioContext during initialization.
	// Nil means a no-op context.
	ContextFactory func(ctx context.Context) (AudioContext, error)

	// AllowDegraded permits falling back to the noise gate when the
	// suppression backend cannot be loaded.
	AllowDegraded bool

	// LoadTimeout bounds the suppressor load during initialization.
	LoadTimeout time.Duration

	// AutoCleanup destroys the engine after CleanupDelay of idling in
	// the ready state with no streams.
	AutoCleanup  bool
	CleanupDelay time.Duration

	// AGCEnabled toggles the output gain stage of new streams. The
	// target level defaults to DefaultAGCTargetLevel.
	AGCEnabled     bool
	AGCTargetLevel float64

	// MetricsInterval is the cadence of the OnMetricsUpdate feed.
	MetricsInterval time.Duration
}

func (cfg *Config) setDefaults() {
	if cfg.NoiseReductionLevel == "" {
		cfg.NoiseReductionLevel = pipeline.LevelMedium
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = AlgorithmAuto
	}
	if cfg.ContextFactory == nil {
		cfg.ContextFactory = func(context.Context) (AudioContext, error) {
			return noopAudioContext{}, nil
		}
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = suppression.DefaultLoadTimeout
	}
	if cfg.CleanupDelay <= 0 {
		cfg.CleanupDelay = DefaultCleanupDelay
	}
	if cfg.AGCTargetLevel <= 0 {
		cfg.AGCTargetLevel = DefaultAGCTargetLevel
	}
	if cfg.MetricsInterval <= 0 {
		cfg.MetricsInterval = DefaultMetricsInterval
	}
}

// suppressorFactory resolves the configured algorithm to a concrete
// factory.
func (cfg *Config) suppressorFactory() (suppression.Factory, error) {
	if cfg.SuppressorFactory != nil {
		return cfg.SuppressorFactory, nil
	}
	switch cfg.Algorithm {
	case AlgorithmAuto:
		if rnnoise.Supported {
			return func(ctx context.Context) (suppression.Suppressor, error) {
				return rnnoise.New(ctx)
			}, nil
		}
		return func(context.Context) (suppression.Suppressor, error) {
			return suppression.NewGate(), nil
		}, nil
	case AlgorithmRNNoise:
		return func(ctx context.Context) (suppression.Suppressor, error) {
			return rnnoise.New(ctx)
		}, nil
	case AlgorithmGate:
		return func(context.Context) (suppression.Suppressor, error) {
			return suppression.NewGate(), nil
		}, nil
	default:
		return nil, &EnvironmentUnsupportedError{Capability: "algorithm:" + string(cfg.Algorithm)}
	}
}

// agcSwitch is the runtime AGC toggle shared by the engine and its
// streams; flipping it affects already-running streams.
type agcSwitch struct {
	locker  sync.Mutex
	enabled bool
}

func (s *agcSwitch) Enabled() bool {
	s.locker.Lock()
	defer s.locker.Unlock()
	return s.enabled
}

func (s *agcSwitch) Set(enabled bool) {
	s.locker.Lock()
	defer s.locker.Unlock()
	s.enabled = enabled
}
