package recording

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/voxfilter-go/voxfilter/pkg/pipeline"
	"github.com/xaionaro-go/observability"
)

const (
	// DefaultMinValidSize is the minimum fragment/variant size in bytes:
	// anything below is a spurious empty flush of the underlying capture
	// primitive, not real audio.
	DefaultMinValidSize = 100

	// DefaultSettleDelay is the pause between stopping a device pair and
	// starting the next one, letting buffered-data callbacks land. Starting
	// the next cycle too early risks cross-contaminating fragment sets.
	DefaultSettleDelay = 100 * time.Millisecond

	// DefaultFragmentInterval is how often the capture devices flush while
	// a cycle is running.
	DefaultFragmentInterval = time.Second
)

// MetricsProvider is the live metrics feed chunks are stamped from,
// injected explicitly at construction. pipeline.Accumulator satisfies it.
type MetricsProvider interface {
	Snapshot() pipeline.AccumulatedMetrics
	ResetPeriod(now time.Time)
}

type CycleConfig struct {
	// ChunkDuration is the rotation period; one rotation produces one
	// chunk.
	ChunkDuration time.Duration

	// MinValidSize, SettleDelay and FragmentInterval default to the
	// package constants when zero.
	MinValidSize     int
	SettleDelay      time.Duration
	FragmentInterval time.Duration

	// OnChunkReady is called synchronously from the rotation goroutine for
	// every emitted chunk.
	OnChunkReady func(ProcessedChunk)
}

// Manager owns the recording lifecycle: it rotates a pair of capture
// devices (processed + original audio) into discrete time-boxed chunks,
// validates their output and appends durable chunk records to the memory
// guard.
type Manager struct {
	store   *BlobStore
	guard   *MemoryGuard
	metrics MetricsProvider

	locker     sync.Mutex
	running    bool
	stopFlag   bool
	cancelFunc context.CancelFunc
	doneCh     chan struct{}

	cfg       CycleConfig
	processed CaptureDevice
	original  CaptureDevice
	current   *chunkRecording
}

// NewManager builds a Manager. metrics may be nil: chunks then carry a
// zero NoiseRemoved rather than anything derived from blob sizes.
func NewManager(store *BlobStore, guard *MemoryGuard, metrics MetricsProvider) *Manager {
	return &Manager{
		store:   store,
		guard:   guard,
		metrics: metrics,
	}
}

// StartCycle begins the rolling stop/start capture that produces the chunk
// sequence.
func (m *Manager) StartCycle(ctx context.Context, processed, original CaptureDevice, cfg CycleConfig) error {
	if cfg.ChunkDuration <= 0 {
		return fmt.Errorf("chunk duration must be positive, received %v", cfg.ChunkDuration)
	}
	if cfg.MinValidSize <= 0 {
		cfg.MinValidSize = DefaultMinValidSize
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}
	if cfg.FragmentInterval <= 0 {
		cfg.FragmentInterval = DefaultFragmentInterval
	}

	m.locker.Lock()
	defer m.locker.Unlock()
	if m.running {
		return fmt.Errorf("a recording cycle is already running")
	}

	ctx, cancelFunc := context.WithCancel(ctx)
	m.running = true
	m.stopFlag = false
	m.cancelFunc = cancelFunc
	m.doneCh = make(chan struct{})
	m.cfg = cfg
	m.processed = processed
	m.original = original
	doneCh := m.doneCh
	m.locker.Unlock()

	if err := m.startPair(ctx); err != nil {
		m.locker.Lock()
		m.running = false
		cancelFunc()
		close(doneCh)
		return fmt.Errorf("unable to start the capture devices: %w", err)
	}

	m.locker.Lock()
	observability.Go(ctx, func() {
		defer close(doneCh)
		m.rotationLoop(ctx)
	})
	return nil
}

// startPair begins the next cycle. It takes the manager lock only around
// the cycle-record swap: device Start/Stop flush fragments through
// acceptFragment, which takes the same lock, so calling them locked would
// self-deadlock.
func (m *Manager) startPair(ctx context.Context) error {
	now := time.Now()
	rec := &chunkRecording{startedAt: now}

	m.locker.Lock()
	m.current = rec
	m.locker.Unlock()
	if m.metrics != nil {
		m.metrics.ResetPeriod(now)
	}

	minSize := m.cfg.MinValidSize
	onProcessed := func(fragment []byte) {
		m.acceptFragment(ctx, rec, &rec.processedFragments, fragment, minSize, "processed")
	}
	onOriginal := func(fragment []byte) {
		m.acceptFragment(ctx, rec, &rec.originalFragments, fragment, minSize, "original")
	}

	if err := m.processed.Start(ctx, m.cfg.FragmentInterval, onProcessed); err != nil {
		m.discardCurrent(rec)
		return fmt.Errorf("unable to start the processed capture: %w", err)
	}
	if err := m.original.Start(ctx, m.cfg.FragmentInterval, onOriginal); err != nil {
		m.discardCurrent(rec)
		stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if stopErr := m.processed.Stop(stopCtx); stopErr != nil {
			logger.Errorf(ctx, "unable to stop the processed capture after a failed start: %v", stopErr)
		}
		return fmt.Errorf("unable to start the original capture: %w", err)
	}
	return nil
}

// discardCurrent retires a cycle record that never fully started; late
// flushes from the half-started device pair are dropped by the finalized
// flag.
func (m *Manager) discardCurrent(rec *chunkRecording) {
	m.locker.Lock()
	defer m.locker.Unlock()
	rec.finalized = true
	if m.current == rec {
		m.current = nil
	}
}

// acceptFragment validates one captured fragment. Undersized fragments are
// a local, recoverable condition: warn and discard, never surface to the
// caller.
func (m *Manager) acceptFragment(ctx context.Context, rec *chunkRecording, dst *[][]byte, fragment []byte, minSize int, variant string) {
	m.locker.Lock()
	defer m.locker.Unlock()
	if rec.finalized {
		logger.Warnf(ctx, "discarding a late %s fragment of %d bytes: the cycle is already finalized", variant, len(fragment))
		return
	}
	if len(fragment) < minSize {
		logger.Warnf(ctx, "discarding an undersized %s fragment: %d < %d bytes", variant, len(fragment), minSize)
		return
	}
	*dst = append(*dst, fragment)
}

func (m *Manager) rotationLoop(ctx context.Context) {
	logger.Debugf(ctx, "rotationLoop, period:%v", m.cfg.ChunkDuration)
	defer logger.Debugf(ctx, "/rotationLoop")

	for {
		timer := time.NewTimer(m.cfg.ChunkDuration)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		// the stop flag is checked both when a rotation fires and again
		// before the next cycle is scheduled
		if m.stopRequested() {
			return
		}

		m.finalizeCycle(ctx)

		select {
		case <-ctx.Done():
			return
		case <-time.After(m.cfg.SettleDelay):
		}

		if m.stopRequested() {
			return
		}

		if err := m.startPair(ctx); err != nil {
			logger.Errorf(ctx, "unable to start the next capture cycle: %v", err)
			return
		}
	}
}

func (m *Manager) stopRequested() bool {
	m.locker.Lock()
	defer m.locker.Unlock()
	return m.stopFlag
}

// finalizeCycle stops the device pair (triggering their buffered-data
// flush), waits for the flush callbacks and assembles the chunk.
func (m *Manager) finalizeCycle(ctx context.Context) {
	var mErr *multierror.Error
	if err := m.processed.Stop(ctx); err != nil {
		mErr = multierror.Append(mErr, fmt.Errorf("unable to stop the processed capture: %w", err))
	}
	if err := m.original.Stop(ctx); err != nil {
		mErr = multierror.Append(mErr, fmt.Errorf("unable to stop the original capture: %w", err))
	}
	if err := mErr.ErrorOrNil(); err != nil {
		logger.Errorf(ctx, "capture stop failed: %v", err)
	}

	m.locker.Lock()
	rec := m.current
	m.current = nil
	if rec != nil {
		rec.finalized = true
	}
	cfg := m.cfg
	m.locker.Unlock()

	if rec == nil {
		return
	}

	chunk, ok := m.assembleChunk(ctx, rec, cfg)
	if !ok {
		return
	}
	m.guard.Add(ctx, chunk)
	if cfg.OnChunkReady != nil {
		cfg.OnChunkReady(chunk)
	}
}

// assembleChunk converts one finalized cycle into a durable chunk record.
// A cycle where both variants are empty is discarded entirely; a cycle
// where either variant is undersized is still emitted, marked invalid, so
// partial data is preserved rather than silently dropped.
func (m *Manager) assembleChunk(ctx context.Context, rec *chunkRecording, cfg CycleConfig) (ProcessedChunk, bool) {
	processedData := assemble(rec.processedFragments)
	originalData := assemble(rec.originalFragments)

	if len(processedData) == 0 && len(originalData) == 0 {
		logger.Debugf(ctx, "discarding an empty recording cycle")
		return ProcessedChunk{}, false
	}

	now := time.Now()
	chunk := ProcessedChunk{
		ID:            uuid.NewString(),
		StartTime:     rec.startedAt,
		EndTime:       now,
		Duration:      now.Sub(rec.startedAt),
		ProcessedSize: len(processedData),
		OriginalSize:  len(originalData),
		IsValid:       true,
	}

	switch {
	case len(processedData) < cfg.MinValidSize:
		chunk.IsValid = false
		chunk.ErrorMessage = fmt.Sprintf("processed variant is undersized: %d < %d bytes", len(processedData), cfg.MinValidSize)
	case len(originalData) < cfg.MinValidSize:
		chunk.IsValid = false
		chunk.ErrorMessage = fmt.Sprintf("original variant is undersized: %d < %d bytes", len(originalData), cfg.MinValidSize)
	}

	if len(processedData) > 0 {
		chunk.ProcessedURL = m.store.Create(processedData)
	}
	if len(originalData) > 0 {
		chunk.OriginalURL = m.store.Create(originalData)
	}

	if m.metrics != nil {
		agg := m.metrics.Snapshot()
		chunk.Metrics = ChunkMetrics{
			ProcessingLatency: agg.AvgLatency,
			FrameCount:        agg.TotalFrames,
			DroppedFrames:     agg.DroppedFrames,
			InputLevel:        agg.AvgInputLevel,
			OutputLevel:       agg.AvgOutputLevel,
			NoiseRemoved:      clampPct(agg.AvgNoiseReductionPct),
		}
	}
	return chunk, true
}

// StopRecording halts the rotation and flushes the final in-flight cycle
// before returning. Rotations pending at the moment of the call are
// suppressed.
func (m *Manager) StopRecording(ctx context.Context) error {
	m.locker.Lock()
	if !m.running {
		m.locker.Unlock()
		return nil
	}
	m.running = false
	m.stopFlag = true
	cancelFunc := m.cancelFunc
	doneCh := m.doneCh
	m.cancelFunc = nil
	m.doneCh = nil
	m.locker.Unlock()

	cancelFunc()
	select {
	case <-doneCh:
	case <-ctx.Done():
		return ctx.Err()
	}

	m.finalizeCycle(ctx)
	return nil
}

// Chunks exposes the retained chunk records.
func (m *Manager) Chunks() []ProcessedChunk {
	return m.guard.Chunks()
}

func clampPct(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
