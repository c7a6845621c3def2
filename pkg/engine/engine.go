// Package engine is the facade of the noise reduction module: lifecycle,
// live streams, file processing, recording and diagnostics behind one
// type.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/voxfilter-go/voxfilter/pkg/pipeline"
	"github.com/voxfilter-go/voxfilter/pkg/recording"
	"github.com/voxfilter-go/voxfilter/pkg/suppression"
	"github.com/xaionaro-go/observability"
)

// Version is reported through Diagnostics.
const Version = "1.2.0"

type initAttempt struct {
	done chan struct{}
	err  error
}

// Engine ties the processing pipeline, the recording subsystem and the
// lifecycle state machine together. Zero value is not usable; construct
// with New.
type Engine struct {
	cfg     Config
	sm      *StateMachine
	bus     *eventBus
	history *errorHistory
	agc     *agcSwitch
	store   *recording.BlobStore
	guard   *recording.MemoryGuard

	locker        sync.Mutex
	initAttempt   *initAttempt
	suppressor    suppression.Suppressor
	audioCtx      AudioContext
	degraded      bool
	degradedCause error
	sessions      map[string]*StreamController
	cleanupTimer  *time.Timer
	metricsCancel context.CancelFunc
}

func New(cfg Config) *Engine {
	cfg.setDefaults()
	e := &Engine{
		cfg:      cfg,
		bus:      newEventBus(),
		history:  &errorHistory{},
		agc:      &agcSwitch{enabled: cfg.AGCEnabled},
		sessions: map[string]*StreamController{},
	}
	e.sm = NewStateMachine(func(old, new State) {
		e.bus.Emit(StateChangeEvent{Old: old, New: new})
	})
	e.store = recording.NewBlobStore()
	e.guard = recording.NewMemoryGuard(
		recording.DefaultHighWater,
		recording.DefaultLowWater,
		e.store.Revoke,
	)
	return e
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	return e.sm.State()
}

// DegradedMode reports whether the engine fell back to the model-less
// processing path during initialization.
func (e *Engine) DegradedMode() bool {
	e.locker.Lock()
	defer e.locker.Unlock()
	return e.degraded
}

// Subscribe registers an event callback; the returned function removes
// it.
func (e *Engine) Subscribe(callback func(Event)) func() {
	return e.bus.Subscribe(callback)
}

// ErrorHistory returns the retained recent errors, oldest first.
func (e *Engine) ErrorHistory() []RecordedError {
	return e.history.List()
}

// Chunks returns the retained recording chunks, oldest first.
func (e *Engine) Chunks() []recording.ProcessedChunk {
	return e.guard.Chunks()
}

// RemoveChunk removes one chunk by its exact id, releasing its blobs.
func (e *Engine) RemoveChunk(id string) bool {
	return e.guard.Remove(id)
}

// Initialize brings the engine from uninitialized (or error, for a
// retry) to ready. Concurrent calls share one in-flight attempt: the
// suppressor factory runs at most once per attempt, and every caller
// receives that attempt's outcome.
func (e *Engine) Initialize(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Initialize")
	defer func() { logger.Debugf(ctx, "/Initialize: %v", _err) }()

	e.locker.Lock()
	if e.sm.IsInState(StateReady, StateProcessing, StatePaused, StateDegraded) {
		e.locker.Unlock()
		return &AlreadyInitializedError{}
	}
	if err := e.sm.RequireState("initialize",
		StateUninitialized, StateInitializing, StateCreatingContext, StateLoadingModel, StateError,
	); err != nil {
		e.locker.Unlock()
		return err
	}
	if attempt := e.initAttempt; attempt != nil {
		e.locker.Unlock()
		select {
		case <-attempt.done:
			return attempt.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := e.sm.RequireState("initialize", StateUninitialized, StateError); err != nil {
		e.locker.Unlock()
		return err
	}
	attempt := &initAttempt{done: make(chan struct{})}
	e.initAttempt = attempt
	e.locker.Unlock()

	err := e.doInitialize(ctx)

	e.locker.Lock()
	if err != nil {
		// a failed attempt is cleared so the next Initialize retries
		e.initAttempt = nil
	}
	attempt.err = err
	e.locker.Unlock()
	close(attempt.done)
	return err
}

func (e *Engine) doInitialize(ctx context.Context) error {
	e.sm.TransitionTo(ctx, StateInitializing)
	e.sm.TransitionTo(ctx, StateCreatingContext)

	audioCtx, err := e.cfg.ContextFactory(ctx)
	if err != nil {
		return e.failInitialization(ctx, &InitializationFailedError{
			Cause: fmt.Errorf("unable to create the audio context: %w", err),
		})
	}
	e.locker.Lock()
	e.audioCtx = audioCtx
	e.locker.Unlock()

	e.sm.TransitionTo(ctx, StateLoadingModel)
	factory, err := e.cfg.suppressorFactory()
	if err != nil {
		return e.failInitialization(ctx, &InitializationFailedError{Cause: err})
	}
	loader := suppression.NewLoader(factory, e.cfg.LoadTimeout)

	if e.cfg.AllowDegraded {
		result := loader.LoadOrFallback(ctx)
		e.locker.Lock()
		e.suppressor = result.Suppressor
		e.degraded = result.Degraded
		e.degradedCause = result.Cause
		e.locker.Unlock()
		if result.Degraded {
			e.recordError(ctx, &InitializationFailedError{Cause: result.Cause})
			e.sm.TransitionTo(ctx, StateError)
			e.sm.TransitionTo(ctx, StateDegraded)
			e.bus.Emit(DegradedModeEvent{Cause: result.Cause})
		} else {
			e.sm.TransitionTo(ctx, StateReady)
		}
		e.afterInitialize(ctx)
		return nil
	}

	sup, err := loader.Load(ctx)
	if err != nil {
		return e.failInitialization(ctx, &InitializationFailedError{Cause: err})
	}
	e.locker.Lock()
	e.suppressor = sup
	e.locker.Unlock()
	e.sm.TransitionTo(ctx, StateReady)
	e.afterInitialize(ctx)
	return nil
}

// failInitialization records the error, parks the machine in the error
// state and releases the half-built audio context so a retry starts
// clean.
func (e *Engine) failInitialization(ctx context.Context, err error) error {
	e.recordError(ctx, err)
	e.sm.TransitionTo(ctx, StateError)

	e.locker.Lock()
	audioCtx := e.audioCtx
	e.audioCtx = nil
	e.locker.Unlock()
	if audioCtx != nil {
		if closeErr := audioCtx.Close(); closeErr != nil {
			logger.Errorf(ctx, "unable to close the audio context after a failed initialization: %v", closeErr)
		}
	}
	return err
}

func (e *Engine) afterInitialize(ctx context.Context) {
	metricsCtx, cancelFunc := context.WithCancel(context.WithoutCancel(ctx))
	e.locker.Lock()
	e.metricsCancel = cancelFunc
	e.scheduleCleanupLocked(ctx)
	e.locker.Unlock()

	observability.Go(metricsCtx, func() {
		e.metricsLoop(metricsCtx)
	})
}

func (e *Engine) recordError(ctx context.Context, err error) {
	logger.Errorf(ctx, "%v", err)
	e.history.Record(err)
	e.bus.Emit(ErrorEvent{Err: err})
}

// metricsLoop periodically publishes aggregated metrics as events.
func (e *Engine) metricsLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.MetricsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		e.bus.Emit(MetricsEvent{Metrics: e.Metrics()})
	}
}

// Metrics aggregates the live metrics of every active stream. With no
// streams it returns a zeroed snapshot stamped with the current time.
func (e *Engine) Metrics() pipeline.Metrics {
	e.locker.Lock()
	sessions := make([]*StreamController, 0, len(e.sessions))
	for _, s := range e.sessions {
		sessions = append(sessions, s)
	}
	e.locker.Unlock()

	result := pipeline.Metrics{Timestamp: time.Now()}
	if len(sessions) == 0 {
		return result
	}
	for _, s := range sessions {
		m := s.Metrics()
		result.InputRMS += m.InputRMS
		result.InputPeak = max(result.InputPeak, m.InputPeak)
		result.OutputRMS += m.OutputRMS
		result.OutputPeak = max(result.OutputPeak, m.OutputPeak)
		result.NoiseReductionPct += m.NoiseReductionPct
		result.VoiceProb += m.VoiceProb
		result.FramesProcessed += m.FramesProcessed
		result.DroppedFrames += m.DroppedFrames
		if m.DominantFrequencyHz > result.DominantFrequencyHz {
			result.DominantFrequencyHz = m.DominantFrequencyHz
		}
	}
	n := float64(len(sessions))
	result.InputRMS /= n
	result.OutputRMS /= n
	result.NoiseReductionPct /= n
	result.VoiceProb /= n
	return result
}

// SetAGCEnabled toggles the output gain stage, reconnecting the gain
// stage of already running streams.
func (e *Engine) SetAGCEnabled(enabled bool) {
	e.agc.Set(enabled)
	e.locker.Lock()
	defer e.locker.Unlock()
	for _, s := range e.sessions {
		s.setAGCEnabled(enabled)
	}
}

// AGCEnabled reports the current toggle position.
func (e *Engine) AGCEnabled() bool {
	return e.agc.Enabled()
}

// Pause suspends processing of every live stream; the streams keep
// consuming input but emit silence.
func (e *Engine) Pause(ctx context.Context) error {
	if err := e.sm.RequireState("pause", StateProcessing); err != nil {
		return err
	}
	e.locker.Lock()
	for _, s := range e.sessions {
		s.Pause()
	}
	e.locker.Unlock()
	e.sm.TransitionTo(ctx, StatePaused)
	return nil
}

// Resume reverses Pause.
func (e *Engine) Resume(ctx context.Context) error {
	if err := e.sm.RequireState("resume", StatePaused); err != nil {
		return err
	}
	e.locker.Lock()
	for _, s := range e.sessions {
		s.Resume()
	}
	e.locker.Unlock()
	e.sm.TransitionTo(ctx, StateProcessing)
	return nil
}

// scheduleCleanupLocked (re)arms the idle auto-destroy timer. Called
// whenever the engine may have become idle.
func (e *Engine) scheduleCleanupLocked(ctx context.Context) {
	if !e.cfg.AutoCleanup {
		return
	}
	if e.cleanupTimer != nil {
		e.cleanupTimer.Stop()
	}
	cleanupCtx := context.WithoutCancel(ctx)
	e.cleanupTimer = time.AfterFunc(e.cfg.CleanupDelay, func() {
		e.locker.Lock()
		idle := len(e.sessions) == 0
		e.locker.Unlock()
		if !idle || !e.sm.IsInState(StateReady, StateDegraded) {
			return
		}
		logger.Infof(cleanupCtx, "the engine idled for %v, destroying", e.cfg.CleanupDelay)
		if err := e.Destroy(cleanupCtx, false); err != nil {
			logger.Errorf(cleanupCtx, "unable to auto-destroy the engine: %v", err)
		}
	})
}

func (e *Engine) cancelCleanupLocked() {
	if e.cleanupTimer != nil {
		e.cleanupTimer.Stop()
		e.cleanupTimer = nil
	}
}

// Destroy tears the engine down: streams are stopped, the suppressor and
// the audio context are closed, retained chunks are released. With force
// the transition check is bypassed, so a wedged engine can still be torn
// down. An audio context close failure does not interrupt the teardown;
// it is returned, wrapped, after everything else finished.
func (e *Engine) Destroy(ctx context.Context, force bool) (_err error) {
	logger.Debugf(ctx, "Destroy, force:%v", force)
	defer func() { logger.Debugf(ctx, "/Destroy: %v", _err) }()

	if e.sm.IsInState(StateDestroyed, StateDestroying) {
		return nil
	}
	if !e.sm.TransitionTo(ctx, StateDestroying) {
		if !force {
			return &InvalidStateError{
				Operation: "destroy",
				Current:   e.sm.State(),
				Required:  []State{StateUninitialized, StateReady, StateProcessing, StatePaused, StateDegraded, StateError},
			}
		}
		e.sm.ForceTransitionTo(ctx, StateDestroying)
	}

	e.locker.Lock()
	sessions := make([]*StreamController, 0, len(e.sessions))
	for _, s := range e.sessions {
		sessions = append(sessions, s)
	}
	e.sessions = map[string]*StreamController{}
	// a destroyed engine must not hand out the stale successful attempt
	e.initAttempt = nil
	sup := e.suppressor
	e.suppressor = nil
	audioCtx := e.audioCtx
	e.audioCtx = nil
	metricsCancel := e.metricsCancel
	e.metricsCancel = nil
	e.cancelCleanupLocked()
	e.locker.Unlock()

	var mErr *multierror.Error
	for _, s := range sessions {
		if err := s.Stop(ctx); err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("unable to stop the stream '%s': %w", s.ID(), err))
		}
	}
	if metricsCancel != nil {
		metricsCancel()
	}
	if sup != nil {
		if err := sup.Close(); err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("unable to close the suppressor: %w", err))
		}
	}

	var audioCtxErr error
	if audioCtx != nil {
		audioCtxErr = audioCtx.Close()
	}

	e.guard.Clear()
	if err := mErr.ErrorOrNil(); err != nil {
		logger.Errorf(ctx, "non-fatal teardown failures: %v", err)
	}

	e.sm.TransitionTo(ctx, StateDestroyed)
	e.bus.Emit(DestroyedEvent{})

	if audioCtxErr != nil {
		err := &CleanupFailedError{Cause: audioCtxErr}
		e.history.Record(err)
		return err
	}
	return nil
}
