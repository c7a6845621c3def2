package engine

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/voxfilter-go/voxfilter/pkg/agc"
	"github.com/voxfilter-go/voxfilter/pkg/dsp"
	"github.com/voxfilter-go/voxfilter/pkg/frame"
	"github.com/voxfilter-go/voxfilter/pkg/pipeline"
	"github.com/voxfilter-go/voxfilter/pkg/recording"
	"github.com/xaionaro-go/observability"
)

// ChunkRecordingConfig enables chunked recording of a stream: both the
// processed and the original audio are captured in Duration-sized chunks
// and retained under the engine's memory bound.
type ChunkRecordingConfig struct {
	Duration         time.Duration
	FragmentInterval time.Duration
	MinValidSize     int
	OnChunkReady     func(recording.ProcessedChunk)
}

type StreamConfig struct {
	// Output receives the processed PCM (float32le mono 48kHz). Nil means
	// the caller reads nothing; the audio is still processed and, when
	// recording is enabled, recorded.
	Output io.Writer

	// Recording, when non-nil, turns chunked recording on.
	Recording *ChunkRecordingConfig

	// InputBufferSize and OutputBufferSize size the stream byte queues;
	// zero selects the defaults.
	InputBufferSize  uint
	OutputBufferSize uint
}

// StreamController is the per-stream handle returned by ProcessStream.
type StreamController struct {
	id     string
	engine *Engine
	loop   *pipeline.Loop
	stream *pipeline.Stream

	recorder *recording.Manager
	procTap  *recording.PCMRecorder
	origTap  *recording.PCMRecorder

	cancelFunc context.CancelFunc
	doneCh     chan struct{}
	stopOnce   sync.Once
	stopErr    error
}

// ProcessStream attaches the processing graph (filter cascade, then the
// suppressor, then the gain stage) to the given PCM input and starts
// pumping. The input must be float32le mono 48kHz; it is consumed until
// EOF, a fatal error, or Stop.
func (e *Engine) ProcessStream(ctx context.Context, input io.Reader, cfg StreamConfig) (_ *StreamController, _err error) {
	logger.Debugf(ctx, "ProcessStream")
	defer func() { logger.Debugf(ctx, "/ProcessStream: %v", _err) }()

	if err := e.sm.RequireState("process-stream", StateReady, StateProcessing, StateDegraded); err != nil {
		return nil, err
	}

	e.locker.Lock()
	sup := e.suppressor
	e.locker.Unlock()
	if sup == nil {
		return nil, &InvalidStateError{
			Operation: "process-stream",
			Current:   e.sm.State(),
			Required:  []State{StateReady, StateProcessing, StateDegraded},
		}
	}

	var gain *agc.AGC
	if e.agc.Enabled() {
		gain = agc.New(e.cfg.AGCTargetLevel, agc.WithMaxGain(agc.SafeMaxGain))
	}
	loop := pipeline.NewLoop(pipeline.LoopConfig{
		Suppressor: sup,
		Level:      e.cfg.NoiseReductionLevel,
		Chain:      dsp.NewVoiceChain(float64(frame.SampleRate)),
		AGC:        gain,
	})

	id := uuid.NewString()
	streamCtx, cancelFunc := context.WithCancel(context.WithoutCancel(ctx))

	c := &StreamController{
		id:         id,
		engine:     e,
		loop:       loop,
		cancelFunc: cancelFunc,
		doneCh:     make(chan struct{}),
	}

	if cfg.Recording != nil {
		c.procTap = recording.NewPCMRecorder()
		c.origTap = recording.NewPCMRecorder()
		// the original variant is captured on the way into the graph
		input = io.TeeReader(input, c.origTap)
	}

	stream, err := pipeline.NewStream(streamCtx, input, loop, cfg.InputBufferSize, cfg.OutputBufferSize)
	if err != nil {
		cancelFunc()
		return nil, &ProcessingFailedError{StreamID: id, Cause: err}
	}
	c.stream = stream

	if cfg.Recording != nil {
		c.recorder = recording.NewManager(e.store, e.guard, loop.Accumulator())
		userCallback := cfg.Recording.OnChunkReady
		err := c.recorder.StartCycle(streamCtx, c.procTap, c.origTap, recording.CycleConfig{
			ChunkDuration:    cfg.Recording.Duration,
			FragmentInterval: cfg.Recording.FragmentInterval,
			MinValidSize:     cfg.Recording.MinValidSize,
			OnChunkReady: func(chunk recording.ProcessedChunk) {
				e.bus.Emit(ChunkReadyEvent{StreamID: id, ChunkID: chunk.ID})
				if userCallback != nil {
					userCallback(chunk)
				}
			},
		})
		if err != nil {
			cancelFunc()
			return nil, &ProcessingFailedError{
				StreamID: id,
				Cause:    fmt.Errorf("unable to start the recording cycle: %w", err),
			}
		}
	}

	e.registerSession(ctx, c)
	observability.Go(streamCtx, func() {
		c.pump(streamCtx, cfg.Output)
	})
	return c, nil
}

func (e *Engine) registerSession(ctx context.Context, c *StreamController) {
	e.locker.Lock()
	e.sessions[c.id] = c
	first := len(e.sessions) == 1
	e.cancelCleanupLocked()
	e.locker.Unlock()

	if first {
		e.sm.TransitionTo(ctx, StateProcessing)
		e.bus.Emit(ProcessingStartEvent{StreamID: c.id})
	}
}

func (e *Engine) removeSession(ctx context.Context, id string) {
	e.locker.Lock()
	if _, ok := e.sessions[id]; !ok {
		e.locker.Unlock()
		return
	}
	delete(e.sessions, id)
	last := len(e.sessions) == 0
	degraded := e.degraded
	if last {
		e.scheduleCleanupLocked(ctx)
	}
	e.locker.Unlock()

	if !last {
		return
	}
	if e.sm.IsInState(StateProcessing, StatePaused) {
		target := StateReady
		if degraded {
			target = StateDegraded
		}
		e.sm.TransitionTo(ctx, target)
	}
	e.bus.Emit(ProcessingEndEvent{StreamID: id})
}

// pump moves processed audio from the stream to the recording tap and the
// caller's output. It owns the lifetime of the session: when the stream
// drains (input EOF) or fails, the session is stopped.
func (c *StreamController) pump(ctx context.Context, output io.Writer) {
	defer close(c.doneCh)
	defer func() {
		if err := c.stop(context.WithoutCancel(ctx)); err != nil {
			logger.Errorf(ctx, "unable to stop the stream '%s': %v", c.id, err)
		}
	}()

	buf := make([]byte, c.engine.cfg.BufferSize*4)
	for {
		n, err := c.stream.Read(buf)
		if n > 0 {
			if c.procTap != nil {
				c.procTap.Write(buf[:n])
			}
			if output != nil {
				if _, writeErr := output.Write(buf[:n]); writeErr != nil {
					c.engine.recordError(ctx, &ProcessingFailedError{
						StreamID: c.id,
						Cause:    fmt.Errorf("unable to write the processed audio: %w", writeErr),
					})
					return
				}
			}
		}
		if err != nil {
			if err != io.EOF && ctx.Err() == nil {
				c.engine.recordError(ctx, &ProcessingFailedError{StreamID: c.id, Cause: err})
			}
			return
		}
	}
}

func (c *StreamController) ID() string {
	return c.id
}

// Done is closed once the stream finished, whether by input EOF, a fatal
// error or Stop. Callers that want every queued sample delivered wait on
// it before calling Stop; Stop itself tears down promptly and discards
// whatever is still queued.
func (c *StreamController) Done() <-chan struct{} {
	return c.doneCh
}

// State reports the processing sub-state of this stream.
func (c *StreamController) State() pipeline.LoopState {
	return c.loop.State()
}

// Metrics returns the latest metrics snapshot of this stream.
func (c *StreamController) Metrics() pipeline.Metrics {
	return c.loop.Metrics()
}

// Pause gates processing; input keeps being consumed but the output is
// silence until Resume.
func (c *StreamController) Pause() {
	c.loop.Pause()
}

func (c *StreamController) Resume() {
	c.loop.Resume()
}

// BytesRecorded reports the processed and original byte counts captured
// by the recording taps so far. Zeroes when recording is off.
func (c *StreamController) BytesRecorded() (processed, original uint64) {
	if c.procTap == nil {
		return 0, 0
	}
	return c.procTap.BytesCaptured(), c.origTap.BytesCaptured()
}

// Stop tears the stream down: the recording is flushed, the loop stopped,
// the stream closed, and the session removed from the engine. Idempotent.
func (c *StreamController) Stop(ctx context.Context) error {
	err := c.stop(ctx)
	select {
	case <-c.doneCh:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}

func (c *StreamController) stop(ctx context.Context) error {
	c.stopOnce.Do(func() {
		var mErr *multierror.Error
		if c.recorder != nil {
			if err := c.recorder.StopRecording(ctx); err != nil {
				mErr = multierror.Append(mErr, fmt.Errorf("unable to stop the recording: %w", err))
			}
		}
		c.loop.Stop()
		if err := c.stream.Close(); err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("unable to close the stream: %w", err))
		}
		c.cancelFunc()
		c.engine.removeSession(ctx, c.id)
		c.stopErr = mErr.ErrorOrNil()
	})
	return c.stopErr
}

func (c *StreamController) setAGCEnabled(enabled bool) {
	if !enabled {
		c.loop.SetAGC(nil)
		return
	}
	c.loop.SetAGC(agc.New(c.engine.cfg.AGCTargetLevel, agc.WithMaxGain(agc.SafeMaxGain)))
}
