// Command voxfilter-live runs the noise reduction pipeline between the
// default microphone and the default speakers, optionally recording the
// session in chunks.
package main

import (
	"context"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/spf13/pflag"
	captureregistry "github.com/voxfilter-go/voxfilter/pkg/capture/registry"
	"github.com/voxfilter-go/voxfilter/pkg/engine"
	"github.com/voxfilter-go/voxfilter/pkg/pipeline"
	playbackregistry "github.com/voxfilter-go/voxfilter/pkg/playback/registry"
	"github.com/voxfilter-go/voxfilter/pkg/recording"
	"github.com/xaionaro-go/datacounter"
	"github.com/xaionaro-go/observability"

	_ "github.com/voxfilter-go/voxfilter/pkg/capture/implementations/portaudio"
	_ "github.com/voxfilter-go/voxfilter/pkg/playback/implementations/oto"
)

func main() {
	loggerLevel := logger.LevelInfo
	pflag.Var(&loggerLevel, "log-level", "Log level")
	levelFlag := pflag.String("reduction-level", "medium", "noise reduction level: low, medium, high or auto")
	algorithmFlag := pflag.String("algorithm", "auto", "suppression algorithm: auto, rnnoise or gate")
	agcFlag := pflag.Bool("agc", true, "enable automatic gain control")
	recordChunksFlag := pflag.Duration("record-chunks", 0, "record the session in chunks of this duration (0 disables recording)")
	netPprofAddr := pflag.String("net-pprof-listen-addr", "", "an address to listen for incoming net/pprof connections")
	pflag.Parse()

	l := logrus.Default().WithLevel(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	logger.Default = func() logger.Logger {
		return l
	}
	defer belt.Flush(ctx)

	if *netPprofAddr != "" {
		observability.Go(ctx, func() { l.Error(http.ListenAndServe(*netPprofAddr, nil)) })
	}

	logger.Infof(ctx, "starting...")
	source, err := captureregistry.NewSourceAuto(ctx)
	assertNoError(err)
	defer source.Close()

	sink, err := playbackregistry.NewSinkAuto(ctx)
	assertNoError(err)
	defer sink.Close()

	e := engine.New(engine.Config{
		NoiseReductionLevel: pipeline.Level(*levelFlag),
		Algorithm:           engine.Algorithm(*algorithmFlag),
		AllowDegraded:       true,
		AGCEnabled:          *agcFlag,
	})
	assertNoError(e.Initialize(ctx))
	defer func() { assertNoError(e.Destroy(ctx, false)) }()

	if e.DegradedMode() {
		logger.Warnf(ctx, "running in the degraded mode: the neural backend is unavailable")
	}

	micReader, micWriter := io.Pipe()
	wc := datacounter.NewWriterCounter(micWriter)

	captureStream, err := source.Capture(ctx, wc)
	assertNoError(err)
	defer captureStream.Close()

	outReader, outWriter := io.Pipe()

	streamCfg := engine.StreamConfig{Output: outWriter}
	if *recordChunksFlag > 0 {
		streamCfg.Recording = &engine.ChunkRecordingConfig{
			Duration: *recordChunksFlag,
			OnChunkReady: func(chunk recording.ProcessedChunk) {
				logger.Infof(ctx, "chunk %s: %v, processed:%d bytes, original:%d bytes, valid:%v",
					chunk.ID, chunk.Duration, chunk.ProcessedSize, chunk.OriginalSize, chunk.IsValid)
			},
		}
	}
	controller, err := e.ProcessStream(ctx, micReader, streamCfg)
	assertNoError(err)

	playStream, err := sink.Play(ctx, outReader)
	assertNoError(err)
	defer playStream.Close()

	observability.Go(ctx, func() {
		t := time.NewTicker(time.Second)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				m := controller.Metrics()
				logger.Debugf(ctx, "captured:%d bytes, frames:%d, dropped:%d, reduction:%.1f%%, voice:%.2f",
					wc.Count(), m.FramesProcessed, m.DroppedFrames, m.NoiseReductionPct, m.VoiceProb)
			}
		}
	})

	logger.Infof(ctx, "started (%T -> %T)", source, sink)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Infof(ctx, "stopping...")
	assertNoError(controller.Stop(ctx))
}

func assertNoError(err error) {
	if err != nil {
		panic(err)
	}
}
