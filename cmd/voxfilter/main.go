// Command voxfilter processes a WAV (or ogg/vorbis) file through the
// noise reduction pipeline and writes the result as a mono 16-bit 48kHz
// WAV.
package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"strings"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/spf13/pflag"
	"github.com/voxfilter-go/voxfilter/pkg/engine"
	"github.com/voxfilter-go/voxfilter/pkg/pipeline"
	"github.com/xaionaro-go/observability"
)

func main() {
	loggerLevel := logger.LevelWarning
	pflag.Var(&loggerLevel, "log-level", "Log level")
	levelFlag := pflag.String("reduction-level", "medium", "noise reduction level: low, medium, high or auto")
	algorithmFlag := pflag.String("algorithm", "auto", "suppression algorithm: auto, rnnoise or gate")
	agcFlag := pflag.Bool("agc", false, "enable automatic gain control")
	allowDegradedFlag := pflag.Bool("allow-degraded", true, "fall back to the noise gate when the neural backend is unavailable")
	netPprofAddr := pflag.String("net-pprof-listen-addr", "", "an address to listen for incoming net/pprof connections")
	pflag.Parse()

	if pflag.NArg() != 2 {
		panic(fmt.Errorf("expected exactly two arguments: <input-file> <output-file>"))
	}

	l := logrus.Default().WithLevel(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	logger.Default = func() logger.Logger {
		return l
	}
	defer belt.Flush(ctx)

	if *netPprofAddr != "" {
		observability.Go(ctx, func() { l.Error(http.ListenAndServe(*netPprofAddr, nil)) })
	}

	input, err := os.ReadFile(pflag.Arg(0))
	assertNoError(err)

	e := engine.New(engine.Config{
		NoiseReductionLevel: pipeline.Level(*levelFlag),
		Algorithm:           engine.Algorithm(*algorithmFlag),
		AllowDegraded:       *allowDegradedFlag,
		AGCEnabled:          *agcFlag,
	})
	assertNoError(e.Initialize(ctx))
	defer func() { assertNoError(e.Destroy(ctx, false)) }()

	if e.DegradedMode() {
		logger.Warnf(ctx, "running in the degraded mode: the neural backend is unavailable")
	}

	var output []byte
	if strings.HasSuffix(strings.ToLower(pflag.Arg(0)), ".ogg") {
		output, err = e.ProcessOggFile(ctx, input)
	} else {
		output, err = e.ProcessFile(ctx, input)
	}
	assertNoError(err)

	assertNoError(os.WriteFile(pflag.Arg(1), output, 0640))
}

func assertNoError(err error) {
	if err != nil {
		panic(err)
	}
}
