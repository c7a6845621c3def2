package engine

import (
	"context"
	"runtime"

	"github.com/davecgh/go-spew/spew"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/voxfilter-go/voxfilter/pkg/suppression/rnnoise"
)

// Capabilities describes what this build of the module can do.
type Capabilities struct {
	NeuralSuppression bool
	NoiseGate         bool
	Recording         bool
}

// Diagnostics is the state dump for bug reports and the service
// endpoint.
type Diagnostics struct {
	Version        string
	State          State
	DegradedMode   bool
	DegradedCause  string
	ActiveStreams  int
	RetainedChunks int

	GoVersion    string
	OS           string
	Arch         string
	NumCPU       int
	NumGoroutine int

	MemAllocBytes uint64
	MemSysBytes   uint64

	Capabilities Capabilities
	ErrorHistory []RecordedError
}

// Diagnostics collects a consistent snapshot of the engine and the
// process around it.
func (e *Engine) Diagnostics(ctx context.Context) Diagnostics {
	e.locker.Lock()
	degraded := e.degraded
	degradedCause := ""
	if e.degradedCause != nil {
		degradedCause = e.degradedCause.Error()
	}
	activeStreams := len(e.sessions)
	e.locker.Unlock()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	d := Diagnostics{
		Version:        Version,
		State:          e.sm.State(),
		DegradedMode:   degraded,
		DegradedCause:  degradedCause,
		ActiveStreams:  activeStreams,
		RetainedChunks: e.guard.Len(),

		GoVersion:    runtime.Version(),
		OS:           runtime.GOOS,
		Arch:         runtime.GOARCH,
		NumCPU:       runtime.NumCPU(),
		NumGoroutine: runtime.NumGoroutine(),

		MemAllocBytes: memStats.Alloc,
		MemSysBytes:   memStats.Sys,

		Capabilities: Capabilities{
			NeuralSuppression: rnnoise.Supported,
			NoiseGate:         true,
			Recording:         true,
		},
		ErrorHistory: e.history.List(),
	}
	logger.Tracef(ctx, "diagnostics: %s", spew.Sdump(d))
	return d
}
