// Package processor implements the processor fan-out: one dedicated
// worker per pipeline, decoding bus items into protocol-table mutations.
// A disconnected pipeline (its channel closed and drained) is fatal: the
// tap without a live capture source is useless, so the worker terminates
// the process with a distinguished exit code.
package processor

import (
	"os"

	"github.com/sourcegraph/conc"

	"github.com/otus-tap/agent/internal/log"
)

// ExUnavailable is the sysexits(3) EX_UNAVAILABLE code returned when a
// pipeline receiver disconnects.
const ExUnavailable = 69

// Fanout owns one goroutine per pipeline processor. Workers are spawned
// with conc.WaitGroup, so a panic inside a single processor is recovered
// and held, ending only that worker, and is re-panicked when Wait is
// called. The panic is not logged.
type Fanout struct {
	wg conc.WaitGroup
}

// New constructs an empty Fanout; call Spawn for each worker before Wait.
func New() *Fanout {
	return &Fanout{}
}

// Spawn starts one worker loop: run is called repeatedly until it returns
// false, at which point the pipeline is considered disconnected and the
// process exits with ExUnavailable. name identifies the pipeline in logs.
func (f *Fanout) Spawn(name string, run func() bool) {
	f.wg.Go(func() {
		for run() {
		}
		log.GetLogger().WithField("pipeline", name).Error("pipeline receiver disconnected, tap is no longer useful")
		os.Exit(ExUnavailable)
	})
}

// Wait blocks until every worker goroutine exits (which, for this fan-out,
// only happens via panic recovery re-raising in the caller's goroutine, or
// process exit from Spawn's own os.Exit). The daemon does not call it.
func (f *Fanout) Wait() {
	f.wg.Wait()
}
