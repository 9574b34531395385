package probe

import (
	"context"
	"sync"

	"github.com/sweeney/power-monitor/internal/platform"
	"github.com/sweeney/power-monitor/internal/power"
)

// Result is one scripted FakeAdapter outcome.
type Result struct {
	Snapshot power.Snapshot
	Err      error
}

// Unavailable is a scripted result that reports no data.
func Unavailable() Result {
	return Result{Err: ErrUnavailable}
}

// Plugged is a scripted result with a known state.
func Plugged(on bool) Result {
	return Result{Snapshot: power.Snapshot{Plugged: power.StateFromBool(on), Source: "fake"}}
}

// FakeAdapter is a test double that returns scripted results. Read is safe
// for concurrent use; read Calls only once the readers are done.
type FakeAdapter struct {
	mu sync.Mutex

	// AdapterName is returned by Name. Defaults to "fake".
	AdapterName string

	// Platforms restricts Supports. Empty means every platform.
	Platforms []platform.Platform

	// Results are consumed one per Read; the last one repeats.
	Results []Result

	// Calls counts Read invocations.
	Calls int

	// Panic, if set, makes Read panic with this value.
	Panic any

	index int
}

// NewFakeAdapter creates a FakeAdapter with the given results.
func NewFakeAdapter(results ...Result) *FakeAdapter {
	return &FakeAdapter{Results: results}
}

// Name returns the adapter name.
func (f *FakeAdapter) Name() string {
	if f.AdapterName == "" {
		return "fake"
	}
	return f.AdapterName
}

// Supports reports whether p is in Platforms (or Platforms is empty).
func (f *FakeAdapter) Supports(p platform.Platform) bool {
	return len(f.Platforms) == 0 || p.In(f.Platforms...)
}

// Read returns the next scripted result.
func (f *FakeAdapter) Read(ctx context.Context) (power.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls++
	if f.Panic != nil {
		panic(f.Panic)
	}
	if len(f.Results) == 0 {
		return power.Snapshot{}, ErrUnavailable
	}
	r := f.Results[f.index]
	if f.index < len(f.Results)-1 {
		f.index++
	}
	return r.Snapshot, r.Err
}
