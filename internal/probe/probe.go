// Package probe reads the current power state from an ordered chain of
// data sources. The first source that produces a snapshot wins; sources that
// fail or have nothing to report are skipped.
package probe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/op/go-logging"

	"github.com/sweeney/power-monitor/internal/platform"
	"github.com/sweeney/power-monitor/internal/power"
)

var log = logging.MustGetLogger("probe")

// ErrUnavailable is returned by an adapter that has no data to report.
var ErrUnavailable = errors.New("probe: source unavailable")

// DefaultReadTimeout bounds a single adapter read.
const DefaultReadTimeout = 5 * time.Second

// Adapter is a single data source.
type Adapter interface {
	// Name identifies the source in logs and snapshots.
	Name() string

	// Supports reports whether the source applies to the platform.
	// Unsupported adapters are never invoked.
	Supports(p platform.Platform) bool

	// Read returns a snapshot, ErrUnavailable, or an adapter error.
	Read(ctx context.Context) (power.Snapshot, error)
}

// Probe tries its adapters in order.
type Probe struct {
	platform    platform.Platform
	adapters    []Adapter
	readTimeout time.Duration
}

// New creates a Probe bound to a platform.
func New(p platform.Platform, adapters ...Adapter) *Probe {
	return &Probe{
		platform:    p,
		adapters:    adapters,
		readTimeout: DefaultReadTimeout,
	}
}

// SetReadTimeout overrides the per-adapter timeout. Zero disables it.
func (p *Probe) SetReadTimeout(d time.Duration) {
	p.readTimeout = d
}

// Platform returns the platform the probe was built for.
func (p *Probe) Platform() platform.Platform {
	return p.platform
}

// Adapters returns the names of the adapters applicable to this platform,
// in the order they are tried.
func (p *Probe) Adapters() []string {
	var names []string
	for _, a := range p.adapters {
		if a.Supports(p.platform) {
			names = append(names, a.Name())
		}
	}
	return names
}

// Sample returns the first snapshot any applicable adapter produces.
// ok is false when every adapter was unavailable or failed.
func (p *Probe) Sample(ctx context.Context) (snap power.Snapshot, ok bool) {
	for _, a := range p.adapters {
		if !a.Supports(p.platform) {
			continue
		}
		s, err := p.read(ctx, a)
		if err == nil {
			if s.Source == "" {
				s.Source = a.Name()
			}
			return s, true
		}
		if errors.Is(err, ErrUnavailable) {
			log.Debugf("%s: unavailable", a.Name())
		} else {
			log.Debugf("%s: %v", a.Name(), err)
		}
		if ctx.Err() != nil {
			break
		}
	}
	return power.Snapshot{}, false
}

// read calls one adapter and gives up when the read timeout expires, even if
// the adapter ignores ctx. A panic in the adapter becomes an error.
func (p *Probe) read(ctx context.Context, a Adapter) (power.Snapshot, error) {
	if p.readTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.readTimeout)
		defer cancel()
	}

	type result struct {
		snap power.Snapshot
		err  error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("adapter panic: %v", r)}
			}
		}()
		snap, err := a.Read(ctx)
		done <- result{snap: snap, err: err}
	}()

	select {
	case r := <-done:
		return r.snap, r.err
	case <-ctx.Done():
		return power.Snapshot{}, fmt.Errorf("read: %w", ctx.Err())
	}
}
