// Package status provides a thread-safe view of the daemon's state for the
// HTTP status page and MQTT lifecycle messages.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/power-monitor/internal/power"
)

// Config contains daemon configuration for display.
type Config struct {
	Platform    string
	Adapters    []string
	PollSeconds int
	HeartbeatMs int64
	Broker      string
	HTTPAddr    string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	State         power.State
	Percent       *float64
	Remaining     power.Remaining
	Source        string
	Available     bool
	Baselined     bool
	Counts        power.EventCounts
	LastSample    time.Time
	Mode          string
	Recipients    int
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update records the outcome of one sampler tick. sample is nil when no
// source produced data; the remembered state and last reading are kept.
func (t *Tracker) Update(sample *power.Snapshot, state power.State, baselined bool, counts power.EventCounts, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.State = state
	t.snap.Baselined = baselined
	t.snap.Counts = counts
	t.snap.Available = sample != nil
	if sample == nil {
		return
	}
	t.snap.Percent = sample.Percent
	t.snap.Remaining = sample.Remaining
	t.snap.Source = sample.Source
	t.snap.LastSample = at
}

// SetRecipients records the mode and the size of the current recipient set.
func (t *Tracker) SetRecipients(mode string, count int) {
	t.mu.Lock()
	t.snap.Mode = mode
	t.snap.Recipients = count
	t.mu.Unlock()
}

// SetPollInterval updates the displayed poll interval.
func (t *Tracker) SetPollInterval(seconds int) {
	t.mu.Lock()
	t.snap.Config.PollSeconds = seconds
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Config.Adapters = append([]string(nil), t.snap.Config.Adapters...)
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
