// Package power contains pure business logic for power state tracking.
// This package has NO external dependencies (no probes, transport, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package power

import (
	"fmt"
	"time"
)

// State represents whether external power is connected.
// The zero value is StateUnknown, which is distinct from StateOff.
type State string

const (
	StateUnknown State = ""
	StateOn      State = "ON"
	StateOff     State = "OFF"
)

// StateFromBool maps a plugged flag to a known state.
func StateFromBool(plugged bool) State {
	if plugged {
		return StateOn
	}
	return StateOff
}

// Known reports whether s is ON or OFF.
func (s State) Known() bool {
	return s == StateOn || s == StateOff
}

// String returns "UNKNOWN" for the zero state.
func (s State) String() string {
	if s == StateUnknown {
		return "UNKNOWN"
	}
	return string(s)
}

// RemainingKind tags a Remaining value.
type RemainingKind int

const (
	RemainingUnknown RemainingKind = iota
	RemainingUnlimited
	RemainingSeconds
)

// Remaining is the estimated battery runtime left.
type Remaining struct {
	Kind    RemainingKind
	Seconds int
}

// RemainingFor returns a known runtime estimate.
func RemainingFor(seconds int) Remaining {
	return Remaining{Kind: RemainingSeconds, Seconds: seconds}
}

// Unlimited is the estimate reported while running from external power.
func Unlimited() Remaining {
	return Remaining{Kind: RemainingUnlimited}
}

// String formats the estimate as "unknown", "unlimited" or "1h 5m".
func (r Remaining) String() string {
	switch r.Kind {
	case RemainingUnlimited:
		return "unlimited"
	case RemainingSeconds:
		return fmt.Sprintf("%dh %dm", r.Seconds/3600, (r.Seconds%3600)/60)
	default:
		return "unknown"
	}
}

// Snapshot is a single reading from one data source.
// Percent is nil when the source cannot report a charge level; it is not
// clamped, some sources report >100 while calibrating.
type Snapshot struct {
	Percent   *float64
	Plugged   State
	Remaining Remaining
	Source    string
}

// Pct is a convenience for building snapshots with a known percentage.
func Pct(v float64) *float64 {
	return &v
}

// EventType represents a power transition.
type EventType string

const (
	EventPowerOn  EventType = "POWER_ON"
	EventPowerOff EventType = "POWER_OFF"
)

// Event is a confirmed transition to be announced.
type Event struct {
	Timestamp time.Time
	Type      EventType
	State     State
	Snapshot  Snapshot
}

// Input is the result of one probe tick. A nil Snapshot means no source
// produced data.
type Input struct {
	Snapshot *Snapshot
	Time     time.Time
}

// EventCounts tracks the number of each event type since startup.
type EventCounts struct {
	On  int
	Off int
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    EventCounts
}
