package power

import "time"

// Detector remembers the last known plugged state and turns samples into
// transition events. Unavailable samples and samples with an unknown state
// are ignored entirely: they never produce an event and never reset tracking.
type Detector struct {
	prev          State
	startTime     time.Time
	eventCounts   EventCounts
	lastHeartbeat time.Time
	lastSample    time.Time
}

// NewDetector creates a detector with no baseline.
// The startTime is used for calculating uptime in heartbeat events.
func NewDetector(startTime time.Time) *Detector {
	return &Detector{
		startTime:     startTime,
		lastHeartbeat: startTime,
	}
}

// Process takes a new sample and returns the transition it confirms, if any.
// The first known sample establishes the baseline and returns nil.
func (d *Detector) Process(input Input) *Event {
	if input.Snapshot == nil || !input.Snapshot.Plugged.Known() {
		return nil
	}
	d.lastSample = input.Time
	now := input.Snapshot.Plugged

	if d.prev == StateUnknown {
		d.prev = now
		return nil
	}

	if now == d.prev {
		return nil
	}

	d.prev = now
	event := &Event{
		Timestamp: input.Time,
		State:     now,
		Snapshot:  *input.Snapshot,
	}
	if now == StateOn {
		event.Type = EventPowerOn
		d.eventCounts.On++
	} else {
		event.Type = EventPowerOff
		d.eventCounts.Off++
	}
	return event
}

// IsBaselined returns whether a known sample has been seen.
func (d *Detector) IsBaselined() bool {
	return d.prev != StateUnknown
}

// CurrentState returns the last known state (StateUnknown before baseline).
func (d *Detector) CurrentState() State {
	return d.prev
}

// LastSample returns the time of the last known sample.
func (d *Detector) LastSample() time.Time {
	return d.lastSample
}

// EventCountsSnapshot returns a copy of the event counters.
func (d *Detector) EventCountsSnapshot() EventCounts {
	return d.eventCounts
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since the
// last heartbeat (or startup). Returns nil if not yet baselined, if the
// interval has not elapsed, or if interval is <= 0 (disabled).
func (d *Detector) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}

	if !d.IsBaselined() {
		return nil
	}

	if now.Sub(d.lastHeartbeat) < interval {
		return nil
	}

	d.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(d.startTime),
		Counts:    d.eventCounts,
	}
}
