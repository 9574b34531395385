// Package mqtt publishes power transitions and daemon lifecycle events to an
// MQTT broker.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/power-monitor/internal/power"
)

const (
	// TopicEvents carries one message per power transition.
	TopicEvents = "power/monitor/events"

	// TopicSystem carries STARTUP, SHUTDOWN and HEARTBEAT messages.
	TopicSystem = "power/monitor/system"
)

// Publisher publishes events to MQTT. Errors are reported to the caller but
// must never stop the daemon.
type Publisher interface {
	Publish(event power.Event) error
	PublishSystem(event SystemEvent) error
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent is a daemon lifecycle message.
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // STARTUP, SHUTDOWN, HEARTBEAT
	Reason     string // signal name, shutdown only
	RawPayload []byte // if set, sent verbatim
	Retained   bool
}

// Payload is the message published on TopicEvents.
type Payload struct {
	Power PowerPayload `json:"power"`
}

// PowerPayload describes one transition.
type PowerPayload struct {
	ID        string   `json:"id"`
	Timestamp string   `json:"timestamp"`
	Event     string   `json:"event"`
	State     string   `json:"state"`
	Percent   *float64 `json:"percent,omitempty"`
	Remaining string   `json:"remaining,omitempty"`
	Source    string   `json:"source,omitempty"`
}

// NewEventID returns a fresh message id.
func NewEventID() string {
	return uuid.NewString()
}

// FormatPayload creates the JSON payload for a transition.
func FormatPayload(id string, event power.Event) ([]byte, error) {
	p := PowerPayload{
		ID:        id,
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
		Event:     string(event.Type),
		State:     event.State.String(),
		Percent:   event.Snapshot.Percent,
		Source:    event.Snapshot.Source,
	}
	if event.Snapshot.Remaining.Kind != power.RemainingUnknown {
		p.Remaining = event.Snapshot.Remaining.String()
	}
	return json.Marshal(Payload{Power: p})
}

// SystemPayload is the message published on TopicSystem when the event has
// no RawPayload.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}
	return json.Marshal(SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	})
}
