package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string     `json:"event,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	Power         PowerJSON  `json:"power"`
	Ready         bool       `json:"ready"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	StartTime     string     `json:"start_time"`
	Timestamp     string     `json:"timestamp"`
	MQTT          MQTTStatus `json:"mqtt"`
	Counts        CountsJSON `json:"event_counts"`
	Mode          string     `json:"mode,omitempty"`
	Recipients    int        `json:"recipients"`
	Config        ConfigJSON `json:"config"`
}

// PowerJSON is the latest reading.
type PowerJSON struct {
	State      string   `json:"state"`
	Available  bool     `json:"available"`
	Percent    *float64 `json:"percent,omitempty"`
	Remaining  string   `json:"remaining"`
	Source     string   `json:"source,omitempty"`
	LastSample string   `json:"last_sample,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	On  int `json:"power_on"`
	Off int `json:"power_off"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Platform    string   `json:"platform"`
	Adapters    []string `json:"adapters"`
	PollSeconds int      `json:"poll_seconds"`
	HeartbeatMs int64    `json:"heartbeat_ms"`
	Broker      string   `json:"broker"`
	HTTPAddr    string   `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Power: PowerJSON{
			State:     snap.State.String(),
			Available: snap.Available,
			Percent:   snap.Percent,
			Remaining: snap.Remaining.String(),
			Source:    snap.Source,
		},
		Ready:         snap.Baselined,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts:        CountsJSON{On: snap.Counts.On, Off: snap.Counts.Off},
		Mode:          snap.Mode,
		Recipients:    snap.Recipients,
		Config: ConfigJSON{
			Platform:    snap.Config.Platform,
			Adapters:    snap.Config.Adapters,
			PollSeconds: snap.Config.PollSeconds,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
		},
	}
	if !snap.LastSample.IsZero() {
		inner.Power.LastSample = snap.LastSample.UTC().Format(time.RFC3339)
	}
	if inner.Config.Adapters == nil {
		inner.Config.Adapters = []string{}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
