package monitor

import (
	"fmt"

	"github.com/sweeney/power-monitor/internal/power"
)

// NotAvailable is the status reply when no source produced data.
const NotAvailable = "Battery information not available."

// FormatPercent renders a battery level as "87%", or "n/a" when unknown.
func FormatPercent(p *float64) string {
	if p == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.0f%%", *p)
}

// FormatStatus renders a one-line status such as "Power ON - Battery: 87%".
// A snapshot without a known plugged state reads "Unknown - Battery: 87%".
func FormatStatus(snap power.Snapshot, ok bool) string {
	if !ok {
		return NotAvailable
	}
	state := "Unknown"
	if snap.Plugged.Known() {
		state = "Power " + snap.Plugged.String()
	}
	return fmt.Sprintf("%s - Battery: %s", state, FormatPercent(snap.Percent))
}
