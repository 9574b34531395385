package probe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/distatus/battery"

	"github.com/sweeney/power-monitor/internal/platform"
	"github.com/sweeney/power-monitor/internal/power"
)

// BatteryAdapter reads the operating system's battery API. Multiple
// batteries are combined into one snapshot.
type BatteryAdapter struct {
	getAll func() ([]*battery.Battery, error)
}

// NewBatteryAdapter creates an adapter backed by the OS battery API.
func NewBatteryAdapter() *BatteryAdapter {
	return &BatteryAdapter{getAll: battery.GetAll}
}

func (a *BatteryAdapter) Name() string { return "battery" }

func (a *BatteryAdapter) Supports(platform.Platform) bool { return true }

// Read returns ErrUnavailable when the host has no battery or none of the
// batteries report a charging state.
func (a *BatteryAdapter) Read(ctx context.Context) (power.Snapshot, error) {
	bats, err := a.getAll()
	if err != nil {
		var partial battery.Errors
		if !errors.As(err, &partial) {
			return power.Snapshot{}, fmt.Errorf("battery: %w", err)
		}
	}
	return combineBatteries(bats)
}

func combineBatteries(bats []*battery.Battery) (power.Snapshot, error) {
	var (
		current, full, rate float64
		seen                bool
		state               = power.StateUnknown
	)
	for _, b := range bats {
		if b == nil {
			continue
		}
		seen = true
		if b.Full > 0 {
			current += b.Current
			full += b.Full
		}
		rate += b.ChargeRate

		switch s := batteryState(b.State.String()); s {
		case power.StateOn:
			state = power.StateOn
		case power.StateOff:
			if state == power.StateUnknown {
				state = power.StateOff
			}
		}
	}
	if !seen || state == power.StateUnknown {
		return power.Snapshot{}, ErrUnavailable
	}

	snap := power.Snapshot{Plugged: state, Source: "battery"}
	if full > 0 {
		snap.Percent = power.Pct(current / full * 100)
	}
	switch {
	case state == power.StateOn:
		snap.Remaining = power.Unlimited()
	case rate > 0:
		snap.Remaining = power.RemainingFor(int(current / rate * 3600))
	}
	return snap, nil
}

// batteryState maps the battery library's state names.
// Idle is what Linux reports as "Not charging": plugged in, charge held.
func batteryState(name string) power.State {
	switch strings.ToLower(name) {
	case "charging", "full", "idle":
		return power.StateOn
	case "discharging", "empty":
		return power.StateOff
	default:
		return power.StateUnknown
	}
}
