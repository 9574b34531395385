package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/sweeney/power-monitor/internal/platform"
	"github.com/sweeney/power-monitor/internal/power"
)

// TermuxCommand is the Termux:API battery command.
const TermuxCommand = "termux-battery-status"

const termuxTimeout = 3 * time.Second

// termuxStatus is the JSON printed by termux-battery-status. Older builds
// print plugged as a bool, current ones as "PLUGGED_AC", "UNPLUGGED", ...
type termuxStatus struct {
	Percentage *float64        `json:"percentage"`
	Plugged    json.RawMessage `json:"plugged"`
	Status     string          `json:"status"`
}

// TermuxAdapter runs termux-battery-status.
type TermuxAdapter struct {
	run func(ctx context.Context, name string) ([]byte, error)
}

// NewTermuxAdapter creates an adapter that shells out to TermuxCommand.
func NewTermuxAdapter() *TermuxAdapter {
	return &TermuxAdapter{run: runCommand}
}

func (a *TermuxAdapter) Name() string { return "termux" }

func (a *TermuxAdapter) Supports(p platform.Platform) bool {
	return p == platform.Android
}

func (a *TermuxAdapter) Read(ctx context.Context) (power.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, termuxTimeout)
	defer cancel()

	out, err := a.run(ctx, TermuxCommand)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return power.Snapshot{}, ErrUnavailable
		}
		return power.Snapshot{}, fmt.Errorf("termux: %w", err)
	}
	if len(strings.TrimSpace(string(out))) == 0 {
		return power.Snapshot{}, ErrUnavailable
	}
	return parseTermux(out)
}

func parseTermux(out []byte) (power.Snapshot, error) {
	var st termuxStatus
	if err := json.Unmarshal(out, &st); err != nil {
		return power.Snapshot{}, fmt.Errorf("termux: parse output: %w", err)
	}
	return power.Snapshot{
		Percent: st.Percentage,
		Plugged: termuxPlugged(st.Plugged),
		Source:  TermuxCommand,
	}, nil
}

func termuxPlugged(raw json.RawMessage) power.State {
	if len(raw) == 0 {
		return power.StateUnknown
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return power.StateFromBool(b)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return power.StateUnknown
	}
	switch s = strings.ToUpper(s); {
	case s == "UNPLUGGED":
		return power.StateOff
	case strings.HasPrefix(s, "PLUGGED"):
		return power.StateOn
	default:
		return power.StateUnknown
	}
}

func runCommand(ctx context.Context, name string) ([]byte, error) {
	return exec.CommandContext(ctx, name).Output()
}
