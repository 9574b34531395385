package probe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/sweeney/power-monitor/internal/platform"
	"github.com/sweeney/power-monitor/internal/power"
)

// DefaultSysfsRoot is where Linux exposes power supplies.
const DefaultSysfsRoot = "/sys/class/power_supply"

// chargingStatuses are the sysfs status values that mean external power is
// connected.
var chargingStatuses = map[string]bool{
	"charging":       true,
	"full":           true,
	"pending_charge": true,
}

// SysfsAdapter reads the first power supply exposing both a status and a
// capacity file.
type SysfsAdapter struct {
	root string
}

// NewSysfsAdapter creates an adapter reading root (DefaultSysfsRoot if empty).
func NewSysfsAdapter(root string) *SysfsAdapter {
	if root == "" {
		root = DefaultSysfsRoot
	}
	return &SysfsAdapter{root: root}
}

func (a *SysfsAdapter) Name() string { return "sysfs" }

func (a *SysfsAdapter) Supports(p platform.Platform) bool {
	return p.In(platform.Linux, platform.Android)
}

func (a *SysfsAdapter) Read(ctx context.Context) (power.Snapshot, error) {
	entries, err := os.ReadDir(a.root)
	if err != nil {
		if os.IsNotExist(err) {
			return power.Snapshot{}, ErrUnavailable
		}
		return power.Snapshot{}, fmt.Errorf("sysfs: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, e := range entries {
		dir := filepath.Join(a.root, e.Name())
		// power_supply entries are usually symlinks into /sys/devices
		if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
			continue
		}
		snap, err := readSupply(dir)
		if err != nil {
			log.Debugf("sysfs: %s: %v", e.Name(), err)
			continue
		}
		return snap, nil
	}
	return power.Snapshot{}, ErrUnavailable
}

func readSupply(dir string) (power.Snapshot, error) {
	status, err := readTrimmed(filepath.Join(dir, "status"))
	if err != nil {
		return power.Snapshot{}, err
	}
	capacity, err := readTrimmed(filepath.Join(dir, "capacity"))
	if err != nil {
		return power.Snapshot{}, err
	}
	pct, err := strconv.ParseFloat(capacity, 64)
	if err != nil {
		return power.Snapshot{}, fmt.Errorf("parse capacity %q: %w", capacity, err)
	}
	return power.Snapshot{
		Percent: power.Pct(pct),
		Plugged: power.StateFromBool(chargingStatuses[strings.ToLower(status)]),
		Source:  "sysfs:" + filepath.Base(dir),
	}, nil
}

func readTrimmed(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
