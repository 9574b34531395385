package probe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/distatus/battery"
	"github.com/gosnmp/gosnmp"

	"github.com/sweeney/power-monitor/internal/gpio"
	"github.com/sweeney/power-monitor/internal/platform"
	"github.com/sweeney/power-monitor/internal/power"
)

// --- sysfs ---

func writeSupply(t *testing.T, root, name, status, capacity string) {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if status != "" {
		if err := os.WriteFile(filepath.Join(dir, "status"), []byte(status+"\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if capacity != "" {
		if err := os.WriteFile(filepath.Join(dir, "capacity"), []byte(capacity+"\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestSysfsStatuses(t *testing.T) {
	tests := []struct {
		status string
		want   power.State
	}{
		{"Charging", power.StateOn},
		{"Full", power.StateOn},
		{"pending_charge", power.StateOn},
		{"Discharging", power.StateOff},
		{"Not charging", power.StateOff},
		{"Unknown", power.StateOff},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			root := t.TempDir()
			writeSupply(t, root, "BAT0", tt.status, "87")

			snap, err := NewSysfsAdapter(root).Read(context.Background())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if snap.Plugged != tt.want {
				t.Errorf("plugged: got %s, want %s", snap.Plugged, tt.want)
			}
			if snap.Percent == nil || *snap.Percent != 87 {
				t.Errorf("percent: got %v, want 87", snap.Percent)
			}
			if snap.Source != "sysfs:BAT0" {
				t.Errorf("source: got %q", snap.Source)
			}
		})
	}
}

func TestSysfsSkipsIncompleteSupplies(t *testing.T) {
	root := t.TempDir()
	writeSupply(t, root, "AC", "", "")          // mains adapter: no status/capacity
	writeSupply(t, root, "BAT0", "Charging", "x") // bad capacity
	writeSupply(t, root, "BAT1", "Discharging", "104")

	snap, err := NewSysfsAdapter(root).Read(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Source != "sysfs:BAT1" {
		t.Errorf("source: got %q, want sysfs:BAT1", snap.Source)
	}
	if *snap.Percent != 104 {
		t.Errorf("percent must not be clamped, got %v", *snap.Percent)
	}
}

func TestSysfsMissingRoot(t *testing.T) {
	_, err := NewSysfsAdapter(filepath.Join(t.TempDir(), "nope")).Read(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestSysfsNoBattery(t *testing.T) {
	root := t.TempDir()
	writeSupply(t, root, "AC", "", "")
	_, err := NewSysfsAdapter(root).Read(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestSysfsSupports(t *testing.T) {
	a := NewSysfsAdapter("")
	if !a.Supports(platform.Linux) || !a.Supports(platform.Android) {
		t.Error("sysfs should support linux and android")
	}
	if a.Supports(platform.Windows) || a.Supports(platform.Mac) {
		t.Error("sysfs should not support windows or mac")
	}
}

// --- termux ---

func termuxWith(out string, err error) *TermuxAdapter {
	return &TermuxAdapter{run: func(context.Context, string) ([]byte, error) {
		return []byte(out), err
	}}
}

func TestTermuxParse(t *testing.T) {
	tests := []struct {
		name    string
		out     string
		want    power.State
		wantPct float64
	}{
		{"bool plugged", `{"health":"GOOD","percentage":95,"plugged":true}`, power.StateOn, 95},
		{"bool unplugged", `{"percentage":40,"plugged":false}`, power.StateOff, 40},
		{"string ac", `{"percentage":60,"plugged":"PLUGGED_AC","status":"CHARGING"}`, power.StateOn, 60},
		{"string usb", `{"percentage":61,"plugged":"PLUGGED_USB"}`, power.StateOn, 61},
		{"string unplugged", `{"percentage":62,"plugged":"UNPLUGGED"}`, power.StateOff, 62},
		{"missing plugged", `{"percentage":63}`, power.StateUnknown, 63},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, err := termuxWith(tt.out, nil).Read(context.Background())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if snap.Plugged != tt.want {
				t.Errorf("plugged: got %s, want %s", snap.Plugged, tt.want)
			}
			if snap.Percent == nil || *snap.Percent != tt.wantPct {
				t.Errorf("percent: got %v, want %v", snap.Percent, tt.wantPct)
			}
		})
	}
}

func TestTermuxCommandNotFound(t *testing.T) {
	_, err := termuxWith("", &exec.Error{Name: TermuxCommand, Err: exec.ErrNotFound}).Read(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestTermuxMalformed(t *testing.T) {
	_, err := termuxWith("not json", nil).Read(context.Background())
	if err == nil || errors.Is(err, ErrUnavailable) {
		t.Errorf("expected adapter error, got %v", err)
	}
}

func TestTermuxEmptyOutput(t *testing.T) {
	_, err := termuxWith("  \n", nil).Read(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestTermuxAndroidOnly(t *testing.T) {
	a := NewTermuxAdapter()
	if !a.Supports(platform.Android) || a.Supports(platform.Linux) {
		t.Error("termux should support android only")
	}
}

// --- battery ---

func TestBatteryStateNames(t *testing.T) {
	tests := map[string]power.State{
		"Charging":    power.StateOn,
		"Full":        power.StateOn,
		"Idle":        power.StateOn,
		"Discharging": power.StateOff,
		"Empty":       power.StateOff,
		"Unknown":     power.StateUnknown,
		"":            power.StateUnknown,
	}
	for name, want := range tests {
		if got := batteryState(name); got != want {
			t.Errorf("%q: got %s, want %s", name, got, want)
		}
	}
}

func TestBatteryNoBatteries(t *testing.T) {
	a := &BatteryAdapter{getAll: func() ([]*battery.Battery, error) { return nil, nil }}
	if _, err := a.Read(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestBatteryFatalError(t *testing.T) {
	a := &BatteryAdapter{getAll: func() ([]*battery.Battery, error) {
		return nil, fmt.Errorf("no such device")
	}}
	_, err := a.Read(context.Background())
	if err == nil || errors.Is(err, ErrUnavailable) {
		t.Errorf("expected adapter error, got %v", err)
	}
}

func TestBatteryUnknownStateIsUnavailable(t *testing.T) {
	a := &BatteryAdapter{getAll: func() ([]*battery.Battery, error) {
		return []*battery.Battery{nil, {Current: 10, Full: 20}}, nil
	}}
	if _, err := a.Read(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

// --- gpio ---

func TestGPIOAdapter(t *testing.T) {
	r := gpio.NewFakeReader(true, false)
	a := NewGPIOAdapter(r)
	ctx := context.Background()

	snap, err := a.Read(ctx)
	if err != nil || snap.Plugged != power.StateOn {
		t.Fatalf("first read: %+v, %v", snap, err)
	}
	if snap.Percent != nil {
		t.Errorf("gpio has no percentage, got %v", *snap.Percent)
	}
	snap, _ = a.Read(ctx)
	if snap.Plugged != power.StateOff {
		t.Errorf("second read: got %s, want OFF", snap.Plugged)
	}

	r.ReadError = errors.New("line released")
	if _, err := a.Read(ctx); err == nil {
		t.Error("expected read error")
	}

	if err := a.Close(); err != nil || !r.Closed {
		t.Errorf("close: err=%v closed=%v", err, r.Closed)
	}
}

// --- snmp ---

func pdu(oid string, v int) gosnmp.SnmpPDU {
	return gosnmp.SnmpPDU{Name: "." + oid, Type: gosnmp.Integer, Value: v}
}

func TestSnapshotFromUPS(t *testing.T) {
	tests := []struct {
		name      string
		source    int
		want      power.State
		remaining power.RemainingKind
	}{
		{"normal", upsSourceNormal, power.StateOn, power.RemainingUnlimited},
		{"bypass", upsSourceBypass, power.StateOn, power.RemainingUnlimited},
		{"battery", upsSourceBattery, power.StateOff, power.RemainingSeconds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, err := snapshotFromUPS([]gosnmp.SnmpPDU{
				pdu(OIDupsOutputSource, tt.source),
				pdu(OIDupsEstimatedChargeRemaining, 77),
				pdu(OIDupsEstimatedMinutesRemaining, 42),
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if snap.Plugged != tt.want {
				t.Errorf("plugged: got %s, want %s", snap.Plugged, tt.want)
			}
			if snap.Percent == nil || *snap.Percent != 77 {
				t.Errorf("percent: got %v", snap.Percent)
			}
			if snap.Remaining.Kind != tt.remaining {
				t.Errorf("remaining: got %+v", snap.Remaining)
			}
			if tt.remaining == power.RemainingSeconds && snap.Remaining.Seconds != 42*60 {
				t.Errorf("seconds: got %d", snap.Remaining.Seconds)
			}
		})
	}
}

func TestSnapshotFromUPSUnavailable(t *testing.T) {
	tests := map[string][]gosnmp.SnmpPDU{
		"no source":    {pdu(OIDupsEstimatedChargeRemaining, 50)},
		"source none":  {pdu(OIDupsOutputSource, upsSourceNone)},
		"source other": {pdu(OIDupsOutputSource, upsSourceOther)},
		"no such object": {
			{Name: "." + OIDupsOutputSource, Type: gosnmp.NoSuchObject},
		},
	}
	for name, vars := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := snapshotFromUPS(vars); !errors.Is(err, ErrUnavailable) {
				t.Errorf("expected ErrUnavailable, got %v", err)
			}
		})
	}
}

func TestNewSNMPAdapterValidation(t *testing.T) {
	if _, err := NewSNMPAdapter(SNMPConfig{}); err == nil {
		t.Error("expected error without host")
	}
	if _, err := NewSNMPAdapter(SNMPConfig{Host: "ups", Version: "3"}); err == nil {
		t.Error("expected error for v3")
	}
	if _, err := NewSNMPAdapter(SNMPConfig{Host: "ups", Version: "1"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

// --- modbus ---

type fakeRegisters struct {
	values map[uint16]uint16
	err    error
}

func (f *fakeRegisters) ReadHoldingRegisters(address, quantity uint16) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.values[address]
	if !ok {
		return []byte{}, nil
	}
	return []byte{byte(v >> 8), byte(v)}, nil
}

func TestReadModbus(t *testing.T) {
	cfg := ModbusConfig{Endpoint: "inverter:502", SOCRegister: 10, GridRegister: 20, SOCScale: 0.1}

	snap, err := readModbus(&fakeRegisters{values: map[uint16]uint16{10: 875, 20: 1}}, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Plugged != power.StateOn {
		t.Errorf("plugged: got %s", snap.Plugged)
	}
	if snap.Percent == nil || *snap.Percent < 87.49 || *snap.Percent > 87.51 {
		t.Errorf("percent: got %v, want 87.5", snap.Percent)
	}
	if snap.Source != "modbus:inverter:502" {
		t.Errorf("source: got %q", snap.Source)
	}

	snap, _ = readModbus(&fakeRegisters{values: map[uint16]uint16{10: 500, 20: 0}}, cfg)
	if snap.Plugged != power.StateOff {
		t.Errorf("grid=0: got %s, want OFF", snap.Plugged)
	}
}

func TestReadModbusErrors(t *testing.T) {
	cfg := ModbusConfig{SOCRegister: 10, GridRegister: 20}

	if _, err := readModbus(&fakeRegisters{err: errors.New("timeout")}, cfg); err == nil {
		t.Error("expected transport error")
	}
	if _, err := readModbus(&fakeRegisters{values: map[uint16]uint16{20: 1}}, cfg); err == nil {
		t.Error("expected short response error")
	}
}

func TestModbusReadWithoutServer(t *testing.T) {
	a, err := NewModbusAdapter(ModbusConfig{Endpoint: "127.0.0.1:1", Timeout: 100 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.Read(context.Background()); err == nil {
		t.Error("expected connection error")
	}
	if err := a.Close(); err != nil {
		t.Errorf("close after failed connect: %v", err)
	}
}
