package probe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/sweeney/power-monitor/internal/platform"
	"github.com/sweeney/power-monitor/internal/power"
)

// UPS-MIB (RFC 1628) scalars.
const (
	OIDupsEstimatedMinutesRemaining = "1.3.6.1.2.1.33.1.2.3.0"
	OIDupsEstimatedChargeRemaining  = "1.3.6.1.2.1.33.1.2.4.0"
	OIDupsOutputSource              = "1.3.6.1.2.1.33.1.4.1.0"
)

// upsOutputSource values.
const (
	upsSourceOther   = 1
	upsSourceNone    = 2
	upsSourceNormal  = 3
	upsSourceBypass  = 4
	upsSourceBattery = 5
	upsSourceBooster = 6
	upsSourceReducer = 7
)

// SNMPConfig describes a UPS reachable over SNMP v1/v2c.
type SNMPConfig struct {
	Host      string
	Port      int
	Community string
	Version   string
	Timeout   time.Duration
}

// SNMPAdapter polls a UPS for its output source and battery charge.
type SNMPAdapter struct {
	cfg SNMPConfig
}

// NewSNMPAdapter validates cfg and creates an adapter.
func NewSNMPAdapter(cfg SNMPConfig) (*SNMPAdapter, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("snmp: host required")
	}
	if _, err := snmpVersion(cfg.Version); err != nil {
		return nil, err
	}
	return &SNMPAdapter{cfg: cfg}, nil
}

func (a *SNMPAdapter) Name() string { return "snmp" }

func (a *SNMPAdapter) Supports(platform.Platform) bool { return true }

func (a *SNMPAdapter) Read(ctx context.Context) (power.Snapshot, error) {
	client, err := newSNMPClient(ctx, a.cfg)
	if err != nil {
		return power.Snapshot{}, err
	}
	if err := client.Connect(); err != nil {
		return power.Snapshot{}, fmt.Errorf("snmp: connect %s: %w", a.cfg.Host, err)
	}
	defer client.Conn.Close()

	pkt, err := client.Get([]string{
		OIDupsOutputSource,
		OIDupsEstimatedChargeRemaining,
		OIDupsEstimatedMinutesRemaining,
	})
	if err != nil {
		return power.Snapshot{}, fmt.Errorf("snmp: get: %w", err)
	}
	if pkt.Error != gosnmp.NoError {
		return power.Snapshot{}, fmt.Errorf("snmp: agent error %v", pkt.Error)
	}
	return snapshotFromUPS(pkt.Variables)
}

func newSNMPClient(ctx context.Context, cfg SNMPConfig) (*gosnmp.GoSNMP, error) {
	version, err := snmpVersion(cfg.Version)
	if err != nil {
		return nil, err
	}
	port := cfg.Port
	if port == 0 {
		port = 161
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 2 * time.Second
	}
	community := cfg.Community
	if community == "" {
		community = "public"
	}
	return &gosnmp.GoSNMP{
		Context:   ctx,
		Target:    cfg.Host,
		Port:      uint16(port),
		Community: community,
		Version:   version,
		Timeout:   timeout,
		Retries:   1,
	}, nil
}

func snmpVersion(v string) (gosnmp.SnmpVersion, error) {
	switch v {
	case "1":
		return gosnmp.Version1, nil
	case "", "2c":
		return gosnmp.Version2c, nil
	default:
		return 0, fmt.Errorf("snmp: unsupported version %q (want 1 or 2c)", v)
	}
}

// snapshotFromUPS converts a UPS-MIB response. A missing or unrecognised
// output source makes the whole reading unavailable.
func snapshotFromUPS(vars []gosnmp.SnmpPDU) (power.Snapshot, error) {
	snap := power.Snapshot{Source: "snmp"}
	var haveSource bool

	for _, v := range vars {
		if v.Type == gosnmp.NoSuchObject || v.Type == gosnmp.NoSuchInstance || v.Type == gosnmp.Null {
			continue
		}
		n := gosnmp.ToBigInt(v.Value).Int64()
		switch strings.TrimPrefix(v.Name, ".") {
		case OIDupsOutputSource:
			haveSource = true
			snap.Plugged = upsOutputState(n)
		case OIDupsEstimatedChargeRemaining:
			snap.Percent = power.Pct(float64(n))
		case OIDupsEstimatedMinutesRemaining:
			snap.Remaining = power.RemainingFor(int(n) * 60)
		}
	}

	if !haveSource || snap.Plugged == power.StateUnknown {
		return power.Snapshot{}, ErrUnavailable
	}
	if snap.Plugged == power.StateOn {
		snap.Remaining = power.Unlimited()
	}
	return snap, nil
}

func upsOutputState(source int64) power.State {
	switch source {
	case upsSourceBattery:
		return power.StateOff
	case upsSourceNormal, upsSourceBypass, upsSourceBooster, upsSourceReducer:
		return power.StateOn
	default:
		// other, none
		return power.StateUnknown
	}
}
