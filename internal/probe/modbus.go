package probe

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/goburrow/modbus"

	"github.com/sweeney/power-monitor/internal/platform"
	"github.com/sweeney/power-monitor/internal/power"
)

// ModbusConfig describes a battery inverter or UPS exposing its state of
// charge and grid presence as holding registers.
type ModbusConfig struct {
	Endpoint     string
	SlaveID      byte
	SOCRegister  uint16
	SOCScale     float64
	GridRegister uint16
	Timeout      time.Duration
}

// registerReader is the part of modbus.Client the adapter needs.
type registerReader interface {
	ReadHoldingRegisters(address, quantity uint16) ([]byte, error)
}

// ModbusAdapter reads two holding registers per sample. The TCP connection
// is opened lazily and dropped after any error so the next tick reconnects.
type ModbusAdapter struct {
	cfg ModbusConfig

	mu      sync.Mutex
	handler *modbus.TCPClientHandler
	client  registerReader
}

// NewModbusAdapter validates cfg and creates an adapter.
func NewModbusAdapter(cfg ModbusConfig) (*ModbusAdapter, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("modbus: endpoint required")
	}
	if cfg.SOCScale == 0 {
		cfg.SOCScale = 1
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Second
	}
	return &ModbusAdapter{cfg: cfg}, nil
}

func (a *ModbusAdapter) Name() string { return "modbus" }

func (a *ModbusAdapter) Supports(platform.Platform) bool { return true }

func (a *ModbusAdapter) Read(ctx context.Context) (power.Snapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client == nil {
		if err := a.connect(); err != nil {
			return power.Snapshot{}, err
		}
	}

	snap, err := readModbus(a.client, a.cfg)
	if err != nil {
		a.closeLocked()
		return power.Snapshot{}, err
	}
	return snap, nil
}

// Close drops the TCP connection.
func (a *ModbusAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closeLocked()
}

func (a *ModbusAdapter) connect() error {
	h := modbus.NewTCPClientHandler(a.cfg.Endpoint)
	h.Timeout = a.cfg.Timeout
	h.SlaveId = a.cfg.SlaveID
	if err := h.Connect(); err != nil {
		return fmt.Errorf("modbus: connect %s: %w", a.cfg.Endpoint, err)
	}
	a.handler = h
	a.client = modbus.NewClient(h)
	return nil
}

func (a *ModbusAdapter) closeLocked() error {
	a.client = nil
	if a.handler == nil {
		return nil
	}
	h := a.handler
	a.handler = nil
	return h.Close()
}

func readModbus(c registerReader, cfg ModbusConfig) (power.Snapshot, error) {
	grid, err := readRegister(c, cfg.GridRegister)
	if err != nil {
		return power.Snapshot{}, fmt.Errorf("modbus: grid register %d: %w", cfg.GridRegister, err)
	}
	soc, err := readRegister(c, cfg.SOCRegister)
	if err != nil {
		return power.Snapshot{}, fmt.Errorf("modbus: soc register %d: %w", cfg.SOCRegister, err)
	}
	return power.Snapshot{
		Percent: power.Pct(float64(soc) * cfg.SOCScale),
		Plugged: power.StateFromBool(grid != 0),
		Source:  "modbus:" + cfg.Endpoint,
	}, nil
}

func readRegister(c registerReader, addr uint16) (uint16, error) {
	b, err := c.ReadHoldingRegisters(addr, 1)
	if err != nil {
		return 0, err
	}
	if len(b) < 2 {
		return 0, fmt.Errorf("short response (%d bytes)", len(b))
	}
	return binary.BigEndian.Uint16(b), nil
}
