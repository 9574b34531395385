package probe

import (
	"context"
	"fmt"

	"github.com/sweeney/power-monitor/internal/gpio"
	"github.com/sweeney/power-monitor/internal/platform"
	"github.com/sweeney/power-monitor/internal/power"
)

// GPIOAdapter reports the state of a power-good input pin. It has no charge
// level.
type GPIOAdapter struct {
	reader gpio.Reader
}

// NewGPIOAdapter wraps an open GPIO reader.
func NewGPIOAdapter(r gpio.Reader) *GPIOAdapter {
	return &GPIOAdapter{reader: r}
}

func (a *GPIOAdapter) Name() string { return "gpio" }

func (a *GPIOAdapter) Supports(p platform.Platform) bool {
	return p == platform.Linux
}

func (a *GPIOAdapter) Read(ctx context.Context) (power.Snapshot, error) {
	on, err := a.reader.Read()
	if err != nil {
		return power.Snapshot{}, fmt.Errorf("gpio: %w", err)
	}
	return power.Snapshot{Plugged: power.StateFromBool(on), Source: "gpio"}, nil
}

// Close releases the underlying reader.
func (a *GPIOAdapter) Close() error {
	return a.reader.Close()
}
