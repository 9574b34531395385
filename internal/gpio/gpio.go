// Package gpio reads a single power-good input line. RealReader talks to the
// Linux GPIO character device; FakeReader replays scripted levels.
package gpio

// Reader reads a power-good input, such as the mains-present pin of a UPS HAT.
type Reader interface {
	// Read returns true while external power is present.
	// ActiveLow lines are already inverted.
	Read() (bool, error)

	// Close releases GPIO resources.
	Close() error
}

// DefaultChip is the first chip on a Raspberry Pi; DisabledPin turns the
// source off.
const (
	DefaultChip = "gpiochip0"
	DisabledPin = -1
)
