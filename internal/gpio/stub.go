//go:build !linux

package gpio

import "errors"

// ErrUnsupported is returned where there is no GPIO character device.
var ErrUnsupported = errors.New("gpio: character device requires linux")

type RealReader struct{}

func NewRealReader(chipName string, pin int, activeLow bool) (*RealReader, error) {
	return nil, ErrUnsupported
}

func (r *RealReader) Read() (bool, error) { return false, ErrUnsupported }

func (r *RealReader) Close() error { return nil }
