package gpio

import (
	"errors"
	"sync"
)

// ErrNoLevels is returned by a FakeReader with nothing scripted.
var ErrNoLevels = errors.New("gpio: fake reader has no levels")

// FakeReader replays scripted power-good levels. The last level repeats once
// the script is used up.
type FakeReader struct {
	mu sync.Mutex

	Levels    []bool
	ReadError error
	Closed    bool

	next int
}

// NewFakeReader scripts the given levels.
func NewFakeReader(levels ...bool) *FakeReader {
	return &FakeReader{Levels: levels}
}

func (f *FakeReader) Read() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case f.ReadError != nil:
		return false, f.ReadError
	case len(f.Levels) == 0:
		return false, ErrNoLevels
	}

	v := f.Levels[f.next]
	if f.next+1 < len(f.Levels) {
		f.next++
	}
	return v, nil
}

func (f *FakeReader) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// Reset rewinds the script and reopens the reader.
func (f *FakeReader) Reset() {
	f.mu.Lock()
	f.next = 0
	f.Closed = false
	f.mu.Unlock()
}
