package gpio

import (
	"errors"
	"testing"
)

func TestFakeReaderRead(t *testing.T) {
	f := NewFakeReader(true, false, true)

	for i, want := range []bool{true, false, true, true} {
		got, err := f.Read()
		if err != nil {
			t.Fatalf("read %d: unexpected error: %v", i, err)
		}
		if got != want {
			t.Errorf("read %d: got %v, want %v", i, got, want)
		}
	}
}

func TestFakeReaderNoSamples(t *testing.T) {
	f := NewFakeReader()

	if _, err := f.Read(); !errors.Is(err, ErrNoLevels) {
		t.Errorf("got %v, want ErrNoLevels", err)
	}
}

func TestFakeReaderError(t *testing.T) {
	f := NewFakeReader(true)
	f.ReadError = errors.New("line busy")

	if _, err := f.Read(); err != f.ReadError {
		t.Errorf("got %v, want scripted error", err)
	}
}

func TestFakeReaderCloseAndReset(t *testing.T) {
	f := NewFakeReader(true, false)

	if f.Closed {
		t.Error("should not be closed initially")
	}
	if err := f.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !f.Closed {
		t.Error("should be closed after Close()")
	}

	f.Read()
	f.Reset()
	if f.Closed {
		t.Error("Reset should clear Closed")
	}
	if v, _ := f.Read(); v != true {
		t.Errorf("after reset: expected true, got %v", v)
	}
}

func TestLogical(t *testing.T) {
	tests := []struct {
		raw       int
		activeLow bool
		want      bool
	}{
		{1, false, true},
		{0, false, false},
		{1, true, false},
		{0, true, true},
	}
	for _, tt := range tests {
		if got := logical(tt.raw, tt.activeLow); got != tt.want {
			t.Errorf("logical(%d, %v): got %v, want %v", tt.raw, tt.activeLow, got, tt.want)
		}
	}
}
