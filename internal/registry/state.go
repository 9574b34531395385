package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultPollInterval is used when the state file has no valid interval.
const DefaultPollInterval = 5

// Mode selects the access policy and the notification recipients.
type Mode string

const (
	ModeAdmin Mode = "admin"
	ModeMulti Mode = "multi"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeAdmin || m == ModeMulti
}

// State is the on-disk record. Platform and BotToken are owned by the
// bootstrap layer; the registry carries them through unchanged.
type State struct {
	Platform      string  `json:"platform"`
	BotToken      *string `json:"bot_token"`
	Mode          Mode    `json:"mode"`
	AdminIDs      []int64 `json:"admin_ids"`
	RegisteredIDs []int64 `json:"registered_ids"`
	PollInterval  int     `json:"poll_interval"`
}

// DefaultState returns the state written on first run.
func DefaultState(platform string) State {
	return State{
		Platform:      platform,
		Mode:          ModeMulti,
		AdminIDs:      []int64{},
		RegisteredIDs: []int64{},
		PollInterval:  DefaultPollInterval,
	}
}

// Token returns the bot token or "".
func (s State) Token() string {
	if s.BotToken == nil {
		return ""
	}
	return *s.BotToken
}

// normalize fills defaults for fields an older or hand-edited file may lack.
func (s *State) normalize() {
	if !s.Mode.Valid() {
		s.Mode = ModeMulti
	}
	if s.PollInterval <= 0 {
		s.PollInterval = DefaultPollInterval
	}
	if s.AdminIDs == nil {
		s.AdminIDs = []int64{}
	}
	if s.RegisteredIDs == nil {
		s.RegisteredIDs = []int64{}
	}
}

// PersistError reports a failed state write. The previous file is intact.
type PersistError struct {
	Path string
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Path, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}

// ReadState loads the state file. A missing file returns os.ErrNotExist.
func ReadState(path string) (State, error) {
	var st State
	data, err := os.ReadFile(path)
	if err != nil {
		return st, err
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return st, fmt.Errorf("corrupt state file %s: %w", path, err)
	}
	st.normalize()
	return st, nil
}

// WriteState replaces path with st. The data is written to a temporary file
// in the same directory, synced, renamed over path, and the directory is
// synced, so a reader sees either the old or the new file.
func WriteState(path string, st State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return &PersistError{Path: path, Err: err}
	}
	if err := writeAtomic(path, data, 0o600); err != nil {
		return &PersistError{Path: path, Err: err}
	}
	return nil
}

func writeAtomic(path string, data []byte, perm os.FileMode) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Chmod(perm); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return err
	}
	syncDir(dir)
	return nil
}

// syncDir flushes the directory entry after a rename, best effort.
func syncDir(dir string) {
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		d.Close()
	}
}

// IsNotExist reports whether err means the state file has not been created.
func IsNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
