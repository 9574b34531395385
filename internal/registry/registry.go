// Package registry holds the subscriber and admin sets and the operating
// mode, and persists them to a JSON state file on every change.
//
// All methods are safe for concurrent use. Mutations hold the write lock
// while the state file is written, so the file always matches some serial
// order of the calls that produced it. If a write fails the in-memory change
// is kept and the error is returned; the next successful mutation writes the
// complete state again.
package registry

import (
	"sort"
	"sync"

	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("registry")

// Update is the set of fields the reconfiguration flow may change.
type Update struct {
	Mode         Mode
	AdminIDs     []int64
	PollInterval int
}

// Registry is the persisted recipient registry.
type Registry struct {
	mu   sync.RWMutex
	path string

	platform     string
	token        *string
	mode         Mode
	admins       map[int64]struct{}
	subscribers  map[int64]struct{}
	pollInterval int
}

// New creates a registry from st that persists to path. Nothing is written
// until the first mutation or Save.
func New(path string, st State) *Registry {
	st.normalize()
	return &Registry{
		path:         path,
		platform:     st.Platform,
		token:        st.BotToken,
		mode:         st.Mode,
		admins:       toSet(st.AdminIDs),
		subscribers:  toSet(st.RegisteredIDs),
		pollInterval: st.PollInterval,
	}
}

// Open loads the registry from path.
func Open(path string) (*Registry, error) {
	st, err := ReadState(path)
	if err != nil {
		return nil, err
	}
	return New(path, st), nil
}

// Path returns the state file location.
func (r *Registry) Path() string {
	return r.path
}

// Save writes the current state.
func (r *Registry) Save() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.persistLocked()
}

// Add registers id for notifications. added is false if id was already
// registered. The state is persisted either way.
func (r *Registry) Add(id int64) (added bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subscribers[id]; !ok {
		r.subscribers[id] = struct{}{}
		added = true
	}
	return added, r.persistLocked()
}

// Remove unregisters id. removed is false if id was not registered.
func (r *Registry) Remove(id int64) (removed bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subscribers[id]; ok {
		delete(r.subscribers, id)
		removed = true
	}
	return removed, r.persistLocked()
}

// Contains reports whether id is registered.
func (r *Registry) Contains(id int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.subscribers[id]
	return ok
}

// Recipients returns the notification recipients for the current mode.
func (r *Registry) Recipients() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.recipientsLocked(r.mode)
}

// RecipientsFor returns the recipients mode would use.
func (r *Registry) RecipientsFor(mode Mode) []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.recipientsLocked(mode)
}

func (r *Registry) recipientsLocked(mode Mode) []int64 {
	if mode == ModeAdmin {
		return toSlice(r.admins)
	}
	return toSlice(r.subscribers)
}

// Subscribers returns the registered ids.
func (r *Registry) Subscribers() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return toSlice(r.subscribers)
}

// Mode returns the operating mode.
func (r *Registry) Mode() Mode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mode
}

// SetMode changes the operating mode.
func (r *Registry) SetMode(mode Mode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mode = mode
	return r.persistLocked()
}

// AdminIDs returns the admin ids.
func (r *Registry) AdminIDs() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return toSlice(r.admins)
}

// SetAdmins replaces the admin set.
func (r *Registry) SetAdmins(ids []int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.admins = toSet(ids)
	return r.persistLocked()
}

// IsAdmin reports whether id is an admin.
func (r *Registry) IsAdmin(id int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.admins[id]
	return ok
}

// IsAllowed applies the access policy for the current mode.
func (r *Registry) IsAllowed(id int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return IsAllowed(r.mode, r.admins, id)
}

// PollInterval returns the configured poll interval in seconds.
func (r *Registry) PollInterval() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pollInterval
}

// Reconfigure applies u atomically. Invalid fields are ignored.
func (r *Registry) Reconfigure(u Update) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u.Mode.Valid() {
		r.mode = u.Mode
	}
	if u.AdminIDs != nil {
		r.admins = toSet(u.AdminIDs)
	}
	if u.PollInterval > 0 {
		r.pollInterval = u.PollInterval
	}
	return r.persistLocked()
}

// SetPlatform records the detected platform.
func (r *Registry) SetPlatform(p string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.platform = p
	return r.persistLocked()
}

// State returns a copy of the full persisted record.
func (r *Registry) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stateLocked()
}

func (r *Registry) stateLocked() State {
	return State{
		Platform:      r.platform,
		BotToken:      r.token,
		Mode:          r.mode,
		AdminIDs:      toSlice(r.admins),
		RegisteredIDs: toSlice(r.subscribers),
		PollInterval:  r.pollInterval,
	}
}

func (r *Registry) persistLocked() error {
	if err := WriteState(r.path, r.stateLocked()); err != nil {
		log.Errorf("%v", err)
		return err
	}
	return nil
}

func toSet(ids []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// toSlice returns the set sorted, so the state file is stable.
func toSlice(set map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
