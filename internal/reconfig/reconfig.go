// Package reconfig runs the interactive reconfiguration task off the command
// path and hands its result to the apply loop.
//
// At most one task runs at a time. The task never touches the registry
// itself: it returns a registry.Update, which Run passes to the apply
// function on its own goroutine.
package reconfig

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/op/go-logging"

	"github.com/sweeney/power-monitor/internal/registry"
)

var log = logging.MustGetLogger("reconfig")

var (
	// ErrBusy is returned by Submit while a task is running.
	ErrBusy = errors.New("reconfig: already in progress")

	// ErrNotRunning is returned by Submit before Run has started.
	ErrNotRunning = errors.New("reconfig: runner not started")
)

// Task collects new settings, typically by prompting an operator.
type Task func(ctx context.Context) (registry.Update, error)

// ApplyFunc commits an update.
type ApplyFunc func(registry.Update) error

// Runner owns the single reconfiguration slot.
type Runner struct {
	task    Task
	results chan registry.Update

	mu   sync.Mutex
	ctx  context.Context
	busy bool
	wg   sync.WaitGroup
}

// NewRunner creates a Runner for task.
func NewRunner(task Task) *Runner {
	return &Runner{
		task:    task,
		results: make(chan registry.Update, 1),
	}
}

// Submit starts the task in the background. It returns ErrBusy if a task is
// already running.
func (r *Runner) Submit() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ctx == nil {
		return ErrNotRunning
	}
	if r.busy {
		return ErrBusy
	}
	r.busy = true
	r.wg.Add(1)
	go r.execute(r.ctx)
	return nil
}

// Busy reports whether a task is running.
func (r *Runner) Busy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.busy
}

func (r *Runner) execute(ctx context.Context) {
	defer r.wg.Done()
	defer func() {
		r.mu.Lock()
		r.busy = false
		r.mu.Unlock()
	}()

	u, err := r.safeTask(ctx)
	if err != nil {
		log.Warningf("reconfiguration aborted: %v", err)
		return
	}
	select {
	case r.results <- u:
	case <-ctx.Done():
	}
}

func (r *Runner) safeTask(ctx context.Context) (u registry.Update, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("task panic: %v", p)
		}
	}()
	return r.task(ctx)
}

// Run accepts submissions and applies task results until ctx is done.
func (r *Runner) Run(ctx context.Context, apply ApplyFunc) error {
	r.mu.Lock()
	r.ctx = ctx
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.ctx = nil
		r.mu.Unlock()
		r.wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case u := <-r.results:
			if err := apply(u); err != nil {
				log.Errorf("apply reconfiguration: %v", err)
				continue
			}
			log.Infof("reconfigured: mode=%s admins=%v poll=%ds", u.Mode, u.AdminIDs, u.PollInterval)
		}
	}
}
