package reconcile

import (
	"sync"
	"time"
)

// Autosave coalesces save requests with a debounce instead of a queue: a
// newer state always supersedes an in-flight older one, so only the trailing
// edge matters. The save callback snapshots state at fire time.
type Autosave struct {
	mu    sync.Mutex
	delay time.Duration
	timer *time.Timer
	save  func()
}

func NewAutosave(delay time.Duration, save func()) *Autosave {
	return &Autosave{delay: delay, save: save}
}

// Trigger schedules a save after the debounce delay, resetting any pending
// one.
func (a *Autosave) Trigger() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = time.AfterFunc(a.delay, a.save)
}

// Flush runs a pending save immediately.
func (a *Autosave) Flush() {
	a.mu.Lock()
	pending := a.timer != nil && a.timer.Stop()
	a.timer = nil
	a.mu.Unlock()
	if pending {
		a.save()
	}
}

// Stop cancels any pending save.
func (a *Autosave) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}
