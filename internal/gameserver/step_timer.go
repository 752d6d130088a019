package gameserver

import (
	"sync"
	"time"
)

// stopper cancels a scheduled continuation.
type stopper interface {
	Stop()
}

// StepTimer fires a callback once after a delay unless stopped first.
// It is safe for concurrent use.
type StepTimer struct {
	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

// NewStepTimer creates and starts a timer that calls onFire after d.
// onFire is called in a separate goroutine.
//
// Precondition: d >= 0; onFire must not be nil.
// Postcondition: onFire will be called unless Stop is called first.
func NewStepTimer(d time.Duration, onFire func()) *StepTimer {
	st := &StepTimer{}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.timer = time.AfterFunc(d, func() {
		st.mu.Lock()
		stopped := st.stopped
		st.mu.Unlock()
		if !stopped {
			onFire()
		}
	})
	return st
}

// Stop prevents the callback from firing. Safe to call multiple times.
//
// Postcondition: onFire will not be called after Stop returns unless it was already running.
func (st *StepTimer) Stop() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.stopped = true
	st.timer.Stop()
}
