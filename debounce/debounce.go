// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package debounce collapses bursts of calls into a single deferred action.
package debounce

import (
	"sync"
	"time"
)

// Trigger runs fn once the calls to Call have stopped for the configured
// delay. Only the trailing edge fires.
type Trigger struct {
	mu    sync.Mutex
	delay time.Duration
	fn    func()
	timer *time.Timer
	// generation identifies the latest scheduling; a timer whose generation
	// was superseded while it was already firing does nothing.
	generation uint64
	stopped    bool
}

// New returns a Trigger that calls fn after delay of quiet.
func New(delay time.Duration, fn func()) *Trigger {
	return &Trigger{delay: delay, fn: fn}
}

// Delay returns the quiet period of the trigger.
func (t *Trigger) Delay() time.Duration {
	return t.delay
}

// Call (re)schedules the action, superseding any pending one.
func (t *Trigger) Call() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return
	}

	if t.timer != nil {
		t.timer.Stop()
	}

	t.generation++
	generation := t.generation

	t.timer = time.AfterFunc(t.delay, func() {
		t.fire(generation)
	})
}

func (t *Trigger) fire(generation uint64) {
	t.mu.Lock()
	if t.stopped || generation != t.generation {
		t.mu.Unlock()

		return
	}

	t.timer = nil
	t.mu.Unlock()

	t.fn()
}

// Pending reports whether an action is scheduled and has not fired yet.
func (t *Trigger) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.timer != nil
}

// Cancel drops the pending action, if any. The trigger stays usable.
func (t *Trigger) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}

	t.generation++
}

// Stop cancels the pending action and makes every later Call a no-op.
func (t *Trigger) Stop() {
	t.Cancel()

	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}
