// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package debounce

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTriggerCollapsesBurst(t *testing.T) {
	var calls atomic.Int32

	trigger := New(30*time.Millisecond, func() { calls.Add(1) })

	for range 10 {
		trigger.Call()
		time.Sleep(5 * time.Millisecond)
	}

	assert.True(t, trigger.Pending())
	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	// nothing else fires after the quiet period
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, trigger.Pending())
}

func TestTriggerNoLeadingEdge(t *testing.T) {
	var calls atomic.Int32

	trigger := New(50*time.Millisecond, func() { calls.Add(1) })
	trigger.Call()

	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestTriggerSeparateBursts(t *testing.T) {
	var calls atomic.Int32

	trigger := New(10*time.Millisecond, func() { calls.Add(1) })

	trigger.Call()
	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 2*time.Millisecond)

	trigger.Call()
	assert.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 2*time.Millisecond)
}

func TestTriggerCancelAndStop(t *testing.T) {
	var calls atomic.Int32

	trigger := New(10*time.Millisecond, func() { calls.Add(1) })
	assert.Equal(t, 10*time.Millisecond, trigger.Delay())

	trigger.Call()
	trigger.Cancel()
	assert.False(t, trigger.Pending())

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())

	trigger.Stop()
	trigger.Call()
	assert.False(t, trigger.Pending())

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}
