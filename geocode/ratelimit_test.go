// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package geocode

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestRateLimited(t *testing.T) {
	provider := &countingProvider{result: sampleResult()}
	limited := NewRateLimited(provider, rate.Every(50*time.Millisecond), 1)

	start := time.Now()

	for range 3 {
		_, err := limited.Geocode(context.Background(), NewRequest("x", "", "", ""))
		require.NoError(t, err)
	}

	// the first call uses the burst, the other two wait for a token each
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
	assert.Equal(t, 3, provider.calls())
	assert.Equal(t, "counting", limited.Name())
}

func TestRateLimitedCancelled(t *testing.T) {
	provider := &countingProvider{result: sampleResult()}
	limited := NewRateLimited(provider, rate.Every(time.Hour), 1)

	_, err := limited.Geocode(context.Background(), NewRequest("x", "", "", ""))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = limited.Geocode(ctx, NewRequest("x", "", "", ""))
	assert.True(t, IsTimeoutError(err))
	assert.Equal(t, 1, provider.calls())
}
