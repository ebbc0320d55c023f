// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package geocode

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimited throttles calls to a provider. Callers wait for their turn;
// a cancelled context while waiting is reported as a timeout.
type RateLimited struct {
	Provider
	limiter *rate.Limiter
}

// NewRateLimited wraps p so that at most r requests per second (with the
// given burst) reach it.
func NewRateLimited(p Provider, r rate.Limit, burst int) *RateLimited {
	return &RateLimited{Provider: p, limiter: rate.NewLimiter(r, burst)}
}

// Geocode implements Provider.
func (l *RateLimited) Geocode(ctx context.Context, req Request) (*Result, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, &GeocodingError{Type: ErrorTypeTimeout, Message: "waiting for rate limiter", Err: err}
	}

	return l.Provider.Geocode(ctx, req)
}
