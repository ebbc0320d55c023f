// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package geocode

import (
	"context"
	"sync"

	"github.com/jcodagnone/geoassist/spatial"
)

// countingProvider answers every request with the same result (or error)
// and remembers the requests it saw.
type countingProvider struct {
	mu       sync.Mutex
	result   *Result
	err      error
	requests []Request
}

func (p *countingProvider) Name() string { return "counting" }

func (p *countingProvider) Geocode(_ context.Context, req Request) (*Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.requests = append(p.requests, req)
	if p.err != nil {
		return nil, p.err
	}

	r := *p.result

	return &r, nil
}

func (p *countingProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.requests)
}

func sampleResult() *Result {
	return &Result{
		Location: spatial.Point{Lat: 40.0, Lng: -74.0},
		Viewport: spatial.Bounds{
			NorthEast: spatial.Point{Lat: 40.1, Lng: -73.9},
			SouthWest: spatial.Point{Lat: 39.9, Lng: -74.1},
		},
		Provider:    "counting",
		DisplayName: "123 Main St",
		Confidence:  "high",
	}
}
