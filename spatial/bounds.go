// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package spatial

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Bounds is a rectangular viewport described by its northeast and southwest
// corners.
type Bounds struct {
	NorthEast Point `json:"northeast"`
	SouthWest Point `json:"southwest"`
}

// ErrInvalidViewport is returned when a viewport literal can't be decoded.
var ErrInvalidViewport = errors.New("spatial: invalid viewport literal")

// Center returns the middle point of the bounds. Bounds crossing the
// antimeridian (west edge east of the east edge) are handled.
func (b Bounds) Center() Point {
	lng := (b.NorthEast.Lng + b.SouthWest.Lng) / 2
	if b.SouthWest.Lng > b.NorthEast.Lng {
		lng += 180
		if lng > 180 {
			lng -= 360
		}
	}

	return Point{
		Lat: (b.NorthEast.Lat + b.SouthWest.Lat) / 2,
		Lng: lng,
	}
}

// Span returns the latitude and longitude extent of the bounds in degrees.
func (b Bounds) Span() (latSpan, lngSpan float64) {
	latSpan = b.NorthEast.Lat - b.SouthWest.Lat

	lngSpan = b.NorthEast.Lng - b.SouthWest.Lng
	if lngSpan < 0 {
		lngSpan += 360
	}

	return latSpan, lngSpan
}

// Contains reports whether p lies inside the bounds.
func (b Bounds) Contains(p Point) bool {
	if p.Lat < b.SouthWest.Lat || p.Lat > b.NorthEast.Lat {
		return false
	}

	if b.SouthWest.Lng <= b.NorthEast.Lng {
		return p.Lng >= b.SouthWest.Lng && p.Lng <= b.NorthEast.Lng
	}

	return p.Lng >= b.SouthWest.Lng || p.Lng <= b.NorthEast.Lng
}

// Literal returns the viewport as the ordered sequence
// [neLat, neLng, swLat, swLng].
func (b Bounds) Literal() [4]float64 {
	return [4]float64{b.NorthEast.Lat, b.NorthEast.Lng, b.SouthWest.Lat, b.SouthWest.Lng}
}

// MarshalLiteral encodes the viewport as the JSON array written into the
// viewport form field, e.g. [40.1,-73.9,39.9,-74.1].
func (b Bounds) MarshalLiteral() string {
	data, err := json.Marshal(b.Literal())
	if err != nil {
		// a [4]float64 only fails on NaN or Inf
		return ""
	}

	return string(data)
}

// ParseViewport decodes a viewport field value produced by MarshalLiteral.
func ParseViewport(s string) (Bounds, error) {
	var v []float64
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return Bounds{}, fmt.Errorf("%w: %w", ErrInvalidViewport, err)
	}

	if len(v) != 4 {
		return Bounds{}, fmt.Errorf("%w: expected 4 coordinates, got %d", ErrInvalidViewport, len(v))
	}

	return Bounds{
		NorthEast: Point{Lat: v[0], Lng: v[1]},
		SouthWest: Point{Lat: v[2], Lng: v[3]},
	}, nil
}
