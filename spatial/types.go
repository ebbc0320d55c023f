// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package spatial holds the coordinate and viewport types shared by the
// geocoders, the map surface and the result cache.
package spatial

import (
	"database/sql/driver"
	"fmt"
	"math"
	"strconv"

	"github.com/uber/h3-go/v4"
)

const earthRadius = 6371e3 // meters

// Point represents a geographical point with latitude and longitude.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// String renders the point as WKT, longitude first.
func (p Point) String() string {
	return fmt.Sprintf("POINT(%f %f)", p.Lng, p.Lat)
}

// Value stores the point as WKT so DuckDB can cast it with ST_GeomFromText.
func (p Point) Value() (driver.Value, error) {
	return p.String(), nil
}

func (p *Point) scanWKT(s string) error {
	var lng, lat float64
	if _, err := fmt.Sscanf(s, "POINT (%f %f)", &lng, &lat); err != nil {
		return fmt.Errorf("spatial: decoding %q: %w", s, err)
	}

	p.Lat, p.Lng = lat, lng

	return nil
}

// Scan reads a point returned by DuckDB, either as WKT text or as the
// {x, y} struct produced by ST_AsStruct-like projections. NULL yields the
// zero point.
func (p *Point) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*p = Point{}

		return nil
	case string:
		return p.scanWKT(v)
	case []byte:
		return p.scanWKT(string(v))
	case map[string]any:
		lng, xok := v["x"].(float64)
		lat, yok := v["y"].(float64)

		if !xok || !yok {
			return fmt.Errorf("spatial: point struct needs float x and y, got %+v", v)
		}

		*p = Point{Lat: lat, Lng: lng}

		return nil
	}

	return fmt.Errorf("spatial: cannot scan %T into a Point", src)
}

// Valid reports whether the point lies within the WGS84 coordinate ranges.
func (p Point) Valid() bool {
	return !math.IsNaN(p.Lat) && !math.IsNaN(p.Lng) &&
		p.Lat >= -90 && p.Lat <= 90 &&
		p.Lng >= -180 && p.Lng <= 180
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

// HaversineDistance returns the great circle distance to other in meters.
func (p *Point) HaversineDistance(other *Point) float64 {
	phi1, phi2 := radians(p.Lat), radians(other.Lat)
	sinLat := math.Sin(radians(other.Lat-p.Lat) / 2)
	sinLng := math.Sin(radians(other.Lng-p.Lng) / 2)

	h := sinLat*sinLat + math.Cos(phi1)*math.Cos(phi2)*sinLng*sinLng

	return 2 * earthRadius * math.Asin(math.Min(1, math.Sqrt(h)))
}

// Cell returns the H3 cell containing the point at the given resolution.
func (p Point) Cell(res int) (int64, error) {
	cell, err := h3.LatLngToCell(h3.NewLatLng(p.Lat, p.Lng), res)
	if err != nil {
		return 0, fmt.Errorf("spatial: h3 cell at resolution %d: %w", res, err)
	}

	return int64(cell), nil
}

// FormatCoordinate renders a coordinate the way it is written into form fields:
// the shortest representation that parses back to the same float.
func FormatCoordinate(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ParseCoordinate parses a form field value as a coordinate. An empty or
// non numeric value is reported as false.
func ParseCoordinate(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}

	return v, true
}
