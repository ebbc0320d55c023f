// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package geocode resolves addresses into coordinates and viewports.
package geocode

import (
	"context"
	"strings"

	"github.com/jcodagnone/geoassist/spatial"
)

// Restrictions narrow a query. Empty fields are not sent to providers.
type Restrictions struct {
	Locality   string `json:"locality,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country,omitempty"`
}

// Empty reports whether no restriction is set.
func (r Restrictions) Empty() bool {
	return r.Locality == "" && r.PostalCode == "" && r.Country == ""
}

// Request is a geocoding query.
type Request struct {
	Address      string       `json:"address"`
	Restrictions Restrictions `json:"restrictions"`
}

// NewRequest builds a request, dropping blank restrictions.
func NewRequest(address, locality, postalCode, country string) Request {
	return Request{
		Address: address,
		Restrictions: Restrictions{
			Locality:   strings.TrimSpace(locality),
			PostalCode: strings.TrimSpace(postalCode),
			Country:    strings.TrimSpace(country),
		},
	}
}

// Result is a successful geocoding.
type Result struct {
	Location    spatial.Point  `json:"location"`
	Viewport    spatial.Bounds `json:"viewport"`
	Provider    string         `json:"provider"`
	DisplayName string         `json:"display_name"`
	Confidence  string         `json:"confidence"` // high, medium, low
}

// Provider is a geocoding service. Implementations report failures as
// *GeocodingError.
type Provider interface {
	Name() string
	Geocode(ctx context.Context, req Request) (*Result, error)
}
