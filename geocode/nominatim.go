// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jcodagnone/geoassist/spatial"
)

const nominatimURL = "https://nominatim.openstreetmap.org/search"

// NominatimGeocoder uses the OpenStreetMap Nominatim search API. Its usage
// policy requires an identifying User-Agent and at most one request per
// second, see RateLimited.
type NominatimGeocoder struct {
	baseURL   string
	userAgent string
	client    *http.Client
}

// NewNominatimGeocoder creates a Nominatim geocoder. A nil client gets a
// default one with a 5 second timeout.
func NewNominatimGeocoder(baseURL, userAgent string, client *http.Client) *NominatimGeocoder {
	if baseURL == "" {
		baseURL = nominatimURL
	}

	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}

	return &NominatimGeocoder{baseURL: baseURL, userAgent: userAgent, client: client}
}

type nominatimResponse struct {
	Lat         string   `json:"lat"`
	Lon         string   `json:"lon"`
	DisplayName string   `json:"display_name"`
	Importance  float64  `json:"importance"`
	BoundingBox []string `json:"boundingbox"` // south, north, west, east
}

// Name implements Provider.
func (n *NominatimGeocoder) Name() string {
	return "nominatim"
}

func (n *NominatimGeocoder) query(req Request) url.Values {
	params := url.Values{}
	params.Set("format", "jsonv2")
	params.Set("limit", "1")

	r := req.Restrictions
	if r.Country != "" {
		params.Set("countrycodes", strings.ToLower(r.Country))
	}

	// Free-form q can't be combined with structured fields.
	if r.Locality == "" && r.PostalCode == "" {
		params.Set("q", req.Address)

		return params
	}

	params.Set("street", req.Address)

	if r.Locality != "" {
		params.Set("city", r.Locality)
	}

	if r.PostalCode != "" {
		params.Set("postalcode", r.PostalCode)
	}

	return params
}

func parseFloats(values ...string) ([]float64, error) {
	out := make([]float64, len(values))

	for i, v := range values {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, err
		}

		out[i] = f
	}

	return out, nil
}

// Geocode implements Provider.
func (n *NominatimGeocoder) Geocode(ctx context.Context, req Request) (*Result, error) {
	reqURL := fmt.Sprintf("%s?%s", n.baseURL, n.query(req).Encode())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &GeocodingError{Type: ErrorTypeInvalidRequest, Message: "building request", Err: err}
	}

	if n.userAgent != "" {
		httpReq.Header.Set("User-Agent", n.userAgent)
	}

	resp, err := n.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, ClassifyHTTPError(resp.StatusCode, "")
	}

	var raw []nominatimResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, &GeocodingError{Type: ErrorTypeUnknown, Message: "decoding response", Err: err}
	}

	if len(raw) == 0 {
		return nil, &GeocodingError{
			Type:    ErrorTypeNotFound,
			Status:  "ZERO_RESULTS",
			Message: fmt.Sprintf("no results found for address: %s", req.Address),
		}
	}

	first := raw[0]

	coords, err := parseFloats(first.Lat, first.Lon)
	if err != nil {
		return nil, &GeocodingError{Type: ErrorTypeUnknown, Message: "invalid coordinates", Err: err}
	}

	location := spatial.Point{Lat: coords[0], Lng: coords[1]}
	viewport := spatial.Bounds{NorthEast: location, SouthWest: location}

	if len(first.BoundingBox) == 4 {
		bb, err := parseFloats(first.BoundingBox...)
		if err != nil {
			return nil, &GeocodingError{Type: ErrorTypeUnknown, Message: "invalid bounding box", Err: err}
		}

		viewport = spatial.Bounds{
			NorthEast: spatial.Point{Lat: bb[1], Lng: bb[3]},
			SouthWest: spatial.Point{Lat: bb[0], Lng: bb[2]},
		}
	}

	confidence := "low"

	switch {
	case first.Importance >= 0.5:
		confidence = "high"
	case first.Importance >= 0.25:
		confidence = "medium"
	}

	return &Result{
		Location:    location,
		Viewport:    viewport,
		Provider:    n.Name(),
		DisplayName: first.DisplayName,
		Confidence:  confidence,
	}, nil
}
