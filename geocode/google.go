// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jcodagnone/geoassist/spatial"
)

const googleMapsURL = "https://maps.googleapis.com/maps/api/geocode/json"

// GoogleMapsGeocoder uses Google Maps Geocoding API.
type GoogleMapsGeocoder struct {
	apiKey     string
	baseURL    string
	region     string
	httpClient *http.Client
}

// GoogleOption configures a GoogleMapsGeocoder.
type GoogleOption func(*GoogleMapsGeocoder)

// WithGoogleHTTPClient replaces the default HTTP client.
func WithGoogleHTTPClient(c *http.Client) GoogleOption {
	return func(g *GoogleMapsGeocoder) { g.httpClient = c }
}

// WithGoogleBaseURL points the geocoder to another endpoint.
func WithGoogleBaseURL(u string) GoogleOption {
	return func(g *GoogleMapsGeocoder) { g.baseURL = u }
}

// WithGoogleRegion biases results to a ccTLD region code (e.g. "uy").
func WithGoogleRegion(region string) GoogleOption {
	return func(g *GoogleMapsGeocoder) { g.region = region }
}

// NewGoogleMapsGeocoder creates a new Google Maps geocoder.
func NewGoogleMapsGeocoder(apiKey string, opts ...GoogleOption) *GoogleMapsGeocoder {
	g := &GoogleMapsGeocoder{
		apiKey:  apiKey,
		baseURL: googleMapsURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

type googleLatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (l googleLatLng) point() spatial.Point {
	return spatial.Point{Lat: l.Lat, Lng: l.Lng}
}

type googleMapsResponse struct {
	Results []struct {
		Geometry struct {
			Location     googleLatLng `json:"location"`
			LocationType string       `json:"location_type"` // ROOFTOP, RANGE_INTERPOLATED, GEOMETRIC_CENTER, APPROXIMATE
			Viewport     struct {
				Northeast googleLatLng `json:"northeast"`
				Southwest googleLatLng `json:"southwest"`
			} `json:"viewport"`
		} `json:"geometry"`
		FormattedAddress string `json:"formatted_address"`
	} `json:"results"`
	Status       string `json:"status"` // OK, ZERO_RESULTS, etc.
	ErrorMessage string `json:"error_message"`
}

// Name implements Provider.
func (g *GoogleMapsGeocoder) Name() string {
	return "google_maps"
}

// components renders restrictions as the components filter,
// e.g. "locality:Montevideo|country:UY".
func components(r Restrictions) string {
	var parts []string

	if r.Locality != "" {
		parts = append(parts, "locality:"+r.Locality)
	}

	if r.PostalCode != "" {
		parts = append(parts, "postal_code:"+r.PostalCode)
	}

	if r.Country != "" {
		parts = append(parts, "country:"+r.Country)
	}

	return strings.Join(parts, "|")
}

func googleStatusError(status, message string) *GeocodingError {
	e := &GeocodingError{Status: status, Message: "google maps status: " + status}
	if message != "" {
		e.Message += " (" + message + ")"
	}

	switch status {
	case "ZERO_RESULTS":
		e.Type = ErrorTypeNotFound
	case "OVER_QUERY_LIMIT":
		e.Type = ErrorTypeRateLimit
	case "OVER_DAILY_LIMIT", "REQUEST_DENIED":
		e.Type = ErrorTypeQuotaExceeded
	case "INVALID_REQUEST":
		e.Type = ErrorTypeInvalidRequest
	default:
		e.Type = ErrorTypeUnknown
	}

	return e
}

// Geocode implements Provider.
func (g *GoogleMapsGeocoder) Geocode(ctx context.Context, req Request) (*Result, error) {
	params := url.Values{}
	params.Set("address", req.Address)
	params.Set("key", g.apiKey)

	if c := components(req.Restrictions); c != "" {
		params.Set("components", c)
	}

	if g.region != "" {
		params.Set("region", g.region)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, &GeocodingError{Type: ErrorTypeInvalidRequest, Message: "building request", Err: err}
	}

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(err)
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, ClassifyHTTPError(resp.StatusCode, "")
	}

	var gmResp googleMapsResponse
	if err := json.NewDecoder(resp.Body).Decode(&gmResp); err != nil {
		return nil, &GeocodingError{Type: ErrorTypeUnknown, Message: "decoding response", Err: err}
	}

	if gmResp.Status != "OK" {
		return nil, googleStatusError(gmResp.Status, gmResp.ErrorMessage)
	}

	if len(gmResp.Results) == 0 {
		return nil, &GeocodingError{
			Type:    ErrorTypeNotFound,
			Status:  "ZERO_RESULTS",
			Message: fmt.Sprintf("no results found for address: %s", req.Address),
		}
	}

	result := gmResp.Results[0]

	confidence := "low"

	switch result.Geometry.LocationType {
	case "ROOFTOP", "RANGE_INTERPOLATED":
		confidence = "high"
	case "GEOMETRIC_CENTER":
		confidence = "medium"
	}

	return &Result{
		Location: result.Geometry.Location.point(),
		Viewport: spatial.Bounds{
			NorthEast: result.Geometry.Viewport.Northeast.point(),
			SouthWest: result.Geometry.Viewport.Southwest.point(),
		},
		Provider:    g.Name(),
		DisplayName: result.FormattedAddress,
		Confidence:  confidence,
	}, nil
}
