// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const nominatimOK = `[{
  "lat": "-34.9058916",
  "lon": "-56.1913095",
  "display_name": "Avenida 18 de Julio, Montevideo, Uruguay",
  "importance": 0.61,
  "boundingbox": ["-34.9070", "-34.9040", "-56.1950", "-56.1880"]
}]`

func TestNominatimGeocoder(t *testing.T) {
	var (
		seen      url.Values
		userAgent string
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.URL.Query()
		userAgent = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(nominatimOK))
	}))
	defer srv.Close()

	n := NewNominatimGeocoder(srv.URL, "geoassist-test/1.0", srv.Client())

	res, err := n.Geocode(context.Background(), NewRequest("Avenida 18 de Julio 1234", "", "", "UY"))
	require.NoError(t, err)

	assert.Equal(t, "geoassist-test/1.0", userAgent)
	assert.Equal(t, "Avenida 18 de Julio 1234", seen.Get("q"))
	assert.Equal(t, "uy", seen.Get("countrycodes"))
	assert.Equal(t, "jsonv2", seen.Get("format"))

	assert.InDelta(t, -34.9058916, res.Location.Lat, 1e-9)
	assert.InDelta(t, -56.1913095, res.Location.Lng, 1e-9)
	assert.Equal(t, [4]float64{-34.9040, -56.1880, -34.9070, -56.1950}, res.Viewport.Literal())
	assert.Equal(t, "high", res.Confidence)
	assert.Equal(t, "nominatim", res.Provider)

	// structured query once locality or postal code are known
	_, err = n.Geocode(context.Background(), NewRequest("18 de Julio 1234", "Montevideo", "11100", ""))
	require.NoError(t, err)
	assert.Equal(t, "18 de Julio 1234", seen.Get("street"))
	assert.Equal(t, "Montevideo", seen.Get("city"))
	assert.Equal(t, "11100", seen.Get("postalcode"))
	assert.Empty(t, seen.Get("q"))
	assert.Empty(t, seen.Get("countrycodes"))
}

func TestNominatimGeocoderFailures(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		status   int
		wantType ErrorType
	}{
		{"empty", `[]`, http.StatusOK, ErrorTypeNotFound},
		{"throttled", ``, http.StatusTooManyRequests, ErrorTypeRateLimit},
		{"bad coordinates", `[{"lat":"x","lon":"1"}]`, http.StatusOK, ErrorTypeUnknown},
		{"bad json", `{`, http.StatusOK, ErrorTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewNominatimGeocoder(srv.URL, "", nil).Geocode(context.Background(), NewRequest("x", "", "", ""))

			var geoErr *GeocodingError
			require.ErrorAs(t, err, &geoErr)
			assert.Equal(t, tt.wantType, geoErr.Type)
		})
	}
}

func TestNominatimWithoutBoundingBox(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"lat":"1.5","lon":"2.5","importance":0.1}]`))
	}))
	defer srv.Close()

	res, err := NewNominatimGeocoder(srv.URL, "", nil).Geocode(context.Background(), NewRequest("x", "", "", ""))
	require.NoError(t, err)
	assert.Equal(t, res.Location, res.Viewport.NorthEast)
	assert.Equal(t, res.Location, res.Viewport.SouthWest)
	assert.Equal(t, "low", res.Confidence)
}
