// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jcodagnone/geoassist/assist"
	"github.com/jcodagnone/geoassist/form"
	"github.com/jcodagnone/geoassist/geocode"
	"github.com/jcodagnone/geoassist/spatial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const placeForm = `<form action="/places" method="post">
  <input name="address" class="address">
  <input name="lat" class="latitude">
  <input name="lng" class="longitude">
  <input name="zoom" class="zoom">
  <input name="viewport" class="viewport">
  <p class="geocode-error" hidden>Address not found</p>
  <div class="map"></div>
</form>`

type stubProvider struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (p *stubProvider) Name() string {
	return "stub"
}

func (p *stubProvider) Geocode(_ context.Context, req geocode.Request) (*geocode.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls++
	if p.err != nil {
		return nil, p.err
	}

	return &geocode.Result{
		Location: spatial.Point{Lat: -34.9, Lng: -56.16},
		Viewport: spatial.Bounds{
			NorthEast: spatial.Point{Lat: -34.8, Lng: -56.0},
			SouthWest: spatial.Point{Lat: -35.0, Lng: -56.3},
		},
		Provider:    "stub",
		DisplayName: req.Address,
	}, nil
}

func (p *stubProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.calls
}

func setupServerTest(t *testing.T, provider geocode.Provider) (*gin.Engine, *Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	binder := assist.NewBinder(assist.WithLogger(log.New(io.Discard, "", 0)))
	server := NewServer(provider, binder, Config{})
	t.Cleanup(server.Close)

	return server.Router(), server
}

func do(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)

		r = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, path, r)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	return w
}

func createForm(t *testing.T, router *gin.Engine, options map[string]any) string {
	t.Helper()

	w := do(t, router, http.MethodPost, "/api/forms", map[string]any{
		"html":    placeForm,
		"element": ".address",
		"options": options,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.ID)

	return resp.ID
}

func getView(t *testing.T, router *gin.Engine, id string) FormView {
	t.Helper()

	w := do(t, router, http.MethodGet, "/api/forms/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var v FormView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))

	return v
}

func TestTypeAndResolveAPI(t *testing.T) {
	provider := &stubProvider{}
	router, _ := setupServerTest(t, provider)
	id := createForm(t, router, map[string]any{"requestTimeout": 10})

	w := do(t, router, http.MethodPost, "/api/forms/"+id+"/input", map[string]any{
		"selector": ".address",
		"value":    "Av. 18 de Julio 1234",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Eventually(t, func() bool {
		return getView(t, router, id).State.LocationResolved
	}, 2*time.Second, 10*time.Millisecond)

	v := getView(t, router, id)
	assert.Equal(t, "-34.9", v.Fields["latitude"])
	assert.Equal(t, "-56.16", v.Fields["longitude"])
	assert.Equal(t, "[-34.8,-56,-35,-56.3]", v.Fields["viewport"])
	assert.False(t, v.ErrorVisible)
	assert.Nil(t, v.Map)
	assert.Contains(t, v.HTML, `value="Av. 18 de Julio 1234"`)
}

func TestHeldSubmitAPI(t *testing.T) {
	router, _ := setupServerTest(t, &stubProvider{})
	id := createForm(t, router, map[string]any{"requestTimeout": 60000})

	w := do(t, router, http.MethodPost, "/api/forms/"+id+"/submit", nil)
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp struct {
		Held bool `json:"held"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Held)

	var submissions []form.Submission

	assert.Eventually(t, func() bool {
		w := do(t, router, http.MethodGet, "/api/forms/"+id+"/submissions", nil)
		if w.Code != http.StatusOK {
			return false
		}

		submissions = nil

		return json.Unmarshal(w.Body.Bytes(), &submissions) == nil && len(submissions) == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, "POST", submissions[0].Method)
	assert.Equal(t, "-34.9", submissions[0].Values.Get("lat"))

	// resolved now: the next submit goes through directly
	w = do(t, router, http.MethodPost, "/api/forms/"+id+"/submit", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestFailedResolutionAPI(t *testing.T) {
	provider := &stubProvider{err: &geocode.GeocodingError{Type: geocode.ErrorTypeNotFound, Status: "ZERO_RESULTS", Message: "no results"}}
	router, _ := setupServerTest(t, provider)
	id := createForm(t, router, nil)

	w := do(t, router, http.MethodPost, "/api/forms/"+id+"/submit", nil)
	require.Equal(t, http.StatusAccepted, w.Code)

	assert.Eventually(t, func() bool {
		return getView(t, router, id).ErrorVisible
	}, 2*time.Second, 10*time.Millisecond)

	v := getView(t, router, id)
	assert.Equal(t, assist.State{SubmitPending: true}, v.State)

	w = do(t, router, http.MethodGet, "/api/forms/"+id+"/submissions", nil)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestMoveMapAPI(t *testing.T) {
	provider := &stubProvider{}
	router, _ := setupServerTest(t, provider)

	noMap := createForm(t, router, nil)
	w := do(t, router, http.MethodPost, "/api/forms/"+noMap+"/map", map[string]any{"lat": 1, "lng": 2})
	assert.Equal(t, http.StatusConflict, w.Code)

	id := createForm(t, router, map[string]any{"map": map[string]any{"selector": ".map"}})

	w = do(t, router, http.MethodPost, "/api/forms/"+id+"/map", map[string]any{"lat": 95, "lng": 2})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodPost, "/api/forms/"+id+"/map", map[string]any{"lat": -34.9, "lng": -56.16, "zoom": 14})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Eventually(t, func() bool {
		return getView(t, router, id).State.LocationResolved
	}, 2*time.Second, 10*time.Millisecond)

	v := getView(t, router, id)
	assert.Equal(t, "-34.9", v.Fields["latitude"])
	assert.Equal(t, "14", v.Fields["zoom"])
	require.NotNil(t, v.Map)
	assert.InDelta(t, 14, v.Map.Zoom, 1e-9)
	assert.Equal(t, 0, provider.Calls())
}

func TestCreateFormErrorsAPI(t *testing.T) {
	router, _ := setupServerTest(t, &stubProvider{})

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing html", map[string]any{"element": ".address"}},
		{"missing element", map[string]any{"html": placeForm, "element": ".nope"}},
		{"bad options", map[string]any{"html": placeForm, "element": ".address", "options": map[string]any{"requestTimeout": -1}}},
		{"bad multiple fields", map[string]any{"html": placeForm, "element": ".address", "options": map[string]any{"multipleFields": 3}}},
		{"no scope", map[string]any{"html": placeForm, "element": ".address", "options": map[string]any{"parent": "section"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, http.MethodPost, "/api/forms", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestInputErrorsAPI(t *testing.T) {
	router, _ := setupServerTest(t, &stubProvider{})
	id := createForm(t, router, nil)

	w := do(t, router, http.MethodPost, "/api/forms/"+id+"/input", map[string]any{"selector": ".missing", "value": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, router, http.MethodPost, "/api/forms/"+id+"/input", map[string]any{"selector": ".address", "event": "keyup"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodPost, "/api/forms/"+id+"/input", map[string]any{"selector": "[", "value": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteFormAPI(t *testing.T) {
	router, server := setupServerTest(t, &stubProvider{})
	id := createForm(t, router, nil)

	server.mu.RLock()
	element := server.sessions[id].controller.Element()
	server.mu.RUnlock()

	w := do(t, router, http.MethodDelete, "/api/forms/"+id, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	_, bound := server.binder.Lookup(element)
	assert.False(t, bound)

	w = do(t, router, http.MethodGet, "/api/forms/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, router, http.MethodDelete, "/api/forms/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGeocodeAPI(t *testing.T) {
	provider := &stubProvider{}
	router, _ := setupServerTest(t, provider)

	w := do(t, router, http.MethodGet, "/api/geocode?address=Av.%2018%20de%20Julio&country=UY", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var res geocode.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "Av. 18 de Julio", res.DisplayName)

	w = do(t, router, http.MethodGet, "/api/geocode", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	provider.err = &geocode.GeocodingError{Type: geocode.ErrorTypeRateLimit, Status: "OVER_QUERY_LIMIT", Message: "slow down"}
	w = do(t, router, http.MethodGet, "/api/geocode?address=x", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "OVER_QUERY_LIMIT")
}

func TestCORS(t *testing.T) {
	router, _ := setupServerTest(t, &stubProvider{})

	req, err := http.NewRequest(http.MethodOptions, "/api/forms", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:4200")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Less(t, w.Code, 300)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
