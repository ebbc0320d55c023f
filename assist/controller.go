// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package assist keeps the coordinate fields of an address form in sync with
// a geocoding provider and an optional map, and holds form submits until the
// address has been resolved.
package assist

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/jcodagnone/geoassist/debounce"
	"github.com/jcodagnone/geoassist/form"
	"github.com/jcodagnone/geoassist/geocode"
	"github.com/jcodagnone/geoassist/mapassist"
	"github.com/jcodagnone/geoassist/spatial"
	"golang.org/x/net/html"
)

// MapDelay is the debounce delay of map movements.
const MapDelay = 100 * time.Millisecond

// State is the resolution state of a bound form.
type State struct {
	LocationResolved     bool `json:"locationResolved"`
	ResolutionInProgress bool `json:"resolutionInProgress"`
	SubmitPending        bool `json:"submitPending"`
}

type selectors struct {
	latitude  form.Selector
	longitude form.Selector
	viewport  form.Selector
	zoom      form.Selector
	errorSel  form.Selector

	addressLine form.Selector
	locality    form.Selector
	postalCode  form.Selector
	countryCode form.Selector
}

func compileSelectors(o Options) (selectors, error) {
	var s selectors

	targets := []struct {
		dst *form.Selector
		src string
	}{
		{&s.latitude, o.LatitudeSelector},
		{&s.longitude, o.LongitudeSelector},
		{&s.viewport, o.ViewportSelector},
		{&s.zoom, o.ZoomSelector},
		{&s.errorSel, o.ErrorSelector},
	}

	if o.MultipleFields.Enabled {
		targets = append(targets, []struct {
			dst *form.Selector
			src string
		}{
			{&s.addressLine, o.MultipleFields.AddressLineSelector},
			{&s.locality, o.MultipleFields.LocalitySelector},
			{&s.postalCode, o.MultipleFields.PostalCodeSelector},
			{&s.countryCode, o.MultipleFields.CountryCodeSelector},
		}...)
	}

	for _, t := range targets {
		sel, err := form.Compile(t.src)
		if err != nil {
			return selectors{}, err
		}

		*t.dst = sel
	}

	return s, nil
}

// Controller is the resolution state machine of one bound form.
type Controller struct {
	doc      *form.Document
	element  *html.Node
	scope    *form.Scope
	opts     Options
	sel      selectors
	provider geocode.Provider
	logger   *log.Logger
	ctx      context.Context

	geocodeTrigger *debounce.Trigger
	mapTrigger     *debounce.Trigger
	mapView        mapassist.Map

	mu    sync.Mutex
	state State
	// scheduled is set while a debounced geocode is waiting to fire.
	scheduled bool
	// followUp is set when a geocode was requested while one was in flight.
	followUp bool
	// mapScheduled is set while a debounced map write is waiting to fire.
	mapScheduled bool
	// movingMap is set while the controller itself moves the map, whose
	// notifications are then ignored.
	movingMap bool
	// replaying is set while a held submit is being replayed.
	replaying  bool
	closed     bool
	detach     []func()
	lastResult *geocode.Result
	lastErr    error
	changed    chan struct{}
}

func newController(ctx context.Context, doc *form.Document, element *html.Node, scope *form.Scope,
	opts Options, sel selectors, provider geocode.Provider, logger *log.Logger,
) *Controller {
	c := &Controller{
		doc:      doc,
		element:  element,
		scope:    scope,
		opts:     opts,
		sel:      sel,
		provider: provider,
		logger:   logger,
		ctx:      ctx,
		changed:  make(chan struct{}),
	}
	c.geocodeTrigger = debounce.New(opts.Delay(), c.Geocode)
	c.mapTrigger = debounce.New(MapDelay, c.mapMoved)

	return c
}

func (c *Controller) attach() {
	if c.opts.Map != nil {
		c.attachMap(c.opts.Map)
	}

	if c.opts.MultipleFields.Enabled {
		for _, sel := range []form.Selector{c.sel.addressLine, c.sel.locality, c.sel.postalCode, c.sel.countryCode} {
			for _, n := range c.scope.Find(sel) {
				c.detach = append(c.detach,
					c.doc.Listen(n, form.Input, c.onAddressEvent),
					c.doc.Listen(n, form.Change, c.onAddressEvent),
				)
			}
		}
	} else {
		c.detach = append(c.detach, c.doc.Listen(c.element, form.Input, c.onAddressEvent))
	}

	c.detach = append(c.detach, c.doc.Listen(c.scope.Root(), form.Submit, c.SubmitAttempt))
}

func (c *Controller) attachMap(cfg *mapassist.Config) {
	target, err := mapassist.Locate(c.doc, c.element, cfg.Selector)
	if err != nil {
		c.logger.Printf("geoassist: map assistance disabled: %v", err)

		return
	}

	center := spatial.Point{Lat: cfg.DefaultLatitude, Lng: cfg.DefaultLongitude}

	lat, okLat := c.coordinate(c.sel.latitude)
	lng, okLng := c.coordinate(c.sel.longitude)
	if okLat && okLng {
		center = spatial.Point{Lat: lat, Lng: lng}
	}

	zoom, ok := c.coordinate(c.sel.zoom)
	if !ok {
		zoom = cfg.Zoom()
	}

	surface := mapassist.NewSurface(target, center, zoom, cfg.ProviderOptions)
	c.mapView = surface
	c.detach = append(c.detach,
		surface.OnCenterChanged(c.onMapChanged),
		surface.OnZoomChanged(c.onMapChanged),
	)
}

func (c *Controller) coordinate(sel form.Selector) (float64, bool) {
	v, ok := c.scope.Value(sel)
	if !ok {
		return 0, false
	}

	return spatial.ParseCoordinate(strings.TrimSpace(v))
}

// transition must be called with c.mu held after every state change.
func (c *Controller) transition() {
	close(c.changed)
	c.changed = make(chan struct{})
}

func (c *Controller) onAddressEvent(*form.Event) {
	c.AddressChanged()
}

// AddressChanged marks the location unresolved and (re)schedules a debounced
// geocode.
func (c *Controller) AddressChanged() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.state.LocationResolved = false
	c.scheduled = true
	c.geocodeTrigger.Call()
	c.transition()
}

// SubmitAttempt gates a submit event of the form. While the location is not
// resolved the submit is held and replayed once a geocode succeeds.
func (c *Controller) SubmitAttempt(ev *form.Event) {
	c.mu.Lock()

	if c.state.LocationResolved {
		// the submit goes through, nothing is left to replay
		if c.state.SubmitPending {
			c.state.SubmitPending = false
			c.transition()
		}
		c.mu.Unlock()

		return
	}

	ev.PreventDefault()
	c.state.SubmitPending = true
	start := !c.state.ResolutionInProgress
	c.transition()
	c.mu.Unlock()

	if start {
		c.Geocode()
	}
}

// Geocode reads the address fields and queries the provider in the
// background. When a query is already in flight, another one is issued with
// fresh field values once it completes.
func (c *Controller) Geocode() {
	c.mu.Lock()

	c.scheduled = c.geocodeTrigger.Pending()

	if c.state.ResolutionInProgress {
		c.followUp = true
		c.transition()
		c.mu.Unlock()

		return
	}

	c.state.ResolutionInProgress = true
	c.transition()
	c.mu.Unlock()

	go c.resolve()
}

// Request builds the geocoding request from the current field values.
func (c *Controller) Request() geocode.Request {
	if !c.opts.MultipleFields.Enabled {
		return geocode.NewRequest(c.doc.Value(c.element), "", "", "")
	}

	address := strings.Join(c.scope.Values(c.sel.addressLine), " ")
	locality := strings.Join(c.scope.Values(c.sel.locality), " ")
	postalCode, _ := c.scope.Value(c.sel.postalCode)
	country, _ := c.scope.Value(c.sel.countryCode)

	return geocode.NewRequest(address, locality, postalCode, country)
}

func (c *Controller) resolve() {
	for {
		req := c.Request()

		res, err := c.provider.Geocode(c.ctx, req)
		if err == nil && res == nil {
			err = &geocode.GeocodingError{Type: geocode.ErrorTypeNotFound, Message: "provider returned no result"}
		}

		if err != nil {
			c.failed(req, err)
		} else {
			c.succeeded(res)
		}

		c.mu.Lock()
		again := c.followUp && !c.state.ResolutionInProgress
		c.followUp = false

		if again {
			c.state.ResolutionInProgress = true
			c.transition()
		}
		c.mu.Unlock()

		if !again {
			return
		}
	}
}

func (c *Controller) succeeded(res *geocode.Result) {
	if c.mapView != nil {
		c.mu.Lock()
		c.movingMap = true
		c.mu.Unlock()

		c.mapView.FitBounds(res.Viewport)
		c.mapView.SetCenter(res.Location)

		c.mu.Lock()
		c.movingMap = false
		c.mu.Unlock()
	}

	c.scope.SetValue(c.sel.latitude, spatial.FormatCoordinate(res.Location.Lat))
	c.scope.SetValue(c.sel.longitude, spatial.FormatCoordinate(res.Location.Lng))

	if c.mapView != nil {
		c.scope.SetValue(c.sel.zoom, spatial.FormatCoordinate(c.mapView.Zoom()))
	}

	c.scope.SetValue(c.sel.viewport, res.Viewport.MarshalLiteral())
	c.scope.Hide(c.sel.errorSel)

	c.mu.Lock()
	c.state.ResolutionInProgress = false
	c.lastResult = res
	c.lastErr = nil
	replay := c.markResolved()
	c.mu.Unlock()

	if replay {
		c.replay()
	}
}

// markResolved sets LocationResolved and consumes a held submit, reporting
// whether it must be replayed. Must be called with c.mu held.
func (c *Controller) markResolved() bool {
	c.state.LocationResolved = true
	replay := c.state.SubmitPending
	c.state.SubmitPending = false
	c.replaying = c.replaying || replay
	c.transition()

	return replay
}

// replay submits the form programmatically, bypassing the submit gate.
func (c *Controller) replay() {
	if err := c.scope.Submit(c.ctx); err != nil {
		c.logger.Printf("geoassist: submitting form: %v", err)
	}

	c.mu.Lock()
	c.replaying = false
	c.transition()
	c.mu.Unlock()
}

func (c *Controller) failed(req geocode.Request, err error) {
	c.mu.Lock()
	c.state.ResolutionInProgress = false
	c.state.LocationResolved = false
	c.lastErr = err
	c.transition()
	c.mu.Unlock()

	c.scope.Show(c.sel.errorSel)
	c.logger.Printf("geoassist: geocoding %q failed (status %s): %v", req.Address, geocode.StatusOf(err), err)
}

func (c *Controller) onMapChanged() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.movingMap {
		return
	}

	c.mapScheduled = true
	c.mapTrigger.Call()
	c.transition()
}

func (c *Controller) mapMoved() {
	if c.mapView == nil {
		return
	}

	center := c.mapView.Center()
	zoom := c.mapView.Zoom()

	c.scope.SetValue(c.sel.latitude, spatial.FormatCoordinate(center.Lat))
	c.scope.SetValue(c.sel.longitude, spatial.FormatCoordinate(center.Lng))
	c.scope.SetValue(c.sel.zoom, spatial.FormatCoordinate(zoom))

	c.mu.Lock()
	c.mapScheduled = false
	replay := c.markResolved()
	c.mu.Unlock()

	if replay {
		c.replay()
	}
}

// State returns a snapshot of the resolution state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// LastResult returns the outcome of the latest completed geocode.
func (c *Controller) LastResult() (*geocode.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lastResult, c.lastErr
}

// Options returns the options the controller was bound with, defaults
// applied.
func (c *Controller) Options() Options {
	return c.opts
}

// Scope returns the form instance the controller manages.
func (c *Controller) Scope() *form.Scope {
	return c.scope
}

// Element returns the bound element.
func (c *Controller) Element() *html.Node {
	return c.element
}

// Map returns the bound map, or nil when map assistance is disabled.
func (c *Controller) Map() mapassist.Map {
	return c.mapView
}

// Changed returns a channel closed on the next state change.
func (c *Controller) Changed() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.changed
}

// Wait blocks until no geocode or map write is scheduled, no geocode is in
// flight and no held submit is being replayed, and returns the state at that
// point.
func (c *Controller) Wait(ctx context.Context) (State, error) {
	for {
		c.mu.Lock()
		state := c.state
		idle := !state.ResolutionInProgress && !c.followUp && !c.scheduled &&
			!c.mapScheduled && !c.replaying
		ch := c.changed
		c.mu.Unlock()

		if idle {
			return state, nil
		}

		select {
		case <-ch:
		case <-ctx.Done():
			return state, ctx.Err()
		}
	}
}

// Close cancels pending debounced work and detaches every listener. A
// geocode already in flight still completes and is applied.
func (c *Controller) Close() {
	c.geocodeTrigger.Stop()
	c.mapTrigger.Stop()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()

		return
	}

	c.closed = true
	c.scheduled = false
	c.mapScheduled = false
	detach := c.detach
	c.detach = nil
	c.transition()
	c.mu.Unlock()

	for _, fn := range detach {
		fn()
	}
}
