// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package mapassist models the interactive map bound next to an address form:
// its center and zoom, and the notifications emitted when they change.
package mapassist

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/jcodagnone/geoassist/form"
	"github.com/jcodagnone/geoassist/spatial"
	"golang.org/x/net/html"
)

const (
	// MaxZoom is the deepest zoom level of the surface.
	MaxZoom = 21
	// tileSize is the width in pixels of the whole world at zoom 0.
	tileSize = 256

	defaultWidth  = 640
	defaultHeight = 480
)

// ErrTargetNotFound is returned when a map selector resolves to no element,
// or to several elements that can't be told apart.
var ErrTargetNotFound = errors.New("no elements found using provided map selector")

// ErrNoSelector is returned when a map is configured without a selector.
var ErrNoSelector = errors.New("no map selector provided")

// Config describes the map bound to a form.
type Config struct {
	Selector         string         `yaml:"selector" json:"selector" validate:"omitempty,selector"`
	DefaultLatitude  float64        `yaml:"defaultLatitude" json:"defaultLatitude" validate:"gte=-90,lte=90"`
	DefaultLongitude float64        `yaml:"defaultLongitude" json:"defaultLongitude" validate:"gte=-180,lte=180"`
	DefaultZoom      *float64       `yaml:"defaultZoom" json:"defaultZoom" validate:"omitempty,gte=0,lte=21"`
	ProviderOptions  map[string]any `yaml:"providerOptions" json:"providerOptions"`
}

// Zoom returns the configured default zoom, 2 when unset.
func (c Config) Zoom() float64 {
	if c.DefaultZoom == nil {
		return 2
	}

	return *c.DefaultZoom
}

// Map is what the resolution controller needs from a map widget.
type Map interface {
	Center() spatial.Point
	Zoom() float64
	SetCenter(p spatial.Point)
	SetZoom(z float64)
	FitBounds(b spatial.Bounds)
	// OnCenterChanged and OnZoomChanged return a function removing the
	// subscription.
	OnCenterChanged(fn func()) func()
	OnZoomChanged(fn func()) func()
}

// Surface is a headless Map: it keeps the state a rendered map would have.
type Surface struct {
	mu      sync.Mutex
	target  *html.Node
	center  spatial.Point
	zoom    float64
	width   int
	height  int
	options map[string]any

	nextID          int
	centerListeners map[int]func()
	zoomListeners   map[int]func()
}

var _ Map = (*Surface)(nil)

func intOption(options map[string]any, key string, def int) int {
	switch v := options[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}

// NewSurface creates a surface attached to target. The viewport size used by
// FitBounds comes from the "width" and "height" options.
func NewSurface(target *html.Node, center spatial.Point, zoom float64, options map[string]any) *Surface {
	return &Surface{
		target:  target,
		center:  center,
		zoom:    zoom,
		width:   max(1, intOption(options, "width", defaultWidth)),
		height:  max(1, intOption(options, "height", defaultHeight)),
		options: options,

		centerListeners: make(map[int]func()),
		zoomListeners:   make(map[int]func()),
	}
}

// Target returns the element the map is attached to.
func (s *Surface) Target() *html.Node {
	return s.target
}

// Options returns the provider options the surface was built with.
func (s *Surface) Options() map[string]any {
	return s.options
}

// Center implements Map.
func (s *Surface) Center() spatial.Point {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.center
}

// Zoom implements Map.
func (s *Surface) Zoom() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.zoom
}

func snapshot(listeners map[int]func()) []func() {
	out := make([]func(), 0, len(listeners))
	for _, fn := range listeners {
		out = append(out, fn)
	}

	return out
}

func notify(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}

// SetCenter implements Map. Listeners run only when the center moves.
func (s *Surface) SetCenter(p spatial.Point) {
	s.mu.Lock()
	if s.center == p {
		s.mu.Unlock()

		return
	}

	s.center = p
	fns := snapshot(s.centerListeners)
	s.mu.Unlock()

	notify(fns)
}

// SetZoom implements Map. The zoom is clamped to [0, MaxZoom].
func (s *Surface) SetZoom(z float64) {
	z = math.Max(0, math.Min(MaxZoom, z))

	s.mu.Lock()
	if s.zoom == z {
		s.mu.Unlock()

		return
	}

	s.zoom = z
	fns := snapshot(s.zoomListeners)
	s.mu.Unlock()

	notify(fns)
}

// Move pans and zooms at once, as a user drag followed by a scroll would.
func (s *Surface) Move(p spatial.Point, z float64) {
	s.SetCenter(p)
	s.SetZoom(z)
}

func latRad(lat float64) float64 {
	sin := math.Sin(lat * math.Pi / 180)
	radX2 := math.Log((1+sin)/(1-sin)) / 2

	return math.Max(math.Min(radX2, math.Pi), -math.Pi) / 2
}

func zoomFor(mapPx int, fraction float64) float64 {
	if fraction <= 0 {
		return MaxZoom
	}

	return math.Floor(math.Log2(float64(mapPx) / tileSize / fraction))
}

// BoundsZoom returns the largest zoom at which b fits a width x height
// viewport in Web Mercator.
func BoundsZoom(b spatial.Bounds, width, height int) float64 {
	latFraction := (latRad(b.NorthEast.Lat) - latRad(b.SouthWest.Lat)) / math.Pi
	_, lngSpan := b.Span()
	lngFraction := lngSpan / 360

	z := math.Min(zoomFor(height, latFraction), zoomFor(width, lngFraction))

	return math.Max(0, math.Min(MaxZoom, z))
}

// FitBounds implements Map.
func (s *Surface) FitBounds(b spatial.Bounds) {
	s.mu.Lock()
	z := BoundsZoom(b, s.width, s.height)
	s.mu.Unlock()

	s.SetCenter(b.Center())
	s.SetZoom(z)
}

func (s *Surface) subscribe(set map[int]func(), fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	set[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		delete(set, id)
	}
}

// OnCenterChanged implements Map.
func (s *Surface) OnCenterChanged(fn func()) func() {
	return s.subscribe(s.centerListeners, fn)
}

// OnZoomChanged implements Map.
func (s *Surface) OnZoomChanged(fn func()) func() {
	return s.subscribe(s.zoomListeners, fn)
}

// Locate finds the element hosting the map of the form containing element.
// A selector matching a single element in the whole document wins; otherwise
// the ancestors of element are searched, nearest first, for one whose subtree
// holds exactly one match.
func Locate(doc *form.Document, element *html.Node, selector string) (*html.Node, error) {
	if selector == "" {
		return nil, ErrNoSelector
	}

	sel, err := form.Compile(selector)
	if err != nil {
		return nil, err
	}

	all := doc.FindWithin(doc.Root(), sel)
	if len(all) == 1 {
		return all[0], nil
	}

	for _, ancestor := range doc.Ancestors(element) {
		if candidates := doc.FindWithin(ancestor, sel); len(candidates) == 1 {
			return candidates[0], nil
		}
	}

	return nil, fmt.Errorf("%w: %q matched %d elements", ErrTargetNotFound, selector, len(all))
}
