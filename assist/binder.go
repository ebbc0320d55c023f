// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package assist

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/jcodagnone/geoassist/form"
	"github.com/jcodagnone/geoassist/geocode"
	"golang.org/x/net/html"
)

// ErrNoProvider is returned when binding without a geocoding provider.
var ErrNoProvider = errors.New("no geocoding provider")

// Binder attaches controllers to form elements. An element is bound at most
// once.
type Binder struct {
	logger *log.Logger
	ctx    context.Context

	mu          sync.Mutex
	controllers map[*html.Node]*Controller
}

// BinderOption configures a Binder.
type BinderOption func(*Binder)

// WithLogger sets where controllers report configuration problems and
// geocoding failures.
func WithLogger(l *log.Logger) BinderOption {
	return func(b *Binder) {
		b.logger = l
	}
}

// WithContext sets the context of the provider calls and of programmatic
// submits.
func WithContext(ctx context.Context) BinderOption {
	return func(b *Binder) {
		b.ctx = ctx
	}
}

// NewBinder creates an empty registry.
func NewBinder(opts ...BinderOption) *Binder {
	b := &Binder{
		logger:      log.Default(),
		ctx:         context.Background(),
		controllers: make(map[*html.Node]*Controller),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Bind attaches a controller to element. When element is already bound the
// existing controller is returned and nothing else happens.
func (b *Binder) Bind(doc *form.Document, element *html.Node, opts Options, provider geocode.Provider) (*Controller, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if c, ok := b.controllers[element]; ok {
		return c, nil
	}

	if provider == nil {
		return nil, ErrNoProvider
	}

	opts = opts.WithDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	sel, err := compileSelectors(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}

	scope, err := doc.Scope(element, opts.Parent)
	if err != nil {
		return nil, fmt.Errorf("binding element: %w", err)
	}

	c := newController(b.ctx, doc, element, scope, opts, sel, provider, b.logger)
	c.attach()
	b.controllers[element] = c

	return c, nil
}

// BindAll binds every element of doc matching selector, sharing opts and
// provider.
func (b *Binder) BindAll(doc *form.Document, selector string, opts Options, provider geocode.Provider) ([]*Controller, error) {
	nodes, err := doc.FindAll(selector)
	if err != nil {
		return nil, err
	}

	out := make([]*Controller, 0, len(nodes))

	for _, n := range nodes {
		c, err := b.Bind(doc, n, opts, provider)
		if err != nil {
			return out, err
		}

		out = append(out, c)
	}

	return out, nil
}

// Lookup returns the controller bound to element.
func (b *Binder) Lookup(element *html.Node) (*Controller, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.controllers[element]

	return c, ok
}

// Unbind closes the controller of element and forgets it.
func (b *Binder) Unbind(element *html.Node) {
	b.mu.Lock()
	c, ok := b.controllers[element]
	delete(b.controllers, element)
	b.mu.Unlock()

	if ok {
		c.Close()
	}
}

// Close unbinds every element.
func (b *Binder) Close() {
	b.mu.Lock()
	controllers := b.controllers
	b.controllers = make(map[*html.Node]*Controller)
	b.mu.Unlock()

	for _, c := range controllers {
		c.Close()
	}
}
