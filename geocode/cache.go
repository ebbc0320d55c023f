// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package geocode

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/jcodagnone/geoassist/utils/textutils"
)

// ErrCacheMiss is returned by a Store that has no entry for a key.
var ErrCacheMiss = errors.New("geocode: cache miss")

// Store keeps successful geocoding results.
type Store interface {
	Get(ctx context.Context, key string) (*Result, error)
	Put(ctx context.Context, key string, r *Result) error
}

// Cached answers repeated requests from a Store. Only successful results are
// stored; store failures are logged and fall through to the provider.
type Cached struct {
	Provider
	store  Store
	logger *log.Logger
}

// NewCached wraps p with store. A nil logger uses log.Default().
func NewCached(p Provider, store Store, logger *log.Logger) *Cached {
	if logger == nil {
		logger = log.Default()
	}

	return &Cached{Provider: p, store: store, logger: logger}
}

// CacheKey returns the key of req for the named provider. Addresses are
// folded so that case, accents and spacing differences share an entry.
func CacheKey(provider string, req Request) string {
	return strings.Join([]string{
		provider,
		textutils.FoldKey(req.Address),
		textutils.FoldKey(req.Restrictions.Locality),
		textutils.FoldKey(req.Restrictions.PostalCode),
		strings.ToLower(strings.TrimSpace(req.Restrictions.Country)),
	}, "|")
}

// Geocode implements Provider.
func (c *Cached) Geocode(ctx context.Context, req Request) (*Result, error) {
	key := CacheKey(c.Name(), req)

	r, err := c.store.Get(ctx, key)
	if err == nil {
		return r, nil
	}

	if !errors.Is(err, ErrCacheMiss) {
		c.logger.Printf("geocode cache read failed for %q: %v", key, err)
	}

	r, err = c.Provider.Geocode(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := c.store.Put(ctx, key, r); err != nil {
		c.logger.Printf("geocode cache write failed for %q: %v", key, err)
	}

	return r, nil
}
