// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package geocode

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/jcodagnone/geoassist/spatial"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu      sync.Mutex
	entries map[string]*Result
	failGet error
}

func (m *memoryStore) Get(_ context.Context, key string) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failGet != nil {
		return nil, m.failGet
	}

	r, ok := m.entries[key]
	if !ok {
		return nil, ErrCacheMiss
	}

	return r, nil
}

func (m *memoryStore) Put(_ context.Context, key string, r *Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = r

	return nil
}

func TestCacheKey(t *testing.T) {
	a := CacheKey("google_maps", NewRequest("  123 MAIN   st ", "Montevidéo", "", "UY"))
	b := CacheKey("google_maps", NewRequest("123 main st", "montevideo", "", "uy"))
	c := CacheKey("nominatim", NewRequest("123 main st", "montevideo", "", "uy"))

	assert.Equal(t, "google_maps|123 main st|montevideo||uy", a)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestCachedProvider(t *testing.T) {
	provider := &countingProvider{result: sampleResult()}
	store := &memoryStore{entries: map[string]*Result{}}
	cached := NewCached(provider, store, nil)

	for range 3 {
		res, err := cached.Geocode(context.Background(), NewRequest("123 Main St", "", "", ""))
		require.NoError(t, err)
		assert.Equal(t, sampleResult(), res)
	}

	assert.Equal(t, 1, provider.calls())
	assert.Equal(t, "counting", cached.Name())
}

func TestCachedProviderDoesNotCacheFailures(t *testing.T) {
	provider := &countingProvider{err: &GeocodingError{Type: ErrorTypeNotFound, Message: "nothing"}}
	store := &memoryStore{entries: map[string]*Result{}}
	cached := NewCached(provider, store, nil)

	for range 2 {
		_, err := cached.Geocode(context.Background(), NewRequest("nowhere", "", "", ""))
		assert.True(t, IsNotFoundError(err))
	}

	assert.Equal(t, 2, provider.calls())
	assert.Empty(t, store.entries)
}

func TestCachedProviderStoreFailure(t *testing.T) {
	var logs bytes.Buffer

	provider := &countingProvider{result: sampleResult()}
	store := &memoryStore{entries: map[string]*Result{}, failGet: errors.New("connection refused")}
	cached := NewCached(provider, store, log.New(&logs, "", 0))

	res, err := cached.Geocode(context.Background(), NewRequest("123 Main St", "", "", ""))
	require.NoError(t, err)
	assert.NotNil(t, res)
	assert.Contains(t, logs.String(), "connection refused")
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisStore(client, time.Hour)
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	assert.True(t, errors.Is(err, ErrCacheMiss))

	require.NoError(t, store.Put(ctx, "k", sampleResult()))
	assert.True(t, mr.Exists("geocode:k"))
	assert.Equal(t, time.Hour, mr.TTL("geocode:k"))

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)

	if diff := cmp.Diff(sampleResult(), got); diff != "" {
		t.Errorf("cached result mismatch (-want +got):\n%s", diff)
	}

	mr.FastForward(2 * time.Hour)

	_, err = store.Get(ctx, "k")
	assert.True(t, errors.Is(err, ErrCacheMiss))

	require.NoError(t, mr.Set("geocode:bad", "{"))

	_, err = store.Get(ctx, "bad")
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrCacheMiss))
}

func setupDuckDBStore(t *testing.T) (*sql.DB, *DuckDBStore) {
	t.Helper()

	db, err := sql.Open("duckdb", "")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	store := NewDuckDBStore(db)
	if err := store.CreateSchema(); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	return db, store
}

func TestDuckDBStore(t *testing.T) {
	db, store := setupDuckDBStore(t)
	defer db.Close()

	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	assert.True(t, errors.Is(err, ErrCacheMiss))

	require.NoError(t, store.Put(ctx, "a", sampleResult()))

	// replacing an entry keeps a single row
	updated := sampleResult()
	updated.DisplayName = "123 Main Street"
	require.NoError(t, store.Put(ctx, "a", updated))

	got, err := store.Get(ctx, "a")
	require.NoError(t, err)

	if diff := cmp.Diff(updated, got); diff != "" {
		t.Errorf("cached result mismatch (-want +got):\n%s", diff)
	}

	far := sampleResult()
	far.Location = spatial.Point{Lat: -34.9, Lng: -56.16}
	require.NoError(t, store.Put(ctx, "b", far))

	keys, err := store.KeysNear(ctx, spatial.Point{Lat: 40.0, Lng: -74.0}, 8)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, keys)

	_, err = store.KeysNear(ctx, spatial.Point{}, 3)
	assert.Error(t, err)

	near := sampleResult()
	near.Location = spatial.Point{Lat: 40.0005, Lng: -74.0005}
	require.NoError(t, store.Put(ctx, "c", near))

	center := sampleResult().Location

	neighbors, err := store.Near(ctx, center, 5)
	require.NoError(t, err)
	require.Len(t, neighbors, 2)
	assert.Equal(t, "a", neighbors[0].Key)
	assert.InDelta(t, 0, neighbors[0].Distance, 1e-6)
	assert.Equal(t, "c", neighbors[1].Key)
	assert.InDelta(t, 70, neighbors[1].Distance, 10)
}
