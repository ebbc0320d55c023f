// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package geocode

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jcodagnone/geoassist/spatial"
)

// cellResolutions are the H3 resolutions stored with every cached location.
var cellResolutions = []int{5, 6, 7, 8}

// DuckDBStore keeps results in a DuckDB table, indexed by the H3 cells of
// the resolved location.
type DuckDBStore struct {
	db *sql.DB
}

// NewDuckDBStore creates a store on db. CreateSchema must run first.
func NewDuckDBStore(db *sql.DB) *DuckDBStore {
	return &DuckDBStore{db: db}
}

// CreateSchema creates the geocode_cache table.
func (s *DuckDBStore) CreateSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS geocode_cache (
			key VARCHAR PRIMARY KEY,
			provider VARCHAR NOT NULL,
			display_name VARCHAR NOT NULL,
			confidence VARCHAR NOT NULL,
			lat DOUBLE NOT NULL,
			lng DOUBLE NOT NULL,
			ne_lat DOUBLE NOT NULL,
			ne_lng DOUBLE NOT NULL,
			sw_lat DOUBLE NOT NULL,
			sw_lng DOUBLE NOT NULL,
			h3_res5 UBIGINT,
			h3_res6 UBIGINT,
			h3_res7 UBIGINT,
			h3_res8 UBIGINT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating geocode_cache: %w", err)
	}

	return nil
}

// Get implements Store.
func (s *DuckDBStore) Get(ctx context.Context, key string) (*Result, error) {
	var r Result

	err := s.db.QueryRowContext(ctx, `
		SELECT provider, display_name, confidence, lat, lng, ne_lat, ne_lng, sw_lat, sw_lng
		FROM geocode_cache
		WHERE key = ?
	`, key).Scan(
		&r.Provider,
		&r.DisplayName,
		&r.Confidence,
		&r.Location.Lat,
		&r.Location.Lng,
		&r.Viewport.NorthEast.Lat,
		&r.Viewport.NorthEast.Lng,
		&r.Viewport.SouthWest.Lat,
		&r.Viewport.SouthWest.Lng,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCacheMiss
	}

	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}

	return &r, nil
}

// Put implements Store.
func (s *DuckDBStore) Put(ctx context.Context, key string, r *Result) error {
	cells := make([]any, len(cellResolutions))

	for i, res := range cellResolutions {
		cell, err := r.Location.Cell(res)
		if err != nil {
			return err
		}

		cells[i] = cell
	}

	args := []any{
		key,
		r.Provider,
		r.DisplayName,
		r.Confidence,
		r.Location.Lat,
		r.Location.Lng,
		r.Viewport.NorthEast.Lat,
		r.Viewport.NorthEast.Lng,
		r.Viewport.SouthWest.Lat,
		r.Viewport.SouthWest.Lng,
	}
	args = append(args, cells...)
	args = append(args, time.Now())

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO geocode_cache(
			key, provider, display_name, confidence,
			lat, lng, ne_lat, ne_lng, sw_lat, sw_lng,
			h3_res5, h3_res6, h3_res7, h3_res8, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, args...)
	if err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}

	return nil
}

// KeysNear returns the cache keys whose location falls in the same H3 cell
// as p at resolution res (one of 5 to 8).
func (s *DuckDBStore) KeysNear(ctx context.Context, p spatial.Point, res int) ([]string, error) {
	if res < cellResolutions[0] || res > cellResolutions[len(cellResolutions)-1] {
		return nil, fmt.Errorf("unsupported h3 resolution %d", res)
	}

	cell, err := p.Cell(res)
	if err != nil {
		return nil, err
	}

	// res is one of cellResolutions
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT key FROM geocode_cache WHERE h3_res%d = ? ORDER BY key", res), cell)
	if err != nil {
		return nil, fmt.Errorf("querying keys near %v: %w", p, err)
	}
	defer rows.Close()

	var keys []string

	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}

		keys = append(keys, key)
	}

	return keys, rows.Err()
}

// Neighbor is a cached result found around a point.
type Neighbor struct {
	Key      string  `json:"key"`
	Result   *Result `json:"result"`
	Distance float64 `json:"distance_m"`
}

// Near returns the cached results sharing p's H3 cell at resolution res,
// nearest first.
func (s *DuckDBStore) Near(ctx context.Context, p spatial.Point, res int) ([]Neighbor, error) {
	keys, err := s.KeysNear(ctx, p, res)
	if err != nil {
		return nil, err
	}

	out := make([]Neighbor, 0, len(keys))

	for _, key := range keys {
		r, err := s.Get(ctx, key)
		if errors.Is(err, ErrCacheMiss) {
			// replaced concurrently
			continue
		} else if err != nil {
			return nil, err
		}

		out = append(out, Neighbor{Key: key, Result: r, Distance: p.HaversineDistance(&r.Location)})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })

	return out, nil
}
