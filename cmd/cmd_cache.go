// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jcodagnone/geoassist/geocode"
	"github.com/jcodagnone/geoassist/spatial"
	"github.com/spf13/cobra"
)

var nearResolution int

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect the DuckDB geocoding cache",
}

var cacheNearCmd = &cobra.Command{
	Use:   "near <lat> <lng>",
	Short: "List cached results around a point, nearest first",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		lat, okLat := spatial.ParseCoordinate(args[0])
		lng, okLng := spatial.ParseCoordinate(args[1])
		p := spatial.Point{Lat: lat, Lng: lng}

		if !okLat || !okLng || !p.Valid() {
			return fmt.Errorf("invalid point %s,%s", args[0], args[1])
		}

		if providerOptions.Cache == "" || strings.Contains(providerOptions.Cache, "://") {
			return errors.New("--cache must name a DuckDB database")
		}

		db, err := sql.Open("duckdb", providerOptions.Cache)
		if err != nil {
			return fmt.Errorf("opening cache database: %w", err)
		}
		defer db.Close()

		store := geocode.NewDuckDBStore(db)
		if err := store.CreateSchema(); err != nil {
			return err
		}

		neighbors, err := store.Near(cmd.Context(), p, nearResolution)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		for _, n := range neighbors {
			if err := enc.Encode(n); err != nil {
				return err
			}
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheNearCmd)
	cacheNearCmd.Flags().IntVar(&nearResolution, "resolution", 7, "H3 resolution of the search cell (5 to 8)")
}
