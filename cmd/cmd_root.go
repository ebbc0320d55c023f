// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type logWriter struct {
	writer io.Writer
}

func (w *logWriter) Write(bytes []byte) (int, error) {
	return fmt.Fprintf(w.writer, "%s %s", time.Now().Format("2006-01-02 15:04:05"), string(bytes))
}

func init() {
	log.SetFlags(0)
	log.SetOutput(&logWriter{writer: os.Stderr})
}

var envFile string

var rootCmd = &cobra.Command{
	Use:   "geoassist",
	Short: "keeps address forms in sync with a geocoder",
	Long: `
geoassist binds the address fields of HTML forms to a geocoding provider and an
optional map, filling latitude, longitude, zoom and viewport fields and holding
submits until the address has been resolved.
`,
	SilenceUsage: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", envFile, err)
		}

		return nil
	},
}

var Version = "dev"

func Execute(version string) {
	Version = version

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)

	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file loaded on start, if present")
	rootCmd.PersistentFlags().StringVar(
		&providerOptions.Provider,
		"provider",
		"google",
		"Geocoding provider: google or nominatim",
	)
	rootCmd.PersistentFlags().StringVar(
		&providerOptions.Cache,
		"cache",
		"",
		"Geocoding cache: a redis:// URL or the path of a DuckDB database",
	)
	rootCmd.PersistentFlags().DurationVar(
		&providerOptions.CacheTTL,
		"cache-ttl",
		30*24*time.Hour,
		"Expiration of cached results (redis only)",
	)
	rootCmd.PersistentFlags().Float64Var(
		&providerOptions.RequestsPerSecond,
		"rate",
		0,
		"Maximum provider requests per second, 0 for unlimited (nominatim defaults to 1)",
	)
	rootCmd.PersistentFlags().StringVar(
		&providerOptions.NominatimURL,
		"nominatim-url",
		"",
		"Nominatim search endpoint",
	)
	rootCmd.PersistentFlags().StringVar(
		&providerOptions.Region,
		"region",
		"",
		"Region bias for Google (ccTLD, e.g. uy)",
	)
	rootCmd.PersistentFlags().StringVar(
		&providerOptions.KeyName,
		"maps-key-name",
		"Geocoding Key",
		"Display name of the API key looked up through Application Default Credentials",
	)
	rootCmd.PersistentFlags().BoolVar(
		&providerOptions.EnableHTTPTrace,
		"trace-http",
		false,
		"Display HTTP requests-responses",
	)
}
