// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	apikeys "cloud.google.com/go/apikeys/apiv2"
	"cloud.google.com/go/apikeys/apiv2/apikeyspb"
	_ "github.com/duckdb/duckdb-go/v2" // register duckdb driver
	"github.com/jcodagnone/geoassist/geocode"
	"github.com/jcodagnone/geoassist/utils/httputils"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
	"google.golang.org/api/iterator"
)

// ProviderOptions selects and decorates the geocoding provider.
type ProviderOptions struct {
	Provider          string
	Cache             string
	CacheTTL          time.Duration
	RequestsPerSecond float64
	NominatimURL      string
	Region            string
	KeyName           string
	EnableHTTPTrace   bool
}

var providerOptions = &ProviderOptions{}

func userAgent() string {
	return fmt.Sprintf("geoassist/%s (+https://github.com/jcodagnone/geoassist)", Version)
}

func (o *ProviderOptions) httpClient() (*http.Client, error) {
	opts := httputils.ClientOptions{
		Timeout: 10 * time.Second,
		Headers: map[string]string{"User-Agent": userAgent()},
	}

	if o.EnableHTTPTrace {
		opts.Trace = os.Stderr
	}

	return httputils.NewClient(opts)
}

// build returns the configured provider and a function releasing the
// resources it holds.
func (o *ProviderOptions) build(ctx context.Context) (geocode.Provider, func(), error) {
	client, err := o.httpClient()
	if err != nil {
		return nil, nil, fmt.Errorf("creating http client: %w", err)
	}

	var provider geocode.Provider

	rps := o.RequestsPerSecond

	switch o.Provider {
	case "google":
		apiKey, err := googleMapsAPIKey(ctx, o.KeyName)
		if err != nil {
			return nil, nil, err
		}

		provider = geocode.NewGoogleMapsGeocoder(apiKey,
			geocode.WithGoogleHTTPClient(client),
			geocode.WithGoogleRegion(o.Region),
		)
	case "nominatim":
		provider = geocode.NewNominatimGeocoder(o.NominatimURL, userAgent(), client)
		if rps == 0 {
			// usage policy of the public instance
			rps = 1
		}
	default:
		return nil, nil, fmt.Errorf("unknown provider %q (expected google or nominatim)", o.Provider)
	}

	if rps > 0 {
		provider = geocode.NewRateLimited(provider, rate.Limit(rps), 1)
	}

	store, closeStore, err := o.store()
	if err != nil {
		return nil, nil, err
	}

	if store != nil {
		provider = geocode.NewCached(provider, store, log.Default())
	}

	return provider, closeStore, nil
}

func (o *ProviderOptions) store() (geocode.Store, func(), error) {
	switch {
	case o.Cache == "":
		return nil, func() {}, nil
	case strings.HasPrefix(o.Cache, "redis://") || strings.HasPrefix(o.Cache, "rediss://"):
		opt, err := redis.ParseURL(o.Cache)
		if err != nil {
			return nil, nil, fmt.Errorf("parsing redis url: %w", err)
		}

		client := redis.NewClient(opt)
		closeFn := func() {
			if err := client.Close(); err != nil {
				log.Printf("Closing redis client: %v", err)
			}
		}

		return geocode.NewRedisStore(client, o.CacheTTL), closeFn, nil
	default:
		db, err := sql.Open("duckdb", o.Cache)
		if err != nil {
			return nil, nil, fmt.Errorf("opening cache database: %w", err)
		}

		store := geocode.NewDuckDBStore(db)
		if err := store.CreateSchema(); err != nil {
			db.Close()

			return nil, nil, err
		}

		closeFn := func() {
			if err := db.Close(); err != nil {
				log.Printf("Closing cache database: %v", err)
			}
		}

		return store, closeFn, nil
	}
}

func googleMapsAPIKey(ctx context.Context, keyName string) (string, error) {
	apiKey := os.Getenv("GOOGLE_MAPS_API_KEY")
	if apiKey != "" {
		return apiKey, nil
	}

	log.Println("GOOGLE_MAPS_API_KEY is not set. Attempting to retrieve via ADC...")

	apiKey, err := getAPIKeyFromADC(ctx, keyName)
	if err != nil {
		return "", fmt.Errorf("GOOGLE_MAPS_API_KEY is not set and ADC failed: %w", err)
	}

	log.Println("Retrieved Google Maps API key via ADC")

	return apiKey, nil
}

func getAPIKeyFromADC(ctx context.Context, displayName string) (string, error) {
	creds, err := google.FindDefaultCredentials(ctx, "https://www.googleapis.com/auth/cloud-platform")
	if err != nil {
		return "", fmt.Errorf("finding default credentials: %w", err)
	}

	projectID := creds.ProjectID
	if projectID == "" {
		// user credentials carry no project unless a quota project is set
		projectID = os.Getenv("GOOGLE_CLOUD_PROJECT")
	}

	if projectID == "" {
		return "", errors.New("no project found in credentials and GOOGLE_CLOUD_PROJECT is not set")
	}

	client, err := apikeys.NewClient(ctx)
	if err != nil {
		return "", fmt.Errorf("creating apikeys client: %w", err)
	}
	defer client.Close()

	it := client.ListKeys(ctx, &apikeyspb.ListKeysRequest{
		Parent: fmt.Sprintf("projects/%s/locations/global", projectID),
	})

	for {
		key, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}

		if err != nil {
			return "", fmt.Errorf("listing keys: %w", err)
		}

		if key.DisplayName != displayName {
			continue
		}

		// ListKeys redacts the key string
		log.Printf("Found key resource '%s', retrieving secret...", key.Name)

		resp, err := client.GetKeyString(ctx, &apikeyspb.GetKeyStringRequest{Name: key.Name})
		if err != nil {
			return "", fmt.Errorf("getting key string: %w", err)
		}

		if resp.KeyString == "" {
			return "", fmt.Errorf("key '%s' has an empty key string", displayName)
		}

		return resp.KeyString, nil
	}

	return "", fmt.Errorf("key with display name '%s' not found in project %s", displayName, projectID)
}
