// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/jcodagnone/geoassist/geocode"
	"github.com/jcodagnone/geoassist/utils/textutils"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var restrictions geocode.Restrictions

var geocodeCmd = &cobra.Command{
	Use:   "geocode <address>",
	Short: "Geocode a single address and print the result as JSON",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, closeFn, err := providerOptions.build(cmd.Context())
		if err != nil {
			return err
		}
		defer closeFn()

		req := geocode.NewRequest(strings.Join(args, " "), restrictions.Locality, restrictions.PostalCode, restrictions.Country)

		res, err := provider.Geocode(cmd.Context(), req)
		if err != nil {
			return fmt.Errorf("geocoding %q: %w", req.Address, err)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(res)
	},
}

// BatchLine is one line of the batch output.
type BatchLine struct {
	Address string          `json:"address"`
	Result  *geocode.Result `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
	Status  string          `json:"status,omitempty"`
}

var batchConcurrency int

func readAddresses(r io.Reader) ([]string, error) {
	var addresses []string

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" && !strings.HasPrefix(line, "#") {
			addresses = append(addresses, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading addresses: %w", err)
	}

	return addresses, nil
}

func geocodeAll(ctx context.Context, provider geocode.Provider, addresses []string, concurrency int, bar *progressbar.ProgressBar) ([]BatchLine, error) {
	lines := make([]BatchLine, len(addresses))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, concurrency))

	for i, address := range addresses {
		g.Go(func() error {
			line := BatchLine{Address: address}

			res, err := provider.Geocode(ctx, geocode.NewRequest(address, restrictions.Locality, restrictions.PostalCode, restrictions.Country))
			if err != nil {
				line.Error = err.Error()
				line.Status = geocode.StatusOf(err)
			} else {
				line.Result = res
			}

			lines[i] = line

			if bar == nil {
				log.Printf("Geocoded %s", address)
			} else if err := bar.Add(1); err != nil {
				return fmt.Errorf("updating progress bar: %w", err)
			}

			if geocode.IsQuotaExceededError(err) {
				return fmt.Errorf("stopping batch: %w", err)
			}

			return nil
		})
	}

	return lines, g.Wait()
}

var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Geocode one address per line, printing JSON lines",
	Long: `Reads one address per line (use - for stdin) and prints one JSON object per
address, in input order. Lines starting with # are ignored.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		input := os.Stdin
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening %s: %w", args[0], err)
			}
			defer f.Close()

			input = f
		}

		addresses, err := readAddresses(input)
		if err != nil {
			return err
		}

		provider, closeFn, err := providerOptions.build(cmd.Context())
		if err != nil {
			return err
		}
		defer closeFn()

		var bar *progressbar.ProgressBar
		if isatty.IsTerminal(os.Stderr.Fd()) {
			bar = progressbar.NewOptions(len(addresses),
				progressbar.OptionSetDescription("Geocoding"),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)
		}

		lines, err := geocodeAll(cmd.Context(), provider, addresses, batchConcurrency, bar)

		enc := json.NewEncoder(os.Stdout)

		failed := 0

		for _, line := range lines {
			if line.Address == "" {
				// not processed, the batch was stopped
				continue
			}

			if line.Error != "" {
				failed++
			}

			if encErr := enc.Encode(line); encErr != nil {
				return encErr
			}
		}

		log.Printf("Geocoded %s addresses, %s failed",
			textutils.FormatInt(int64(len(addresses))), textutils.FormatInt(int64(failed)))

		return err
	},
}

func init() {
	rootCmd.AddCommand(geocodeCmd)
	rootCmd.AddCommand(batchCmd)

	for _, c := range []*cobra.Command{geocodeCmd, batchCmd} {
		c.Flags().StringVar(&restrictions.Locality, "locality", "", "Restrict results to a locality")
		c.Flags().StringVar(&restrictions.PostalCode, "postal-code", "", "Restrict results to a postal code")
		c.Flags().StringVar(&restrictions.Country, "country", "", "Restrict results to a country (ISO 3166-1 code)")
	}

	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 4, "Number of concurrent provider requests")
}
