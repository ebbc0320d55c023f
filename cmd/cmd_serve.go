// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/jcodagnone/geoassist/assist"
	"github.com/jcodagnone/geoassist/server"
	"github.com/spf13/cobra"
)

var serveConfig = server.Config{}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API hosting bound forms",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		provider, closeFn, err := providerOptions.build(cmd.Context())
		if err != nil {
			return err
		}
		defer closeFn()

		srv := server.NewServer(provider, assist.NewBinder(assist.WithContext(cmd.Context())), serveConfig)
		defer srv.Close()

		fmt.Printf("Geocoding with %s\n", provider.Name())

		return srv.Run()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveConfig.Addr, "addr", "localhost:8080", "Listen address")
	serveCmd.Flags().StringSliceVar(&serveConfig.CORSOrigins, "cors-origins", nil, "Allowed CORS origins (all when empty)")
}
