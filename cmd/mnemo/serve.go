// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mnemo-dev/mnemo/internal/server"
)

func newServeCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := wireApp()
			if err != nil {
				return err
			}
			defer app.Close()

			addr := app.Config.Server.Listen
			if listen != "" {
				addr = listen
			}

			srv, err := server.New(server.Config{
				ListenAddr:  addr,
				CORSOrigins: app.Config.Server.CORSOrigins,
			}, app.Engine, nil)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides server.listen)")

	return cmd
}
