// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mnemo-dev/mnemo/internal/config"
	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
)

// NewRootCmd creates the root mnemo command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "mnemo",
		Short:         "Mnemo is a semantic memory store and search engine",
		Long:          "Mnemo stores embeddings of text alongside their owning documents and retrieves the most similar previously-stored items.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := initViper(cmd); err != nil {
				return err
			}
			setupLogging(viper.GetBool("verbose"))
			return nil
		},
	}

	// Global flags, bound to viper keys in initViper.
	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().String("data-dir", "", "path to data directory")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")

	root.AddCommand(
		newStoreCmd(),
		newSearchCmd(),
		newServeCmd(),
		newSecretCmd(),
		newVersionCmd(),
	)

	return root
}

// initViper sets up the global Viper with defaults, env bindings, flag
// bindings, and optional config file so the standard precedence
// (flag > env > file > defaults) is handled uniformly.
func initViper(cmd *cobra.Command) error {
	v := viper.GetViper()

	config.SetDefaults(v)
	config.SetupEnv(v)

	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return mnemoerr.Errorf(mnemoerr.CodeConfigLoadReadFailure, "reading config file: %w", err)
		}
		config.WarnInsecurePermissions(cfgFile)
	} else {
		// Auto-discover mnemo.yaml from standard locations. SetConfigType is
		// intentionally omitted: when set, viper also tries the bare config
		// name without extension, which collides with the ./mnemo binary.
		v.SetConfigName("mnemo")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/mnemo")
		v.AddConfigPath("/etc/mnemo")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				// Parse or permission errors must surface; a missing file is
				// fine since defaults and env vars still apply.
				return mnemoerr.Errorf(mnemoerr.CodeConfigLoadReadFailure, "reading config: %w", err)
			}
			if path := config.BootstrapConfig(); path != "" {
				v.SetConfigFile(path)
				if err := v.ReadInConfig(); err != nil {
					return mnemoerr.Errorf(mnemoerr.CodeConfigLoadReadFailure, "reading bootstrapped config: %w", err)
				}
			}
		}
		config.WarnInsecurePermissions(v.ConfigFileUsed())
	}

	if err := v.BindPFlag("data_dir", cmd.Root().PersistentFlags().Lookup("data-dir")); err != nil {
		return mnemoerr.Errorf(mnemoerr.CodeCLISetupFailure, "binding data-dir flag: %w", err)
	}
	if err := v.BindPFlag("verbose", cmd.Root().PersistentFlags().Lookup("verbose")); err != nil {
		return mnemoerr.Errorf(mnemoerr.CodeCLISetupFailure, "binding verbose flag: %w", err)
	}

	return nil
}

func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
