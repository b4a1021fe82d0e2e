// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package config

import (
	_ "embed"
	"log/slog"
	"os"
	"path/filepath"

	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
)

//go:embed mnemo.yaml.default
var DefaultConfigYAML []byte

// DefaultConfigPath returns ~/.config/mnemo/mnemo.yaml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", mnemoerr.Errorf(mnemoerr.CodeConfigLoadReadFailure, "resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "mnemo", "mnemo.yaml"), nil
}

// DefaultDataDir returns ~/.local/share/mnemo, used when data_dir is not
// configured.
func DefaultDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", mnemoerr.Errorf(mnemoerr.CodeConfigLoadReadFailure, "resolving home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "mnemo"), nil
}

// BootstrapConfig writes the default commented config to the default path if
// it does not already exist. Returns the path written, or empty string if
// the file already existed or could not be written (non-fatal, logged).
func BootstrapConfig() string {
	cfgPath, err := DefaultConfigPath()
	if err != nil {
		slog.Debug("skipping config bootstrap", "error", err)
		return ""
	}

	if _, err := os.Stat(cfgPath); err == nil {
		return ""
	}

	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		slog.Debug("skipping config bootstrap: cannot create directory", "path", dir, "error", err)
		return ""
	}

	if err := os.WriteFile(cfgPath, DefaultConfigYAML, 0o600); err != nil {
		slog.Debug("skipping config bootstrap: cannot write config", "path", cfgPath, "error", err)
		return ""
	}

	slog.Info("created default config", "path", cfgPath)
	return cfgPath
}
