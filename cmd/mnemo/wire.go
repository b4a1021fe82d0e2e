// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/mnemo-dev/mnemo/internal/config"
	"github.com/mnemo-dev/mnemo/internal/embed"
	"github.com/mnemo-dev/mnemo/internal/engine"
	"github.com/mnemo-dev/mnemo/internal/secrets"
	"github.com/mnemo-dev/mnemo/internal/store"
	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"

	// Registered backends and embedding providers.
	_ "github.com/mnemo-dev/mnemo/internal/embed/google"
	_ "github.com/mnemo-dev/mnemo/internal/embed/openai"
	_ "github.com/mnemo-dev/mnemo/internal/store/memory"
	_ "github.com/mnemo-dev/mnemo/internal/store/sqlite"
)

const serviceName = "mnemo"

// secretStoreFactory builds the secret store used when wiring the app.
// Overridable in tests.
var secretStoreFactory = func() secrets.Store {
	return secrets.NewKeyringStore()
}

// App bundles everything a command needs after wiring.
type App struct {
	Config *config.Config
	Engine *engine.Engine

	index store.VectorIndex
	docs  store.DocumentStore
}

// Close releases the underlying stores.
func (a *App) Close() {
	if a.index != nil {
		_ = a.index.Close()
	}
	if a.docs != nil {
		_ = a.docs.Close()
	}
}

// wireApp loads config from the global viper, resolves secrets, opens the
// stores, and builds the engine. The embedder is optional: commands that
// only handle raw vectors still work without an API key.
func wireApp() (*App, error) {
	v := viper.GetViper()

	ks := secretStoreFactory()
	secrets.ResolveViperSecrets(v, ks)

	cfg, err := config.FromViper(v)
	if err != nil {
		return nil, err
	}

	dataDir := cfg.DataDir
	if dataDir == "" {
		var derr error
		dataDir, derr = config.DefaultDataDir()
		if derr != nil {
			return nil, derr
		}
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, mnemoerr.Errorf(mnemoerr.CodeCLISetupFailure, "creating data directory %s: %w", dataDir, err)
	}

	index, docs, err := store.NewStores(&store.StorageConfig{
		Backend:          cfg.Storage.Backend,
		VectorDimensions: cfg.Storage.VectorDimensions,
	}, dataDir)
	if err != nil {
		return nil, err
	}

	embedder := buildEmbedder(cfg, ks)
	eng := engine.New(index, docs, embedder, slog.Default())

	return &App{
		Config: cfg,
		Engine: eng,
		index:  index,
		docs:   docs,
	}, nil
}

// buildEmbedder constructs the configured embedding provider, or nil when no
// API key can be resolved. Text operations report the missing embedder at
// call time.
func buildEmbedder(cfg *config.Config, ks secrets.Store) embed.Embedder {
	provider := cfg.Embedding.Provider
	pc := cfg.Providers[provider]

	apiKey, err := secrets.ResolveAPIKey(ks, serviceName, provider, pc.APIKey, envVarFor(provider))
	if err != nil || apiKey == "" {
		if err != nil {
			slog.Warn("resolving embedding api key", "provider", provider, "error", err)
		}
		return nil
	}

	embedder, err := embed.New(provider, embed.Config{
		APIKey:     apiKey,
		BaseURL:    pc.Endpoint,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Storage.VectorDimensions,
	})
	if err != nil {
		slog.Warn("creating embedder", "provider", provider, "error", err)
		return nil
	}
	return embedder
}

func envVarFor(provider string) string {
	switch provider {
	case "openai":
		return "OPENAI_API_KEY"
	case "google":
		return "GEMINI_API_KEY"
	default:
		return strings.ToUpper(provider) + "_API_KEY"
	}
}
