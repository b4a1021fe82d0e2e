// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package embed

import (
	"sync"

	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
)

// Factory builds an Embedder from provider-independent configuration.
type Factory func(Config) (Embedder, error)

var (
	factories   = map[string]Factory{}
	factoriesMu sync.RWMutex
)

// Register registers a factory for a named embedding provider.
// Provider packages call this from init(). Goroutine-safe.
func Register(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = f
}

// New creates an Embedder for the named provider. Unknown names return an
// error rather than falling back; provider selection is always explicit.
func New(name string, cfg Config) (Embedder, error) {
	factoriesMu.RLock()
	factory, ok := factories[name]
	factoriesMu.RUnlock()
	if !ok {
		return nil, mnemoerr.Errorf(mnemoerr.CodeEmbedProviderNotFound, "unknown embedding provider: %q", name)
	}

	return factory(cfg)
}
