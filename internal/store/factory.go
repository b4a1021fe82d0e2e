// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package store

import (
	"sync"

	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
)

// defaultVectorDimensions is the default embedding dimension (matches OpenAI
// text-embedding-3-small).
const defaultVectorDimensions = 1536

// BackendFactory creates the two stores for a backend given a data directory
// and vector dimensions.
type BackendFactory func(dataDir string, vectorDims int) (VectorIndex, DocumentStore, error)

var (
	backendFactories = map[string]BackendFactory{}
	factoriesMu      sync.RWMutex
)

// RegisterBackend registers a factory function for a named storage backend.
// Backend packages call this from init(). This function is goroutine-safe.
func RegisterBackend(name string, f BackendFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	backendFactories[name] = f
}

// resolveBackend returns the effective backend name, defaulting to "sqlite".
func resolveBackend(cfg *StorageConfig) string {
	if cfg.Backend == "" {
		return "sqlite"
	}
	return cfg.Backend
}

// NewStores creates the vector index and document store for the configured
// backend. The dataDir directory is used to derive per-database file paths.
func NewStores(cfg *StorageConfig, dataDir string) (VectorIndex, DocumentStore, error) {
	backend := resolveBackend(cfg)

	factoriesMu.RLock()
	factory, ok := backendFactories[backend]
	factoriesMu.RUnlock()
	if !ok {
		return nil, nil, mnemoerr.Errorf(mnemoerr.CodeStoreBackendUnsupported, "unsupported storage backend: %q", backend)
	}

	dims := defaultVectorDimensions
	if cfg.VectorDimensions > 0 {
		dims = cfg.VectorDimensions
	}

	return factory(dataDir, dims)
}
