// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

// Package embed turns text into fixed-length embedding vectors via
// pluggable provider backends.
package embed

import "context"

// Embedder generates a fixed-length embedding vector for a piece of text.
// Callers are expected to pass text through Normalize first so that equal
// inputs always produce equal cache and dedup keys.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the length of vectors this embedder produces.
	Dimensions() int
}

// Config holds provider-independent embedder configuration.
type Config struct {
	APIKey     string
	BaseURL    string // optional, useful for testing against a mock server
	Model      string
	Dimensions int
}
