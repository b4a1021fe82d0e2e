// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package store

import "context"

// VectorIndex is a namespaced approximate-nearest-neighbor store.
//
// The index is a derived cache: it holds nothing that cannot be rebuilt from
// the embedding registry and the owning documents, and it may lag or lose
// entries without breaking correctness, only search availability. Callers
// must tolerate entries whose referent no longer exists.
type VectorIndex interface {
	// Upsert inserts or replaces entries under the given namespace.
	Upsert(ctx context.Context, namespace string, entries []VectorEntry) error

	// Query returns up to k nearest neighbors of vector within namespace,
	// sorted by descending similarity score. A non-empty filter restricts
	// results to entries whose metadata matches every given field.
	Query(ctx context.Context, namespace string, vector []float32, k int, filter map[string]any) ([]Match, error)

	// Delete removes the given ids from namespace. Missing ids are ignored.
	Delete(ctx context.Context, namespace string, ids []string) error

	Close() error
}
