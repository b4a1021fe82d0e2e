// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package store

import "context"

// DocumentStore is a namespaced document database. It is the authoritative
// store: application records, the embedding registry, actors, and the LLM
// call ledger all live in its namespaces.
type DocumentStore interface {
	// FindOne returns the first document whose fields equal every entry in
	// query. Returns ErrNotFound when nothing matches.
	FindOne(ctx context.Context, namespace string, query map[string]any) (*Document, error)

	// FindByID returns the document with the given id, or ErrNotFound.
	FindByID(ctx context.Context, namespace, id string) (*Document, error)

	// Find returns all documents matching query, in insertion order.
	// An empty query matches every document in the namespace.
	Find(ctx context.Context, namespace string, query map[string]any) ([]*Document, error)

	// InsertOne stores a new document and returns its generated id.
	InsertOne(ctx context.Context, namespace string, fields map[string]any) (string, error)

	// ReplaceByID overwrites the body of an existing document.
	// Returns ErrNotFound when the id does not exist.
	ReplaceByID(ctx context.Context, namespace, id string, fields map[string]any) error

	// DeleteMany removes all documents matching query and reports how many
	// were removed.
	DeleteMany(ctx context.Context, namespace string, query map[string]any) (int64, error)

	Close() error
}
