// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package store

// Document is a record held by a DocumentStore. Fields holds the document
// body; ID is the store-generated identifier, unique within a namespace.
type Document struct {
	ID     string
	Fields map[string]any
}

// VectorEntry is a single embedding to upsert into a VectorIndex namespace.
type VectorEntry struct {
	ID       string
	Vector   []float32
	Metadata map[string]any
}

// Match is a single result from a vector similarity query.
// Score is a similarity in [0, 1] where higher means more similar.
type Match struct {
	ID       string
	Score    float64
	Metadata map[string]any
}
