// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

// Package memory provides in-memory store backends. State lives for the
// process lifetime only; the backend exists for tests and for running
// without a data directory.
package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/mnemo-dev/mnemo/internal/store"
	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
)

// DocumentStore is an in-memory store.DocumentStore preserving insertion
// order per namespace. Safe for concurrent use.
type DocumentStore struct {
	mu         sync.RWMutex
	namespaces map[string][]*store.Document
}

func NewDocumentStore() *DocumentStore {
	return &DocumentStore{namespaces: map[string][]*store.Document{}}
}

func (s *DocumentStore) FindOne(_ context.Context, namespace string, query map[string]any) (*store.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, doc := range s.namespaces[namespace] {
		if fieldsMatch(doc.Fields, query) {
			return copyDocument(doc), nil
		}
	}
	return nil, notFound(namespace)
}

func (s *DocumentStore) FindByID(_ context.Context, namespace, id string) (*store.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, doc := range s.namespaces[namespace] {
		if doc.ID == id {
			return copyDocument(doc), nil
		}
	}
	return nil, notFound(namespace)
}

func (s *DocumentStore) Find(_ context.Context, namespace string, query map[string]any) ([]*store.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*store.Document
	for _, doc := range s.namespaces[namespace] {
		if fieldsMatch(doc.Fields, query) {
			out = append(out, copyDocument(doc))
		}
	}
	return out, nil
}

func (s *DocumentStore) InsertOne(_ context.Context, namespace string, fields map[string]any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := &store.Document{ID: uuid.NewString(), Fields: copyFields(fields)}
	s.namespaces[namespace] = append(s.namespaces[namespace], doc)
	return doc.ID, nil
}

func (s *DocumentStore) ReplaceByID(_ context.Context, namespace, id string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, doc := range s.namespaces[namespace] {
		if doc.ID == id {
			doc.Fields = copyFields(fields)
			return nil
		}
	}
	return notFound(namespace)
}

func (s *DocumentStore) DeleteMany(_ context.Context, namespace string, query map[string]any) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var kept []*store.Document
	var removed int64
	for _, doc := range s.namespaces[namespace] {
		if fieldsMatch(doc.Fields, query) {
			removed++
			continue
		}
		kept = append(kept, doc)
	}
	s.namespaces[namespace] = kept
	return removed, nil
}

func (s *DocumentStore) Close() error { return nil }

func notFound(namespace string) error {
	return mnemoerr.Wrap(store.ErrNotFound, mnemoerr.CodeStoreDocumentNotFound, "document not found",
		mnemoerr.FieldNamespace(namespace))
}

func fieldsMatch(fields, query map[string]any) bool {
	for key, want := range query {
		got, ok := fields[key]
		if !ok || !looseEqual(got, want) {
			return false
		}
	}
	return true
}

// looseEqual compares values the way a JSON round trip would, so int and
// float64 forms of the same number match.
func looseEqual(a, b any) bool {
	if a == b {
		return true
	}
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	return aok && bok && af == bf
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func copyDocument(doc *store.Document) *store.Document {
	return &store.Document{ID: doc.ID, Fields: copyFields(doc.Fields)}
}

func copyFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for key, value := range fields {
		out[key] = value
	}
	return out
}

// VectorIndex is an in-memory brute-force cosine store.VectorIndex.
type VectorIndex struct {
	mu         sync.RWMutex
	namespaces map[string]map[string]store.VectorEntry
}

func NewVectorIndex() *VectorIndex {
	return &VectorIndex{namespaces: map[string]map[string]store.VectorEntry{}}
}

func (v *VectorIndex) Upsert(_ context.Context, namespace string, entries []store.VectorEntry) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	ns, ok := v.namespaces[namespace]
	if !ok {
		ns = map[string]store.VectorEntry{}
		v.namespaces[namespace] = ns
	}
	for _, entry := range entries {
		if len(entry.Vector) == 0 {
			return mnemoerr.New(mnemoerr.CodeStoreVectorInvalid, "vector entry has no vector",
				mnemoerr.FieldNamespace(namespace))
		}
		ns[entry.ID] = entry
	}
	return nil
}

func (v *VectorIndex) Query(_ context.Context, namespace string, vector []float32, k int, filter map[string]any) ([]store.Match, error) {
	if len(vector) == 0 {
		return nil, mnemoerr.New(mnemoerr.CodeStoreVectorInvalid, "query vector is empty",
			mnemoerr.FieldNamespace(namespace))
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	var matches []store.Match
	for _, entry := range v.namespaces[namespace] {
		if !fieldsMatch(entry.Metadata, filter) {
			continue
		}
		matches = append(matches, store.Match{
			ID:       entry.ID,
			Score:    cosine(vector, entry.Vector),
			Metadata: copyFields(entry.Metadata),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (v *VectorIndex) Delete(_ context.Context, namespace string, ids []string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, id := range ids {
		delete(v.namespaces[namespace], id)
	}
	return nil
}

func (v *VectorIndex) Close() error { return nil }

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return -1
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
