// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package engine_test

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/mnemo-dev/mnemo/internal/store"
)

// fakeIndex is an in-memory cosine-similarity index that counts calls so
// tests can assert which backends a code path touched.
type fakeIndex struct {
	entries map[string]map[string]store.VectorEntry // namespace -> id -> entry

	upsertCalls int
	queryCalls  int
	deleteCalls int
	lastDeleted []string

	deleteErr error
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{entries: map[string]map[string]store.VectorEntry{}}
}

func (f *fakeIndex) Upsert(_ context.Context, namespace string, entries []store.VectorEntry) error {
	f.upsertCalls++
	ns, ok := f.entries[namespace]
	if !ok {
		ns = map[string]store.VectorEntry{}
		f.entries[namespace] = ns
	}
	for _, entry := range entries {
		ns[entry.ID] = entry
	}
	return nil
}

func (f *fakeIndex) Query(_ context.Context, namespace string, vector []float32, k int, filter map[string]any) ([]store.Match, error) {
	f.queryCalls++

	var matches []store.Match
	for _, entry := range f.entries[namespace] {
		if !metadataMatches(entry.Metadata, filter) {
			continue
		}
		matches = append(matches, store.Match{
			ID:       entry.ID,
			Score:    cosine(vector, entry.Vector),
			Metadata: entry.Metadata,
		})
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (f *fakeIndex) Delete(_ context.Context, namespace string, ids []string) error {
	f.deleteCalls++
	f.lastDeleted = append([]string(nil), ids...)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	for _, id := range ids {
		delete(f.entries[namespace], id)
	}
	return nil
}

func (f *fakeIndex) Close() error { return nil }

func (f *fakeIndex) has(namespace, id string) bool {
	_, ok := f.entries[namespace][id]
	return ok
}

func metadataMatches(metadata, filter map[string]any) bool {
	for key, want := range filter {
		if metadata[key] != want {
			return false
		}
	}
	return true
}

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

// fakeDocs is an in-memory document store preserving insertion order per
// namespace.
type fakeDocs struct {
	namespaces map[string][]*store.Document
	nextID     int
}

func newFakeDocs() *fakeDocs {
	return &fakeDocs{namespaces: map[string][]*store.Document{}}
}

func (f *fakeDocs) FindOne(_ context.Context, namespace string, query map[string]any) (*store.Document, error) {
	for _, doc := range f.namespaces[namespace] {
		if fieldsMatch(doc.Fields, query) {
			return doc, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeDocs) FindByID(_ context.Context, namespace, id string) (*store.Document, error) {
	for _, doc := range f.namespaces[namespace] {
		if doc.ID == id {
			return doc, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeDocs) Find(_ context.Context, namespace string, query map[string]any) ([]*store.Document, error) {
	var out []*store.Document
	for _, doc := range f.namespaces[namespace] {
		if fieldsMatch(doc.Fields, query) {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (f *fakeDocs) InsertOne(_ context.Context, namespace string, fields map[string]any) (string, error) {
	f.nextID++
	id := fmt.Sprintf("doc-%d", f.nextID)
	f.namespaces[namespace] = append(f.namespaces[namespace], &store.Document{ID: id, Fields: fields})
	return id, nil
}

func (f *fakeDocs) ReplaceByID(_ context.Context, namespace, id string, fields map[string]any) error {
	for _, doc := range f.namespaces[namespace] {
		if doc.ID == id {
			doc.Fields = fields
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeDocs) DeleteMany(_ context.Context, namespace string, query map[string]any) (int64, error) {
	var kept []*store.Document
	var removed int64
	for _, doc := range f.namespaces[namespace] {
		if fieldsMatch(doc.Fields, query) {
			removed++
			continue
		}
		kept = append(kept, doc)
	}
	f.namespaces[namespace] = kept
	return removed, nil
}

func (f *fakeDocs) Close() error { return nil }

func (f *fakeDocs) count(namespace string) int {
	return len(f.namespaces[namespace])
}

func fieldsMatch(fields, query map[string]any) bool {
	for key, want := range query {
		if fields[key] != want {
			return false
		}
	}
	return true
}

// fakeEmbedder maps exact strings to canned vectors and records what it was
// asked to embed.
type fakeEmbedder struct {
	vectors map[string][]float32
	calls   []string
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls = append(f.calls, text)
	if vec, ok := f.vectors[text]; ok {
		return vec, nil
	}
	return []float32{1, 0, 0}, nil
}

func (f *fakeEmbedder) Dimensions() int { return 3 }
