// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package engine_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/mnemo-dev/mnemo/internal/engine"
	"github.com/mnemo-dev/mnemo/internal/store"
	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) (*engine.Engine, *fakeIndex, *fakeDocs) {
	t.Helper()
	idx := newFakeIndex()
	docs := newFakeDocs()
	return engine.New(idx, docs, nil, slog.Default()), idx, docs
}

func cutoff(v float64) *float64 { return &v }

func TestStoreValidation(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  engine.StoreRequest
	}{
		{"empty vector", engine.StoreRequest{OwningTable: "widgets", OwningID: "W1"}},
		{"missing owning table", engine.StoreRequest{Vector: []float32{1, 0, 0}, OwningID: "W1"}},
		{"neither owner given", engine.StoreRequest{Vector: []float32{1, 0, 0}, OwningTable: "widgets"}},
		{"both owners given", engine.StoreRequest{
			Vector: []float32{1, 0, 0}, OwningTable: "widgets",
			OwningID: "W1", OwningInfo: map[string]any{"name": "foo"},
		}},
		{"reserved table", engine.StoreRequest{
			Vector: []float32{1, 0, 0}, OwningTable: engine.RegistryNamespace, OwningID: "W1",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := eng.Store(ctx, tt.req)
			require.Error(t, err)
			assert.True(t, mnemoerr.HasCode(err, mnemoerr.CodeEngineStoreInvalidInput))
		})
	}
}

func TestStoreDedupIsIdempotent(t *testing.T) {
	eng, idx, docs := newTestEngine(t)
	ctx := context.Background()

	req := engine.StoreRequest{
		Vector:      []float32{0.1, 0.2, 0.3},
		OwningTable: "widgets",
		OwningInfo:  map[string]any{"name": "foo"},
	}

	first, err := eng.Store(ctx, req)
	require.NoError(t, err)
	second, err := eng.Store(ctx, req)
	require.NoError(t, err)

	// Two embedding records, one owning document.
	assert.NotEqual(t, first, second)
	assert.Equal(t, 1, docs.count("widgets"))
	assert.Equal(t, 2, docs.count(engine.RegistryNamespace))
	assert.Equal(t, 2, idx.upsertCalls)

	recA, err := eng.Registry().Get(ctx, first)
	require.NoError(t, err)
	recB, err := eng.Registry().Get(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, recA.OwningID, recB.OwningID)
}

func TestStoreIndexNamespaceDefaultsToOwningTable(t *testing.T) {
	eng, idx, _ := newTestEngine(t)
	ctx := context.Background()

	id, err := eng.Store(ctx, engine.StoreRequest{
		Vector:      []float32{1, 0, 0},
		OwningTable: "widgets",
		OwningInfo:  map[string]any{"name": "foo"},
	})
	require.NoError(t, err)
	assert.True(t, idx.has("widgets", id))

	id2, err := eng.Store(ctx, engine.StoreRequest{
		Vector:         []float32{0, 1, 0},
		OwningTable:    "widgets",
		IndexNamespace: "scratch",
		OwningInfo:     map[string]any{"name": "bar"},
	})
	require.NoError(t, err)
	assert.True(t, idx.has("scratch", id2))
	assert.False(t, idx.has("widgets", id2))
}

func TestSearchEmptyVectorTouchesNoBackend(t *testing.T) {
	eng, idx, _ := newTestEngine(t)

	_, err := eng.Search(context.Background(), engine.SearchRequest{IndexNamespace: "widgets"})
	require.Error(t, err)
	assert.True(t, mnemoerr.HasCode(err, mnemoerr.CodeEngineSearchInvalidQuery))
	assert.Zero(t, idx.queryCalls)
	assert.Zero(t, idx.deleteCalls)
}

func TestStoreThenSearchRoundTrip(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()

	vec := []float32{0.1, 0.2, 0.3}
	_, err := eng.Store(ctx, engine.StoreRequest{
		Vector:      vec,
		OwningTable: "widgets",
		OwningInfo:  map[string]any{"name": "foo"},
	})
	require.NoError(t, err)

	results, err := eng.Search(ctx, engine.SearchRequest{
		Vector:         vec,
		IndexNamespace: "widgets",
		Cutoff:         cutoff(0),
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "foo", results[0].Fields["name"])
}

func TestSearchRankOrder(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()

	vectors := map[string][]float32{
		"exact":   {1, 0, 0},
		"close":   {0.9, 0.1, 0},
		"farther": {0.5, 0.5, 0.5},
	}
	for name, vec := range vectors {
		_, err := eng.Store(ctx, engine.StoreRequest{
			Vector:      vec,
			OwningTable: "widgets",
			OwningInfo:  map[string]any{"name": name},
		})
		require.NoError(t, err)
	}

	results, err := eng.Search(ctx, engine.SearchRequest{
		Vector:         []float32{1, 0, 0},
		IndexNamespace: "widgets",
		Cutoff:         cutoff(0),
	})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "exact", results[0].Fields["name"])
	assert.Equal(t, "close", results[1].Fields["name"])
	assert.Equal(t, "farther", results[2].Fields["name"])
}

func TestSearchCutoffMonotonicity(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()

	vectors := [][]float32{
		{1, 0, 0},
		{0.8, 0.6, 0},
		{0.2, 0.9, 0.4},
		{0, 0, 1},
	}
	for i, vec := range vectors {
		_, err := eng.Store(ctx, engine.StoreRequest{
			Vector:      vec,
			OwningTable: "widgets",
			OwningInfo:  map[string]any{"n": i},
		})
		require.NoError(t, err)
	}

	prev := len(vectors) + 1
	for _, c := range []float64{0, 0.3, 0.6, 0.9, 1} {
		results, err := eng.Search(ctx, engine.SearchRequest{
			Vector:         []float32{1, 0, 0},
			IndexNamespace: "widgets",
			Cutoff:         cutoff(c),
		})
		require.NoError(t, err)
		assert.LessOrEqual(t, len(results), prev, "cutoff %v", c)
		prev = len(results)
	}
}

func TestSearchFilterPassesThrough(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()

	for _, kind := range []string{"gear", "lever"} {
		_, err := eng.Store(ctx, engine.StoreRequest{
			Vector:      []float32{1, 0, 0},
			OwningTable: "widgets",
			OwningInfo:  map[string]any{"name": kind},
			Metadata:    map[string]any{"kind": kind},
		})
		require.NoError(t, err)
	}

	results, err := eng.Search(ctx, engine.SearchRequest{
		Vector:         []float32{1, 0, 0},
		IndexNamespace: "widgets",
		Filter:         map[string]any{"kind": "gear"},
		Cutoff:         cutoff(0),
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "gear", results[0].Fields["name"])
}

func TestSearchRepairsLostRegistryEntry(t *testing.T) {
	eng, idx, _ := newTestEngine(t)
	ctx := context.Background()

	// An index entry with no registry record behind it.
	require.NoError(t, idx.Upsert(ctx, "widgets", []store.VectorEntry{
		{ID: "ghost", Vector: []float32{1, 0, 0}},
	}))

	results, err := eng.Search(ctx, engine.SearchRequest{
		Vector:         []float32{1, 0, 0},
		IndexNamespace: "widgets",
		Cutoff:         cutoff(0),
	})
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.False(t, idx.has("widgets", "ghost"))
	assert.Equal(t, []string{"ghost"}, idx.lastDeleted)
}

func TestSearchRepairsLostOwningDocument(t *testing.T) {
	eng, idx, docs := newTestEngine(t)
	ctx := context.Background()

	vec := []float32{0.1, 0.2, 0.3}
	embeddingID, err := eng.Store(ctx, engine.StoreRequest{
		Vector:      vec,
		OwningTable: "widgets",
		OwningInfo:  map[string]any{"name": "foo"},
	})
	require.NoError(t, err)

	// Delete the owning document out from under the index.
	removed, err := docs.DeleteMany(ctx, "widgets", map[string]any{"name": "foo"})
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	results, err := eng.Search(ctx, engine.SearchRequest{
		Vector:         vec,
		IndexNamespace: "widgets",
		Cutoff:         cutoff(0.4),
	})
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.False(t, idx.has("widgets", embeddingID))
}

func TestSearchToleratesScrubFailure(t *testing.T) {
	eng, idx, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, "widgets", []store.VectorEntry{
		{ID: "ghost", Vector: []float32{1, 0, 0}},
	}))
	_, err := eng.Store(ctx, engine.StoreRequest{
		Vector:      []float32{0.9, 0.1, 0},
		OwningTable: "widgets",
		OwningInfo:  map[string]any{"name": "foo"},
	})
	require.NoError(t, err)

	idx.deleteErr = errors.New("index unavailable")

	results, err := eng.Search(ctx, engine.SearchRequest{
		Vector:         []float32{1, 0, 0},
		IndexNamespace: "widgets",
		Cutoff:         cutoff(0),
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "foo", results[0].Fields["name"])
	// The ghost entry survives until a later search retries the delete.
	assert.True(t, idx.has("widgets", "ghost"))
}

func TestSearchLeavesSubCutoffDanglingAlone(t *testing.T) {
	eng, idx, _ := newTestEngine(t)
	ctx := context.Background()

	// Dangling, but nearly orthogonal to the query: it never clears the
	// cutoff, so cleanup must not touch it.
	require.NoError(t, idx.Upsert(ctx, "widgets", []store.VectorEntry{
		{ID: "ghost", Vector: []float32{0, 1, 0}},
	}))

	results, err := eng.Search(ctx, engine.SearchRequest{
		Vector:         []float32{1, 0.01, 0},
		IndexNamespace: "widgets",
		Cutoff:         cutoff(0.4),
	})
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, idx.deleteCalls)
	assert.True(t, idx.has("widgets", "ghost"))
}

func TestWidgetsScenario(t *testing.T) {
	eng, idx, docs := newTestEngine(t)
	ctx := context.Background()

	vec := []float32{0.1, 0.2, 0.3}
	embeddingID, err := eng.Store(ctx, engine.StoreRequest{
		Vector:      vec,
		OwningTable: "widgets",
		OwningInfo:  map[string]any{"name": "foo"},
	})
	require.NoError(t, err)

	rec, err := eng.Registry().Get(ctx, embeddingID)
	require.NoError(t, err)
	assert.Equal(t, "widgets", rec.OwningTable)
	assert.Equal(t, vec, rec.Vector)
	assert.True(t, idx.has("widgets", embeddingID))

	results, err := eng.Search(ctx, engine.SearchRequest{
		Vector:         vec,
		IndexNamespace: "widgets",
		K:              5,
		Cutoff:         cutoff(0.4),
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, rec.OwningID, results[0].ID)
	assert.Equal(t, "foo", results[0].Fields["name"])

	_, err = docs.DeleteMany(ctx, "widgets", map[string]any{"name": "foo"})
	require.NoError(t, err)

	results, err = eng.Search(ctx, engine.SearchRequest{
		Vector:         vec,
		IndexNamespace: "widgets",
		K:              5,
		Cutoff:         cutoff(0.4),
	})
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.False(t, idx.has("widgets", embeddingID))
}

func TestStoreTextNormalizesBeforeEmbedding(t *testing.T) {
	idx := newFakeIndex()
	docs := newFakeDocs()
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"what is a widget": {0.1, 0.2, 0.3},
	}}
	eng := engine.New(idx, docs, embedder, slog.Default())
	ctx := context.Background()

	id, err := eng.StoreText(ctx, "  What is a widget?  ", engine.StoreRequest{
		OwningTable: "widgets",
		OwningInfo:  map[string]any{"name": "foo"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"what is a widget"}, embedder.calls)

	rec, err := eng.Registry().Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, rec.Vector)
}

func TestSearchTextRoundTrip(t *testing.T) {
	idx := newFakeIndex()
	docs := newFakeDocs()
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"what is a widget": {0.1, 0.2, 0.3},
	}}
	eng := engine.New(idx, docs, embedder, slog.Default())
	ctx := context.Background()

	_, err := eng.StoreText(ctx, "What is a widget?", engine.StoreRequest{
		OwningTable: "widgets",
		OwningInfo:  map[string]any{"name": "foo"},
	})
	require.NoError(t, err)

	results, err := eng.SearchText(ctx, "what is a WIDGET", engine.SearchRequest{
		IndexNamespace: "widgets",
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "foo", results[0].Fields["name"])
}

func TestTextRequiresEmbedder(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	_, err := eng.StoreText(context.Background(), "hello", engine.StoreRequest{
		OwningTable: "widgets",
		OwningInfo:  map[string]any{"name": "foo"},
	})
	require.Error(t, err)
	assert.True(t, mnemoerr.IsInvalidInput(err))
}

func TestTextRejectsEmptyAfterNormalization(t *testing.T) {
	idx := newFakeIndex()
	docs := newFakeDocs()
	eng := engine.New(idx, docs, &fakeEmbedder{}, slog.Default())

	_, err := eng.SearchText(context.Background(), "   ?", engine.SearchRequest{IndexNamespace: "widgets"})
	require.Error(t, err)
	assert.True(t, mnemoerr.IsInvalidInput(err))
	assert.Zero(t, idx.queryCalls)
}
