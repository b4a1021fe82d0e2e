// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package sqlite_test

import (
	"context"
	"testing"

	"github.com/mnemo-dev/mnemo/internal/store"
	"github.com/mnemo-dev/mnemo/internal/store/sqlite"
	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorIndex_UpsertAndQuery(t *testing.T) {
	ctx := context.Background()
	idx, err := sqlite.NewVectorIndex(testDBPath(t, "vectors"), 3) // 3-dimensional embeddings for testing
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	err = idx.Upsert(ctx, "widgets", []store.VectorEntry{
		{ID: "v1", Vector: []float32{1.0, 0.0, 0.0}, Metadata: map[string]any{"source": "test1"}},
		{ID: "v2", Vector: []float32{0.0, 1.0, 0.0}, Metadata: map[string]any{"source": "test2"}},
		{ID: "v3", Vector: []float32{0.9, 0.1, 0.0}, Metadata: map[string]any{"source": "test3"}},
	})
	require.NoError(t, err)

	matches, err := idx.Query(ctx, "widgets", []float32{1.0, 0.0, 0.0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "v1", matches[0].ID) // exact match first
	assert.InDelta(t, 1.0, matches[0].Score, 1e-6)
	assert.Greater(t, matches[0].Score, matches[1].Score)
	assert.Equal(t, "test1", matches[0].Metadata["source"])
}

func TestVectorIndex_NamespaceIsolation(t *testing.T) {
	ctx := context.Background()
	idx, err := sqlite.NewVectorIndex(testDBPath(t, "vectors-ns"), 3)
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	err = idx.Upsert(ctx, "widgets", []store.VectorEntry{{ID: "w1", Vector: []float32{1, 0, 0}}})
	require.NoError(t, err)
	err = idx.Upsert(ctx, "gadgets", []store.VectorEntry{{ID: "g1", Vector: []float32{1, 0, 0}}})
	require.NoError(t, err)

	matches, err := idx.Query(ctx, "widgets", []float32{1, 0, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "w1", matches[0].ID)
}

func TestVectorIndex_UpsertReplaces(t *testing.T) {
	ctx := context.Background()
	idx, err := sqlite.NewVectorIndex(testDBPath(t, "vectors-upsert"), 3)
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	err = idx.Upsert(ctx, "widgets", []store.VectorEntry{
		{ID: "v1", Vector: []float32{1, 0, 0}, Metadata: map[string]any{"version": float64(1)}},
	})
	require.NoError(t, err)

	err = idx.Upsert(ctx, "widgets", []store.VectorEntry{
		{ID: "v1", Vector: []float32{0, 1, 0}, Metadata: map[string]any{"version": float64(2)}},
	})
	require.NoError(t, err)

	matches, err := idx.Query(ctx, "widgets", []float32{0, 1, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "v1", matches[0].ID)
	assert.Equal(t, float64(2), matches[0].Metadata["version"])
}

func TestVectorIndex_QueryWithFilter(t *testing.T) {
	ctx := context.Background()
	idx, err := sqlite.NewVectorIndex(testDBPath(t, "vectors-filter"), 3)
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	err = idx.Upsert(ctx, "widgets", []store.VectorEntry{
		{ID: "v1", Vector: []float32{1, 0, 0}, Metadata: map[string]any{"tag": "a", "rank": float64(1)}},
		{ID: "v2", Vector: []float32{0.9, 0.1, 0}, Metadata: map[string]any{"tag": "b", "rank": float64(2)}},
	})
	require.NoError(t, err)

	matches, err := idx.Query(ctx, "widgets", []float32{1, 0, 0}, 10, map[string]any{"tag": "b"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "v2", matches[0].ID)

	// Numeric filter values match across int/float representations.
	matches, err = idx.Query(ctx, "widgets", []float32{1, 0, 0}, 10, map[string]any{"rank": 1})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "v1", matches[0].ID)
}

func TestVectorIndex_Delete(t *testing.T) {
	ctx := context.Background()
	idx, err := sqlite.NewVectorIndex(testDBPath(t, "vectors-delete"), 3)
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	err = idx.Upsert(ctx, "widgets", []store.VectorEntry{
		{ID: "v1", Vector: []float32{1, 0, 0}},
		{ID: "v2", Vector: []float32{0, 1, 0}},
		{ID: "v3", Vector: []float32{0, 0, 1}},
	})
	require.NoError(t, err)

	err = idx.Delete(ctx, "widgets", []string{"v1", "v3"})
	require.NoError(t, err)

	matches, err := idx.Query(ctx, "widgets", []float32{1, 0, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "v2", matches[0].ID)
}

func TestVectorIndex_DeleteEmpty(t *testing.T) {
	ctx := context.Background()
	idx, err := sqlite.NewVectorIndex(testDBPath(t, "vectors-del-empty"), 3)
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	require.NoError(t, idx.Delete(ctx, "widgets", nil))
	require.NoError(t, idx.Delete(ctx, "widgets", []string{}))
}

func TestVectorIndex_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	idx, err := sqlite.NewVectorIndex(testDBPath(t, "vectors-dims"), 3)
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	err = idx.Upsert(ctx, "widgets", []store.VectorEntry{{ID: "v1", Vector: []float32{1, 0}}})
	require.Error(t, err)
	assert.True(t, mnemoerr.HasCode(err, mnemoerr.CodeStoreVectorInvalid))

	_, err = idx.Query(ctx, "widgets", []float32{1, 0}, 5, nil)
	require.Error(t, err)
	assert.True(t, mnemoerr.HasCode(err, mnemoerr.CodeStoreVectorInvalid))
}

func TestVectorIndex_QueryEmptyIndex(t *testing.T) {
	ctx := context.Background()
	idx, err := sqlite.NewVectorIndex(testDBPath(t, "vectors-empty"), 3)
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	matches, err := idx.Query(ctx, "widgets", []float32{1, 0, 0}, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, matches)
}
