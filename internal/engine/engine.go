// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

// Package engine implements semantic storage and retrieval over two
// independently-failing backends: a vector index and a document store. The
// two are never assumed jointly consistent; the search path discovers and
// repairs drift lazily.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/mnemo-dev/mnemo/internal/embed"
	"github.com/mnemo-dev/mnemo/internal/store"
	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
)

const (
	// DefaultK is the neighbor count when a search does not specify one.
	DefaultK = 10

	// DefaultCutoff is the similarity score a match must strictly exceed to
	// be returned.
	DefaultCutoff = 0.4
)

// Engine is the storage and retrieval front door. Safe for concurrent use;
// it holds no mutable state beyond the backend handles.
type Engine struct {
	index    store.VectorIndex
	docs     store.DocumentStore
	registry *Registry
	embedder embed.Embedder
	logger   *slog.Logger
}

// New wires an engine over the given backends. The embedder may be nil when
// callers only ever pass pre-computed vectors. A nil logger falls back to
// slog.Default().
func New(index store.VectorIndex, docs store.DocumentStore, embedder embed.Embedder, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		index:    index,
		docs:     docs,
		registry: NewRegistry(docs),
		embedder: embedder,
		logger:   logger,
	}
}

// Registry exposes the embedding record registry backing this engine.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// StoreRequest describes one embedding to persist.
//
// Exactly one of OwningID and OwningInfo must be set. OwningID references an
// existing document directly; OwningInfo is a partial document used for
// find-or-create: if a document in OwningTable matches all its fields the
// existing id is reused, otherwise a new document is inserted.
type StoreRequest struct {
	Vector      []float32
	OwningTable string

	// IndexNamespace scopes the vector index entry. Defaults to OwningTable.
	IndexNamespace string

	OwningID   string
	OwningInfo map[string]any

	// Metadata is attached to the vector index entry and is visible to
	// search filters.
	Metadata map[string]any
}

// Store resolves the owning document, writes the embedding record, and
// upserts the vector under the index namespace. Returns the embedding id.
//
// The record write and the index upsert are two separate calls with no
// atomicity between them. A failed upsert leaves a record with no vector,
// which is unreachable by search and therefore harmless.
func (e *Engine) Store(ctx context.Context, req StoreRequest) (string, error) {
	if len(req.Vector) == 0 {
		return "", mnemoerr.New(mnemoerr.CodeEngineStoreInvalidInput, "store requires a non-empty vector")
	}
	if req.OwningTable == "" {
		return "", mnemoerr.New(mnemoerr.CodeEngineStoreInvalidInput, "store requires an owning table")
	}
	if req.OwningTable == RegistryNamespace {
		return "", mnemoerr.New(mnemoerr.CodeEngineStoreInvalidInput, "owning table name is reserved",
			mnemoerr.FieldTable(req.OwningTable))
	}
	if (req.OwningID == "") == (req.OwningInfo == nil) {
		return "", mnemoerr.New(mnemoerr.CodeEngineStoreInvalidInput,
			"store requires exactly one of owning_id and owning_info",
			mnemoerr.FieldTable(req.OwningTable))
	}

	owningID := req.OwningID
	if owningID == "" {
		id, err := e.resolveOwner(ctx, req.OwningTable, req.OwningInfo)
		if err != nil {
			return "", err
		}
		owningID = id
	}

	embeddingID, err := e.registry.Put(ctx, Record{
		Vector:      req.Vector,
		OwningTable: req.OwningTable,
		OwningID:    owningID,
	})
	if err != nil {
		return "", err
	}

	namespace := req.IndexNamespace
	if namespace == "" {
		namespace = req.OwningTable
	}

	entry := store.VectorEntry{ID: embeddingID, Vector: req.Vector, Metadata: req.Metadata}
	if err := e.index.Upsert(ctx, namespace, []store.VectorEntry{entry}); err != nil {
		return "", err
	}

	return embeddingID, nil
}

// resolveOwner finds a document matching info, inserting one when nothing
// matches. Two concurrent calls with identical info may both insert; that
// duplication is accepted rather than locked against.
func (e *Engine) resolveOwner(ctx context.Context, table string, info map[string]any) (string, error) {
	doc, err := e.docs.FindOne(ctx, table, info)
	if err == nil {
		return doc.ID, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return "", err
	}

	return e.docs.InsertOne(ctx, table, info)
}

// SearchRequest describes one similarity query.
type SearchRequest struct {
	Vector         []float32
	IndexNamespace string

	// K is the neighbor count to retrieve. Defaults to DefaultK.
	K int

	// Filter restricts candidates by metadata field equality. Passed to the
	// index verbatim.
	Filter map[string]any

	// Cutoff is the score a match must strictly exceed. nil means
	// DefaultCutoff; an explicit zero disables the cutoff for all
	// positive-scored matches.
	Cutoff *float64
}

// Search returns the owning documents of the nearest stored embeddings, best
// match first.
//
// Matches at or below the cutoff are discarded before any resolution: a low
// score is not evidence of drift, so dangling entries below the cutoff are
// left alone. Surviving matches resolve through the registry to their owning
// documents; ids whose record or document has disappeared are scrubbed from
// the index best-effort and silently dropped from the results. The returned
// list may be shorter than k, or empty.
func (e *Engine) Search(ctx context.Context, req SearchRequest) ([]*store.Document, error) {
	if len(req.Vector) == 0 {
		return nil, mnemoerr.New(mnemoerr.CodeEngineSearchInvalidQuery, "search requires a non-empty query vector")
	}

	k := req.K
	if k <= 0 {
		k = DefaultK
	}
	cutoff := DefaultCutoff
	if req.Cutoff != nil {
		cutoff = *req.Cutoff
	}

	matches, err := e.index.Query(ctx, req.IndexNamespace, req.Vector, k, req.Filter)
	if err != nil {
		return nil, err
	}

	var (
		results []*store.Document
		lost    []string
	)
	for _, match := range matches {
		if match.Score <= cutoff {
			continue
		}

		rec, err := e.registry.Get(ctx, match.ID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				lost = append(lost, match.ID)
				continue
			}
			return nil, err
		}

		doc, err := e.docs.FindByID(ctx, rec.OwningTable, rec.OwningID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				lost = append(lost, match.ID)
				continue
			}
			return nil, err
		}

		results = append(results, doc)
	}

	if len(lost) > 0 {
		e.scrub(ctx, req.IndexNamespace, lost)
	}

	return results, nil
}

// scrub removes dangling index entries. Best-effort: a failed delete only
// means the same entries will be rediscovered by a later search.
func (e *Engine) scrub(ctx context.Context, namespace string, ids []string) {
	e.logger.Warn("removing dangling vector entries",
		"namespace", namespace,
		"count", len(ids))

	if err := e.index.Delete(ctx, namespace, ids); err != nil {
		e.logger.Warn("dangling vector cleanup failed, will retry on a future search",
			"namespace", namespace,
			"count", len(ids),
			"error", err)
	}
}

// StoreText normalizes and embeds text, then stores the resulting vector.
// Any Vector already present on req is replaced.
func (e *Engine) StoreText(ctx context.Context, text string, req StoreRequest) (string, error) {
	vector, err := e.embedText(ctx, text)
	if err != nil {
		return "", err
	}

	req.Vector = vector
	return e.Store(ctx, req)
}

// SearchText normalizes and embeds text, then searches with the resulting
// vector. Any Vector already present on req is replaced.
func (e *Engine) SearchText(ctx context.Context, text string, req SearchRequest) ([]*store.Document, error) {
	vector, err := e.embedText(ctx, text)
	if err != nil {
		return nil, err
	}

	req.Vector = vector
	return e.Search(ctx, req)
}

func (e *Engine) embedText(ctx context.Context, text string) ([]float32, error) {
	if e.embedder == nil {
		return nil, mnemoerr.New(mnemoerr.CodeEngineStoreInvalidInput, "no embedding provider configured")
	}

	normalized := embed.Normalize(text)
	if strings.TrimSpace(normalized) == "" {
		return nil, mnemoerr.New(mnemoerr.CodeEngineStoreInvalidInput, "text is empty after normalization")
	}

	return e.embedder.Embed(ctx, normalized)
}
