// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package engine

import (
	"context"
	"errors"

	"github.com/mnemo-dev/mnemo/internal/store"
	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
)

// RegistryNamespace is the reserved document namespace holding embedding
// records. Application data must not use it as an owning table.
const RegistryNamespace = "embeddings"

// Record joins a vector index entry to the document that owns it. Records are
// immutable once written: re-embedding means writing a new record, never
// updating one in place.
type Record struct {
	ID          string
	Vector      []float32
	OwningTable string
	OwningID    string
}

// Registry persists embedding records in the document store.
type Registry struct {
	docs store.DocumentStore
}

func NewRegistry(docs store.DocumentStore) *Registry {
	return &Registry{docs: docs}
}

// Put writes a new record and returns its generated id. The id doubles as the
// vector index entry id.
func (r *Registry) Put(ctx context.Context, rec Record) (string, error) {
	if len(rec.Vector) == 0 {
		return "", mnemoerr.New(mnemoerr.CodeRegistryRecordInvalid, "embedding record requires a vector")
	}
	if rec.OwningTable == "" || rec.OwningID == "" {
		return "", mnemoerr.New(mnemoerr.CodeRegistryRecordInvalid, "embedding record requires an owning table and id",
			mnemoerr.FieldTable(rec.OwningTable))
	}

	return r.docs.InsertOne(ctx, RegistryNamespace, map[string]any{
		"vector": rec.Vector,
		"table":  rec.OwningTable,
		"obj_id": rec.OwningID,
	})
}

// Get loads the record with the given id.
func (r *Registry) Get(ctx context.Context, id string) (*Record, error) {
	doc, err := r.docs.FindByID(ctx, RegistryNamespace, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, mnemoerr.Wrap(err, mnemoerr.CodeRegistryRecordNotFound, "embedding record not found",
				mnemoerr.FieldEmbeddingID(id))
		}
		return nil, err
	}

	return recordFromDocument(doc)
}

func recordFromDocument(doc *store.Document) (*Record, error) {
	table, _ := doc.Fields["table"].(string)
	owningID, _ := doc.Fields["obj_id"].(string)
	vector, err := decodeVector(doc.Fields["vector"])
	if err != nil || table == "" || owningID == "" {
		return nil, mnemoerr.New(mnemoerr.CodeRegistryRecordInvalid, "embedding record is malformed",
			mnemoerr.FieldEmbeddingID(doc.ID))
	}

	return &Record{
		ID:          doc.ID,
		Vector:      vector,
		OwningTable: table,
		OwningID:    owningID,
	}, nil
}

// decodeVector accepts both the native slice written by Put and the []any of
// float64 it becomes after a JSON round trip through the document store.
func decodeVector(raw any) ([]float32, error) {
	switch v := raw.(type) {
	case []float32:
		return v, nil
	case []float64:
		out := make([]float32, len(v))
		for i, f := range v {
			out[i] = float32(f)
		}
		return out, nil
	case []any:
		out := make([]float32, len(v))
		for i, elem := range v {
			f, ok := elem.(float64)
			if !ok {
				return nil, errors.New("vector element is not numeric")
			}
			out[i] = float32(f)
		}
		return out, nil
	default:
		return nil, errors.New("vector field is not a slice")
	}
}
