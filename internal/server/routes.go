// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/mnemo-dev/mnemo/internal/engine"
	"github.com/mnemo-dev/mnemo/internal/store"
	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
)

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Tags:        []string{"system"},
	}, s.handleHealth)

	huma.Register(s.api, huma.Operation{
		OperationID: "store-embedding",
		Method:      http.MethodPost,
		Path:        "/api/v1/store",
		Summary:     "Store an embedding",
		Description: "Stores a vector (or embeds the given text) and links it to its owning document.",
		Tags:        []string{"embeddings"},
	}, s.handleStore)

	huma.Register(s.api, huma.Operation{
		OperationID: "search-embeddings",
		Method:      http.MethodPost,
		Path:        "/api/v1/search",
		Summary:     "Search stored embeddings",
		Description: "Returns the owning documents of the nearest stored embeddings, best match first.",
		Tags:        []string{"embeddings"},
	}, s.handleSearch)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-embedding",
		Method:      http.MethodGet,
		Path:        "/api/v1/embeddings/{id}",
		Summary:     "Get an embedding record",
		Tags:        []string{"embeddings"},
	}, s.handleGetEmbedding)
}

type healthOutput struct {
	Body struct {
		Status string `json:"status" example:"ok" doc:"Health status"`
	}
}

func (s *Server) handleHealth(_ context.Context, _ *struct{}) (*healthOutput, error) {
	out := &healthOutput{}
	out.Body.Status = "ok"
	return out, nil
}

type storeInput struct {
	Body struct {
		Text           string         `json:"text,omitempty" doc:"Text to normalize and embed; mutually exclusive with vector"`
		Vector         []float32      `json:"vector,omitempty" doc:"Pre-computed embedding vector"`
		OwningTable    string         `json:"owning_table" doc:"Document namespace holding the owning record"`
		IndexNamespace string         `json:"index_namespace,omitempty" doc:"Vector index namespace; defaults to owning_table"`
		OwningID       string         `json:"owning_id,omitempty" doc:"Existing owning document id"`
		OwningInfo     map[string]any `json:"owning_info,omitempty" doc:"Partial document for find-or-create"`
		Metadata       map[string]any `json:"metadata,omitempty" doc:"Metadata attached to the vector index entry"`
	}
}

type storeOutput struct {
	Body struct {
		EmbeddingID string `json:"embedding_id" doc:"Generated embedding record id"`
	}
}

func (s *Server) handleStore(ctx context.Context, in *storeInput) (*storeOutput, error) {
	req := engine.StoreRequest{
		Vector:         in.Body.Vector,
		OwningTable:    in.Body.OwningTable,
		IndexNamespace: in.Body.IndexNamespace,
		OwningID:       in.Body.OwningID,
		OwningInfo:     in.Body.OwningInfo,
		Metadata:       in.Body.Metadata,
	}

	var (
		id  string
		err error
	)
	switch {
	case in.Body.Text != "" && len(in.Body.Vector) > 0:
		return nil, huma.NewError(http.StatusBadRequest, "text and vector are mutually exclusive")
	case in.Body.Text != "":
		id, err = s.engine.StoreText(ctx, in.Body.Text, req)
	default:
		id, err = s.engine.Store(ctx, req)
	}
	if err != nil {
		return nil, apiError(err)
	}

	out := &storeOutput{}
	out.Body.EmbeddingID = id
	return out, nil
}

type searchInput struct {
	Body struct {
		Text           string         `json:"text,omitempty" doc:"Text to normalize and embed; mutually exclusive with vector"`
		Vector         []float32      `json:"vector,omitempty" doc:"Query vector"`
		IndexNamespace string         `json:"index_namespace" doc:"Vector index namespace to search"`
		K              int            `json:"k,omitempty" doc:"Neighbor count, default 10"`
		Filter         map[string]any `json:"filter,omitempty" doc:"Metadata equality filter"`
		Cutoff         *float64       `json:"cutoff,omitempty" doc:"Similarity cutoff, default 0.4; matches must strictly exceed it"`
	}
}

type searchResult struct {
	ID     string         `json:"id" doc:"Owning document id"`
	Fields map[string]any `json:"fields" doc:"Owning document body"`
}

type searchOutput struct {
	Body struct {
		Results []searchResult `json:"results" doc:"Owning documents in rank order"`
	}
}

func (s *Server) handleSearch(ctx context.Context, in *searchInput) (*searchOutput, error) {
	req := engine.SearchRequest{
		Vector:         in.Body.Vector,
		IndexNamespace: in.Body.IndexNamespace,
		K:              in.Body.K,
		Filter:         in.Body.Filter,
		Cutoff:         in.Body.Cutoff,
	}

	var (
		docs []*store.Document
		err  error
	)
	switch {
	case in.Body.Text != "" && len(in.Body.Vector) > 0:
		return nil, huma.NewError(http.StatusBadRequest, "text and vector are mutually exclusive")
	case in.Body.Text != "":
		docs, err = s.engine.SearchText(ctx, in.Body.Text, req)
	default:
		docs, err = s.engine.Search(ctx, req)
	}
	if err != nil {
		return nil, apiError(err)
	}

	out := &searchOutput{}
	out.Body.Results = make([]searchResult, 0, len(docs))
	for _, doc := range docs {
		out.Body.Results = append(out.Body.Results, searchResult{ID: doc.ID, Fields: doc.Fields})
	}
	return out, nil
}

type getEmbeddingInput struct {
	ID string `path:"id" doc:"Embedding record id"`
}

type getEmbeddingOutput struct {
	Body struct {
		ID          string `json:"id"`
		OwningTable string `json:"owning_table"`
		OwningID    string `json:"owning_id"`
		Dimensions  int    `json:"dimensions" doc:"Stored vector dimensionality"`
	}
}

func (s *Server) handleGetEmbedding(ctx context.Context, in *getEmbeddingInput) (*getEmbeddingOutput, error) {
	rec, err := s.engine.Registry().Get(ctx, in.ID)
	if err != nil {
		return nil, apiError(err)
	}

	out := &getEmbeddingOutput{}
	out.Body.ID = rec.ID
	out.Body.OwningTable = rec.OwningTable
	out.Body.OwningID = rec.OwningID
	out.Body.Dimensions = len(rec.Vector)
	return out, nil
}

// apiError maps an engine error onto an HTTP status, preserving the message.
func apiError(err error) error {
	return huma.NewError(mnemoerr.HTTPStatus(err), err.Error())
}
