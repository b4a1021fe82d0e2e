// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package openai

import (
	"context"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/mnemo-dev/mnemo/internal/embed"
	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
)

// defaultModel is the embedding model used when none is configured.
const defaultModel = openaisdk.EmbeddingModelTextEmbedding3Small

// defaultDimensions matches text-embedding-3-small output.
const defaultDimensions = 1536

func init() {
	embed.Register("openai", func(cfg embed.Config) (embed.Embedder, error) {
		return New(Config{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		})
	})
}

// Config holds OpenAI embedder configuration.
type Config struct {
	APIKey     string
	BaseURL    string // optional, useful for testing against a mock server
	Model      string
	Dimensions int
}

// Embedder implements embed.Embedder using the OpenAI Embeddings API.
type Embedder struct {
	client     openaisdk.Client
	model      openaisdk.EmbeddingModel
	dimensions int
}

// New creates a new OpenAI embedder. Returns an error if the API key is missing.
func New(cfg Config) (*Embedder, error) {
	if cfg.APIKey == "" {
		return nil, mnemoerr.New(mnemoerr.CodeEmbedRequestInvalid, "openai: missing api_key in config")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := defaultModel
	if cfg.Model != "" {
		model = openaisdk.EmbeddingModel(cfg.Model)
	}

	dims := defaultDimensions
	if cfg.Dimensions > 0 {
		dims = cfg.Dimensions
	}

	return &Embedder{
		client:     openaisdk.NewClient(opts...),
		model:      model,
		dimensions: dims,
	}, nil
}

// Embed generates the embedding vector for text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, mnemoerr.New(mnemoerr.CodeEmbedRequestInvalid, "openai: cannot embed empty text")
	}

	params := openaisdk.EmbeddingNewParams{
		Input: openaisdk.EmbeddingNewParamsInputUnion{OfString: openaisdk.String(text)},
		Model: e.model,
	}
	if e.dimensions != defaultDimensions {
		params.Dimensions = param.NewOpt(int64(e.dimensions))
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, mnemoerr.Wrapf(err, mnemoerr.CodeEmbedUpstreamFailure, "openai: embedding request failed")
	}
	if len(resp.Data) == 0 {
		return nil, mnemoerr.New(mnemoerr.CodeEmbedUpstreamFailure, "openai: embedding response contains no data")
	}

	raw := resp.Data[0].Embedding
	vector := make([]float32, len(raw))
	for i, v := range raw {
		vector[i] = float32(v)
	}
	return vector, nil
}

// Dimensions returns the configured vector dimensionality.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}
