// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package google

import (
	"context"

	"google.golang.org/genai"

	"github.com/mnemo-dev/mnemo/internal/embed"
	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
)

// defaultModel is the embedding model used when none is configured.
const defaultModel = "gemini-embedding-001"

// defaultDimensions truncates gemini-embedding-001 output to match the
// default index dimensionality.
const defaultDimensions = 1536

func init() {
	embed.Register("google", func(cfg embed.Config) (embed.Embedder, error) {
		return New(Config{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		})
	})
}

// Config holds Google embedder configuration.
type Config struct {
	APIKey     string
	Model      string
	Dimensions int
}

// Embedder implements embed.Embedder using the Google Gemini API.
type Embedder struct {
	client     *genai.Client
	model      string
	dimensions int
}

// New creates a new Google embedder. Returns an error if the API key is missing.
func New(cfg Config) (*Embedder, error) {
	if cfg.APIKey == "" {
		return nil, mnemoerr.New(mnemoerr.CodeEmbedRequestInvalid, "google: missing api_key in config",
			mnemoerr.FieldProvider("google"))
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, mnemoerr.Wrapf(err, mnemoerr.CodeEmbedUpstreamFailure, "google: creating client")
	}

	model := defaultModel
	if cfg.Model != "" {
		model = cfg.Model
	}

	dims := defaultDimensions
	if cfg.Dimensions > 0 {
		dims = cfg.Dimensions
	}

	return &Embedder{
		client:     client,
		model:      model,
		dimensions: dims,
	}, nil
}

// Embed generates the embedding vector for text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, mnemoerr.New(mnemoerr.CodeEmbedRequestInvalid, "google: cannot embed empty text")
	}

	dims := int32(e.dimensions)
	resp, err := e.client.Models.EmbedContent(ctx, e.model, genai.Text(text), &genai.EmbedContentConfig{
		OutputDimensionality: &dims,
	})
	if err != nil {
		return nil, mnemoerr.Wrapf(err, mnemoerr.CodeEmbedUpstreamFailure, "google: embedding request failed")
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, mnemoerr.New(mnemoerr.CodeEmbedUpstreamFailure, "google: embedding response contains no data")
	}

	return resp.Embeddings[0].Values, nil
}

// Dimensions returns the configured vector dimensionality.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}
