package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type EmbeddingConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dimension  int
	MaxRetries int
}

type embedFunc func(ctx context.Context, body openai.EmbeddingNewParams, opts ...option.RequestOption) (*openai.CreateEmbeddingResponse, error)

// EmbeddingClient calls an OpenAI-compatible /embeddings endpoint. A non-zero
// Dimension makes every returned vector length checked against it.
type EmbeddingClient struct {
	create    embedFunc
	model     string
	dimension int
}

func NewEmbeddingClient(cfg EmbeddingConfig) *EmbeddingClient {
	client := openai.NewClient(clientOptions(cfg.BaseURL, cfg.APIKey, cfg.MaxRetries)...)
	return &EmbeddingClient{
		create:    client.Embeddings.New,
		model:     cfg.Model,
		dimension: cfg.Dimension,
	}
}

// Model is the identifier stored with every document indexed by this client.
func (c *EmbeddingClient) Model() string {
	return c.model
}

func (c *EmbeddingClient) Dimension() int {
	return c.dimension
}

func (c *EmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch returns one vector per input, in input order.
func (c *EmbeddingClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	inputs := make([]string, len(texts))
	for i, t := range texts {
		inputs[i] = strings.TrimSpace(t)
		if inputs[i] == "" {
			return nil, fmt.Errorf("embedding input %d is empty", i)
		}
	}

	resp, err := c.create(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(c.model),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: inputs},
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(resp.Data) != len(inputs) {
		return nil, fmt.Errorf("embedding response has %d vectors for %d inputs", len(resp.Data), len(inputs))
	}

	out := make([][]float32, len(inputs))
	for _, d := range resp.Data {
		idx := int(d.Index)
		if idx < 0 || idx >= len(out) || out[idx] != nil {
			return nil, fmt.Errorf("embedding response has invalid index %d", d.Index)
		}
		if len(d.Embedding) == 0 {
			return nil, errors.New("empty embedding in response")
		}
		if c.dimension > 0 && len(d.Embedding) != c.dimension {
			return nil, fmt.Errorf("embedding dimension %d, expected %d", len(d.Embedding), c.dimension)
		}
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		out[idx] = vec
	}
	return out, nil
}
