package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

const (
	ProviderOllama     = "ollama"
	DefaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "nomic-embed-text"
)

type ollamaEmbedder interface {
	Embeddings(ctx context.Context, req *api.EmbeddingRequest) (*api.EmbeddingResponse, error)
}

// Ollama embeds text with a locally served model.
type Ollama struct {
	client ollamaEmbedder
	model  string
}

func NewOllama(rawURL, model string, httpClient *http.Client) (*Ollama, error) {
	if rawURL = strings.TrimSpace(rawURL); rawURL == "" {
		rawURL = DefaultOllamaURL
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama url %q: %w", rawURL, err)
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if model = strings.TrimSpace(model); model == "" {
		model = defaultOllamaModel
	}

	return &Ollama{client: api.NewClient(u, httpClient), model: model}, nil
}

func (o *Ollama) Name() string { return ProviderOllama }

func (o *Ollama) Model() string { return o.model }

func (o *Ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	if o == nil || o.client == nil {
		return nil, errors.New("ollama backend is not initialized")
	}

	resp, err := o.client.Embeddings(ctx, &api.EmbeddingRequest{Model: o.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("ollama embeddings: %w", err)
	}

	if resp == nil || len(resp.Embedding) == 0 {
		return nil, ErrEmptyEmbedding
	}

	return toFloat32(resp.Embedding), nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}
