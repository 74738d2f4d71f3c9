package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const (
	ProviderGemini     = "gemini"
	defaultGeminiModel = "text-embedding-004"
)

type contentEmbedder interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// Gemini embeds text through the Google GenAI API.
type Gemini struct {
	client    contentEmbedder
	model     string
	dimension int32
	taskType  string
}

// NewGemini creates a Gemini backend. A zero dimension keeps the model default.
func NewGemini(ctx context.Context, apiKey, model string, dimension int) (*Gemini, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	if model = strings.TrimSpace(model); model == "" {
		model = defaultGeminiModel
	}

	return &Gemini{
		client:    client.Models,
		model:     model,
		dimension: int32(dimension),
		taskType:  "SEMANTIC_SIMILARITY",
	}, nil
}

func (g *Gemini) Name() string { return ProviderGemini }

func (g *Gemini) Model() string {
	if g == nil {
		return ""
	}
	return withDimension(g.model, int(g.dimension))
}

func (g *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	if g == nil || g.client == nil {
		return nil, errors.New("gemini backend is not initialized")
	}

	cfg := &genai.EmbedContentConfig{TaskType: g.taskType}
	if g.dimension > 0 {
		dimension := g.dimension
		cfg.OutputDimensionality = &dimension
	}

	resp, err := g.client.EmbedContent(ctx, g.model, genai.Text(text), cfg)
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}

	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil || len(resp.Embeddings[0].Values) == 0 {
		return nil, ErrEmptyEmbedding
	}

	return clone(resp.Embeddings[0].Values), nil
}
