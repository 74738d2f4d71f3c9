package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	ProviderOpenAI     = "openai"
	defaultOpenAIModel = "text-embedding-3-small"
)

type openAIEmbedder interface {
	New(ctx context.Context, body openai.EmbeddingNewParams, opts ...option.RequestOption) (*openai.CreateEmbeddingResponse, error)
}

// OpenAI embeds text through the OpenAI API or any compatible endpoint.
type OpenAI struct {
	client    openAIEmbedder
	model     string
	dimension int
}

func NewOpenAI(apiKey, baseURL, model string, dimension int) (*OpenAI, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("openai api key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	if model = strings.TrimSpace(model); model == "" {
		model = defaultOpenAIModel
	}

	client := openai.NewClient(opts...)

	return &OpenAI{client: &client.Embeddings, model: model, dimension: dimension}, nil
}

func (o *OpenAI) Name() string { return ProviderOpenAI }

func (o *OpenAI) Model() string { return withDimension(o.model, o.dimension) }

func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	if o == nil || o.client == nil {
		return nil, errors.New("openai backend is not initialized")
	}

	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: openai.EmbeddingModel(o.model),
	}
	if o.dimension > 0 {
		params.Dimensions = openai.Int(int64(o.dimension))
	}

	resp, err := o.client.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}

	if resp == nil || len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, ErrEmptyEmbedding
	}

	return toFloat32(resp.Data[0].Embedding), nil
}
