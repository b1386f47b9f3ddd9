package model

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIEmbedder produces embeddings through the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client    *openai.Client
	model     openai.EmbeddingModel
	dimension int
}

func NewOpenAIEmbedder(model string, dimension int, opts ...option.RequestOption) *OpenAIEmbedder {
	client := openai.NewClient(opts...)
	if model == "" {
		model = string(openai.EmbeddingModelTextEmbedding3Small)
	}
	return &OpenAIEmbedder{
		client:    &client,
		model:     openai.EmbeddingModel(model),
		dimension: dimension,
	}
}

func (e *OpenAIEmbedder) Dimension() int { return e.dimension }

func (e *OpenAIEmbedder) Signature() string {
	return fmt.Sprintf("openai/%s/%d", e.model, e.dimension)
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	items, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if items[0].Err != nil {
		return nil, items[0].Err
	}
	return items[0].Vector, nil
}

// EmbedBatch sends one embeddings request for the whole batch. Texts the
// truncation pass rejects are marked individually and excluded from the
// request, so one empty field never aborts a whole experience.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]BatchItem, error) {
	items := make([]BatchItem, len(texts))
	prepared := make([]string, 0, len(texts))
	positions := make([]int, 0, len(texts))
	for i, text := range texts {
		p, err := prepareText(text)
		if err != nil {
			items[i].Err = badInput("openai", err)
			continue
		}
		prepared = append(prepared, p)
		positions = append(positions, i)
	}
	if len(prepared) == 0 {
		return items, nil
	}

	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: prepared,
		},
		Model: e.model,
	})
	if err != nil {
		fault := backendDown("openai", err)
		for _, pos := range positions {
			items[pos].Err = fault
		}
		return items, nil
	}
	if len(resp.Data) != len(prepared) {
		fault := backendDown("openai", fmt.Errorf("got %d embeddings for %d inputs", len(resp.Data), len(prepared)))
		for _, pos := range positions {
			items[pos].Err = fault
		}
		return items, nil
	}

	for i, data := range resp.Data {
		vec := make([]float32, len(data.Embedding))
		for j, v := range data.Embedding {
			vec[j] = float32(v)
		}
		items[positions[i]].Vector = normalize(vec)
	}
	return items, nil
}
