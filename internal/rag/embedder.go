package rag

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/embedding"
	"google.golang.org/genai"

	errx "github.com/Chative-core-poc-v1/loanadvisor/internal/core/error"
	logx "github.com/Chative-core-poc-v1/loanadvisor/pkg/logger"
)

// Gemini accepts at most 100 contents per embed request.
const maxEmbedBatch = 100

// GeminiEmbedder implements embedding.Embedder on the Gemini embed API.
type GeminiEmbedder struct {
	client *genai.Client
	model  string
}

func NewGeminiEmbedder(client *genai.Client, model string) (*GeminiEmbedder, error) {
	if client == nil {
		return nil, fmt.Errorf("embedder: genai client is nil")
	}
	if model == "" {
		return nil, fmt.Errorf("embedder: model is empty")
	}
	return &GeminiEmbedder{client: client, model: model}, nil
}

func (e *GeminiEmbedder) EmbedStrings(ctx context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	out := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += maxEmbedBatch {
		end := min(start+maxEmbedBatch, len(texts))

		contents := make([]*genai.Content, 0, end-start)
		for _, t := range texts[start:end] {
			contents = append(contents, genai.NewContentFromText(t, genai.RoleUser))
		}

		resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, nil)
		if err != nil {
			logx.Error().Err(err).Str("model", e.model).Int("batch", len(contents)).Msg("Embedding request failed")
			return nil, errx.WrapModel(err)
		}
		if resp == nil || len(resp.Embeddings) != len(contents) {
			return nil, fmt.Errorf("embedder: expected %d embeddings", len(contents))
		}
		for _, emb := range resp.Embeddings {
			vec := make([]float64, len(emb.Values))
			for i, v := range emb.Values {
				vec[i] = float64(v)
			}
			out = append(out, vec)
		}
	}
	return out, nil
}

var _ embedding.Embedder = (*GeminiEmbedder)(nil)
