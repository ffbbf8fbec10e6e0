// Package rag is the loan knowledge base: documents are split, embedded and
// searched by cosine similarity.
package rag

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/google/uuid"

	"github.com/Chative-core-poc-v1/loanadvisor/internal/agent/model"
	logx "github.com/Chative-core-poc-v1/loanadvisor/pkg/logger"
)

var documentExts = map[string]bool{".txt": true, ".md": true}

// Service implements model.Retriever over a VectorStore.
type Service struct {
	embedder embedding.Embedder
	store    *VectorStore
	splitter *Splitter
}

func NewService(embedder embedding.Embedder, store *VectorStore, splitter *Splitter) *Service {
	if splitter == nil {
		splitter = NewSplitter(DefaultChunkSize, DefaultChunkOverlap)
	}
	return &Service{embedder: embedder, store: store, splitter: splitter}
}

// Search returns the content of the k most similar chunks.
func (s *Service) Search(ctx context.Context, query string, k int) ([]string, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	vecs, err := s.embedder.EmbedStrings(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed query: expected 1 vector, got %d", len(vecs))
	}
	hits, err := s.store.Search(ctx, vecs[0], k)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.Content)
	}
	return out, nil
}

// AddDocument replaces the chunks of source with those of text and returns
// how many were stored.
func (s *Service) AddDocument(ctx context.Context, source, text string) (int, error) {
	pieces := s.splitter.Split(text)
	if len(pieces) == 0 {
		return 0, nil
	}
	vecs, err := s.embedder.EmbedStrings(ctx, pieces)
	if err != nil {
		return 0, fmt.Errorf("embed %s: %w", source, err)
	}
	if len(vecs) != len(pieces) {
		return 0, fmt.Errorf("embed %s: expected %d vectors, got %d", source, len(pieces), len(vecs))
	}

	chunks := make([]Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = Chunk{ID: uuid.NewString(), Source: source, Content: p, Embedding: vecs[i]}
	}
	if _, err := s.store.DeleteSource(ctx, source); err != nil {
		return 0, err
	}
	if err := s.store.Add(ctx, chunks); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

// IngestStats summarizes a directory ingest.
type IngestStats struct {
	Files  int
	Chunks int
}

// IngestDirectory adds every .txt and .md file below dir.
func (s *Service) IngestDirectory(ctx context.Context, dir string) (IngestStats, error) {
	var stats IngestStats
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !documentExts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = path
		}
		n, err := s.AddDocument(ctx, filepath.ToSlash(rel), string(data))
		if err != nil {
			return err
		}
		logx.Info().Str("source", rel).Int("chunks", n).Msg("Document ingested")
		stats.Files++
		stats.Chunks += n
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("ingest %s: %w", dir, err)
	}
	return stats, nil
}

var _ model.Retriever = (*Service)(nil)
