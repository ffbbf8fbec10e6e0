package rag

import (
	"context"
	"database/sql"
	"errors"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// wordEmbedder hashes words into a small bag-of-words vector.
type wordEmbedder struct {
	calls int
	err   error
}

func (e *wordEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		v := make([]float64, 256)
		for _, w := range strings.Fields(strings.ToLower(t)) {
			h := fnv.New32a()
			_, _ = h.Write([]byte(strings.Trim(w, ".,?!")))
			v[h.Sum32()%256]++
		}
		out[i] = v
	}
	return out, nil
}

func newTestService(t *testing.T, e embedding.Embedder) (*Service, *VectorStore) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	vs := NewVectorStore(db)
	require.NoError(t, vs.Migrate(context.Background()))
	return NewService(e, vs, NewSplitter(200, 40)), vs
}

func TestSplitter_Overlap(t *testing.T) {
	s := NewSplitter(20, 5)
	got := s.Split("aaaa bbbb cccc dddd eeee ffff gggg")
	assert.Equal(t, []string{"aaaa bbbb cccc dddd", "dddd eeee ffff gggg"}, got)
}

func TestSplitter_RespectsChunkSize(t *testing.T) {
	s := NewSplitter(50, 10)
	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString("word")
		b.WriteString(" ")
		if i%10 == 9 {
			b.WriteString("\n\n")
		}
	}
	b.WriteString(strings.Repeat("x", 120))

	chunks := s.Split(b.String())
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 50, c)
		assert.NotEmpty(t, c)
	}
}

func TestSplitter_Edges(t *testing.T) {
	s := NewSplitter(1000, 200)
	assert.Empty(t, s.Split("   \n  "))
	assert.Equal(t, []string{"short text"}, s.Split("short text"))

	// invalid overlap is clamped below the chunk size
	s = NewSplitter(10, 50)
	assert.Equal(t, 2, s.overlap)
}

func TestEmbeddingEncoding(t *testing.T) {
	v := []float64{0.5, -1.25, 3}
	assert.Equal(t, v, decodeEmbedding(encodeEmbedding(v)))
	assert.Nil(t, decodeEmbedding([]byte{1, 2, 3}))
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float64{1, 2}, []float64{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float64{1, 0}, []float64{0, 1}), 1e-9)
	assert.Equal(t, 0.0, cosineSimilarity([]float64{1}, []float64{1, 2}))
	assert.Equal(t, 0.0, cosineSimilarity([]float64{0, 0}, []float64{1, 2}))
}

func TestService_AddAndSearch(t *testing.T) {
	ctx := context.Background()
	svc, vs := newTestService(t, &wordEmbedder{})

	n, err := svc.AddDocument(ctx, "mortgage.md", "A mortgage is a loan secured by real estate property.")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = svc.AddDocument(ctx, "apr.md", "APR means annual percentage rate and includes fees.")
	require.NoError(t, err)

	hits, err := svc.Search(ctx, "what does annual percentage rate mean", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Contains(t, hits[0], "APR")

	// re-adding a source replaces its chunks
	_, err = svc.AddDocument(ctx, "apr.md", "APR is the yearly cost of a loan.")
	require.NoError(t, err)
	count, err := vs.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	empty, err := svc.Search(ctx, "  ", 3)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestService_SearchEmbedError(t *testing.T) {
	svc, _ := newTestService(t, &wordEmbedder{err: errors.New("quota")})
	_, err := svc.Search(context.Background(), "apr", 3)
	assert.Error(t, err)
}

func TestService_IngestDirectory(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("Personal loans are unsecured."), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b.MD"), []byte("Auto loans are secured by the vehicle."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.pdf"), []byte("binary"), 0o644))

	svc, vs := newTestService(t, &wordEmbedder{})
	stats, err := svc.IngestDirectory(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Files)
	assert.Equal(t, 2, stats.Chunks)

	count, err := vs.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	_, err = svc.IngestDirectory(ctx, filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
