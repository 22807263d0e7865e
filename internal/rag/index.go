package rag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// IndexFile is the name of the persisted vector index inside the index dir.
const IndexFile = "index.json"

const embedBatch = 64

// ErrEmptyIndex is returned when there is nothing to search.
var ErrEmptyIndex = errors.New("rag: index is empty")

// Embedder turns texts into vectors, one per input, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Result is one search hit.
type Result struct {
	Chunk
	Score float64 `json:"score"`
}

type indexFile struct {
	Model     string      `json:"model"`
	CreatedAt time.Time   `json:"created_at"`
	Chunks    []Chunk     `json:"chunks"`
	Vectors   [][]float32 `json:"vectors"`
}

// Index is an in-memory vector index over document chunks.
type Index struct {
	mu       sync.RWMutex
	embedder Embedder
	data     indexFile
	norms    []float64
}

func NewIndex(embedder Embedder) *Index {
	return &Index{embedder: embedder}
}

func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.data.Chunks)
}

// Build embeds chunks in batches and replaces the index contents.
func (x *Index) Build(ctx context.Context, model string, chunks []Chunk) error {
	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += embedBatch {
		end := start + embedBatch
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Text)
		}
		vecs, err := x.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed chunks %d-%d: %w", start, end, err)
		}
		if len(vecs) != len(texts) {
			return fmt.Errorf("embed chunks %d-%d: got %d vectors", start, end, len(vecs))
		}
		vectors = append(vectors, vecs...)
	}
	x.set(indexFile{Model: model, CreatedAt: time.Now().UTC(), Chunks: chunks, Vectors: vectors})
	return nil
}

func (x *Index) set(f indexFile) {
	norms := make([]float64, len(f.Vectors))
	for i, v := range f.Vectors {
		norms[i] = norm(v)
	}
	x.mu.Lock()
	x.data = f
	x.norms = norms
	x.mu.Unlock()
}

// Save writes the index to dir/index.json, replacing any previous file.
func (x *Index) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	x.mu.RLock()
	b, err := json.Marshal(x.data)
	x.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	tmp, err := os.CreateTemp(dir, IndexFile+".*.tmp")
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close index: %w", err)
	}
	return os.Rename(tmp.Name(), filepath.Join(dir, IndexFile))
}

// Load reads dir/index.json. It returns the file's embedding model.
func (x *Index) Load(dir string) (string, error) {
	b, err := os.ReadFile(filepath.Join(dir, IndexFile))
	if err != nil {
		return "", err
	}
	var f indexFile
	if err := json.Unmarshal(b, &f); err != nil {
		return "", fmt.Errorf("decode index: %w", err)
	}
	if len(f.Chunks) != len(f.Vectors) {
		return "", fmt.Errorf("index: %d chunks but %d vectors", len(f.Chunks), len(f.Vectors))
	}
	x.set(f)
	return f.Model, nil
}

// Search returns the k chunks most similar to query by cosine similarity.
func (x *Index) Search(ctx context.Context, query string, k int) ([]Result, error) {
	if x.Len() == 0 {
		return nil, ErrEmptyIndex
	}
	vecs, err := x.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors", len(vecs))
	}
	return x.nearest(vecs[0], k), nil
}

func (x *Index) nearest(q []float32, k int) []Result {
	qn := norm(q)
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]Result, 0, len(x.data.Chunks))
	for i, v := range x.data.Vectors {
		score := 0.0
		if qn > 0 && x.norms[i] > 0 && len(v) == len(q) {
			score = dot(q, v) / (qn * x.norms[i])
		}
		out = append(out, Result{Chunk: x.data.Chunks[i], Score: score})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func norm(v []float32) float64 { return math.Sqrt(dot(v, v)) }

// Options controls LoadOrBuild.
type Options struct {
	DocsDir      string
	IndexDir     string
	Model        string
	ChunkSize    int
	ChunkOverlap int
}

// LoadOrBuild loads the persisted index when it was built with the same
// embedding model, otherwise it reads DocsDir, embeds it and saves the result.
func LoadOrBuild(ctx context.Context, embedder Embedder, opts Options, log *zap.Logger) (*Index, error) {
	if log == nil {
		log = zap.NewNop()
	}
	idx := NewIndex(embedder)
	model, err := idx.Load(opts.IndexDir)
	switch {
	case err == nil && model == opts.Model:
		log.Info("rag index loaded", zap.String("dir", opts.IndexDir), zap.Int("chunks", idx.Len()))
		return idx, nil
	case err == nil:
		log.Info("rag index model changed, rebuilding", zap.String("was", model), zap.String("now", opts.Model))
	case !errors.Is(err, os.ErrNotExist):
		log.Warn("rag index unreadable, rebuilding", zap.Error(err))
	}

	docs, skipped, err := LoadDir(opts.DocsDir)
	if err != nil {
		return nil, err
	}
	for _, s := range skipped {
		log.Debug("rag: skipped unreadable or unsupported document", zap.String("source", s))
	}
	chunks := NewSplitter(opts.ChunkSize, opts.ChunkOverlap).SplitDocuments(docs)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no documents to index in %s", opts.DocsDir)
	}
	if err := idx.Build(ctx, opts.Model, chunks); err != nil {
		return nil, err
	}
	if err := idx.Save(opts.IndexDir); err != nil {
		return nil, err
	}
	log.Info("rag index built", zap.Int("documents", len(docs)), zap.Int("chunks", len(chunks)))
	return idx, nil
}
