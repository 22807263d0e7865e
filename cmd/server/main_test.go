package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/soaringjerry/Previsit/internal/api"
	"github.com/soaringjerry/Previsit/internal/rag"
)

type countEmbedder struct{}

func (countEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		out = append(out, []float32{float32(strings.Count(strings.ToLower(t), "fever")) + 1})
	}
	return out, nil
}

func TestLoadDocuments(t *testing.T) {
	ctx := context.Background()
	docs := t.TempDir()
	if err := os.WriteFile(filepath.Join(docs, "fever.txt"), []byte("Fever care at home."), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	opts := rag.Options{DocsDir: docs, IndexDir: filepath.Join(t.TempDir(), "index"), Model: "count"}

	retriever := api.NewDeferredRetriever()
	loadDocuments(ctx, countEmbedder{}, opts, retriever, zap.NewNop())
	passages, err := retriever.Retrieve(ctx, "fever", 1)
	if err != nil || len(passages) != 1 || passages[0].Source != "fever.txt" {
		t.Fatalf("Retrieve = %+v, %v", passages, err)
	}

	// a missing docs dir leaves the retriever pending instead of failing startup
	opts.DocsDir = filepath.Join(t.TempDir(), "missing")
	opts.IndexDir = filepath.Join(t.TempDir(), "index")
	pending := api.NewDeferredRetriever()
	loadDocuments(ctx, countEmbedder{}, opts, pending, zap.NewNop())
	if _, err := pending.Retrieve(ctx, "fever", 1); err == nil {
		t.Fatalf("expected retriever to stay pending")
	}
}
