package api

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"

	"github.com/soaringjerry/Previsit/internal/archive"
	"github.com/soaringjerry/Previsit/internal/db"
	"github.com/soaringjerry/Previsit/internal/models"
	"github.com/soaringjerry/Previsit/internal/rag"
	"github.com/soaringjerry/Previsit/internal/services"
)

// indexAdapter exposes the sqlite index to the submission workflow.
type indexAdapter struct {
	idx *db.SQLiteIndex
}

func NewSubmissionIndex(idx *db.SQLiteIndex) services.SubmissionIndex {
	if idx == nil {
		return nil
	}
	return &indexAdapter{idx: idx}
}

func (a *indexAdapter) Record(ctx context.Context, sub *models.Submission, path string) error {
	return a.idx.Add(ctx, db.EntryFor(sub, path))
}

func (a *indexAdapter) Count(ctx context.Context) (int, error) {
	return a.idx.Count(ctx)
}

// archiveReaderAdapter answers clinician queries from the index and loads
// the full record from the archive file it points at.
type archiveReaderAdapter struct {
	idx     *db.SQLiteIndex
	archive *archive.Archive
}

func NewArchiveReader(idx *db.SQLiteIndex, arch *archive.Archive) services.ArchiveReader {
	if idx == nil || arch == nil {
		return nil
	}
	return &archiveReaderAdapter{idx: idx, archive: arch}
}

func (a *archiveReaderAdapter) ListSubmissions(ctx context.Context, limit, offset int) ([]models.SubmissionEntry, error) {
	return a.idx.List(ctx, limit, offset)
}

func (a *archiveReaderAdapter) LoadSubmission(ctx context.Context, id string) (*models.Submission, error) {
	e, err := a.idx.Get(ctx, id)
	if err != nil || e == nil {
		return nil, err
	}
	path := e.Path
	if !filepath.IsAbs(path) && filepath.Dir(path) == "." {
		path = filepath.Join(a.archive.Dir(), path)
	}
	return a.archive.Load(path)
}

// errIndexPending is returned while the document index is still loading.
var errIndexPending = errors.New("document index is not ready")

// DeferredRetriever turns vector search hits into passages. It answers with
// errIndexPending until an index is attached with Ready, so chat keeps
// working from the model alone while documents are embedded.
type DeferredRetriever struct {
	index atomic.Pointer[rag.Index]
}

func NewDeferredRetriever() *DeferredRetriever {
	return &DeferredRetriever{}
}

// Ready attaches the built index.
func (d *DeferredRetriever) Ready(index *rag.Index) {
	d.index.Store(index)
}

func (d *DeferredRetriever) Retrieve(ctx context.Context, query string, k int) ([]services.Passage, error) {
	index := d.index.Load()
	if index == nil {
		return nil, errIndexPending
	}
	hits, err := index.Search(ctx, query, k)
	if errors.Is(err, rag.ErrEmptyIndex) {
		return []services.Passage{}, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]services.Passage, 0, len(hits))
	for _, h := range hits {
		out = append(out, services.Passage{Text: h.Text, Source: h.Source})
	}
	return out, nil
}

var (
	_ services.SubmissionIndex   = (*indexAdapter)(nil)
	_ services.ArchiveReader     = (*archiveReaderAdapter)(nil)
	_ services.Retriever         = (*DeferredRetriever)(nil)
	_ services.SubmissionArchive = (*archive.Archive)(nil)
)
