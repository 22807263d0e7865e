package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/soaringjerry/Previsit/internal/archive"
	dbstore "github.com/soaringjerry/Previsit/internal/db"
)

// indexExists reports whether the sqlite file is already on disk.
func indexExists(sqlitePath string) (bool, error) {
	if _, err := os.Stat(sqlitePath); err == nil {
		return true, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("check sqlite file: %w", err)
	}
	return false, nil
}

// ReindexIfNeeded copies every archived submission into a freshly created
// index. It does nothing when the index already existed before this start.
// Unreadable archive files are logged and skipped.
func ReindexIfNeeded(ctx context.Context, existed bool, arch *archive.Archive, idx *dbstore.SQLiteIndex, log *zap.Logger) (int, error) {
	if existed {
		return 0, nil
	}
	paths, err := arch.List()
	if err != nil {
		return 0, fmt.Errorf("list archive: %w", err)
	}
	if len(paths) == 0 {
		return 0, nil
	}
	log.Info("first run detected, indexing existing submissions", zap.Int("files", len(paths)), zap.String("dir", arch.Dir()))

	indexed := 0
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return indexed, err
		}
		sub, err := arch.Load(p)
		if err != nil {
			log.Warn("skipping unreadable submission", zap.String("path", p), zap.Error(err))
			continue
		}
		if err := idx.Add(ctx, dbstore.EntryFor(sub, p)); err != nil {
			return indexed, fmt.Errorf("index %s: %w", p, err)
		}
		indexed++
	}
	log.Info("submission index rebuilt", zap.Int("indexed", indexed))
	return indexed, nil
}
