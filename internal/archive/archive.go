// Package archive stores submissions as one indented JSON file each.
// Files are append-only: an existing file is never overwritten.
package archive

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/soaringjerry/Previsit/internal/models"
)

const (
	filePrefix = "resp_"
	fileExt    = ".json"
	stampFmt   = "20060102_150405"
	maxAttempt = 8
)

type Archive struct {
	dir   string
	token func() string
}

func New(dir string) *Archive {
	return &Archive{dir: dir, token: defaultToken}
}

func defaultToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func (a *Archive) Dir() string { return a.dir }

// Persist writes sub under the archive directory, creating it if needed, and
// returns the file path. The name is derived from SubmittedAt at second
// granularity; a second submission in the same second gets a random suffix.
func (a *Archive) Persist(sub *models.Submission) (string, error) {
	if sub == nil {
		return "", errors.New("archive: nil submission")
	}
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return "", fmt.Errorf("create response dir: %w", err)
	}
	if sub.Responses == nil {
		sub.Responses = []models.ResponseRecord{}
	}
	data, err := Encode(sub)
	if err != nil {
		return "", fmt.Errorf("encode submission: %w", err)
	}

	base := filePrefix + sub.SubmittedAt.Format(stampFmt)
	name := base + fileExt
	for attempt := 0; attempt < maxAttempt; attempt++ {
		path := filepath.Join(a.dir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			name = base + "_" + a.token() + fileExt
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create response file: %w", err)
		}
		if _, err := f.Write(data); err != nil {
			_ = f.Close()
			_ = os.Remove(path)
			return "", fmt.Errorf("write response file: %w", err)
		}
		if err := f.Close(); err != nil {
			_ = os.Remove(path)
			return "", fmt.Errorf("close response file: %w", err)
		}
		return path, nil
	}
	return "", fmt.Errorf("create response file: no free name for %s", base)
}

// Encode renders a submission as indented JSON with non-ASCII and HTML
// characters kept verbatim.
func Encode(sub *models.Submission) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(sub); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Load reads one archived submission.
func (a *Archive) Load(path string) (*models.Submission, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read response file: %w", err)
	}
	var sub models.Submission
	if err := json.Unmarshal(b, &sub); err != nil {
		return nil, fmt.Errorf("decode response file %s: %w", filepath.Base(path), err)
	}
	return &sub, nil
}

// List returns archived file paths sorted by name (and so by time).
// A missing directory is an empty archive.
func (a *Archive) List() ([]string, error) {
	entries, err := os.ReadDir(a.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read response dir: %w", err)
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), filePrefix) || filepath.Ext(e.Name()) != fileExt {
			continue
		}
		out = append(out, filepath.Join(a.dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// Count returns the number of archived submissions.
func (a *Archive) Count() (int, error) {
	files, err := a.List()
	return len(files), err
}
