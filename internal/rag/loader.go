package rag

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// Document is one source file's text.
type Document struct {
	Source string
	Text   string
}

type extractor func(path string) (string, error)

var extractors = map[string]extractor{
	".txt":  readPlain,
	".md":   readPlain,
	".pdf":  readPDF,
	".docx": readDOCX,
}

var errNotText = errors.New("not valid UTF-8 text")

// LoadDir reads every supported document under dir, recursively, in path
// order. Unsupported files and files whose text cannot be extracted are
// skipped and reported in skipped.
func LoadDir(dir string) (docs []Document, skipped []string, err error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("open docs dir: %w", err)
	}
	if !info.IsDir() {
		return nil, nil, fmt.Errorf("docs path %s is not a directory", dir)
	}
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		rel, _ := filepath.Rel(dir, path)
		rel = filepath.ToSlash(rel)
		extract, ok := extractors[strings.ToLower(filepath.Ext(path))]
		if !ok {
			skipped = append(skipped, rel)
			return nil
		}
		text, err := extract(path)
		if err != nil {
			if errors.Is(err, fs.ErrPermission) {
				return fmt.Errorf("read %s: %w", rel, err)
			}
			skipped = append(skipped, rel)
			return nil
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return nil
		}
		docs = append(docs, Document{Source: rel, Text: text})
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Source < docs[j].Source })
	return docs, skipped, nil
}

func readPlain(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", errNotText
	}
	return string(b), nil
}

// readPDF extracts the plain text of every page. The parser panics on some
// malformed files, so a panic is reported as an extraction error.
func readPDF(path string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse pdf: %v", r)
		}
	}()
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	plain, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", err
	}
	return strings.ToValidUTF8(buf.String(), ""), nil
}

// readDOCX pulls paragraph text out of word/document.xml. Runs are joined
// in document order; paragraphs, breaks and tabs become whitespace.
func readDOCX(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", err
	}
	defer zr.Close()
	var body *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			body = f
			break
		}
	}
	if body == nil {
		return "", errors.New("docx: word/document.xml missing")
	}
	rc, err := body.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	var sb strings.Builder
	dec := xml.NewDecoder(rc)
	inText := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("docx: %w", err)
		}
		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "t":
				inText = true
			case "tab":
				sb.WriteByte('\t')
			case "br", "cr":
				sb.WriteByte('\n')
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				sb.Write(el)
			}
		}
	}
	return sb.String(), nil
}
