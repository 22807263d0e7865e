package rag

import "strings"

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 150
)

// Chunk is a piece of a document sized for embedding.
type Chunk struct {
	Source string `json:"source"`
	Text   string `json:"text"`
}

var separators = []string{"\n\n", "\n", " ", ""}

// Splitter breaks text on the coarsest separator that keeps pieces under
// Size runes, then merges neighbours back up to Size with Overlap runes of
// shared context.
type Splitter struct {
	Size    int
	Overlap int
}

func NewSplitter(size, overlap int) Splitter {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	return Splitter{Size: size, Overlap: overlap}
}

// SplitDocuments chunks every document, keeping its source.
func (s Splitter) SplitDocuments(docs []Document) []Chunk {
	out := make([]Chunk, 0)
	for _, d := range docs {
		for _, text := range s.Split(d.Text) {
			out = append(out, Chunk{Source: d.Source, Text: text})
		}
	}
	return out
}

func (s Splitter) Split(text string) []string {
	return s.split(text, separators)
}

func (s Splitter) split(text string, seps []string) []string {
	sep := seps[len(seps)-1]
	rest := []string(nil)
	for i, c := range seps {
		if c == "" || strings.Contains(text, c) {
			sep = c
			rest = seps[i+1:]
			break
		}
	}
	var pieces []string
	if sep == "" {
		for _, r := range text {
			pieces = append(pieces, string(r))
		}
	} else {
		pieces = strings.Split(text, sep)
	}

	var out, pending []string
	for _, p := range pieces {
		if runeLen(p) < s.Size {
			pending = append(pending, p)
			continue
		}
		if len(pending) > 0 {
			out = append(out, s.merge(pending, sep)...)
			pending = nil
		}
		if len(rest) == 0 {
			out = append(out, p)
		} else {
			out = append(out, s.split(p, rest)...)
		}
	}
	if len(pending) > 0 {
		out = append(out, s.merge(pending, sep)...)
	}
	return out
}

// merge joins small pieces into chunks no longer than Size, carrying the
// trailing Overlap runes worth of pieces into the next chunk.
func (s Splitter) merge(pieces []string, sep string) []string {
	sepLen := runeLen(sep)
	var (
		out   []string
		cur   []string
		total int
	)
	for _, p := range pieces {
		n := runeLen(p)
		extra := 0
		if len(cur) > 0 {
			extra = sepLen
		}
		if total+n+extra > s.Size && len(cur) > 0 {
			if doc := strings.TrimSpace(strings.Join(cur, sep)); doc != "" {
				out = append(out, doc)
			}
			for total > s.Overlap || (total+n+sepLen > s.Size && total > 0) {
				total -= runeLen(cur[0])
				if len(cur) > 1 {
					total -= sepLen
				}
				cur = cur[1:]
			}
		}
		if len(cur) > 0 {
			total += sepLen
		}
		cur = append(cur, p)
		total += n
	}
	if doc := strings.TrimSpace(strings.Join(cur, sep)); doc != "" {
		out = append(out, doc)
	}
	return out
}

func runeLen(s string) int { return len([]rune(s)) }
