package knowledge

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"coremind-platform/internal/logger"
)

// DefaultSeparators are tried in priority order: paragraph break, line
// break, CJK and Latin sentence punctuation, then plain space. A fragment
// that contains none of them is emitted as-is, even when oversized.
var DefaultSeparators = []string{"\n\n", "\n", "。", "！", "？", ".", "!", "?", " "}

// Document is plain extracted text handed in by the surrounding layer.
type Document struct {
	Title    string
	Content  string
	Metadata map[string]string
}

// Chunk is the unit of indexing: a bounded slice of source text plus
// metadata. Immutable once created.
type Chunk struct {
	Content  string
	Metadata map[string]string
}

// Splitter splits text into overlapping chunks of at most chunkSize
// characters (runes).
type Splitter struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
}

// NewSplitter creates a splitter. Requires 0 <= overlap < size.
func NewSplitter(chunkSize, chunkOverlap int) *Splitter {
	return &Splitter{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		separators:   DefaultSeparators,
	}
}

// Split splits text into chunks. It never fails: if splitting panics the
// unmodified input is returned as a single chunk so no content is lost.
// The fallback is logged loudly because it can hide splitter bugs.
func (s *Splitter) Split(text string) (chunks []string) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("text splitting failed, returning input as a single chunk",
				"panic", r, "text_len", len(text))
			chunks = []string{text}
		}
	}()

	if text == "" {
		return nil
	}

	return s.split(text, s.separators)
}

// split recursively breaks text on the first separator present, then
// merges fragments back up to chunkSize with fragment-level overlap.
func (s *Splitter) split(text string, separators []string) []string {
	if utf8.RuneCountInString(text) <= s.chunkSize {
		return []string{text}
	}

	var sep string
	var rest []string
	found := false
	for i, sp := range separators {
		if strings.Contains(text, sp) {
			sep, rest = sp, separators[i+1:]
			found = true
			break
		}
	}
	if !found {
		// Single token longer than chunkSize: emit oversized rather
		// than drop or corrupt it.
		return []string{text}
	}

	frags := cutAfter(text, sep)

	var final []string
	var good []string
	for _, f := range frags {
		if utf8.RuneCountInString(f) <= s.chunkSize {
			good = append(good, f)
			continue
		}
		final = append(final, s.merge(good)...)
		good = nil
		final = append(final, s.split(f, rest)...)
	}
	final = append(final, s.merge(good)...)

	return final
}

// merge joins fragments into chunks of at most chunkSize runes, carrying
// the trailing fragments of each chunk (up to chunkOverlap runes) into
// the next as a prefix.
func (s *Splitter) merge(frags []string) []string {
	if len(frags) == 0 {
		return nil
	}

	var docs []string
	var cur []string
	total := 0

	for _, f := range frags {
		l := utf8.RuneCountInString(f)
		if total+l > s.chunkSize && total > 0 {
			docs = append(docs, strings.Join(cur, ""))
			for len(cur) > 0 && (total > s.chunkOverlap || total+l > s.chunkSize) {
				total -= utf8.RuneCountInString(cur[0])
				cur = cur[1:]
			}
		}
		cur = append(cur, f)
		total += l
	}
	if len(cur) > 0 {
		docs = append(docs, strings.Join(cur, ""))
	}

	return docs
}

// cutAfter splits text on sep, keeping the separator attached to the
// preceding fragment so that no characters are dropped.
func cutAfter(text, sep string) []string {
	parts := strings.SplitAfter(text, sep)
	// SplitAfter can leave a trailing empty fragment when text ends with sep.
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SplitDocuments splits each document and stamps chunk metadata
// (title, chunk_index, total_chunks) on top of the document's own.
func (s *Splitter) SplitDocuments(docs []Document) []Chunk {
	var all []Chunk

	for _, doc := range docs {
		pieces := s.Split(doc.Content)
		for i, piece := range pieces {
			meta := make(map[string]string, len(doc.Metadata)+3)
			for k, v := range doc.Metadata {
				meta[k] = v
			}
			meta["title"] = doc.Title
			meta["chunk_index"] = strconv.Itoa(i)
			meta["total_chunks"] = strconv.Itoa(len(pieces))

			all = append(all, Chunk{Content: piece, Metadata: meta})
		}
	}

	logger.Debug("document splitting complete", "documents", len(docs), "chunks", len(all))
	return all
}
