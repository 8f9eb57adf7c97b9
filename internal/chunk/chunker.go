// Package chunk splits raw documents into bounded, overlapping passages.
//
// The strategy is semantic: paragraphs first (blank-line boundaries), then
// sentences when a paragraph exceeds the chunk size, then a hard character
// cut when a single sentence is still too long. Consecutive chunks share an
// overlap tail so context is not lost at boundaries.
package chunk

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/answerforge/ragcore/internal/model"
)

var (
	paragraphSplit = regexp.MustCompile(`\n\s*\n`)
	sentenceEnd    = regexp.MustCompile(`[.!?]+\s+`)
)

// Chunker splits document content into passages of at most Size characters
// with Overlap characters carried over between consecutive chunks.
type Chunker struct {
	size    int
	overlap int
}

// New validates the sizing constraints and returns a Chunker.
func New(size, overlap int) (*Chunker, error) {
	if size < 1 {
		return nil, fmt.Errorf("chunk size must be >= 1, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be in [0, size), got %d", overlap)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Size returns the configured chunk size.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured overlap.
func (c *Chunker) Overlap() int { return c.overlap }

// Chunk splits a document into ordered chunks. Empty or blank content
// yields nil. Document metadata is inherited by every chunk.
func (c *Chunker) Chunk(doc model.Document) []model.Chunk {
	pieces := c.Split(doc.Content)
	if len(pieces) == 0 {
		return nil
	}

	chunks := make([]model.Chunk, len(pieces))
	for i, text := range pieces {
		chunks[i] = model.Chunk{
			ID:       model.ChunkID(doc.ID, i),
			ParentID: doc.ID,
			Ordinal:  i,
			Text:     text,
			Title:    doc.Title,
			Source:   doc.Source,
			URL:      doc.URL,
			Metadata: doc.Metadata,
		}
	}
	return chunks
}

// Split returns the raw chunk texts for content, each at most size
// characters (plus the overlap prefix carried from the previous chunk).
func (c *Chunker) Split(content string) []string {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	var units []string
	for _, para := range paragraphSplit.Split(content, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if len(para) <= c.size {
			units = append(units, para)
			continue
		}
		// Paragraph too large: fall back to sentences, then hard cuts.
		for _, sent := range splitSentences(para) {
			if len(sent) <= c.size {
				units = append(units, sent)
				continue
			}
			units = append(units, hardCut(sent, c.size)...)
		}
	}

	return c.assemble(units)
}

// assemble packs units into chunks up to the size budget, carrying the
// overlap tail of each emitted chunk into the next.
func (c *Chunker) assemble(units []string) []string {
	var chunks []string
	var cur strings.Builder
	carried := 0 // bytes of cur that are the carried overlap tail

	flush := func() {
		// The buffer must hold content beyond the carried tail, otherwise
		// a chunk would be nothing but the previous chunk's suffix.
		if cur.Len() <= carried {
			return
		}
		text := strings.TrimSpace(cur.String())
		cur.Reset()
		carried = 0
		if text == "" {
			return
		}
		chunks = append(chunks, text)
		if c.overlap > 0 {
			if tail := overlapTail(text, c.overlap); tail != "" {
				cur.WriteString(tail)
				carried = cur.Len()
			}
		}
	}

	for _, unit := range units {
		if cur.Len() > carried && cur.Len()+len(unit)+1 > c.size {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteString(" ")
		}
		cur.WriteString(unit)
		// A single unit may exceed the budget once the overlap prefix is
		// counted; emit immediately rather than growing unbounded.
		for cur.Len() > c.size && cur.Len() > carried {
			flush()
		}
	}
	if text := strings.TrimSpace(cur.String()); cur.Len() > carried && text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

// splitSentences splits on sentence-ending punctuation followed by space,
// keeping the punctuation with the preceding sentence.
func splitSentences(text string) []string {
	locs := sentenceEnd.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return []string{text}
	}

	var out []string
	start := 0
	for _, loc := range locs {
		sent := strings.TrimSpace(text[start:loc[1]])
		if sent != "" {
			out = append(out, sent)
		}
		start = loc[1]
	}
	if rest := strings.TrimSpace(text[start:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

// hardCut slices text into size-bounded pieces at character boundaries.
func hardCut(text string, size int) []string {
	var out []string
	runes := []rune(text)
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		piece := strings.TrimSpace(string(runes[start:end]))
		if piece != "" {
			out = append(out, piece)
		}
	}
	return out
}

// overlapTail returns the last n characters of text, aligned to a word
// boundary when possible.
func overlapTail(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	tail := string(runes[len(runes)-n:])
	// Drop a leading partial word.
	if idx := strings.IndexAny(tail, " \t\n"); idx >= 0 && idx < len(tail)-1 {
		tail = tail[idx+1:]
	}
	return strings.TrimSpace(tail)
}
