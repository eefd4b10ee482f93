// Package chunker splits extracted document text into overlapping windows
// sized for the embedding model.
package chunker

import "strings"

const (
	DefaultSize    = 1000
	DefaultOverlap = 200
)

type Chunk struct {
	Index int
	Text  string
}

// Split cuts text into windows of at most size runes, each sharing up to
// overlap runes with its predecessor. A window prefers to end on a line break
// or a space when one exists in its second half. Indices are consecutive from
// zero and blank windows are skipped.
func Split(text string, size, overlap int) []Chunk {
	if size <= 0 {
		size = DefaultSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 2
	}

	runes := []rune(text)
	var chunks []Chunk
	for start := 0; start < len(runes); {
		end := start + size
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = boundary(runes, start, end)
		}

		if piece := strings.TrimSpace(string(runes[start:end])); piece != "" {
			chunks = append(chunks, Chunk{Index: len(chunks), Text: piece})
		}
		if end == len(runes) {
			break
		}

		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// boundary moves end back to just after the last newline, or failing that the
// last space, found in the second half of runes[start:end].
func boundary(runes []rune, start, end int) int {
	floor := start + (end-start)/2
	for _, sep := range []rune{'\n', ' '} {
		for i := end - 1; i > floor; i-- {
			if runes[i] == sep {
				return i + 1
			}
		}
	}
	return end
}
