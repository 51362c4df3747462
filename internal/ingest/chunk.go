package ingest

import "strings"

const (
	// chunkSize is the target chunk length in runes.
	chunkSize = 1000

	// chunkOverlap is how many runes consecutive chunks share, so facts
	// near a boundary stay retrievable from at least one chunk.
	chunkOverlap = 100
)

// chunkText splits text into overlapping chunks of at most size runes.
// Whitespace-only chunks are dropped. Splitting on runes keeps multi-byte
// characters intact.
func chunkText(text string, size, overlap int) []string {
	if size <= 0 {
		return nil
	}
	if overlap >= size {
		overlap = size - 1
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := size - overlap
	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}

		chunk := string(runes[start:end])
		if strings.TrimSpace(chunk) != "" {
			chunks = append(chunks, chunk)
		}

		if end == len(runes) {
			break
		}
	}

	return chunks
}
