package flatten

import "strings"

// wordsPerToken is the rough words-per-subword-token estimate used to turn
// the token budgets into word windows.
const wordsPerToken = 0.75

// splitWords applies the chunking policy: texts at or under the threshold
// stay whole; longer texts are cut into fixed word windows with a fixed
// overlap between consecutive windows. The window always advances by at
// least one word so the loop terminates even with a degenerate overlap.
func splitWords(text string, cfg Config) []string {
	words := strings.Fields(text)
	if uint(len(words)) <= cfg.Threshold {
		return []string{text}
	}

	window := int(float64(cfg.ChunkSize) * wordsPerToken)
	overlap := int(float64(cfg.Overlap) * wordsPerToken)
	if window < 1 {
		window = 1
	}
	advance := window - overlap
	if advance < 1 {
		advance = 1
	}

	var chunks []string
	for start := 0; start < len(words); start += advance {
		end := start + window
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks
}
