package synth

import "strings"

// Chunks splits text into transport-safe pieces of at most budget
// characters, never splitting inside a word. A single word longer than
// the budget is sent whole; the provider tolerates oversize frames
// better than mid-word splits, which produce garbled audio.
func Chunks(text string, budget int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if budget <= 0 || len(text) <= budget {
		return []string{text}
	}

	var chunks []string
	var b strings.Builder
	for _, word := range strings.Fields(text) {
		if b.Len() > 0 && b.Len()+1+len(word) > budget {
			chunks = append(chunks, b.String())
			b.Reset()
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(word)
	}
	if b.Len() > 0 {
		chunks = append(chunks, b.String())
	}
	return chunks
}
