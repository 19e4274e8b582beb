package synth

import (
	"strings"
	"testing"
)

func TestChunksShortTextIsSingleChunk(t *testing.T) {
	got := Chunks("Hello world", 400)
	if len(got) != 1 || got[0] != "Hello world" {
		t.Errorf("Chunks = %v, want single chunk", got)
	}
}

func TestChunksEmptyText(t *testing.T) {
	if got := Chunks("", 400); got != nil {
		t.Errorf("Chunks(\"\") = %v, want nil", got)
	}
	if got := Chunks("   ", 400); got != nil {
		t.Errorf("Chunks(whitespace) = %v, want nil", got)
	}
}

func TestChunksNeverSplitInsideWord(t *testing.T) {
	text := strings.Repeat("alpha beta gamma delta ", 40)
	chunks := Chunks(text, 50)

	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	words := map[string]bool{"alpha": true, "beta": true, "gamma": true, "delta": true}
	for i, c := range chunks {
		if len(c) > 50 {
			t.Errorf("chunk %d is %d chars, over budget", i, len(c))
		}
		for _, w := range strings.Fields(c) {
			if !words[w] {
				t.Errorf("chunk %d contains split word %q", i, w)
			}
		}
	}

	// Reassembly must preserve the original word sequence.
	if strings.Join(chunks, " ") != strings.TrimSpace(text) {
		t.Error("chunks do not reassemble to original text")
	}
}

func TestChunksOversizeWordSentWhole(t *testing.T) {
	long := strings.Repeat("x", 80)
	chunks := Chunks("a "+long+" b", 10)

	found := false
	for _, c := range chunks {
		if c == long {
			found = true
		}
	}
	if !found {
		t.Errorf("oversize word was split: %v", chunks)
	}
}
