// Package transcribe is the speech-to-text half of the streaming
// adapter pair: it pushes raw audio frames into a streaming recognizer
// and reassembles the asynchronous recognition events into an ordered,
// metadata-tagged result stream.
package transcribe

import "github.com/lukasbauer/speechio/internal/packet"

// Kind classifies a recognition result.
type Kind string

const (
	// KindInterim is a partial hypothesis for the current utterance.
	KindInterim Kind = "interim"
	// KindFinal is the recognized text for a completed utterance.
	KindFinal Kind = "final"
	// KindClosed reports that the recognition session ended; it is the
	// transcriber's end-of-stream sentinel.
	KindClosed Kind = "closed"
)

// Result is one transcription result. Meta is the shared per-unit
// record; the flags fixed at emission time are the ones on the Result.
type Result struct {
	Kind       Kind
	Text       string
	Confidence float64

	Meta         *packet.Meta
	IsFirstChunk bool
	EndOfStream  bool
}
