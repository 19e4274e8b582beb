// Package packet holds the types shared by both streaming adapters:
// the per-unit metadata record, the result packet handed to callers,
// and the FIFO queue that correlates submissions with results.
package packet

import "time"

// Meta is the metadata record attached to one logical unit of work.
// It is created by the caller, enriched by the adapter (request id,
// first-chunk and end-of-stream flags) and handed back by reference in
// every emitted Packet for that unit.
type Meta struct {
	RequestID string `json:"request_id"`

	// Format/SampleRate describe the target output the caller wants,
	// e.g. "mulaw"/8000 for telephony or "wav"/16000 for web playback.
	Format     string `json:"format"`
	SampleRate int    `json:"sample_rate"`

	// IsFirstChunk is set on exactly one result per logical unit,
	// the first one emitted. Callers use it for latency measurement.
	IsFirstChunk bool `json:"is_first_chunk,omitempty"`

	// EndOfInput marks the last unit the caller will submit for this
	// conversation. The result path resets first-chunk bookkeeping at
	// the next emission once it sees this.
	EndOfInput bool `json:"end_of_input,omitempty"`

	// EndOfStream is set when the adapter has emitted the final result
	// for this unit (the provider's end sentinel arrived).
	EndOfStream bool `json:"end_of_stream,omitempty"`

	SubmittedAt time.Time `json:"submitted_at,omitempty"`
}

// Packet is one result unit: the payload bytes plus the metadata record
// active when it was emitted. Payload is owned by the receiver once
// delivered; Meta stays shared with the adapter for the unit's life, so
// the flags a consumer should trust are the derived ones on the Packet,
// fixed at emission time.
type Packet struct {
	Data []byte
	Meta *Meta

	IsFirstChunk bool
	EndOfStream  bool
}
