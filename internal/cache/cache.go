// Package cache provides the scalar audio cache the synthesizer checks
// before a network round trip and populates once a unit's audio is
// complete. Eviction policy belongs to the backing store, not here.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Store is a key -> synthesized-audio cache.
type Store interface {
	// Get returns the cached audio for key, or ok=false on a miss.
	Get(ctx context.Context, key string) (audio []byte, ok bool, err error)

	// Set stores audio under key.
	Set(ctx context.Context, key string, audio []byte) error
}

// Key canonicalizes (text, voice, model, format) into a cache key so
// the same utterance synthesized with the same settings hits.
func Key(text, voiceID, modelID, format string) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%s", text, voiceID, modelID, format)))
	return "synth:" + hex.EncodeToString(h[:])
}
