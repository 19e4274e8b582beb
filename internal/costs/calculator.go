// Package costs provides cost calculation for speech API usage.
package costs

import (
	"os"
	"strconv"
)

// Pricing constants (in cents per unit for precision).
// Based on current market rates; overridable via environment variables.
var (
	// SynthCentsPerThousandChars is the cost per 1K characters for
	// ElevenLabs streaming synthesis.
	// Default: $0.18/1K chars = 18 cents/1K chars
	SynthCentsPerThousandChars = getEnvFloat("COST_SYNTH_CENTS_PER_1K_CHARS", 18.0)

	// TranscribeCentsPerMinute is the cost per minute of audio for
	// Azure streaming recognition.
	// Default: $0.0167/min = 1.67 cents/min
	TranscribeCentsPerMinute = getEnvFloat("COST_TRANSCRIBE_CENTS_PER_MIN", 1.67)
)

// SessionMetrics contains the raw usage counters from one adapter
// session, as reported by the adapters' submission-time counters.
type SessionMetrics struct {
	SynthesizedCharacters int64   // Characters submitted for synthesis
	TranscribedSeconds    float64 // Seconds of audio submitted for recognition
}

// SessionCosts is the cost breakdown for one session, in cents.
type SessionCosts struct {
	SynthCostCents      int
	TranscribeCostCents int
	TotalCostCents      int
}

// CalculateSessionCosts computes the cost breakdown for a session.
func CalculateSessionCosts(m SessionMetrics) SessionCosts {
	synth := float64(m.SynthesizedCharacters) / 1000.0 * SynthCentsPerThousandChars
	transcribe := m.TranscribedSeconds / 60.0 * TranscribeCentsPerMinute

	c := SessionCosts{
		SynthCostCents:      roundToInt(synth),
		TranscribeCostCents: roundToInt(transcribe),
	}
	c.TotalCostCents = c.SynthCostCents + c.TranscribeCostCents
	return c
}

// roundToInt rounds a float to the nearest integer.
func roundToInt(f float64) int {
	if f < 0 {
		return int(f - 0.5)
	}
	return int(f + 0.5)
}

// getEnvFloat returns an environment variable as float64, or the default if not set.
func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
