package costs

import (
	"testing"
)

func TestCalculateSessionCosts(t *testing.T) {
	tests := []struct {
		name    string
		metrics SessionMetrics
		want    SessionCosts
	}{
		{
			name: "typical short session",
			metrics: SessionMetrics{
				SynthesizedCharacters: 400,
				TranscribedSeconds:    120,
			},
			// Synth: (400/1000)*18 = 7.2 -> 7 cents
			// Transcribe: 2 * 1.67 = 3.34 -> 3 cents
			want: SessionCosts{
				SynthCostCents:      7,
				TranscribeCostCents: 3,
				TotalCostCents:      10,
			},
		},
		{
			name: "synthesis only",
			metrics: SessionMetrics{
				SynthesizedCharacters: 4000,
			},
			// Synth: (4000/1000)*18 = 72 cents
			want: SessionCosts{
				SynthCostCents: 72,
				TotalCostCents: 72,
			},
		},
		{
			name: "transcription only, long session",
			metrics: SessionMetrics{
				TranscribedSeconds: 600,
			},
			// Transcribe: 10 * 1.67 = 16.7 -> 17 cents
			want: SessionCosts{
				TranscribeCostCents: 17,
				TotalCostCents:      17,
			},
		},
		{
			name:    "empty session",
			metrics: SessionMetrics{},
			want:    SessionCosts{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateSessionCosts(tt.metrics)
			if got != tt.want {
				t.Errorf("CalculateSessionCosts() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRoundToInt(t *testing.T) {
	tests := []struct {
		in   float64
		want int
	}{
		{0.4, 0},
		{0.5, 1},
		{7.2, 7},
		{-1.6, -2},
	}
	for _, tt := range tests {
		if got := roundToInt(tt.in); got != tt.want {
			t.Errorf("roundToInt(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
