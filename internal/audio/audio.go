// Package audio is the format normalization boundary for the streaming
// adapters. The adapters treat conversion as a pure, stateless
// collaborator: bytes in, bytes out, no connection to transport state.
package audio

import "encoding/binary"

// Normalizer converts one provider audio chunk into the caller's target
// format. Implementations must be stateless; the result path calls them
// from its emit loop for every chunk, including the end sentinel.
type Normalizer interface {
	// Normalize converts data from the provider's wire format at
	// sourceRate into 16-bit PCM at targetRate.
	Normalize(data []byte, sourceRate, targetRate int) ([]byte, error)
}

// Converter is the stock Normalizer: it decodes the provider's μ-law
// payload to 16-bit little-endian PCM and resamples to the target rate.
type Converter struct{}

func (Converter) Normalize(data []byte, sourceRate, targetRate int) ([]byte, error) {
	pcm := DecodeMulaw(data)
	if sourceRate == targetRate || sourceRate <= 0 || targetRate <= 0 {
		return pcm, nil
	}
	return ResamplePCM16(pcm, sourceRate, targetRate), nil
}

// DecodeMulaw expands 8-bit μ-law samples (G.711) into 16-bit
// little-endian PCM.
func DecodeMulaw(in []byte) []byte {
	out := make([]byte, len(in)*2)
	for i, b := range in {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(mulawToLinear(b)))
	}
	return out
}

func mulawToLinear(b byte) int16 {
	b = ^b
	sign := b & 0x80
	exponent := (b >> 4) & 0x07
	mantissa := b & 0x0F
	sample := (int(mantissa)<<3 + 0x84) << exponent
	sample -= 0x84
	if sign != 0 {
		sample = -sample
	}
	return int16(sample)
}

// ResamplePCM16 converts 16-bit little-endian mono PCM from one sample
// rate to another using linear interpolation. Good enough for speech;
// callers needing studio quality should put a real resampler behind
// the Normalizer interface.
func ResamplePCM16(in []byte, fromRate, toRate int) []byte {
	if fromRate == toRate || fromRate <= 0 || toRate <= 0 || len(in) < 2 {
		return in
	}

	samples := len(in) / 2
	outSamples := samples * toRate / fromRate
	if outSamples == 0 {
		return nil
	}

	out := make([]byte, outSamples*2)
	ratio := float64(fromRate) / float64(toRate)
	for i := 0; i < outSamples; i++ {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)

		s0 := int16(binary.LittleEndian.Uint16(in[idx*2:]))
		s1 := s0
		if idx+1 < samples {
			s1 = int16(binary.LittleEndian.Uint16(in[(idx+1)*2:]))
		}

		v := float64(s0) + (float64(s1)-float64(s0))*frac
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}
