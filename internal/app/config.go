package app

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	HTTPAddr      string
	PublicBaseURL string
	DatabaseURL   string
	RedisAddr     string
	SentryDSN     string
	LogLevel      string

	// Speech providers
	ElevenLabsAPIKey  string
	AzureSpeechKey    string
	AzureSpeechRegion string

	// Synthesis settings
	SynthVoiceID    string
	SynthModelID    string
	SynthFormat     string
	SynthStability  float64
	SynthSimilarity float64

	// Transcription settings
	TranscribeLanguage string
	TranscribeEncoding string
	SampleRate         int

	// JWT Authentication
	JWTSecret string
	JWTExpiry time.Duration
}

func LoadConfigFromEnv() Config {
	jwtExpiry, err := time.ParseDuration(getenv("JWT_EXPIRY", "24h"))
	if err != nil {
		jwtExpiry = 24 * time.Hour
	}

	return Config{
		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		PublicBaseURL: getenv("PUBLIC_BASE_URL", "http://localhost:8080"),
		DatabaseURL:   getenv("DATABASE_URL", ""),
		RedisAddr:     getenv("REDIS_ADDR", ""),
		SentryDSN:     getenv("SENTRY_DSN", ""),
		LogLevel:      getenv("LOG_LEVEL", "info"),

		// Speech providers
		ElevenLabsAPIKey:  getenv("ELEVENLABS_API_KEY", ""),
		AzureSpeechKey:    getenv("AZURE_SPEECH_KEY", ""),
		AzureSpeechRegion: getenv("AZURE_SPEECH_REGION", "westus2"),

		// Synthesis settings
		SynthVoiceID:    getenv("SYNTH_VOICE_ID", ""),
		SynthModelID:    getenv("SYNTH_MODEL_ID", "eleven_turbo_v2_5"),
		SynthFormat:     getenv("SYNTH_FORMAT", "ulaw_8000"),
		SynthStability:  getenvFloat("SYNTH_STABILITY", 0.5),
		SynthSimilarity: getenvFloat("SYNTH_SIMILARITY", 0.8),

		// Transcription settings
		TranscribeLanguage: getenv("TRANSCRIBE_LANGUAGE", "en-US"),
		TranscribeEncoding: getenv("TRANSCRIBE_ENCODING", "linear16"),
		SampleRate:         getenvInt("SAMPLE_RATE", 8000),

		// JWT Authentication
		JWTSecret: os.Getenv("JWT_SECRET"), // Required - no fallback for security
		JWTExpiry: jwtExpiry,
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvFloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
