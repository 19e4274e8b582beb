package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/lukasbauer/speechio/internal/cache"
	"github.com/lukasbauer/speechio/internal/eventlog"
	"github.com/lukasbauer/speechio/internal/store"
)

type RouterConfig struct {
	PublicBaseURL string

	// Speech providers
	ElevenLabsAPIKey  string
	AzureSpeechKey    string
	AzureSpeechRegion string

	// Synthesis settings
	SynthVoiceID    string
	SynthModelID    string
	SynthFormat     string
	SynthStability  float64 // ElevenLabs voice stability (0.0-1.0)
	SynthSimilarity float64 // ElevenLabs voice similarity boost (0.0-1.0)

	// Transcription settings
	TranscribeLanguage string
	TranscribeEncoding string
	SampleRate         int

	// Provider endpoint overrides (tests point these at local servers)
	SynthURL      string
	TranscribeURL string

	// JWT Authentication
	JWTSecret string
	JWTExpiry time.Duration
}

type Router struct {
	cfg      RouterConfig
	logger   *log.Logger
	store    *store.Store
	eventLog *eventlog.Logger
	cache    cache.Store
	mux      *http.ServeMux
}

func NewRouter(cfg RouterConfig, logger *log.Logger, s *store.Store, eventLog *eventlog.Logger, c cache.Store) http.Handler {
	r := &Router{
		cfg:      cfg,
		logger:   logger,
		store:    s,
		eventLog: eventLog,
		cache:    c,
		mux:      http.NewServeMux(),
	}

	r.routes()
	return withSentryRecovery(withCORS(r.mux))
}

func (r *Router) routes() {
	// Health check
	r.mux.HandleFunc("GET /healthz", r.handleHealthz)

	// Duplex speech stream (token passed as query param, validated inside)
	r.mux.HandleFunc("GET /stream", r.handleStreamWS)

	// Protected API endpoints
	r.mux.HandleFunc("GET /api/usage", r.withAuth(r.handleGetUsage))
	r.mux.HandleFunc("GET /api/sessions/{sessionId}/usage", r.withAuth(r.handleGetSessionUsage))
	r.mux.HandleFunc("GET /api/stream-url", r.withAuth(r.handleStreamURL))
}

func (r *Router) handleStreamURL(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"url": wsURLFromPublicBase(r.cfg.PublicBaseURL) + "/stream",
	})
}

func (r *Router) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func withSentryRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				hub := sentry.CurrentHub().Clone()
				hub.Scope().SetRequest(req)
				hub.RecoverWithContext(req.Context(), err)
				hub.Flush(2 * time.Second)
				http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, req)
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if req.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, req)
	})
}

// captureError sends an error to Sentry with request context
func captureError(req *http.Request, err error, msg string) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetRequest(req)
		scope.SetExtra("message", msg)
		sentry.CaptureException(err)
	})
}

func wsURLFromPublicBase(publicBase string) string {
	// http://x -> ws://x
	// https://x -> wss://x
	if strings.HasPrefix(publicBase, "https://") {
		return "wss://" + strings.TrimPrefix(publicBase, "https://")
	}
	if strings.HasPrefix(publicBase, "http://") {
		return "ws://" + strings.TrimPrefix(publicBase, "http://")
	}
	// assume already host[:port]
	return "wss://" + publicBase
}
