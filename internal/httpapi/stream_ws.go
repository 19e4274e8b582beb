package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lukasbauer/speechio/internal/costs"
	"github.com/lukasbauer/speechio/internal/eventlog"
	"github.com/lukasbauer/speechio/internal/packet"
	"github.com/lukasbauer/speechio/internal/store"
	"github.com/lukasbauer/speechio/internal/synth"
	"github.com/lukasbauer/speechio/internal/transcribe"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// clientFrame is one inbound message on the duplex stream.
type clientFrame struct {
	Type       string `json:"type"` // "speak", "audio" or "end"
	Text       string `json:"text,omitempty"`
	Audio      string `json:"audio,omitempty"` // Base64 audio payload
	RequestID  string `json:"request_id,omitempty"`
	Format     string `json:"format,omitempty"`      // target audio format for synthesis
	SampleRate int    `json:"sample_rate,omitempty"` // target sample rate for synthesis

	// EndOfInput on a "speak" frame marks the unit as the conversation's
	// last; the synthesizer resets its first-chunk bookkeeping on it.
	EndOfInput bool `json:"end_of_input,omitempty"`
}

// audioFrame carries one synthesized audio chunk back to the caller.
type audioFrame struct {
	Type        string `json:"type"` // "audio"
	RequestID   string `json:"request_id"`
	Audio       string `json:"audio"` // Base64
	Format      string `json:"format"`
	FirstChunk  bool   `json:"first_chunk"`
	EndOfStream bool   `json:"end_of_stream"`
}

// transcriptFrame carries one recognition result back to the caller.
type transcriptFrame struct {
	Type        string  `json:"type"` // "transcript"
	RequestID   string  `json:"request_id"`
	Kind        string  `json:"kind"` // "interim", "final" or "closed"
	Text        string  `json:"text"`
	Confidence  float64 `json:"confidence"`
	FirstChunk  bool    `json:"first_chunk"`
	EndOfStream bool    `json:"end_of_stream"`
}

type errorFrame struct {
	Type  string `json:"type"` // "error"
	Error string `json:"error"`
}

// streamSession manages one caller's duplex speech session.
type streamSession struct {
	sessionID string
	clientID  string

	conn   *websocket.Conn
	connMu sync.Mutex

	synth *synth.Synthesizer
	trans *transcribe.Transcriber

	store    *store.Store
	eventLog *eventlog.Logger
	logger   *log.Logger

	startedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (r *Router) handleStreamWS(w http.ResponseWriter, req *http.Request) {
	if r.cfg.ElevenLabsAPIKey == "" && r.cfg.SynthURL == "" {
		r.logger.Printf("stream_ws: synthesis not configured")
		http.Error(w, "speech synthesis not configured", http.StatusServiceUnavailable)
		return
	}
	if r.cfg.AzureSpeechKey == "" && r.cfg.TranscribeURL == "" {
		r.logger.Printf("stream_ws: transcription not configured")
		http.Error(w, "speech transcription not configured", http.StatusServiceUnavailable)
		return
	}

	// Browsers cannot set headers on websocket dials, so the token
	// rides in a query param. Absent or invalid tokens fall back to an
	// anonymous session rather than failing the upgrade.
	clientID := "anonymous"
	if token := req.URL.Query().Get("token"); token != "" && r.cfg.JWTSecret != "" {
		if claims, err := r.parseToken(token); err == nil {
			clientID = claims.ClientID
		} else {
			r.logger.Printf("stream_ws: invalid token, continuing anonymous: %v", err)
		}
	}

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Printf("stream_ws: upgrade failed: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(req.Context())

	session := &streamSession{
		clientID:  clientID,
		conn:      conn,
		store:     r.store,
		eventLog:  r.eventLog,
		logger:    r.logger,
		startedAt: time.Now().UTC(),
		ctx:       ctx,
		cancel:    cancel,
	}

	if r.store != nil {
		dbSession, err := r.store.CreateSession(ctx, clientID)
		if err != nil {
			r.logger.Printf("stream_ws: failed to create session: %v", err)
		} else {
			session.sessionID = dbSession.ID
		}
	}
	if session.sessionID == "" {
		session.sessionID = uuid.NewString()
	}

	// Adapter lifecycle notifications land in the session's audit
	// trail. The hook kinds are the eventlog type names.
	audit := func(direction string) func(kind string, data map[string]any) {
		return func(kind string, data map[string]any) {
			if data == nil {
				data = map[string]any{}
			}
			data["direction"] = direction
			r.eventLog.LogAsync(session.sessionID, eventlog.EventType(kind), data)
		}
	}

	session.synth = synth.New(synth.Config{
		APIKey:       r.cfg.ElevenLabsAPIKey,
		VoiceID:      r.cfg.SynthVoiceID,
		ModelID:      r.cfg.SynthModelID,
		OutputFormat: r.cfg.SynthFormat,
		Stability:    r.cfg.SynthStability,
		Similarity:   r.cfg.SynthSimilarity,
		URL:          r.cfg.SynthURL,
		Cache:        r.cache,
		OnEvent:      audit("synthesis"),
	}, r.logger)

	session.trans = transcribe.New(transcribe.Config{
		APIKey:     r.cfg.AzureSpeechKey,
		Region:     r.cfg.AzureSpeechRegion,
		Language:   r.cfg.TranscribeLanguage,
		Encoding:   r.cfg.TranscribeEncoding,
		SampleRate: r.cfg.SampleRate,
		URL:        r.cfg.TranscribeURL,
		OnEvent:    audit("transcription"),
	}, r.logger)

	if err := session.synth.Start(ctx); err != nil {
		r.logger.Printf("stream_ws: synthesizer start failed: %v", err)
		cancel()
		conn.Close()
		return
	}
	if err := session.trans.Start(ctx); err != nil {
		r.logger.Printf("stream_ws: transcriber start failed: %v", err)
		session.synth.Stop()
		cancel()
		conn.Close()
		return
	}

	r.eventLog.LogAsync(session.sessionID, eventlog.EventSessionStarted, map[string]any{
		"client_id": clientID,
	})
	r.logger.Printf("stream_ws: session %s started for client %s", session.sessionID, clientID)

	session.run()
}

func (s *streamSession) run() {
	defer s.cleanup()

	s.wg.Add(2)
	go s.pumpSynthesis()
	go s.pumpTranscripts()

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Printf("stream_ws: connection closed for session %s", s.sessionID)
			} else {
				s.logger.Printf("stream_ws: read error for session %s: %v", s.sessionID, err)
			}
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(msg, &frame); err != nil {
			s.logger.Printf("stream_ws: failed to parse message: %v", err)
			s.writeError("malformed frame")
			continue
		}

		switch frame.Type {
		case "speak":
			s.handleSpeak(frame)

		case "audio":
			s.handleAudio(frame)

		case "end":
			s.handleEnd()

		default:
			s.writeError("unknown frame type: " + frame.Type)
		}
	}
}

func (s *streamSession) handleSpeak(frame clientFrame) {
	// An end-of-input marker may ride on an empty frame; only a plain
	// speak frame needs text.
	if strings.TrimSpace(frame.Text) == "" && !frame.EndOfInput {
		s.writeError("speak frame with empty text")
		return
	}

	requestID := frame.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}

	meta := &packet.Meta{
		RequestID:  requestID,
		Format:     frame.Format,
		SampleRate: frame.SampleRate,
		EndOfInput: frame.EndOfInput,
	}
	s.synth.Speak(frame.Text, meta)

	s.eventLog.LogAsync(s.sessionID, eventlog.EventUnitSubmitted, map[string]any{
		"request_id": requestID,
		"characters": len(frame.Text),
	})
}

func (s *streamSession) handleAudio(frame clientFrame) {
	audio, err := base64.StdEncoding.DecodeString(frame.Audio)
	if err != nil {
		s.writeError("audio payload is not valid base64")
		return
	}
	s.trans.Push(audio, &packet.Meta{RequestID: frame.RequestID})
}

func (s *streamSession) handleEnd() {
	s.trans.Push(nil, &packet.Meta{EndOfInput: true})
	s.eventLog.LogAsync(s.sessionID, eventlog.EventEndOfInput, nil)
}

// pumpSynthesis forwards synthesized audio packets to the caller until
// the synthesizer's result stream closes.
func (s *streamSession) pumpSynthesis() {
	defer s.wg.Done()

	for pkt := range s.synth.Results() {
		out := audioFrame{
			Type:        "audio",
			Audio:       base64.StdEncoding.EncodeToString(pkt.Data),
			FirstChunk:  pkt.IsFirstChunk,
			EndOfStream: pkt.EndOfStream,
		}
		if pkt.Meta != nil {
			out.RequestID = pkt.Meta.RequestID
			out.Format = pkt.Meta.Format
		}

		if err := s.writeJSONFrame(out); err != nil {
			s.logger.Printf("stream_ws: failed to send audio: %v", err)
			return
		}

		if pkt.EndOfStream && pkt.Meta != nil {
			s.eventLog.LogAsync(s.sessionID, eventlog.EventUnitCompleted, map[string]any{
				"request_id": pkt.Meta.RequestID,
				"direction":  "synthesis",
			})
		}
	}
}

// pumpTranscripts forwards recognition results to the caller until the
// transcriber's result stream closes.
func (s *streamSession) pumpTranscripts() {
	defer s.wg.Done()

	for res := range s.trans.Results() {
		out := transcriptFrame{
			Type:        "transcript",
			Kind:        string(res.Kind),
			Text:        res.Text,
			Confidence:  res.Confidence,
			FirstChunk:  res.IsFirstChunk,
			EndOfStream: res.EndOfStream,
		}
		if res.Meta != nil {
			out.RequestID = res.Meta.RequestID
		}

		if err := s.writeJSONFrame(out); err != nil {
			s.logger.Printf("stream_ws: failed to send transcript: %v", err)
			return
		}

		if res.Kind == transcribe.KindFinal && res.Meta != nil {
			s.eventLog.LogAsync(s.sessionID, eventlog.EventUnitCompleted, map[string]any{
				"request_id": res.Meta.RequestID,
				"direction":  "transcription",
			})
		}
	}
}

func (s *streamSession) writeJSONFrame(v any) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.conn.WriteJSON(v)
}

func (s *streamSession) writeError(msg string) {
	if err := s.writeJSONFrame(errorFrame{Type: "error", Error: msg}); err != nil {
		s.logger.Printf("stream_ws: failed to send error frame: %v", err)
	}
}

func (s *streamSession) cleanup() {
	s.cancel()

	// Stop both adapters; this closes their result streams, which in
	// turn lets the pump goroutines drain and exit.
	s.synth.Stop()
	s.trans.Stop()
	s.wg.Wait()

	s.connMu.Lock()
	s.conn.Close()
	s.connMu.Unlock()

	s.persistUsage()

	s.eventLog.LogAsync(s.sessionID, eventlog.EventSessionEnded, map[string]any{
		"duration_seconds": time.Since(s.startedAt).Seconds(),
	})
	s.logger.Printf("stream_ws: session %s cleaned up", s.sessionID)
}

// persistUsage records the session's counters and computed cost. Uses a
// background context since the session context is already cancelled.
func (s *streamSession) persistUsage() {
	if s.store == nil {
		return
	}

	usage := store.Usage{
		SynthesizedCharacters: s.synth.SynthesizedCharacters(),
		TranscribedSeconds:    s.trans.AudioSeconds(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.store.InsertUsage(ctx, s.sessionID, usage); err != nil {
		s.logger.Printf("stream_ws: failed to persist usage: %v", err)
	}
	if err := s.store.EndSession(ctx, s.sessionID, time.Now().UTC()); err != nil {
		s.logger.Printf("stream_ws: failed to end session: %v", err)
	}

	c := costs.CalculateSessionCosts(costs.SessionMetrics{
		SynthesizedCharacters: usage.SynthesizedCharacters,
		TranscribedSeconds:    usage.TranscribedSeconds,
	})
	s.logger.Printf("stream_ws: session %s usage: %d chars, %.1fs audio, %d cents",
		s.sessionID, usage.SynthesizedCharacters, usage.TranscribedSeconds, c.TotalCostCents)
}
