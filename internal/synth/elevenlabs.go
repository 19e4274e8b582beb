package synth

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

const elevenLabsWSURL = "wss://api.elevenlabs.io/v1/text-to-speech"

// textFrame is one outbound message on the stream-input socket. The
// service buffers internally; Flush forces it to emit buffered audio,
// which is why every logical unit ends with an empty flush frame.
type textFrame struct {
	Text  string `json:"text"`
	Flush bool   `json:"flush,omitempty"`
}

// bosFrame is the handshake sent after every (re)connect. ElevenLabs
// takes the API key and voice settings on the first frame rather than
// in a header, so reconnects must repeat it.
type bosFrame struct {
	Text          string        `json:"text"`
	VoiceSettings voiceSettings `json:"voice_settings"`
	XIAPIKey      string        `json:"xi_api_key"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// audioFrame is one inbound message: base64 audio plus the final-chunk
// marker for the current logical unit.
type audioFrame struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
}

func (s *Synthesizer) wsURL() string {
	if s.cfg.URL != "" {
		return s.cfg.URL
	}
	return fmt.Sprintf("%s/%s/stream-input?model_id=%s&output_format=%s&inactivity_timeout=60",
		elevenLabsWSURL, s.cfg.VoiceID, s.cfg.ModelID, s.cfg.OutputFormat)
}

// connect opens the transport and performs the handshake. Failures are
// returned, never panicked; the supervisor retries on its next tick.
func (s *Synthesizer) connect() (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(s.ctx, s.wsURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	bos := bosFrame{
		Text: " ",
		VoiceSettings: voiceSettings{
			Stability:       s.cfg.Stability,
			SimilarityBoost: s.cfg.Similarity,
		},
		XIAPIKey: s.cfg.APIKey,
	}
	if err := conn.WriteJSON(bos); err != nil {
		conn.Close()
		return nil, fmt.Errorf("handshake: %w", err)
	}

	return conn, nil
}

// supervise keeps the connection alive for the adapter's lifetime. On
// each tick it reconnects only if the handle is absent; a live handle
// is left untouched. Reconnecting never clears the correlation queue,
// so units submitted before a drop still resolve against their
// original metadata.
func (s *Synthesizer) supervise() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.SupervisorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		}

		if s.conn.Load() != nil {
			continue
		}

		conn, err := s.connect()
		if err != nil {
			s.logger.Printf("synth: reconnect failed: %v", err)
			continue
		}
		if !s.conn.CompareAndSwap(nil, conn) {
			// Someone else installed a handle first.
			conn.Close()
			continue
		}
		s.logger.Printf("synth: connection re-established")
		s.notify("reconnected", nil)
	}
}

// readLoop bridges the websocket into the internal event channel. Read
// errors mark the handle dead for the supervisor and pause briefly;
// they never terminate the caller-facing sequence.
func (s *Synthesizer) readLoop() {
	defer s.wg.Done()

	for {
		if s.ctx.Err() != nil {
			return
		}

		conn := s.conn.Load()
		if conn == nil {
			s.sleep(s.cfg.ReceiveRetry)
			continue
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.logger.Printf("synth: read error: %v", err)
			s.conn.CompareAndSwap(conn, nil)
			s.sleep(s.cfg.ReceiveRetry)
			continue
		}

		var frame audioFrame
		if err := json.Unmarshal(msg, &frame); err != nil {
			s.logger.Printf("synth: skipping malformed frame: %v", err)
			continue
		}

		if frame.Audio != "" {
			decoded, err := base64.StdEncoding.DecodeString(frame.Audio)
			if err != nil {
				s.logger.Printf("synth: bad audio payload: %v", err)
				continue
			}
			s.deliver(event{data: decoded})
		}

		if frame.IsFinal {
			// The null byte stands for "no more audio for this unit".
			s.deliver(event{data: []byte{0x00}, final: true})
		}
	}
}

func (s *Synthesizer) deliver(ev event) {
	select {
	case <-s.ctx.Done():
	case s.events <- ev:
	}
}

func (s *Synthesizer) sleep(d time.Duration) {
	select {
	case <-s.ctx.Done():
	case <-time.After(d):
	}
}
