package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lukasbauer/speechio/internal/packet"
)

const azureWSURL = "wss://%s.stt.speech.microsoft.com/speech/recognition/conversation/cognitiveservices/v1"

// Config holds the recognizer settings. Zero-valued timing fields get
// production defaults; tests shrink them.
type Config struct {
	APIKey   string
	Region   string // e.g. "westeurope"
	Language string // e.g. "en-US"

	// Audio format pushed by the caller. Telephony callers push μ-law
	// at 8kHz; web callers push linear16 at 16kHz.
	Encoding      string
	SampleRate    int
	BitsPerSample int
	Channels      int

	// URL overrides the provider endpoint (tests point it at a local
	// websocket server).
	URL string

	SupervisorInterval time.Duration
	ConnectWait        time.Duration
	ReceiveRetry       time.Duration

	// OnEvent, when set, receives lifecycle notifications ("connected",
	// "reconnected", "queue_desync") with event details. Callers use it
	// to feed an audit trail; it must not block.
	OnEvent func(kind string, data map[string]any)
}

func (c *Config) applyDefaults() {
	if c.Language == "" {
		c.Language = "en-US"
	}
	if c.Encoding == "" {
		c.Encoding = "linear16"
	}
	if c.SampleRate <= 0 {
		c.SampleRate = 8000
	}
	if c.BitsPerSample <= 0 {
		if c.Encoding == "mulaw" {
			c.BitsPerSample = 8
		} else {
			c.BitsPerSample = 16
		}
	}
	if c.Channels <= 0 {
		c.Channels = 1
	}
	if c.SupervisorInterval <= 0 {
		c.SupervisorInterval = 5 * time.Second
	}
	if c.ConnectWait <= 0 {
		c.ConnectWait = 100 * time.Millisecond
	}
	if c.ReceiveRetry <= 0 {
		c.ReceiveRetry = time.Second
	}
}

// configFrame is the handshake re-sent on every (re)connect so the
// recognizer knows the audio format before the first binary frame.
type configFrame struct {
	Type     string      `json:"type"`
	Language string      `json:"language"`
	Format   audioFormat `json:"format"`
}

type audioFormat struct {
	Encoding      string `json:"encoding"`
	SampleRate    int    `json:"samplerate"`
	BitsPerSample int    `json:"bitspersample"`
	Channels      int    `json:"channels"`
}

// speechEvent is one inbound recognition event.
type speechEvent struct {
	Type       string  `json:"type"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// sendFrame is one queued submission for the sender goroutine.
type sendFrame struct {
	audio []byte
	eos   bool
}

// Transcriber is the streaming STT adapter. Create with New, wire up
// with Start, submit frames with Push, consume Results, tear down with
// Stop. Not restartable; create a new instance to restart.
type Transcriber struct {
	cfg    Config
	logger *log.Logger

	conn    atomic.Pointer[websocket.Conn]
	writeMu sync.Mutex

	queue   *packet.Queue
	events  chan speechEvent
	sendCh  chan sendFrame
	results chan Result

	// unitOpen tracks whether the current utterance already has a
	// metadata record enqueued; a final phrase closes it so the next
	// frame opens a fresh unit.
	unitOpen atomic.Bool
	eosSeen  atomic.Bool

	// audioBytes counts bytes submitted, incremented at call time
	// regardless of delivery.
	audioBytes atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc

	startMu  sync.Mutex
	started  bool
	stopOnce sync.Once

	wg       sync.WaitGroup // supervisor, readLoop, emitLoop
	senderWG sync.WaitGroup // the sender goroutine
}

// New creates an unconnected Transcriber.
func New(cfg Config, logger *log.Logger) *Transcriber {
	cfg.applyDefaults()
	return &Transcriber{
		cfg:     cfg,
		logger:  logger,
		queue:   packet.NewQueue(),
		events:  make(chan speechEvent, 100),
		sendCh:  make(chan sendFrame, 256),
		results: make(chan Result, 100),
	}
}

func (t *Transcriber) wsURL() string {
	if t.cfg.URL != "" {
		return t.cfg.URL
	}
	return fmt.Sprintf(azureWSURL+"?language=%s&format=simple", t.cfg.Region, t.cfg.Language)
}

// connect opens the transport and sends the format handshake.
func (t *Transcriber) connect() (*websocket.Conn, error) {
	headers := http.Header{}
	headers.Set("Ocp-Apim-Subscription-Key", t.cfg.APIKey)

	conn, _, err := websocket.DefaultDialer.DialContext(t.ctx, t.wsURL(), headers)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	cfg := configFrame{
		Type:     "speech.config",
		Language: t.cfg.Language,
		Format: audioFormat{
			Encoding:      t.cfg.Encoding,
			SampleRate:    t.cfg.SampleRate,
			BitsPerSample: t.cfg.BitsPerSample,
			Channels:      t.cfg.Channels,
		},
	}
	if err := conn.WriteJSON(cfg); err != nil {
		conn.Close()
		return nil, fmt.Errorf("handshake: %w", err)
	}

	return conn, nil
}

// Start opens the connection and launches the supervisor, sender,
// receive and emit loops.
func (t *Transcriber) Start(ctx context.Context) error {
	t.startMu.Lock()
	defer t.startMu.Unlock()
	if t.started {
		return errors.New("transcriber already started")
	}
	t.started = true

	t.ctx, t.cancel = context.WithCancel(ctx)

	conn, err := t.connect()
	if err != nil {
		t.logger.Printf("transcribe: initial connect failed, supervisor will retry: %v", err)
	} else {
		t.conn.Store(conn)
		t.notify("connected", nil)
	}

	t.wg.Add(3)
	go t.supervise()
	go t.readLoop()
	go t.emitLoop()

	t.senderWG.Add(1)
	go t.sender()

	return nil
}

// Stop cancels the send path, awaits its acknowledgment, then closes
// and clears the connection handle. Idempotent; safe on a never-started
// adapter and on a dead connection.
func (t *Transcriber) Stop() {
	t.startMu.Lock()
	started := t.started
	t.startMu.Unlock()
	if !started {
		return
	}

	t.stopOnce.Do(func() {
		t.cancel()
		t.senderWG.Wait()

		if conn := t.conn.Swap(nil); conn != nil {
			t.writeMu.Lock()
			_ = conn.WriteJSON(map[string]string{"type": "speech.endStream"})
			t.writeMu.Unlock()
			_ = conn.Close()
		}

		t.wg.Wait()
		close(t.results)
	})
}

// Results returns the ordered result stream, closed by Stop.
func (t *Transcriber) Results() <-chan Result {
	return t.results
}

// TranscribedBytes reports the running count of audio bytes submitted.
func (t *Transcriber) TranscribedBytes() int64 {
	return t.audioBytes.Load()
}

// AudioSeconds converts the byte counter to seconds of audio using the
// configured format. Used for usage metering.
func (t *Transcriber) AudioSeconds() float64 {
	bytesPerSecond := t.cfg.SampleRate * t.cfg.BitsPerSample / 8 * t.cfg.Channels
	if bytesPerSecond == 0 {
		return 0
	}
	return float64(t.audioBytes.Load()) / float64(bytesPerSecond)
}

// Push submits one audio frame. Fire and forget: frames are queued for
// a background sender and never block the caller. The first frame of
// an utterance opens a logical unit: its metadata gets a request id
// stamped and is enqueued before the frame is written. A frame whose
// metadata carries EndOfInput closes the send path for good. Call only
// after Start.
func (t *Transcriber) Push(audio []byte, meta *packet.Meta) {
	if t.eosSeen.Load() {
		t.logger.Printf("transcribe: frame after end of input dropped")
		return
	}

	t.audioBytes.Add(int64(len(audio)))

	if t.unitOpen.CompareAndSwap(false, true) {
		if meta.RequestID == "" {
			meta.RequestID = uuid.NewString()
		}
		meta.SubmittedAt = time.Now().UTC()
		t.queue.Enqueue(meta)
	}

	eos := meta.EndOfInput
	if eos {
		t.eosSeen.Store(true)
	}

	select {
	case t.sendCh <- sendFrame{audio: audio, eos: eos}:
	default:
		// Submission is backpressure-free; a full queue means the
		// connection has been down too long and the frame is stale.
		t.logger.Printf("transcribe: send queue full, dropping %d byte frame", len(audio))
	}
}

// sender is the single consumer of the send queue. One writer keeps
// frame order intact; its cancellation is acknowledged via senderWG
// before Stop closes the connection.
func (t *Transcriber) sender() {
	defer t.senderWG.Done()

	for {
		var frame sendFrame
		select {
		case <-t.ctx.Done():
			return
		case frame = <-t.sendCh:
		}

		// Wait, cancellably, for a live handle.
		for t.conn.Load() == nil {
			select {
			case <-t.ctx.Done():
				return
			case <-time.After(t.cfg.ConnectWait):
			}
		}

		if len(frame.audio) > 0 {
			if err := t.writeBinary(frame.audio); err != nil {
				t.logger.Printf("transcribe: send failed: %v", err)
			}
		}

		if frame.eos {
			// No further frames will arrive; tell the service to
			// finish the session and retire the send path.
			t.writeMu.Lock()
			if conn := t.conn.Load(); conn != nil {
				_ = conn.WriteJSON(map[string]string{"type": "speech.endStream"})
			}
			t.writeMu.Unlock()
			return
		}
	}
}

func (t *Transcriber) writeBinary(audio []byte) error {
	conn := t.conn.Load()
	if conn == nil {
		return errors.New("not connected")
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return conn.WriteMessage(websocket.BinaryMessage, audio)
}

// supervise keeps the connection alive, reconnecting (with a fresh
// handshake) when the handle is absent. The correlation queue is never
// touched by a reconnect.
func (t *Transcriber) supervise() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.cfg.SupervisorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
		}

		if t.conn.Load() != nil {
			continue
		}

		conn, err := t.connect()
		if err != nil {
			t.logger.Printf("transcribe: reconnect failed: %v", err)
			continue
		}
		if !t.conn.CompareAndSwap(nil, conn) {
			conn.Close()
			continue
		}
		t.logger.Printf("transcribe: connection re-established")
		t.notify("reconnected", nil)
	}
}

// readLoop bridges recognition events into the emit loop. Errors mark
// the handle dead and pause briefly; they never terminate the
// caller-facing sequence.
func (t *Transcriber) readLoop() {
	defer t.wg.Done()

	for {
		if t.ctx.Err() != nil {
			return
		}

		conn := t.conn.Load()
		if conn == nil {
			t.sleep(t.cfg.ReceiveRetry)
			continue
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			if t.ctx.Err() != nil {
				return
			}
			t.logger.Printf("transcribe: read error: %v", err)
			t.conn.CompareAndSwap(conn, nil)
			t.sleep(t.cfg.ReceiveRetry)
			continue
		}

		var ev speechEvent
		if err := json.Unmarshal(msg, &ev); err != nil {
			t.logger.Printf("transcribe: skipping malformed event: %v", err)
			continue
		}

		switch ev.Type {
		case "speech.hypothesis", "speech.phrase", "session.stopped":
			select {
			case <-t.ctx.Done():
				return
			case t.events <- ev:
			}
		case "speech.startDetected", "speech.endDetected", "session.started":
			// Lifecycle notifications with no result payload.
		default:
			t.logger.Printf("transcribe: ignoring event type %q", ev.Type)
		}
	}
}

// emitLoop is the result path: it attaches metadata in FIFO submission
// order and maintains first-chunk / end-of-stream bookkeeping.
func (t *Transcriber) emitLoop() {
	defer t.wg.Done()

	var active *packet.Meta
	firstChunkPending := true

	for {
		var ev speechEvent
		select {
		case <-t.ctx.Done():
			return
		case ev = <-t.events:
		}

		if m, ok := t.queue.Dequeue(); ok {
			active = m
		} else if active == nil {
			t.logger.Printf("transcribe: dropping event with no pending unit")
			t.notify("queue_desync", map[string]any{"reason": "no_pending_unit"})
			continue
		} else {
			t.logger.Printf("transcribe: correlation queue empty, reusing metadata for %s", active.RequestID)
		}

		final := ev.Type == "session.stopped"

		res := Result{
			Text:       ev.Text,
			Confidence: ev.Confidence,
			Meta:       active,
		}
		switch {
		case final:
			res.Kind = KindClosed
			res.EndOfStream = true
			active.EndOfStream = true
		case ev.Type == "speech.phrase":
			res.Kind = KindFinal
		default:
			res.Kind = KindInterim
		}

		if firstChunkPending && !final {
			res.IsFirstChunk = true
			active.IsFirstChunk = true
			firstChunkPending = false
		}

		// Bookkeeping updates happen before the emission is visible,
		// so a caller reacting to a final result immediately opens a
		// fresh logical unit.
		if res.Kind == KindFinal {
			t.unitOpen.Store(false)
			firstChunkPending = true
		}
		if final || active.EndOfInput {
			firstChunkPending = true
		}

		select {
		case <-t.ctx.Done():
			return
		case t.results <- res:
		}
	}
}

func (t *Transcriber) notify(kind string, data map[string]any) {
	if t.cfg.OnEvent != nil {
		t.cfg.OnEvent(kind, data)
	}
}

func (t *Transcriber) sleep(d time.Duration) {
	select {
	case <-t.ctx.Done():
	case <-time.After(d):
	}
}
