// Package synth is the text-to-speech half of the streaming speech
// adapter pair: it feeds text into ElevenLabs' stream-input websocket
// and reassembles the asynchronous audio frames into an ordered,
// metadata-tagged packet stream. The service returns no correlation
// ids, so a FIFO queue of metadata records links each submission to
// its results; this holds as long as submissions are sequential and
// the transport preserves order, which the websocket does.
package synth

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
	"github.com/lukasbauer/speechio/internal/audio"
	"github.com/lukasbauer/speechio/internal/cache"
	"github.com/lukasbauer/speechio/internal/packet"
)

// Config holds the synthesizer settings. Zero-valued timing fields get
// production defaults; tests shrink them.
type Config struct {
	APIKey       string
	VoiceID      string // ElevenLabs voice ID
	ModelID      string // e.g. "eleven_turbo_v2_5"
	OutputFormat string // provider output, e.g. "ulaw_8000"
	Stability    float64
	Similarity   float64

	// ChunkBudget caps outbound text frame size in characters.
	ChunkBudget int

	// URL overrides the provider endpoint (tests point it at a local
	// websocket server).
	URL string

	// SupervisorInterval is how often the liveness check runs.
	SupervisorInterval time.Duration
	// ConnectWait is the poll delay while a sender waits for a live
	// connection.
	ConnectWait time.Duration
	// ReceiveRetry is the pause after a receive error before retrying.
	ReceiveRetry time.Duration

	// Cache, when set, is checked before the network round trip and
	// populated when a unit's audio completes.
	Cache cache.Store

	// OnEvent, when set, receives lifecycle notifications ("connected",
	// "reconnected", "queue_desync") with event details. Callers use it
	// to feed an audit trail; it must not block.
	OnEvent func(kind string, data map[string]any)
}

func (c *Config) applyDefaults() {
	if c.ModelID == "" {
		c.ModelID = "eleven_turbo_v2_5"
	}
	if c.VoiceID == "" {
		c.VoiceID = "21m00Tcm4TlvDq8ikWAM" // Rachel
	}
	if c.OutputFormat == "" {
		c.OutputFormat = "ulaw_8000"
	}
	if c.Stability == 0 {
		c.Stability = 0.5
	}
	if c.Similarity == 0 {
		c.Similarity = 0.8
	}
	if c.ChunkBudget <= 0 {
		c.ChunkBudget = 400
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

// event is one inbound unit from the provider, bridged from the read
// loop (or a cache replay) into the emit loop.
type event struct {
	data  []byte
	final bool // end-of-unit sentinel
}

// Synthesizer is the streaming TTS adapter. Create with New, wire up
// with Start, submit with Speak, consume Results, tear down with Stop.
// A stopped Synthesizer cannot be restarted; create a new one.
type Synthesizer struct {
	cfg    Config
	logger *log.Logger

	// conn is the single shared connection handle. nil means
	// disconnected; it is replaced by swap, never mutated in place.
	conn    atomic.Pointer[websocket.Conn]
	writeMu sync.Mutex

	queue      *packet.Queue
	events     chan event
	results    chan packet.Packet
	normalizer audio.Normalizer

	// chars counts characters submitted, incremented at call time
	// regardless of delivery. Billing reflects intent.
	chars atomic.Int64

	// submitSeq numbers units in submission order; doneSeq counts
	// units whose sentinel has been emitted. A cached replay for unit
	// n may enter the event path only once doneSeq reaches n-1, so it
	// can never be correlated against an earlier in-flight unit.
	submitSeq atomic.Int64
	doneSeq   atomic.Int64

	pendingMu    sync.Mutex
	pendingCache map[*packet.Meta]*cacheFill

	ctx    context.Context
	cancel context.CancelFunc

	startMu  sync.Mutex
	started  bool
	stopOnce sync.Once

	wg       sync.WaitGroup // supervisor, readLoop, emitLoop
	senderWG sync.WaitGroup // in-flight Speak senders
}

type cacheFill struct {
	key string
	buf []byte
}

// New creates an unconnected Synthesizer.
func New(cfg Config, logger *log.Logger) *Synthesizer {
	cfg.applyDefaults()
	return &Synthesizer{
		cfg:          cfg,
		logger:       logger,
		queue:        packet.NewQueue(),
		events:       make(chan event, 100),
		results:      make(chan packet.Packet, 100),
		normalizer:   audio.Converter{},
		pendingCache: make(map[*packet.Meta]*cacheFill),
	}
}

// Start opens the connection and launches the supervisor, receive and
// emit loops. The initial connect may fail; the supervisor keeps
// retrying, so Start only errors on misuse.
func (s *Synthesizer) Start(ctx context.Context) error {
	s.startMu.Lock()
	defer s.startMu.Unlock()
	if s.started {
		return errors.New("synthesizer already started")
	}
	s.started = true

	s.ctx, s.cancel = context.WithCancel(ctx)

	conn, err := s.connect()
	if err != nil {
		s.logger.Printf("synth: initial connect failed, supervisor will retry: %v", err)
	} else {
		s.conn.Store(conn)
		s.notify("connected", nil)
	}

	s.wg.Add(3)
	go s.supervise()
	go s.readLoop()
	go s.emitLoop()

	return nil
}

// Stop cancels any in-flight send, waits for its acknowledgment, then
// closes and clears the connection handle. Idempotent; safe on a
// never-started adapter and on a dead connection.
func (s *Synthesizer) Stop() {
	s.startMu.Lock()
	started := s.started
	s.startMu.Unlock()
	if !started {
		return
	}

	s.stopOnce.Do(func() {
		s.cancel()

		// Senders must acknowledge cancellation before the handle
		// closes, so nothing writes to a closing connection.
		s.senderWG.Wait()

		if conn := s.conn.Swap(nil); conn != nil {
			// Best-effort goodbye so the service flushes and closes
			// cleanly. Ignored if the connection is already dead.
			s.writeMu.Lock()
			_ = conn.WriteJSON(textFrame{Text: ""})
			s.writeMu.Unlock()
			_ = conn.Close()
		}

		s.wg.Wait()
		close(s.results)
	})
}

// Results returns the ordered packet stream. It is a single-pass
// sequence for the adapter's lifetime and is closed by Stop.
func (s *Synthesizer) Results() <-chan packet.Packet {
	return s.results
}

// SynthesizedCharacters reports the running character count submitted
// to this instance.
func (s *Synthesizer) SynthesizedCharacters() int64 {
	return s.chars.Load()
}

// Speak submits one logical unit of text. Fire and forget: the send
// happens on a background goroutine once the connection is live, and
// the unit's audio arrives on Results tagged with meta. The metadata
// record is enqueued before any chunk is sent, so the result path can
// never observe audio for an unrecorded unit. Call only after Start.
func (s *Synthesizer) Speak(text string, meta *packet.Meta) {
	s.chars.Add(int64(utf8.RuneCountInString(text)))
	meta.SubmittedAt = time.Now().UTC()

	if s.cfg.Cache != nil && text != "" {
		key := cache.Key(text, s.cfg.VoiceID, s.cfg.ModelID, s.cfg.OutputFormat)
		if hit, ok, err := s.cfg.Cache.Get(s.ctx, key); err != nil {
			s.logger.Printf("synth: cache get failed: %v", err)
		} else if ok {
			seq := s.submitSeq.Add(1)
			s.senderWG.Add(1)
			go s.replayCached(seq, meta, hit)
			return
		}
		s.pendingMu.Lock()
		s.pendingCache[meta] = &cacheFill{key: key}
		s.pendingMu.Unlock()
	}

	s.submitSeq.Add(1)
	s.queue.Enqueue(meta)
	s.senderWG.Add(1)
	go s.send(text)
}

// replayCached feeds cached audio through the normal event path so
// ordering, first-chunk and sentinel semantics are identical to a
// network round trip. The replay holds until every earlier unit has
// emitted its sentinel, and only then enqueues this unit's metadata;
// doing either sooner would let the emit loop correlate the cached
// audio against an in-flight unit's metadata, or hand that unit's
// trailing events this record.
func (s *Synthesizer) replayCached(seq int64, meta *packet.Meta, hit []byte) {
	defer s.senderWG.Done()

	for s.doneSeq.Load() < seq-1 {
		select {
		case <-s.ctx.Done():
			return
		case <-time.After(s.cfg.ConnectWait):
		}
	}

	s.queue.Enqueue(meta)
	s.deliver(event{data: hit})
	s.deliver(event{data: []byte{0x00}, final: true})
}

// send is the submission path for one unit: wait for a live handle,
// write the text in word-safe chunks, then always write the empty
// flush frame — without it the service buffers short inputs forever.
func (s *Synthesizer) send(text string) {
	defer s.senderWG.Done()

	for s.conn.Load() == nil {
		select {
		case <-s.ctx.Done():
			return
		case <-time.After(s.cfg.ConnectWait):
		}
	}

	for _, chunk := range Chunks(text, s.cfg.ChunkBudget) {
		if err := s.write(textFrame{Text: chunk}); err != nil {
			s.logger.Printf("synth: send failed: %v", err)
			return
		}
	}

	if err := s.write(textFrame{Text: "", Flush: true}); err != nil {
		s.logger.Printf("synth: flush failed: %v", err)
	}
}

func (s *Synthesizer) write(frame textFrame) error {
	conn := s.conn.Load()
	if conn == nil {
		return errors.New("not connected")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteJSON(frame)
}

// emitLoop is the result path: it attaches metadata to each inbound
// event in FIFO submission order, normalizes the payload for the
// unit's target format, and maintains first-chunk and end-of-stream
// bookkeeping.
func (s *Synthesizer) emitLoop() {
	defer s.wg.Done()

	var active *packet.Meta
	firstChunkPending := true

	for {
		var ev event
		select {
		case <-s.ctx.Done():
			return
		case ev = <-s.events:
		}

		if m, ok := s.queue.Dequeue(); ok {
			active = m
		} else if active == nil {
			// Event before any submission: protocol violation, not a
			// crash. Skip it.
			s.logger.Printf("synth: dropping event with no pending unit")
			s.notify("queue_desync", map[string]any{"reason": "no_pending_unit"})
			continue
		} else {
			// Trailing event (usually the sentinel) with an empty
			// queue; reuse the last active record so later units
			// stay in sync.
			s.logger.Printf("synth: correlation queue empty, reusing metadata for %s", active.RequestID)
			// Reuse is expected for the unit's own sentinel; audio
			// beyond the recorded unit is a real correlation slip.
			if !ev.final {
				s.notify("queue_desync", map[string]any{"reason": "metadata_reused", "request_id": active.RequestID})
			}
		}

		data, err := s.normalize(ev.data, active)
		if err != nil {
			s.logger.Printf("synth: normalize failed: %v", err)
			continue
		}

		if !ev.final {
			s.accumulate(active, ev.data)
		}

		pkt := packet.Packet{Data: data, Meta: active}
		if firstChunkPending && !ev.final {
			pkt.IsFirstChunk = true
			active.IsFirstChunk = true
			firstChunkPending = false
		}
		if ev.final {
			pkt.EndOfStream = true
			active.EndOfStream = true
			s.fillCache(active)
			s.doneSeq.Add(1)
		}

		select {
		case <-s.ctx.Done():
			return
		case s.results <- pkt:
		}

		// The sentinel closes the unit; an end-of-input unit closes
		// the conversation. Either way the next unit starts fresh.
		if ev.final || active.EndOfInput {
			firstChunkPending = true
		}
	}
}

// normalize runs every payload, the sentinel included, through the
// format conversion declared on the unit's metadata.
func (s *Synthesizer) normalize(data []byte, meta *packet.Meta) ([]byte, error) {
	if meta.Format == "" || meta.Format == "mulaw" {
		meta.Format = "mulaw"
		return data, nil
	}
	rate := meta.SampleRate
	if rate == 0 {
		rate = 16000
		meta.SampleRate = rate
	}
	return s.normalizer.Normalize(data, 8000, rate)
}

func (s *Synthesizer) notify(kind string, data map[string]any) {
	if s.cfg.OnEvent != nil {
		s.cfg.OnEvent(kind, data)
	}
}

func (s *Synthesizer) accumulate(meta *packet.Meta, raw []byte) {
	s.pendingMu.Lock()
	if fill, ok := s.pendingCache[meta]; ok {
		fill.buf = append(fill.buf, raw...)
	}
	s.pendingMu.Unlock()
}

func (s *Synthesizer) fillCache(meta *packet.Meta) {
	s.pendingMu.Lock()
	fill, ok := s.pendingCache[meta]
	delete(s.pendingCache, meta)
	s.pendingMu.Unlock()

	if !ok || len(fill.buf) == 0 {
		return
	}
	if err := s.cfg.Cache.Set(s.ctx, fill.key, fill.buf); err != nil {
		s.logger.Printf("synth: cache set failed: %v", err)
	}
}
