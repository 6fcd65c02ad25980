// Package session owns the per-voice-channel transcription session: routing
// incoming frames to per-speaker buffers, feeding the shared worker pool, and
// dispatching attributed results to the output sink.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/DuckArrow/discord-scribe/internal/audio"
	"github.com/DuckArrow/discord-scribe/internal/store"
	"github.com/DuckArrow/discord-scribe/internal/stt"
)

// State is the coordinator lifecycle state.
type State int

const (
	Idle State = iota
	Active
	Draining
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Draining:
		return "draining"
	default:
		return "idle"
	}
}

// Sink receives attributed transcript lines. It may enforce its own maximum
// message length; the coordinator never assumes unlimited size.
type Sink interface {
	Send(speakerName, text string) error
}

// Recorder persists transcript records durably. Calls are best-effort and
// never block dispatch.
type Recorder interface {
	Append(sessionID string, rec store.Record) error
}

// Config tunes one coordinator. Byte sizes refer to engine-format audio
// (16kHz mono 16-bit PCM).
type Config struct {
	// ChunkBytes is the fixed chunk size cut from a speaker's accumulator.
	ChunkBytes int

	// OverlapBytes is re-read behind the cursor on each cut so words
	// spanning a chunk boundary appear in both chunks.
	OverlapBytes int

	// SilenceAfter is how long a speaker must stay silent before their
	// utterance is considered ended.
	SilenceAfter time.Duration

	// VADAggressiveness is the WebRTC VAD mode (0..3).
	VADAggressiveness int

	// ChunkInterval is the cadence of the periodic TryTakeChunk sweep.
	ChunkInterval time.Duration

	// DispatchInterval is the cadence of result polling and output I/O.
	DispatchInterval time.Duration

	// DrainTimeout bounds how long Stop waits for in-flight transcriptions.
	DrainTimeout time.Duration

	// NewGate overrides speech-gate construction; used by tests. When nil a
	// WebRTC gate with VADAggressiveness is created per speaker.
	NewGate func() (audio.SpeechDetector, error)
}

type speakerState struct {
	speaker audio.Speaker
	buf     *audio.SpeakerBuffer
}

// Coordinator owns one active session for one voice channel.
//
// Lifecycle: Idle → Active (Start) → Draining (Stop) → Idle. Per-speaker
// state is owned exclusively by the coordinator; the transport delivers one
// frame at a time per speaker, and departures are processed only after that
// speaker's last frame.
type Coordinator struct {
	id       string
	pool     *stt.Pool
	registry *Registry
	sink     Sink
	recorder Recorder
	cfg      Config
	logger   zerolog.Logger

	mu       sync.Mutex
	state    State
	speakers map[string]*speakerState

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an Idle coordinator. recorder may be nil.
func New(id string, pool *stt.Pool, registry *Registry, sink Sink, recorder Recorder, cfg Config) *Coordinator {
	return &Coordinator{
		id:       id,
		pool:     pool,
		registry: registry,
		sink:     sink,
		recorder: recorder,
		cfg:      cfg,
		logger:   log.With().Str("session_id", id).Logger(),
		state:    Idle,
		speakers: make(map[string]*speakerState),
	}
}

// ID returns the session identifier.
func (c *Coordinator) ID() string { return c.id }

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Degraded reports whether the session runs capture-only because no speech
// engine is loaded.
func (c *Coordinator) Degraded() bool { return c.pool.Degraded() }

// PendingTasks returns the number of this session's chunks still queued or
// being transcribed.
func (c *Coordinator) PendingTasks() int { return c.pool.Pending(c.id) }

// SpeakerCount returns the number of speakers currently tracked.
func (c *Coordinator) SpeakerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.speakers)
}

// Start transitions Idle → Active, registers the output sink for result
// routing and launches the chunk and dispatch timers. A session with a
// missing engine still starts; it just produces no transcriptions.
func (c *Coordinator) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Idle {
		return fmt.Errorf("session %s already %s", c.id, c.state)
	}
	c.state = Active
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.registry.register(c.id, c.sink, c.recorder)

	c.wg.Add(2)
	go c.chunkLoop()
	go c.dispatchLoop()

	c.logger.Info().
		Bool("degraded", c.Degraded()).
		Int("chunk_bytes", c.cfg.ChunkBytes).
		Int("overlap_bytes", c.cfg.OverlapBytes).
		Msg("Session started")
	return nil
}

// OnAudioFrame folds one transport frame into the speaker's buffer. Active
// only; all work here is cheap in-memory computation, transcription happens
// on the pool's workers.
func (c *Coordinator) OnAudioFrame(frame audio.Frame) {
	c.mu.Lock()
	if c.state != Active {
		c.mu.Unlock()
		return
	}
	ss, ok := c.speakers[frame.Speaker.ID]
	if !ok {
		ss = &speakerState{
			speaker: frame.Speaker,
			buf:     audio.NewSpeakerBuffer(c.newGate(), c.cfg.SilenceAfter),
		}
		c.speakers[frame.Speaker.ID] = ss
		c.logger.Debug().Str("speaker_id", frame.Speaker.ID).Msg("Tracking new speaker")
	}
	utteranceEnded := ss.buf.AddFrame(frame.Samples, audio.SourceChannels, audio.SourceSampleRate, frame.CapturedAt)
	var flushed []byte
	if utteranceEnded {
		flushed = ss.buf.FlushRemaining()
	}
	speaker := ss.speaker
	c.mu.Unlock()

	if len(flushed) > 0 {
		c.submit(speaker, flushed)
	}
}

// OnSpeakerDeparted flushes and submits a departing speaker's residual audio
// as a final task and stops tracking them. Other speakers are unaffected.
func (c *Coordinator) OnSpeakerDeparted(speakerID string) {
	c.mu.Lock()
	if c.state != Active {
		c.mu.Unlock()
		return
	}
	ss, ok := c.speakers[speakerID]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.speakers, speakerID)
	flushed := ss.buf.FlushRemaining()
	speaker := ss.speaker
	c.mu.Unlock()

	c.logger.Info().Str("speaker_id", speakerID).Int("residual_bytes", len(flushed)).
		Msg("Speaker departed")
	if len(flushed) > 0 {
		c.submit(speaker, flushed)
	}
}

// PollAndDispatch drains every available result from the shared pool and
// sends each to the sink registered for its session, in retrieval order.
// Results of one speaker may arrive out of submission order; no re-sorting
// happens here. Returns the number of results dispatched.
func (c *Coordinator) PollAndDispatch() int {
	n := 0
	for {
		res, ok := c.pool.PollResult()
		if !ok {
			return n
		}
		n++
		c.registry.dispatch(res)
	}
}

// Stop transitions Active → Draining → Idle. Remaining speaker audio is
// flushed into final tasks, then in-flight transcriptions are awaited up to
// DrainTimeout; stragglers are abandoned and logged as such. Any results
// still queued are dispatched before the session releases its resources.
func (c *Coordinator) Stop() error {
	c.mu.Lock()
	if c.state != Active {
		c.mu.Unlock()
		return fmt.Errorf("session %s not active", c.id)
	}
	c.state = Draining
	remaining := c.speakers
	c.speakers = make(map[string]*speakerState)
	c.mu.Unlock()

	for _, ss := range remaining {
		if flushed := ss.buf.FlushRemaining(); len(flushed) > 0 {
			c.submit(ss.speaker, flushed)
		}
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), c.cfg.DrainTimeout)
	abandoned := c.pool.Drain(drainCtx, c.id)
	cancel()
	if abandoned > 0 {
		// Abandoned, not failed: these tasks never finished inside the
		// drain window and will not be retried.
		c.logger.Warn().Int("abandoned_tasks", abandoned).
			Dur("drain_timeout", c.cfg.DrainTimeout).
			Msg("Abandoning in-flight transcriptions")
	}

	dispatched := c.PollAndDispatch()

	c.cancel()
	c.wg.Wait()
	c.registry.unregister(c.id)

	c.mu.Lock()
	c.state = Idle
	c.mu.Unlock()

	c.logger.Info().Int("final_dispatched", dispatched).Msg("Session stopped")
	return nil
}

func (c *Coordinator) submit(speaker audio.Speaker, chunk []byte) {
	task := stt.NewTask(c.id, speaker, chunk)
	if err := c.pool.Submit(task); err != nil {
		c.logger.Warn().Err(err).Str("speaker_id", speaker.ID).Msg("Failed to submit chunk")
		return
	}
	c.logger.Debug().
		Str("task_id", task.ID.String()).
		Str("speaker_id", speaker.ID).
		Int("bytes", len(chunk)).
		Msg("Submitted chunk")
}

// chunkLoop runs the fixed-cadence TryTakeChunk sweep so long continuous
// speech is transcribed incrementally instead of waiting for silence.
func (c *Coordinator) chunkLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.ChunkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			type cut struct {
				speaker audio.Speaker
				chunk   []byte
			}
			var cuts []cut
			c.mu.Lock()
			for _, ss := range c.speakers {
				if chunk := ss.buf.TryTakeChunk(c.cfg.ChunkBytes, c.cfg.OverlapBytes); chunk != nil {
					cuts = append(cuts, cut{ss.speaker, chunk})
				}
			}
			c.mu.Unlock()
			for _, cu := range cuts {
				c.submit(cu.speaker, cu.chunk)
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// dispatchLoop is the only place that performs output I/O while the session
// is Active, keeping the sink free of concurrent writes.
func (c *Coordinator) dispatchLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.DispatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.PollAndDispatch()
		case <-c.ctx.Done():
			return
		}
	}
}

// newGate builds a speech gate for one speaker. Gate construction failure
// degrades to the RMS-only classifier rather than refusing audio.
func (c *Coordinator) newGate() audio.SpeechDetector {
	if c.cfg.NewGate != nil {
		gate, err := c.cfg.NewGate()
		if err == nil {
			return gate
		}
		c.logger.Warn().Err(err).Msg("Custom gate construction failed, using RMS fallback")
		return &audio.Gate{}
	}
	gate, err := audio.NewGate(c.cfg.VADAggressiveness)
	if err != nil {
		c.logger.Warn().Err(err).Msg("WebRTC VAD unavailable, using RMS fallback")
		return &audio.Gate{}
	}
	return gate
}
