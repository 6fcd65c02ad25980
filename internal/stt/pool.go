package stt

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// PoolConfig tunes the transcription worker pool.
type PoolConfig struct {
	// Workers is the number of goroutines invoking the engine.
	Workers int

	// Language is the recognition language passed to the engine.
	Language string

	// MinTaskBytes drops tasks shorter than this before the engine is
	// invoked, so near-silence fragments never cost an engine call.
	MinTaskBytes int

	// QueueSize bounds the task and result queues.
	QueueSize int
}

// Pool runs a bounded set of transcription workers over a shared FIFO task
// queue and emits filtered results on a shared FIFO result queue.
//
// One pool is shared by all sessions; tasks and results carry the session ID
// so dispatch routes correctly with multiple concurrent sessions. A nil
// engine puts the pool in degraded mode: tasks are accepted and dropped, so
// sessions still capture audio when the engine failed to load.
//
// No ordering is guaranteed between tasks of different speakers, and results
// for one speaker may complete out of submission order.
type Pool struct {
	engine Engine
	filter *Filter
	cfg    PoolConfig

	tasks   chan Task
	results chan Result

	pending   map[string]int // sessionID -> submitted but not yet finished
	pendingMu sync.Mutex

	// submitMu orders Submit against Stop's close of the task channel.
	submitMu sync.RWMutex
	stopped  bool

	started bool
	mu      sync.Mutex
	wg      sync.WaitGroup
	stop    chan struct{}
}

// NewPool creates a pool around the given engine. engine may be nil for
// degraded (capture-only) operation.
func NewPool(engine Engine, filter *Filter, cfg PoolConfig) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.Workers * 8
	}
	return &Pool{
		engine:  engine,
		filter:  filter,
		cfg:     cfg,
		tasks:   make(chan Task, cfg.QueueSize),
		results: make(chan Result, cfg.QueueSize),
		pending: make(map[string]int),
		stop:    make(chan struct{}),
	}
}

// Degraded reports whether the pool has no working engine.
func (p *Pool) Degraded() bool { return p.engine == nil }

// Start launches the worker goroutines.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return fmt.Errorf("pool already started")
	}
	p.started = true

	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	log.Info().Int("workers", p.cfg.Workers).Bool("degraded", p.Degraded()).
		Msg("Started transcription worker pool")
	return nil
}

// Submit enqueues a task without blocking. When the queue is full the task is
// rejected so the caller's ingestion path stays latency-safe. Submitting to a
// stopped pool is an error, never a panic.
func (p *Pool) Submit(task Task) error {
	p.submitMu.RLock()
	defer p.submitMu.RUnlock()
	if p.stopped {
		return fmt.Errorf("pool stopped, dropping %s chunk of %d bytes", task.Speaker.ID, len(task.PCM))
	}

	p.track(task.SessionID, 1)
	select {
	case p.tasks <- task:
		return nil
	default:
		p.track(task.SessionID, -1)
		return fmt.Errorf("task queue full, dropping %s chunk of %d bytes", task.Speaker.ID, len(task.PCM))
	}
}

// PollResult returns the next available result, or false when the result
// queue is currently empty. It never blocks.
func (p *Pool) PollResult() (Result, bool) {
	select {
	case res := <-p.results:
		return res, true
	default:
		return Result{}, false
	}
}

// Pending returns the number of submitted but unfinished tasks for sessionID.
func (p *Pool) Pending(sessionID string) int {
	return p.pendingFor(sessionID)
}

// Drain blocks until every previously submitted task for sessionID has
// finished, or ctx expires. It returns the number of tasks still pending at
// return, so callers can log abandoned work distinctly from failed work.
func (p *Pool) Drain(ctx context.Context, sessionID string) int {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if n := p.pendingFor(sessionID); n == 0 {
			return 0
		}
		select {
		case <-ctx.Done():
			return p.pendingFor(sessionID)
		case <-ticker.C:
		}
	}
}

// Stop shuts the workers down after the task queue empties.
func (p *Pool) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return
	}
	close(p.stop)

	// No Submit can be mid-send once stopped is set under the write lock.
	p.submitMu.Lock()
	p.stopped = true
	close(p.tasks)
	p.submitMu.Unlock()

	p.wg.Wait()
	p.started = false
	log.Info().Msg("Stopped transcription worker pool")
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	log.Debug().Int("worker_id", id).Msg("transcription worker started")
	defer log.Debug().Int("worker_id", id).Msg("transcription worker stopped")

	for {
		select {
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			p.process(ctx, id, task)
		case <-ctx.Done():
			return
		}
	}
}

// process runs one task end to end. Every exit path decrements the session's
// pending count; a failing task is logged and dropped, never re-queued.
func (p *Pool) process(ctx context.Context, workerID int, task Task) {
	defer p.track(task.SessionID, -1)

	if len(task.PCM) < p.cfg.MinTaskBytes {
		log.Debug().
			Str("session_id", task.SessionID).
			Str("speaker_id", task.Speaker.ID).
			Int("bytes", len(task.PCM)).
			Int("min_bytes", p.cfg.MinTaskBytes).
			Msg("Dropping chunk below minimum length")
		return
	}

	if p.engine == nil {
		log.Debug().
			Str("session_id", task.SessionID).
			Str("speaker_id", task.Speaker.ID).
			Msg("No speech engine loaded, dropping chunk")
		return
	}

	raw, err := p.engine.Transcribe(ctx, task.PCM, p.cfg.Language)
	if err != nil {
		log.Error().Err(err).
			Str("task_id", task.ID.String()).
			Str("session_id", task.SessionID).
			Str("speaker_id", task.Speaker.ID).
			Int("worker_id", workerID).
			Msg("Failed to transcribe chunk")
		return
	}

	text, ok := p.filter.Clean(raw)
	if !ok {
		if raw != "" {
			log.Debug().
				Str("speaker_id", task.Speaker.ID).
				Str("raw", raw).
				Msg("Suppressed hallucinated transcription")
		}
		return
	}

	res := Result{
		ID:         task.ID,
		SessionID:  task.SessionID,
		Speaker:    task.Speaker,
		Text:       text,
		ProducedAt: time.Now(),
	}
	select {
	case p.results <- res:
	case <-ctx.Done():
	case <-p.stop:
	}
}

func (p *Pool) track(sessionID string, delta int) {
	p.pendingMu.Lock()
	p.pending[sessionID] += delta
	if p.pending[sessionID] <= 0 {
		delete(p.pending, sessionID)
	}
	p.pendingMu.Unlock()
}

func (p *Pool) pendingFor(sessionID string) int {
	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()
	return p.pending[sessionID]
}
