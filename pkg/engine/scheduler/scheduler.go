// Package scheduler runs lifecycle engines asynchronously. A worker pool
// drains a bounded job queue so engine runs never block the request hot
// path, and a periodic scheduler enqueues runs for every tracked session
// so the tiers keep flowing even when nobody triggers them by hand.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/papercomputeco/strata/pkg/engine"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
)

// DefaultInterval is the default periodic run spacing.
const DefaultInterval = 5 * time.Minute

// lifecycleOrder fixes the enqueue order within a tick so earlier
// stages feed later ones. Runners with other names follow, sorted.
var lifecycleOrder = []string{"promotion", "consolidation", "distillation"}

// Runner is one lifecycle engine as the scheduler sees it.
type Runner interface {
	Run(ctx context.Context, sessionID string) (engine.BatchResult, error)
}

// Job is a unit of work for the worker pool to execute against.
type Job struct {
	Engine    string
	SessionID string
}

// Config is the configuration options for the worker pool.
type Config struct {
	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// Interval is the periodic run spacing (defaults to DefaultInterval).
	Interval time.Duration
}

// Pool processes engine runs asynchronously via a worker pool.
type Pool struct {
	runners  map[string]Runner
	queue    chan Job
	interval time.Duration
	logger   *slog.Logger

	wg       sync.WaitGroup
	tickerWg sync.WaitGroup

	mu       sync.Mutex
	sessions map[string]struct{}
	stop     chan struct{}
	ticker   sync.Once
}

// NewPool creates a pool and starts its worker goroutines. runners maps
// engine names to the engines the pool may execute.
func NewPool(runners map[string]Runner, c Config, logger *slog.Logger) (*Pool, error) {
	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	p := &Pool{
		runners:  runners,
		queue:    make(chan Job, c.QueueSize),
		interval: c.Interval,
		logger:   logger,
		sessions: make(map[string]struct{}),
		stop:     make(chan struct{}),
	}

	p.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go p.worker(i)
	}

	return p, nil
}

// Enqueue submits a job for processing by the worker pool. Returns true
// if enqueued, false if the queue is full, resulting in the job being
// dropped.
func (p *Pool) Enqueue(job Job) bool {
	if _, ok := p.runners[job.Engine]; !ok {
		p.logger.Error("job for unknown engine dropped", "engine", job.Engine)
		return false
	}

	select {
	case p.queue <- job:
		p.logger.Debug("engine run queued",
			"engine", job.Engine,
			"session_id", job.SessionID,
		)
		return true
	default:
		p.logger.Error("job not queued, queue full, job dropped",
			"engine", job.Engine,
			"session_id", job.SessionID,
		)
		return false
	}
}

// Track registers a session for periodic engine runs and starts the
// ticker on first use.
func (p *Pool) Track(sessionID string) {
	p.mu.Lock()
	p.sessions[sessionID] = struct{}{}
	p.mu.Unlock()

	p.ticker.Do(func() {
		p.tickerWg.Add(1)
		go p.tickLoop()
	})
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call this during graceful shutdown after the API server has stopped.
// The ticker stops before the queue closes so it can never enqueue into
// a closed channel.
func (p *Pool) Close() {
	close(p.stop)
	p.tickerWg.Wait()
	close(p.queue)
	p.wg.Wait()
}

func (p *Pool) tickLoop() {
	defer p.tickerWg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.enqueueTracked()
		}
	}
}

// enqueueTracked queues every engine against every tracked session, in
// lifecycle order.
func (p *Pool) enqueueTracked() {
	p.mu.Lock()
	sessions := make([]string, 0, len(p.sessions))
	for id := range p.sessions {
		sessions = append(sessions, id)
	}
	p.mu.Unlock()

	for _, sessionID := range sessions {
		for _, name := range p.engineOrder() {
			p.Enqueue(Job{Engine: name, SessionID: sessionID})
		}
	}
}

// engineOrder returns the registered runner names in lifecycle order.
func (p *Pool) engineOrder() []string {
	names := make([]string, 0, len(p.runners))
	staged := make(map[string]struct{}, len(lifecycleOrder))

	for _, name := range lifecycleOrder {
		staged[name] = struct{}{}
		if _, ok := p.runners[name]; ok {
			names = append(names, name)
		}
	}

	var rest []string
	for name := range p.runners {
		if _, ok := staged[name]; !ok {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)

	return append(names, rest...)
}

// worker is the inner worker thread that continuously pulls jobs off the
// jobs queue.
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("engine worker started", "worker_id", id)

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("engine worker stopped", "worker_id", id)
}

func (p *Pool) processJob(job Job) {
	runner := p.runners[job.Engine]

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	result, err := runner.Run(ctx, job.SessionID)
	if err != nil {
		p.logger.Error("async engine run failed",
			"engine", job.Engine,
			"session_id", job.SessionID,
			"error", err,
		)
		return
	}

	p.logger.Info("engine run finished",
		"engine", job.Engine,
		"session_id", job.SessionID,
		"processed", result.Processed,
		"skipped", result.Skipped,
		"failed", result.Failed,
	)
}
