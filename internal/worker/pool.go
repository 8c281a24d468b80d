// Package worker runs background tasks on a fixed set of goroutines fed by a
// bounded queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/apperr"
	"github.com/spigell/cv-screener/internal/logger"
)

var ErrStopped = errors.New("worker pool is stopped")

type Task struct {
	ID   uuid.UUID
	Name string
	Run  func(ctx context.Context) error
}

type Pool struct {
	workerCount int
	tasks       chan Task
	wg          sync.WaitGroup
	pending     sync.WaitGroup

	mu      sync.RWMutex
	started bool
	closed  bool

	log *zap.Logger
}

func NewPool(workerCount, queueSize int, log *zap.Logger) *Pool {
	if workerCount <= 0 {
		workerCount = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &Pool{
		workerCount: workerCount,
		tasks:       make(chan Task, queueSize),
		log:         logger.OrNop(log),
	}
}

func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true

	p.log.Info("starting worker pool", zap.Int("worker_count", p.workerCount), zap.Int("queue_size", cap(p.tasks)))
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Submit enqueues t without blocking. It fails with apperr.ErrQueueFull when
// the queue has no room and with ErrStopped after Stop.
func (p *Pool) Submit(t Task) (uuid.UUID, error) {
	if t.Run == nil {
		return uuid.Nil, errors.New("task has no run function")
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return t.ID, ErrStopped
	}

	p.pending.Add(1)
	select {
	case p.tasks <- t:
		return t.ID, nil
	default:
		p.pending.Done()
		p.log.Warn("worker pool queue full, task rejected", zap.String(logger.FieldTaskID, t.ID.String()), zap.String("task", t.Name))
		return t.ID, apperr.New(apperr.ErrQueueFull, "submit task", "queue of %d is full", cap(p.tasks))
	}
}

// Wait blocks until every accepted task has finished or been discarded.
func (p *Pool) Wait() {
	p.pending.Wait()
}

// Stop refuses new tasks, lets workers finish the queue and waits for them.
// Tasks left behind by workers that exited on context cancellation are
// discarded.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	p.log.Info("stopping worker pool")
	p.wg.Wait()

	for t := range p.tasks {
		p.log.Warn("discarding queued task", zap.String(logger.FieldTaskID, t.ID.String()), zap.String("task", t.Name))
		p.pending.Done()
	}
	p.log.Info("worker pool stopped")
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	log := p.log.With(zap.Int("worker_id", id))
	log.Debug("worker started")

	for {
		select {
		case <-ctx.Done():
			log.Debug("worker stopping due to context cancellation")
			return
		case t, ok := <-p.tasks:
			if !ok {
				log.Debug("worker stopping due to closed task queue")
				return
			}
			p.run(ctx, log, t)
		}
	}
}

func (p *Pool) run(ctx context.Context, log *zap.Logger, t Task) {
	defer p.pending.Done()

	log = log.With(zap.String(logger.FieldTaskID, t.ID.String()), zap.String("task", t.Name))
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("task panicked", zap.String("panic", fmt.Sprint(rec)))
		}
	}()

	if err := t.Run(ctx); err != nil {
		log.Error("task failed", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return
	}
	log.Debug("task finished", zap.Duration("elapsed", time.Since(start)))
}
