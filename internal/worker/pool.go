// Package worker provides the bounded pool that executes scheduled crawl
// runs and other background tasks.
package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonesrussell/newsflow/internal/logger"
)

// PoolState represents the current state of the pool.
type PoolState int32

const (
	// PoolStateStopped means the pool is not running.
	PoolStateStopped PoolState = iota

	// PoolStateRunning means the pool is actively executing tasks.
	PoolStateRunning

	// PoolStateDraining means the pool is shutting down gracefully.
	PoolStateDraining

	percentageMultiplier = 100
)

// String returns the string representation of a pool state.
func (s PoolState) String() string {
	switch s {
	case PoolStateStopped:
		return "stopped"
	case PoolStateRunning:
		return "running"
	case PoolStateDraining:
		return "draining"
	default:
		return "unknown"
	}
}

// Task is one unit of background work.
type Task struct {
	ID string
	Fn func(ctx context.Context) error
}

// Config tunes the pool.
type Config struct {
	// PoolSize bounds concurrent tasks. Default 10.
	PoolSize int
	// TaskTimeout caps one task's runtime; zero means no cap.
	TaskTimeout time.Duration
	// DrainTimeout bounds how long Stop waits for in-flight tasks.
	DrainTimeout time.Duration
}

const (
	defaultPoolSize     = 10
	defaultDrainTimeout = 30 * time.Second
)

func (c *Config) applyDefaults() {
	if c.PoolSize <= 0 {
		c.PoolSize = defaultPoolSize
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = defaultDrainTimeout
	}
}

// Pool executes tasks with bounded concurrency via a semaphore.
type Pool struct {
	config Config
	logger logger.Logger
	state  atomic.Int32
	sem    chan struct{}
	wg     sync.WaitGroup
	stopCh chan struct{}

	tasksExecuted  atomic.Int64
	tasksSucceeded atomic.Int64
	tasksFailed    atomic.Int64
}

// NewPool creates a stopped pool.
func NewPool(cfg Config, log logger.Logger) *Pool {
	cfg.applyDefaults()
	p := &Pool{
		config: cfg,
		logger: log,
		sem:    make(chan struct{}, cfg.PoolSize),
		stopCh: make(chan struct{}),
	}
	p.state.Store(int32(PoolStateStopped))
	return p
}

// Start marks the pool running.
func (p *Pool) Start() error {
	if !p.state.CompareAndSwap(int32(PoolStateStopped), int32(PoolStateRunning)) {
		return errors.New("pool is already running")
	}
	p.logger.Info("worker pool started", logger.Int("pool_size", p.config.PoolSize))
	return nil
}

// Stop drains the pool: no new tasks are accepted and in-flight tasks get
// until the drain timeout (or ctx) to finish.
func (p *Pool) Stop(ctx context.Context) error {
	if !p.state.CompareAndSwap(int32(PoolStateRunning), int32(PoolStateDraining)) {
		return errors.New("pool is not running")
	}

	p.logger.Info("worker pool draining")
	close(p.stopCh)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
	case <-ctx.Done():
		p.logger.Warn("worker pool stop timed out")
	case <-time.After(p.config.DrainTimeout):
		p.logger.Warn("worker pool drain timeout exceeded")
	}

	p.state.Store(int32(PoolStateStopped))
	return nil
}

// Submit runs the task on the pool, blocking while all slots are busy.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	if p.State() != PoolStateRunning {
		return errors.New("pool is not running")
	}
	if task.Fn == nil {
		return errors.New("task has no function")
	}

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.stopCh:
		return errors.New("pool is stopping")
	}

	p.run(ctx, task)
	return nil
}

// TrySubmit runs the task if a slot is free, returning false otherwise.
func (p *Pool) TrySubmit(ctx context.Context, task Task) (bool, error) {
	if p.State() != PoolStateRunning {
		return false, errors.New("pool is not running")
	}
	if task.Fn == nil {
		return false, errors.New("task has no function")
	}

	select {
	case p.sem <- struct{}{}:
	default:
		return false, nil
	}

	p.run(ctx, task)
	return true, nil
}

// run executes the task on its own goroutine; the caller already holds a
// semaphore slot.
func (p *Pool) run(ctx context.Context, task Task) {
	p.wg.Add(1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.tasksExecuted.Add(1)
				p.tasksFailed.Add(1)
				p.logger.Error("task panicked",
					logger.String("task_id", task.ID),
					logger.Any("panic", r),
				)
			}
			<-p.sem
			p.wg.Done()
		}()

		taskCtx := ctx
		if p.config.TaskTimeout > 0 {
			var cancel context.CancelFunc
			taskCtx, cancel = context.WithTimeout(ctx, p.config.TaskTimeout)
			defer cancel()
		}

		start := time.Now()
		err := task.Fn(taskCtx)

		p.tasksExecuted.Add(1)
		if err != nil {
			p.tasksFailed.Add(1)
			p.logger.Warn("task failed",
				logger.String("task_id", task.ID),
				logger.Duration("elapsed", time.Since(start)),
				logger.Error(err),
			)
			return
		}
		p.tasksSucceeded.Add(1)
		p.logger.Debug("task finished",
			logger.String("task_id", task.ID),
			logger.Duration("elapsed", time.Since(start)),
		)
	}()
}

// State returns the current pool state.
func (p *Pool) State() PoolState {
	return PoolState(p.state.Load())
}

// IsRunning returns true if the pool is running.
func (p *Pool) IsRunning() bool {
	return p.State() == PoolStateRunning
}

// Size returns the pool size.
func (p *Pool) Size() int {
	return p.config.PoolSize
}

// BusyCount returns the number of occupied slots.
func (p *Pool) BusyCount() int {
	return len(p.sem)
}

// IdleCount returns the number of free slots.
func (p *Pool) IdleCount() int {
	return p.Size() - p.BusyCount()
}

// PoolStats holds point-in-time pool statistics.
type PoolStats struct {
	State          PoolState `json:"state"`
	PoolSize       int       `json:"pool_size"`
	BusyWorkers    int       `json:"busy_workers"`
	IdleWorkers    int       `json:"idle_workers"`
	TasksExecuted  int64     `json:"tasks_executed"`
	TasksSucceeded int64     `json:"tasks_succeeded"`
	TasksFailed    int64     `json:"tasks_failed"`
}

// Stats returns pool statistics.
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		State:          p.State(),
		PoolSize:       p.config.PoolSize,
		BusyWorkers:    p.BusyCount(),
		IdleWorkers:    p.IdleCount(),
		TasksExecuted:  p.tasksExecuted.Load(),
		TasksSucceeded: p.tasksSucceeded.Load(),
		TasksFailed:    p.tasksFailed.Load(),
	}
}

// SuccessRate returns the success rate as a percentage.
func (s PoolStats) SuccessRate() float64 {
	if s.TasksExecuted == 0 {
		return 0
	}
	return float64(s.TasksSucceeded) / float64(s.TasksExecuted) * percentageMultiplier
}

// Utilization returns slot occupancy as a percentage.
func (s PoolStats) Utilization() float64 {
	if s.PoolSize == 0 {
		return 0
	}
	return float64(s.BusyWorkers) / float64(s.PoolSize) * percentageMultiplier
}
