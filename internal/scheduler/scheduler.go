// Package scheduler runs interval jobs on a poll ticker. Each crawler gets
// one job; execution is delegated to the bounded worker pool.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonesrussell/newsflow/internal/logger"
	"github.com/jonesrussell/newsflow/internal/worker"
)

const (
	defaultCheckInterval = 5 * time.Second
	defaultMisfireGrace  = time.Minute
)

// JobFunc is the body of a scheduled job.
type JobFunc func(ctx context.Context) error

// job is the scheduler's internal record for one interval job.
type job struct {
	id       string
	interval time.Duration
	nextRun  time.Time
	paused   bool
	running  bool
	fn       JobFunc
}

// JobInfo is the externally visible state of one job.
type JobInfo struct {
	ID       string        `json:"id"`
	Interval time.Duration `json:"interval"`
	NextRun  time.Time     `json:"next_run"`
	Paused   bool          `json:"paused"`
	Running  bool          `json:"running"`
}

// Scheduler fires interval jobs. A job whose previous run is still executing
// is skipped, never queued; missed slots coalesce into a single upcoming one.
type Scheduler struct {
	pool   *worker.Pool
	logger logger.Logger

	checkInterval time.Duration
	misfireGrace  time.Duration
	now           func() time.Time

	mu      sync.Mutex
	jobs    map[string]*job
	started bool
	cancel  context.CancelFunc

	tickerWG sync.WaitGroup
	jobWG    sync.WaitGroup
}

// New creates a stopped scheduler on top of the worker pool.
func New(pool *worker.Pool, log logger.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		pool:          pool,
		logger:        log,
		checkInterval: defaultCheckInterval,
		misfireGrace:  defaultMisfireGrace,
		now:           time.Now,
		jobs:          make(map[string]*job),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add registers an interval job. The first run fires one interval from now.
func (s *Scheduler) Add(jobID string, interval time.Duration, fn JobFunc) error {
	if interval <= 0 {
		return fmt.Errorf("job %s has non-positive interval %s", jobID, interval)
	}
	if fn == nil {
		return fmt.Errorf("job %s has no function", jobID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[jobID]; exists {
		return fmt.Errorf("job already scheduled: %s", jobID)
	}
	s.jobs[jobID] = &job{
		id:       jobID,
		interval: interval,
		nextRun:  s.now().Add(interval),
		fn:       fn,
	}
	s.logger.Info("job scheduled",
		logger.String("job_id", jobID),
		logger.Duration("interval", interval),
	)
	return nil
}

// Reschedule changes a job's interval and restarts its countdown.
func (s *Scheduler) Reschedule(jobID string, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("job %s has non-positive interval %s", jobID, interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("job not scheduled: %s", jobID)
	}
	j.interval = interval
	j.nextRun = s.now().Add(interval)
	return nil
}

// Remove unschedules a job. A run already in flight finishes.
func (s *Scheduler) Remove(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[jobID]; !ok {
		return fmt.Errorf("job not scheduled: %s", jobID)
	}
	delete(s.jobs, jobID)
	return nil
}

// Pause keeps the job registered but stops it from firing.
func (s *Scheduler) Pause(jobID string) error {
	return s.setPaused(jobID, true)
}

// Resume reactivates a paused job; its countdown restarts from now.
func (s *Scheduler) Resume(jobID string) error {
	return s.setPaused(jobID, false)
}

func (s *Scheduler) setPaused(jobID string, paused bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("job not scheduled: %s", jobID)
	}
	if j.paused == paused {
		return nil
	}
	j.paused = paused
	if !paused {
		j.nextRun = s.now().Add(j.interval)
	}
	return nil
}

// RunNow fires a one-shot copy of the job immediately without perturbing its
// interval schedule. The copy runs under the id
// <jobID>_immediate_<unix timestamp>.
func (s *Scheduler) RunNow(ctx context.Context, jobID string) (string, error) {
	s.mu.Lock()
	j, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		return "", fmt.Errorf("job not scheduled: %s", jobID)
	}
	if j.running {
		s.mu.Unlock()
		return "", fmt.Errorf("job already running: %s", jobID)
	}
	j.running = true
	fn := j.fn
	s.mu.Unlock()

	oneShotID := fmt.Sprintf("%s_immediate_%d", jobID, s.now().Unix())
	if err := s.submit(ctx, jobID, oneShotID, fn); err != nil {
		s.clearRunning(jobID)
		return "", err
	}
	return oneShotID, nil
}

// NextRunTime reports when the job fires next.
func (s *Scheduler) NextRunTime(jobID string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return time.Time{}, fmt.Errorf("job not scheduled: %s", jobID)
	}
	return j.nextRun, nil
}

// Exists reports whether the job is registered.
func (s *Scheduler) Exists(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[jobID]
	return ok
}

// Jobs lists every registered job ordered by id.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobInfo, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, JobInfo{
			ID:       j.id,
			Interval: j.interval,
			NextRun:  j.nextRun,
			Paused:   j.paused,
			Running:  j.running,
		})
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out
}

// Start launches the poll ticker. Calling Start on a running scheduler is a
// no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.started = true

	s.tickerWG.Add(1)
	go s.poll(ctx)

	s.logger.Info("scheduler started",
		logger.Duration("check_interval", s.checkInterval),
		logger.Duration("misfire_grace", s.misfireGrace),
	)
}

// Stop halts the ticker and waits for in-flight runs until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.cancel()
	s.mu.Unlock()

	s.tickerWG.Wait()

	done := make(chan struct{})
	go func() {
		s.jobWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("scheduler stopped")
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out with jobs in flight")
	}
}

func (s *Scheduler) poll(ctx context.Context) {
	defer s.tickerWG.Done()

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick fires every due job once. A due job whose previous run is still
// executing is skipped; a slot missed by more than the grace period is
// rescheduled without firing.
func (s *Scheduler) tick(ctx context.Context) {
	now := s.now()

	type firing struct {
		jobID string
		fn    JobFunc
	}
	var due []firing

	s.mu.Lock()
	for _, j := range s.jobs {
		if j.paused || now.Before(j.nextRun) {
			continue
		}

		lateness := now.Sub(j.nextRun)
		for !j.nextRun.After(now) {
			j.nextRun = j.nextRun.Add(j.interval)
		}

		if j.running {
			s.logger.Debug("run still in flight, slot skipped", logger.String("job_id", j.id))
			continue
		}
		if lateness > s.misfireGrace {
			s.logger.Warn("misfired slot skipped",
				logger.String("job_id", j.id),
				logger.Duration("lateness", lateness),
			)
			continue
		}

		j.running = true
		due = append(due, firing{jobID: j.id, fn: j.fn})
	}
	s.mu.Unlock()

	for _, f := range due {
		if err := s.submit(ctx, f.jobID, f.jobID, f.fn); err != nil {
			s.clearRunning(f.jobID)
			s.logger.Error("failed to submit job",
				logger.String("job_id", f.jobID),
				logger.Error(err),
			)
		}
	}
}

// submit hands the run to the worker pool and clears the running flag when
// it finishes.
func (s *Scheduler) submit(ctx context.Context, jobID, taskID string, fn JobFunc) error {
	s.jobWG.Add(1)
	err := s.pool.Submit(ctx, worker.Task{
		ID: taskID,
		Fn: func(taskCtx context.Context) error {
			defer s.jobWG.Done()
			defer s.clearRunning(jobID)
			return fn(taskCtx)
		},
	})
	if err != nil {
		s.jobWG.Done()
		return err
	}
	return nil
}

func (s *Scheduler) clearRunning(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[jobID]; ok {
		j.running = false
	}
}
