package scheduler

import "time"

// Option configures the scheduler.
type Option func(*Scheduler)

// WithCheckInterval sets how often the poll ticker looks for due jobs.
func WithCheckInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.checkInterval = d
		}
	}
}

// WithMisfireGrace sets how late a due slot may fire before it is skipped
// and rescheduled instead.
func WithMisfireGrace(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.misfireGrace = d
		}
	}
}

// WithNowFunc replaces the clock, used by tests.
func WithNowFunc(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}
