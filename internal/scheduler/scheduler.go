package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultTick is how often the loop checks for due jobs.
const DefaultTick = time.Second

// JobFunc is the body of a scheduled job.
type JobFunc func(ctx context.Context) error

// JobStatus reports the state of one registered job.
type JobStatus struct {
	Name          string     `json:"name"`
	Spec          string     `json:"spec"`
	NextRunAt     time.Time  `json:"nextRunAt"`
	LastRunAt     *time.Time `json:"lastRunAt,omitempty"`
	LastRunStatus string     `json:"lastRunStatus,omitempty"`
	Runs          int        `json:"runs"`
}

type job struct {
	JobStatus
	schedule cron.Schedule
	run      JobFunc
}

// Scheduler runs registered jobs on cron schedules. Specs accept an optional
// seconds field and descriptors such as "@every 30s" or "@hourly".
type Scheduler struct {
	parser cron.Parser
	logger *slog.Logger
	tick   time.Duration
	now    func() time.Time

	mu     sync.Mutex
	jobs   []*job
	cancel context.CancelFunc
	done   chan struct{}

	inflightMu sync.Mutex
	inflight   map[string]struct{} // job names currently executing (dedup)
}

// NewScheduler creates a new Scheduler. A zero tick uses DefaultTick.
func NewScheduler(logger *slog.Logger, tick time.Duration) *Scheduler {
	if tick <= 0 {
		tick = DefaultTick
	}
	return &Scheduler{
		parser:   cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		logger:   logger,
		tick:     tick,
		now:      func() time.Time { return time.Now().UTC() },
		inflight: make(map[string]struct{}),
	}
}

// Add registers a job. Names must be unique.
func (s *Scheduler) Add(name, spec string, run JobFunc) error {
	schedule, err := s.parser.Parse(spec)
	if err != nil {
		return fmt.Errorf("parse cron expression %q: %w", spec, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.Name == name {
			return fmt.Errorf("job %q already registered", name)
		}
	}
	s.jobs = append(s.jobs, &job{
		JobStatus: JobStatus{Name: name, Spec: spec, NextRunAt: schedule.Next(s.now())},
		schedule:  schedule,
		run:       run,
	})
	return nil
}

// Jobs returns a snapshot of every registered job.
func (s *Scheduler) Jobs() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobStatus, len(s.jobs))
	for i, j := range s.jobs {
		out[i] = j.JobStatus
	}
	return out
}

// Start launches the background scheduling loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	go s.loop(schedCtx, done)
	s.logger.Info("scheduler started", slog.Int("jobs", len(s.Jobs())))
	return nil
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runDue(ctx)
		}
	}
}

// runDue runs every job whose next run time has passed.
func (s *Scheduler) runDue(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	var due []*job
	for _, j := range s.jobs {
		if !j.NextRunAt.After(now) {
			due = append(due, j)
		}
	}
	s.mu.Unlock()

	for _, j := range due {
		if !s.tryAcquire(j.Name) {
			continue // already running (dedup)
		}
		s.runJob(ctx, j, now)
		s.releaseJob(j.Name)
	}
}

// RunNow runs the named job immediately, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	var target *job
	for _, j := range s.jobs {
		if j.Name == name {
			target = j
		}
	}
	s.mu.Unlock()
	if target == nil {
		return fmt.Errorf("job %q not registered", name)
	}
	if !s.tryAcquire(name) {
		return fmt.Errorf("job %q is already running", name)
	}
	defer s.releaseJob(name)
	return s.runJob(ctx, target, s.now())
}

// runJob executes a job and updates its timestamps.
func (s *Scheduler) runJob(ctx context.Context, j *job, now time.Time) error {
	err := j.run(ctx)
	status := "success"
	if err != nil {
		status = "error"
		s.logger.Error("scheduled job failed",
			slog.String("job", j.Name),
			slog.String("error", err.Error()),
		)
	} else {
		s.logger.Debug("scheduled job ran", slog.String("job", j.Name))
	}

	s.mu.Lock()
	j.LastRunAt = &now
	j.LastRunStatus = status
	j.Runs++
	j.NextRunAt = j.schedule.Next(now)
	s.mu.Unlock()
	return err
}

// tryAcquire returns true and marks the job as in-flight if it is not already running.
func (s *Scheduler) tryAcquire(name string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, ok := s.inflight[name]; ok {
		return false
	}
	s.inflight[name] = struct{}{}
	return true
}

// releaseJob removes the job from the in-flight set.
func (s *Scheduler) releaseJob(name string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, name)
}

// CalculateNextRun computes the next run time for a cron expression.
func (s *Scheduler) CalculateNextRun(spec string, from time.Time) (time.Time, error) {
	schedule, err := s.parser.Parse(spec)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", spec, err)
	}
	return schedule.Next(from), nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done

	s.logger.Info("scheduler stopped")
	return nil
}
