package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/carmandale/SPY-tracker-sub000/internal/domain/models"
	drepo "github.com/carmandale/SPY-tracker-sub000/internal/domain/repository"
	"github.com/carmandale/SPY-tracker-sub000/pkg/logger"
	"github.com/carmandale/SPY-tracker-sub000/pkg/util"
)

// Clock abstracts wall time so tests can drive the scheduler without
// sleeping.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// SystemClock is the production clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time                         { return time.Now() }
func (SystemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// JobFunc runs one job for a trading date. force is only meaningful for
// jobs that overwrite on re-run; the rest ignore it.
type JobFunc func(ctx context.Context, date models.Date, force bool) error

// Job is one scheduled entry: a name, a wall-clock firing time in the
// market timezone, and the work itself.
type Job struct {
	Name string
	At   util.TimeOfDay
	Run  JobFunc
}

type jobState struct {
	Job
	nextRun     time.Time
	lastRun     time.Time
	lastOutcome string
}

// ErrUnknownJob is returned by TriggerNow for a name not in the table.
var ErrUnknownJob = errors.New("unknown job")

// Scheduler fires each registered job at its fixed local time, Monday
// through Friday. Jobs run in their own goroutine under a per-job
// timeout, so a hung provider call can never delay the next distinct
// job. Manual triggers share the jobs' idempotency guarantees, so firing
// twice is safe.
type Scheduler struct {
	loc        *time.Location
	jobTimeout time.Duration
	clock      Clock
	metrics    drepo.Metrics
	log        *logger.Logger

	mu   sync.Mutex
	jobs []*jobState

	stopOnce sync.Once
	stopChan chan struct{}
	done     chan struct{}
	wg       sync.WaitGroup
}

func New(loc *time.Location, jobTimeout time.Duration, clock Clock, metrics drepo.Metrics, log *logger.Logger) *Scheduler {
	if clock == nil {
		clock = SystemClock{}
	}
	if jobTimeout <= 0 {
		jobTimeout = 2 * time.Minute
	}
	return &Scheduler{
		loc:        loc,
		jobTimeout: jobTimeout,
		clock:      clock,
		metrics:    metrics,
		log:        log.With("scheduler"),
		stopChan:   make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Register adds a job to the table. Must be called before Start.
func (s *Scheduler) Register(job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, &jobState{Job: job})
}

// Start computes initial fire times and launches the loop.
func (s *Scheduler) Start() {
	now := s.clock.Now().In(s.loc)
	s.mu.Lock()
	for _, j := range s.jobs {
		j.nextRun = nextFire(now, j.At, s.loc)
	}
	s.mu.Unlock()

	go s.loop()
	s.log.Info("started", logger.Int("jobs", len(s.jobs)))
}

// Stop halts the loop and waits for in-flight jobs.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})

	finished := make(chan struct{})
	go func() {
		<-s.done
		s.wg.Wait()
		close(finished)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for scheduler to stop: %w", ctx.Err())
	case <-finished:
		return nil
	}
}

func (s *Scheduler) loop() {
	defer close(s.done)

	for {
		wait := s.untilNext()
		select {
		case <-s.stopChan:
			return
		case <-s.clock.After(wait):
			s.fireDue()
		}
	}
}

// untilNext returns the duration to the earliest pending fire time. With
// no jobs registered it parks for a minute and re-checks.
func (s *Scheduler) untilNext() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now().In(s.loc)
	wait := time.Minute
	for i, j := range s.jobs {
		d := j.nextRun.Sub(now)
		if d < 0 {
			d = 0
		}
		if i == 0 || d < wait {
			wait = d
		}
	}
	return wait
}

func (s *Scheduler) fireDue() {
	now := s.clock.Now().In(s.loc)

	s.mu.Lock()
	var due []*jobState
	for _, j := range s.jobs {
		if !j.nextRun.After(now) {
			due = append(due, j)
			j.nextRun = nextFire(now, j.At, s.loc)
		}
	}
	s.mu.Unlock()

	for _, j := range due {
		job := j
		date := models.DateOf(now)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.execute(job, date, false)
		}()
	}
}

// execute runs one job under the per-job timeout and records the outcome.
func (s *Scheduler) execute(j *jobState, date models.Date, force bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
	defer cancel()

	start := s.clock.Now()
	err := j.Run(ctx, date, force)
	elapsed := s.clock.Now().Sub(start)

	outcome := classify(err)
	s.mu.Lock()
	j.lastRun = start.In(s.loc)
	j.lastOutcome = outcome
	s.mu.Unlock()

	s.metrics.RecordJobRun(j.Name, outcome)
	s.metrics.RecordJobDuration(j.Name, elapsed.Seconds())

	switch outcome {
	case "ok", "conflict", "notReady":
		s.log.Info("job finished",
			logger.String("job", j.Name),
			logger.String("date", date.String()),
			logger.String("outcome", outcome),
			logger.Duration("elapsed", elapsed))
	default:
		s.log.Error("job failed",
			logger.String("job", j.Name),
			logger.String("date", date.String()),
			logger.Error(err),
			logger.Duration("elapsed", elapsed))
	}
	return err
}

// classify folds the expected domain outcomes into labels; anything else
// is a real failure.
func classify(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, models.ErrConflict), errors.Is(err, models.ErrLocked):
		return "conflict"
	case errors.Is(err, models.ErrNotReady):
		return "notReady"
	case errors.Is(err, models.ErrProviderUnavailable):
		return "providerUnavailable"
	default:
		return "error"
	}
}

// TriggerNow runs the named job immediately for the given date,
// synchronously, outside the schedule. The next scheduled fire time is
// untouched.
func (s *Scheduler) TriggerNow(name string, date models.Date, force bool) error {
	s.mu.Lock()
	var target *jobState
	for _, j := range s.jobs {
		if j.Name == name {
			target = j
			break
		}
	}
	s.mu.Unlock()

	if target == nil {
		return fmt.Errorf("%q: %w", name, ErrUnknownJob)
	}
	s.wg.Add(1)
	defer s.wg.Done()
	return s.execute(target, date, force)
}

// JobStatus is one scheduler introspection entry.
type JobStatus struct {
	Name        string
	NextRun     time.Time
	LastRun     time.Time
	LastOutcome string
}

// Status lists jobs ordered by next fire time.
func (s *Scheduler) Status() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobStatus, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, JobStatus{
			Name:        j.Name,
			NextRun:     j.nextRun,
			LastRun:     j.lastRun,
			LastOutcome: j.lastOutcome,
		})
	}
	sort.Slice(out, func(i, k int) bool { return out[i].NextRun.Before(out[k].NextRun) })
	return out
}

// nextFire returns the next weekday occurrence of at strictly after now.
func nextFire(now time.Time, at util.TimeOfDay, loc *time.Location) time.Time {
	candidate := at.On(now, loc)
	if candidate.After(now) && util.IsTradingDay(candidate) {
		return candidate
	}
	return at.On(util.NextTradingDay(now), loc)
}
