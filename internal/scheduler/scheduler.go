// Package scheduler admits subtitle jobs to a bounded worker pool in FIFO
// order and owns the job lifecycle from submission to the terminal event.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/subarr/internal/config"
	"github.com/jmylchreest/subarr/internal/events"
	"github.com/jmylchreest/subarr/internal/models"
	"github.com/jmylchreest/subarr/internal/observability"
	"github.com/jmylchreest/subarr/internal/repository"
	"github.com/jmylchreest/subarr/internal/services"
	"github.com/jmylchreest/subarr/internal/worker"
)

// Runner executes one job to completion. Satisfied by the worker pipeline.
type Runner interface {
	Run(ctx context.Context, job worker.Job) worker.Result
}

// WorkerPolicy computes the effective admission ceiling from the configured
// worker maximum and the number of submitted jobs.
type WorkerPolicy func(configured, submitted int) int

// Scheduler admits submitted jobs in FIFO order, never running more than
// the effective worker count at once. Every submitted job produces exactly
// one JobFinished event, including on worker panic and on shutdown.
type Scheduler struct {
	runner  Runner
	bus     *events.Bus
	history repository.JobHistoryRepository
	logger  *slog.Logger
	policy  WorkerPolicy

	stopGrace time.Duration

	mu         sync.Mutex
	maxWorkers int
	submitted  int
	running    int
	finished   int
	pending    []worker.Job

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a scheduler. The history repository may be nil to disable
// persistence. The default worker policy caps the configured maximum by
// the host's physical cores and the submitted task count.
func New(runner Runner, bus *events.Bus, cfg config.SchedulerConfig) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		runner:     runner,
		bus:        bus,
		logger:     observability.WithComponent(slog.Default(), "scheduler"),
		policy:     services.RecommendedWorkers,
		stopGrace:  cfg.StopGrace,
		maxWorkers: cfg.MaxWorkers,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// WithLogger sets a custom logger.
func (s *Scheduler) WithLogger(logger *slog.Logger) *Scheduler {
	s.logger = observability.WithComponent(logger, "scheduler")
	return s
}

// WithHistory enables job history persistence.
func (s *Scheduler) WithHistory(repo repository.JobHistoryRepository) *Scheduler {
	s.history = repo
	return s
}

// WithWorkerPolicy replaces the admission ceiling computation.
func (s *Scheduler) WithWorkerPolicy(policy WorkerPolicy) *Scheduler {
	s.policy = policy
	return s
}

// Submit queues a job and returns its identifier. The settings snapshot is
// frozen at submission; later configuration changes do not affect queued
// jobs. Admission happens immediately when a worker slot is free.
func (s *Scheduler) Submit(inputPath string, snap config.Snapshot) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil {
		return "", fmt.Errorf("scheduler is stopped")
	}

	job := worker.Job{
		ID:        models.NewULID().String(),
		InputPath: inputPath,
		Snapshot:  snap,
	}
	s.submitted++
	s.pending = append(s.pending, job)
	s.logger.Info("job submitted",
		slog.String("job_id", job.ID),
		slog.String("input", inputPath),
		slog.Int("queue_depth", len(s.pending)),
	)

	s.admitLocked()
	return job.ID, nil
}

// SetMaxWorkers changes the configured ceiling. Running jobs are
// unaffected; the new value applies to subsequent admissions.
func (s *Scheduler) SetMaxWorkers(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxWorkers = n
	s.admitLocked()
}

// effectiveWorkersLocked computes the admission ceiling. Caller holds mu.
func (s *Scheduler) effectiveWorkersLocked() int {
	return s.policy(s.maxWorkers, s.submitted)
}

// admitLocked starts pending jobs while worker slots are free. Caller holds mu.
func (s *Scheduler) admitLocked() {
	if s.ctx.Err() != nil {
		return
	}
	for len(s.pending) > 0 && s.running < s.effectiveWorkersLocked() {
		job := s.pending[0]
		s.pending = s.pending[1:]
		s.running++
		s.wg.Add(1)
		go s.execute(job)
	}
}

// execute runs one job, guaranteeing a single terminal event even when the
// pipeline panics.
func (s *Scheduler) execute(job worker.Job) {
	defer s.wg.Done()

	started := time.Now()
	res := s.runGuarded(job)

	s.finish(job, res, started)

	s.mu.Lock()
	s.running--
	s.finished++
	s.admitLocked()
	s.mu.Unlock()
}

// runGuarded converts a pipeline panic into a failed result.
func (s *Scheduler) runGuarded(job worker.Job) (res worker.Result) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("worker panicked",
				slog.String("job_id", job.ID),
				slog.Any("panic", r),
			)
			res = worker.Result{
				Outcome: events.OutcomeFailed,
				Detail:  fmt.Sprintf("internal error: %v", r),
			}
		}
	}()
	return s.runner.Run(s.ctx, job)
}

// finish emits the terminal event and persists history.
func (s *Scheduler) finish(job worker.Job, res worker.Result, started time.Time) {
	completed := time.Now()
	ev := events.JobFinished{
		JobID:     job.ID,
		InputPath: job.InputPath,
		Outcome:   res.Outcome,
		Detail:    res.Detail,
		Duration:  completed.Sub(started),
	}
	// The terminal event must not be lost to a cancelled context.
	if err := s.bus.Publish(context.Background(), ev); err != nil {
		s.logger.Error("publishing terminal event failed",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("job finished",
		slog.String("job_id", job.ID),
		slog.String("outcome", string(res.Outcome)),
		slog.String("detail", res.Detail),
		slog.Duration("duration", ev.Duration),
	)

	s.persistHistory(job, res, started, completed)
}

func (s *Scheduler) persistHistory(job worker.Job, res worker.Result, started, completed time.Time) {
	if s.history == nil {
		return
	}

	jobID, err := models.ParseULID(job.ID)
	if err != nil {
		s.logger.Warn("unparseable job id, skipping history", slog.String("job_id", job.ID))
		return
	}

	record := models.NewJobHistory(
		jobID,
		job.InputPath,
		res.OutputPath,
		job.Snapshot.Engine,
		statusFor(res.Outcome),
		res.Detail,
		started,
		completed,
	)

	persistCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.history.Create(persistCtx, record); err != nil {
		s.logger.Warn("persisting job history failed",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}
}

func statusFor(outcome events.Outcome) models.JobStatus {
	switch outcome {
	case events.OutcomeCompleted:
		return models.JobStatusCompleted
	case events.OutcomeSkipped:
		return models.JobStatusSkipped
	default:
		return models.JobStatusFailed
	}
}

// PollEvents drains currently queued events without blocking.
func (s *Scheduler) PollEvents() []events.Event {
	return s.bus.Poll()
}

// AllComplete reports whether every submitted job has reached a terminal
// state.
func (s *Scheduler) AllComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running == 0 && len(s.pending) == 0
}

// Stats reports queue occupancy: pending, running, and finished counts.
func (s *Scheduler) Stats() (pending, running, finished int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending), s.running, s.finished
}

// StopAll cancels all running jobs and waits up to the configured grace
// period for workers to wind down. Pending jobs are drained with a
// terminal cancelled event.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	drained := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, job := range drained {
		s.finish(job, worker.Result{Outcome: events.OutcomeFailed, Detail: "cancelled"}, time.Now())
		s.mu.Lock()
		s.finished++
		s.mu.Unlock()
	}

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.stopGrace):
		s.logger.Warn("workers did not stop within grace period",
			slog.Duration("grace", s.stopGrace))
	}
}

// Cleanup stops everything and drains remaining events. Call once at
// shutdown after StopAll.
func (s *Scheduler) Cleanup() {
	s.StopAll()
	s.wg.Wait()
	s.bus.Poll()
}
