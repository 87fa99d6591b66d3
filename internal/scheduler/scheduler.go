// Package scheduler runs periodic maintenance jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// JobFunc is one run of a job. It should honor ctx cancellation.
type JobFunc func(ctx context.Context) error

// Observer is told about every finished run.
type Observer interface {
	ObserveJob(job string, err error)
}

type Scheduler struct {
	cron     *cron.Cron
	log      *zap.Logger
	observer Observer
	timeout  time.Duration
	entries  map[string]cron.EntryID
}

func New(logger *zap.Logger, observer Observer) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Named("scheduler")
	cronLog := cronLogger{log.Sugar()}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		log:      log,
		observer: observer,
		timeout:  10 * time.Minute,
		entries:  make(map[string]cron.EntryID),
	}
}

// Add registers job under name. The schedule uses the standard five-field
// syntax or a descriptor such as "@hourly". An empty schedule disables
// the job.
func (s *Scheduler) Add(name, schedule string, job JobFunc) error {
	if schedule == "" {
		s.log.Info("job disabled", zap.String("job", name))
		return nil
	}
	if _, ok := s.entries[name]; ok {
		return fmt.Errorf("job %s already registered", name)
	}
	parsed, err := cron.ParseStandard(schedule)
	if err != nil {
		return fmt.Errorf("parse schedule for %s: %w", name, err)
	}
	id := s.cron.Schedule(parsed, cron.FuncJob(func() { s.Run(name, job) }))
	s.entries[name] = id
	s.log.Info("job scheduled", zap.String("job", name), zap.String("schedule", schedule))
	return nil
}

// Run executes job once, logging and observing the outcome.
func (s *Scheduler) Run(name string, job JobFunc) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	started := time.Now()
	err := job(ctx)
	if s.observer != nil {
		s.observer.ObserveJob(name, err)
	}
	if err != nil {
		s.log.Error("job failed", zap.String("job", name), zap.Duration("elapsed", time.Since(started)), zap.Error(err))
		return err
	}
	s.log.Info("job finished", zap.String("job", name), zap.Duration("elapsed", time.Since(started)))
	return nil
}

// Next returns the next activation time of a registered job.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	id, ok := s.entries[name]
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(id).Next, true
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs and waits for running jobs or ctx, whichever
// comes first.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// cronLogger routes cron's own messages (recovered panics, skipped runs)
// through zap.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, zap.Error(err))...)
}
