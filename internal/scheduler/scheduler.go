// Package scheduler runs periodic maintenance jobs on cron specs.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const defaultJobTimeout = 10 * time.Minute

// JobFunc is one scheduled run.
type JobFunc func(ctx context.Context) error

type Scheduler struct {
	cron    *cron.Cron
	log     *slog.Logger
	timeout time.Duration
	ctx     context.Context
}

func New(log *slog.Logger) *Scheduler {
	adapter := cronLogger{log: log}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
			cron.WithLogger(adapter),
		),
		log:     log,
		timeout: defaultJobTimeout,
		ctx:     context.Background(),
	}
}

// Add registers fn under a standard five-field cron spec or a descriptor
// such as "@every 30m".
func (s *Scheduler) Add(name, spec string, fn JobFunc) error {
	if _, err := s.cron.AddFunc(spec, func() { s.run(name, fn) }); err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	s.log.Info("job scheduled", "job", name, "spec", spec)
	return nil
}

// Start runs jobs in the background until ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = ctx
	s.cron.Start()
}

// Stop prevents new runs and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Len reports the number of registered jobs.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) run(name string, fn JobFunc) {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	started := time.Now()
	if err := fn(ctx); err != nil {
		s.log.Error("job failed", "job", name, "duration", time.Since(started).String(), "err", err)
		return
	}
	s.log.Debug("job finished", "job", name, "duration", time.Since(started).String())
}

// cronLogger routes cron's own logging through slog.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(keysAndValues, "err", err)...)
}
