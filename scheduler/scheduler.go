// Package scheduler triggers the ingestion job once a day and skips the
// trigger when a resource gate fails.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/robfig/cron/v3"

	"github.com/bassamadnan/gmail-ingest/gate"
)

// Job is the work done on a trigger that passed every gate.
type Job func(ctx context.Context) error

// Config sets the daily trigger time.
type Config struct {
	Hour     int
	Minute   int
	Location *time.Location
}

// CronExpr returns the cron expression for the daily trigger.
func (c Config) CronExpr() string {
	return fmt.Sprintf("%d %d * * *", c.Minute, c.Hour)
}

// Scheduler owns the cron loop. Create with New, then Start and Stop.
type Scheduler struct {
	cfg    Config
	job    Job
	gates  []gate.Gate
	logger *log.Logger

	cron  *cron.Cron
	entry cron.EntryID
	ctx   context.Context
}

func New(cfg Config, job Job, gates []gate.Gate, logger *log.Logger) *Scheduler {
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	logger = logger.WithPrefix("scheduler")
	cronLogger := cron.PrintfLogger(logger.StandardLog())
	return &Scheduler{
		cfg:    cfg,
		job:    job,
		gates:  gates,
		logger: logger,
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		ctx: context.Background(),
	}
}

// Start registers the daily trigger and starts the cron loop in the
// background. Jobs run with ctx, which is not cancelled by Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx = ctx
	id, err := s.cron.AddFunc(s.cfg.CronExpr(), func() {
		s.Tick(s.ctx)
	})
	if err != nil {
		return fmt.Errorf("scheduling %q: %w", s.cfg.CronExpr(), err)
	}
	s.entry = id
	s.cron.Start()
	s.logger.Info("Scheduler started", "cron", s.cfg.CronExpr(), "next", s.Next())
	return nil
}

// Stop halts triggering and waits for a running job until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for running job: %w", ctx.Err())
	}
}

// Next returns the time of the next trigger, or the zero time before Start.
func (s *Scheduler) Next() time.Time {
	if s.entry == 0 {
		return time.Time{}
	}
	return s.cron.Entry(s.entry).Next
}

// Tick evaluates the gates and runs the job if all pass. It reports
// whether the job ran and the job's error.
func (s *Scheduler) Tick(ctx context.Context) (bool, error) {
	s.logger.Info("Checking job conditions...")

	if ok, name, reason := gate.CheckAll(ctx, s.gates); !ok {
		s.logger.Info("Skipped", "gate", name, "reason", reason)
		return false, nil
	}

	s.logger.Info("All conditions met. Running ingestion job...")
	if err := s.job(ctx); err != nil {
		s.logger.Error("Job failed", "error", err)
		return true, err
	}
	s.logger.Info("Job executed successfully.")
	return true, nil
}
