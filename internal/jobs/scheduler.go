package jobs

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/ajoflow/coop-core/internal/config"
	"github.com/ajoflow/coop-core/internal/logging"
)

// Scheduler drives the Runner on cron schedules. Panics in a job body are
// recovered so one bad run never takes the process down.
type Scheduler struct {
	cron   *cron.Cron
	runner *Runner
	logger *slog.Logger
	cfg    *config.Config
}

func NewScheduler(runner *Runner, logger *slog.Logger, cfg *config.Config) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:   c,
		runner: runner,
		logger: logger,
		cfg:    cfg,
	}
}

// Start registers every job and starts the cron loop.
func (s *Scheduler) Start() {
	schedules := []struct {
		name string
		spec string
	}{
		{JobLoanDeduction, s.cfg.LoanDeductionSchedule},
		{JobLoanDefault, s.cfg.LoanDefaultSchedule},
		{JobAutoSave, s.cfg.AutoSaveSchedule},
		{JobPlanInterest, s.cfg.PlanInterestSchedule},
		{JobPlanMaturity, s.cfg.PlanMaturitySchedule},
	}

	for _, sched := range schedules {
		name := sched.name
		if _, err := s.cron.AddFunc(sched.spec, func() {
			ctx := logging.WithLogger(context.Background(), s.logger)
			if err := s.runner.Run(ctx, name); err != nil {
				s.logger.Error("job run failed", "job", name, "error", err)
			}
		}); err != nil {
			s.logger.Error("failed to schedule job", "job", name, "schedule", sched.spec, "error", err)
			continue
		}
		s.logger.Info("scheduled job", "job", name, "schedule", sched.spec)
	}

	s.cron.Start()
}

// Stop stops the cron loop; the returned context is done once in-flight
// runs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
