package scheduler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/cirrus/internal/accessctx"
	"github.com/smallbiznis/cirrus/internal/clock"
	"github.com/smallbiznis/cirrus/internal/config"
	creditdomain "github.com/smallbiznis/cirrus/internal/credit/domain"
	invoicerundomain "github.com/smallbiznis/cirrus/internal/invoicerun/domain"
	"github.com/smallbiznis/cirrus/internal/observability/metrics"
	"github.com/smallbiznis/cirrus/internal/scheduler/guard"
)

const schedulerSourceKey = "scheduler"

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log     *zap.Logger
	Clock   clock.Clock
	Policy  *config.BillingPolicyHolder `optional:"true"`
	Runs    invoicerundomain.Service
	Credits creditdomain.Service
	Config  Config `optional:"true"`
}

// Scheduler drives the periodic billing jobs: the automatic invoice run for
// the previous month, the daily credit expiry sweep, and the recovery of
// invoice runs abandoned by a crashed process.
type Scheduler struct {
	log     *zap.Logger
	clock   clock.Clock
	policy  *config.BillingPolicyHolder
	runs    invoicerundomain.Service
	credits creditdomain.Service
	jobs    *metrics.JobMetrics
	cfg     Config

	lastAutoRunMonth string
	lastSweepDay     string
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.Runs == nil || p.Credits == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:     p.Log.Named("scheduler"),
		clock:   p.Clock,
		policy:  p.Policy,
		runs:    p.Runs,
		credits: p.Credits,
		jobs:    metrics.Jobs(),
		cfg:     p.Config.withDefaults(),
	}, nil
}

// RunForever ticks until ctx is cancelled.
func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	s.log.Info("scheduler started", zap.Duration("interval", s.cfg.RunInterval))
	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick evaluates every job once. Exported so tests can drive the scheduler
// without the ticker.
func (s *Scheduler) Tick(ctx context.Context) {
	ctx = accessctx.WithActor(ctx, "system")

	s.runJob(ctx, "auto_invoice_run", s.autoInvoiceRun)
	s.runJob(ctx, "credit_expiry_sweep", s.creditExpirySweep)
	s.runJob(ctx, "release_stale_runs", s.releaseStaleRuns)
}

func (s *Scheduler) runJob(ctx context.Context, name string, fn func(context.Context) error) {
	jobCtx, cancel := context.WithTimeout(ctx, s.cfg.JobTimeout)
	defer cancel()

	started := s.clock.Now()
	err := fn(jobCtx)
	elapsed := s.clock.Now().Sub(started)

	switch {
	case err == nil:
		s.jobs.ObserveJob(name, "succeeded", elapsed)
	case errors.Is(err, guard.ErrNotDue):
		// Not an outcome worth counting.
	default:
		s.log.Error("scheduler job failed", zap.String("job", name), zap.Error(err))
		s.jobs.ObserveJob(name, "failed", elapsed)
		s.jobs.ObserveJobError(name, jobErrorReason(jobCtx, err))
	}
}

func jobErrorReason(ctx context.Context, err error) string {
	switch {
	case ctx.Err() != nil, errors.Is(err, context.DeadlineExceeded):
		return metrics.JobReasonDeadlineExceeded
	case errors.Is(err, invoicerundomain.ErrRunInProgress):
		return metrics.JobReasonConflict
	default:
		return metrics.JobReasonUnknown
	}
}

func (s *Scheduler) autoInvoiceRun(ctx context.Context) error {
	policy := s.policy.Current()
	now := s.clock.Now()

	month, err := guard.AutoRunMonth(now, policy.AutoRunDayOfMonth)
	if err != nil {
		return err
	}
	if month == s.lastAutoRunMonth {
		return guard.ErrNotDue
	}

	run, err := s.runs.Start(ctx, invoicerundomain.StartRunRequest{
		BillingMonth: month,
		SourceKey:    schedulerSourceKey,
	})
	if errors.Is(err, invoicerundomain.ErrRunInProgress) {
		// Someone else holds the month; retry on a later tick.
		s.log.Info("auto invoice run deferred", zap.String("billing_month", month))
		return guard.ErrNotDue
	}
	if err != nil {
		return err
	}

	s.lastAutoRunMonth = month
	s.log.Info("auto invoice run finished",
		zap.String("billing_month", month),
		zap.String("run_id", run.ID.String()),
		zap.String("status", string(run.Status)),
	)
	return nil
}

func (s *Scheduler) creditExpirySweep(ctx context.Context) error {
	policy := s.policy.Current()
	now := s.clock.Now()

	day, err := guard.SweepDay(now, policy.CreditExpirySweepHourUTC, s.lastSweepDay)
	if err != nil {
		return err
	}

	expired, err := s.credits.ExpireCredits(ctx, now)
	if err != nil {
		return err
	}

	s.lastSweepDay = day
	if expired > 0 {
		s.log.Info("credit expiry sweep finished", zap.Int64("expired", expired))
	}
	return nil
}

func (s *Scheduler) releaseStaleRuns(ctx context.Context) error {
	released, err := s.runs.ReleaseStaleRuns(ctx, s.cfg.RecoveryThreshold)
	if err != nil {
		return err
	}
	if released > 0 {
		s.log.Warn("released stale invoice runs", zap.Int64("released", released))
	}
	return nil
}
