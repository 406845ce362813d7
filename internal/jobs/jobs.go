package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ajoflow/coop-core/internal/domain"
	"github.com/ajoflow/coop-core/internal/logging"
	"github.com/ajoflow/coop-core/internal/metrics"
	"github.com/ajoflow/coop-core/internal/notify"
)

// Job names, used for logging, metrics and the manual trigger endpoint.
const (
	JobLoanDeduction = "loan_deduction"
	JobLoanDefault   = "loan_default"
	JobAutoSave      = "auto_save"
	JobPlanInterest  = "plan_interest"
	JobPlanMaturity  = "plan_maturity"
)

// maxFailedDeductions is the consecutive-failure streak that tips an
// automated loan into default handling.
const maxFailedDeductions = 3

type loanLister interface {
	DueAutomated(ctx context.Context, asOf time.Time, window time.Duration) ([]domain.Loan, error)
	OverdueOrFailing(ctx context.Context, asOf time.Time, maxFailures int) ([]domain.Loan, error)
}

type planLister interface {
	DueAutoSave(ctx context.Context, asOf time.Time, window time.Duration) ([]domain.SavingsPlan, error)
	DueInterest(ctx context.Context, asOf time.Time, window time.Duration) ([]domain.SavingsPlan, error)
	MaturedActive(ctx context.Context, asOf time.Time) ([]domain.SavingsPlan, error)
}

type loanService interface {
	Deduct(ctx context.Context, loanID uuid.UUID, actor string) (*domain.LoanRepayment, error)
	RecordFailedDeduction(ctx context.Context, loanID uuid.UUID) (int, error)
	ExtendDefault(ctx context.Context, loanID uuid.UUID) (*domain.Loan, error)
}

type savingsService interface {
	RunAutoSave(ctx context.Context, planID uuid.UUID, asOf time.Time) (bool, error)
	AccrueInterest(ctx context.Context, planID uuid.UUID, asOf time.Time) (int64, error)
	MaturePlan(ctx context.Context, planID uuid.UUID, asOf time.Time) (bool, error)
}

// Runner owns the batch job bodies. Each entity is processed in its own
// transaction, so one failure never rolls back the rest of the batch.
type Runner struct {
	loans    loanLister
	plans    planLister
	loanSvc  loanService
	savings  savingsService
	notifier notify.Notifier
	metrics  *metrics.Collector
	window   time.Duration
	now      func() time.Time
}

func NewRunner(loans loanLister, plans planLister, loanSvc loanService, savings savingsService, notifier notify.Notifier, collector *metrics.Collector, windowDays int) *Runner {
	return &Runner{
		loans:    loans,
		plans:    plans,
		loanSvc:  loanSvc,
		savings:  savings,
		notifier: notifier,
		metrics:  collector,
		window:   time.Duration(windowDays) * 24 * time.Hour,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (r *Runner) WithClock(now func() time.Time) *Runner {
	r.now = now
	return r
}

// Run dispatches a job by name. The scheduler and the manual trigger
// endpoint both come through here.
func (r *Runner) Run(ctx context.Context, name string) error {
	switch name {
	case JobLoanDeduction:
		return r.RunLoanDeductions(ctx)
	case JobLoanDefault:
		return r.RunLoanDefaults(ctx)
	case JobAutoSave:
		return r.RunAutoSaves(ctx)
	case JobPlanInterest:
		return r.RunPlanInterest(ctx)
	case JobPlanMaturity:
		return r.RunPlanMaturity(ctx)
	}
	return domain.ErrNotFound
}

// RunLoanDeductions collects the monthly deduction from every automated
// loan whose watermark has fallen outside the window. An insufficient main
// balance bumps the failure streak and notifies the member; the watermark
// stays put so the next run retries.
func (r *Runner) RunLoanDeductions(ctx context.Context) error {
	log := logging.ForJob(ctx, JobLoanDeduction)
	started := r.now()
	defer func() { r.metrics.ObserveJob(JobLoanDeduction, time.Since(started)) }()

	due, err := r.loans.DueAutomated(ctx, started, r.window)
	if err != nil {
		return err
	}
	log.Info("loan deduction run started", "due", len(due))

	for i := range due {
		l := &due[i]
		_, err := r.loanSvc.Deduct(ctx, l.ID, "system")
		switch {
		case err == nil:
			r.metrics.JobEntity(JobLoanDeduction, true)
		case errors.Is(err, domain.ErrInsufficientFunds):
			r.metrics.JobEntity(JobLoanDeduction, false)
			streak, recErr := r.loanSvc.RecordFailedDeduction(ctx, l.ID)
			if recErr != nil {
				log.Error("record failed deduction", "loan_id", l.ID, "error", recErr)
				continue
			}
			log.Warn("deduction failed: insufficient funds",
				"loan_id", l.ID,
				"member_id", l.MemberID,
				"streak", streak,
			)
			r.notifier.Notify(ctx, notify.EventDeductionFailed, map[string]any{
				"loan_id":   l.ID.String(),
				"member_id": l.MemberID.String(),
				"amount":    l.MonthlyDeduction,
				"streak":    streak,
			})
		default:
			r.metrics.JobEntity(JobLoanDeduction, false)
			log.Error("deduction failed", "loan_id", l.ID, "error", err)
		}
	}
	return nil
}

// RunLoanDefaults moves loans that are overdue, or have hit the failure
// streak limit, through the default-extension policy.
func (r *Runner) RunLoanDefaults(ctx context.Context) error {
	log := logging.ForJob(ctx, JobLoanDefault)
	started := r.now()
	defer func() { r.metrics.ObserveJob(JobLoanDefault, time.Since(started)) }()

	overdue, err := r.loans.OverdueOrFailing(ctx, started, maxFailedDeductions)
	if err != nil {
		return err
	}
	log.Info("loan default run started", "overdue", len(overdue))

	for i := range overdue {
		l := &overdue[i]
		extended, err := r.loanSvc.ExtendDefault(ctx, l.ID)
		if err != nil {
			r.metrics.JobEntity(JobLoanDefault, false)
			log.Error("default extension failed", "loan_id", l.ID, "error", err)
			continue
		}
		r.metrics.JobEntity(JobLoanDefault, true)
		r.notifier.Notify(ctx, notify.EventLoanDefaulted, map[string]any{
			"loan_id":     extended.ID.String(),
			"member_id":   extended.MemberID.String(),
			"outstanding": extended.Outstanding,
			"extensions":  extended.Extensions,
			"due_date":    extended.DueDate,
		})
	}
	return nil
}

// RunAutoSaves collects the configured auto-save amount for every due plan.
func (r *Runner) RunAutoSaves(ctx context.Context) error {
	log := logging.ForJob(ctx, JobAutoSave)
	started := r.now()
	defer func() { r.metrics.ObserveJob(JobAutoSave, time.Since(started)) }()

	due, err := r.plans.DueAutoSave(ctx, started, r.window)
	if err != nil {
		return err
	}
	log.Info("auto-save run started", "due", len(due))

	for i := range due {
		p := &due[i]
		saved, err := r.savings.RunAutoSave(ctx, p.ID, started)
		if err != nil {
			r.metrics.JobEntity(JobAutoSave, false)
			log.Error("auto-save failed", "plan_id", p.ID, "error", err)
			continue
		}
		if !saved {
			r.metrics.JobEntity(JobAutoSave, false)
			log.Warn("auto-save skipped: insufficient funds",
				"plan_id", p.ID,
				"member_id", p.MemberID,
			)
			r.notifier.Notify(ctx, notify.EventAutoSaveFailed, map[string]any{
				"plan_id":   p.ID.String(),
				"member_id": p.MemberID.String(),
				"amount":    p.AutoSaveAmount,
			})
			continue
		}
		r.metrics.JobEntity(JobAutoSave, true)
	}
	return nil
}

// RunPlanInterest accrues one month of interest on every due active plan.
func (r *Runner) RunPlanInterest(ctx context.Context) error {
	log := logging.ForJob(ctx, JobPlanInterest)
	started := r.now()
	defer func() { r.metrics.ObserveJob(JobPlanInterest, time.Since(started)) }()

	due, err := r.plans.DueInterest(ctx, started, r.window)
	if err != nil {
		return err
	}
	log.Info("plan interest run started", "due", len(due))

	for i := range due {
		p := &due[i]
		amount, err := r.savings.AccrueInterest(ctx, p.ID, started)
		if err != nil {
			r.metrics.JobEntity(JobPlanInterest, false)
			log.Error("interest accrual failed", "plan_id", p.ID, "error", err)
			continue
		}
		r.metrics.JobEntity(JobPlanInterest, true)
		if amount > 0 {
			log.Info("interest accrued", "plan_id", p.ID, "amount", amount)
		}
	}
	return nil
}

// RunPlanMaturity sweeps matured plans back into members' main accounts.
func (r *Runner) RunPlanMaturity(ctx context.Context) error {
	log := logging.ForJob(ctx, JobPlanMaturity)
	started := r.now()
	defer func() { r.metrics.ObserveJob(JobPlanMaturity, time.Since(started)) }()

	matured, err := r.plans.MaturedActive(ctx, started)
	if err != nil {
		return err
	}
	log.Info("plan maturity run started", "matured", len(matured))

	for i := range matured {
		p := &matured[i]
		swept, err := r.savings.MaturePlan(ctx, p.ID, started)
		if err != nil {
			r.metrics.JobEntity(JobPlanMaturity, false)
			log.Error("maturity sweep failed", "plan_id", p.ID, "error", err)
			continue
		}
		if !swept {
			continue
		}
		r.metrics.JobEntity(JobPlanMaturity, true)
		r.notifier.Notify(ctx, notify.EventPlanMatured, map[string]any{
			"plan_id":   p.ID.String(),
			"member_id": p.MemberID.String(),
		})
	}
	return nil
}
