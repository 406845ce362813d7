package payout

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ajoflow/coop-core/internal/domain"
	"github.com/ajoflow/coop-core/internal/metrics"
)

// maxAttempts is the delivery budget per intent; after that the intent is
// parked as failed for manual review.
const maxAttempts = 5

// backoffBase seeds the retry delay, which doubles per attempt up to
// backoffCap.
const (
	backoffBase = 30 * time.Second
	backoffCap  = 30 * time.Minute
)

type outboxRepo interface {
	ClaimPending(ctx context.Context, asOf time.Time, limit int) ([]domain.PayoutIntent, error)
	MarkDelivered(ctx context.Context, id uuid.UUID, providerRef string, at time.Time) error
	RecordFailure(ctx context.Context, id uuid.UUID, reason string, nextAttempt time.Time, maxAttempts int) error
}

type gateway interface {
	Submit(ctx context.Context, intent domain.PayoutIntent) (string, error)
}

// Dispatcher drains the payout outbox. Delivery is decoupled from the
// ledger transactions that enqueue intents: a gateway outage delays
// payouts, it never unwinds balances.
type Dispatcher struct {
	outbox    outboxRepo
	gateway   gateway
	metrics   *metrics.Collector
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

func NewDispatcher(outbox outboxRepo, gw gateway, collector *metrics.Collector, logger *slog.Logger, interval time.Duration, batchSize int) *Dispatcher {
	return &Dispatcher{
		outbox:    outbox,
		gateway:   gw,
		metrics:   collector,
		logger:    logger,
		interval:  interval,
		batchSize: batchSize,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// Start blocks until ctx is cancelled, polling the outbox on the
// configured interval.
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("payout dispatcher started", "interval", d.interval, "batch_size", d.batchSize)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("payout dispatcher stopped")
			return
		case <-ticker.C:
			d.Poll(ctx)
		}
	}
}

// Poll delivers one batch of due intents. Exported so tests and the manual
// trigger endpoint can drain the outbox without the ticker.
func (d *Dispatcher) Poll(ctx context.Context) {
	intents, err := d.outbox.ClaimPending(ctx, d.now(), d.batchSize)
	if err != nil {
		d.logger.Error("failed to claim pending payouts", "error", err)
		return
	}

	for _, intent := range intents {
		d.deliver(ctx, intent)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, intent domain.PayoutIntent) {
	ref, err := d.gateway.Submit(ctx, intent)
	if err != nil {
		d.metrics.PayoutDelivery(false)
		next := d.now().Add(backoff(intent.Attempts))
		d.logger.Warn("payout delivery failed",
			"intent_id", intent.ID,
			"attempts", intent.Attempts+1,
			"next_attempt_at", next,
			"error", err,
		)
		if recErr := d.outbox.RecordFailure(ctx, intent.ID, err.Error(), next, maxAttempts); recErr != nil {
			d.logger.Error("failed to record payout failure", "intent_id", intent.ID, "error", recErr)
		}
		return
	}

	if err := d.outbox.MarkDelivered(ctx, intent.ID, ref, d.now()); err != nil {
		d.logger.Error("failed to mark payout delivered", "intent_id", intent.ID, "error", err)
		return
	}
	d.metrics.PayoutDelivery(true)
	d.logger.Info("payout delivered",
		"intent_id", intent.ID,
		"kind", intent.Kind,
		"amount", intent.Amount,
		"provider_ref", ref,
	)
}

// backoff doubles per prior attempt, capped.
func backoff(attempts int) time.Duration {
	delay := backoffBase
	for i := 0; i < attempts && delay < backoffCap; i++ {
		delay *= 2
	}
	if delay > backoffCap {
		delay = backoffCap
	}
	return delay
}
