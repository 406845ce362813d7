package notify

import (
	"context"
	"log/slog"
)

// Event kinds emitted by the core. Delivery is best-effort: a failed
// notification never fails the ledger operation that triggered it.
const (
	EventDeductionFailed = "loan.deduction_failed"
	EventLoanDefaulted   = "loan.defaulted"
	EventPlanMatured     = "plan.matured"
	EventAutoSaveFailed  = "plan.autosave_failed"
	EventPlanLiquidated  = "plan.liquidated"
)

type Notifier interface {
	Notify(ctx context.Context, kind string, payload map[string]any)
}

// LogNotifier records notifications in the structured log. Used when no
// broker is configured, and in tests.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, kind string, payload map[string]any) {
	n.logger.Info("notification", "kind", kind, "payload", payload)
}
