package deposit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nile-shop/nile_shop/internal/gateway"
	"github.com/nile-shop/nile_shop/internal/ledger"
	"github.com/nile-shop/nile_shop/internal/notification"
	"github.com/nile-shop/nile_shop/internal/observability"
)

var (
	// ErrUnknownOrder indicates no deposit transaction matches the merchant
	// order id. Not retryable.
	ErrUnknownOrder = errors.New("unknown merchant order id")

	// ErrGatewayUnavailable indicates verification failed transiently; the
	// caller should invoke Reconcile again later.
	ErrGatewayUnavailable = errors.New("gateway verification unavailable")

	// ErrLedgerBusy surfaces after the bounded internal retries on ledger
	// version conflicts are exhausted. Transient.
	ErrLedgerBusy = errors.New("ledger busy, retry reconciliation")
)

// Reconciler resolves a pending deposit's final status from the gateway's
// verified outcome and applies the balance mutation exactly once. It is safe
// to call concurrently and repeatedly for the same order: the ledger's status
// compare-and-swap lets only one caller win the pending -> terminal race.
type Reconciler struct {
	store           ledger.Store
	verifier        gateway.Verifier
	notifier        notification.Notifier
	metrics         *observability.Metrics
	logger          *slog.Logger
	conflictRetries int
	pendingExpiry   time.Duration
}

// NewReconciler builds the reconciliation orchestrator. conflictRetries bounds
// the internal retry loop on ledger conflicts; pendingExpiry marks deposits
// stuck pending for longer than the window so operators can intervene.
func NewReconciler(store ledger.Store, verifier gateway.Verifier, notifier notification.Notifier, metrics *observability.Metrics, logger *slog.Logger, conflictRetries int, pendingExpiry time.Duration) *Reconciler {
	if conflictRetries <= 0 {
		conflictRetries = 3
	}
	return &Reconciler{
		store:           store,
		verifier:        verifier,
		notifier:        notifier,
		metrics:         metrics,
		logger:          logger,
		conflictRetries: conflictRetries,
		pendingExpiry:   pendingExpiry,
	}
}

// Outcome reports the result of one reconciliation attempt.
type Outcome struct {
	Transaction    ledger.Transaction
	Status         ledger.Status
	StillPending   bool
	Expired        bool
	GatewayOutcome gateway.Outcome
}

// Reconcile drives a pending deposit to its terminal state using the gateway's
// verified outcome. Terminal transactions short-circuit without a gateway
// call, which makes stale duplicate callbacks harmless.
func (r *Reconciler) Reconcile(ctx context.Context, merchantOrderID string) (Outcome, error) {
	tx, err := r.store.TransactionByOrderID(ctx, merchantOrderID)
	if err != nil {
		if errors.Is(err, ledger.ErrTransactionNotFound) {
			return Outcome{}, ErrUnknownOrder
		}
		return Outcome{}, err
	}
	if tx.Kind != ledger.KindDeposit {
		return Outcome{}, ErrUnknownOrder
	}

	if tx.Status.Terminal() {
		r.metrics.ReconciliationsTotal.WithLabelValues("short_circuit").Inc()
		return Outcome{Transaction: tx, Status: tx.Status}, nil
	}

	start := time.Now()
	res, verifyErr := r.verifier.Verify(ctx, merchantOrderID)
	r.metrics.GatewayVerifyDuration.WithLabelValues(string(res.Outcome)).Observe(time.Since(start).Seconds())
	if verifyErr != nil || res.Outcome == gateway.OutcomeError {
		r.metrics.ReconciliationsTotal.WithLabelValues("gateway_error").Inc()
		r.logger.Warn("gateway verification failed, deposit stays pending",
			slog.String("merchant_order_id", merchantOrderID),
			slog.Any("error", verifyErr),
		)
		out := r.pendingOutcome(tx, gateway.OutcomeError)
		return out, fmt.Errorf("%w: %v", ErrGatewayUnavailable, verifyErr)
	}

	switch res.Outcome {
	case gateway.OutcomeSuccess:
		return r.finalize(ctx, tx, ledger.StatusCompleted, tx.Amount, res)
	case gateway.OutcomeFailed:
		return r.finalize(ctx, tx, ledger.StatusFailed, decimal.Zero, res)
	default:
		// PENDING and NOT_FOUND never finalize: the gateway may simply not have
		// indexed the payment yet.
		r.metrics.ReconciliationsTotal.WithLabelValues("still_pending").Inc()
		return r.pendingOutcome(tx, res.Outcome), nil
	}
}

func (r *Reconciler) finalize(ctx context.Context, tx ledger.Transaction, status ledger.Status, delta decimal.Decimal, res gateway.Result) (Outcome, error) {
	var (
		updated ledger.Transaction
		err     error
	)
	for attempt := 0; attempt < r.conflictRetries; attempt++ {
		updated, err = r.store.ApplyTerminalOutcome(ctx, tx.ID, status, delta, res.Record.TransactionID)
		if !errors.Is(err, ledger.ErrConflict) {
			break
		}
		r.metrics.LedgerConflictsTotal.Inc()
	}

	switch {
	case err == nil:
	case errors.Is(err, ledger.ErrAlreadyFinalized):
		// A concurrent reconciliation won the race; its terminal state stands.
		r.metrics.ReconciliationsTotal.WithLabelValues("already_finalized").Inc()
		return Outcome{Transaction: updated, Status: updated.Status, GatewayOutcome: res.Outcome}, nil
	case errors.Is(err, ledger.ErrConflict):
		r.metrics.ReconciliationsTotal.WithLabelValues("ledger_busy").Inc()
		return r.pendingOutcome(tx, res.Outcome), ErrLedgerBusy
	default:
		return Outcome{}, err
	}

	r.metrics.ReconciliationsTotal.WithLabelValues(string(status)).Inc()
	r.logger.Info("deposit reconciled",
		slog.String("merchant_order_id", tx.MerchantOrderID),
		slog.String("status", string(status)),
		slog.String("gateway_reference", res.Record.TransactionID),
	)

	if status == ledger.StatusCompleted && r.notifier != nil {
		_ = r.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindDepositCompleted,
			Destination: tx.OwnerID,
			Body:        fmt.Sprintf("Your wallet was topped up with %s %s", tx.Amount, tx.Currency),
		})
	}

	return Outcome{Transaction: updated, Status: status, GatewayOutcome: res.Outcome}, nil
}

func (r *Reconciler) pendingOutcome(tx ledger.Transaction, gw gateway.Outcome) Outcome {
	expired := r.pendingExpiry > 0 && time.Since(tx.CreatedAt) > r.pendingExpiry
	if expired {
		r.logger.Warn("deposit pending past expiry window, needs operator attention",
			slog.String("merchant_order_id", tx.MerchantOrderID),
			slog.Time("created_at", tx.CreatedAt),
		)
	}
	return Outcome{
		Transaction:    tx,
		Status:         ledger.StatusPending,
		StillPending:   true,
		Expired:        expired,
		GatewayOutcome: gw,
	}
}
