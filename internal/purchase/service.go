package purchase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nile-shop/nile_shop/internal/ledger"
	"github.com/nile-shop/nile_shop/internal/notification"
	"github.com/nile-shop/nile_shop/internal/observability"
)

// ErrBusy surfaces after the bounded retries on ledger version conflicts are
// exhausted. Transient; the client may retry the purchase.
var ErrBusy = errors.New("wallet busy, retry purchase")

// Service debits a wallet synchronously for a purchase. No gateway round-trip
// is involved: affordability is decided against the internal balance only.
type Service struct {
	store           ledger.Store
	notifier        notification.Notifier
	metrics         *observability.Metrics
	logger          *slog.Logger
	currency        string
	conflictRetries int
}

// NewService builds a purchase service.
func NewService(store ledger.Store, notifier notification.Notifier, metrics *observability.Metrics, logger *slog.Logger, defaultCurrency string, conflictRetries int) *Service {
	if conflictRetries <= 0 {
		conflictRetries = 3
	}
	return &Service{
		store:           store,
		notifier:        notifier,
		metrics:         metrics,
		logger:          logger,
		currency:        defaultCurrency,
		conflictRetries: conflictRetries,
	}
}

// Input captures the data needed to charge a wallet for an item.
type Input struct {
	OwnerID  string
	ItemID   string
	ItemName string
	Amount   decimal.Decimal
	Currency string
}

// Outcome describes a completed purchase.
type Outcome struct {
	Transaction ledger.Transaction
	Balance     decimal.Decimal
}

// Purchase checks affordability, opens a pending purchase transaction, and
// atomically debits the wallet while completing it. The affordability check is
// re-evaluated inside the ledger's compare-and-swap, so two concurrent
// purchases can never jointly overdraw a balance that covers only one.
func (s *Service) Purchase(ctx context.Context, input Input) (Outcome, error) {
	if !input.Amount.IsPositive() {
		return Outcome{}, ledger.ErrInvalidAmount
	}
	currency := input.Currency
	if currency == "" {
		currency = s.currency
	}

	w, err := s.store.WalletForOwner(ctx, input.OwnerID, currency)
	if err != nil {
		return Outcome{}, fmt.Errorf("load wallet: %w", err)
	}

	// Fast path: refuse without creating a transaction when the balance
	// obviously cannot cover the price. The authoritative check happens again
	// inside ApplyTerminalOutcome.
	if w.Balance.LessThan(input.Amount) {
		s.metrics.PurchasesTotal.WithLabelValues("insufficient_funds").Inc()
		return Outcome{}, ledger.ErrInsufficientFunds
	}

	metadata := map[string]string{
		"item_id":   input.ItemID,
		"item_name": input.ItemName,
	}
	tx, err := s.store.CreateTransaction(ctx, ledger.CreateTransactionInput{
		WalletID:        w.ID,
		OwnerID:         input.OwnerID,
		Kind:            ledger.KindPurchase,
		Amount:          input.Amount,
		Currency:        currency,
		MerchantOrderID: newPurchaseOrderID(),
		Description:     fmt.Sprintf("purchase of %s", input.ItemName),
		Metadata:        metadata,
	})
	if err != nil {
		return Outcome{}, err
	}

	var updated ledger.Transaction
	for attempt := 0; attempt < s.conflictRetries; attempt++ {
		updated, err = s.store.ApplyTerminalOutcome(ctx, tx.ID, ledger.StatusCompleted, input.Amount.Neg(), "")
		if !errors.Is(err, ledger.ErrConflict) {
			break
		}
		s.metrics.LedgerConflictsTotal.Inc()
	}

	switch {
	case err == nil:
	case errors.Is(err, ledger.ErrInsufficientFunds):
		// A concurrent debit won; compensate so the transaction is not left
		// dangling pending with no verification step to resolve it.
		s.fail(ctx, tx.ID)
		s.metrics.PurchasesTotal.WithLabelValues("insufficient_funds").Inc()
		return Outcome{}, ledger.ErrInsufficientFunds
	case errors.Is(err, ledger.ErrConflict):
		s.fail(ctx, tx.ID)
		s.metrics.PurchasesTotal.WithLabelValues("conflict").Inc()
		return Outcome{}, ErrBusy
	default:
		s.fail(ctx, tx.ID)
		return Outcome{}, err
	}

	balance := w.Balance.Sub(input.Amount)
	if refreshed, err := s.store.WalletForOwner(ctx, input.OwnerID, currency); err == nil {
		balance = refreshed.Balance
	}

	s.metrics.PurchasesTotal.WithLabelValues("completed").Inc()
	s.logger.Info("purchase completed",
		slog.String("owner_id", input.OwnerID),
		slog.String("item_id", input.ItemID),
		slog.String("amount", input.Amount.String()),
		slog.String("balance", balance.String()),
	)

	if s.notifier != nil {
		_ = s.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindPurchaseCompleted,
			Destination: input.OwnerID,
			Body:        fmt.Sprintf("You bought %s for %s %s", input.ItemName, input.Amount, currency),
		})
	}

	return Outcome{Transaction: updated, Balance: balance}, nil
}

func (s *Service) fail(ctx context.Context, transactionID string) {
	if _, err := s.store.ApplyTerminalOutcome(ctx, transactionID, ledger.StatusFailed, decimal.Zero, ""); err != nil && !errors.Is(err, ledger.ErrAlreadyFinalized) {
		s.logger.Error("failed to compensate purchase transaction",
			slog.String("transaction_id", transactionID),
			slog.Any("error", err),
		)
	}
}

func newPurchaseOrderID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("purchase-%d-%s", time.Now().UnixMilli(), suffix)
}
