package deposit

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/nile-shop/nile_shop/internal/gateway"
	"github.com/nile-shop/nile_shop/internal/ledger"
	"github.com/nile-shop/nile_shop/internal/logging"
	"github.com/nile-shop/nile_shop/internal/observability"
)

func newTestService(store ledger.Store) *Service {
	signer := gateway.NewSigner("MID-TEST-1", "1", "payment-key")
	metrics := observability.New(prometheus.NewRegistry())
	return NewService(store, signer, metrics, logging.Discard(), "EGP")
}

func TestInitiateCreatesPendingDeposit(t *testing.T) {
	store := ledger.NewInMemory()
	svc := newTestService(store)
	ctx := context.Background()
	owner := uuid.NewString()

	intent, err := svc.Initiate(ctx, owner, decimal.NewFromInt(50), "")
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if !strings.HasPrefix(intent.MerchantOrderID, "wallet-") {
		t.Fatalf("unexpected order id format: %s", intent.MerchantOrderID)
	}
	if intent.MerchantID != "MID-TEST-1" || intent.Hash == "" {
		t.Fatalf("checkout parameters incomplete: %+v", intent)
	}
	if intent.Currency != "EGP" {
		t.Fatalf("expected default currency EGP, got %s", intent.Currency)
	}

	tx, err := store.TransactionByOrderID(ctx, intent.MerchantOrderID)
	if err != nil {
		t.Fatalf("lookup transaction: %v", err)
	}
	if tx.Status != ledger.StatusPending || tx.Kind != ledger.KindDeposit {
		t.Fatalf("unexpected transaction: %+v", tx)
	}

	// Balance untouched until reconciliation.
	w, _ := store.WalletForOwner(ctx, owner, "EGP")
	if !w.Balance.IsZero() {
		t.Fatalf("deposit must not credit before reconciliation, balance=%s", w.Balance)
	}
}

func TestInitiateRejectsNonPositiveAmount(t *testing.T) {
	svc := newTestService(ledger.NewInMemory())

	if _, err := svc.Initiate(context.Background(), uuid.NewString(), decimal.Zero, "EGP"); !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
}

func TestReconcileMarksExpiredPendings(t *testing.T) {
	store := ledger.NewInMemory()
	_, tx := seedPendingDeposit(t, store, 50)
	metrics := observability.New(prometheus.NewRegistry())
	verifier := &stubVerifier{result: gateway.Result{Outcome: gateway.OutcomePending}}
	r := NewReconciler(store, verifier, nil, metrics, logging.Discard(), 3, time.Nanosecond)

	time.Sleep(time.Millisecond)
	out, err := r.Reconcile(context.Background(), tx.MerchantOrderID)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !out.StillPending || !out.Expired {
		t.Fatalf("expected expired pending outcome, got %+v", out)
	}
	// Expiry only flags the deposit; it never auto-finalizes.
	after, _ := store.TransactionByOrderID(context.Background(), tx.MerchantOrderID)
	if after.Status != ledger.StatusPending {
		t.Fatalf("expired deposit must stay pending, got %s", after.Status)
	}
}
