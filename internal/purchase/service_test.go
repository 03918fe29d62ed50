package purchase

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/nile-shop/nile_shop/internal/ledger"
	"github.com/nile-shop/nile_shop/internal/logging"
	"github.com/nile-shop/nile_shop/internal/observability"
)

func newTestService(store ledger.Store) *Service {
	metrics := observability.New(prometheus.NewRegistry())
	return NewService(store, nil, metrics, logging.Discard(), "EGP", 3)
}

func seedWallet(t *testing.T, store ledger.Store, balance int64) string {
	t.Helper()
	owner := uuid.NewString()
	w, err := store.WalletForOwner(context.Background(), owner, "EGP")
	if err != nil {
		t.Fatalf("wallet for owner: %v", err)
	}
	ledger.SeedBalance(store, w.ID, decimal.NewFromInt(balance))
	return owner
}

func TestPurchaseDebitsWallet(t *testing.T) {
	store := ledger.NewInMemory()
	owner := seedWallet(t, store, 200)
	svc := newTestService(store)

	out, err := svc.Purchase(context.Background(), Input{
		OwnerID:  owner,
		ItemID:   "prod-1",
		ItemName: "Gift Card",
		Amount:   decimal.NewFromInt(150),
	})
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if out.Transaction.Status != ledger.StatusCompleted {
		t.Fatalf("expected completed, got %s", out.Transaction.Status)
	}
	if !out.Balance.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("expected balance 50, got %s", out.Balance)
	}
	if out.Transaction.Metadata["item_id"] != "prod-1" {
		t.Fatalf("metadata missing item id: %+v", out.Transaction.Metadata)
	}
}

func TestPurchaseInsufficientFundsLeavesBalanceUntouched(t *testing.T) {
	store := ledger.NewInMemory()
	owner := seedWallet(t, store, 100)
	svc := newTestService(store)

	_, err := svc.Purchase(context.Background(), Input{
		OwnerID:  owner,
		ItemID:   "prod-1",
		ItemName: "Gift Card",
		Amount:   decimal.NewFromInt(150),
	})
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}

	w, _ := store.WalletForOwner(context.Background(), owner, "EGP")
	if !w.Balance.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("balance must stay 100, got %s", w.Balance)
	}

	// The fast path refuses before creating any transaction.
	txs, _ := store.RecentTransactions(context.Background(), owner, 10)
	if len(txs) != 0 {
		t.Fatalf("expected no transactions, got %d", len(txs))
	}
}

func TestPurchaseRejectsNonPositiveAmount(t *testing.T) {
	store := ledger.NewInMemory()
	owner := seedWallet(t, store, 100)
	svc := newTestService(store)

	_, err := svc.Purchase(context.Background(), Input{OwnerID: owner, ItemID: "p", ItemName: "p", Amount: decimal.Zero})
	if !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
}

func TestConcurrentPurchasesNeverOverdraw(t *testing.T) {
	store := ledger.NewInMemory()
	owner := seedWallet(t, store, 100)
	svc := newTestService(store)

	// Balance covers exactly one of the two concurrent purchases.
	const workers = 2
	amount := decimal.NewFromInt(80)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, refused := 0, 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Purchase(context.Background(), Input{
				OwnerID:  owner,
				ItemID:   "prod-1",
				ItemName: "Gift Card",
				Amount:   amount,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ledger.ErrInsufficientFunds):
				refused++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 || refused != 1 {
		t.Fatalf("expected exactly one winner, got succeeded=%d refused=%d", succeeded, refused)
	}

	w, _ := store.WalletForOwner(context.Background(), owner, "EGP")
	if w.Balance.IsNegative() {
		t.Fatalf("balance went negative: %s", w.Balance)
	}
	if !w.Balance.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("expected balance 20, got %s", w.Balance)
	}
}

func TestRefusedDebitCompensatesTransaction(t *testing.T) {
	store := ledger.NewInMemory()
	owner := seedWallet(t, store, 100)
	svc := newTestService(store)

	// Drain the balance between the fast check and the debit by racing a
	// second purchase; the loser's transaction must be failed, not pending.
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.Purchase(context.Background(), Input{
				OwnerID:  owner,
				ItemID:   "prod-1",
				ItemName: "Gift Card",
				Amount:   decimal.NewFromInt(80),
			})
		}()
	}
	wg.Wait()

	txs, _ := store.RecentTransactions(context.Background(), owner, 10)
	for _, tx := range txs {
		if tx.Status == ledger.StatusPending {
			t.Fatalf("purchase left pending: %+v", tx)
		}
	}
}
