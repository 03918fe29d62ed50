package deposit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
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

type stubVerifier struct {
	result gateway.Result
	err    error
	calls  int32
}

func (v *stubVerifier) Verify(_ context.Context, orderID string) (gateway.Result, error) {
	atomic.AddInt32(&v.calls, 1)
	res := v.result
	if res.Record.MerchantOrderID == "" {
		res.Record.MerchantOrderID = orderID
	}
	return res, v.err
}

func successResult(reference string) gateway.Result {
	return gateway.Result{
		Outcome: gateway.OutcomeSuccess,
		Record:  gateway.Record{Status: "Approved", LastStatus: "CAPTURED", TransactionID: reference},
	}
}

func newTestReconciler(store ledger.Store, verifier gateway.Verifier) *Reconciler {
	metrics := observability.New(prometheus.NewRegistry())
	return NewReconciler(store, verifier, nil, metrics, logging.Discard(), 3, 24*time.Hour)
}

func seedPendingDeposit(t *testing.T, store ledger.Store, amount int64) (string, ledger.Transaction) {
	t.Helper()
	ctx := context.Background()
	owner := uuid.NewString()
	w, err := store.WalletForOwner(ctx, owner, "EGP")
	if err != nil {
		t.Fatalf("wallet for owner: %v", err)
	}
	ledger.SeedBalance(store, w.ID, decimal.NewFromInt(100))

	tx, err := store.CreateTransaction(ctx, ledger.CreateTransactionInput{
		WalletID:        w.ID,
		OwnerID:         owner,
		Kind:            ledger.KindDeposit,
		Amount:          decimal.NewFromInt(amount),
		Currency:        "EGP",
		MerchantOrderID: "wallet-1-" + uuid.NewString()[:8],
	})
	if err != nil {
		t.Fatalf("create deposit: %v", err)
	}
	return owner, tx
}

func TestReconcileSuccessCreditsWallet(t *testing.T) {
	store := ledger.NewInMemory()
	owner, tx := seedPendingDeposit(t, store, 50)
	r := newTestReconciler(store, &stubVerifier{result: successResult("TX-1")})

	out, err := r.Reconcile(context.Background(), tx.MerchantOrderID)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if out.Status != ledger.StatusCompleted {
		t.Fatalf("expected completed, got %s", out.Status)
	}
	if out.Transaction.GatewayReference != "TX-1" {
		t.Fatalf("expected gateway reference TX-1, got %s", out.Transaction.GatewayReference)
	}

	w, _ := store.WalletForOwner(context.Background(), owner, "EGP")
	if !w.Balance.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("expected balance 150, got %s", w.Balance)
	}
}

func TestReconcileIsIdempotentAcrossStaleCallbacks(t *testing.T) {
	store := ledger.NewInMemory()
	owner, tx := seedPendingDeposit(t, store, 50)
	verifier := &stubVerifier{result: successResult("TX-1")}
	r := newTestReconciler(store, verifier)

	if _, err := r.Reconcile(context.Background(), tx.MerchantOrderID); err != nil {
		t.Fatalf("first reconcile: %v", err)
	}

	// A stale duplicate callback arrives after the gateway flipped its story.
	verifier.result = gateway.Result{Outcome: gateway.OutcomeFailed, Record: gateway.Record{Status: "Rejected"}}

	out, err := r.Reconcile(context.Background(), tx.MerchantOrderID)
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if out.Status != ledger.StatusCompleted {
		t.Fatalf("terminal status changed to %s", out.Status)
	}
	if got := atomic.LoadInt32(&verifier.calls); got != 1 {
		t.Fatalf("terminal deposit must short-circuit without a gateway call, calls=%d", got)
	}

	w, _ := store.WalletForOwner(context.Background(), owner, "EGP")
	if !w.Balance.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("balance applied more than once: %s", w.Balance)
	}
}

func TestReconcileFailedOutcomeHasNoBalanceEffect(t *testing.T) {
	store := ledger.NewInMemory()
	owner, tx := seedPendingDeposit(t, store, 50)
	r := newTestReconciler(store, &stubVerifier{
		result: gateway.Result{Outcome: gateway.OutcomeFailed, Record: gateway.Record{Status: "Declined"}},
	})

	out, err := r.Reconcile(context.Background(), tx.MerchantOrderID)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if out.Status != ledger.StatusFailed {
		t.Fatalf("expected failed, got %s", out.Status)
	}

	w, _ := store.WalletForOwner(context.Background(), owner, "EGP")
	if !w.Balance.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("balance must be untouched, got %s", w.Balance)
	}
}

func TestReconcileGatewayTimeoutStaysPending(t *testing.T) {
	store := ledger.NewInMemory()
	owner, tx := seedPendingDeposit(t, store, 50)
	r := newTestReconciler(store, &stubVerifier{
		result: gateway.Result{Outcome: gateway.OutcomeError},
		err:    errors.New("context deadline exceeded"),
	})

	out, err := r.Reconcile(context.Background(), tx.MerchantOrderID)
	if !errors.Is(err, ErrGatewayUnavailable) {
		t.Fatalf("expected gateway unavailable, got %v", err)
	}
	if !out.StillPending {
		t.Fatal("expected still pending")
	}

	after, _ := store.TransactionByOrderID(context.Background(), tx.MerchantOrderID)
	if after.Status != ledger.StatusPending {
		t.Fatalf("transaction must stay pending, got %s", after.Status)
	}
	w, _ := store.WalletForOwner(context.Background(), owner, "EGP")
	if !w.Balance.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("balance changed on timeout: %s", w.Balance)
	}
}

func TestReconcileNotFoundStaysPending(t *testing.T) {
	store := ledger.NewInMemory()
	_, tx := seedPendingDeposit(t, store, 50)
	r := newTestReconciler(store, &stubVerifier{result: gateway.Result{Outcome: gateway.OutcomeNotFound}})

	out, err := r.Reconcile(context.Background(), tx.MerchantOrderID)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !out.StillPending || out.GatewayOutcome != gateway.OutcomeNotFound {
		t.Fatalf("unexpected outcome: %+v", out)
	}
}

func TestReconcileUnknownOrder(t *testing.T) {
	store := ledger.NewInMemory()
	r := newTestReconciler(store, &stubVerifier{result: successResult("TX-1")})

	if _, err := r.Reconcile(context.Background(), "wallet-0-missing"); !errors.Is(err, ErrUnknownOrder) {
		t.Fatalf("expected unknown order, got %v", err)
	}
}

func TestReconcileConcurrentCallsApplyDeltaOnce(t *testing.T) {
	store := ledger.NewInMemory()
	owner, tx := seedPendingDeposit(t, store, 50)
	r := newTestReconciler(store, &stubVerifier{result: successResult("TX-1")})

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := r.Reconcile(context.Background(), tx.MerchantOrderID)
			if err != nil {
				t.Errorf("reconcile: %v", err)
				return
			}
			if out.Status != ledger.StatusCompleted {
				t.Errorf("expected completed, got %s", out.Status)
			}
		}()
	}
	wg.Wait()

	w, _ := store.WalletForOwner(context.Background(), owner, "EGP")
	if !w.Balance.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("expected balance 150 after concurrent reconciliation, got %s", w.Balance)
	}
}

// conflictingStore forces a bounded number of version conflicts before
// delegating, to exercise the internal retry loop.
type conflictingStore struct {
	ledger.Store
	remaining int32
}

func (s *conflictingStore) ApplyTerminalOutcome(ctx context.Context, id string, outcome ledger.Status, delta decimal.Decimal, ref string) (ledger.Transaction, error) {
	if atomic.AddInt32(&s.remaining, -1) >= 0 {
		return ledger.Transaction{}, ledger.ErrConflict
	}
	return s.Store.ApplyTerminalOutcome(ctx, id, outcome, delta, ref)
}

func TestReconcileRetriesLedgerConflicts(t *testing.T) {
	inner := ledger.NewInMemory()
	_, tx := seedPendingDeposit(t, inner, 50)
	store := &conflictingStore{Store: inner, remaining: 2}
	r := newTestReconciler(store, &stubVerifier{result: successResult("TX-1")})

	out, err := r.Reconcile(context.Background(), tx.MerchantOrderID)
	if err != nil {
		t.Fatalf("expected conflicts to be absorbed, got %v", err)
	}
	if out.Status != ledger.StatusCompleted {
		t.Fatalf("expected completed, got %s", out.Status)
	}
}

func TestReconcileSurfacesExhaustedConflicts(t *testing.T) {
	inner := ledger.NewInMemory()
	_, tx := seedPendingDeposit(t, inner, 50)
	store := &conflictingStore{Store: inner, remaining: 10}
	r := newTestReconciler(store, &stubVerifier{result: successResult("TX-1")})

	out, err := r.Reconcile(context.Background(), tx.MerchantOrderID)
	if !errors.Is(err, ErrLedgerBusy) {
		t.Fatalf("expected ledger busy, got %v", err)
	}
	if !out.StillPending {
		t.Fatal("expected still pending after exhausted retries")
	}
}
