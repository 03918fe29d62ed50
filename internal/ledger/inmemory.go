package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type inMemoryStore struct {
	mu             sync.Mutex
	walletsByOwner map[string]*Wallet
	walletsByID    map[string]*Wallet
	transactions   map[string]*Transaction
	byOrderID      map[string]string
}

// NewInMemory creates a concurrency-safe in-memory store. It backs unit tests
// and local development without Postgres.
func NewInMemory() Store {
	return &inMemoryStore{
		walletsByOwner: make(map[string]*Wallet),
		walletsByID:    make(map[string]*Wallet),
		transactions:   make(map[string]*Transaction),
		byOrderID:      make(map[string]string),
	}
}

func (s *inMemoryStore) WalletForOwner(_ context.Context, ownerID, currency string) (Wallet, error) {
	if ownerID == "" {
		return Wallet{}, fmt.Errorf("owner id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if w, ok := s.walletsByOwner[ownerID]; ok {
		return *w, nil
	}

	now := time.Now().UTC()
	w := &Wallet{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Balance:   decimal.Zero,
		Currency:  currency,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.walletsByOwner[ownerID] = w
	s.walletsByID[w.ID] = w
	return *w, nil
}

func (s *inMemoryStore) CreateTransaction(_ context.Context, input CreateTransactionInput) (Transaction, error) {
	if !input.Amount.IsPositive() {
		return Transaction{}, ErrInvalidAmount
	}
	if input.MerchantOrderID == "" {
		return Transaction{}, fmt.Errorf("merchant order id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byOrderID[input.MerchantOrderID]; exists {
		return Transaction{}, ErrDuplicateOrder
	}
	if _, ok := s.walletsByID[input.WalletID]; !ok {
		return Transaction{}, fmt.Errorf("wallet %s not found", input.WalletID)
	}

	now := time.Now().UTC()
	tx := &Transaction{
		ID:              uuid.NewString(),
		WalletID:        input.WalletID,
		OwnerID:         input.OwnerID,
		Kind:            input.Kind,
		Amount:          input.Amount,
		Currency:        input.Currency,
		Status:          StatusPending,
		MerchantOrderID: input.MerchantOrderID,
		Description:     input.Description,
		Metadata:        cloneMetadata(input.Metadata),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s.transactions[tx.ID] = tx
	s.byOrderID[tx.MerchantOrderID] = tx.ID
	return *tx, nil
}

func (s *inMemoryStore) TransactionByOrderID(_ context.Context, merchantOrderID string) (Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byOrderID[merchantOrderID]
	if !ok {
		return Transaction{}, ErrTransactionNotFound
	}
	return *s.transactions[id], nil
}

func (s *inMemoryStore) TransactionByID(_ context.Context, id string) (Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[id]
	if !ok {
		return Transaction{}, ErrTransactionNotFound
	}
	return *tx, nil
}

func (s *inMemoryStore) RecentTransactions(_ context.Context, ownerID string, limit int) ([]Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Transaction
	for _, tx := range s.transactions {
		if tx.OwnerID == ownerID {
			out = append(out, *tx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *inMemoryStore) ApplyTerminalOutcome(_ context.Context, transactionID string, outcome Status, balanceDelta decimal.Decimal, gatewayReference string) (Transaction, error) {
	if !outcome.Terminal() {
		return Transaction{}, fmt.Errorf("outcome %q is not terminal", outcome)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[transactionID]
	if !ok {
		return Transaction{}, ErrTransactionNotFound
	}
	if tx.Status != StatusPending {
		return *tx, ErrAlreadyFinalized
	}

	if outcome == StatusCompleted && !balanceDelta.IsZero() {
		w, ok := s.walletsByID[tx.WalletID]
		if !ok {
			return Transaction{}, fmt.Errorf("wallet %s not found", tx.WalletID)
		}
		next := w.Balance.Add(balanceDelta)
		if next.IsNegative() {
			return *tx, ErrInsufficientFunds
		}
		w.Balance = next
		w.Version++
		w.UpdatedAt = time.Now().UTC()
	}

	tx.Status = outcome
	if gatewayReference != "" {
		tx.GatewayReference = gatewayReference
	}
	tx.UpdatedAt = time.Now().UTC()
	return *tx, nil
}

func (s *inMemoryStore) RecomputeBalance(_ context.Context, walletID string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.walletsByID[walletID]; !ok {
		return decimal.Zero, fmt.Errorf("wallet %s not found", walletID)
	}

	sum := decimal.Zero
	for _, tx := range s.transactions {
		if tx.WalletID != walletID || tx.Status != StatusCompleted {
			continue
		}
		switch tx.Kind {
		case KindDeposit, KindRefund:
			sum = sum.Add(tx.Amount)
		case KindPurchase:
			sum = sum.Sub(tx.Amount)
		}
	}
	return sum, nil
}

func cloneMetadata(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
