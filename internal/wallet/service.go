package wallet

import (
	"context"

	"github.com/nile-shop/nile_shop/internal/ledger"
)

const defaultHistoryLimit = 10

// Service exposes read access to a shopper's wallet. Wallets are provisioned
// lazily with a zero balance on first access; all mutation goes through the
// deposit and purchase flows.
type Service struct {
	store    ledger.Store
	currency string
}

// NewService builds a wallet view service.
func NewService(store ledger.Store, defaultCurrency string) *Service {
	return &Service{store: store, currency: defaultCurrency}
}

// Overview returns the owner's wallet, creating it on first access.
func (s *Service) Overview(ctx context.Context, ownerID string) (ledger.Wallet, error) {
	return s.store.WalletForOwner(ctx, ownerID, s.currency)
}

// Recent returns the owner's newest transactions, newest first.
func (s *Service) Recent(ctx context.Context, ownerID string, limit int) ([]ledger.Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = defaultHistoryLimit
	}
	return s.store.RecentTransactions(ctx, ownerID, limit)
}

// Audit replays completed transactions and compares the result with the
// stored balance. A mismatch means the ledger invariant was violated.
func (s *Service) Audit(ctx context.Context, ownerID string) (bool, error) {
	w, err := s.store.WalletForOwner(ctx, ownerID, s.currency)
	if err != nil {
		return false, err
	}
	replayed, err := s.store.RecomputeBalance(ctx, w.ID)
	if err != nil {
		return false, err
	}
	return replayed.Equal(w.Balance), nil
}
