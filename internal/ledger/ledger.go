package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidAmount occurs when a transaction is created with a zero or
	// negative amount.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrDuplicateOrder indicates the provided merchant order identifier already
	// maps to a transaction; the order id is the idempotency key.
	ErrDuplicateOrder = errors.New("duplicate merchant order id")

	// ErrTransactionNotFound indicates no transaction matches the lookup.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrAlreadyFinalized indicates the transaction already left the pending
	// state. It is informational: the caller lost the finalization race and the
	// existing terminal state stands.
	ErrAlreadyFinalized = errors.New("transaction already finalized")

	// ErrConflict indicates the wallet row changed under an optimistic update.
	// The whole outcome application was rolled back and may be retried.
	ErrConflict = errors.New("ledger version conflict")

	// ErrInsufficientFunds occurs when applying a debit would drive the wallet
	// balance negative.
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// Kind enumerates the transaction kinds affecting a wallet balance.
type Kind string

const (
	KindDeposit  Kind = "deposit"
	KindPurchase Kind = "purchase"
	KindRefund   Kind = "refund"
)

// Status enumerates the transaction lifecycle states. Transitions are
// monotonic: pending moves to exactly one terminal state, terminal states
// never change.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is one of the terminal states.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Wallet is a per-owner prepaid balance record. Balance never goes negative;
// Version increases with every balance mutation and guards optimistic
// concurrency.
type Wallet struct {
	ID        string
	OwnerID   string
	Balance   decimal.Decimal
	Currency  string
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Transaction is a single ledger-affecting event with lifecycle status.
// MerchantOrderID correlates it with a gateway-side payment attempt and is
// unique across all transactions.
type Transaction struct {
	ID               string
	WalletID         string
	OwnerID          string
	Kind             Kind
	Amount           decimal.Decimal
	Currency         string
	Status           Status
	MerchantOrderID  string
	GatewayReference string
	Description      string
	Metadata         map[string]string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// CreateTransactionInput captures the data needed to open a pending transaction.
type CreateTransactionInput struct {
	WalletID        string
	OwnerID         string
	Kind            Kind
	Amount          decimal.Decimal
	Currency        string
	MerchantOrderID string
	Description     string
	Metadata        map[string]string
}

// Store is the single source of truth for balances and transaction status.
// It is the only component allowed to mutate balances.
type Store interface {
	// WalletForOwner returns the owner's wallet, creating it with zero balance
	// on first access. Creation is idempotent under concurrent callers.
	WalletForOwner(ctx context.Context, ownerID, currency string) (Wallet, error)

	// CreateTransaction opens a pending transaction. Returns ErrInvalidAmount
	// for non-positive amounts and ErrDuplicateOrder when the merchant order id
	// is already taken, regardless of the first transaction's status.
	CreateTransaction(ctx context.Context, input CreateTransactionInput) (Transaction, error)

	// TransactionByOrderID resolves a transaction by merchant order id.
	TransactionByOrderID(ctx context.Context, merchantOrderID string) (Transaction, error)

	// TransactionByID resolves a transaction by primary identifier.
	TransactionByID(ctx context.Context, id string) (Transaction, error)

	// RecentTransactions lists the owner's newest transactions, newest first.
	RecentTransactions(ctx context.Context, ownerID string, limit int) ([]Transaction, error)

	// ApplyTerminalOutcome atomically flips a pending transaction to the given
	// terminal status and, when the outcome is StatusCompleted, adds
	// balanceDelta to the wallet balance under a version check. The pair is
	// all-or-nothing: if the balance mutation cannot commit the status flip is
	// rolled back.
	//
	// Returns ErrAlreadyFinalized when the transaction is no longer pending
	// (the returned Transaction then carries the existing terminal state),
	// ErrConflict when the wallet version moved mid-update, and
	// ErrInsufficientFunds when the delta would drive the balance negative; in
	// the latter two cases the transaction stays pending.
	ApplyTerminalOutcome(ctx context.Context, transactionID string, outcome Status, balanceDelta decimal.Decimal, gatewayReference string) (Transaction, error)

	// RecomputeBalance replays completed transactions for the wallet and
	// returns the sum of deposits and refunds minus purchases. Used as a
	// reconciliation check against the stored balance.
	RecomputeBalance(ctx context.Context, walletID string) (decimal.Decimal, error)
}
