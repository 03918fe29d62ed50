package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const uniqueViolation = "23505"

// PostgresStore persists wallets and transactions in PostgreSQL. Balance
// mutations are guarded by a version column; the status flip and the balance
// update commit inside one database transaction.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed ledger store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// WalletForOwner fetches the owner's wallet, inserting a zero-balance row on
// first access. The unique constraint on owner_id absorbs concurrent creates.
func (s *PostgresStore) WalletForOwner(ctx context.Context, ownerID, currency string) (Wallet, error) {
	ownerUUID, err := uuid.Parse(ownerID)
	if err != nil {
		return Wallet{}, fmt.Errorf("parse owner id: %w", err)
	}

	_, err = s.db.Exec(ctx, `INSERT INTO wallets (id, owner_id, balance, currency, version, created_at, updated_at)
        VALUES ($1, $2, 0, $3, 1, now(), now())
        ON CONFLICT (owner_id) DO NOTHING`, uuid.New(), ownerUUID, currency)
	if err != nil {
		return Wallet{}, err
	}

	return s.walletByOwner(ctx, ownerUUID)
}

func (s *PostgresStore) walletByOwner(ctx context.Context, ownerID uuid.UUID) (Wallet, error) {
	row := s.db.QueryRow(ctx, `SELECT id, owner_id, balance::text, currency, version, created_at, updated_at
        FROM wallets WHERE owner_id = $1`, ownerID)
	return scanWallet(row)
}

func scanWallet(row pgx.Row) (Wallet, error) {
	var (
		w          Wallet
		id, owner  uuid.UUID
		balanceRaw string
		createdAt  time.Time
		updatedAt  time.Time
	)
	if err := row.Scan(&id, &owner, &balanceRaw, &w.Currency, &w.Version, &createdAt, &updatedAt); err != nil {
		return Wallet{}, err
	}
	balance, err := decimal.NewFromString(balanceRaw)
	if err != nil {
		return Wallet{}, fmt.Errorf("parse balance: %w", err)
	}
	w.ID = id.String()
	w.OwnerID = owner.String()
	w.Balance = balance
	w.CreatedAt = createdAt.UTC()
	w.UpdatedAt = updatedAt.UTC()
	return w, nil
}

// CreateTransaction inserts a pending transaction row. The unique index on
// merchant_order_id enforces the idempotency key.
func (s *PostgresStore) CreateTransaction(ctx context.Context, input CreateTransactionInput) (Transaction, error) {
	if !input.Amount.IsPositive() {
		return Transaction{}, ErrInvalidAmount
	}
	if input.MerchantOrderID == "" {
		return Transaction{}, fmt.Errorf("merchant order id is required")
	}

	walletID, err := uuid.Parse(input.WalletID)
	if err != nil {
		return Transaction{}, fmt.Errorf("parse wallet id: %w", err)
	}
	ownerID, err := uuid.Parse(input.OwnerID)
	if err != nil {
		return Transaction{}, fmt.Errorf("parse owner id: %w", err)
	}

	var metadata []byte
	if input.Metadata != nil {
		metadata, err = json.Marshal(input.Metadata)
		if err != nil {
			return Transaction{}, fmt.Errorf("encode metadata: %w", err)
		}
	}

	txID := uuid.New()
	_, err = s.db.Exec(ctx, `INSERT INTO wallet_transactions
        (id, wallet_id, owner_id, kind, amount, currency, status, merchant_order_id, description, metadata, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())`,
		txID, walletID, ownerID, string(input.Kind), input.Amount.String(), input.Currency,
		string(StatusPending), input.MerchantOrderID, input.Description, metadata)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Transaction{}, ErrDuplicateOrder
		}
		return Transaction{}, err
	}

	return s.TransactionByID(ctx, txID.String())
}

// TransactionByOrderID resolves a transaction by merchant order id.
func (s *PostgresStore) TransactionByOrderID(ctx context.Context, merchantOrderID string) (Transaction, error) {
	row := s.db.QueryRow(ctx, selectTransaction+` WHERE merchant_order_id = $1`, merchantOrderID)
	tx, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, ErrTransactionNotFound
	}
	return tx, err
}

// TransactionByID resolves a transaction by primary identifier.
func (s *PostgresStore) TransactionByID(ctx context.Context, id string) (Transaction, error) {
	txID, err := uuid.Parse(id)
	if err != nil {
		return Transaction{}, fmt.Errorf("parse transaction id: %w", err)
	}
	row := s.db.QueryRow(ctx, selectTransaction+` WHERE id = $1`, txID)
	tx, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, ErrTransactionNotFound
	}
	return tx, err
}

// RecentTransactions lists the owner's newest transactions.
func (s *PostgresStore) RecentTransactions(ctx context.Context, ownerID string, limit int) ([]Transaction, error) {
	ownerUUID, err := uuid.Parse(ownerID)
	if err != nil {
		return nil, fmt.Errorf("parse owner id: %w", err)
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.Query(ctx, selectTransaction+` WHERE owner_id = $1 ORDER BY created_at DESC LIMIT $2`, ownerUUID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

// ApplyTerminalOutcome flips a pending transaction to its terminal status and,
// for completed outcomes, applies the balance delta. Both statements run in one
// database transaction; a failed balance update rolls the status flip back.
func (s *PostgresStore) ApplyTerminalOutcome(ctx context.Context, transactionID string, outcome Status, balanceDelta decimal.Decimal, gatewayReference string) (Transaction, error) {
	if !outcome.Terminal() {
		return Transaction{}, fmt.Errorf("outcome %q is not terminal", outcome)
	}
	txID, err := uuid.Parse(transactionID)
	if err != nil {
		return Transaction{}, fmt.Errorf("parse transaction id: %w", err)
	}

	dbtx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Transaction{}, err
	}
	defer dbtx.Rollback(ctx) // nolint:errcheck

	var walletID uuid.UUID
	err = dbtx.QueryRow(ctx, `UPDATE wallet_transactions
        SET status = $2,
            gateway_reference = COALESCE(NULLIF($3, ''), gateway_reference),
            updated_at = now()
        WHERE id = $1 AND status = $4
        RETURNING wallet_id`,
		txID, string(outcome), gatewayReference, string(StatusPending)).Scan(&walletID)
	if errors.Is(err, pgx.ErrNoRows) {
		// Another caller won the pending -> terminal race, or the id is unknown.
		existing, lookupErr := s.TransactionByID(ctx, transactionID)
		if lookupErr != nil {
			return Transaction{}, lookupErr
		}
		return existing, ErrAlreadyFinalized
	}
	if err != nil {
		return Transaction{}, err
	}

	if outcome == StatusCompleted && !balanceDelta.IsZero() {
		var version int64
		var balanceRaw string
		if err := dbtx.QueryRow(ctx, `SELECT version, balance::text FROM wallets WHERE id = $1`, walletID).Scan(&version, &balanceRaw); err != nil {
			return Transaction{}, err
		}
		balance, err := decimal.NewFromString(balanceRaw)
		if err != nil {
			return Transaction{}, fmt.Errorf("parse balance: %w", err)
		}
		if balance.Add(balanceDelta).IsNegative() {
			return Transaction{}, ErrInsufficientFunds
		}

		cmd, err := dbtx.Exec(ctx, `UPDATE wallets
            SET balance = balance + $2, version = version + 1, updated_at = now()
            WHERE id = $1 AND version = $3 AND balance + $2 >= 0`,
			walletID, balanceDelta.String(), version)
		if err != nil {
			return Transaction{}, err
		}
		if cmd.RowsAffected() == 0 {
			return Transaction{}, ErrConflict
		}
	}

	if err := dbtx.Commit(ctx); err != nil {
		return Transaction{}, err
	}

	return s.TransactionByID(ctx, transactionID)
}

// RecomputeBalance replays completed transactions for a wallet.
func (s *PostgresStore) RecomputeBalance(ctx context.Context, walletID string) (decimal.Decimal, error) {
	id, err := uuid.Parse(walletID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse wallet id: %w", err)
	}

	var raw string
	err = s.db.QueryRow(ctx, `SELECT COALESCE(SUM(CASE WHEN kind = 'purchase' THEN -amount ELSE amount END), 0)::text
        FROM wallet_transactions WHERE wallet_id = $1 AND status = 'completed'`, id).Scan(&raw)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(raw)
}

const selectTransaction = `SELECT id, wallet_id, owner_id, kind, amount::text, currency, status,
    merchant_order_id, COALESCE(gateway_reference, ''), COALESCE(description, ''), metadata, created_at, updated_at
    FROM wallet_transactions`

func scanTransaction(row pgx.Row) (Transaction, error) {
	var (
		tx               Transaction
		id, wallet, owner uuid.UUID
		kind, status     string
		amountRaw        string
		metadata         []byte
		createdAt        time.Time
		updatedAt        time.Time
	)
	if err := row.Scan(&id, &wallet, &owner, &kind, &amountRaw, &tx.Currency, &status,
		&tx.MerchantOrderID, &tx.GatewayReference, &tx.Description, &metadata, &createdAt, &updatedAt); err != nil {
		return Transaction{}, err
	}
	amount, err := decimal.NewFromString(amountRaw)
	if err != nil {
		return Transaction{}, fmt.Errorf("parse amount: %w", err)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &tx.Metadata); err != nil {
			return Transaction{}, fmt.Errorf("decode metadata: %w", err)
		}
	}
	tx.ID = id.String()
	tx.WalletID = wallet.String()
	tx.OwnerID = owner.String()
	tx.Kind = Kind(kind)
	tx.Amount = amount
	tx.Status = Status(status)
	tx.CreatedAt = createdAt.UTC()
	tx.UpdatedAt = updatedAt.UTC()
	return tx, nil
}
