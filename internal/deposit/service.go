package deposit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nile-shop/nile_shop/internal/gateway"
	"github.com/nile-shop/nile_shop/internal/ledger"
	"github.com/nile-shop/nile_shop/internal/observability"
)

// Service opens deposit transactions ahead of the hosted checkout redirect.
// The transaction is created pending; the Reconciler finalizes it once the
// gateway reports the payment's fate.
type Service struct {
	store    ledger.Store
	signer   *gateway.Signer
	metrics  *observability.Metrics
	logger   *slog.Logger
	currency string
}

// NewService builds a deposit initiation service.
func NewService(store ledger.Store, signer *gateway.Signer, metrics *observability.Metrics, logger *slog.Logger, defaultCurrency string) *Service {
	return &Service{store: store, signer: signer, metrics: metrics, logger: logger, currency: defaultCurrency}
}

// Intent carries everything the client needs to open the hosted checkout page.
type Intent struct {
	TransactionID     string
	MerchantOrderID   string
	Amount            decimal.Decimal
	Currency          string
	MerchantID        string
	CustomerReference string
	Hash              string
	CreatedAt         time.Time
}

// Initiate creates a pending deposit and signs the checkout parameters. The
// merchant order id doubles as the idempotency key for later reconciliation.
func (s *Service) Initiate(ctx context.Context, ownerID string, amount decimal.Decimal, currency string) (Intent, error) {
	if !amount.IsPositive() {
		return Intent{}, ledger.ErrInvalidAmount
	}
	if currency == "" {
		currency = s.currency
	}

	w, err := s.store.WalletForOwner(ctx, ownerID, currency)
	if err != nil {
		return Intent{}, fmt.Errorf("load wallet: %w", err)
	}

	var tx ledger.Transaction
	// Order ids carry a random suffix; retry the insert on the unlikely clash.
	for attempt := 0; attempt < 3; attempt++ {
		orderID := newMerchantOrderID()
		tx, err = s.store.CreateTransaction(ctx, ledger.CreateTransactionInput{
			WalletID:        w.ID,
			OwnerID:         ownerID,
			Kind:            ledger.KindDeposit,
			Amount:          amount,
			Currency:        currency,
			MerchantOrderID: orderID,
			Description:     fmt.Sprintf("wallet top-up of %s %s", amount, currency),
		})
		if err == nil {
			break
		}
		if !errors.Is(err, ledger.ErrDuplicateOrder) {
			return Intent{}, err
		}
	}
	if err != nil {
		return Intent{}, err
	}

	s.metrics.DepositsInitiated.Inc()
	s.logger.Info("deposit initiated",
		slog.String("owner_id", ownerID),
		slog.String("merchant_order_id", tx.MerchantOrderID),
		slog.String("amount", amount.String()),
		slog.String("currency", currency),
	)

	return Intent{
		TransactionID:     tx.ID,
		MerchantOrderID:   tx.MerchantOrderID,
		Amount:            amount,
		Currency:          currency,
		MerchantID:        s.signer.MerchantID(),
		CustomerReference: s.signer.CustomerReference(),
		Hash:              s.signer.CheckoutHash(tx.MerchantOrderID, amount, currency),
		CreatedAt:         tx.CreatedAt,
	}, nil
}

func newMerchantOrderID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("wallet-%d-%s", time.Now().UnixMilli(), suffix)
}
