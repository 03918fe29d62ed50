package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

const defaultTimeout = 10 * time.Second

// Client queries the hosted payment gateway's transaction aggregator API over
// HTTP. Transport failures and non-2xx responses classify as OutcomeError so
// callers retry instead of finalizing.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient builds a gateway client. A zero timeout falls back to the default.
func NewClient(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// aggregator response envelope: {"body": [record, ...]}
type aggregatorResponse struct {
	Body []aggregatorRecord `json:"body"`
}

type aggregatorRecord struct {
	Status          string          `json:"status"`
	LastStatus      string          `json:"lastStatus"`
	PaymentStatus   string          `json:"paymentStatus"`
	ResponseCode    string          `json:"transactionResponseCode"`
	ResponseMessage string          `json:"transactionResponseMessage"`
	IsCancelled     bool            `json:"isCancelled"`
	IsVoided        bool            `json:"isVoided"`
	TransactionID   string          `json:"transactionId"`
	MerchantOrderID string          `json:"merchantOrderId"`
	Method          string          `json:"method"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
}

// Verify queries the gateway by merchant order id and classifies the first
// matching record.
func (c *Client) Verify(ctx context.Context, merchantOrderID string) (Result, error) {
	endpoint := fmt.Sprintf("%s/v2/aggregator/transactions?search=%s&limit=1",
		c.baseURL, url.QueryEscape(merchantOrderID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Result{Outcome: OutcomeError}, fmt.Errorf("build verify request: %w", err)
	}
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// Timeouts land here; never classify them as FAILED because the payment
		// may have succeeded on the gateway side.
		return Result{Outcome: OutcomeError}, fmt.Errorf("gateway request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("gateway returned non-success status",
			slog.Int("status", resp.StatusCode),
			slog.String("merchant_order_id", merchantOrderID),
		)
		return Result{Outcome: OutcomeError}, fmt.Errorf("gateway status %d", resp.StatusCode)
	}

	var payload aggregatorResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Result{Outcome: OutcomeError}, fmt.Errorf("decode gateway response: %w", err)
	}

	if len(payload.Body) == 0 {
		return Result{Outcome: OutcomeNotFound, Reason: "no transaction found for order id"}, nil
	}

	rec := payload.Body[0]
	result := Classify(Record{
		Status:          rec.Status,
		LastStatus:      rec.LastStatus,
		PaymentStatus:   rec.PaymentStatus,
		ResponseCode:    rec.ResponseCode,
		ResponseMessage: rec.ResponseMessage,
		Cancelled:       rec.IsCancelled,
		Voided:          rec.IsVoided,
		TransactionID:   rec.TransactionID,
		MerchantOrderID: rec.MerchantOrderID,
		Method:          rec.Method,
		Amount:          rec.Amount,
		Currency:        rec.Currency,
	})

	c.logger.Info("gateway verification",
		slog.String("merchant_order_id", merchantOrderID),
		slog.String("outcome", string(result.Outcome)),
		slog.String("gateway_status", rec.Status),
		slog.String("last_status", rec.LastStatus),
		slog.String("payment_status", rec.PaymentStatus),
		slog.String("response_code", rec.ResponseCode),
	)
	return result, nil
}
