package deposit

import "github.com/shopspring/decimal"

// InitiateRequest captures the client's request to open a deposit before the
// hosted checkout redirect.
type InitiateRequest struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency" validate:"omitempty,iso4217"`
}

// IntentResponse returns the signed checkout parameters.
type IntentResponse struct {
	TransactionID     string          `json:"transaction_id"`
	MerchantOrderID   string          `json:"merchant_order_id"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	MerchantID        string          `json:"merchant_id"`
	CustomerReference string          `json:"customer_reference,omitempty"`
	Hash              string          `json:"hash"`
}

// ReconcileRequest identifies the deposit to reconcile. The return-path page
// and the gateway webhook both post this.
type ReconcileRequest struct {
	MerchantOrderID string `json:"merchant_order_id" validate:"required"`
}

// ReconcileResponse reports the deposit's status after one reconciliation
// attempt.
type ReconcileResponse struct {
	MerchantOrderID  string          `json:"merchant_order_id"`
	Status           string          `json:"status"`
	StillPending     bool            `json:"still_pending"`
	Expired          bool            `json:"expired,omitempty"`
	GatewayOutcome   string          `json:"gateway_outcome,omitempty"`
	GatewayReference string          `json:"gateway_reference,omitempty"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
}
