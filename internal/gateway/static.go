package gateway

import (
	"context"

	"github.com/google/uuid"
)

// StaticVerifier simulates the gateway for local development and tests. Every
// order verifies to the configured outcome with a synthetic reference.
type StaticVerifier struct {
	Outcome Outcome
}

// Verify returns the configured outcome for any order id.
func (v StaticVerifier) Verify(_ context.Context, merchantOrderID string) (Result, error) {
	outcome := v.Outcome
	if outcome == "" {
		outcome = OutcomeSuccess
	}
	rec := Record{
		TransactionID:   uuid.NewString(),
		MerchantOrderID: merchantOrderID,
	}
	if outcome == OutcomeSuccess {
		rec.Status = "Approved"
		rec.LastStatus = "CAPTURED"
		rec.PaymentStatus = "SUCCESS"
		rec.ResponseCode = successResponseCode
	}
	return Result{Outcome: outcome, Record: rec}, nil
}
