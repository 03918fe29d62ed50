package gateway

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
)

// Outcome is the canonical verification result, independent of the gateway's
// raw field vocabulary.
type Outcome string

const (
	OutcomeSuccess  Outcome = "SUCCESS"
	OutcomeFailed   Outcome = "FAILED"
	OutcomePending  Outcome = "PENDING"
	OutcomeNotFound Outcome = "NOT_FOUND"
	OutcomeError    Outcome = "ERROR"
)

// The gateway reports success through a machine response code.
const successResponseCode = "00"

// Record carries the semantic fields consumed from a gateway transaction
// record. The gateway's fields are not guaranteed to agree with each other, so
// classification reads all of them.
type Record struct {
	Status          string
	LastStatus      string
	PaymentStatus   string
	ResponseCode    string
	ResponseMessage string
	Cancelled       bool
	Voided          bool
	TransactionID   string
	MerchantOrderID string
	Method          string
	Amount          decimal.Decimal
	Currency        string
}

// Result is the normalized outcome of querying the gateway for one order.
type Result struct {
	Outcome Outcome
	Record  Record
	Reason  string
}

// Verifier resolves a merchant order id into a canonical verification result.
// Verification is a pure read against the gateway; repeated calls are always
// safe.
type Verifier interface {
	Verify(ctx context.Context, merchantOrderID string) (Result, error)
}

// Classify applies the multi-signal verification rule to a matched gateway
// record. A single-field check under-verifies or over-verifies because the
// gateway has been observed reporting approved-but-not-captured and
// captured-but-cancelled states.
func Classify(rec Record) Result {
	approved := strings.EqualFold(rec.Status, "APPROVED")
	captured := strings.EqualFold(rec.LastStatus, "CAPTURED")
	paid := strings.EqualFold(rec.PaymentStatus, "SUCCESS")
	codeOK := rec.ResponseCode == successResponseCode
	excluded := rec.Cancelled || rec.Voided

	switch {
	case approved && (captured || paid || codeOK) && !excluded:
		return Result{Outcome: OutcomeSuccess, Record: rec}
	case strings.EqualFold(rec.Status, "REJECTED"),
		strings.EqualFold(rec.Status, "DECLINED"):
		return Result{Outcome: OutcomeFailed, Record: rec, Reason: "gateway rejected the payment"}
	case excluded:
		return Result{Outcome: OutcomeFailed, Record: rec, Reason: "payment cancelled or voided"}
	case rec.ResponseCode != "" && !codeOK:
		return Result{Outcome: OutcomeFailed, Record: rec, Reason: "non-success response code " + rec.ResponseCode}
	default:
		// Awaiting capture or an in-between state.
		return Result{Outcome: OutcomePending, Record: rec}
	}
}
