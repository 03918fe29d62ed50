package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/shopspring/decimal"
)

// Signer produces the checkout signature the hosted payment page requires
// before redirecting a customer. The gateway recomputes the same HMAC to
// reject tampered amounts.
type Signer struct {
	merchantID        string
	customerReference string
	paymentKey        []byte
}

// NewSigner builds a checkout signer for the given merchant.
func NewSigner(merchantID, customerReference, paymentKey string) *Signer {
	return &Signer{
		merchantID:        merchantID,
		customerReference: customerReference,
		paymentKey:        []byte(paymentKey),
	}
}

// MerchantID returns the merchant identifier embedded in checkout parameters.
func (s *Signer) MerchantID() string { return s.merchantID }

// CustomerReference returns the optional customer reference.
func (s *Signer) CustomerReference() string { return s.customerReference }

// CheckoutHash signs the order parameters with HMAC-SHA256 over the gateway's
// documented path format:
//
//	/?payment=<mid>.<orderId>.<amount>.<currency>[.<customerRef>]
func (s *Signer) CheckoutHash(merchantOrderID string, amount decimal.Decimal, currency string) string {
	path := fmt.Sprintf("/?payment=%s.%s.%s.%s", s.merchantID, merchantOrderID, amount.String(), currency)
	if s.customerReference != "" {
		path += "." + s.customerReference
	}
	mac := hmac.New(sha256.New, s.paymentKey)
	mac.Write([]byte(path))
	return hex.EncodeToString(mac.Sum(nil))
}
