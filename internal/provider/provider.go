// Package provider abstracts external payment processors behind one
// interface so the funding and payout flows never depend on a concrete
// gateway.
package provider

import (
	"context"
	"encoding/json"
	"errors"
)

// Payment statuses normalized across providers.
type PaymentStatus string

const (
	StatusPending   PaymentStatus = "pending"
	StatusSuccess   PaymentStatus = "success"
	StatusFailed    PaymentStatus = "failed"
	StatusAbandoned PaymentStatus = "abandoned"
)

var (
	// ErrProviderUnavailable marks transient transport or gateway failures
	// that are safe to retry.
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	// ErrPaymentNotFound means the provider has no record of the reference.
	ErrPaymentNotFound = errors.New("payment not found at provider")
	// ErrProviderRejected marks a definitive non-retryable refusal.
	ErrProviderRejected = errors.New("payment provider rejected request")
	// ErrInvalidWebhook marks a webhook body the provider parser cannot read.
	ErrInvalidWebhook = errors.New("invalid webhook payload")
)

// InitializationRequest describes a hosted-checkout session to open.
type InitializationRequest struct {
	Email       string
	AmountKobo  int64
	Reference   string
	CallbackURL string
	Metadata    map[string]any
}

// Initialization is the provider's answer to an initialization request.
type Initialization struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
}

// Verification is the provider's authoritative record of one payment.
type Verification struct {
	Reference         string
	ProviderReference string
	Status            PaymentStatus
	AmountKobo        int64
	FeeKobo           int64
	Channel           string
	CustomerEmail     string
	PaidAtUnixUTC     int64
}

// WebhookEvent is a parsed, normalized provider notification. Metadata
// echoes whatever the platform attached at initialization time.
type WebhookEvent struct {
	Provider          string
	Kind              string
	Reference         string
	ProviderReference string
	Status            PaymentStatus
	AmountKobo        int64
	FeeKobo           int64
	CustomerEmail     string
	Metadata          map[string]any
	Raw               json.RawMessage
}

// PaymentProvider is the gateway contract the wallet consumes.
// VerifyPayment is read-only; crediting is driven by webhooks alone.
type PaymentProvider interface {
	Name() string
	InitializePayment(ctx context.Context, request InitializationRequest) (Initialization, error)
	VerifyPayment(ctx context.Context, reference string) (Verification, error)
	VerifyWebhookSignature(body []byte, signature string) bool
	ParseWebhook(body []byte) (WebhookEvent, error)
	ProviderBalances(ctx context.Context) ([]ProviderBalance, error)
	Fee(amountKobo int64) int64
}

// TransferCapable is the optional payout capability. Call sites that need a
// transfer assert for it on the configured provider; gateways without a
// disbursement API simply do not implement it.
type TransferCapable interface {
	ResolveBankAccount(ctx context.Context, accountNumber string, bankCode string) (BankAccount, error)
	InitiateTransfer(ctx context.Context, request TransferRequest) (Transfer, error)
}

// ProviderBalance is one currency position held at the gateway.
type ProviderBalance struct {
	Currency   string
	AmountKobo int64
}

// BankAccount is a resolved payout destination.
type BankAccount struct {
	AccountNumber string
	AccountName   string
	BankCode      string
}

// TransferRequest describes an outbound payout.
type TransferRequest struct {
	AmountKobo  int64
	Reference   string
	Reason      string
	Destination BankAccount
}

// Transfer is the provider's record of an initiated payout.
type Transfer struct {
	TransferReference string
	Status            PaymentStatus
}
