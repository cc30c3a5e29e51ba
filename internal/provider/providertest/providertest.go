// Package providertest provides a scriptable in-memory payment provider for
// exercising funding and webhook flows without network calls.
package providertest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sabipay/wallet/internal/provider"
)

// Provider implements provider.PaymentProvider with scripted responses.
// The zero value accepts every signature and verifies every reference as
// pending; set the fields to steer a test.
type Provider struct {
	ProviderName string
	FeeKobo      int64

	InitializeErr error
	VerifyErr     error
	TransferErr   error
	ResolvedName  string

	mu            sync.Mutex
	verifications map[string]provider.Verification
	initialized   []provider.InitializationRequest
	transfers     []provider.TransferRequest
	rejectBodies  bool
}

// New returns an empty scriptable provider.
func New() *Provider {
	return &Provider{
		ProviderName:  "testprov",
		verifications: map[string]provider.Verification{},
	}
}

func (mock *Provider) Name() string {
	if mock.ProviderName == "" {
		return "testprov"
	}
	return mock.ProviderName
}

// ScriptVerification fixes the answer VerifyPayment gives for a reference.
func (mock *Provider) ScriptVerification(reference string, verification provider.Verification) {
	mock.mu.Lock()
	defer mock.mu.Unlock()
	if mock.verifications == nil {
		mock.verifications = map[string]provider.Verification{}
	}
	mock.verifications[reference] = verification
}

// RejectSignatures makes every webhook signature check fail.
func (mock *Provider) RejectSignatures() {
	mock.mu.Lock()
	defer mock.mu.Unlock()
	mock.rejectBodies = true
}

// InitializedRequests returns the initialization calls seen so far.
func (mock *Provider) InitializedRequests() []provider.InitializationRequest {
	mock.mu.Lock()
	defer mock.mu.Unlock()
	return append([]provider.InitializationRequest(nil), mock.initialized...)
}

func (mock *Provider) InitializePayment(_ context.Context, request provider.InitializationRequest) (provider.Initialization, error) {
	if mock.InitializeErr != nil {
		return provider.Initialization{}, mock.InitializeErr
	}
	mock.mu.Lock()
	mock.initialized = append(mock.initialized, request)
	mock.mu.Unlock()
	return provider.Initialization{
		AuthorizationURL: "https://checkout.test/" + request.Reference,
		AccessCode:       "access-" + request.Reference,
		Reference:        request.Reference,
	}, nil
}

func (mock *Provider) VerifyPayment(_ context.Context, reference string) (provider.Verification, error) {
	if mock.VerifyErr != nil {
		return provider.Verification{}, mock.VerifyErr
	}
	mock.mu.Lock()
	defer mock.mu.Unlock()
	verification, scripted := mock.verifications[reference]
	if !scripted {
		return provider.Verification{}, provider.ErrPaymentNotFound
	}
	return verification, nil
}

func (mock *Provider) VerifyWebhookSignature(_ []byte, signature string) bool {
	mock.mu.Lock()
	defer mock.mu.Unlock()
	if mock.rejectBodies {
		return false
	}
	return signature != ""
}

// ParseWebhook expects the same JSON shape the wallet webhook tests build:
// a provider.WebhookEvent serialized as-is.
func (mock *Provider) ParseWebhook(body []byte) (provider.WebhookEvent, error) {
	var event provider.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return provider.WebhookEvent{}, fmt.Errorf("%w: %v", provider.ErrInvalidWebhook, err)
	}
	if event.Kind == "" {
		return provider.WebhookEvent{}, fmt.Errorf("%w: missing kind", provider.ErrInvalidWebhook)
	}
	event.Provider = mock.Name()
	event.Raw = json.RawMessage(body)
	return event, nil
}

func (mock *Provider) Fee(int64) int64 {
	return mock.FeeKobo
}

// Transfers returns the payout requests seen so far.
func (mock *Provider) Transfers() []provider.TransferRequest {
	mock.mu.Lock()
	defer mock.mu.Unlock()
	return append([]provider.TransferRequest(nil), mock.transfers...)
}

func (mock *Provider) ResolveBankAccount(_ context.Context, accountNumber string, bankCode string) (provider.BankAccount, error) {
	name := mock.ResolvedName
	if name == "" {
		name = "Resolved Holder"
	}
	return provider.BankAccount{AccountNumber: accountNumber, AccountName: name, BankCode: bankCode}, nil
}

func (mock *Provider) InitiateTransfer(_ context.Context, request provider.TransferRequest) (provider.Transfer, error) {
	if mock.TransferErr != nil {
		return provider.Transfer{}, mock.TransferErr
	}
	mock.mu.Lock()
	mock.transfers = append(mock.transfers, request)
	mock.mu.Unlock()
	return provider.Transfer{TransferReference: "TRF-" + request.Reference, Status: provider.StatusPending}, nil
}

// ProviderBalances reports one scripted NGN balance.
func (mock *Provider) ProviderBalances(context.Context) ([]provider.ProviderBalance, error) {
	return []provider.ProviderBalance{{Currency: "NGN", AmountKobo: 1_000_000}}, nil
}
