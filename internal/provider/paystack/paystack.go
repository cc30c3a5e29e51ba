// Package paystack implements the provider contract against the Paystack
// REST API.
package paystack

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sabipay/wallet/internal/provider"
)

const (
	// ProviderName identifies entries and webhook events from Paystack.
	ProviderName = "paystack"

	defaultBaseURL = "https://api.paystack.co"
	defaultTimeout = 15 * time.Second

	// SignatureHeader carries the HMAC-SHA512 digest of the webhook body.
	SignatureHeader = "x-paystack-signature"

	eventChargeSuccess = "charge.success"

	// Fee schedule: 1.5% plus a 100 naira flat component, waived for
	// payments under 2500 naira, with the total fee capped at 2000 naira.
	feePercentBasisPoints = 150
	feeFlatKobo           = 10_000
	feeFlatWaiverKobo     = 250_000
	feeCapKobo            = 200_000
)

// Client calls the Paystack API with a secret-key bearer token.
type Client struct {
	httpClient *http.Client
	baseURL    string
	secretKey  string
	logger     *zap.Logger
}

// Option adjusts client construction.
type Option func(*Client)

// WithBaseURL points the client at a different API host. Tests use this to
// target an httptest server.
func WithBaseURL(baseURL string) Option {
	return func(client *Client) { client.baseURL = baseURL }
}

// WithHTTPClient substitutes the transport.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(client *Client) { client.httpClient = httpClient }
}

// WithLogger attaches a structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(client *Client) { client.logger = logger }
}

// New builds a Paystack client.
func New(secretKey string, options ...Option) (*Client, error) {
	if secretKey == "" {
		return nil, fmt.Errorf("paystack: secret key is required")
	}
	client := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    defaultBaseURL,
		secretKey:  secretKey,
		logger:     zap.NewNop(),
	}
	for _, option := range options {
		option(client)
	}
	return client, nil
}

// Name returns the provider identifier.
func (client *Client) Name() string { return ProviderName }

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type initializationData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type transactionData struct {
	ID        int64          `json:"id"`
	Status    string         `json:"status"`
	Reference string         `json:"reference"`
	Amount    int64          `json:"amount"`
	Fees      int64          `json:"fees"`
	Channel   string         `json:"channel"`
	PaidAt    string         `json:"paid_at"`
	Metadata  map[string]any `json:"metadata"`
	Customer  struct {
		Email string `json:"email"`
	} `json:"customer"`
}

type webhookBody struct {
	Event string          `json:"event"`
	Data  transactionData `json:"data"`
}

type balanceData struct {
	Currency string `json:"currency"`
	Balance  int64  `json:"balance"`
}

type resolveData struct {
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
}

type recipientData struct {
	RecipientCode string `json:"recipient_code"`
}

type transferData struct {
	TransferCode string `json:"transfer_code"`
	Reference    string `json:"reference"`
	Status       string `json:"status"`
}

// InitializePayment opens a hosted checkout session.
func (client *Client) InitializePayment(ctx context.Context, request provider.InitializationRequest) (provider.Initialization, error) {
	payload := map[string]any{
		"email":     request.Email,
		"amount":    request.AmountKobo,
		"reference": request.Reference,
		"currency":  "NGN",
	}
	if request.CallbackURL != "" {
		payload["callback_url"] = request.CallbackURL
	}
	if len(request.Metadata) > 0 {
		payload["metadata"] = request.Metadata
	}
	var data initializationData
	if err := client.call(ctx, http.MethodPost, "/transaction/initialize", payload, &data); err != nil {
		return provider.Initialization{}, err
	}
	return provider.Initialization{
		AuthorizationURL: data.AuthorizationURL,
		AccessCode:       data.AccessCode,
		Reference:        data.Reference,
	}, nil
}

// VerifyPayment fetches the authoritative state of a transaction.
func (client *Client) VerifyPayment(ctx context.Context, reference string) (provider.Verification, error) {
	var data transactionData
	if err := client.call(ctx, http.MethodGet, "/transaction/verify/"+reference, nil, &data); err != nil {
		return provider.Verification{}, err
	}
	return provider.Verification{
		Reference:         data.Reference,
		ProviderReference: fmt.Sprintf("%d", data.ID),
		Status:            normalizeStatus(data.Status),
		AmountKobo:        data.Amount,
		FeeKobo:           data.Fees,
		Channel:           data.Channel,
		CustomerEmail:     data.Customer.Email,
		PaidAtUnixUTC:     parseTimestamp(data.PaidAt),
	}, nil
}

// ProviderBalances returns the settlement balances of the integration.
func (client *Client) ProviderBalances(ctx context.Context) ([]provider.ProviderBalance, error) {
	var data []balanceData
	if err := client.call(ctx, http.MethodGet, "/balance", nil, &data); err != nil {
		return nil, err
	}
	balances := make([]provider.ProviderBalance, 0, len(data))
	for _, item := range data {
		balances = append(balances, provider.ProviderBalance{Currency: item.Currency, AmountKobo: item.Balance})
	}
	return balances, nil
}

// ResolveBankAccount confirms a payout destination against the bank.
func (client *Client) ResolveBankAccount(ctx context.Context, accountNumber string, bankCode string) (provider.BankAccount, error) {
	var data resolveData
	path := fmt.Sprintf("/bank/resolve?account_number=%s&bank_code=%s", accountNumber, bankCode)
	if err := client.call(ctx, http.MethodGet, path, nil, &data); err != nil {
		return provider.BankAccount{}, err
	}
	return provider.BankAccount{
		AccountNumber: data.AccountNumber,
		AccountName:   data.AccountName,
		BankCode:      bankCode,
	}, nil
}

// InitiateTransfer creates a transfer recipient and queues the payout.
// Paystack requires the two-step recipient-then-transfer sequence.
func (client *Client) InitiateTransfer(ctx context.Context, request provider.TransferRequest) (provider.Transfer, error) {
	var recipient recipientData
	recipientPayload := map[string]any{
		"type":           "nuban",
		"name":           request.Destination.AccountName,
		"account_number": request.Destination.AccountNumber,
		"bank_code":      request.Destination.BankCode,
		"currency":       "NGN",
	}
	if err := client.call(ctx, http.MethodPost, "/transferrecipient", recipientPayload, &recipient); err != nil {
		return provider.Transfer{}, err
	}

	var transfer transferData
	transferPayload := map[string]any{
		"source":    "balance",
		"amount":    request.AmountKobo,
		"recipient": recipient.RecipientCode,
		"reference": request.Reference,
		"reason":    request.Reason,
	}
	if err := client.call(ctx, http.MethodPost, "/transfer", transferPayload, &transfer); err != nil {
		return provider.Transfer{}, err
	}
	return provider.Transfer{
		TransferReference: transfer.TransferCode,
		Status:            normalizeStatus(transfer.Status),
	}, nil
}

// VerifyWebhookSignature checks the HMAC-SHA512 digest of the raw body
// against the x-paystack-signature header value.
func (client *Client) VerifyWebhookSignature(body []byte, signature string) bool {
	mac := hmac.New(sha512.New, []byte(client.secretKey))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// ParseWebhook normalizes a Paystack event notification.
func (client *Client) ParseWebhook(body []byte) (provider.WebhookEvent, error) {
	var parsed webhookBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return provider.WebhookEvent{}, fmt.Errorf("%w: %v", provider.ErrInvalidWebhook, err)
	}
	if parsed.Event == "" {
		return provider.WebhookEvent{}, fmt.Errorf("%w: missing event type", provider.ErrInvalidWebhook)
	}
	status := provider.StatusPending
	if parsed.Event == eventChargeSuccess {
		status = provider.StatusSuccess
	}
	return provider.WebhookEvent{
		Provider:          ProviderName,
		Kind:              parsed.Event,
		Reference:         parsed.Data.Reference,
		ProviderReference: fmt.Sprintf("%d", parsed.Data.ID),
		Status:            status,
		AmountKobo:        parsed.Data.Amount,
		FeeKobo:           parsed.Data.Fees,
		CustomerEmail:     parsed.Data.Customer.Email,
		Metadata:          parsed.Data.Metadata,
		Raw:               json.RawMessage(body),
	}, nil
}

// Fee computes the platform-side charge for a funding amount.
func (client *Client) Fee(amountKobo int64) int64 {
	fee := amountKobo * feePercentBasisPoints / 10_000
	if amountKobo >= feeFlatWaiverKobo {
		fee += feeFlatKobo
	}
	if fee > feeCapKobo {
		fee = feeCapKobo
	}
	return fee
}

func (client *Client) call(ctx context.Context, method string, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("paystack: encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}
	request, err := http.NewRequestWithContext(ctx, method, client.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("paystack: build request: %w", err)
	}
	request.Header.Set("Authorization", "Bearer "+client.secretKey)
	if payload != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := client.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("%w: %v", provider.ErrProviderUnavailable, err)
	}
	defer response.Body.Close()

	raw, err := io.ReadAll(response.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", provider.ErrProviderUnavailable, err)
	}
	if response.StatusCode >= http.StatusInternalServerError {
		client.logger.Warn("paystack server error",
			zap.String("path", path),
			zap.Int("status_code", response.StatusCode))
		return fmt.Errorf("%w: http %d", provider.ErrProviderUnavailable, response.StatusCode)
	}
	if response.StatusCode == http.StatusNotFound {
		return provider.ErrPaymentNotFound
	}

	var parsed envelope
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("paystack: decode response: %w", err)
	}
	if response.StatusCode >= http.StatusBadRequest || !parsed.Status {
		return fmt.Errorf("%w: %s", provider.ErrProviderRejected, parsed.Message)
	}
	if out != nil && len(parsed.Data) > 0 {
		if err := json.Unmarshal(parsed.Data, out); err != nil {
			return fmt.Errorf("paystack: decode data: %w", err)
		}
	}
	return nil
}

func normalizeStatus(raw string) provider.PaymentStatus {
	switch raw {
	case "success":
		return provider.StatusSuccess
	case "failed", "reversed":
		return provider.StatusFailed
	case "abandoned":
		return provider.StatusAbandoned
	}
	return provider.StatusPending
}

func parseTimestamp(raw string) int64 {
	if raw == "" {
		return 0
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return 0
	}
	return parsed.Unix()
}
