// Package monnify implements the provider contract against the Monnify
// REST API. Monnify authenticates with short-lived OAuth tokens obtained
// through a basic-auth login call.
package monnify

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
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sabipay/wallet/internal/provider"
)

const (
	// ProviderName identifies entries and webhook events from Monnify.
	ProviderName = "monnify"

	defaultBaseURL = "https://api.monnify.com"
	defaultTimeout = 15 * time.Second

	// SignatureHeader carries the HMAC-SHA512 digest of the webhook body.
	SignatureHeader = "monnify-signature"

	eventSuccessfulTransaction = "SUCCESSFUL_TRANSACTION"

	loginPath      = "/api/v1/auth/login"
	initPath       = "/api/v1/merchant/transactions/init-transaction"
	queryPath      = "/api/v2/transactions/"
	walletBalances = "/api/v2/disbursements/wallet-balance"

	// Tokens are refreshed this long before their reported expiry.
	tokenExpirySlack = 60 * time.Second

	// Fee schedule: 1.0% capped at 500 naira.
	feePercentBasisPoints = 100
	feeCapKobo            = 50_000
)

// Client calls the Monnify API and caches its access token.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	apiKey       string
	secretKey    string
	contractCode string
	logger       *zap.Logger

	tokenMu     sync.Mutex
	token       string
	tokenExpiry time.Time
}

// Option adjusts client construction.
type Option func(*Client)

// WithBaseURL points the client at a different API host.
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

// New builds a Monnify client.
func New(apiKey string, secretKey string, contractCode string, options ...Option) (*Client, error) {
	if apiKey == "" || secretKey == "" || contractCode == "" {
		return nil, fmt.Errorf("monnify: api key, secret key, and contract code are required")
	}
	client := &Client{
		httpClient:   &http.Client{Timeout: defaultTimeout},
		baseURL:      defaultBaseURL,
		apiKey:       apiKey,
		secretKey:    secretKey,
		contractCode: contractCode,
		logger:       zap.NewNop(),
	}
	for _, option := range options {
		option(client)
	}
	return client, nil
}

// Name returns the provider identifier.
func (client *Client) Name() string { return ProviderName }

type envelope struct {
	RequestSuccessful bool            `json:"requestSuccessful"`
	ResponseMessage   string          `json:"responseMessage"`
	ResponseBody      json.RawMessage `json:"responseBody"`
}

type loginBody struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int64  `json:"expiresIn"`
}

type initializationBody struct {
	TransactionReference string `json:"transactionReference"`
	PaymentReference     string `json:"paymentReference"`
	CheckoutURL          string `json:"checkoutUrl"`
}

type transactionBody struct {
	TransactionReference string         `json:"transactionReference"`
	PaymentReference     string         `json:"paymentReference"`
	PaymentStatus        string         `json:"paymentStatus"`
	AmountPaid           float64        `json:"amountPaid"`
	Fee                  float64        `json:"fee"`
	PaymentMethod        string         `json:"paymentMethod"`
	PaidOn               string         `json:"paidOn"`
	MetaData             map[string]any `json:"metaData"`
	Customer             struct {
		Email string `json:"email"`
	} `json:"customer"`
}

type webhookBody struct {
	EventType string          `json:"eventType"`
	EventData transactionBody `json:"eventData"`
}

type walletBalanceBody struct {
	AvailableBalance float64 `json:"availableBalance"`
}

// InitializePayment opens a hosted checkout session. Monnify amounts are
// naira decimals on the wire; the kobo conversion stays inside this package.
func (client *Client) InitializePayment(ctx context.Context, request provider.InitializationRequest) (provider.Initialization, error) {
	payload := map[string]any{
		"amount":             koboToNaira(request.AmountKobo),
		"customerEmail":      request.Email,
		"paymentReference":   request.Reference,
		"paymentDescription": "wallet funding",
		"currencyCode":       "NGN",
		"contractCode":       client.contractCode,
	}
	if request.CallbackURL != "" {
		payload["redirectUrl"] = request.CallbackURL
	}
	if len(request.Metadata) > 0 {
		payload["metaData"] = request.Metadata
	}
	var body initializationBody
	if err := client.call(ctx, http.MethodPost, initPath, payload, &body, true); err != nil {
		return provider.Initialization{}, err
	}
	return provider.Initialization{
		AuthorizationURL: body.CheckoutURL,
		AccessCode:       body.TransactionReference,
		Reference:        body.PaymentReference,
	}, nil
}

// VerifyPayment fetches the authoritative state of a transaction by its
// Monnify transaction reference.
func (client *Client) VerifyPayment(ctx context.Context, reference string) (provider.Verification, error) {
	var body transactionBody
	if err := client.call(ctx, http.MethodGet, queryPath+url.PathEscape(reference), nil, &body, true); err != nil {
		return provider.Verification{}, err
	}
	return provider.Verification{
		Reference:         body.PaymentReference,
		ProviderReference: body.TransactionReference,
		Status:            normalizeStatus(body.PaymentStatus),
		AmountKobo:        nairaToKobo(body.AmountPaid),
		FeeKobo:           nairaToKobo(body.Fee),
		Channel:           body.PaymentMethod,
		CustomerEmail:     body.Customer.Email,
		PaidAtUnixUTC:     parseTimestamp(body.PaidOn),
	}, nil
}

// ProviderBalances reports the disbursement wallet balance.
func (client *Client) ProviderBalances(ctx context.Context) ([]provider.ProviderBalance, error) {
	var body walletBalanceBody
	if err := client.call(ctx, http.MethodGet, walletBalances, nil, &body, true); err != nil {
		return nil, err
	}
	return []provider.ProviderBalance{
		{Currency: "NGN", AmountKobo: nairaToKobo(body.AvailableBalance)},
	}, nil
}

// VerifyWebhookSignature checks the HMAC-SHA512 digest of the raw body
// against the monnify-signature header value.
func (client *Client) VerifyWebhookSignature(body []byte, signature string) bool {
	mac := hmac.New(sha512.New, []byte(client.secretKey))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// ParseWebhook normalizes a Monnify event notification.
func (client *Client) ParseWebhook(body []byte) (provider.WebhookEvent, error) {
	var parsed webhookBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return provider.WebhookEvent{}, fmt.Errorf("%w: %v", provider.ErrInvalidWebhook, err)
	}
	if parsed.EventType == "" {
		return provider.WebhookEvent{}, fmt.Errorf("%w: missing event type", provider.ErrInvalidWebhook)
	}
	status := provider.StatusPending
	if parsed.EventType == eventSuccessfulTransaction {
		status = provider.StatusSuccess
	}
	return provider.WebhookEvent{
		Provider:          ProviderName,
		Kind:              parsed.EventType,
		Reference:         parsed.EventData.PaymentReference,
		ProviderReference: parsed.EventData.TransactionReference,
		Status:            status,
		AmountKobo:        nairaToKobo(parsed.EventData.AmountPaid),
		FeeKobo:           nairaToKobo(parsed.EventData.Fee),
		CustomerEmail:     parsed.EventData.Customer.Email,
		Metadata:          parsed.EventData.MetaData,
		Raw:               json.RawMessage(body),
	}, nil
}

// Fee computes the platform-side charge for a funding amount.
func (client *Client) Fee(amountKobo int64) int64 {
	fee := amountKobo * feePercentBasisPoints / 10_000
	if fee > feeCapKobo {
		fee = feeCapKobo
	}
	return fee
}

// accessToken returns a cached token, logging in again when it is close to
// expiry.
func (client *Client) accessToken(ctx context.Context) (string, error) {
	client.tokenMu.Lock()
	defer client.tokenMu.Unlock()
	if client.token != "" && time.Now().Before(client.tokenExpiry) {
		return client.token, nil
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, client.baseURL+loginPath, nil)
	if err != nil {
		return "", fmt.Errorf("monnify: build login request: %w", err)
	}
	request.SetBasicAuth(client.apiKey, client.secretKey)

	response, err := client.httpClient.Do(request)
	if err != nil {
		return "", fmt.Errorf("%w: %v", provider.ErrProviderUnavailable, err)
	}
	defer response.Body.Close()
	raw, err := io.ReadAll(response.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read login response: %v", provider.ErrProviderUnavailable, err)
	}
	if response.StatusCode >= http.StatusInternalServerError {
		return "", fmt.Errorf("%w: login http %d", provider.ErrProviderUnavailable, response.StatusCode)
	}
	var parsed envelope
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("monnify: decode login response: %w", err)
	}
	if response.StatusCode >= http.StatusBadRequest || !parsed.RequestSuccessful {
		return "", fmt.Errorf("%w: login failed: %s", provider.ErrProviderRejected, parsed.ResponseMessage)
	}
	var body loginBody
	if err := json.Unmarshal(parsed.ResponseBody, &body); err != nil {
		return "", fmt.Errorf("monnify: decode login body: %w", err)
	}
	client.token = body.AccessToken
	client.tokenExpiry = time.Now().Add(time.Duration(body.ExpiresIn)*time.Second - tokenExpirySlack)
	return client.token, nil
}

func (client *Client) call(ctx context.Context, method string, path string, payload any, out any, authenticated bool) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("monnify: encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}
	request, err := http.NewRequestWithContext(ctx, method, client.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("monnify: build request: %w", err)
	}
	if authenticated {
		token, err := client.accessToken(ctx)
		if err != nil {
			return err
		}
		request.Header.Set("Authorization", "Bearer "+token)
	}
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
		client.logger.Warn("monnify server error",
			zap.String("path", path),
			zap.Int("status_code", response.StatusCode))
		return fmt.Errorf("%w: http %d", provider.ErrProviderUnavailable, response.StatusCode)
	}
	if response.StatusCode == http.StatusNotFound {
		return provider.ErrPaymentNotFound
	}

	var parsed envelope
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("monnify: decode response: %w", err)
	}
	if response.StatusCode >= http.StatusBadRequest || !parsed.RequestSuccessful {
		return fmt.Errorf("%w: %s", provider.ErrProviderRejected, parsed.ResponseMessage)
	}
	if out != nil && len(parsed.ResponseBody) > 0 {
		if err := json.Unmarshal(parsed.ResponseBody, out); err != nil {
			return fmt.Errorf("monnify: decode body: %w", err)
		}
	}
	return nil
}

func normalizeStatus(raw string) provider.PaymentStatus {
	switch raw {
	case "PAID":
		return provider.StatusSuccess
	case "FAILED", "CANCELLED", "EXPIRED":
		return provider.StatusFailed
	}
	return provider.StatusPending
}

func koboToNaira(kobo int64) float64 {
	return float64(kobo) / 100
}

func nairaToKobo(naira float64) int64 {
	return int64(naira*100 + 0.5)
}

func parseTimestamp(raw string) int64 {
	if raw == "" {
		return 0
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05.0", "2006-01-02T15:04:05.000"} {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed.Unix()
		}
	}
	return 0
}
