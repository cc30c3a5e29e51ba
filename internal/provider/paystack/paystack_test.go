package paystack_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sabipay/wallet/internal/provider"
	"github.com/sabipay/wallet/internal/provider/paystack"
)

const testSecretKey = "sk_test_secret"

func newTestClient(t *testing.T, handler http.Handler) (*paystack.Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := paystack.New(testSecretKey, paystack.WithBaseURL(server.URL), paystack.WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatalf("client init: %v", err)
	}
	return client, server
}

func TestInitializePayment(t *testing.T) {
	t.Parallel()
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transaction/initialize" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer "+testSecretKey {
			t.Errorf("unexpected authorization header: %s", got)
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		if payload["amount"].(float64) != 100000 {
			t.Errorf("unexpected amount: %v", payload["amount"])
		}
		json.NewEncoder(w).Encode(map[string]any{
			"status":  true,
			"message": "Authorization URL created",
			"data": map[string]any{
				"authorization_url": "https://checkout.paystack.com/abc123",
				"access_code":       "abc123",
				"reference":         "FUND-1",
			},
		})
	}))

	initialization, err := client.InitializePayment(context.Background(), provider.InitializationRequest{
		Email:      "ada@example.com",
		AmountKobo: 100_000,
		Reference:  "FUND-1",
	})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if initialization.AuthorizationURL != "https://checkout.paystack.com/abc123" {
		t.Fatalf("unexpected authorization url: %s", initialization.AuthorizationURL)
	}
	if initialization.Reference != "FUND-1" {
		t.Fatalf("unexpected reference: %s", initialization.Reference)
	}
}

func TestVerifyPayment(t *testing.T) {
	t.Parallel()
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transaction/verify/FUND-1" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"status": true,
			"data": map[string]any{
				"id":        4099260516,
				"status":    "success",
				"reference": "FUND-1",
				"amount":    100000,
				"fees":      1600,
				"channel":   "card",
				"paid_at":   "2026-08-27T10:00:00Z",
				"customer":  map[string]any{"email": "ada@example.com"},
			},
		})
	}))

	verification, err := client.VerifyPayment(context.Background(), "FUND-1")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if verification.Status != provider.StatusSuccess {
		t.Fatalf("expected success, got %s", verification.Status)
	}
	if verification.AmountKobo != 100_000 || verification.FeeKobo != 1_600 {
		t.Fatalf("unexpected amounts: %d / %d", verification.AmountKobo, verification.FeeKobo)
	}
	if verification.ProviderReference != "4099260516" {
		t.Fatalf("unexpected provider reference: %s", verification.ProviderReference)
	}
	if verification.PaidAtUnixUTC == 0 {
		t.Fatalf("expected paid_at to be parsed")
	}
}

func TestVerifyPaymentNotFound(t *testing.T) {
	t.Parallel()
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	if _, err := client.VerifyPayment(context.Background(), "GHOST"); !errors.Is(err, provider.ErrPaymentNotFound) {
		t.Fatalf("expected ErrPaymentNotFound, got %v", err)
	}
}

func TestServerErrorsAreRetryable(t *testing.T) {
	t.Parallel()
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	if _, err := client.VerifyPayment(context.Background(), "FUND-1"); !errors.Is(err, provider.ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestRejectionsAreNotRetryable(t *testing.T) {
	t.Parallel()
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{"status": false, "message": "Invalid key"})
	}))
	_, err := client.InitializePayment(context.Background(), provider.InitializationRequest{
		Email: "ada@example.com", AmountKobo: 100_000, Reference: "FUND-1",
	})
	if !errors.Is(err, provider.ErrProviderRejected) {
		t.Fatalf("expected ErrProviderRejected, got %v", err)
	}
}

func TestResolveBankAccount(t *testing.T) {
	t.Parallel()
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bank/resolve" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		query := r.URL.Query()
		if query.Get("account_number") != "0123456789" || query.Get("bank_code") != "058" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"status": true,
			"data": map[string]any{
				"account_number": "0123456789",
				"account_name":   "ADA OBI",
			},
		})
	}))

	account, err := client.ResolveBankAccount(context.Background(), "0123456789", "058")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if account.AccountName != "ADA OBI" || account.BankCode != "058" {
		t.Fatalf("unexpected account: %+v", account)
	}
}

func TestInitiateTransfer(t *testing.T) {
	t.Parallel()
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		switch r.URL.Path {
		case "/transferrecipient":
			if payload["type"] != "nuban" || payload["bank_code"] != "058" {
				t.Errorf("unexpected recipient payload: %v", payload)
			}
			json.NewEncoder(w).Encode(map[string]any{
				"status": true,
				"data":   map[string]any{"recipient_code": "RCP_1"},
			})
		case "/transfer":
			if payload["recipient"] != "RCP_1" || payload["amount"].(float64) != 100000 {
				t.Errorf("unexpected transfer payload: %v", payload)
			}
			json.NewEncoder(w).Encode(map[string]any{
				"status": true,
				"data": map[string]any{
					"transfer_code": "TRF_1",
					"reference":     "WD-1",
					"status":        "pending",
				},
			})
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
	}))

	transfer, err := client.InitiateTransfer(context.Background(), provider.TransferRequest{
		AmountKobo: 100_000,
		Reference:  "WD-1",
		Reason:     "wallet withdrawal",
		Destination: provider.BankAccount{
			AccountNumber: "0123456789",
			AccountName:   "Ada Obi",
			BankCode:      "058",
		},
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if transfer.TransferReference != "TRF_1" || transfer.Status != provider.StatusPending {
		t.Fatalf("unexpected transfer: %+v", transfer)
	}
}

func TestWebhookSignature(t *testing.T) {
	t.Parallel()
	client, err := paystack.New(testSecretKey)
	if err != nil {
		t.Fatalf("client init: %v", err)
	}
	body := []byte(`{"event":"charge.success","data":{"reference":"FUND-1"}}`)
	mac := hmac.New(sha512.New, []byte(testSecretKey))
	mac.Write(body)
	signature := hex.EncodeToString(mac.Sum(nil))

	if !client.VerifyWebhookSignature(body, signature) {
		t.Fatalf("expected valid signature to verify")
	}
	if client.VerifyWebhookSignature(body, "deadbeef") {
		t.Fatalf("expected forged signature to fail")
	}
	if client.VerifyWebhookSignature(append(body, ' '), signature) {
		t.Fatalf("expected tampered body to fail")
	}
}

func TestParseWebhook(t *testing.T) {
	t.Parallel()
	client, err := paystack.New(testSecretKey)
	if err != nil {
		t.Fatalf("client init: %v", err)
	}
	body := []byte(`{
		"event": "charge.success",
		"data": {
			"id": 4099260516,
			"reference": "FUND-1",
			"amount": 100000,
			"fees": 1600,
			"customer": {"email": "ada@example.com"}
		}
	}`)
	event, err := client.ParseWebhook(body)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event.Kind != "charge.success" || event.Status != provider.StatusSuccess {
		t.Fatalf("unexpected event: %+v", event)
	}
	if event.Reference != "FUND-1" || event.AmountKobo != 100_000 {
		t.Fatalf("unexpected payload: %+v", event)
	}

	if _, err := client.ParseWebhook([]byte(`{"data":{}}`)); !errors.Is(err, provider.ErrInvalidWebhook) {
		t.Fatalf("expected ErrInvalidWebhook for missing event, got %v", err)
	}
	if _, err := client.ParseWebhook([]byte(`not json`)); !errors.Is(err, provider.ErrInvalidWebhook) {
		t.Fatalf("expected ErrInvalidWebhook for bad json, got %v", err)
	}
}

func TestFeeSchedule(t *testing.T) {
	t.Parallel()
	client, err := paystack.New(testSecretKey)
	if err != nil {
		t.Fatalf("client init: %v", err)
	}
	testCases := []struct {
		name       string
		amountKobo int64
		wantKobo   int64
	}{
		{name: "small amount waives the flat fee", amountKobo: 100_000, wantKobo: 1_500},
		{name: "threshold amount adds the flat fee", amountKobo: 250_000, wantKobo: 13_750},
		{name: "large amount hits the cap", amountKobo: 20_000_000, wantKobo: 200_000},
		{name: "cap boundary", amountKobo: 12_666_667, wantKobo: 200_000},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if got := client.Fee(testCase.amountKobo); got != testCase.wantKobo {
				t.Fatalf("fee(%d) = %d, want %d", testCase.amountKobo, got, testCase.wantKobo)
			}
		})
	}
}
