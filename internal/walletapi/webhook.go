package walletapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sabipay/wallet/internal/provider"
	"github.com/sabipay/wallet/pkg/ledger"
)

// signatureHeaders are checked in order until one is present. Each gateway
// signs with its own header name.
var signatureHeaders = []string{
	"x-paystack-signature",
	"monnify-signature",
	"x-webhook-signature",
}

// handleWebhook is the unauthenticated gateway callback. Only a signature
// failure returns a non-200 status; every other outcome acknowledges with
// 200 so the gateway stops retrying deliveries we have already absorbed.
func (handler *httpHandler) handleWebhook(ctx *gin.Context) {
	body, err := io.ReadAll(ctx.Request.Body)
	if err != nil {
		ctx.JSON(http.StatusOK, gin.H{"status": "error"})
		return
	}

	signature := firstSignature(ctx)
	if !handler.provider.VerifyWebhookSignature(body, signature) {
		handler.logger.Warn("webhook signature rejected",
			zap.String("provider", handler.provider.Name()),
			zap.Int("body_bytes", len(body)))
		ctx.JSON(http.StatusUnauthorized, errorResponse("invalid_signature", "webhook signature verification failed"))
		return
	}

	event, err := handler.provider.ParseWebhook(body)
	if err != nil {
		handler.logger.Warn("webhook parse failed", zap.Error(err))
		ctx.JSON(http.StatusOK, gin.H{"status": "error"})
		return
	}
	if event.Status != provider.StatusSuccess {
		ctx.JSON(http.StatusOK, gin.H{"status": "ignored", "kind": event.Kind})
		return
	}

	userID, account, ok := handler.resolveWebhookAccount(ctx, event)
	if !ok {
		// Signed and well-formed but not attributable to a wallet. Probably
		// a payment initialized outside this service.
		ctx.JSON(http.StatusOK, gin.H{"status": "acknowledged"})
		return
	}

	entry, credited, err := handler.creditFunding(ctx, account, userID, event)
	if err != nil {
		handler.logger.Error("webhook credit failed",
			zap.String("provider_reference", event.ProviderReference),
			zap.Error(err))
		ctx.JSON(http.StatusOK, gin.H{"status": "error"})
		return
	}
	if !credited {
		ctx.JSON(http.StatusOK, gin.H{"status": "duplicate"})
		return
	}
	handler.logger.Info("webhook credited",
		zap.String("ledger_id", account.LedgerID.String()),
		zap.String("reference", entry.Reference().String()),
		zap.Int64("amount_kobo", entry.AmountKobo().Int64()))
	ctx.JSON(http.StatusOK, gin.H{"status": "success"})
}

// creditFunding records a confirmed gateway payment exactly once. The
// ledger reference is derived from the provider transaction id, so a
// redelivered event, concurrent or not, finds the already-written entry
// and is reported with credited=false.
func (handler *httpHandler) creditFunding(ctx *gin.Context, account ledger.Account, userID ledger.UserID, event provider.WebhookEvent) (ledger.Entry, bool, error) {
	reference, err := ledger.NewReference(webhookReferencePrefix + event.ProviderReference)
	if err != nil {
		return ledger.Entry{}, false, err
	}
	amount, err := ledger.NewAmountKobo(event.AmountKobo)
	if err != nil {
		return ledger.Entry{}, false, err
	}
	fee := event.FeeKobo
	if fee == 0 {
		fee = handler.provider.Fee(event.AmountKobo)
	}
	feeKobo, err := ledger.NewFeeKobo(fee)
	if err != nil {
		return ledger.Entry{}, false, err
	}
	metadata, err := ledger.NewMetadata(fmt.Sprintf(`{"event":%q}`, event.Kind))
	if err != nil {
		return ledger.Entry{}, false, err
	}
	entry, reused, err := handler.service.CreateEntry(ctx.Request.Context(), ledger.EntryParams{
		LedgerID:          account.LedgerID,
		UserID:            userID,
		Type:              ledger.EntryCredit,
		Category:          ledger.CategoryFunding,
		Amount:            amount,
		Fee:               feeKobo,
		Provider:          handler.provider.Name(),
		ProviderReference: event.ProviderReference,
		Reference:         reference,
		Metadata:          metadata,
	})
	if err != nil {
		// An expired idempotency record can be reclaimed while the unique
		// reference index still holds the row; that is a redelivery too.
		if errors.Is(err, ledger.ErrDuplicateReference) || errors.Is(err, ledger.ErrDuplicateOperation) {
			if existing, lookupErr := handler.service.EntryByReference(ctx.Request.Context(), reference); lookupErr == nil {
				return existing, false, nil
			}
		}
		return ledger.Entry{}, false, err
	}
	return entry, !reused, nil
}

func (handler *httpHandler) resolveWebhookAccount(ctx *gin.Context, event provider.WebhookEvent) (ledger.UserID, ledger.Account, bool) {
	rawUserID, _ := event.Metadata["user_id"].(string)
	rawLedgerID, _ := event.Metadata["ledger_id"].(string)
	if rawUserID == "" || rawLedgerID == "" {
		return ledger.UserID{}, ledger.Account{}, false
	}
	userID, err := ledger.NewUserID(rawUserID)
	if err != nil {
		return ledger.UserID{}, ledger.Account{}, false
	}
	account, err := handler.service.AccountByUser(ctx.Request.Context(), userID)
	if err != nil {
		return ledger.UserID{}, ledger.Account{}, false
	}
	if account.LedgerID.String() != rawLedgerID {
		return ledger.UserID{}, ledger.Account{}, false
	}
	return userID, account, true
}

func firstSignature(ctx *gin.Context) string {
	for _, header := range signatureHeaders {
		if value := ctx.GetHeader(header); value != "" {
			return value
		}
	}
	return ""
}
