package walletapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sabipay/wallet/internal/provider"
	"github.com/sabipay/wallet/pkg/ledger"
)

const fundingReferencePrefix = "FUND_"

// webhookReferencePrefix keys a funding credit to the provider transaction
// id, so redelivered webhook events surface as duplicates and the verify
// endpoint can tell whether a payment has been credited.
const webhookReferencePrefix = "WEBHOOK_"

func (handler *httpHandler) handleSession(ctx *gin.Context) {
	claims := getClaims(ctx)
	if claims == nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "session required"))
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"user_id":      claims.UserID,
		"email":        claims.UserEmail,
		"display_name": claims.UserDisplayName,
	})
}

func (handler *httpHandler) handleWalletCreate(ctx *gin.Context) {
	claims := getClaims(ctx)
	if claims == nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "session required"))
		return
	}
	userID, err := ledger.NewUserID(claims.UserID)
	if err != nil {
		handler.respondDomainError(ctx, err)
		return
	}
	if err := handler.users.EnsureUser(ctx.Request.Context(), ledger.UserRecord{
		UserID: userID,
		Email:  claims.UserEmail,
		Role:   "user",
	}); err != nil {
		handler.respondDomainError(ctx, err)
		return
	}
	account, err := handler.service.CreateAccount(ctx.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, ledger.ErrAccountExists) {
			existing, lookupErr := handler.service.AccountByUser(ctx.Request.Context(), userID)
			if lookupErr == nil {
				ctx.JSON(http.StatusOK, accountView(existing))
				return
			}
		}
		handler.respondDomainError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, accountView(account))
}

func (handler *httpHandler) handleWallet(ctx *gin.Context) {
	claims := getClaims(ctx)
	if claims == nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "session required"))
		return
	}
	userID, err := ledger.NewUserID(claims.UserID)
	if err != nil {
		handler.respondDomainError(ctx, err)
		return
	}
	account, err := handler.service.AccountByUser(ctx.Request.Context(), userID)
	if err != nil {
		handler.respondDomainError(ctx, err)
		return
	}
	balance, err := handler.service.Balance(ctx.Request.Context(), account.LedgerID)
	if err != nil {
		handler.respondDomainError(ctx, err)
		return
	}
	entries, err := handler.service.Transactions(ctx.Request.Context(), account.LedgerID, ledger.EntryFilter{Limit: defaultHistoryLimit})
	if err != nil {
		handler.respondDomainError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"account":      accountView(account),
		"balance_kobo": balance.Kobo,
		"transactions": entryViews(entries),
	})
}

func (handler *httpHandler) handleTransactions(ctx *gin.Context) {
	claims := getClaims(ctx)
	if claims == nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "session required"))
		return
	}
	userID, err := ledger.NewUserID(claims.UserID)
	if err != nil {
		handler.respondDomainError(ctx, err)
		return
	}
	account, err := handler.service.AccountByUser(ctx.Request.Context(), userID)
	if err != nil {
		handler.respondDomainError(ctx, err)
		return
	}
	filter, err := parseEntryFilter(ctx)
	if err != nil {
		handler.respondDomainError(ctx, err)
		return
	}
	entries, err := handler.service.Transactions(ctx.Request.Context(), account.LedgerID, filter)
	if err != nil {
		handler.respondDomainError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"ledger_id":    account.LedgerID.String(),
		"transactions": entryViews(entries),
		"limit":        filter.Limit,
		"offset":       filter.Offset,
	})
}

func parseEntryFilter(ctx *gin.Context) (ledger.EntryFilter, error) {
	filter := ledger.EntryFilter{Limit: defaultHistoryLimit}
	if rawLimit := ctx.Query("limit"); rawLimit != "" {
		parsed, err := strconv.Atoi(rawLimit)
		if err != nil {
			return ledger.EntryFilter{}, fmt.Errorf("%w: limit must be an integer", ledger.ErrInvalidPagination)
		}
		filter.Limit = parsed
	}
	if rawOffset := ctx.Query("offset"); rawOffset != "" {
		parsed, err := strconv.Atoi(rawOffset)
		if err != nil {
			return ledger.EntryFilter{}, fmt.Errorf("%w: offset must be an integer", ledger.ErrInvalidPagination)
		}
		filter.Offset = parsed
	}
	if rawStatus := ctx.Query("status"); rawStatus != "" {
		status, err := ledger.ParseEntryStatus(rawStatus)
		if err != nil {
			return ledger.EntryFilter{}, err
		}
		filter.Status = &status
	}
	if rawCategory := ctx.Query("category"); rawCategory != "" {
		category, err := ledger.ParseEntryCategory(rawCategory)
		if err != nil {
			return ledger.EntryFilter{}, err
		}
		filter.Category = &category
	}
	return filter, nil
}

type fundingRequest struct {
	AmountKobo int64 `json:"amount_kobo" binding:"required"`
}

func (handler *httpHandler) handleFundingInitialize(ctx *gin.Context) {
	claims := getClaims(ctx)
	if claims == nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "session required"))
		return
	}
	var request fundingRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_request", "amount_kobo is required"))
		return
	}
	userID, err := ledger.NewUserID(claims.UserID)
	if err != nil {
		handler.respondDomainError(ctx, err)
		return
	}
	account, err := handler.service.AccountByUser(ctx.Request.Context(), userID)
	if err != nil {
		handler.respondDomainError(ctx, err)
		return
	}
	if account.Status != ledger.AccountActive {
		handler.respondDomainError(ctx, ledger.ErrAccountNotActive)
		return
	}
	if _, err := ledger.NewAmountKobo(request.AmountKobo); err != nil {
		handler.respondDomainError(ctx, err)
		return
	}
	if handler.cfg.FundingMinKobo > 0 && request.AmountKobo < handler.cfg.FundingMinKobo {
		handler.respondDomainError(ctx, fmt.Errorf("%w: below minimum funding of %d kobo", ledger.ErrInvalidAmount, handler.cfg.FundingMinKobo))
		return
	}
	if handler.cfg.FundingMaxKobo > 0 && request.AmountKobo > handler.cfg.FundingMaxKobo {
		handler.respondDomainError(ctx, fmt.Errorf("%w: above maximum funding of %d kobo", ledger.ErrInvalidAmount, handler.cfg.FundingMaxKobo))
		return
	}

	reference := fundingReferencePrefix + uuid.NewString()
	var initialization provider.Initialization
	err = handler.retry.Do(ctx.Request.Context(), func(attemptCtx context.Context) error {
		var initErr error
		initialization, initErr = handler.provider.InitializePayment(attemptCtx, provider.InitializationRequest{
			Email:       claims.UserEmail,
			AmountKobo:  request.AmountKobo,
			Reference:   reference,
			CallbackURL: handler.cfg.CallbackURL,
			Metadata: map[string]any{
				"user_id":   userID.String(),
				"ledger_id": account.LedgerID.String(),
			},
		})
		return initErr
	})
	if err != nil {
		handler.respondProviderError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"reference":         initialization.Reference,
		"authorization_url": initialization.AuthorizationURL,
		"access_code":       initialization.AccessCode,
		"provider":          handler.provider.Name(),
		"fee_kobo":          handler.provider.Fee(request.AmountKobo),
	})
}

// handleFundingVerify is a read-only passthrough for client polling. It
// never writes to the ledger; the webhook is the only crediting path. The
// credited flag reports whether that webhook has landed yet.
func (handler *httpHandler) handleFundingVerify(ctx *gin.Context) {
	claims := getClaims(ctx)
	if claims == nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "session required"))
		return
	}
	userID, err := ledger.NewUserID(claims.UserID)
	if err != nil {
		handler.respondDomainError(ctx, err)
		return
	}
	if _, err := handler.service.AccountByUser(ctx.Request.Context(), userID); err != nil {
		handler.respondDomainError(ctx, err)
		return
	}

	paymentReference := ctx.Param("reference")
	var verification provider.Verification
	err = handler.retry.Do(ctx.Request.Context(), func(attemptCtx context.Context) error {
		var verifyErr error
		verification, verifyErr = handler.provider.VerifyPayment(attemptCtx, paymentReference)
		return verifyErr
	})
	if err != nil {
		handler.respondProviderError(ctx, err)
		return
	}

	credited := false
	if verification.Status == provider.StatusSuccess {
		if reference, refErr := ledger.NewReference(webhookReferencePrefix + verification.ProviderReference); refErr == nil {
			if _, lookupErr := handler.service.EntryByReference(ctx.Request.Context(), reference); lookupErr == nil {
				credited = true
			}
		}
	}
	ctx.JSON(http.StatusOK, gin.H{
		"status":      string(verification.Status),
		"reference":   verification.Reference,
		"amount_kobo": verification.AmountKobo,
		"credited":    credited,
	})
}

func (handler *httpHandler) respondProviderError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, provider.ErrPaymentNotFound):
		ctx.JSON(http.StatusNotFound, errorResponse("payment_not_found", "payment not found at provider"))
	case errors.Is(err, provider.ErrProviderRejected):
		ctx.JSON(http.StatusBadGateway, errorResponse("provider_rejected", "payment provider rejected the request"))
	case errors.Is(err, provider.ErrProviderUnavailable):
		handler.logger.Warn("payment provider unavailable", zap.Error(err))
		ctx.JSON(http.StatusServiceUnavailable, errorResponse("provider_unavailable", "payment provider unavailable"))
	default:
		handler.respondDomainError(ctx, err)
	}
}

type withdrawalRequest struct {
	AmountKobo    int64  `json:"amount_kobo" binding:"required"`
	BankName      string `json:"bank_name" binding:"required"`
	BankCode      string `json:"bank_code"`
	AccountNumber string `json:"account_number" binding:"required"`
	AccountName   string `json:"account_name" binding:"required"`
}

func (handler *httpHandler) handleWithdrawalRequest(ctx *gin.Context) {
	claims := getClaims(ctx)
	if claims == nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "session required"))
		return
	}
	var request withdrawalRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_request", "amount_kobo and bank details are required"))
		return
	}
	userID, err := ledger.NewUserID(claims.UserID)
	if err != nil {
		handler.respondDomainError(ctx, err)
		return
	}
	amount, err := ledger.NewAmountKobo(request.AmountKobo)
	if err != nil {
		handler.respondDomainError(ctx, err)
		return
	}
	withdrawal, err := handler.service.RequestWithdrawal(ctx.Request.Context(), userID, amount, ledger.BankDetails{
		BankName:      request.BankName,
		BankCode:      request.BankCode,
		AccountNumber: request.AccountNumber,
		AccountName:   request.AccountName,
	})
	if err != nil {
		handler.respondDomainError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, withdrawalView(withdrawal))
}

func (handler *httpHandler) handleWithdrawalGet(ctx *gin.Context) {
	claims := getClaims(ctx)
	if claims == nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "session required"))
		return
	}
	withdrawal, err := handler.service.GetWithdrawal(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		handler.respondDomainError(ctx, err)
		return
	}
	if withdrawal.UserID.String() != claims.UserID {
		ctx.JSON(http.StatusNotFound, errorResponse("not_found", "withdrawal not found"))
		return
	}
	ctx.JSON(http.StatusOK, withdrawalView(withdrawal))
}

func accountView(account ledger.Account) gin.H {
	return gin.H{
		"ledger_id":  account.LedgerID.String(),
		"user_id":    account.UserID.String(),
		"currency":   account.Currency,
		"status":     account.Status.String(),
		"created_at": account.CreatedUnixUTC,
	}
}

func entryView(entry ledger.Entry) gin.H {
	return gin.H{
		"entry_id":           entry.EntryID(),
		"ledger_id":          entry.LedgerID().String(),
		"type":               entry.Type().String(),
		"category":           entry.Category().String(),
		"amount_kobo":        entry.AmountKobo().Int64(),
		"fee_kobo":           entry.FeeKobo().Int64(),
		"net_amount_kobo":    entry.NetAmountKobo(),
		"balance_after_kobo": entry.BalanceAfterKobo(),
		"status":             entry.Status().String(),
		"provider":           entry.Provider(),
		"provider_reference": entry.ProviderReference(),
		"reference":          entry.Reference().String(),
		"created_at":         entry.CreatedUnixUTC(),
	}
}

func entryViews(entries []ledger.Entry) []gin.H {
	views := make([]gin.H, 0, len(entries))
	for _, entry := range entries {
		views = append(views, entryView(entry))
	}
	return views
}

func withdrawalView(withdrawal ledger.Withdrawal) gin.H {
	return gin.H{
		"withdrawal_id":   withdrawal.WithdrawalID,
		"ledger_id":       withdrawal.LedgerID.String(),
		"amount_kobo":     withdrawal.AmountKobo,
		"fee_kobo":        withdrawal.FeeKobo,
		"net_amount_kobo": withdrawal.NetAmountKobo,
		"bank_name":       withdrawal.BankName,
		"bank_code":       withdrawal.BankCode,
		"account_number":  withdrawal.AccountNumber,
		"account_name":    withdrawal.AccountName,
		"status":          withdrawal.Status.String(),
		"created_at":      withdrawal.CreatedUnixUTC,
		"updated_at":      withdrawal.UpdatedUnixUTC,
	}
}
