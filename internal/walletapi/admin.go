package walletapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/sabipay/wallet/internal/provider"
	"github.com/sabipay/wallet/pkg/ledger"
)

const adminRole = "admin"

type adminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// adminAuthMiddleware guards the back-office routes with a bearer token
// signed with the admin key and carrying role=admin.
func adminAuthMiddleware(signingKey string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		authorization := ctx.GetHeader("Authorization")
		token, found := strings.CutPrefix(authorization, "Bearer ")
		if !found || strings.TrimSpace(token) == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "bearer token required"))
			return
		}
		claims := &adminClaims{}
		parsed, err := jwt.ParseWithClaims(token, claims, func(parsedToken *jwt.Token) (any, error) {
			if _, ok := parsedToken.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %q", parsedToken.Header["alg"])
			}
			return []byte(signingKey), nil
		})
		if err != nil || !parsed.Valid {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "invalid token"))
			return
		}
		if claims.Role != adminRole {
			ctx.AbortWithStatusJSON(http.StatusForbidden, errorResponse("forbidden", "admin role required"))
			return
		}
		ctx.Next()
	}
}

func (handler *httpHandler) handleWithdrawalApprove(ctx *gin.Context) {
	handler.transitionWithdrawal(ctx, handler.service.ApproveWithdrawal)
}

func (handler *httpHandler) handleWithdrawalReject(ctx *gin.Context) {
	handler.transitionWithdrawal(ctx, handler.service.RejectWithdrawal)
}

// handleWithdrawalProcess moves an approved withdrawal to PROCESSING. When
// the configured gateway can disburse, the payout is initiated first; a
// gateway failure leaves the withdrawal APPROVED for retry.
func (handler *httpHandler) handleWithdrawalProcess(ctx *gin.Context) {
	withdrawalID := ctx.Param("id")
	withdrawal, err := handler.service.GetWithdrawal(ctx.Request.Context(), withdrawalID)
	if err != nil {
		handler.respondDomainError(ctx, err)
		return
	}
	if withdrawal.Status != ledger.WithdrawalApproved {
		handler.respondDomainError(ctx, ledger.ErrWithdrawalStateConflict)
		return
	}

	if transferCapable, ok := handler.provider.(provider.TransferCapable); ok && withdrawal.BankCode != "" {
		transferErr := handler.retry.Do(ctx.Request.Context(), func(attemptCtx context.Context) error {
			_, err := transferCapable.InitiateTransfer(attemptCtx, provider.TransferRequest{
				AmountKobo: withdrawal.NetAmountKobo,
				Reference:  "WD_" + withdrawal.WithdrawalID,
				Reason:     "wallet withdrawal",
				Destination: provider.BankAccount{
					AccountNumber: withdrawal.AccountNumber,
					AccountName:   withdrawal.AccountName,
					BankCode:      withdrawal.BankCode,
				},
			})
			return err
		})
		if transferErr != nil {
			handler.respondProviderError(ctx, transferErr)
			return
		}
	}

	if err := handler.service.ProcessWithdrawal(ctx.Request.Context(), withdrawalID); err != nil {
		handler.respondDomainError(ctx, err)
		return
	}
	processed, err := handler.service.GetWithdrawal(ctx.Request.Context(), withdrawalID)
	if err != nil {
		handler.respondDomainError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, withdrawalView(processed))
}

func (handler *httpHandler) handleWithdrawalFail(ctx *gin.Context) {
	handler.transitionWithdrawal(ctx, handler.service.FailWithdrawal)
}

func (handler *httpHandler) transitionWithdrawal(ctx *gin.Context, transition func(ctx context.Context, withdrawalID string) error) {
	withdrawalID := ctx.Param("id")
	if err := transition(ctx.Request.Context(), withdrawalID); err != nil {
		handler.respondDomainError(ctx, err)
		return
	}
	withdrawal, err := handler.service.GetWithdrawal(ctx.Request.Context(), withdrawalID)
	if err != nil {
		handler.respondDomainError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, withdrawalView(withdrawal))
}

func (handler *httpHandler) handleWithdrawalComplete(ctx *gin.Context) {
	withdrawalID := ctx.Param("id")
	entry, err := handler.service.CompleteWithdrawal(ctx.Request.Context(), withdrawalID)
	if err != nil {
		handler.respondDomainError(ctx, err)
		return
	}
	withdrawal, err := handler.service.GetWithdrawal(ctx.Request.Context(), withdrawalID)
	if err != nil {
		handler.respondDomainError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"withdrawal": withdrawalView(withdrawal),
		"entry":      entryView(entry),
	})
}

func (handler *httpHandler) handleFreeze(ctx *gin.Context) {
	handler.setAccountStatus(ctx, handler.service.Freeze, ledger.AccountFrozen)
}

func (handler *httpHandler) handleUnfreeze(ctx *gin.Context) {
	handler.setAccountStatus(ctx, handler.service.Unfreeze, ledger.AccountActive)
}

func (handler *httpHandler) setAccountStatus(ctx *gin.Context, apply func(ctx context.Context, ledgerID ledger.LedgerID) error, status ledger.AccountStatus) {
	ledgerID, err := ledger.NewLedgerID(ctx.Param("ledger_id"))
	if err != nil {
		handler.respondDomainError(ctx, err)
		return
	}
	if err := apply(ctx.Request.Context(), ledgerID); err != nil {
		handler.respondDomainError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"ledger_id": ledgerID.String(),
		"status":    status.String(),
	})
}

func (handler *httpHandler) handleIntegrity(ctx *gin.Context) {
	ledgerID, err := ledger.NewLedgerID(ctx.Param("ledger_id"))
	if err != nil {
		handler.respondDomainError(ctx, err)
		return
	}
	report, err := handler.service.VerifyIntegrity(ctx.Request.Context(), ledgerID)
	if err != nil {
		handler.respondDomainError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"ledger_id":        report.LedgerID.String(),
		"is_valid":         report.IsValid,
		"computed_balance": report.ComputedBalance,
		"snapshot_balance": report.SnapshotBalance,
		"drift":            report.Drift,
	})
}

type reversalRequest struct {
	LedgerID  string `json:"ledger_id" binding:"required"`
	Reference string `json:"reference" binding:"required"`
}

func (handler *httpHandler) handleReversal(ctx *gin.Context) {
	var request reversalRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_request", "ledger_id and reference are required"))
		return
	}
	ledgerID, err := ledger.NewLedgerID(request.LedgerID)
	if err != nil {
		handler.respondDomainError(ctx, err)
		return
	}
	reference, err := ledger.NewReference(request.Reference)
	if err != nil {
		handler.respondDomainError(ctx, err)
		return
	}
	entry, err := handler.service.ReverseEntry(ctx.Request.Context(), ledgerID, reference)
	if err != nil {
		handler.respondDomainError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, entryView(entry))
}

func (handler *httpHandler) handleProviderBalances(ctx *gin.Context) {
	balances, err := handler.provider.ProviderBalances(ctx.Request.Context())
	if err != nil {
		handler.respondProviderError(ctx, err)
		return
	}
	views := make([]gin.H, 0, len(balances))
	for _, balance := range balances {
		views = append(views, gin.H{
			"currency":    balance.Currency,
			"amount_kobo": balance.AmountKobo,
		})
	}
	ctx.JSON(http.StatusOK, gin.H{
		"provider": handler.provider.Name(),
		"balances": views,
	})
}
