package walletapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sabipay/wallet/pkg/ledger"
)

// domainStatus maps a ledger error to an HTTP status and a stable error
// code. Unknown errors fall through to 500 without leaking internals.
func domainStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInvalidReference),
		errors.Is(err, ledger.ErrInvalidMetadata),
		errors.Is(err, ledger.ErrInvalidPagination),
		errors.Is(err, ledger.ErrInvalidEntryType),
		errors.Is(err, ledger.ErrInvalidEntryCategory),
		errors.Is(err, ledger.ErrInvalidEntryStatus),
		errors.Is(err, ledger.ErrInvalidUserID),
		errors.Is(err, ledger.ErrInvalidLedgerID),
		errors.Is(err, ledger.ErrInvalidWithdrawalStatus):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity, "insufficient_balance"
	case errors.Is(err, ledger.ErrAccountNotActive):
		return http.StatusForbidden, "account_not_active"
	case errors.Is(err, ledger.ErrUserNotFound),
		errors.Is(err, ledger.ErrAccountNotFound),
		errors.Is(err, ledger.ErrEntryNotFound),
		errors.Is(err, ledger.ErrWithdrawalNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ledger.ErrDuplicateOperation):
		return http.StatusConflict, "operation_in_progress"
	case errors.Is(err, ledger.ErrDuplicateReference),
		errors.Is(err, ledger.ErrAccountExists):
		return http.StatusConflict, "duplicate"
	case errors.Is(err, ledger.ErrWithdrawalInFlight):
		return http.StatusConflict, "withdrawal_in_flight"
	case errors.Is(err, ledger.ErrWithdrawalStateConflict):
		return http.StatusConflict, "withdrawal_state_conflict"
	case errors.Is(err, ledger.ErrEntryNotReversible):
		return http.StatusConflict, "entry_not_reversible"
	}
	return http.StatusInternalServerError, "internal_error"
}

func (handler *httpHandler) respondDomainError(ctx *gin.Context, err error) {
	statusCode, code := domainStatus(err)
	if statusCode == http.StatusInternalServerError {
		handler.logger.Error("request failed", zap.Error(err))
		ctx.JSON(statusCode, errorResponse(code, "internal error"))
		return
	}
	ctx.JSON(statusCode, errorResponse(code, err.Error()))
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}
