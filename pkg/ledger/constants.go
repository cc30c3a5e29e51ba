package ledger

import "time"

const (
	operationCreateAccount      = "create_account"
	operationCreateEntry        = "create_entry"
	operationReverseEntry       = "reverse_entry"
	operationFreeze             = "freeze"
	operationUnfreeze           = "unfreeze"
	operationRequestWithdrawal  = "request_withdrawal"
	operationApproveWithdrawal  = "approve_withdrawal"
	operationRejectWithdrawal   = "reject_withdrawal"
	operationProcessWithdrawal  = "process_withdrawal"
	operationCompleteWithdrawal = "complete_withdrawal"
	operationFailWithdrawal     = "fail_withdrawal"

	errorOperationService = "service"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	referencePrefixLedger     = "LDG_"
	referencePrefixWithdrawal = "WD_"
	referencePrefixReversal   = "RVSL_"

	defaultCurrency = "NGN"

	// Idempotency records self-expire to bound storage growth.
	idempotencyWindow = 48 * time.Hour

	minTransactionsLimit = 1
	maxTransactionsLimit = 100
)
