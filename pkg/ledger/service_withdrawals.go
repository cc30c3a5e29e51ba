package ledger

import (
	"context"
	"errors"
	"fmt"
)

// BankDetails is the payout destination captured with a withdrawal request.
// BankCode is the clearing-system identifier some payout gateways require;
// it is optional because manual disbursement does not need it.
type BankDetails struct {
	BankName      string
	BankCode      string
	AccountNumber string
	AccountName   string
}

func (details BankDetails) validate() error {
	if details.BankName == "" || details.AccountNumber == "" || details.AccountName == "" {
		return fmt.Errorf("%w: bank name, account number, and account name are required", ErrInvalidAmount)
	}
	return nil
}

// RequestWithdrawal opens a PENDING withdrawal. A user may have at most one
// withdrawal in flight; the admission check and the insert share a
// transaction so concurrent requests cannot both pass the count.
func (service *Service) RequestWithdrawal(ctx context.Context, userID UserID, amount AmountKobo, details BankDetails) (Withdrawal, error) {
	withdrawal, operationError := service.requestWithdrawal(ctx, userID, amount, details)
	service.logOperation(ctx, OperationLog{
		Operation:  operationRequestWithdrawal,
		UserID:     userID,
		LedgerID:   withdrawal.LedgerID,
		AmountKobo: amount.Int64(),
		Error:      operationError,
	})
	return withdrawal, operationError
}

func (service *Service) requestWithdrawal(ctx context.Context, userID UserID, amount AmountKobo, details BankDetails) (Withdrawal, error) {
	if amount.Int64() <= 0 {
		return Withdrawal{}, fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}
	if service.withdrawalMinKobo > 0 && amount.Int64() < service.withdrawalMinKobo {
		return Withdrawal{}, fmt.Errorf("%w: below minimum withdrawal of %d kobo", ErrInvalidAmount, service.withdrawalMinKobo)
	}
	if service.withdrawalMaxKobo > 0 && amount.Int64() > service.withdrawalMaxKobo {
		return Withdrawal{}, fmt.Errorf("%w: above maximum withdrawal of %d kobo", ErrInvalidAmount, service.withdrawalMaxKobo)
	}
	if err := details.validate(); err != nil {
		return Withdrawal{}, err
	}
	fee := service.withdrawalFeeKobo
	if fee >= amount.Int64() {
		return Withdrawal{}, fmt.Errorf("%w: amount does not cover the withdrawal fee", ErrInvalidAmount)
	}
	var withdrawal Withdrawal
	operationError := service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		account, err := txStore.GetAccountByUser(ctx, userID)
		if err != nil {
			return err
		}
		if account.Status != AccountActive {
			return fmt.Errorf("%w: account is %s", ErrAccountNotActive, account.Status)
		}
		open, err := txStore.CountOpenWithdrawals(ctx, userID)
		if err != nil {
			return err
		}
		if open > 0 {
			return ErrWithdrawalInFlight
		}
		// Early reject on an obviously uncovered request; the binding
		// overdraft guard runs again at completion.
		balance, err := service.balanceOf(ctx, txStore, account.LedgerID)
		if err != nil {
			return err
		}
		if balance < amount.Int64() {
			return ErrInsufficientBalance
		}
		nowUnixUTC := service.nowFn()
		withdrawal = Withdrawal{
			WithdrawalID:   service.newID(),
			UserID:         userID,
			LedgerID:       account.LedgerID,
			AmountKobo:     amount.Int64(),
			FeeKobo:        fee,
			NetAmountKobo:  amount.Int64() - fee,
			BankName:       details.BankName,
			BankCode:       details.BankCode,
			AccountNumber:  details.AccountNumber,
			AccountName:    details.AccountName,
			Status:         WithdrawalPending,
			CreatedUnixUTC: nowUnixUTC,
			UpdatedUnixUTC: nowUnixUTC,
		}
		return txStore.CreateWithdrawal(ctx, withdrawal)
	})
	if operationError != nil {
		return Withdrawal{}, operationError
	}
	return withdrawal, nil
}

// GetWithdrawal fetches a withdrawal by id.
func (service *Service) GetWithdrawal(ctx context.Context, withdrawalID string) (Withdrawal, error) {
	return service.store.GetWithdrawal(ctx, withdrawalID)
}

// ApproveWithdrawal moves PENDING to APPROVED.
func (service *Service) ApproveWithdrawal(ctx context.Context, withdrawalID string) error {
	return service.transitionWithdrawal(ctx, operationApproveWithdrawal, withdrawalID, WithdrawalPending, WithdrawalApproved)
}

// RejectWithdrawal moves PENDING to REJECTED.
func (service *Service) RejectWithdrawal(ctx context.Context, withdrawalID string) error {
	return service.transitionWithdrawal(ctx, operationRejectWithdrawal, withdrawalID, WithdrawalPending, WithdrawalRejected)
}

// ProcessWithdrawal moves APPROVED to PROCESSING once a payout is initiated.
func (service *Service) ProcessWithdrawal(ctx context.Context, withdrawalID string) error {
	return service.transitionWithdrawal(ctx, operationProcessWithdrawal, withdrawalID, WithdrawalApproved, WithdrawalProcessing)
}

// FailWithdrawal terminates an APPROVED or PROCESSING withdrawal without a debit.
func (service *Service) FailWithdrawal(ctx context.Context, withdrawalID string) error {
	operationError := service.store.UpdateWithdrawalStatus(ctx, withdrawalID, WithdrawalApproved, WithdrawalFailed)
	if errors.Is(operationError, ErrWithdrawalStateConflict) {
		operationError = service.store.UpdateWithdrawalStatus(ctx, withdrawalID, WithdrawalProcessing, WithdrawalFailed)
	}
	service.logOperation(ctx, OperationLog{
		Operation: operationFailWithdrawal,
		Error:     operationError,
	})
	return operationError
}

func (service *Service) transitionWithdrawal(ctx context.Context, operation string, withdrawalID string, from, to WithdrawalStatus) error {
	operationError := service.store.UpdateWithdrawalStatus(ctx, withdrawalID, from, to)
	service.logOperation(ctx, OperationLog{
		Operation: operation,
		Error:     operationError,
	})
	return operationError
}

// CompleteWithdrawal flips the status to COMPLETED and writes the WITHDRAWAL
// debit in the same transaction. If the debit fails the status flip rolls
// back with it, leaving the withdrawal available for retry or rejection.
func (service *Service) CompleteWithdrawal(ctx context.Context, withdrawalID string) (Entry, error) {
	entry, operationError := service.completeWithdrawal(ctx, withdrawalID)
	service.logOperation(ctx, OperationLog{
		Operation:  operationCompleteWithdrawal,
		Reference:  entry.Reference(),
		AmountKobo: entry.AmountKobo().Int64(),
		Error:      operationError,
	})
	return entry, operationError
}

func (service *Service) completeWithdrawal(ctx context.Context, withdrawalID string) (Entry, error) {
	reference, err := NewReference(referencePrefixWithdrawal + withdrawalID)
	if err != nil {
		return Entry{}, err
	}
	var created Entry
	operationError := service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		withdrawal, err := txStore.GetWithdrawal(ctx, withdrawalID)
		if err != nil {
			return err
		}
		if withdrawal.Status != WithdrawalApproved && withdrawal.Status != WithdrawalProcessing {
			return fmt.Errorf("%w: cannot complete from %s", ErrWithdrawalStateConflict, withdrawal.Status)
		}
		if err := txStore.UpdateWithdrawalStatus(ctx, withdrawalID, withdrawal.Status, WithdrawalCompleted); err != nil {
			return err
		}
		amount, err := NewAmountKobo(withdrawal.AmountKobo)
		if err != nil {
			return err
		}
		fee, err := NewFeeKobo(withdrawal.FeeKobo)
		if err != nil {
			return err
		}
		metadata, err := NewMetadata(fmt.Sprintf(`{"withdrawal_id":%q}`, withdrawalID))
		if err != nil {
			return err
		}
		entry, _, err := service.createEntryLocked(ctx, txStore, EntryParams{
			LedgerID: withdrawal.LedgerID,
			UserID:   withdrawal.UserID,
			Type:     EntryDebit,
			Category: CategoryWithdrawal,
			Amount:   amount,
			Fee:      fee,
			Provider: ProviderInternal,
			Metadata: metadata,
		}, reference)
		if err != nil {
			return err
		}
		created = entry
		return nil
	})
	if operationError != nil {
		return Entry{}, operationError
	}
	return created, nil
}
