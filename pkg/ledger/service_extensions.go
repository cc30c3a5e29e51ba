package ledger

import (
	"context"
	"errors"
	"fmt"
)

// Transactions lists entries for an account, newest first.
func (service *Service) Transactions(ctx context.Context, ledgerID LedgerID, filter EntryFilter) ([]Entry, error) {
	if filter.Limit < minTransactionsLimit || filter.Limit > maxTransactionsLimit {
		return nil, fmt.Errorf("%w: limit must be within [%d,%d]", ErrInvalidPagination, minTransactionsLimit, maxTransactionsLimit)
	}
	if filter.Offset < 0 {
		return nil, fmt.Errorf("%w: offset must not be negative", ErrInvalidPagination)
	}
	if _, err := service.store.GetAccount(ctx, ledgerID); err != nil {
		return nil, err
	}
	return service.store.ListEntries(ctx, ledgerID, filter)
}

// EntryByReference fetches a single entry by its unique reference.
func (service *Service) EntryByReference(ctx context.Context, reference Reference) (Entry, error) {
	if reference.IsZero() {
		return Entry{}, fmt.Errorf("%w: reference is required", ErrInvalidReference)
	}
	return service.store.GetEntryByReference(ctx, reference)
}

// AccountByUser fetches the account owned by a user.
func (service *Service) AccountByUser(ctx context.Context, userID UserID) (Account, error) {
	return service.store.GetAccountByUser(ctx, userID)
}

// VerifyIntegrity compares the derived balance with the balance snapshot on
// the most recent completed entry. Drift is reported, never corrected; a
// non-zero drift is a reconciliation case.
func (service *Service) VerifyIntegrity(ctx context.Context, ledgerID LedgerID) (IntegrityReport, error) {
	if _, err := service.store.GetAccount(ctx, ledgerID); err != nil {
		return IntegrityReport{}, err
	}
	report := IntegrityReport{LedgerID: ledgerID}
	var operationError error
	report.ComputedBalance, operationError = service.balanceOf(ctx, service.store, ledgerID)
	if operationError != nil && !errors.Is(operationError, ErrInvariantViolation) {
		return IntegrityReport{}, operationError
	}
	latest, err := service.store.LatestCompletedEntry(ctx, ledgerID)
	if err != nil && !errors.Is(err, ErrEntryNotFound) {
		return IntegrityReport{}, err
	}
	if err == nil {
		report.SnapshotBalance = latest.BalanceAfterKobo()
	}
	report.Drift = report.ComputedBalance - report.SnapshotBalance
	report.IsValid = report.Drift == 0 && operationError == nil
	return report, nil
}

// Freeze stops an account from accepting new entries.
func (service *Service) Freeze(ctx context.Context, ledgerID LedgerID) error {
	return service.setAccountStatus(ctx, operationFreeze, ledgerID, AccountFrozen)
}

// Unfreeze restores an account to active.
func (service *Service) Unfreeze(ctx context.Context, ledgerID LedgerID) error {
	return service.setAccountStatus(ctx, operationUnfreeze, ledgerID, AccountActive)
}

func (service *Service) setAccountStatus(ctx context.Context, operation string, ledgerID LedgerID, status AccountStatus) error {
	operationError := service.store.UpdateAccountStatus(ctx, ledgerID, status)
	service.logOperation(ctx, OperationLog{
		Operation: operation,
		LedgerID:  ledgerID,
		Error:     operationError,
	})
	return operationError
}

// ReverseEntry writes a compensating entry for a completed entry. The
// original row is untouched; the reversal carries the opposite direction,
// the original net amount, zero fee, and a reference derived from the
// original so a second reversal attempt is caught by the idempotency guard.
func (service *Service) ReverseEntry(ctx context.Context, ledgerID LedgerID, original Reference) (Entry, error) {
	entry, operationError := service.reverseEntry(ctx, ledgerID, original)
	service.logOperation(ctx, OperationLog{
		Operation:  operationReverseEntry,
		LedgerID:   ledgerID,
		Reference:  original,
		AmountKobo: entry.AmountKobo().Int64(),
		Error:      operationError,
	})
	return entry, operationError
}

func (service *Service) reverseEntry(ctx context.Context, ledgerID LedgerID, original Reference) (Entry, error) {
	if original.IsZero() {
		return Entry{}, fmt.Errorf("%w: original reference is required", ErrInvalidReference)
	}
	reversalReference, err := NewReference(referencePrefixReversal + original.String())
	if err != nil {
		return Entry{}, err
	}
	var created Entry
	operationError := service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		originalEntry, err := txStore.GetEntryByReference(ctx, original)
		if err != nil {
			return err
		}
		if originalEntry.LedgerID() != ledgerID {
			return WrapError(errorOperationService, "reversal", "ledger_mismatch", ErrEntryNotFound)
		}
		if originalEntry.Status() != EntryStatusCompleted {
			return fmt.Errorf("%w: only completed entries can be reversed", ErrEntryNotReversible)
		}
		if originalEntry.Category() == CategoryReversal {
			return fmt.Errorf("%w: reversals cannot be reversed", ErrEntryNotReversible)
		}
		amount, err := NewAmountKobo(originalEntry.NetAmountKobo())
		if err != nil {
			return err
		}
		metadata, err := NewMetadata(fmt.Sprintf(`{"reversed_reference":%q}`, original.String()))
		if err != nil {
			return err
		}
		entry, _, err := service.createEntryLocked(ctx, txStore, EntryParams{
			LedgerID: ledgerID,
			Type:     originalEntry.Type().Opposite(),
			Category: CategoryReversal,
			Amount:   amount,
			Fee:      0,
			Provider: ProviderInternal,
			Metadata: metadata,
		}, reversalReference)
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
