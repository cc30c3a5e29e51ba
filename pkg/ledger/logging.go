package ledger

import "context"

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by Service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing ledger operation.
type OperationLog struct {
	Operation  string
	UserID     UserID
	LedgerID   LedgerID
	Reference  Reference
	AmountKobo int64
	Status     string
	Error      error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithIDGenerator overrides how the service mints ledger and withdrawal ids.
func WithIDGenerator(generate func() string) ServiceOption {
	return func(service *Service) {
		if generate != nil {
			service.newID = generate
		}
	}
}

// WithWithdrawalLimits bounds the amount accepted by RequestWithdrawal, in kobo.
func WithWithdrawalLimits(minKobo int64, maxKobo int64) ServiceOption {
	return func(service *Service) {
		service.withdrawalMinKobo = minKobo
		service.withdrawalMaxKobo = maxKobo
	}
}

// WithWithdrawalFee sets the flat fee applied to every withdrawal, in kobo.
func WithWithdrawalFee(feeKobo int64) ServiceOption {
	return func(service *Service) {
		service.withdrawalFeeKobo = feeKobo
	}
}
