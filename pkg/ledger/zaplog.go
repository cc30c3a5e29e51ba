package ledger

import (
	"context"

	"go.uber.org/zap"
)

// ZapOperationLogger adapts a zap logger to the OperationLogger interface.
type ZapOperationLogger struct {
	logger *zap.Logger
}

// NewZapOperationLogger wires zap as the operation sink.
func NewZapOperationLogger(logger *zap.Logger) *ZapOperationLogger {
	return &ZapOperationLogger{logger: logger}
}

// LogOperation emits one structured record per state-changing operation.
func (operationLogger *ZapOperationLogger) LogOperation(_ context.Context, entry OperationLog) {
	if operationLogger.logger == nil {
		return
	}
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
		zap.String("user_id", entry.UserID.String()),
		zap.String("ledger_id", entry.LedgerID.String()),
		zap.String("reference", entry.Reference.String()),
		zap.Int64("amount_kobo", entry.AmountKobo),
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
		operationLogger.logger.Error("ledger operation failed", fields...)
		return
	}
	operationLogger.logger.Info("ledger operation", fields...)
}
