package workflow

import (
	"context"

	"github.com/mmdatafocus/manufacturing_backend/models"
	"github.com/sirupsen/logrus"
)

// RunLedgerReconciliation runs the stock/GL drift checks for one company and logs the outcome.
// Intended for a nightly schedule or an admin trigger.
func RunLedgerReconciliation(ctx context.Context, logger *logrus.Logger, companyId int) (*models.LedgerReconciliationResult, error) {
	result, err := models.RunLedgerReconciliation(ctx, companyId)
	if err != nil {
		return nil, err
	}
	if logger != nil {
		fields := logrus.Fields{
			"field":            "LedgerReconciliation",
			"company_id":       companyId,
			"correlation_id":   result.CorrelationId,
			"vouchers_checked": result.VouchersChecked,
			"findings":         len(result.Findings),
		}
		if len(result.Findings) > 0 {
			logger.WithFields(fields).Warn("ledger reconciliation found drift")
		} else {
			logger.WithFields(fields).Info("ledger reconciliation completed")
		}
	}
	return result, nil
}
