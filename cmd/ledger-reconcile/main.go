package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/mmdatafocus/manufacturing_backend/config"
	"github.com/mmdatafocus/manufacturing_backend/workflow"
)

func main() {
	companyID := flag.Int("company-id", 0, "Required: company id")
	failOnDrift := flag.Bool("fail-on-drift", false, "Exit 2 when any finding is recorded")
	flag.Parse()

	if *companyID <= 0 {
		fmt.Fprintln(os.Stderr, "--company-id is required")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	result, err := workflow.RunLedgerReconciliation(context.Background(), config.GetLogger(), *companyID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reconciliation failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("company=%d vouchers=%d findings=%d correlation_id=%s\n",
		result.CompanyId, result.VouchersChecked, len(result.Findings), result.CorrelationId)
	for _, f := range result.Findings {
		fmt.Printf("  %s %s-%d: %s\n", f.CheckType, f.VoucherType, f.VoucherId, f.Details)
	}
	if *failOnDrift && len(result.Findings) > 0 {
		os.Exit(2)
	}
}
