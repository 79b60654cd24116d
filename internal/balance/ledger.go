package balance

import (
	"context"

	"github.com/ledgerlens/ledgerlens/internal/platform/netsuite"
)

// Ledger is the query surface this package needs from the remote ledger.
// Run executes with the default timeout, RunScan with the extended timeout
// for cumulative balance-sheet scans, RunAll pages through large results.
type Ledger interface {
	Run(ctx context.Context, query string) ([]netsuite.Row, error)
	RunScan(ctx context.Context, query string) ([]netsuite.Row, error)
	RunAll(ctx context.Context, query string) ([]netsuite.Row, error)
}
