package balance

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/ledgerlens/ledgerlens/internal/platform/netsuite"
)

// fakeLedger routes queries to a test-supplied handler and records every
// query it sees for assertion.
type fakeLedger struct {
	mu      sync.Mutex
	queries []string
	respond func(query string) ([]netsuite.Row, error)
}

func (f *fakeLedger) run(query string) ([]netsuite.Row, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	respond := f.respond
	f.mu.Unlock()
	if respond == nil {
		return nil, nil
	}
	return respond(query)
}

func (f *fakeLedger) Run(_ context.Context, query string) ([]netsuite.Row, error) {
	return f.run(query)
}

func (f *fakeLedger) RunScan(_ context.Context, query string) ([]netsuite.Row, error) {
	return f.run(query)
}

func (f *fakeLedger) RunAll(_ context.Context, query string) ([]netsuite.Row, error) {
	return f.run(query)
}

func (f *fakeLedger) calls(substr string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, q := range f.queries {
		if strings.Contains(q, substr) {
			n++
		}
	}
	return n
}

func (f *fakeLedger) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// subsidiaryRow builds a row in the shape the subsidiary query returns.
func subsidiaryRow(id int64, name string, parent int64, elimination bool) netsuite.Row {
	elim := "F"
	if elimination {
		elim = "T"
	}
	return netsuite.Row{
		"id":            fmt.Sprintf("%d", id),
		"name":          name,
		"parent":        fmt.Sprintf("%d", parent),
		"iselimination": elim,
		"isinactive":    "F",
		"currency":      "1",
	}
}
