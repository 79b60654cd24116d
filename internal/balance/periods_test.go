package balance

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ledgerlens/ledgerlens/internal/platform/netsuite"
)

func monthRow(id int64, name, start, end string, parent int64) netsuite.Row {
	return netsuite.Row{
		"id":         float64(id),
		"periodname": name,
		"startdate":  start,
		"enddate":    end,
		"parent":     float64(parent),
		"isyear":     "F",
		"isquarter":  "F",
	}
}

// calendarLedger answers the accounting-period queries for a calendar 2025
// ledger: months under quarter 450 under year 460.
func calendarLedger() *fakeLedger {
	months := []netsuite.Row{
		monthRow(411, "Jan 2025", "2025-01-01", "2025-01-31", 450),
		monthRow(412, "Feb 2025", "2025-02-01", "2025-02-28", 450),
		monthRow(413, "Mar 2025", "2025-03-01", "2025-03-31", 450),
	}
	f := &fakeLedger{}
	f.respond = func(query string) ([]netsuite.Row, error) {
		switch {
		case strings.Contains(query, "WHERE periodname = "):
			for _, m := range months {
				if strings.Contains(query, "'"+m.Str("periodname")+"'") {
					return []netsuite.Row{m}, nil
				}
			}
			return nil, nil
		case strings.Contains(query, "WHERE id = 450"):
			return []netsuite.Row{{
				"id": float64(450), "startdate": "2025-01-01", "enddate": "2025-03-31",
				"parent": float64(460), "isyear": "F",
			}}, nil
		case strings.Contains(query, "WHERE id = 460"):
			return []netsuite.Row{{
				"id": float64(460), "startdate": "2025-01-01", "enddate": "2025-12-31",
				"parent": float64(0), "isyear": "T",
			}}, nil
		case strings.Contains(query, "isyear = 'F' AND isquarter = 'F'"):
			lo := dateArg(query, "startdate >= TO_DATE('")
			hi := dateArg(query, "enddate <= TO_DATE('")
			var out []netsuite.Row
			for _, m := range months {
				if m.Str("startdate") >= lo && m.Str("enddate") <= hi {
					out = append(out, m)
				}
			}
			return out, nil
		default:
			return nil, nil
		}
	}
	return f
}

// dateArg pulls the ISO date following the given clause prefix; ISO dates
// compare correctly as strings.
func dateArg(query, prefix string) string {
	i := strings.Index(query, prefix)
	if i < 0 {
		return ""
	}
	return query[i+len(prefix) : i+len(prefix)+10]
}

func newTestService(ledger Ledger, opts Options) *Service {
	logger := quietLogger()
	cache := NewCache(nil, 0)
	resolver := NewResolver(ledger, logger)
	orch := NewOrchestrator(3, logger).WithBackoff(time.Millisecond)
	return NewService(ledger, cache, resolver, orch, opts, logger)
}

func TestResolvePeriodWalksToFiscalYear(t *testing.T) {
	ledger := calendarLedger()
	svc := newTestService(ledger, Options{})

	p, err := svc.ResolvePeriod(context.Background(), "Feb 2025", 1)
	require.NoError(t, err)
	require.Equal(t, int64(412), p.ID)
	require.Equal(t, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), p.Start)
	require.Equal(t, time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC), p.End)
	// Fiscal year bounds come from the year ancestor two hops up.
	require.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), p.FYStart)
	require.Equal(t, time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC), p.FYEnd)
}

func TestResolvePeriodCachesForProcessLifetime(t *testing.T) {
	ledger := calendarLedger()
	svc := newTestService(ledger, Options{})
	ctx := context.Background()

	first, err := svc.ResolvePeriod(ctx, "Jan 2025", 1)
	require.NoError(t, err)
	calls := ledger.totalCalls()

	second, err := svc.ResolvePeriod(ctx, "Jan 2025", 1)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, calls, ledger.totalCalls())
}

func TestResolvePeriodUnknownName(t *testing.T) {
	ledger := calendarLedger()
	svc := newTestService(ledger, Options{})

	_, err := svc.ResolvePeriod(context.Background(), "Smarch 2025", 1)
	require.ErrorIs(t, err, ErrPeriodUnresolved)
}

func TestResolvePeriodCalendarYearFallback(t *testing.T) {
	// Year walk fails; the period itself still resolves with calendar-year
	// fiscal bounds.
	ledger := &fakeLedger{}
	ledger.respond = func(query string) ([]netsuite.Row, error) {
		if strings.Contains(query, "WHERE periodname = 'Jul 2025'") {
			return []netsuite.Row{monthRow(417, "Jul 2025", "2025-07-01", "2025-07-31", 450)}, nil
		}
		return nil, errors.New("unavailable")
	}
	svc := newTestService(ledger, Options{})

	p, err := svc.ResolvePeriod(context.Background(), "Jul 2025", 1)
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), p.FYStart)
	require.Equal(t, time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC), p.FYEnd)
}

func TestResolveRangeSinglePeriod(t *testing.T) {
	ledger := calendarLedger()
	svc := newTestService(ledger, Options{})

	periods, err := svc.resolveRange(context.Background(), "", "Jan 2025", 1)
	require.NoError(t, err)
	require.Len(t, periods, 1)
	require.Equal(t, int64(411), periods[0].ID)

	periods, err = svc.resolveRange(context.Background(), "Jan 2025", "Jan 2025", 1)
	require.NoError(t, err)
	require.Len(t, periods, 1)
}

func TestResolveRangeMonths(t *testing.T) {
	ledger := calendarLedger()
	svc := newTestService(ledger, Options{})

	periods, err := svc.resolveRange(context.Background(), "Jan 2025", "Mar 2025", 1)
	require.NoError(t, err)
	require.Len(t, periods, 3)
	require.Equal(t, "Jan 2025", periods[0].Name)
	require.Equal(t, "Mar 2025", periods[2].Name)
	for _, p := range periods {
		require.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), p.FYStart)
	}
}

func TestParseLedgerDate(t *testing.T) {
	want := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)
	for _, raw := range []string{"2025-01-31", "1/31/2025", "01/31/2025", "2025-01-31T00:00:00Z"} {
		require.Equal(t, want, parseLedgerDate(raw), raw)
	}
	require.True(t, parseLedgerDate("").IsZero())
	require.True(t, parseLedgerDate("last tuesday").IsZero())
}
