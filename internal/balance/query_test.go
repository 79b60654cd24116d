package balance

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func jan2025() Period {
	return Period{
		ID:    411,
		Name:  "Jan 2025",
		Start: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC),
	}
}

func TestBalanceSheetStatementSQL(t *testing.T) {
	stmt := Statement{
		Kind:     KindBalanceSheet,
		Accounts: AccountPredicate{Numbers: []string{"1100", "1200"}},
		Scope:    scope{SubsidiaryID: 3, Book: 1},
		Report:   jan2025(),
	}
	sql := stmt.SQL()

	// Cumulative: upper bound only, pinned to the report period end.
	require.Contains(t, sql, "t.trandate <= TO_DATE('2025-01-31', 'YYYY-MM-DD')")
	require.NotContains(t, sql, "t.trandate >=")
	require.NotContains(t, sql, "t.postingperiod IN")

	// Every line translates at the report period, not its own period.
	require.Contains(t, sql, "BUILTIN.CONSOLIDATE(tal.amount, 'LEDGER', 'DEFAULT', 'DEFAULT', 3, 411, 'DEFAULT')")

	require.Contains(t, sql, "a.acctnumber IN ('1100', '1200')")
	require.Contains(t, sql, "tal.accountingbook = 1")
	require.Contains(t, sql, "tl.subsidiary = 3")
	require.Contains(t, sql, "t.posting = 'T'")
	require.Contains(t, sql, "tal.posting = 'T'")
	require.Contains(t, sql, "a.isinactive = 'F'")
	require.Contains(t, sql, "GROUP BY a.acctnumber")
}

func TestProfitLossStatementSQL(t *testing.T) {
	feb := Period{ID: 412, Name: "Feb 2025"}
	stmt := Statement{
		Kind:     KindProfitLoss,
		Accounts: AccountPredicate{Numbers: []string{"4010"}},
		Scope:    scope{SubsidiaryID: 3, Book: 1},
		Periods:  []Period{jan2025(), feb},
		Report:   jan2025(),
		ByPeriod: true,
	}
	sql := stmt.SQL()

	// Bounded by posting period, translated at each line's own period.
	require.Contains(t, sql, "t.postingperiod IN (411, 412)")
	require.Contains(t, sql, "BUILTIN.CONSOLIDATE(tal.amount, 'LEDGER', 'DEFAULT', 'DEFAULT', 3, t.postingperiod, 'DEFAULT')")
	require.NotContains(t, sql, "t.trandate")

	require.Contains(t, sql, "t.postingperiod AS periodid")
	require.Contains(t, sql, "GROUP BY a.acctnumber, t.postingperiod")
	require.Contains(t, sql, "ORDER BY a.acctnumber, t.postingperiod")
}

func TestStatementSignConvention(t *testing.T) {
	stmt := Statement{
		Kind:   KindBalanceSheet,
		Scope:  scope{SubsidiaryID: 1, Book: 1},
		Report: jan2025(),
	}
	sql := stmt.SQL()

	// The flip set covers every credit-balance type and is applied exactly once.
	flip := "CASE WHEN a.accttype IN ('AcctPay', 'CredCard', 'DeferRevenue', 'Equity', 'Income', 'LongTermLiab', 'OthCurrLiab', 'OthIncome', 'RetainedEarnings') THEN -1 ELSE 1 END"
	require.Equal(t, 1, strings.Count(sql, flip), sql)

	// Matching revaluation contras flip again, independent of account type.
	contra := "CASE WHEN a.sspecacct LIKE 'Matching%' THEN -1 ELSE 1 END"
	require.Equal(t, 1, strings.Count(sql, contra), sql)
}

func TestStatementAggregateShape(t *testing.T) {
	stmt := Statement{
		Kind:      KindProfitLoss,
		Accounts:  AccountPredicate{Types: []string{TypeIncome, TypeOthIncome}},
		Scope:     scope{SubsidiaryID: 1, Book: 1, Consolidated: true, Subsidiaries: []int64{1, 2, 5}},
		Periods:   []Period{jan2025()},
		Aggregate: true,
	}
	sql := stmt.SQL()

	require.True(t, strings.HasPrefix(sql, "SELECT SUM("), sql)
	require.NotContains(t, sql, "GROUP BY")
	require.NotContains(t, sql, "acctnumber AS")
	require.Contains(t, sql, "tl.subsidiary IN (1, 2, 5)")
	require.NotContains(t, sql, "tl.subsidiary =")
}

func TestStatementDateOverrides(t *testing.T) {
	stmt := Statement{
		Kind:     KindBalanceSheet,
		Scope:    scope{SubsidiaryID: 1, Book: 1},
		Report:   jan2025(),
		FromDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		ToDate:   time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC),
	}
	sql := stmt.SQL()

	require.Contains(t, sql, "t.trandate >= TO_DATE('2025-01-01', 'YYYY-MM-DD')")
	require.Contains(t, sql, "t.trandate <= TO_DATE('2025-03-31', 'YYYY-MM-DD')")
	// The override replaces the report-period bound entirely.
	require.NotContains(t, sql, "2025-01-31")
}

func TestStatementScopeSegments(t *testing.T) {
	stmt := Statement{
		Kind:    KindProfitLoss,
		Scope:   scope{SubsidiaryID: 2, Book: 3, DepartmentID: 7, LocationID: 9, ClassID: 11},
		Periods: []Period{jan2025()},
	}
	sql := stmt.SQL()

	require.Contains(t, sql, "tal.accountingbook = 3")
	require.Contains(t, sql, "tl.department = 7")
	require.Contains(t, sql, "tl.location = 9")
	require.Contains(t, sql, "tl.class = 11")
}

func TestAccountPredicateClauses(t *testing.T) {
	require.Equal(t, "a.acctnumber LIKE '40%'", AccountPredicate{NumberPrefix: "40"}.clause())
	require.Equal(t, "UPPER(a.fullname) LIKE '%TRAVEL%'", AccountPredicate{NameLike: "Travel"}.clause())
	require.Equal(t,
		"(a.accttype = 'RetainedEarnings' OR UPPER(a.fullname) LIKE '%RETAINED EARNINGS%')",
		AccountPredicate{RetainedEarnings: true}.clause())
	require.Equal(t, "1 = 1", AccountPredicate{}.clause())
	// Quoting survives embedded quotes.
	require.Equal(t, "a.accttype IN ('Cost of Goods Sold')", AccountPredicate{Types: []string{TypeCostOfGoodsSold}}.clause())
	require.Equal(t, "a.acctnumber IN ('o''brien')", AccountPredicate{Numbers: []string{"o'brien"}}.clause())
}
