package balance

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Kind selects the statement semantics: balance sheet queries are cumulative
// from inception through the report period end and translate every amount at
// the report period's rate, profit-and-loss queries are bounded to a posting
// period range and translate at each line's own posting period.
type Kind int

const (
	KindBalanceSheet Kind = iota
	KindProfitLoss
)

func (k Kind) String() string {
	if k == KindBalanceSheet {
		return "balance-sheet"
	}
	return "profit-loss"
}

// AccountPredicate narrows a statement to a set of accounts. Exactly one
// selector should be set; Numbers wins over Types over NumberPrefix over
// NameLike.
type AccountPredicate struct {
	Numbers      []string
	Types        []string
	NumberPrefix string
	NameLike     string

	// RetainedEarnings selects retained-earnings accounts by type or by
	// name: some ledgers post carry-forward entries to ordinary equity
	// accounts that are only identifiable by their title.
	RetainedEarnings bool
}

func (p AccountPredicate) clause() string {
	switch {
	case p.RetainedEarnings:
		return "(a.accttype = 'RetainedEarnings' OR UPPER(a.fullname) LIKE '%RETAINED EARNINGS%')"
	case len(p.Numbers) > 0:
		return "a.acctnumber IN (" + quoteList(p.Numbers) + ")"
	case len(p.Types) > 0:
		return "a.accttype IN (" + quoteList(p.Types) + ")"
	case p.NumberPrefix != "":
		return "a.acctnumber LIKE '" + escapeSQL(p.NumberPrefix) + "%'"
	case p.NameLike != "":
		return "UPPER(a.fullname) LIKE '%" + escapeSQL(strings.ToUpper(p.NameLike)) + "%'"
	default:
		return "1 = 1"
	}
}

// Statement is a fully-parameterised balance query. One builder covers both
// statement kinds; the kind is a parameter, not a code fork.
type Statement struct {
	Kind     Kind
	Accounts AccountPredicate
	Scope    scope

	// Periods bounds P&L statements and selects activity buckets.
	Periods []Period
	// Report pins the balance-sheet end bound and the translation period.
	Report Period

	// ByPeriod groups results per posting period (activity shape).
	ByPeriod bool
	// Aggregate collapses all accounts into a single total.
	Aggregate bool

	// FromDate/ToDate override the date bounds for derived-metric ranges
	// (for example inception through the day before fiscal year start).
	FromDate time.Time
	ToDate   time.Time
}

// signFlipList is the full credit-balance flip set, applied once per line.
var signFlipList = func() string {
	types := make([]string, 0, len(signFlipTypes))
	for t := range signFlipTypes {
		types = append(types, t)
	}
	sort.Strings(types)
	return quoteList(types)
}()

// SQL renders the statement. Amounts run through the ledger's consolidation
// primitive; a NULL translation means the line is outside the target's
// consolidation scope and drops out of the SUM, it is never coalesced back
// to the raw amount.
func (s Statement) SQL() string {
	translationPeriod := "t.postingperiod"
	if s.Kind == KindBalanceSheet {
		translationPeriod = strconv.FormatInt(s.Report.ID, 10)
	}

	amount := fmt.Sprintf(
		"TO_NUMBER(BUILTIN.CONSOLIDATE(tal.amount, 'LEDGER', 'DEFAULT', 'DEFAULT', %d, %s, 'DEFAULT'))"+
			" * CASE WHEN a.accttype IN (%s) THEN -1 ELSE 1 END"+
			" * CASE WHEN a.sspecacct LIKE 'Matching%%' THEN -1 ELSE 1 END",
		s.Scope.SubsidiaryID, translationPeriod, signFlipList)

	var cols []string
	if !s.Aggregate {
		cols = append(cols, "a.acctnumber AS acctnumber")
	}
	if s.ByPeriod {
		cols = append(cols, "t.postingperiod AS periodid")
	}
	cols = append(cols, "SUM("+amount+") AS amount")

	where := []string{
		"t.posting = 'T'",
		"tal.posting = 'T'",
		"a.isinactive = 'F'",
		s.Accounts.clause(),
	}
	where = append(where, s.dateClauses()...)
	where = append(where, fmt.Sprintf("tal.accountingbook = %d", s.Scope.Book))
	where = append(where, s.scopeClauses()...)

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(" FROM transactionaccountingline tal")
	b.WriteString(" JOIN transaction t ON t.id = tal.transaction")
	b.WriteString(" JOIN account a ON a.id = tal.account")
	b.WriteString(" JOIN transactionline tl ON t.id = tl.transaction AND tal.transactionline = tl.id")
	b.WriteString(" WHERE ")
	b.WriteString(strings.Join(where, " AND "))

	var group []string
	if !s.Aggregate {
		group = append(group, "a.acctnumber")
	}
	if s.ByPeriod {
		group = append(group, "t.postingperiod")
	}
	if len(group) > 0 {
		b.WriteString(" GROUP BY ")
		b.WriteString(strings.Join(group, ", "))
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(group, ", "))
	}
	return b.String()
}

// dateClauses emits the kind-specific bounds. Balance sheet statements have
// no lower bound: the balance is cumulative from inception, and any caller
// supplied start period is ignored.
func (s Statement) dateClauses() []string {
	if !s.FromDate.IsZero() || !s.ToDate.IsZero() {
		var out []string
		if !s.FromDate.IsZero() {
			out = append(out, fmt.Sprintf("t.trandate >= TO_DATE('%s', 'YYYY-MM-DD')", s.FromDate.Format("2006-01-02")))
		}
		if !s.ToDate.IsZero() {
			out = append(out, fmt.Sprintf("t.trandate <= TO_DATE('%s', 'YYYY-MM-DD')", s.ToDate.Format("2006-01-02")))
		}
		return out
	}
	if s.Kind == KindBalanceSheet {
		return []string{fmt.Sprintf("t.trandate <= TO_DATE('%s', 'YYYY-MM-DD')", s.Report.End.Format("2006-01-02"))}
	}
	ids := make([]string, len(s.Periods))
	for i, p := range s.Periods {
		ids[i] = strconv.FormatInt(p.ID, 10)
	}
	return []string{"t.postingperiod IN (" + strings.Join(ids, ", ") + ")"}
}

func (s Statement) scopeClauses() []string {
	var out []string
	if len(s.Scope.Subsidiaries) > 0 {
		ids := make([]string, len(s.Scope.Subsidiaries))
		for i, id := range s.Scope.Subsidiaries {
			ids[i] = strconv.FormatInt(id, 10)
		}
		out = append(out, "tl.subsidiary IN ("+strings.Join(ids, ", ")+")")
	} else if s.Scope.SubsidiaryID > 0 && !s.Scope.Consolidated {
		out = append(out, fmt.Sprintf("tl.subsidiary = %d", s.Scope.SubsidiaryID))
	}
	if s.Scope.DepartmentID > 0 {
		out = append(out, fmt.Sprintf("tl.department = %d", s.Scope.DepartmentID))
	}
	if s.Scope.LocationID > 0 {
		out = append(out, fmt.Sprintf("tl.location = %d", s.Scope.LocationID))
	}
	if s.Scope.ClassID > 0 {
		out = append(out, fmt.Sprintf("tl.class = %d", s.Scope.ClassID))
	}
	return out
}

func quoteList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = "'" + escapeSQL(s) + "'"
	}
	return strings.Join(quoted, ", ")
}

func escapeSQL(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
