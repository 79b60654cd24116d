package balance

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const maxFiscalYearHops = 4 // month → quarter → year, with slack

// ResolvePeriod resolves a period name to its dates and fiscal-year bounds,
// consulting the process-lifetime period cache first. An unknown period
// rejects the request: no safe default exists.
func (s *Service) ResolvePeriod(ctx context.Context, name string, book int64) (Period, error) {
	if p, ok := s.cache.Period(name, book); ok {
		return p, nil
	}
	query := fmt.Sprintf(
		"SELECT id, periodname, startdate, enddate, parent, isyear, isquarter FROM accountingperiod WHERE periodname = '%s' AND isadjust = 'F' FETCH FIRST 1 ROWS ONLY",
		escapeSQL(name))
	rows, err := s.ledger.Run(ctx, query)
	if err != nil {
		return Period{}, fmt.Errorf("%w: %q: %v", ErrPeriodUnresolved, name, err)
	}
	if len(rows) == 0 {
		return Period{}, fmt.Errorf("%w: %q", ErrPeriodUnresolved, name)
	}

	row := rows[0]
	p := Period{
		ID:        row.Int64("id"),
		Name:      row.Str("periodname"),
		Start:     parseLedgerDate(row.Str("startdate")),
		End:       parseLedgerDate(row.Str("enddate")),
		IsQuarter: row.Str("isquarter") == "T",
		IsYear:    row.Str("isyear") == "T",
	}

	if p.IsYear {
		p.FYStart, p.FYEnd = p.Start, p.End
	} else if fyStart, fyEnd, err := s.fiscalYearBounds(ctx, row.Int64("parent")); err == nil {
		p.FYStart, p.FYEnd = fyStart, fyEnd
	} else {
		// Year-ancestor walk failed; assume a calendar fiscal year rather
		// than rejecting a period whose own dates resolved.
		s.logger.Warn("fiscal year walk failed, assuming calendar year", "period", name, "error", err)
		p.FYStart = time.Date(p.Start.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		p.FYEnd = time.Date(p.Start.Year(), time.December, 31, 0, 0, 0, 0, time.UTC)
	}

	s.cache.SetPeriod(name, book, p)
	return p, nil
}

// fiscalYearBounds walks the period's ancestor chain to the year row.
func (s *Service) fiscalYearBounds(ctx context.Context, parentID int64) (time.Time, time.Time, error) {
	for hop := 0; parentID != 0 && hop < maxFiscalYearHops; hop++ {
		query := fmt.Sprintf(
			"SELECT id, startdate, enddate, parent, isyear FROM accountingperiod WHERE id = %d FETCH FIRST 1 ROWS ONLY",
			parentID)
		rows, err := s.ledger.Run(ctx, query)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		if len(rows) == 0 {
			break
		}
		row := rows[0]
		if row.Str("isyear") == "T" {
			return parseLedgerDate(row.Str("startdate")), parseLedgerDate(row.Str("enddate")), nil
		}
		parentID = row.Int64("parent")
	}
	return time.Time{}, time.Time{}, fmt.Errorf("balance: no year ancestor")
}

// resolveRange resolves the monthly periods between from and to inclusive.
// An empty from collapses the range to the single to period.
func (s *Service) resolveRange(ctx context.Context, from, to string, book int64) ([]Period, error) {
	end, err := s.ResolvePeriod(ctx, to, book)
	if err != nil {
		return nil, err
	}
	if from == "" || from == to {
		return []Period{end}, nil
	}
	start, err := s.ResolvePeriod(ctx, from, book)
	if err != nil {
		return nil, err
	}
	return s.monthsBetween(ctx, start, end, book)
}

// monthsBetween lists base periods covering [start.Start, end.End].
func (s *Service) monthsBetween(ctx context.Context, start, end Period, book int64) ([]Period, error) {
	query := fmt.Sprintf(
		"SELECT id, periodname, startdate, enddate FROM accountingperiod WHERE isyear = 'F' AND isquarter = 'F' AND isadjust = 'F'"+
			" AND startdate >= TO_DATE('%s', 'YYYY-MM-DD') AND enddate <= TO_DATE('%s', 'YYYY-MM-DD') ORDER BY startdate",
		start.Start.Format("2006-01-02"), end.End.Format("2006-01-02"))
	rows, err := s.ledger.Run(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: range %s..%s: %v", ErrPeriodUnresolved, start.Name, end.Name, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: range %s..%s", ErrPeriodUnresolved, start.Name, end.Name)
	}
	periods := make([]Period, 0, len(rows))
	for _, row := range rows {
		// FY bounds here are the range endpoints' years; do not write these
		// rows into the period cache, a crossing-year range would poison
		// later single-period lookups.
		p := Period{
			ID:      row.Int64("id"),
			Name:    row.Str("periodname"),
			Start:   parseLedgerDate(row.Str("startdate")),
			End:     parseLedgerDate(row.Str("enddate")),
			FYStart: start.FYStart,
			FYEnd:   end.FYEnd,
		}
		periods = append(periods, p)
	}
	return periods, nil
}

// parseLedgerDate accepts the date renderings the ledger is known to emit.
func parseLedgerDate(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	if i := strings.IndexByte(raw, 'T'); i > 0 {
		raw = raw[:i]
	}
	for _, layout := range []string{"2006-01-02", "1/2/2006", "01/02/2006"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}
