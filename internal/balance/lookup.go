package balance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"
)

const consolidatedSuffix = "(Consolidated)"

// Warmup populates the process-lifetime lookup tier: subsidiaries (with
// their display variants), departments, locations, classes, and budget
// categories. A kind that fails to load is logged and skipped; its lookups
// will simply miss and the filters get ignored downstream.
func (s *Service) Warmup(ctx context.Context) error {
	var errs []error

	subs, err := s.resolver.Subsidiaries(ctx)
	if err != nil {
		errs = append(errs, err)
	} else {
		entries := make(map[string]int64, len(subs)*2)
		for _, sub := range subs {
			entries[sub.Name] = sub.ID
			if trimmed := trimPunctuation(sub.Name); trimmed != sub.Name {
				entries[trimmed] = sub.ID
			}
		}
		// Hierarchy-path variants ("Parent : Child") let callers paste names
		// straight from ledger exports.
		for path, id := range s.hierarchyPaths(subs) {
			entries[path] = id
		}
		s.cache.SetLookups(LookupSubsidiary, entries)
	}

	for kind, query := range map[string]string{
		LookupDepartment:     "SELECT id, name, fullname FROM department WHERE isinactive = 'F'",
		LookupLocation:       "SELECT id, name, fullname FROM location WHERE isinactive = 'F'",
		LookupClass:          "SELECT id, name, fullname FROM classification WHERE isinactive = 'F'",
		LookupBudgetCategory: "SELECT id, name FROM budgetcategory",
	} {
		rows, err := s.ledger.RunAll(ctx, query)
		if err != nil {
			s.logger.Warn("lookup warmup failed", slog.String("kind", kind), slog.Any("error", err))
			errs = append(errs, fmt.Errorf("%s: %w", kind, err))
			continue
		}
		entries := make(map[string]int64, len(rows))
		for _, row := range rows {
			id := row.Int64("id")
			if name := row.Str("name"); name != "" {
				entries[name] = id
			}
			if full := row.Str("fullname"); full != "" {
				entries[full] = id
			}
		}
		s.cache.SetLookups(kind, entries)
	}
	return errors.Join(errs...)
}

// hierarchyPaths builds "Root : … : Leaf" names for every subsidiary.
func (s *Service) hierarchyPaths(subs []Subsidiary) map[string]int64 {
	byID := make(map[int64]Subsidiary, len(subs))
	for _, sub := range subs {
		byID[sub.ID] = sub
	}
	paths := make(map[string]int64, len(subs))
	for _, sub := range subs {
		segments := []string{sub.Name}
		for cur := sub; cur.ParentID != 0; {
			parent, ok := byID[cur.ParentID]
			if !ok {
				break
			}
			segments = append([]string{parent.Name}, segments...)
			cur = parent
		}
		if len(segments) > 1 {
			paths[strings.Join(segments, " : ")] = sub.ID
		}
	}
	return paths
}

func trimPunctuation(name string) string {
	trimmed := strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) {
			return -1
		}
		return r
	}, name)
	return strings.Join(strings.Fields(trimmed), " ")
}

// resolveScope maps the caller's named filters onto ledger ids. Lookup
// misses drop the filter rather than failing the request. The subsidiary's
// "(Consolidated)" suffix selects the hierarchy scope; the id itself is the
// same entity either way.
func (s *Service) resolveScope(ctx context.Context, f Filters, report Period) scope {
	sc := scope{Book: f.Book, TargetPeriod: report.ID}
	if sc.Book <= 0 {
		sc.Book = s.opts.DefaultBook
	}

	name := strings.TrimSpace(f.Subsidiary)
	if strings.HasSuffix(name, consolidatedSuffix) {
		sc.Consolidated = true
		name = strings.TrimSpace(strings.TrimSuffix(name, consolidatedSuffix))
	}
	if name != "" {
		if id, ok := s.cache.Lookup(LookupSubsidiary, name); ok {
			sc.SubsidiaryID = id
			if sc.Consolidated {
				sc.Subsidiaries = s.resolver.Resolve(ctx, id)
			}
		} else {
			s.logger.Info("unknown subsidiary, filter ignored", slog.String("name", name))
			sc.Consolidated = false
		}
	}
	if f.Department != "" {
		if id, ok := s.cache.Lookup(LookupDepartment, f.Department); ok {
			sc.DepartmentID = id
		}
	}
	if f.Location != "" {
		if id, ok := s.cache.Lookup(LookupLocation, f.Location); ok {
			sc.LocationID = id
		}
	}
	if f.Class != "" {
		if id, ok := s.cache.Lookup(LookupClass, f.Class); ok {
			sc.ClassID = id
		}
	}
	return sc
}

// searchAccounts expands an account pattern to concrete accounts. Numeric
// patterns match account numbers exactly or by prefix ("4*"); alphabetic
// patterns match an exact account type, a category keyword (INCOME, ASSET,
// BALANCESHEET, …), or fall back to a LIKE on the type.
func (s *Service) searchAccounts(ctx context.Context, pattern string) ([]Account, error) {
	stripped := strings.TrimSpace(strings.ReplaceAll(pattern, "*", ""))
	pred := AccountPredicate{}
	switch {
	case stripped != "" && strings.IndexFunc(stripped, unicode.IsLetter) >= 0:
		upper := strings.ToUpper(stripped)
		// Category keywords win over same-named exact types: EXPENSE means
		// the expense category, not just the Expense type.
		if types, ok := categoryTypes[upper]; ok {
			pred.Types = types
		} else if exact, ok := exactTypeMatch(upper); ok {
			pred.Types = []string{exact}
		} else {
			return s.searchAccountsByTypeLike(ctx, pattern)
		}
	case strings.Contains(pattern, "*"):
		pred.NumberPrefix = stripped
	default:
		pred.Numbers = []string{stripped}
	}
	return s.fetchAccounts(ctx, pred.clause())
}

func (s *Service) searchAccountsByTypeLike(ctx context.Context, pattern string) ([]Account, error) {
	like := escapeSQL(strings.ToUpper(strings.ReplaceAll(pattern, "*", "%")))
	return s.fetchAccounts(ctx, fmt.Sprintf("UPPER(a.accttype) LIKE '%s'", like))
}

func (s *Service) fetchAccounts(ctx context.Context, clause string) ([]Account, error) {
	query := fmt.Sprintf(
		"SELECT a.id, a.acctnumber, a.fullname, a.accttype, a.sspecacct, a.parent FROM account a WHERE a.isinactive = 'F' AND %s ORDER BY a.acctnumber",
		clause)
	rows, err := s.ledger.RunAll(ctx, query)
	if err != nil {
		return nil, err
	}
	accounts := make([]Account, 0, len(rows))
	for _, row := range rows {
		accounts = append(accounts, Account{
			ID:          row.Int64("id"),
			Number:      row.Str("acctnumber"),
			Name:        row.Str("fullname"),
			Type:        row.Str("accttype"),
			SpecialType: row.Str("sspecacct"),
			ParentID:    row.Int64("parent"),
			Active:      true,
		})
	}
	return accounts, nil
}

func exactTypeMatch(upper string) (string, bool) {
	for _, set := range []map[string]bool{plTypes, assetTypes, liabilityTypes, equityTypes} {
		for t := range set {
			if strings.ToUpper(t) == upper {
				return t, true
			}
		}
	}
	return "", false
}

// AccountTitle returns the display title for an account number through the
// write-through title cache. Negative results are cached so a bad number
// costs one ledger call, not one per request.
func (s *Service) AccountTitle(ctx context.Context, number string) (string, error) {
	if title, found, ok := s.cache.Title(number); ok {
		if !found {
			return "", fmt.Errorf("%w: account %q", ErrNoAccounts, number)
		}
		return title, nil
	}
	query := fmt.Sprintf(
		"SELECT fullname FROM account WHERE acctnumber = '%s' FETCH FIRST 1 ROWS ONLY",
		escapeSQL(number))
	rows, err := s.ledger.Run(ctx, query)
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		s.cache.SetTitle(number, "", false)
		return "", fmt.Errorf("%w: account %q", ErrNoAccounts, number)
	}
	title := rows[0].Str("fullname")
	s.cache.SetTitle(number, title, true)
	return title, nil
}
