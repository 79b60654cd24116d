package balance

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Options tunes the service.
type Options struct {
	// DefaultBook is the accounting book used when the request names none.
	DefaultBook int64
	// DerivedStrict fails derived-metric calls when any component query
	// fails, instead of defaulting the component to zero and flagging the
	// result degraded.
	DerivedStrict bool
	// Workers bounds the orchestrator pool.
	Workers int
}

// Service answers balance and derived-metric requests. It owns the flow:
// request → period/filter resolution → cache consult → statement execution →
// cache write → response.
type Service struct {
	ledger   Ledger
	cache    *Cache
	resolver *Resolver
	orch     *Orchestrator
	validate *validator.Validate
	logger   *slog.Logger
	opts     Options
}

// NewService wires the balance service.
func NewService(ledger Ledger, cache *Cache, resolver *Resolver, orch *Orchestrator, opts Options, logger *slog.Logger) *Service {
	if opts.DefaultBook <= 0 {
		opts.DefaultBook = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	if orch == nil {
		orch = NewOrchestrator(opts.Workers, logger)
	}
	return &Service{
		ledger:   ledger,
		cache:    cache,
		resolver: resolver,
		orch:     orch,
		validate: validator.New(),
		logger:   logger,
		opts:     opts,
	}
}

// Cache exposes the cache service for lifecycle endpoints.
func (s *Service) Cache() *Cache {
	return s.cache
}

// patternGroup is one requested pattern expanded to concrete accounts with
// its decided statement semantics.
type patternGroup struct {
	pattern  string
	wildcard bool
	accounts []Account
	kind     Kind
}

// Balances answers a BalanceRequest with account → period → amount.
func (s *Service) Balances(ctx context.Context, req BalanceRequest) (BalanceResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return BalanceResult{}, fmt.Errorf("balance: invalid request: %w", err)
	}

	book := req.Filters.Book
	if book <= 0 {
		book = s.opts.DefaultBook
	}
	report, err := s.ResolvePeriod(ctx, req.ToPeriod, book)
	if err != nil {
		return BalanceResult{}, err
	}
	periods, err := s.resolveRange(ctx, req.FromPeriod, req.ToPeriod, book)
	if err != nil {
		return BalanceResult{}, err
	}

	sc := s.resolveScope(ctx, req.Filters, report)
	fp := fingerprint(sc)

	groups, err := s.expandPatterns(ctx, req.Accounts)
	if err != nil {
		return BalanceResult{}, err
	}

	amounts, errs := s.amountsFor(ctx, groups, periods, report, sc, fp)

	result := BalanceResult{Balances: make(map[string]map[string]float64, len(groups))}
	for _, g := range groups {
		perPeriod := make(map[string]float64, len(periods))
		for _, p := range periods {
			total := 0.0
			for _, acct := range g.accounts {
				total += amounts[acct.Number][p.ID]
			}
			perPeriod[p.Name] = total
		}
		result.Balances[g.pattern] = perPeriod
	}
	result.Errors = errs
	if len(errs) > 0 && len(amounts) == 0 {
		return result, fmt.Errorf("balance: request failed: %s", strings.Join(errs, "; "))
	}
	return result, nil
}

// expandPatterns resolves each requested pattern to accounts and decides its
// semantics. A wildcard whose matches span both statement kinds defaults to
// profit-and-loss semantics, the narrower assumption.
func (s *Service) expandPatterns(ctx context.Context, patterns []string) ([]patternGroup, error) {
	groups := make([]patternGroup, 0, len(patterns))
	for _, pattern := range patterns {
		accounts, err := s.searchAccounts(ctx, pattern)
		if err != nil {
			return nil, fmt.Errorf("balance: expand %q: %w", pattern, err)
		}
		if len(accounts) == 0 {
			return nil, fmt.Errorf("%w: pattern %q", ErrNoAccounts, pattern)
		}
		var hasBS, hasPL bool
		for _, a := range accounts {
			if IsProfitLoss(a.Type) {
				hasPL = true
			} else if IsBalanceSheet(a.Type) {
				hasBS = true
			}
		}
		// Mixed matches take the narrower period-bounded semantics.
		kind := KindBalanceSheet
		if hasPL || !hasBS {
			kind = KindProfitLoss
		}
		groups = append(groups, patternGroup{
			pattern:  pattern,
			wildcard: strings.Contains(pattern, "*") || len(accounts) > 1,
			accounts: accounts,
			kind:     kind,
		})
	}
	return groups, nil
}

// amountsFor returns per-account per-period amounts for every group,
// consulting the balance cache first. A hit requires every requested
// account×period key; a single miss recomputes the whole batch.
func (s *Service) amountsFor(ctx context.Context, groups []patternGroup, periods []Period, report Period, sc scope, fp string) (map[string]map[int64]float64, []string) {
	bsAccounts, plAccounts := splitAccounts(groups)
	bsFP, plFP := fp+".bs", fp+".pl"
	periodIDs := periodIDs(periods)

	cachedBS, allBS, errBS := s.cache.Balances(ctx, accountNumbers(bsAccounts), periodIDs, bsFP)
	cachedPL, allPL, errPL := s.cache.Balances(ctx, accountNumbers(plAccounts), periodIDs, plFP)
	if errBS == nil && errPL == nil && allBS && allPL {
		return mergeAmounts(cachedBS, cachedPL), nil
	}

	amounts := make(map[string]map[int64]float64)
	var errs []string

	if len(plAccounts) > 0 {
		plAmounts, err := s.computePL(ctx, plAccounts, periods, sc)
		if err != nil {
			errs = append(errs, fmt.Sprintf("profit-loss: %v", err))
		} else {
			for k, v := range plAmounts {
				amounts[k] = v
			}
			if err := s.cache.StoreBalances(ctx, plAmounts, plFP); err != nil {
				s.logger.Warn("balance cache write failed", slog.Any("error", err))
			}
		}
	}
	if len(bsAccounts) > 0 {
		bsAmounts, err := s.computeBS(ctx, bsAccounts, periods, report, sc, fp)
		if err != nil {
			errs = append(errs, fmt.Sprintf("balance-sheet: %v", err))
		} else {
			for k, v := range bsAmounts {
				amounts[k] = v
			}
			if err := s.cache.StoreBalances(ctx, bsAmounts, bsFP); err != nil {
				s.logger.Warn("balance cache write failed", slog.Any("error", err))
			}
		}
	}
	return amounts, errs
}

// computePL runs one bounded activity statement for all P&L-semantics
// accounts, grouped per posting period.
func (s *Service) computePL(ctx context.Context, accounts []Account, periods []Period, sc scope) (map[string]map[int64]float64, error) {
	stmt := Statement{
		Kind:     KindProfitLoss,
		Accounts: AccountPredicate{Numbers: accountNumbers(accounts)},
		Scope:    sc,
		Periods:  periods,
		ByPeriod: true,
	}
	rows, err := s.ledger.RunAll(ctx, stmt.SQL())
	if err != nil {
		return nil, err
	}
	out := zeroAmounts(accounts, periods)
	for _, row := range rows {
		acct := row.Str("acctnumber")
		if m, ok := out[acct]; ok {
			m[row.Int64("periodid")] = row.Float("amount")
		}
	}
	return out, nil
}

// computeBS produces cumulative balances for balance-sheet accounts. Single
// period: one cumulative scan translated at the report period. Multi period:
// opening balance at the prior fiscal year end plus cached per-period
// activity, summed chronologically.
func (s *Service) computeBS(ctx context.Context, accounts []Account, periods []Period, report Period, sc scope, fp string) (map[string]map[int64]float64, error) {
	if len(periods) == 1 {
		stmt := Statement{
			Kind:     KindBalanceSheet,
			Accounts: AccountPredicate{Numbers: accountNumbers(accounts)},
			Scope:    sc,
			Report:   report,
		}
		rows, err := s.ledger.RunScan(ctx, stmt.SQL())
		if err != nil {
			return nil, err
		}
		out := zeroAmounts(accounts, periods)
		for _, row := range rows {
			if m, ok := out[row.Str("acctnumber")]; ok {
				m[report.ID] = row.Float("amount")
			}
		}
		return out, nil
	}

	// Activity months run from the fiscal year start so every requested
	// period's cumulative value can be reconstructed.
	fyStart := periods[0].FYStart
	activityPeriods := periods
	if !fyStart.IsZero() && periods[0].Start.After(fyStart) {
		expanded, err := s.monthsBetween(ctx, Period{Name: "fiscal-year-start", Start: fyStart, FYStart: fyStart}, periods[len(periods)-1], sc.Book)
		if err == nil {
			activityPeriods = expanded
		}
	}

	activity, err := s.activityFor(ctx, accounts, activityPeriods, sc, fp)
	if err != nil {
		return nil, err
	}

	opening, err := s.openingBalances(ctx, accounts, fyStart, report, sc)
	if err != nil {
		return nil, err
	}

	out := zeroAmounts(accounts, periods)
	for _, acct := range accounts {
		running := opening[acct.Number]
		m := out[acct.Number]
		for _, p := range activityPeriods {
			running += activity[acct.Number][p.ID]
			if _, wanted := m[p.ID]; wanted {
				m[p.ID] = running
			}
		}
	}
	return out, nil
}

// activityFor returns per-period activity, cache first.
func (s *Service) activityFor(ctx context.Context, accounts []Account, periods []Period, sc scope, fp string) (map[string]map[int64]float64, error) {
	numbers := accountNumbers(accounts)
	ids := periodIDs(periods)
	cached, all, err := s.cache.Activity(ctx, numbers, ids, fp)
	if err == nil && all {
		return cached, nil
	}

	stmt := Statement{
		Kind:     KindProfitLoss, // bounded per-period shape; sign table is shared
		Accounts: AccountPredicate{Numbers: numbers},
		Scope:    sc,
		Periods:  periods,
		ByPeriod: true,
	}
	rows, err := s.ledger.RunAll(ctx, stmt.SQL())
	if err != nil {
		return nil, err
	}
	out := zeroAmounts(accounts, periods)
	for _, row := range rows {
		if m, ok := out[row.Str("acctnumber")]; ok {
			m[row.Int64("periodid")] = row.Float("amount")
		}
	}
	if err := s.cache.StoreActivity(ctx, out, fp); err != nil {
		s.logger.Warn("activity cache write failed", slog.Any("error", err))
	}
	return out, nil
}

// openingBalances scans cumulative balances through the day before the
// fiscal year start.
func (s *Service) openingBalances(ctx context.Context, accounts []Account, fyStart time.Time, report Period, sc scope) (map[string]float64, error) {
	if fyStart.IsZero() {
		return map[string]float64{}, nil
	}
	stmt := Statement{
		Kind:     KindBalanceSheet,
		Accounts: AccountPredicate{Numbers: accountNumbers(accounts)},
		Scope:    sc,
		Report:   report,
		ToDate:   fyStart.AddDate(0, 0, -1),
	}
	rows, err := s.ledger.RunScan(ctx, stmt.SQL())
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(accounts))
	for _, row := range rows {
		out[row.Str("acctnumber")] = row.Float("amount")
	}
	return out, nil
}

// --- small helpers ---------------------------------------------------------

func splitAccounts(groups []patternGroup) (bs, pl []Account) {
	seenBS := map[string]bool{}
	seenPL := map[string]bool{}
	for _, g := range groups {
		for _, a := range g.accounts {
			if g.kind == KindBalanceSheet {
				if !seenBS[a.Number] {
					seenBS[a.Number] = true
					bs = append(bs, a)
				}
			} else if !seenPL[a.Number] {
				seenPL[a.Number] = true
				pl = append(pl, a)
			}
		}
	}
	return bs, pl
}

func accountNumbers(accounts []Account) []string {
	out := make([]string, len(accounts))
	for i, a := range accounts {
		out[i] = a.Number
	}
	sort.Strings(out)
	return out
}

func periodIDs(periods []Period) []int64 {
	out := make([]int64, len(periods))
	for i, p := range periods {
		out[i] = p.ID
	}
	return out
}

func mergeAmounts(maps ...map[string]map[int64]float64) map[string]map[int64]float64 {
	out := make(map[string]map[int64]float64)
	for _, m := range maps {
		for acct, periods := range m {
			if out[acct] == nil {
				out[acct] = make(map[int64]float64, len(periods))
			}
			for pid, v := range periods {
				out[acct][pid] = v
			}
		}
	}
	return out
}

func zeroAmounts(accounts []Account, periods []Period) map[string]map[int64]float64 {
	out := make(map[string]map[int64]float64, len(accounts))
	for _, a := range accounts {
		m := make(map[int64]float64, len(periods))
		for _, p := range periods {
			m[p.ID] = 0
		}
		out[a.Number] = m
	}
	return out
}
