package balance

import (
	"context"
	"fmt"
	"sort"
)

// Component names kept in MetricResult for auditability.
const (
	compAssets      = "assets"
	compLiabilities = "liabilities"
	compEquity      = "equity"
	compREPriorPL   = "retained_earnings_prior_pl"
	compREPosted    = "retained_earnings_posted"
	compNetIncome   = "net_income"
)

// NetIncome computes sign-adjusted P&L activity over [rangeStart, period
// end]. rangeStart defaults to the fiscal year start and may be overridden
// with FromPeriod.
func (s *Service) NetIncome(ctx context.Context, req MetricRequest) (MetricResult, error) {
	period, sc, err := s.metricScope(ctx, req)
	if err != nil {
		return MetricResult{}, err
	}
	rangeStart := period.FYStart
	if req.FromPeriod != "" {
		from, err := s.ResolvePeriod(ctx, req.FromPeriod, sc.Book)
		if err != nil {
			return MetricResult{}, err
		}
		rangeStart = from.Start
	}
	tasks := map[string]TaskFunc{
		compNetIncome: s.aggregateTask(Statement{
			Kind:      KindProfitLoss,
			Accounts:  AccountPredicate{Types: sortedTypes(plTypes)},
			Scope:     sc,
			Report:    period,
			Aggregate: true,
			FromDate:  rangeStart,
			ToDate:    period.End,
		}),
	}
	return s.finishMetric(ctx, tasks, func(v map[string]float64) float64 {
		return v[compNetIncome]
	})
}

// RetainedEarnings is prior-year P&L carried forward plus amounts posted
// directly to retained-earnings accounts through the period end.
func (s *Service) RetainedEarnings(ctx context.Context, req MetricRequest) (MetricResult, error) {
	period, sc, err := s.metricScope(ctx, req)
	if err != nil {
		return MetricResult{}, err
	}
	tasks := s.retainedEarningsTasks(period, sc)
	return s.finishMetric(ctx, tasks, func(v map[string]float64) float64 {
		return v[compREPriorPL] + v[compREPosted]
	})
}

// CTA is the residual plug that makes the balance sheet balance: the remote
// platform computes runtime-only translation adjustments that are never
// posted to any account, so CTA cannot be queried directly.
//
//	CTA = (Assets − Liabilities) − Equity(excl RE) − Retained Earnings − Net Income
func (s *Service) CTA(ctx context.Context, req MetricRequest) (MetricResult, error) {
	period, sc, err := s.metricScope(ctx, req)
	if err != nil {
		return MetricResult{}, err
	}
	tasks := map[string]TaskFunc{
		compAssets: s.aggregateTask(Statement{
			Kind: KindBalanceSheet, Accounts: AccountPredicate{Types: sortedTypes(assetTypes)},
			Scope: sc, Report: period, Aggregate: true,
		}),
		compLiabilities: s.aggregateTask(Statement{
			Kind: KindBalanceSheet, Accounts: AccountPredicate{Types: sortedTypes(liabilityTypes)},
			Scope: sc, Report: period, Aggregate: true,
		}),
		compEquity: s.aggregateTask(Statement{
			Kind: KindBalanceSheet, Accounts: AccountPredicate{Types: []string{TypeEquity}},
			Scope: sc, Report: period, Aggregate: true,
		}),
		compNetIncome: s.aggregateTask(Statement{
			Kind: KindProfitLoss, Accounts: AccountPredicate{Types: sortedTypes(plTypes)},
			Scope: sc, Report: period, Aggregate: true,
			FromDate: period.FYStart, ToDate: period.End,
		}),
	}
	for name, fn := range s.retainedEarningsTasks(period, sc) {
		tasks[name] = fn
	}
	return s.finishMetric(ctx, tasks, func(v map[string]float64) float64 {
		retained := v[compREPriorPL] + v[compREPosted]
		return (v[compAssets] - v[compLiabilities]) - v[compEquity] - retained - v[compNetIncome]
	})
}

func (s *Service) retainedEarningsTasks(period Period, sc scope) map[string]TaskFunc {
	return map[string]TaskFunc{
		// All P&L activity from inception through the day before the current
		// fiscal year start.
		compREPriorPL: s.aggregateTask(Statement{
			Kind: KindProfitLoss, Accounts: AccountPredicate{Types: sortedTypes(plTypes)},
			Scope: sc, Report: period, Aggregate: true,
			ToDate: period.FYStart.AddDate(0, 0, -1),
		}),
		// Amounts posted directly to retained-earnings accounts, by type or
		// by name, through the period end.
		compREPosted: s.aggregateTask(Statement{
			Kind: KindBalanceSheet, Accounts: AccountPredicate{RetainedEarnings: true},
			Scope: sc, Report: period, Aggregate: true,
		}),
	}
}

// metricScope resolves the shared request plumbing for derived metrics.
func (s *Service) metricScope(ctx context.Context, req MetricRequest) (Period, scope, error) {
	if err := s.validate.Struct(req); err != nil {
		return Period{}, scope{}, fmt.Errorf("balance: invalid request: %w", err)
	}
	book := req.Filters.Book
	if book <= 0 {
		book = s.opts.DefaultBook
	}
	period, err := s.ResolvePeriod(ctx, req.Period, book)
	if err != nil {
		return Period{}, scope{}, err
	}
	return period, s.resolveScope(ctx, req.Filters, period), nil
}

// aggregateTask wraps a single-total statement as an orchestrator task.
func (s *Service) aggregateTask(stmt Statement) TaskFunc {
	return func(ctx context.Context) (float64, error) {
		rows, err := s.ledger.RunScan(ctx, stmt.SQL())
		if err != nil {
			return 0, err
		}
		if len(rows) == 0 {
			return 0, nil
		}
		return rows[0].Float("amount"), nil
	}
}

// finishMetric runs the component tasks and applies the failure policy: by
// default a failed component contributes zero and flags the result degraded;
// in strict mode any failure fails the call.
func (s *Service) finishMetric(ctx context.Context, tasks map[string]TaskFunc, plug func(map[string]float64) float64) (MetricResult, error) {
	values, failures := s.orch.RunParallel(ctx, tasks)
	result := MetricResult{
		Value:      plug(values),
		Components: values,
		Degraded:   len(failures) > 0,
	}
	if len(failures) > 0 {
		names := make([]string, 0, len(failures))
		for name := range failures {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", name, failures[name]))
		}
		if s.opts.DerivedStrict {
			return result, fmt.Errorf("balance: %d of %d components failed: %s", len(failures), len(tasks), result.Errors[0])
		}
	}
	return result, nil
}
