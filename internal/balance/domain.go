// Package balance implements the balance computation core: subsidiary
// hierarchy resolution, the multi-tier cache, balance-sheet vs profit-and-
// loss query semantics, bounded parallel aggregation, and the derived
// metrics (Net Income, Retained Earnings, CTA).
package balance

import (
	"errors"
	"time"
)

// ErrPeriodUnresolved rejects a request naming an unknown accounting period;
// there is no safe default period to assume.
var ErrPeriodUnresolved = errors.New("balance: period not found")

// ErrHierarchyUnresolved marks a failed subsidiary graph fetch. It is logged
// and degraded to a single-entity scope, never surfaced to the caller.
var ErrHierarchyUnresolved = errors.New("balance: subsidiary hierarchy unresolved")

// ErrNoAccounts indicates an account pattern matched nothing.
var ErrNoAccounts = errors.New("balance: no accounts matched")

// Subsidiary is one entity in the consolidation forest.
type Subsidiary struct {
	ID          int64
	Name        string
	ParentID    int64 // zero means root
	Elimination bool
	Active      bool
	Currency    string
}

// Account describes a ledger account. Immutable for the process lifetime
// once cached.
type Account struct {
	ID          int64
	Number      string
	Name        string
	Type        string
	SpecialType string
	ParentID    int64
	Active      bool
}

// Period is an accounting period with its fiscal-year boundaries resolved.
type Period struct {
	ID        int64
	Name      string
	Start     time.Time
	End       time.Time
	FYStart   time.Time
	FYEnd     time.Time
	IsQuarter bool
	IsYear    bool
}

// Filters carries the caller's report scope by name. Names are resolved
// through the lookup cache; an unknown name means the filter is ignored,
// never a hard error. A "(Consolidated)" suffix on the subsidiary name
// requests a consolidated view of that subsidiary's hierarchy.
type Filters struct {
	Subsidiary string `json:"subsidiary"`
	Department string `json:"department"`
	Location   string `json:"location"`
	Class      string `json:"class"`
	Book       int64  `json:"book" validate:"omitempty,gt=0"`
}

// scope is the resolved, id-level form of Filters.
type scope struct {
	SubsidiaryID int64
	Consolidated bool
	Subsidiaries []int64 // hierarchy scope when consolidated
	DepartmentID int64
	LocationID   int64
	ClassID      int64
	Book         int64
	TargetPeriod int64 // consolidation translation period
}

// BalanceRequest asks for balances of one or more account patterns over a
// period or period range. Patterns are exact numbers or prefix wildcards
// ("4*"); alphabetic patterns select account type categories.
type BalanceRequest struct {
	Accounts   []string `json:"accounts" validate:"required,min=1,dive,required"`
	FromPeriod string   `json:"fromPeriod"`
	ToPeriod   string   `json:"toPeriod" validate:"required"`
	Filters    Filters  `json:"filters"`
}

// BalanceResult maps each requested pattern to its per-period amounts.
// Partial failures are listed in Errors alongside the successful portion.
type BalanceResult struct {
	Balances map[string]map[string]float64 `json:"balances"`
	Errors   []string                      `json:"errors,omitempty"`
}

// MetricRequest asks for a derived metric as of a period end.
type MetricRequest struct {
	Period     string  `json:"period" validate:"required"`
	FromPeriod string  `json:"fromPeriod"` // net income range override
	Filters    Filters `json:"filters"`
}

// MetricResult is a derived metric value with its components retained for
// auditability. Degraded is set when any component defaulted to zero after
// an upstream failure.
type MetricResult struct {
	Value      float64            `json:"value"`
	Components map[string]float64 `json:"components"`
	Errors     []string           `json:"errors,omitempty"`
	Degraded   bool               `json:"degraded"`
}
