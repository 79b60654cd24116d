package balance

import (
	"sort"
	"strings"
)

// Account type values exactly as the ledger returns them. The upstream
// requires exact spellings in query filters; a misspelled type silently
// excludes its accounts instead of erroring, so never hardcode these
// strings at call sites.
const (
	TypeBank            = "Bank"
	TypeAcctRec         = "AcctRec"
	TypeOthCurrAsset    = "OthCurrAsset"
	TypeFixedAsset      = "FixedAsset"
	TypeOthAsset        = "OthAsset"
	TypeDeferExpense    = "DeferExpense"
	TypeUnbilledRec     = "UnbilledRec"
	TypeAcctPay         = "AcctPay"
	TypeCredCard        = "CredCard"
	TypeOthCurrLiab     = "OthCurrLiab"
	TypeLongTermLiab    = "LongTermLiab"
	TypeDeferRevenue    = "DeferRevenue"
	TypeEquity          = "Equity"
	TypeRetainedEarn    = "RetainedEarnings"
	TypeIncome          = "Income"
	TypeOthIncome       = "OthIncome"
	TypeCOGS            = "COGS"
	TypeCostOfGoodsSold = "Cost of Goods Sold" // legacy spelling, always paired with COGS
	TypeExpense         = "Expense"
	TypeOthExpense      = "OthExpense"
	TypeNonPosting      = "NonPosting"
	TypeStat            = "Stat"
)

var plTypes = map[string]bool{
	TypeIncome:          true,
	TypeOthIncome:       true,
	TypeCOGS:            true,
	TypeCostOfGoodsSold: true,
	TypeExpense:         true,
	TypeOthExpense:      true,
}

var assetTypes = map[string]bool{
	TypeBank:         true,
	TypeAcctRec:      true,
	TypeOthCurrAsset: true,
	TypeFixedAsset:   true,
	TypeOthAsset:     true,
	TypeDeferExpense: true,
	TypeUnbilledRec:  true,
}

var liabilityTypes = map[string]bool{
	TypeAcctPay:      true,
	TypeCredCard:     true,
	TypeOthCurrLiab:  true,
	TypeLongTermLiab: true,
	TypeDeferRevenue: true,
}

var equityTypes = map[string]bool{
	TypeEquity:       true,
	TypeRetainedEarn: true,
}

var nonFinancialTypes = map[string]bool{
	TypeNonPosting: true,
	TypeStat:       true,
}

// signFlipTypes lists credit-balance types whose stored negative amounts are
// flipped to report-positive display convention.
var signFlipTypes = map[string]bool{
	TypeIncome:       true,
	TypeOthIncome:    true,
	TypeAcctPay:      true,
	TypeCredCard:     true,
	TypeOthCurrLiab:  true,
	TypeLongTermLiab: true,
	TypeDeferRevenue: true,
	TypeEquity:       true,
	TypeRetainedEarn: true,
}

// IsProfitLoss reports whether the type belongs to the income statement.
func IsProfitLoss(acctType string) bool {
	return plTypes[acctType]
}

// IsBalanceSheet reports whether the type carries a cumulative balance.
// Anything that is neither P&L nor non-financial is balance sheet.
func IsBalanceSheet(acctType string) bool {
	return !plTypes[acctType] && !nonFinancialTypes[acctType]
}

// SignMultiplier returns the report-display multiplier for a type.
func SignMultiplier(acctType string) float64 {
	if signFlipTypes[acctType] {
		return -1
	}
	return 1
}

// ContraMultiplier returns the additional multiplier for "Matching" special
// accounts (currency revaluation contra entries). These share a type with
// their non-matching counterpart, so the special-account subtype is the only
// discriminator.
func ContraMultiplier(specialType string) float64 {
	if strings.HasPrefix(specialType, "Matching") {
		return -1
	}
	return 1
}

func sortedTypes(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// categoryTypes maps search keywords to account type sets for alphabetic
// wildcard patterns.
var categoryTypes = map[string][]string{
	"INCOME":       sortedTypes(plTypes),
	"EXPENSE":      {TypeExpense, TypeOthExpense},
	"COGS":         {TypeCOGS, TypeCostOfGoodsSold},
	"ASSET":        sortedTypes(assetTypes),
	"LIABILITY":    sortedTypes(liabilityTypes),
	"EQUITY":       sortedTypes(equityTypes),
	"BALANCE":      balanceSheetTypes(),
	"BALANCESHEET": balanceSheetTypes(),
}

func balanceSheetTypes() []string {
	out := make([]string, 0, len(assetTypes)+len(liabilityTypes)+len(equityTypes))
	for t := range assetTypes {
		out = append(out, t)
	}
	for t := range liabilityTypes {
		out = append(out, t)
	}
	for t := range equityTypes {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
