package balance

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatementKindClassification(t *testing.T) {
	for _, typ := range []string{TypeIncome, TypeOthIncome, TypeCOGS, TypeCostOfGoodsSold, TypeExpense, TypeOthExpense} {
		require.True(t, IsProfitLoss(typ), "%s should be P&L", typ)
		require.False(t, IsBalanceSheet(typ), "%s should not be balance sheet", typ)
	}
	for _, typ := range []string{TypeBank, TypeAcctRec, TypeFixedAsset, TypeAcctPay, TypeEquity, TypeRetainedEarn, TypeDeferRevenue, TypeUnbilledRec} {
		require.True(t, IsBalanceSheet(typ), "%s should be balance sheet", typ)
		require.False(t, IsProfitLoss(typ))
	}
	for _, typ := range []string{TypeNonPosting, TypeStat} {
		require.False(t, IsBalanceSheet(typ), "%s is non-financial", typ)
		require.False(t, IsProfitLoss(typ))
	}
}

func TestSignMultiplierTable(t *testing.T) {
	flip := []string{
		TypeIncome, TypeOthIncome,
		TypeAcctPay, TypeCredCard, TypeOthCurrLiab, TypeLongTermLiab, TypeDeferRevenue,
		TypeEquity, TypeRetainedEarn,
	}
	for _, typ := range flip {
		require.Equal(t, -1.0, SignMultiplier(typ), "%s flips", typ)
	}
	keep := []string{
		TypeCOGS, TypeCostOfGoodsSold, TypeExpense, TypeOthExpense,
		TypeBank, TypeAcctRec, TypeOthCurrAsset, TypeFixedAsset, TypeOthAsset, TypeDeferExpense, TypeUnbilledRec,
	}
	for _, typ := range keep {
		require.Equal(t, 1.0, SignMultiplier(typ), "%s keeps sign", typ)
	}
}

func TestContraMultiplier(t *testing.T) {
	require.Equal(t, -1.0, ContraMultiplier("MatchingUnrERV"))
	require.Equal(t, 1.0, ContraMultiplier("UnrERV"))
	require.Equal(t, 1.0, ContraMultiplier(""))
}

func TestCategoryTypes(t *testing.T) {
	require.ElementsMatch(t, []string{TypeExpense, TypeOthExpense}, categoryTypes["EXPENSE"])
	require.ElementsMatch(t, []string{TypeCOGS, TypeCostOfGoodsSold}, categoryTypes["COGS"])
	require.Contains(t, categoryTypes["INCOME"], TypeCOGS) // income category is the full P&L set
	require.Len(t, categoryTypes["BALANCESHEET"], 14)
	require.Equal(t, categoryTypes["BALANCE"], categoryTypes["BALANCESHEET"])
}
