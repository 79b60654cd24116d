package balancehttp

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/ledgerlens/ledgerlens/internal/balance"
)

var amounts = message.NewPrinter(language.English)

// BalanceView is the wire shape for balance responses: raw numbers for
// consumers that compute, grouped display strings for consumers that render.
type BalanceView struct {
	Balances map[string]map[string]float64 `json:"balances"`
	Display  map[string]map[string]string  `json:"display"`
	Errors   []string                      `json:"errors,omitempty"`
}

func newBalanceView(res balance.BalanceResult) BalanceView {
	display := make(map[string]map[string]string, len(res.Balances))
	for pattern, periods := range res.Balances {
		d := make(map[string]string, len(periods))
		for name, v := range periods {
			d[name] = formatAmount(v)
		}
		display[pattern] = d
	}
	return BalanceView{Balances: res.Balances, Display: display, Errors: res.Errors}
}

// MetricView mirrors MetricResult with a display rendering of the value.
type MetricView struct {
	Value      float64            `json:"value"`
	Display    string             `json:"display"`
	Components map[string]float64 `json:"components"`
	Errors     []string           `json:"errors,omitempty"`
	Degraded   bool               `json:"degraded"`
}

func newMetricView(res balance.MetricResult) MetricView {
	return MetricView{
		Value:      res.Value,
		Display:    formatAmount(res.Value),
		Components: res.Components,
		Errors:     res.Errors,
		Degraded:   res.Degraded,
	}
}

func formatAmount(v float64) string {
	return amounts.Sprintf("%.2f", v)
}
