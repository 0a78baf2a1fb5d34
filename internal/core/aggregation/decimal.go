package aggregation

import "github.com/shopspring/decimal"

// ErrorRate formats errors/processed as a percentage with two decimals,
// e.g. "1.25%".
func ErrorRate(errors, processed int64) string {
	if processed <= 0 {
		return "0.00%"
	}
	rate := decimal.NewFromInt(errors).
		Div(decimal.NewFromInt(processed)).
		Mul(decimal.NewFromInt(100))
	return rate.StringFixed(2) + "%"
}
