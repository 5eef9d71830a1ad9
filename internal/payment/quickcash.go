package payment

import (
	"sort"

	"github.com/shopspring/decimal"
)

var (
	ten      = decimal.NewFromInt(10)
	hundred  = decimal.NewFromInt(100)
	noteFive = decimal.NewFromInt(500)
	noteTwoK = decimal.NewFromInt(2000)
)

// Suggest returns up to 4 candidate cash tenders for a bill total:
// the next multiple of 10, the next multiple of 100, and the 500/2000
// notes. Candidates below the total are dropped, duplicates collapse,
// and the result is ascending.
func Suggest(total decimal.Decimal) []decimal.Decimal {
	cands := []decimal.Decimal{
		total.Div(ten).Ceil().Mul(ten),
		total.Div(hundred).Ceil().Mul(hundred),
		noteFive,
		noteTwoK,
	}

	out := make([]decimal.Decimal, 0, 4)
	for _, c := range cands {
		if c.LessThan(total) {
			continue
		}
		dup := false
		for _, have := range out {
			if have.Equal(c) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LessThan(out[j]) })
	if len(out) > 4 {
		out = out[:4]
	}
	return out
}
