package payment

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestSuggest(t *testing.T) {
	cases := []struct {
		total string
		want  []string
	}{
		{"42", []string{"50", "100", "500", "2000"}},
		{"98", []string{"100", "500", "2000"}},
		{"450", []string{"450", "500", "2000"}},
		{"1200", []string{"1200", "2000"}},
		{"2500", []string{"2500"}},
		{"1234", []string{"1240", "1300", "2000"}},
	}

	for _, c := range cases {
		got := Suggest(decimal.RequireFromString(c.total))
		if len(got) != len(c.want) {
			t.Errorf("Suggest(%s) = %v, want %v", c.total, got, c.want)
			continue
		}
		for i := range got {
			if !got[i].Equal(decimal.RequireFromString(c.want[i])) {
				t.Errorf("Suggest(%s)[%d] = %s, want %s", c.total, i, got[i], c.want[i])
			}
		}
	}
}

func TestSuggest_Properties(t *testing.T) {
	totals := []string{"1", "9.99", "55.50", "101", "499", "500", "501", "1999.99", "2000", "2001", "60000"}
	for _, s := range totals {
		total := decimal.RequireFromString(s)
		got := Suggest(total)
		if len(got) > 4 {
			t.Errorf("Suggest(%s) returned %d amounts", s, len(got))
		}
		for i, amt := range got {
			if amt.LessThan(total) {
				t.Errorf("Suggest(%s) contains %s below total", s, amt)
			}
			if i > 0 && !got[i-1].LessThan(amt) {
				t.Errorf("Suggest(%s) not strictly ascending: %v", s, got)
			}
		}
	}
}

func TestMinorUnits(t *testing.T) {
	if got := MinorUnits(decimal.RequireFromString("609")); got != 60900 {
		t.Errorf("MinorUnits(609) = %d, want 60900", got)
	}
	if got := MinorUnits(decimal.RequireFromString("123.455")); got != 12346 {
		t.Errorf("MinorUnits(123.455) = %d, want 12346", got)
	}
}
