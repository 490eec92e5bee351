package domain

import (
	"encoding/json"
	"math"
	"testing"
)

func TestParseNumber(t *testing.T) {
	cases := []struct {
		in   any
		want float64
	}{
		{"R$ 10.000,00", 10000},
		{"R$ 189.900,50", 189900.5},
		{"50000", 50000},
		{"12.5", 12.5},
		{"49.990", 49990},
		{"1.234.567", 1234567},
		{"50,000", 50000},
		{"1,5", 1.5},
		{"120.000 km", 120000},
		{"-3", -3},
		{50000.0, 50000},
		{42, 42},
		{json.Number("7.25"), 7.25},
		{json.Number("12.345"), 12.345},
		{json.Number("99.999"), 99.999},
		{json.Number("1e3"), 1000},
		{12.345, 12.345},
	}
	for _, c := range cases {
		if got := ParseNumber(c.in, -1); got != c.want {
			t.Errorf("ParseNumber(%#v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestParseNumber_Fallback(t *testing.T) {
	for _, in := range []any{nil, "", "abc", "-", "10-20", math.NaN(), math.Inf(1), []int{1}} {
		if got := ParseNumber(in, 99); got != 99 {
			t.Errorf("ParseNumber(%#v) = %v, want fallback", in, got)
		}
	}
}
