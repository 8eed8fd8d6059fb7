package orders

import "testing"

func TestIsInsufficientShares(t *testing.T) {
	cases := []struct {
		detail string
		want   bool
	}{
		{"Sell quantity exceeds available shares", true},
		{"Insufficient shares to sell", true},
		{"Not enough shares to complete this order", true},
		{"NOT ENOUGH SHARES", true},
		{"", false},
		// "not have enough" breaks the "not enough shares" needle.
		{"You do not have enough shares for this order", false},
		{"price moved too far", false},
		{"account restricted", false},
	}
	for _, c := range cases {
		if got := IsInsufficientShares(c.detail); got != c.want {
			t.Errorf("IsInsufficientShares(%q) = %v, want %v", c.detail, got, c.want)
		}
	}
}

func TestIsTIFIncompatible(t *testing.T) {
	cases := []struct {
		detail string
		want   bool
	}{
		{"Good til canceled orders are not supported for this security", true},
		{"invalid time_in_force", true},
		{"TIF not allowed", true},
		{"", false},
		{"insufficient shares", false},
	}
	for _, c := range cases {
		if got := IsTIFIncompatible(c.detail); got != c.want {
			t.Errorf("IsTIFIncompatible(%q) = %v, want %v", c.detail, got, c.want)
		}
	}
}
