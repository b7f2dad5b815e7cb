package agent

import (
	"strings"
	"testing"
)

func TestIsComplex(t *testing.T) {
	tests := []struct {
		name    string
		request string
		want    bool
	}{
		{"short plain", "top sales?", false},
		{"empty", "   ", false},
		{"over threshold", strings.Repeat("a", 351), true},
		{"at threshold", strings.Repeat("a", 350), false},
		{"compare vs", "compare A vs B", true},
		{"semicolon", "sales by region; top customers", true},
		{"and also", "list customers and also their orders", true},
		{"single weak token", "show orders and returns", false},
		{"two weak tokens", "total sales per region and month", true},
		{"case insensitive", "North VS South", true},
		{"revenue trends", "Show monthly revenue trends for the last year", false},
	}
	for _, tt := range tests {
		if got := IsComplex(tt.request, 350); got != tt.want {
			t.Fatalf("%s: IsComplex(%q) = %v, want %v", tt.name, tt.request, got, tt.want)
		}
	}
}

func TestIsComplexCountsCharactersNotBytes(t *testing.T) {
	request := strings.Repeat("é", 200)
	if IsComplex(request, 350) {
		t.Fatal("200 two-byte characters should not exceed a 350 character threshold")
	}
}

func TestIsComplexDefaultsThreshold(t *testing.T) {
	if !IsComplex(strings.Repeat("x", 351), 0) {
		t.Fatal("threshold <= 0 should default to 350")
	}
	if IsComplex(strings.Repeat("x", 300), -1) {
		t.Fatal("300 characters should not be complex with the default threshold")
	}
}
