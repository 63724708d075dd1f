package units

import (
	"math/big"
	"testing"
)

func TestFormatUnits(t *testing.T) {
	cases := []struct {
		in       string
		decimals int
		want     string
	}{
		{"0", 18, "0"},
		{"1000000000000000000", 18, "1"},
		{"1500000000000000000", 18, "1.5"},
		{"1", 18, "0.000000000000000001"},
		{"1250000", 6, "1.25"},
		{"42", 0, "42"},
		{"-2500000", 6, "-2.5"},
	}
	for _, tc := range cases {
		v, _ := new(big.Int).SetString(tc.in, 10)
		if got := FormatUnits(v, tc.decimals); got != tc.want {
			t.Fatalf("FormatUnits(%s, %d): got %s want %s", tc.in, tc.decimals, got, tc.want)
		}
	}
	if got := FormatUnits(nil, 6); got != "0" {
		t.Fatalf("expected nil to format as 0, got %s", got)
	}
}

func TestParseUnits(t *testing.T) {
	cases := []struct {
		in       string
		decimals int
		want     string
	}{
		{"1.25", 6, "1250000"},
		{"0.001", 18, "1000000000000000"},
		{"10", 0, "10"},
		{"000.500", 6, "500000"},
		{"0", 18, "0"},
		{"1.1000000", 6, "1100000"},
	}
	for _, tc := range cases {
		got, err := ParseUnits(tc.in, tc.decimals)
		if err != nil {
			t.Fatalf("ParseUnits(%s, %d) failed: %v", tc.in, tc.decimals, err)
		}
		if got.String() != tc.want {
			t.Fatalf("ParseUnits(%s, %d): got %s want %s", tc.in, tc.decimals, got, tc.want)
		}
	}
}

func TestParseUnitsValidation(t *testing.T) {
	for _, bad := range []string{"", "-1", "1.", ".5", "1e18", "abc"} {
		if _, err := ParseUnits(bad, 18); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
	if _, err := ParseUnits("1.1234567", 6); err == nil {
		t.Fatal("expected precision error")
	}
	if _, err := ParseUnits("1", -1); err == nil {
		t.Fatal("expected negative decimals error")
	}
}
