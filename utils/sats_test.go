package utils

import "testing"

func TestParseSats(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"0.00000123", 123},
		{"1", 100000000},
		{"0.0002", 20000},
		{" 0.1234 ", 12340000},
		{"0.000000019", 1}, // 超过 8 位截断
	}
	for _, tc := range cases {
		got, err := ParseSats(tc.in)
		if err != nil {
			t.Fatalf("解析 %q 失败: %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("ParseSats(%q) = %d, 期望 %d", tc.in, got, tc.want)
		}
	}

	for _, bad := range []string{"", "abc", "1.2.3"} {
		if _, err := ParseSats(bad); err == nil {
			t.Errorf("ParseSats(%q) 应该报错", bad)
		}
	}
}

func TestFormatSats(t *testing.T) {
	if got := FormatSats(20000); got != "0.00020000" {
		t.Errorf("FormatSats(20000) = %s", got)
	}
	if got := FormatSats(123456789); got != "1.23456789" {
		t.Errorf("FormatSats(123456789) = %s", got)
	}
}

func TestSatsFromFloat(t *testing.T) {
	if got := SatsFromFloat(0.00000015); got != 15 {
		t.Errorf("SatsFromFloat(0.00000015) = %d", got)
	}
}

func TestRoundTo(t *testing.T) {
	if got := RoundTo(0.123456, 2); got != 0.12 {
		t.Errorf("RoundTo = %v", got)
	}
	if got := RoundTo(1.005, 1); got != 1.0 {
		t.Errorf("RoundTo = %v", got)
	}
}

func TestTruncateTo(t *testing.T) {
	cases := []struct {
		in       float64
		decimals int
		want     float64
	}{
		{0.625, 2, 0.62},
		{0.375, 2, 0.37},
		{1.4999999999999998, 2, 1.5},
		{0.7499999999999999, 2, 0.75},
		{-0.125, 2, -0.12},
		{3, 0, 3},
	}
	for _, tc := range cases {
		if got := TruncateTo(tc.in, tc.decimals); got != tc.want {
			t.Errorf("TruncateTo(%v, %d) = %v, 期望 %v", tc.in, tc.decimals, got, tc.want)
		}
	}
}
