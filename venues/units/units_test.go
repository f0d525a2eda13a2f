package units

import (
	"math/big"
	"testing"
)

// TestToAtomic_Truncates 十进制转原子单位必须截断而非四舍五入
func TestToAtomic_Truncates(t *testing.T) {
	// 1.23456789 在 18 位精度下应精确展开，不进位
	got := ToAtomic(1.23456789, 18)
	want, _ := new(big.Int).SetString("1234567890000000000", 10)
	if got.Cmp(want) != 0 {
		t.Fatalf("ToAtomic got=%s want=%s", got, want)
	}

	// 6 位精度下 0.1234567 的第 7 位应被丢弃
	got = ToAtomic(0.1234567, 6)
	if got.Int64() != 123456 {
		t.Fatalf("ToAtomic 截断失败 got=%d want=123456", got.Int64())
	}

	// 0.9999999 不得进位为 1000000
	got = ToAtomic(0.9999999, 6)
	if got.Int64() != 999999 {
		t.Fatalf("ToAtomic 不应进位 got=%d", got.Int64())
	}
}

// TestAtomicRoundTrip 往返换算只会截断，不会放大
func TestAtomicRoundTrip(t *testing.T) {
	atomic := ToAtomic(1.23456789, 18)
	back := FromAtomic(atomic, 18)
	if back > 1.23456789 {
		t.Fatalf("往返换算不应放大: %v", back)
	}
	if back < 1.2345678 {
		t.Fatalf("往返换算偏差过大: %v", back)
	}
}

func TestFromAtomicInt64(t *testing.T) {
	if got := FromAtomicInt64(1234560, 6); got != 1.23456 {
		t.Fatalf("FromAtomicInt64 got=%v", got)
	}
	if got := FromAtomicInt64(0, 6); got != 0 {
		t.Fatalf("零值应换算为 0, got=%v", got)
	}
}

func TestTruncate(t *testing.T) {
	cases := []struct {
		in     float64
		places int
		want   float64
	}{
		{1.23456789, 3, 1.234},
		{0.9999, 2, 0.99},
		{5, 3, 5},
		{-1.2345, 2, -1.23},
	}
	for _, c := range cases {
		if got := Truncate(c.in, c.places); got != c.want {
			t.Errorf("Truncate(%v,%d) got=%v want=%v", c.in, c.places, got, c.want)
		}
	}
}

// TestTruncateToSigFigs 有效位数截断（Hyperliquid 族精度规则）
func TestTruncateToSigFigs(t *testing.T) {
	cases := []struct {
		in   float64
		figs int
		want float64
	}{
		{1.23456789, 5, 1.2345},
		{0.00123456, 5, 0.0012345},
		{123456.789, 5, 123450},
		{0, 5, 0},
	}
	for _, c := range cases {
		if got := TruncateToSigFigs(c.in, c.figs); got != c.want {
			t.Errorf("TruncateToSigFigs(%v,%d) got=%v want=%v", c.in, c.figs, got, c.want)
		}
	}
}

func TestFormatAmount(t *testing.T) {
	if got := FormatAmount(1.23456789, 3); got != "1.234" {
		t.Fatalf("FormatAmount got=%q", got)
	}
	if got := FormatAmount(2, 2); got != "2.00" {
		t.Fatalf("FormatAmount got=%q", got)
	}
}
