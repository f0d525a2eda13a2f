// Package units 提供十进制数量与交易所原子单位之间的换算。
// 十进制 → 原子单位方向一律向下截断，绝不四舍五入：
// 宁可少下一点，也不能因为进位下出超过余额/持仓的数量。
package units

import (
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

// ToAtomic 将十进制数量换算为原子单位（截断）。
// decimals 为该资产的原子单位小数位数，例如 18 位时 1.5 -> 1500000000000000000。
func ToAtomic(value float64, decimals int) *big.Int {
	d := decimal.NewFromFloat(value).Shift(int32(decimals))
	// Truncate(0) 去掉换算后残留的小数部分
	return d.Truncate(0).BigInt()
}

// FromAtomic 将原子单位换算回十进制数量
func FromAtomic(value *big.Int, decimals int) float64 {
	if value == nil {
		return 0
	}
	f, _ := decimal.NewFromBigInt(value, -int32(decimals)).Float64()
	return f
}

// FromAtomicInt64 int64 原子单位换算为十进制数量
func FromAtomicInt64(value int64, decimals int) float64 {
	f, _ := decimal.New(value, -int32(decimals)).Float64()
	return f
}

// Truncate 将数量向下截断到指定小数位数
func Truncate(value float64, places int) float64 {
	f, _ := decimal.NewFromFloat(value).Truncate(int32(places)).Float64()
	return f
}

// TruncateToSigFigs 将数量向下截断到指定有效位数。
// Hyperliquid 族交易所以有效位数而非固定小数位约束下单数量。
func TruncateToSigFigs(value float64, figs int) float64 {
	if value == 0 || figs <= 0 {
		return 0
	}
	exp := int(math.Floor(math.Log10(math.Abs(value))))
	places := figs - 1 - exp
	if places < 0 {
		// 整数位已超过有效位数，按 10 的幂截断
		pow := decimal.New(1, int32(-places))
		d := decimal.NewFromFloat(value).Div(pow).Truncate(0).Mul(pow)
		f, _ := d.Float64()
		return f
	}
	return Truncate(value, places)
}

// FormatAmount 将数量按精度截断后格式化为交易所接受的字符串
func FormatAmount(value float64, places int) string {
	return decimal.NewFromFloat(value).Truncate(int32(places)).StringFixed(int32(places))
}
