package utils

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// SatsPerBTC 每个 BTC 的聪数
const SatsPerBTC = 100_000_000

// ParseSats 把十进制 BTC 字符串（例如 "0.00000123"）转换为聪，超过 8 位的小数截断
func ParseSats(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("价格为空")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("解析价格 %q 失败: %w", s, err)
	}
	return d.Shift(8).Truncate(0).IntPart(), nil
}

// SatsFromFloat 把浮点 BTC 数值转换为聪（用于 JSON 数字字段）
func SatsFromFloat(v float64) int64 {
	return decimal.NewFromFloat(v).Shift(8).Round(0).IntPart()
}

// FormatSats 把聪格式化为 8 位小数的 BTC 字符串
func FormatSats(sats int64) string {
	return decimal.New(sats, -8).StringFixed(8)
}

// RoundTo 按小数位四舍五入
func RoundTo(v float64, decimals int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return decimal.NewFromFloat(v).Round(int32(decimals)).InexactFloat64()
}

// TruncateTo 按小数位向零截断，先按 9 位小数消除浮点误差（1.4999999999999998 视为 1.5）
func TruncateTo(v float64, decimals int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return decimal.NewFromFloat(v).Round(9).Truncate(int32(decimals)).InexactFloat64()
}
