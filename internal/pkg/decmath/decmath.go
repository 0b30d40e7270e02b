package decmath

import (
	"math"

	"github.com/shopspring/decimal"
)

var decimalZero = decimal.Zero

func FromFloat(val float64) decimal.Decimal {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return decimalZero
	}
	return decimal.NewFromFloat(val)
}

func ToFloat(val decimal.Decimal) float64 {
	f, _ := val.Float64()
	return f
}

func Compare(a, b float64) int {
	return FromFloat(a).Cmp(FromFloat(b))
}

func LTE(a, b float64) bool { return Compare(a, b) <= 0 }
func GTE(a, b float64) bool { return Compare(a, b) >= 0 }
func LT(a, b float64) bool  { return Compare(a, b) < 0 }
func GT(a, b float64) bool  { return Compare(a, b) > 0 }

// Add 以 decimal 精度做资金加减，避免余额累计出现浮点漂移。
func Add(a, b float64) float64 {
	return ToFloat(FromFloat(a).Add(FromFloat(b)))
}

func Sub(a, b float64) float64 {
	return ToFloat(FromFloat(a).Sub(FromFloat(b)))
}

func Mul(a, b float64) float64 {
	return ToFloat(FromFloat(a).Mul(FromFloat(b)))
}

// EqualWithin 判断两数之差是否在 eps 以内。
func EqualWithin(a, b, eps float64) bool {
	diff := FromFloat(a).Sub(FromFloat(b)).Abs()
	return diff.Cmp(FromFloat(eps)) <= 0
}
