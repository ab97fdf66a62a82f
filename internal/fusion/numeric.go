package fusion

import (
	"math"

	"github.com/shopspring/decimal"
)

const (
	sizeEpsilon = 1e-9
	sizePlaces  = 8
	scorePlaces = 4
	maxAdjust   = 50.0
	maxHarmony  = 100.0
	minHarmony  = 0.0
	maxPriority = 10
	minPriority = 1
)

var decimalZero = decimal.Zero

func decFromFloat(val float64) decimal.Decimal {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return decimalZero
	}
	return decimal.NewFromFloat(val)
}

func decToFloat(val decimal.Decimal) float64 {
	f, _ := val.Float64()
	return f
}

// quantizeSize 下单数量统一保留 8 位小数，避免浮点尾差进入审计记录。
func quantizeSize(v float64) float64 {
	if v <= 0 {
		return 0
	}
	return decToFloat(decFromFloat(v).Round(sizePlaces))
}

func roundScore(v float64) float64 {
	return decToFloat(decFromFloat(v).Round(scorePlaces))
}

// sizeDiscrepancy |t-f| / max(t, f, ε)，结果落在 [0,1]。
func sizeDiscrepancy(target, final float64) float64 {
	t := decFromFloat(target)
	f := decFromFloat(final)
	denom := decimal.Max(t, f, decimal.NewFromFloat(sizeEpsilon))
	return decToFloat(t.Sub(f).Abs().Div(denom))
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampScore(v float64) float64 {
	return clamp(v, minHarmony, maxHarmony)
}
