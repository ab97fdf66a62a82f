package fusion

import (
	"math"
)

const weightSumTolerance = 1e-3

// Weights 四个一致性维度的权重，要求非负且和为 1。
type Weights struct {
	Command    float64 `json:"command"`
	Confidence float64 `json:"confidence"`
	Size       float64 `json:"size"`
	Timing     float64 `json:"timing"`
}

func (w Weights) sum() float64 {
	return w.Command + w.Confidence + w.Size + w.Timing
}

// Config 融合阈值与权重。进程内视为不可变，热更新时整体替换。
type Config struct {
	MinHarmonyForExecute     float64 `json:"min_harmony_for_execute"`
	MinHarmonyForScale       float64 `json:"min_harmony_for_scale"`
	MaxSizeDiscrepancy       float64 `json:"max_size_discrepancy"` // 0~1，相对偏差
	MaxDelayMs               float64 `json:"max_delay_ms"`
	ConfidenceDiscrepancyMax float64 `json:"confidence_discrepancy_max"`
	EmergencyAbortOnConflict bool    `json:"emergency_abort_on_conflict"`
	IdealLatencyMs           float64 `json:"ideal_latency_ms"`
	MaxLatencyMs             float64 `json:"max_latency_ms"`
	Weights                  Weights `json:"weights"`
}

// DefaultConfig 返回生产默认值。
func DefaultConfig() Config {
	return Config{
		MinHarmonyForExecute:     70,
		MinHarmonyForScale:       50,
		MaxSizeDiscrepancy:       0.2,
		MaxDelayMs:               500,
		ConfidenceDiscrepancyMax: 25,
		EmergencyAbortOnConflict: true,
		IdealLatencyMs:           100,
		MaxLatencyMs:             500,
		Weights: Weights{
			Command:    0.4,
			Confidence: 0.2,
			Size:       0.2,
			Timing:     0.2,
		},
	}
}

// Validate 启动期快速失败。
func (c Config) Validate() error {
	percent := []struct {
		field string
		val   float64
	}{
		{"min_harmony_for_execute", c.MinHarmonyForExecute},
		{"min_harmony_for_scale", c.MinHarmonyForScale},
		{"confidence_discrepancy_max", c.ConfidenceDiscrepancyMax},
	}
	for _, p := range percent {
		if !finite(p.val) || p.val < 0 || p.val > 100 {
			return &ConfigError{Field: p.field, Reason: "must be in [0,100]"}
		}
	}
	if c.MinHarmonyForScale > c.MinHarmonyForExecute {
		return &ConfigError{Field: "min_harmony_for_scale", Reason: "must be <= min_harmony_for_execute"}
	}
	if !finite(c.MaxSizeDiscrepancy) || c.MaxSizeDiscrepancy < 0 || c.MaxSizeDiscrepancy > 1 {
		return &ConfigError{Field: "max_size_discrepancy", Reason: "must be in [0,1]"}
	}
	nonNeg := []struct {
		field string
		val   float64
	}{
		{"max_delay_ms", c.MaxDelayMs},
		{"ideal_latency_ms", c.IdealLatencyMs},
		{"max_latency_ms", c.MaxLatencyMs},
	}
	for _, p := range nonNeg {
		if !finite(p.val) || p.val < 0 {
			return &ConfigError{Field: p.field, Reason: "must be >= 0"}
		}
	}
	if c.MaxLatencyMs <= c.IdealLatencyMs {
		return &ConfigError{Field: "max_latency_ms", Reason: "must be > ideal_latency_ms"}
	}
	w := c.Weights
	for _, p := range []struct {
		field string
		val   float64
	}{
		{"weights.command", w.Command},
		{"weights.confidence", w.Confidence},
		{"weights.size", w.Size},
		{"weights.timing", w.Timing},
	} {
		if !finite(p.val) || p.val < 0 {
			return &ConfigError{Field: p.field, Reason: "must be >= 0"}
		}
	}
	if math.Abs(w.sum()-1) > weightSumTolerance {
		return &ConfigError{Field: "weights", Reason: "must sum to 1.0"}
	}
	return nil
}

// normalizedWeights 防御性归一化：和不为 1 时按比例缩放，全 0 时退回默认权重。
func (c Config) normalizedWeights() Weights {
	w := c.Weights
	total := w.sum()
	if !finite(total) || total <= 0 {
		return DefaultConfig().Weights
	}
	if math.Abs(total-1) <= 1e-9 {
		return w
	}
	return Weights{
		Command:    w.Command / total,
		Confidence: w.Confidence / total,
		Size:       w.Size / total,
		Timing:     w.Timing / total,
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
