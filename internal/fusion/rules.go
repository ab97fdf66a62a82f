package fusion

// 中文说明：
// 规则引擎是一组互不依赖的纯函数，签名统一为 (上下文, harmony, 配置) -> RuleResult。
// 规则之间没有共享状态，调整顺序或单测某条规则都不需要额外准备。

const (
	RuleHarmonyCheck         = "harmony_check"
	RuleConflictResolution   = "conflict_resolution"
	RuleLatencyBalance       = "latency_balance"
	RulePressureEqualization = "pressure_equalization"
	RuleEmergencyAbort       = "emergency_abort"
)

// RuleFunc 单条规则。
type RuleFunc func(ctx EvalContext, h HarmonyMetrics, cfg Config) RuleResult

// Rule 注册表中的条目；Priority 固定，用于审计排序。
type Rule struct {
	Name     string
	Priority int
	Eval     RuleFunc
}

// RuleSet 有序规则注册表。
type RuleSet []Rule

// DefaultRules 返回五条内置规则。
func DefaultRules() RuleSet {
	return RuleSet{
		{Name: RuleHarmonyCheck, Priority: 10, Eval: harmonyCheckRule},
		{Name: RuleConflictResolution, Priority: 9, Eval: conflictResolutionRule},
		{Name: RuleLatencyBalance, Priority: 7, Eval: latencyBalanceRule},
		{Name: RulePressureEqualization, Priority: 6, Eval: pressureEqualizationRule},
		{Name: RuleEmergencyAbort, Priority: 10, Eval: emergencyAbortRule},
	}
}

// Evaluate 依次执行所有规则，并把名称/优先级/调整值规整到合法区间。
func (rs RuleSet) Evaluate(ctx EvalContext, h HarmonyMetrics, cfg Config) []RuleResult {
	out := make([]RuleResult, 0, len(rs))
	for _, rule := range rs {
		if rule.Eval == nil {
			continue
		}
		res := rule.Eval(ctx, h, cfg)
		if res.RuleName == "" {
			res.RuleName = rule.Name
		}
		res.Priority = int(clamp(float64(rule.Priority), minPriority, maxPriority))
		res.HarmonyAdjustment = clamp(res.HarmonyAdjustment, -maxAdjust, maxAdjust)
		out = append(out, res)
	}
	return out
}

// Names 返回注册顺序的规则名。
func (rs RuleSet) Names() []string {
	names := make([]string, 0, len(rs))
	for _, r := range rs {
		names = append(names, r.Name)
	}
	return names
}
