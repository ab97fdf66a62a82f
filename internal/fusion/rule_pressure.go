package fusion

import "fmt"

const lowPressureScore = 30.0

// pressureEqualizationRule 比较 EXO 目标仓位与 Reactor 最终仓位的相对偏差。
func pressureEqualizationRule(ctx EvalContext, _ HarmonyMetrics, cfg Config) RuleResult {
	res := RuleResult{RuleName: RulePressureEqualization}
	disc := sizeDiscrepancy(ctx.EXO.TargetSize, ctx.Reactor.FinalSize)
	limit := cfg.MaxSizeDiscrepancy

	res.Passed = disc <= limit
	res.BlockExecution = disc > 2*limit
	pressure := ctx.Reactor.PressureScore
	res.ForceCancel = pressure != nil && *pressure < lowPressureScore && disc > limit
	scaleRequested := ctx.EXO.Command == ExoScale || ctx.Reactor.Command == ReactorScale

	switch {
	case res.ForceCancel:
		res.SuggestedCommand = CommandCancel
		res.HarmonyAdjustment = -20
		res.Reason = fmt.Sprintf("size discrepancy %.1f%% under weak pressure %.0f", disc*100, *pressure)
	case res.BlockExecution:
		res.SuggestedCommand = CommandCancel
		res.HarmonyAdjustment = -15
		res.Reason = fmt.Sprintf("size discrepancy %.1f%% exceeds 2x limit %.1f%%", disc*100, limit*100)
	case !res.Passed:
		res.SuggestedCommand = CommandScale
		res.HarmonyAdjustment = -5
		res.Reason = fmt.Sprintf("size discrepancy %.1f%% over limit %.1f%%, scale", disc*100, limit*100)
	case scaleRequested:
		res.SuggestedCommand = CommandScale
		res.Reason = fmt.Sprintf("scale requested (exo=%s reactor=%s)", ctx.EXO.Command, ctx.Reactor.Command)
	default:
		res.Reason = fmt.Sprintf("size discrepancy %.1f%% within limit", disc*100)
	}
	return res
}
