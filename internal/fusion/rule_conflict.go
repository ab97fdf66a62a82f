package fusion

import "fmt"

const (
	reactorVetoConfidence = 80.0
	exoVetoConfidence     = 85.0
)

// conflictResolutionRule 冲突时的否决优先级：Reactor 否决 > EXO 否决 > 按严重度兜底。
func conflictResolutionRule(ctx EvalContext, h HarmonyMetrics, _ Config) RuleResult {
	res := RuleResult{RuleName: RuleConflictResolution}
	if !h.HasConflict {
		res.Passed = true
		res.HarmonyAdjustment = 5
		res.Reason = "no conflict between exo and reactor"
		return res
	}

	r := ctx.Reactor
	exo := ctx.EXO
	switch {
	case r.Command == ReactorEmergencyAbort ||
		(r.Command == ReactorCancel && r.Confidence >= reactorVetoConfidence):
		res.ForceCancel = true
		res.BlockExecution = true
		res.SuggestedCommand = CommandCancel
		res.HarmonyAdjustment = -30
		res.Reason = fmt.Sprintf("reactor veto: %s at confidence %.0f", r.Command, r.Confidence)
	case exo.Command == ExoCancel && exo.Confidence >= exoVetoConfidence:
		res.BlockExecution = true
		res.SuggestedCommand = CommandCancel
		res.HarmonyAdjustment = -20
		res.Reason = fmt.Sprintf("exo veto: CANCEL at confidence %.0f", exo.Confidence)
	default:
		switch h.ConflictSeverity {
		case SeverityLow, SeverityMedium:
			res.SuggestedCommand = CommandScale
			res.HarmonyAdjustment = -5
			if h.ConflictSeverity == SeverityMedium {
				res.HarmonyAdjustment = -10
			}
			res.Reason = fmt.Sprintf("%s conflict (%s), scale down", h.ConflictSeverity, h.ConflictType)
		case SeverityHigh, SeverityCritical:
			res.ForceCancel = true
			res.BlockExecution = true
			res.SuggestedCommand = CommandCancel
			res.HarmonyAdjustment = -25
			res.Reason = fmt.Sprintf("%s conflict (%s), cancel", h.ConflictSeverity, h.ConflictType)
		default:
			// 有冲突却没有严重度只可能来自手工构造的 harmony，按最严处理。
			res.ForceCancel = true
			res.BlockExecution = true
			res.SuggestedCommand = CommandCancel
			res.HarmonyAdjustment = -25
			res.Reason = fmt.Sprintf("unclassified conflict (%s), cancel", h.ConflictType)
		}
	}
	return res
}
