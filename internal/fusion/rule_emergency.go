package fusion

import (
	"fmt"
	"strings"
)

const emergencyHarmonyFloor = 30.0

// emergencyAbortRule 任一触发条件成立即给出 EMERGENCY_ABORT，聚合时无条件优先。
func emergencyAbortRule(ctx EvalContext, h HarmonyMetrics, cfg Config) RuleResult {
	res := RuleResult{RuleName: RuleEmergencyAbort}
	var triggers []string
	if ctx.Reactor.Command == ReactorEmergencyAbort {
		triggers = append(triggers, "reactor requested EMERGENCY_ABORT")
	}
	if h.ConflictSeverity == SeverityCritical {
		triggers = append(triggers, fmt.Sprintf("critical %s conflict", h.ConflictType))
	}
	if h.OverallHarmony < emergencyHarmonyFloor {
		triggers = append(triggers, fmt.Sprintf("overall harmony %.1f below %.0f", h.OverallHarmony, emergencyHarmonyFloor))
	}
	if cfg.EmergencyAbortOnConflict && ctx.EXO.Command == ExoCancel && ctx.Reactor.Command == ReactorCancel {
		triggers = append(triggers, "exo and reactor both cancel")
	}
	if gap := confidenceGap(ctx.EXO, ctx.Reactor); gap > 1.5*cfg.ConfidenceDiscrepancyMax {
		triggers = append(triggers, fmt.Sprintf("confidence gap %.0f exceeds %.1f", gap, 1.5*cfg.ConfidenceDiscrepancyMax))
	}

	if len(triggers) == 0 {
		res.Passed = true
		res.Reason = "no emergency condition"
		return res
	}
	res.ForceCancel = true
	res.BlockExecution = true
	res.SuggestedCommand = CommandEmergencyAbort
	res.HarmonyAdjustment = -50
	res.Reason = "emergency abort: " + strings.Join(triggers, "; ")
	return res
}
