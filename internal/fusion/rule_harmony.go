package fusion

import "fmt"

// harmonyCheckRule 按 overall harmony 分档给出建议，并以两路中更保守的意图封顶。
func harmonyCheckRule(ctx EvalContext, h HarmonyMetrics, cfg Config) RuleResult {
	res := RuleResult{RuleName: RuleHarmonyCheck}
	overall := h.OverallHarmony
	ceiling := exoIntent(ctx.EXO.Command)
	if ri := reactorIntent(ctx.Reactor.Command); ri < ceiling {
		ceiling = ri
	}

	band := CommandCancel
	switch {
	case overall >= cfg.MinHarmonyForExecute && !h.HasConflict:
		band = CommandExecute
	case overall >= cfg.MinHarmonyForScale:
		band = CommandScale
	}

	res.Passed = overall >= cfg.MinHarmonyForExecute && !h.HasConflict && ceiling != intentStop
	res.BlockExecution = overall < cfg.MinHarmonyForScale

	switch ceiling {
	case intentStop:
		res.SuggestedCommand = CommandCancel
		res.BlockExecution = true
		res.HarmonyAdjustment = -10
		res.Reason = fmt.Sprintf("both sources lean to stop (exo=%s reactor=%s)", ctx.EXO.Command, ctx.Reactor.Command)
		return res
	case intentHold:
		if band == CommandCancel {
			res.SuggestedCommand = CommandCancel
		} else {
			res.SuggestedCommand = CommandDelay
		}
	case intentPartial:
		if band == CommandExecute {
			res.SuggestedCommand = CommandScale
		} else {
			res.SuggestedCommand = band
		}
	case intentGo:
		res.SuggestedCommand = band
	default:
		res.SuggestedCommand = CommandCancel
	}

	switch band {
	case CommandExecute:
		res.Reason = fmt.Sprintf("harmony %.1f >= execute threshold %.1f", overall, cfg.MinHarmonyForExecute)
	case CommandScale:
		res.HarmonyAdjustment = -5
		if h.HasConflict {
			res.Reason = fmt.Sprintf("harmony %.1f with %s conflict, scale only", overall, h.ConflictType)
		} else {
			res.Reason = fmt.Sprintf("harmony %.1f below execute threshold %.1f, scale only", overall, cfg.MinHarmonyForExecute)
		}
	default:
		res.HarmonyAdjustment = -10
		res.Reason = fmt.Sprintf("harmony %.1f below scale threshold %.1f", overall, cfg.MinHarmonyForScale)
	}
	return res
}
