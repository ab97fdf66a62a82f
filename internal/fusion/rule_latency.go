package fusion

import "fmt"

const (
	latencyHealthyMs  = 100.0
	latencyCriticalMs = 200.0
)

func latencyBalanceRule(ctx EvalContext, _ HarmonyMetrics, cfg Config) RuleResult {
	res := RuleResult{RuleName: RuleLatencyBalance}
	delay := ctx.Reactor.DelayMs
	lat := ctx.Reactor.Latency()

	res.Passed = delay <= cfg.MaxDelayMs && (delay == 0 || lat < latencyHealthyMs)
	res.BlockExecution = delay > 1.5*cfg.MaxDelayMs
	res.ForceCancel = lat > latencyCriticalMs && delay > cfg.MaxDelayMs
	holdRequested := ctx.Reactor.Command == ReactorDelay || ctx.EXO.Command == ExoWait

	switch {
	case res.ForceCancel:
		res.SuggestedCommand = CommandCancel
		res.HarmonyAdjustment = -25
		res.Reason = fmt.Sprintf("latency %.0fms with delay %.0fms over max %.0fms", lat, delay, cfg.MaxDelayMs)
	case res.BlockExecution:
		res.SuggestedCommand = CommandCancel
		res.HarmonyAdjustment = -15
		res.Reason = fmt.Sprintf("delay %.0fms exceeds 1.5x max %.0fms", delay, cfg.MaxDelayMs)
	case !res.Passed:
		res.SuggestedCommand = CommandDelay
		res.HarmonyAdjustment = -5
		res.Reason = fmt.Sprintf("delay %.0fms / latency %.0fms out of balance, wait", delay, lat)
	case holdRequested:
		res.SuggestedCommand = CommandDelay
		res.Reason = fmt.Sprintf("hold requested (exo=%s reactor=%s)", ctx.EXO.Command, ctx.Reactor.Command)
	default:
		res.Reason = fmt.Sprintf("delay %.0fms latency %.0fms within budget", delay, lat)
	}
	return res
}
