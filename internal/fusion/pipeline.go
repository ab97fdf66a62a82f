package fusion

// Evaluate 一次完整的融合计算：harmony -> rules -> aggregate -> finalize。
// 纯函数：不校验输入、不生成 ID/时间戳、不触碰任何共享状态。
func Evaluate(req Request, cfg Config, rules RuleSet) FusionDecision {
	h := ComputeHarmony(req.EXO, req.Reactor, cfg)
	ctx := EvalContext(req)
	results := rules.Evaluate(ctx, h, cfg)
	return Finalize(req, h, results, Aggregate(results))
}

// Finalize 把聚合结果落成 FusionDecision。
func Finalize(req Request, h HarmonyMetrics, results []RuleResult, out Outcome) FusionDecision {
	score := roundScore(clampScore(h.OverallHarmony + out.Adjustment))
	d := FusionDecision{
		Symbol:       req.Market.Symbol,
		Direction:    req.EXO.Direction,
		FinalCommand: out.Command,
		OrderType:    req.Reactor.OrderType,
		HarmonyScore: score,
		Reasons:      out.Reasons,
		Metrics: DecisionMetrics{
			RulesEvaluated:    out.Evaluated,
			RulesPassed:       out.Passed,
			RulesBlocking:     out.Blocking,
			RulesForceCancel:  out.ForceCancel,
			Harmony:           h,
			HarmonyAdjustment: roundScore(out.Adjustment),
			Rules:             results,
		},
		Sources: DecisionSources{
			EXO:     req.EXO,
			Reactor: req.Reactor,
			Market:  req.Market,
		},
	}
	if !out.Command.Terminal() {
		d.FinalSize = quantizeSize(req.Reactor.FinalSize)
		d.DelayMs = req.Reactor.DelayMs
	}
	avg := (req.EXO.Confidence + req.Reactor.Confidence) / 2
	d.Confidence = roundScore(clampScore(avg * score / maxHarmony))
	return d
}
