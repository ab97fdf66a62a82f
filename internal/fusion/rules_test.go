package fusion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func evalRule(fn RuleFunc, req Request, cfg Config) RuleResult {
	h := ComputeHarmony(req.EXO, req.Reactor, cfg)
	return fn(EvalContext(req), h, cfg)
}

func TestDefaultRulesRegistry(t *testing.T) {
	rules := DefaultRules()
	assert.Equal(t, []string{
		RuleHarmonyCheck,
		RuleConflictResolution,
		RuleLatencyBalance,
		RulePressureEqualization,
		RuleEmergencyAbort,
	}, rules.Names())

	req := alignedRequest()
	cfg := DefaultConfig()
	results := rules.Evaluate(EvalContext(req), ComputeHarmony(req.EXO, req.Reactor, cfg), cfg)
	require.Len(t, results, 5)
	prio := map[string]int{}
	for _, r := range results {
		prio[r.RuleName] = r.Priority
		assert.True(t, r.Passed, r.RuleName)
	}
	assert.Equal(t, 10, prio[RuleHarmonyCheck])
	assert.Equal(t, 9, prio[RuleConflictResolution])
	assert.Equal(t, 7, prio[RuleLatencyBalance])
	assert.Equal(t, 6, prio[RulePressureEqualization])
	assert.Equal(t, 10, prio[RuleEmergencyAbort])
}

func TestRuleSetClampsOutOfRangeValues(t *testing.T) {
	wild := RuleSet{{
		Name:     "wild",
		Priority: 42,
		Eval: func(EvalContext, HarmonyMetrics, Config) RuleResult {
			return RuleResult{HarmonyAdjustment: -500}
		},
	}, {Name: "nil"}}
	out := wild.Evaluate(EvalContext{}, HarmonyMetrics{}, DefaultConfig())
	require.Len(t, out, 1)
	assert.Equal(t, "wild", out[0].RuleName)
	assert.Equal(t, 10, out[0].Priority)
	assert.Equal(t, -50.0, out[0].HarmonyAdjustment)
}

func TestHarmonyCheckRule(t *testing.T) {
	cfg := DefaultConfig()

	res := evalRule(harmonyCheckRule, alignedRequest(), cfg)
	assert.True(t, res.Passed)
	assert.False(t, res.BlockExecution)
	assert.Equal(t, CommandExecute, res.SuggestedCommand)

	// 一方只愿部分执行时封顶为 SCALE
	req := alignedRequest()
	req.Reactor.Command = ReactorScale
	res = evalRule(harmonyCheckRule, req, cfg)
	assert.Equal(t, CommandScale, res.SuggestedCommand)

	// 一方要求等待时封顶为 DELAY
	req = alignedRequest()
	req.EXO.Command = ExoWait
	res = evalRule(harmonyCheckRule, req, cfg)
	assert.Equal(t, CommandDelay, res.SuggestedCommand)

	// 双方都停
	req = alignedRequest()
	req.EXO.Command = ExoCancel
	req.Reactor.Command = ReactorCancel
	res = evalRule(harmonyCheckRule, req, cfg)
	assert.False(t, res.Passed)
	assert.True(t, res.BlockExecution)
	assert.Equal(t, CommandCancel, res.SuggestedCommand)
}

func TestConflictResolutionRule(t *testing.T) {
	cfg := DefaultConfig()
	cases := []struct {
		name        string
		mutate      func(*Request)
		passed      bool
		block       bool
		forceCancel bool
		suggested   Command
	}{
		{
			name:   "no conflict",
			mutate: func(*Request) {},
			passed: true,
		},
		{
			name: "reactor veto by confident cancel",
			mutate: func(r *Request) {
				r.Reactor.Command = ReactorCancel
				r.Reactor.Confidence = 85
			},
			block: true, forceCancel: true, suggested: CommandCancel,
		},
		{
			name: "exo veto by confident cancel",
			mutate: func(r *Request) {
				r.EXO.Command = ExoCancel
				r.EXO.Confidence = 90
			},
			block: true, suggested: CommandCancel,
		},
		{
			name: "low severity size conflict scales",
			mutate: func(r *Request) {
				r.Reactor.FinalSize = 0.75
			},
			suggested: CommandScale,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := alignedRequest()
			tc.mutate(&req)
			res := evalRule(conflictResolutionRule, req, cfg)
			assert.Equal(t, tc.passed, res.Passed)
			assert.Equal(t, tc.block, res.BlockExecution)
			assert.Equal(t, tc.forceCancel, res.ForceCancel)
			assert.Equal(t, tc.suggested, res.SuggestedCommand)
			assert.NotEmpty(t, res.Reason)
		})
	}
}

func TestConflictResolutionRule_HighSeverityForcesCancel(t *testing.T) {
	h := HarmonyMetrics{OverallHarmony: 40, HasConflict: true, ConflictType: ConflictCommand, ConflictSeverity: SeverityHigh}
	req := alignedRequest()
	req.Reactor.Command = ReactorDelay
	res := conflictResolutionRule(EvalContext(req), h, DefaultConfig())
	assert.True(t, res.ForceCancel)
	assert.True(t, res.BlockExecution)
	assert.Equal(t, CommandCancel, res.SuggestedCommand)
}

func TestLatencyBalanceRule(t *testing.T) {
	cfg := DefaultConfig()
	cases := []struct {
		name        string
		command     ReactorCommand
		delay       float64
		latency     float64
		passed      bool
		block       bool
		forceCancel bool
		suggested   Command
	}{
		{"immediate", ReactorExecute, 0, 300, true, false, false, CommandNone},
		{"small delay healthy link", ReactorDelay, 200, 40, true, false, false, CommandDelay},
		{"delay on slow link", ReactorExecute, 200, 150, false, false, false, CommandDelay},
		{"delay over max", ReactorDelay, 600, 50, false, false, false, CommandDelay},
		{"delay over 1.5x max", ReactorDelay, 800, 50, false, true, false, CommandCancel},
		{"stale and slow", ReactorDelay, 600, 250, false, false, true, CommandCancel},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := alignedRequest()
			req.Reactor.Command = tc.command
			req.Reactor.DelayMs = tc.delay
			req.Reactor.LatencyMs = f64(tc.latency)
			res := evalRule(latencyBalanceRule, req, cfg)
			assert.Equal(t, tc.passed, res.Passed)
			assert.Equal(t, tc.block, res.BlockExecution)
			assert.Equal(t, tc.forceCancel, res.ForceCancel)
			assert.Equal(t, tc.suggested, res.SuggestedCommand)
		})
	}
}

func TestPressureEqualizationRule(t *testing.T) {
	cfg := DefaultConfig()
	cases := []struct {
		name        string
		finalSize   float64
		pressure    *float64
		passed      bool
		block       bool
		forceCancel bool
		suggested   Command
	}{
		{"within limit", 0.9, nil, true, false, false, CommandNone},
		{"over limit", 0.7, nil, false, false, false, CommandScale},
		{"over 2x limit", 0.5, nil, false, true, false, CommandCancel},
		{"weak pressure over limit", 0.7, f64(20), false, false, true, CommandCancel},
		{"weak pressure within limit", 0.9, f64(20), true, false, false, CommandNone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := alignedRequest()
			req.Reactor.FinalSize = tc.finalSize
			req.Reactor.PressureScore = tc.pressure
			res := evalRule(pressureEqualizationRule, req, cfg)
			assert.Equal(t, tc.passed, res.Passed)
			assert.Equal(t, tc.block, res.BlockExecution)
			assert.Equal(t, tc.forceCancel, res.ForceCancel)
			assert.Equal(t, tc.suggested, res.SuggestedCommand)
		})
	}
}

func TestEmergencyAbortRule(t *testing.T) {
	cfg := DefaultConfig()

	res := evalRule(emergencyAbortRule, alignedRequest(), cfg)
	assert.True(t, res.Passed)
	assert.Equal(t, CommandNone, res.SuggestedCommand)

	triggers := map[string]func(*Request){
		"reactor abort": func(r *Request) { r.Reactor.Command = ReactorEmergencyAbort },
		"both cancel": func(r *Request) {
			r.EXO.Command = ExoCancel
			r.Reactor.Command = ReactorCancel
		},
		"confidence gap": func(r *Request) { r.Reactor.Confidence = 50 },
		"harmony floor": func(r *Request) {
			r.EXO.Command = ExoExecute
			r.Reactor.Command = ReactorCancel
			r.Reactor.FinalSize = 0
			r.Reactor.DelayMs = 1000
		},
	}
	for name, mutate := range triggers {
		t.Run(name, func(t *testing.T) {
			req := alignedRequest()
			mutate(&req)
			res := evalRule(emergencyAbortRule, req, cfg)
			assert.False(t, res.Passed)
			assert.True(t, res.BlockExecution)
			assert.True(t, res.ForceCancel)
			assert.Equal(t, CommandEmergencyAbort, res.SuggestedCommand)
			assert.Contains(t, res.Reason, "emergency abort")
		})
	}

	t.Run("both cancel ignored when disabled", func(t *testing.T) {
		off := cfg
		off.EmergencyAbortOnConflict = false
		req := alignedRequest()
		req.EXO.Command = ExoCancel
		req.Reactor.Command = ReactorCancel
		res := evalRule(emergencyAbortRule, req, off)
		assert.True(t, res.Passed)
	})
}
