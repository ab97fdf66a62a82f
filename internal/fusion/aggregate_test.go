package fusion

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passing(name string) RuleResult {
	return RuleResult{RuleName: name, Passed: true, Reason: name + " ok", Priority: 5}
}

func failing(name string) RuleResult {
	return RuleResult{RuleName: name, Reason: name + " failed", Priority: 5}
}

func TestAggregate_Precedence(t *testing.T) {
	cases := []struct {
		name    string
		results []RuleResult
		want    Command
	}{
		{
			name: "abort dominates everything",
			results: []RuleResult{
				passing("a"), passing("b"), passing("c"), passing("d"),
				{RuleName: "e", BlockExecution: true, ForceCancel: true, SuggestedCommand: CommandEmergencyAbort},
			},
			want: CommandEmergencyAbort,
		},
		{
			name: "abort suggestion without block is not a veto",
			results: []RuleResult{
				passing("a"), passing("b"), passing("c"), passing("d"),
				{RuleName: "e", SuggestedCommand: CommandEmergencyAbort},
			},
			want: CommandExecute,
		},
		{
			name: "force cancel beats scale",
			results: []RuleResult{
				{RuleName: "a", ForceCancel: true},
				{RuleName: "b", SuggestedCommand: CommandScale},
				passing("c"), passing("d"), passing("e"),
			},
			want: CommandCancel,
		},
		{
			name: "two blockers cancel",
			results: []RuleResult{
				{RuleName: "a", BlockExecution: true, SuggestedCommand: CommandScale},
				{RuleName: "b", BlockExecution: true},
				passing("c"), passing("d"), passing("e"),
			},
			want: CommandCancel,
		},
		{
			name: "scale beats delay",
			results: []RuleResult{
				{RuleName: "a", Passed: true, SuggestedCommand: CommandDelay},
				{RuleName: "b", Passed: true, SuggestedCommand: CommandScale},
				passing("c"), passing("d"), passing("e"),
			},
			want: CommandScale,
		},
		{
			name: "blocking rule suggestion is ignored",
			results: []RuleResult{
				{RuleName: "a", BlockExecution: true, SuggestedCommand: CommandScale},
				{RuleName: "b", Passed: true, SuggestedCommand: CommandDelay},
				passing("c"), passing("d"), passing("e"),
			},
			want: CommandDelay,
		},
		{
			name:    "four of five execute",
			results: []RuleResult{passing("a"), passing("b"), passing("c"), passing("d"), failing("e")},
			want:    CommandExecute,
		},
		{
			name:    "three of five cancel",
			results: []RuleResult{passing("a"), passing("b"), passing("c"), failing("d"), failing("e")},
			want:    CommandCancel,
		},
		{
			name: "single blocker prevents execute",
			results: []RuleResult{
				passing("a"), passing("b"), passing("c"), passing("d"),
				{RuleName: "e", BlockExecution: true},
			},
			want: CommandCancel,
		},
		{
			name:    "no rules is conservative",
			results: nil,
			want:    CommandCancel,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := Aggregate(tc.results)
			assert.Equal(t, tc.want, out.Command)
			require.NotEmpty(t, out.Reasons)
			assert.Contains(t, out.Reasons[0], string(tc.want))
		})
	}
}

func TestAggregate_ReasonsMostSevereFirst(t *testing.T) {
	out := Aggregate([]RuleResult{
		{RuleName: "ok", Passed: true, Reason: "fine", Priority: 10},
		{RuleName: "soft", Reason: "soft fail", Priority: 6},
		{RuleName: "block", BlockExecution: true, Reason: "blocked", Priority: 7},
		{RuleName: "abort", BlockExecution: true, ForceCancel: true, SuggestedCommand: CommandEmergencyAbort, Reason: "boom", Priority: 10},
		{RuleName: "force", ForceCancel: true, Reason: "forced", Priority: 9},
	})
	assert.Equal(t, CommandEmergencyAbort, out.Command)
	assert.Equal(t, []string{
		"EMERGENCY_ABORT: vetoed by abort",
		"[abort] boom",
		"[force] forced",
		"[block] blocked",
		"[soft] soft fail",
		"[ok] fine",
	}, out.Reasons)
	assert.Equal(t, 1, out.Passed)
	assert.Equal(t, 2, out.Blocking)
	assert.Equal(t, 2, out.ForceCancel)
}

func TestEvaluate_AlignedScenario(t *testing.T) {
	d := Evaluate(alignedRequest(), DefaultConfig(), DefaultRules())

	assert.Equal(t, CommandExecute, d.FinalCommand)
	assert.InDelta(t, 0.98, d.FinalSize, 1e-9)
	assert.Equal(t, OrderMarket, d.OrderType)
	assert.GreaterOrEqual(t, d.Metrics.Harmony.OverallHarmony, 90.0)
	assert.False(t, d.Metrics.Harmony.HasConflict)
	assert.Equal(t, 100.0, d.HarmonyScore)
	assert.InDelta(t, 89.0, d.Confidence, 1e-9)
	assert.Equal(t, "BTCUSDT", d.Symbol)
	assert.Equal(t, DirectionLong, d.Direction)
	assert.Equal(t, 5, d.Metrics.RulesPassed)
}

func TestEvaluate_VetoScenario(t *testing.T) {
	d := Evaluate(vetoRequest(), DefaultConfig(), DefaultRules())

	assert.Equal(t, CommandEmergencyAbort, d.FinalCommand)
	assert.Equal(t, 0.0, d.FinalSize)
	assert.Equal(t, 0.0, d.DelayMs)
	require.GreaterOrEqual(t, len(d.Reasons), 2)
	assert.Contains(t, d.Reasons[1], RuleEmergencyAbort)
}

func TestEvaluate_VetoDominance(t *testing.T) {
	exoCommands := []ExoCommand{ExoExecute, ExoWait, ExoCancel, ExoScale}
	for _, cmd := range exoCommands {
		for _, conf := range []float64{0, 35, 70, 100} {
			for _, size := range []float64{0, 0.5, 1, 25} {
				req := vetoRequest()
				req.EXO.Command = cmd
				req.EXO.Confidence = conf
				req.EXO.TargetSize = size
				d := Evaluate(req, DefaultConfig(), DefaultRules())
				assert.Equal(t, CommandEmergencyAbort, d.FinalCommand, "exo=%s conf=%v size=%v", cmd, conf, size)
				assert.Equal(t, 0.0, d.FinalSize)
			}
		}
	}
}

func TestEvaluate_Idempotent(t *testing.T) {
	req := alignedRequest()
	req.Reactor.FinalSize = 0.7
	a, err := json.Marshal(Evaluate(req, DefaultConfig(), DefaultRules()))
	require.NoError(t, err)
	b, err := json.Marshal(Evaluate(req, DefaultConfig(), DefaultRules()))
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestEvaluate_SizeDiscrepancyNeverExecutes(t *testing.T) {
	cfg := DefaultConfig()
	base := Evaluate(alignedRequest(), cfg, DefaultRules())
	require.Equal(t, CommandExecute, base.FinalCommand)

	for _, final := range []float64{0.79, 0.75, 0.6, 0.5, 0.3, 0.1, 0} {
		req := alignedRequest()
		req.Reactor.FinalSize = final
		require.Greater(t, sizeDiscrepancy(req.EXO.TargetSize, final), cfg.MaxSizeDiscrepancy)
		d := Evaluate(req, cfg, DefaultRules())
		assert.Contains(t, []Command{CommandScale, CommandCancel, CommandEmergencyAbort}, d.FinalCommand, "final_size=%v", final)
	}
}

func TestEvaluate_TwoBlockersCancel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinHarmonyForExecute = 80
	cfg.MinHarmonyForScale = 70
	req := alignedRequest()
	req.EXO.Confidence = 80
	req.EXO.TargetSize = 1
	req.Reactor.Command = ReactorDelay
	req.Reactor.Confidence = 75
	req.Reactor.FinalSize = 1
	req.Reactor.DelayMs = 800
	req.Reactor.LatencyMs = f64(50)

	d := Evaluate(req, cfg, DefaultRules())
	assert.InDelta(t, 63.0, d.Metrics.Harmony.OverallHarmony, 1e-9)
	assert.Equal(t, 2, d.Metrics.RulesBlocking)
	assert.Equal(t, 0, d.Metrics.RulesForceCancel)
	assert.Equal(t, CommandCancel, d.FinalCommand)
	assert.Equal(t, 0.0, d.FinalSize)
}

func TestFinalize_HarmonyClamp(t *testing.T) {
	req := alignedRequest()
	h := HarmonyMetrics{OverallHarmony: 90}

	high := Finalize(req, h, nil, Outcome{Command: CommandExecute, Adjustment: 250})
	assert.Equal(t, 100.0, high.HarmonyScore)

	low := Finalize(req, h, nil, Outcome{Command: CommandCancel, Adjustment: -250})
	assert.Equal(t, 0.0, low.HarmonyScore)
	assert.Equal(t, 0.0, low.Confidence)

	d := Evaluate(vetoRequest(), DefaultConfig(), DefaultRules())
	assert.GreaterOrEqual(t, d.HarmonyScore, 0.0)
	assert.LessOrEqual(t, d.HarmonyScore, 100.0)
}
