package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bagbot/internal/fusion"
)

func TestRegistry_ObservesDecisions(t *testing.T) {
	r := NewRegistry("bagbot")
	ctx := context.Background()

	d := fusion.FusionDecision{FinalCommand: fusion.CommandCancel, HarmonyScore: 35}
	d.Metrics.Harmony = fusion.HarmonyMetrics{HasConflict: true, ConflictType: fusion.ConflictCommand, ConflictSeverity: fusion.SeverityHigh}
	d.Metrics.Rules = []fusion.RuleResult{
		{RuleName: fusion.RuleConflictResolution, BlockExecution: true},
		{RuleName: fusion.RuleHarmonyCheck, BlockExecution: true},
		{RuleName: fusion.RuleLatencyBalance, Passed: true},
	}
	require.NoError(t, r.AfterDecide(ctx, d))
	require.NoError(t, r.AfterDecide(ctx, fusion.FusionDecision{FinalCommand: fusion.CommandExecute, HarmonyScore: 95}))
	r.OnRejected(ctx, fusion.Request{}, errors.New("bad"))

	assert.Equal(t, 1.0, testutil.ToFloat64(r.Decisions.WithLabelValues("CANCEL")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Decisions.WithLabelValues("EXECUTE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Conflicts.WithLabelValues("COMMAND_MISMATCH", "HIGH")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.RuleBlocks.WithLabelValues(fusion.RuleConflictResolution)))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.RuleBlocks.WithLabelValues(fusion.RuleLatencyBalance)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Rejections))
	assert.Equal(t, 2, testutil.CollectAndCount(r.Decisions))
}

func TestRegistry_Handler(t *testing.T) {
	r := NewRegistry("bagbot")
	require.NoError(t, r.AfterDecide(context.Background(), fusion.FusionDecision{FinalCommand: fusion.CommandScale, HarmonyScore: 70}))

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `bagbot_fusion_decisions_total{command="SCALE"} 1`)
}
