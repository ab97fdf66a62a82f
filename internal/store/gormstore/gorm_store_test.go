package gormstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bagbot/internal/fusion"
)

func sampleRequest(symbol string, reactor fusion.ReactorCommand) fusion.Request {
	ts := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	latency := 15.0
	return fusion.Request{
		EXO: fusion.EXODecision{
			Command: fusion.ExoExecute, Confidence: 90, TargetSize: 1,
			Direction: fusion.DirectionLong, Timestamp: ts,
		},
		Reactor: fusion.ReactorDecision{
			Command: reactor, FinalSize: 0.98, OrderType: fusion.OrderLimit,
			Confidence: 88, LatencyMs: &latency, Timestamp: ts,
		},
		Market: fusion.MarketSnapshot{Symbol: symbol, Price: 100, Timestamp: ts},
	}
}

func decide(id string, seq uint64, at time.Time, req fusion.Request) fusion.FusionDecision {
	d := fusion.Evaluate(req, fusion.DefaultConfig(), fusion.DefaultRules())
	d.ID = id
	d.Sequence = seq
	d.Timestamp = at
	return d
}

func newStore(t *testing.T) *GormStore {
	t.Helper()
	s, err := NewGormStore(filepath.Join(t.TempDir(), "nested", "decisions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestGormStore_SaveAndGet(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 2, 9, 30, 0, 123456789, time.UTC)
	d := decide("a-1", 1, at, sampleRequest("btcusdt", fusion.ReactorExecute))

	require.NoError(t, s.AfterDecide(ctx, d))
	// 重复写入同一 ID 不报错也不产生第二行
	require.NoError(t, s.SaveDecision(ctx, d))

	got, ok, err := s.GetDecision(ctx, "a-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "BTCUSDT", got.Symbol)
	assert.Equal(t, fusion.CommandExecute, got.FinalCommand)
	assert.Equal(t, d.FinalSize, got.FinalSize)
	assert.Equal(t, d.Reasons, got.Reasons)
	assert.Equal(t, d.Metrics.RulesPassed, got.Metrics.RulesPassed)
	assert.Len(t, got.Metrics.Rules, 5)
	assert.Equal(t, fusion.OrderLimit, got.Sources.Reactor.OrderType)
	assert.True(t, at.Equal(got.Timestamp))

	total, err := s.CountDecisions(ctx, DecisionQuery{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	_, ok, err = s.GetDecision(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGormStore_ListFilters(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	rows := []fusion.FusionDecision{
		decide("b-1", 1, base, sampleRequest("BTCUSDT", fusion.ReactorExecute)),
		decide("b-2", 2, base.Add(time.Second), sampleRequest("ETHUSDT", fusion.ReactorEmergencyAbort)),
		decide("b-3", 3, base.Add(2*time.Second), sampleRequest("BTCUSDT", fusion.ReactorEmergencyAbort)),
	}
	for _, d := range rows {
		require.NoError(t, s.SaveDecision(ctx, d))
	}

	all, err := s.ListDecisions(ctx, DecisionQuery{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "b-3", all[0].ID)
	assert.Equal(t, "b-1", all[2].ID)

	btc, err := s.ListDecisions(ctx, DecisionQuery{Symbol: "btcusdt"})
	require.NoError(t, err)
	assert.Len(t, btc, 2)

	aborts, err := s.ListDecisions(ctx, DecisionQuery{Command: fusion.CommandEmergencyAbort, Limit: 1})
	require.NoError(t, err)
	require.Len(t, aborts, 1)
	assert.Equal(t, "b-3", aborts[0].ID)

	page, err := s.ListDecisions(ctx, DecisionQuery{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "b-2", page[0].ID)

	n, err := s.CountDecisions(ctx, DecisionQuery{Symbol: "BTCUSDT", Command: fusion.CommandEmergencyAbort})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestGormStore_RejectsEmptyID(t *testing.T) {
	s := newStore(t)
	err := s.SaveDecision(context.Background(), fusion.FusionDecision{})
	assert.Error(t, err)
}

func TestNewGormStore_RequiresPath(t *testing.T) {
	_, err := NewGormStore("  ")
	assert.Error(t, err)
}
