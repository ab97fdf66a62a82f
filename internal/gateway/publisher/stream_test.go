package publisher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bagbot/internal/fusion"
)

func sampleDecision() fusion.FusionDecision {
	return fusion.FusionDecision{
		ID:           "d-1",
		Sequence:     3,
		Symbol:       "BTCUSDT",
		Direction:    fusion.DirectionLong,
		FinalCommand: fusion.CommandExecute,
		FinalSize:    0.98,
		OrderType:    fusion.OrderMarket,
		HarmonyScore: 96.5,
		Confidence:   85,
		Reasons:      []string{"EXECUTE: 5/5 rules passed"},
		Timestamp:    time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
	}
}

func TestStreamPublisher_Publish(t *testing.T) {
	db, mock := redismock.NewClientMock()
	p, err := NewStreamPublisher(db, Options{Stream: "bagbot:fusion:decisions", MaxLen: 1000})
	require.NoError(t, err)

	d := sampleDecision()
	args, err := p.XAddArgs(d)
	require.NoError(t, err)
	assert.True(t, args.Approx)
	mock.ExpectXAdd(args).SetVal("1700000000000-0")

	id, err := p.Publish(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, "1700000000000-0", id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStreamPublisher_BreakerOpens(t *testing.T) {
	db, mock := redismock.NewClientMock()
	p, err := NewStreamPublisher(db, Options{
		Stream:           "bagbot:fusion:decisions",
		FailureThreshold: 2,
		OpenTimeout:      time.Minute,
	})
	require.NoError(t, err)

	d := sampleDecision()
	args, err := p.XAddArgs(d)
	require.NoError(t, err)
	boom := errors.New("connection refused")
	mock.ExpectXAdd(args).SetErr(boom)
	mock.ExpectXAdd(args).SetErr(boom)

	for i := 0; i < 2; i++ {
		err := p.AfterDecide(context.Background(), d)
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
	}
	assert.Equal(t, gobreaker.StateOpen, p.State())

	// 熔断打开后不再访问 Redis
	_, err = p.Publish(context.Background(), d)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewStreamPublisher_RequiresStream(t *testing.T) {
	db, _ := redismock.NewClientMock()
	_, err := NewStreamPublisher(db, Options{})
	assert.Error(t, err)
	_, err = NewStreamPublisher(nil, Options{Stream: "s"})
	assert.Error(t, err)
}
