package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sony/gobreaker"

	"bagbot/internal/fusion"
	"bagbot/internal/logger"
)

// 中文说明：
// StreamPublisher 把每条 FusionDecision 以 XADD 写入 Redis stream，供执行方消费。
// 外层包一个熔断器：Redis 抖动时快速失败，不拖慢融合主流程。

// Options 发布器参数。
type Options struct {
	Stream           string
	MaxLen           int64
	Timeout          time.Duration
	MaxRequests      uint32
	Interval         time.Duration
	OpenTimeout      time.Duration
	FailureThreshold uint32
}

type StreamPublisher struct {
	client  redis.Cmdable
	opts    Options
	breaker *gobreaker.CircuitBreaker
}

// NewStreamPublisher client 可以是 *redis.Client 或 redismock 的客户端。
func NewStreamPublisher(client redis.Cmdable, opts Options) (*StreamPublisher, error) {
	if client == nil {
		return nil, errors.New("redis client 不能为空")
	}
	if opts.Stream == "" {
		return nil, errors.New("stream 名称不能为空")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 500 * time.Millisecond
	}
	if opts.FailureThreshold == 0 {
		opts.FailureThreshold = 5
	}
	threshold := opts.FailureThreshold
	st := gobreaker.Settings{
		Name:        "fusion-stream:" + opts.Stream,
		MaxRequests: opts.MaxRequests,
		Interval:    opts.Interval,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warnf("publisher breaker %s: %s -> %s", name, from, to)
		},
	}
	return &StreamPublisher{client: client, opts: opts, breaker: gobreaker.NewCircuitBreaker(st)}, nil
}

// AfterDecide 实现 fusion.DecisionObserver。
func (p *StreamPublisher) AfterDecide(ctx context.Context, d fusion.FusionDecision) error {
	_, err := p.Publish(ctx, d)
	return err
}

// Publish 返回 Redis 分配的 entry ID；熔断打开时返回 gobreaker.ErrOpenState。
func (p *StreamPublisher) Publish(ctx context.Context, d fusion.FusionDecision) (string, error) {
	args, err := p.XAddArgs(d)
	if err != nil {
		return "", err
	}
	out, err := p.breaker.Execute(func() (interface{}, error) {
		cctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
		return p.client.XAdd(cctx, args).Result()
	})
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", p.opts.Stream, err)
	}
	id, _ := out.(string)
	return id, nil
}

// XAddArgs 字段顺序固定，payload 为完整决策 JSON。
func (p *StreamPublisher) XAddArgs(d fusion.FusionDecision) (*redis.XAddArgs, error) {
	payload, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal decision: %w", err)
	}
	return &redis.XAddArgs{
		Stream: p.opts.Stream,
		MaxLen: p.opts.MaxLen,
		Approx: p.opts.MaxLen > 0,
		Values: []interface{}{
			"id", d.ID,
			"sequence", strconv.FormatUint(d.Sequence, 10),
			"symbol", d.Symbol,
			"command", string(d.FinalCommand),
			"direction", string(d.Direction),
			"size", strconv.FormatFloat(d.FinalSize, 'f', -1, 64),
			"order_type", string(d.OrderType),
			"delay_ms", strconv.FormatFloat(d.DelayMs, 'f', -1, 64),
			"harmony", strconv.FormatFloat(d.HarmonyScore, 'f', -1, 64),
			"ts", strconv.FormatInt(d.Timestamp.UnixMilli(), 10),
			"payload", string(payload),
		},
	}, nil
}

// State 当前熔断状态，供 /healthz 展示。
func (p *StreamPublisher) State() gobreaker.State {
	return p.breaker.State()
}
