package fusion

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"bagbot/internal/logger"
)

const defaultBatchLimit = 8

// Service 融合服务：校验 -> 纯计算 -> 打时间戳/序号 -> 更新统计 -> 通知观察者。
type Service struct {
	cfg        atomic.Pointer[Config]
	rules      RuleSet
	acc        Accumulator
	observers  []DecisionObserver
	now        func() time.Time
	newID      func() string
	batchLimit int

	commitMu  sync.Mutex
	lastStamp time.Time
}

// Option 构造参数。
type Option func(*Service)

func WithRules(rules RuleSet) Option {
	return func(s *Service) {
		if len(rules) > 0 {
			s.rules = rules
		}
	}
}

func WithAccumulator(acc Accumulator) Option {
	return func(s *Service) {
		if acc != nil {
			s.acc = acc
		}
	}
}

func WithObservers(obs ...DecisionObserver) Option {
	return func(s *Service) {
		for _, o := range obs {
			if o != nil {
				s.observers = append(s.observers, o)
			}
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

func WithBatchLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchLimit = n
		}
	}
}

// NewService 配置非法时直接返回 *ConfigError。
func NewService(cfg Config, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Service{
		rules:      DefaultRules(),
		acc:        NewAccumulator(),
		now:        time.Now,
		newID:      uuid.NewString,
		batchLimit: defaultBatchLimit,
	}
	c := cfg
	s.cfg.Store(&c)
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Config 当前生效配置的副本。
func (s *Service) Config() Config {
	return *s.cfg.Load()
}

// UpdateConfig 校验后整体替换（copy-on-write），进行中的周期继续使用旧配置。
func (s *Service) UpdateConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	c := cfg
	s.cfg.Store(&c)
	logger.Infof("fusion config 已更新 execute>=%.1f scale>=%.1f max_delay=%.0fms", c.MinHarmonyForExecute, c.MinHarmonyForScale, c.MaxDelayMs)
	return nil
}

// Rules 当前规则注册表。
func (s *Service) Rules() RuleSet {
	return s.rules
}

// Fuse 处理一对决策。输入不合法时返回 *ValidationError，且不更新任何统计。
func (s *Service) Fuse(ctx context.Context, req Request) (FusionDecision, error) {
	if err := req.Validate(); err != nil {
		s.notifyRejected(ctx, req, err)
		return FusionDecision{}, err
	}
	start := time.Now()
	cfg := s.cfg.Load()
	d := Evaluate(req, *cfg, s.rules)
	d.ID = s.newID()
	d.Metrics.ElapsedMicros = time.Since(start).Microseconds()

	s.commitMu.Lock()
	d.Timestamp = s.nextStamp()
	d.Sequence = s.acc.Record(d)
	s.commitMu.Unlock()

	log := logger.With("symbol", d.Symbol, "seq", d.Sequence, "command", string(d.FinalCommand))
	log.Debug("fusion decided", "id", d.ID, "direction", string(d.Direction), "harmony", d.HarmonyScore, "size", d.FinalSize)
	switch d.FinalCommand {
	case CommandEmergencyAbort:
		log.Warn("fusion aborted", "reason", firstReason(d.Reasons))
	case CommandCancel:
		log.Info("fusion cancelled", "reason", firstReason(d.Reasons))
	}
	s.notify(ctx, d)
	return d, nil
}

// nextStamp 保证时间戳严格递增；调用方持有 commitMu。
func (s *Service) nextStamp() time.Time {
	now := s.now().UTC()
	if !now.After(s.lastStamp) {
		now = s.lastStamp.Add(time.Nanosecond)
	}
	s.lastStamp = now
	return now
}

// BatchResult FuseBatch 的单项结果。
type BatchResult struct {
	Decision FusionDecision
	Err      error
}

// FuseBatch 并发处理多对决策，单项校验失败只影响该项；ctx 取消时停止调度剩余项。
func (s *Service) FuseBatch(ctx context.Context, reqs []Request) ([]BatchResult, error) {
	results := make([]BatchResult, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.batchLimit)
	for i := range reqs {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			d, err := s.Fuse(gctx, reqs[i])
			results[i] = BatchResult{Decision: d, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// Statistics 只读快照，可能略微滞后于正在进行的周期。
func (s *Service) Statistics() State {
	return s.acc.Snapshot()
}

// Reset 清零统计，仅用于测试隔离与运维手动操作。
func (s *Service) Reset() {
	s.acc.Reset()
	logger.Warnf("fusion state 已重置")
}

func (s *Service) notify(ctx context.Context, d FusionDecision) {
	for _, o := range s.observers {
		if err := o.AfterDecide(ctx, d); err != nil {
			logger.Warnf("fusion observer 失败 id=%s err=%v", d.ID, err)
		}
	}
}

// ReportRejected 供外部解码层（HTTP/replay）在进入 Fuse 之前拒绝输入时上报。
func (s *Service) ReportRejected(ctx context.Context, req Request, err error) {
	s.notifyRejected(ctx, req, err)
}

func (s *Service) notifyRejected(ctx context.Context, req Request, err error) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		logger.Warnf("fusion 输入被拒绝 symbol=%s issues=%d", req.Market.Symbol, len(verr.Issues))
	}
	for _, o := range s.observers {
		if ro, ok := o.(RejectionObserver); ok {
			ro.OnRejected(ctx, req, err)
		}
	}
}

func firstReason(reasons []string) string {
	if len(reasons) == 0 {
		return ""
	}
	return reasons[0]
}
