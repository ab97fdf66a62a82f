package app

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"bagbot/internal/config"
	cfgloader "bagbot/internal/config/loader"
	"bagbot/internal/fusion"
	"bagbot/internal/gateway/notifier"
	"bagbot/internal/gateway/publisher"
	"bagbot/internal/logger"
	"bagbot/internal/metrics"
	"bagbot/internal/store/gormstore"
	"bagbot/internal/store/statslog"
	fusionhttp "bagbot/internal/transport/http/fusion"
)

// AppBuilder 把配置装配成 App；各 *Fn 字段可在测试中替换。
type AppBuilder struct {
	cfg     *config.Config
	cfgPath string

	decisionStoreFn func(string) (*gormstore.GormStore, error)
	statsStoreFn    func(string) (*statslog.StatsStore, error)
	redisFn         func(config.PublisherConfig) redis.UniversalClient
	loaderFn        func(string, bool) (*cfgloader.FusionLoader, error)
	senderFn        func(config.NotifyConfig) notifier.TextNotifier
}

type AppBuilderOption func(*AppBuilder)

// WithRedisClient 替换发布器使用的 Redis 客户端（测试用 redismock）。
func WithRedisClient(client redis.UniversalClient) AppBuilderOption {
	return func(b *AppBuilder) {
		b.redisFn = func(config.PublisherConfig) redis.UniversalClient { return client }
	}
}

// WithTextNotifier 替换告警发送端。
func WithTextNotifier(sender notifier.TextNotifier) AppBuilderOption {
	return func(b *AppBuilder) {
		b.senderFn = func(config.NotifyConfig) notifier.TextNotifier { return sender }
	}
}

func NewAppBuilder(cfg *config.Config, cfgPath string, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:             cfg,
		cfgPath:         cfgPath,
		decisionStoreFn: gormstore.NewGormStore,
		statsStoreFn:    statslog.NewStatsStore,
		redisFn:         newRedisClient,
		loaderFn:        cfgloader.NewFusionLoader,
		senderFn:        newTelegram,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func newRedisClient(pc config.PublisherConfig) redis.UniversalClient {
	return redis.NewClient(&redis.Options{
		Addr:         pc.Addr,
		Password:     pc.Password,
		DB:           pc.DB,
		DialTimeout:  time.Duration(pc.TimeoutMs) * time.Millisecond,
		WriteTimeout: time.Duration(pc.TimeoutMs) * time.Millisecond,
	})
}

func newTelegram(nc config.NotifyConfig) notifier.TextNotifier {
	return notifier.NewTelegram(nc.BotToken, nc.ChatID)
}

// Build 按依赖顺序初始化；中途失败时释放已打开的资源。
func (b *AppBuilder) Build(ctx context.Context) (_ *App, err error) {
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	// 返回 nil 时具名结果被清空，清理只能依赖局部变量
	app := &App{cfg: cfg}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()
	summary := &StartupSummary{Env: cfg.App.Env, Fusion: cfg.Fusion.ToFusionConfig(), HTTPAddr: cfg.HTTP.Addr}

	decisions, err := b.decisionStoreFn(cfg.Store.DecisionDBPath)
	if err != nil {
		return nil, fmt.Errorf("open decision store: %w", err)
	}
	app.closers = append(app.closers, decisions.Close)
	observers := []fusion.DecisionObserver{decisions}
	summary.Observers = append(summary.Observers, "audit:"+cfg.Store.DecisionDBPath)

	stats, err := b.statsStoreFn(cfg.Store.StatsDBPath)
	if err != nil {
		return nil, fmt.Errorf("open stats store: %w", err)
	}
	app.closers = append(app.closers, stats.Close)

	var reg *metrics.Registry
	if cfg.Metrics.Enabled {
		reg = metrics.NewRegistry(cfg.Metrics.Namespace)
		observers = append(observers, reg)
		summary.Observers = append(summary.Observers, "metrics:"+cfg.Metrics.Path)
	}

	var pub *publisher.StreamPublisher
	if cfg.Publisher.Enabled {
		pub, err = b.buildPublisher(ctx, app, cfg.Publisher)
		if err != nil {
			return nil, err
		}
		observers = append(observers, pub)
		summary.Observers = append(summary.Observers, "stream:"+cfg.Publisher.Stream)
	}

	if cfg.Notify.Enabled {
		app.alerter = notifier.NewAlerter(b.senderFn(cfg.Notify), cfg.Notify.Commands, cfg.Notify.QueueSize)
		observers = append(observers, app.alerter)
		summary.Observers = append(summary.Observers, fmt.Sprintf("telegram:%v", cfg.Notify.Commands))
	}

	svc, err := fusion.NewService(cfg.Fusion.ToFusionConfig(),
		fusion.WithObservers(observers...),
		fusion.WithBatchLimit(cfg.Fusion.BatchLimit),
	)
	if err != nil {
		return nil, err
	}
	app.svc = svc
	summary.Rules = svc.Rules().Names()

	interval := time.Duration(cfg.Store.SnapshotIntervalSeconds) * time.Second
	app.snapshotter = statslog.NewSnapshotter(stats, svc, interval, cfg.Store.HistoryLimit)

	if b.cfgPath != "" && cfg.App.HotReload {
		ld, err := b.loaderFn(b.cfgPath, true)
		if err != nil {
			return nil, err
		}
		ld.Subscribe(func(snap cfgloader.FusionSnapshot) {
			if err := svc.UpdateConfig(snap.Config); err != nil {
				logger.Warnf("fusion 热更新被拒绝 v%d: %v", snap.Version, err)
			}
		})
		summary.HotReload = b.cfgPath
	}

	srvCfg := fusionhttp.ServerConfig{
		Addr:            cfg.HTTP.Addr,
		AllowReset:      cfg.HTTP.AllowReset,
		ReadTimeout:     time.Duration(cfg.HTTP.ReadTimeoutSeconds) * time.Second,
		ShutdownTimeout: time.Duration(cfg.HTTP.ShutdownTimeoutSeconds) * time.Second,
		Fusion:          svc,
		Decisions:       decisions,
		History:         stats,
		Health:          healthFunc(pub),
	}
	if reg != nil {
		srvCfg.Metrics = reg.Handler()
		srvCfg.MetricsPath = cfg.Metrics.Path
	}
	app.http, err = fusionhttp.NewServer(srvCfg)
	if err != nil {
		return nil, err
	}
	app.Summary = summary
	return app, nil
}

func (b *AppBuilder) buildPublisher(ctx context.Context, app *App, pc config.PublisherConfig) (*publisher.StreamPublisher, error) {
	client := b.redisFn(pc)
	app.closers = append(app.closers, client.Close)
	pingCtx, cancel := context.WithTimeout(ctx, time.Duration(pc.TimeoutMs)*time.Millisecond)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		// Redis 暂不可用时照常启动，由熔断器兜底
		logger.Warnf("redis %s 不可达: %v", pc.Addr, err)
	}
	return publisher.NewStreamPublisher(client, publisher.Options{
		Stream:           pc.Stream,
		MaxLen:           pc.MaxLen,
		Timeout:          time.Duration(pc.TimeoutMs) * time.Millisecond,
		MaxRequests:      pc.Breaker.MaxRequests,
		Interval:         time.Duration(pc.Breaker.IntervalSeconds) * time.Second,
		OpenTimeout:      time.Duration(pc.Breaker.TimeoutSeconds) * time.Second,
		FailureThreshold: pc.Breaker.FailureThreshold,
	})
}

func healthFunc(pub *publisher.StreamPublisher) fusionhttp.HealthFunc {
	if pub == nil {
		return nil
	}
	return func() map[string]any {
		return map[string]any{"publisher": pub.State().String()}
	}
}
