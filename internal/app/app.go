package app

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/sync/errgroup"

	"bagbot/internal/config"
	"bagbot/internal/fusion"
	"bagbot/internal/gateway/notifier"
	"bagbot/internal/logger"
	"bagbot/internal/store/statslog"
	fusionhttp "bagbot/internal/transport/http/fusion"
)

// App 负责应用级编排：加载配置→初始化依赖→启动 HTTP、统计快照与告警。
type App struct {
	cfg         *config.Config
	svc         *fusion.Service
	http        *fusionhttp.Server
	snapshotter *statslog.Snapshotter
	alerter     *notifier.Alerter
	closers     []func() error
	Summary     *StartupSummary
}

// NewApp 根据配置构建应用对象（不启动）。cfgPath 用于热更新监听，可为空。
func NewApp(cfg *config.Config, cfgPath string) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	logger.SetFormat(cfg.App.LogFormat)
	return buildAppWithWire(context.Background(), cfg, cfgPath)
}

// Run 阻塞直到 ctx 取消或任一组件出错，退出前关闭所有存储与连接。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil || a.svc == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.Close()

	if a.Summary != nil {
		a.Summary.Print()
	}
	group, ctx := errgroup.WithContext(ctx)

	if a.http != nil {
		group.Go(func() error {
			if err := a.http.Start(ctx); err != nil {
				return fmt.Errorf("fusion http server error: %w", err)
			}
			return nil
		})
	}
	if a.snapshotter != nil {
		group.Go(func() error {
			return a.snapshotter.Run(ctx)
		})
	}
	if a.alerter != nil {
		group.Go(func() error {
			return a.alerter.Run(ctx)
		})
	}
	return group.Wait()
}

// Close 逆序释放资源，可重复调用。
func (a *App) Close() {
	if a == nil {
		return
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warnf("关闭资源失败: %v", err)
		}
	}
	a.closers = nil
}

// Service exposes the fusion service (for tests and the replay command).
func (a *App) Service() *fusion.Service {
	if a == nil {
		return nil
	}
	return a.svc
}

// Handler 返回 HTTP 路由，测试时无需真正监听端口。
func (a *App) Handler() http.Handler {
	if a == nil || a.http == nil {
		return nil
	}
	return a.http.Handler()
}
