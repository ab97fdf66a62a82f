package loader

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"bagbot/internal/config"
	"bagbot/internal/fusion"
	"bagbot/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// FusionSnapshot 对外暴露的只读快照。
type FusionSnapshot struct {
	Version  int64
	LoadedAt time.Time
	Config   fusion.Config
}

// ChangeListener 在配置变更时被调用。
type ChangeListener func(FusionSnapshot)

// FusionLoader 监听主配置文件，fusion 段变化时发布新快照。
// 新配置校验失败时保留旧快照，不通知监听者。
type FusionLoader struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	snapshot  FusionSnapshot
	listeners []ChangeListener
}

// NewFusionLoader 读取配置文件；watch 为 true 时开始监听 FS 事件。
func NewFusionLoader(path string, watch bool) (*FusionLoader, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("fusion loader requires path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read fusion config failed: %w", err)
	}
	l := &FusionLoader{path: path, v: v}
	if err := l.reload(); err != nil {
		return nil, err
	}
	if watch {
		v.OnConfigChange(func(evt fsnotify.Event) {
			if err := l.reload(); err != nil {
				logger.Errorf("fusion config reload failed (%s): %v", evt.Name, err)
				return
			}
			l.notify()
		})
		v.WatchConfig()
	}
	return l, nil
}

// Snapshot 返回当前快照（值拷贝）。
func (l *FusionLoader) Snapshot() FusionSnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshot
}

// Subscribe 注册监听器。
func (l *FusionLoader) Subscribe(fn ChangeListener) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	l.mu.Unlock()
}

// Reload 手动触发一次重载（运维入口与测试使用）。
func (l *FusionLoader) Reload() error {
	if err := l.reload(); err != nil {
		return err
	}
	l.notify()
	return nil
}

func (l *FusionLoader) notify() {
	l.mu.RLock()
	snap := l.snapshot
	listeners := append([]ChangeListener(nil), l.listeners...)
	l.mu.RUnlock()
	for _, fn := range listeners {
		func(cb ChangeListener) {
			defer func() {
				if r := recover(); r != nil {
					logger.Errorf("fusion config listener panic: %v", r)
				}
			}()
			cb(snap)
		}(fn)
	}
}

// reload 只重新解析 fusion 段；其它段写错不会挡住 fusion 热更新。
func (l *FusionLoader) reload() error {
	sec, err := config.LoadFusion(l.path)
	if err != nil {
		return err
	}
	next := sec.ToFusionConfig()
	l.mu.Lock()
	l.snapshot = FusionSnapshot{
		Version:  l.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Config:   next,
	}
	version := l.snapshot.Version
	l.mu.Unlock()
	logger.Infof("fusion config v%d loaded from %s", version, filepath.Base(l.path))
	return nil
}
