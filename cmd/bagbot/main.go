package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"bagbot/internal/config"
	"bagbot/internal/logger"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:           "bagbot",
		Short:         "EXO/Reactor 决策融合服务",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "配置文件路径（默认 $BAGBOT_CONFIG 或 "+defaultConfigPath+"）")
	root.AddCommand(newServeCmd(&cfgPath), newReplayCmd(&cfgPath))
	return root
}

// resolveConfigPath --config > BAGBOT_CONFIG > configs/config.yaml
func resolveConfigPath(flag string) string {
	if p := strings.TrimSpace(flag); p != "" {
		return p
	}
	if p := strings.TrimSpace(os.Getenv("BAGBOT_CONFIG")); p != "" {
		return p
	}
	return defaultConfigPath
}

// loadConfig 读取配置并初始化日志；返回的 closer 需在退出前调用。
func loadConfig(flag string) (*config.Config, string, func(), error) {
	path := resolveConfigPath(flag)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", nil, fmt.Errorf("读取配置失败: %w", err)
	}
	logFile, err := setupLogOutput(cfg.App.LogPath)
	if err != nil {
		return nil, "", nil, fmt.Errorf("初始化日志文件失败: %w", err)
	}
	logger.SetLevel(cfg.App.LogLevel)
	logger.SetFormat(cfg.App.LogFormat)
	closer := func() {
		if logFile != nil {
			_ = logFile.Close()
		}
	}
	logger.Infof("✓ 配置加载成功（环境=%s，文件=%s）", cfg.App.Env, path)
	return cfg, path, closer, nil
}

func setupLogOutput(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	if dir := filepath.Dir(trimmed); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	mw := io.MultiWriter(os.Stdout, file)
	log.SetOutput(mw)
	logger.SetOutput(mw)
	return file, nil
}
