package config

import (
	"strings"

	"bagbot/internal/fusion"
)

// Config 是 bagbot 的主配置载体。
type Config struct {
	App       AppConfig       `toml:"app"`
	HTTP      HTTPConfig      `toml:"http"`
	Fusion    FusionSection   `toml:"fusion"`
	Store     StoreConfig     `toml:"store"`
	Publisher PublisherConfig `toml:"publisher"`
	Metrics   MetricsConfig   `toml:"metrics"`
	Notify    NotifyConfig    `toml:"notify"`
}

type AppConfig struct {
	Env       string `toml:"env"`
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
	LogPath   string `toml:"log_path"`
	HotReload bool   `toml:"hot_reload"`
}

type HTTPConfig struct {
	Addr                   string `toml:"addr"`
	AllowReset             bool   `toml:"allow_reset"`
	ReadTimeoutSeconds     int    `toml:"read_timeout_seconds"`
	ShutdownTimeoutSeconds int    `toml:"shutdown_timeout_seconds"`
}

// FusionSection 映射 fusion 段，字段与 fusion.Config 一一对应。
type FusionSection struct {
	MinHarmonyForExecute     float64        `toml:"min_harmony_for_execute"`
	MinHarmonyForScale       float64        `toml:"min_harmony_for_scale"`
	MaxSizeDiscrepancy       float64        `toml:"max_size_discrepancy"`
	MaxDelayMs               float64        `toml:"max_delay_ms"`
	ConfidenceDiscrepancyMax float64        `toml:"confidence_discrepancy_max"`
	EmergencyAbortOnConflict bool           `toml:"emergency_abort_on_conflict"`
	IdealLatencyMs           float64        `toml:"ideal_latency_ms"`
	MaxLatencyMs             float64        `toml:"max_latency_ms"`
	Weights                  WeightsSection `toml:"weights"`
	BatchLimit               int            `toml:"batch_limit"`
}

type WeightsSection struct {
	Command    float64 `toml:"command"`
	Confidence float64 `toml:"confidence"`
	Size       float64 `toml:"size"`
	Timing     float64 `toml:"timing"`
}

// ToFusionConfig 转成领域配置；校验由 fusion.Config.Validate 负责。
func (f FusionSection) ToFusionConfig() fusion.Config {
	return fusion.Config{
		MinHarmonyForExecute:     f.MinHarmonyForExecute,
		MinHarmonyForScale:       f.MinHarmonyForScale,
		MaxSizeDiscrepancy:       f.MaxSizeDiscrepancy,
		MaxDelayMs:               f.MaxDelayMs,
		ConfidenceDiscrepancyMax: f.ConfidenceDiscrepancyMax,
		EmergencyAbortOnConflict: f.EmergencyAbortOnConflict,
		IdealLatencyMs:           f.IdealLatencyMs,
		MaxLatencyMs:             f.MaxLatencyMs,
		Weights: fusion.Weights{
			Command:    f.Weights.Command,
			Confidence: f.Weights.Confidence,
			Size:       f.Weights.Size,
			Timing:     f.Weights.Timing,
		},
	}
}

// StoreConfig 审计库与统计快照库。
type StoreConfig struct {
	DecisionDBPath          string `toml:"decision_db_path"`
	StatsDBPath             string `toml:"stats_db_path"`
	SnapshotIntervalSeconds int    `toml:"snapshot_interval_seconds"`
	HistoryLimit            int    `toml:"history_limit"`
}

// PublisherConfig 把融合结果推到 Redis stream，供下单执行方消费。
type PublisherConfig struct {
	Enabled   bool          `toml:"enabled"`
	Addr      string        `toml:"addr"`
	Password  string        `toml:"password"`
	DB        int           `toml:"db"`
	Stream    string        `toml:"stream"`
	MaxLen    int64         `toml:"max_len"`
	TimeoutMs int           `toml:"timeout_ms"`
	Breaker   BreakerConfig `toml:"breaker"`
}

type BreakerConfig struct {
	MaxRequests      uint32 `toml:"max_requests"`
	IntervalSeconds  int    `toml:"interval_seconds"`
	TimeoutSeconds   int    `toml:"timeout_seconds"`
	FailureThreshold uint32 `toml:"failure_threshold"`
}

type MetricsConfig struct {
	Enabled   bool   `toml:"enabled"`
	Namespace string `toml:"namespace"`
	Path      string `toml:"path"`
}

// NotifyConfig Telegram 告警，只推送 Commands 中列出的最终指令。
type NotifyConfig struct {
	Enabled   bool     `toml:"enabled"`
	BotToken  string   `toml:"bot_token"`
	ChatID    string   `toml:"chat_id"`
	Commands  []string `toml:"commands"`
	QueueSize int      `toml:"queue_size"`
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
