package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bagbot/internal/fusion"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "app:\n  env: test\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "test", cfg.App.Env)
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, "text", cfg.App.LogFormat)
	assert.True(t, cfg.App.HotReload)
	assert.Equal(t, ":9992", cfg.HTTP.Addr)
	assert.Equal(t, fusion.DefaultConfig(), cfg.Fusion.ToFusionConfig())
	assert.Equal(t, 8, cfg.Fusion.BatchLimit)
	assert.Equal(t, 60, cfg.Store.SnapshotIntervalSeconds)
	assert.False(t, cfg.Publisher.Enabled)
	assert.Equal(t, "bagbot:fusion:decisions", cfg.Publisher.Stream)
	assert.Equal(t, uint32(5), cfg.Publisher.Breaker.FailureThreshold)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, []string{"EMERGENCY_ABORT"}, cfg.Notify.Commands)
	assert.Equal(t, 64, cfg.Notify.QueueSize)
}

func TestLoad_ExplicitValuesWin(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
fusion:
  min_harmony_for_execute: 80
  max_size_discrepancy: 0
  emergency_abort_on_conflict: false
  weights:
    command: 0.25
    confidence: 0.25
    size: 0.25
    timing: 0.25
metrics:
  enabled: false
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	fc := cfg.Fusion.ToFusionConfig()
	assert.Equal(t, 80.0, fc.MinHarmonyForExecute)
	assert.Equal(t, 0.0, fc.MaxSizeDiscrepancy)
	assert.False(t, fc.EmergencyAbortOnConflict)
	assert.Equal(t, 0.25, fc.Weights.Timing)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoad_MergesIncludes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", "http:\n  addr: \":7000\"\nfusion:\n  max_delay_ms: 300\n")
	path := writeFile(t, dir, "config.yaml", "include:\n  - base.yaml\nfusion:\n  max_delay_ms: 400\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.HTTP.Addr)
	assert.Equal(t, 400.0, cfg.Fusion.MaxDelayMs)
}

func TestLoad_IncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "include:\n  - b.yaml\n")
	writeFile(t, dir, "b.yaml", "include:\n  - a.yaml\n")

	_, err := Load(filepath.Join(dir, "a.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "include cycle")
}

func TestLoad_RejectsInvalidFusionSection(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
fusion:
  weights:
    command: 0.9
    confidence: 0.2
    size: 0.2
    timing: 0.2
`)
	_, err := Load(path)
	require.Error(t, err)
	var cerr *fusion.ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "weights", cerr.Field)
}

func TestLoad_RejectsBadSections(t *testing.T) {
	cases := map[string]string{
		"log format":   "app:\n  log_format: xml\n",
		"metrics path": "metrics:\n  path: metrics\n",
		"snapshot":     "store:\n  snapshot_interval_seconds: 0\n",
		"notify cmd":   "notify:\n  commands: [HOLD]\n",
		"notify creds": "notify:\n  enabled: true\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "config.yaml", body)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoad_EnvOverridesFileAndDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "fusion:\n  max_delay_ms: 300\n")
	t.Setenv("BAGBOT_FUSION_MAX_DELAY_MS", "450")
	t.Setenv("BAGBOT_HTTP_ADDR", ":7100")
	t.Setenv("BAGBOT_METRICS_ENABLED", "false")
	t.Setenv("BAGBOT_NOTIFY_COMMANDS", "cancel,emergency_abort")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 450.0, cfg.Fusion.MaxDelayMs)
	assert.Equal(t, ":7100", cfg.HTTP.Addr)
	// 环境变量显式给了 false，不能被默认值 true 覆盖
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, []string{"CANCEL", "EMERGENCY_ABORT"}, cfg.Notify.Commands)
	assert.Equal(t, fusion.DefaultConfig().MinHarmonyForExecute, cfg.Fusion.MinHarmonyForExecute)
}

func TestLoadFusion_IgnoresOtherSections(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "app:\n  log_format: xml\nfusion:\n  min_harmony_for_execute: 77\n")

	_, err := Load(path)
	require.Error(t, err)

	sec, err := LoadFusion(path)
	require.NoError(t, err)
	assert.Equal(t, 77.0, sec.MinHarmonyForExecute)
	assert.Equal(t, fusion.DefaultConfig().Weights, sec.ToFusionConfig().Weights)
	assert.Equal(t, 8, sec.BatchLimit)
}

func TestLoadFusion_RejectsInvalidSection(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", "fusion:\n  min_harmony_for_scale: 95\n")
	_, err := LoadFusion(path)
	var cerr *fusion.ConfigError
	assert.ErrorAs(t, err, &cerr)
}

func TestConfigKeys_CoversNestedSections(t *testing.T) {
	keys := configKeys(reflect.TypeOf(Config{}), "")
	assert.Contains(t, keys, "fusion.weights.timing")
	assert.Contains(t, keys, "publisher.breaker.failure_threshold")
	assert.Contains(t, keys, "notify.commands")
	assert.NotContains(t, keys, "fusion.weights")
}
