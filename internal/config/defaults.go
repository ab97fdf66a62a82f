package config

import (
	"strings"

	"bagbot/internal/fusion"
)

// 默认值常量
const (
	defaultAppEnv             = "dev"
	defaultAppLogLevel        = "info"
	defaultAppLogFormat       = "text"
	defaultHTTPAddr           = ":9992"
	defaultHTTPReadTimeout    = 10
	defaultHTTPShutdown       = 5
	defaultFusionBatchLimit   = 8
	defaultDecisionDBPath     = "data/fusion_decisions.db"
	defaultStatsDBPath        = "data/fusion_stats.db"
	defaultSnapshotInterval   = 60
	defaultHistoryLimit       = 500
	defaultPublisherAddr      = "127.0.0.1:6379"
	defaultPublisherStream    = "bagbot:fusion:decisions"
	defaultPublisherMaxLen    = 10000
	defaultPublisherTimeoutMs = 500
	defaultBreakerMaxRequests = 1
	defaultBreakerInterval    = 60
	defaultBreakerTimeout     = 30
	defaultBreakerFailures    = 5
	defaultMetricsNamespace   = "bagbot"
	defaultMetricsPath        = "/metrics"
	defaultNotifyQueueSize    = 64
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.HTTP.applyDefaults(keys)
	c.Fusion.applyDefaults(keys)
	c.Store.applyDefaults(keys)
	c.Publisher.applyDefaults(keys)
	c.Metrics.applyDefaults(keys)
	c.Notify.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.log_format", &a.LogFormat, defaultAppLogFormat),
		boolFieldDefault("app.hot_reload", &a.HotReload, true),
	)
	a.LogFormat = strings.ToLower(strings.TrimSpace(a.LogFormat))
}

func (h *HTTPConfig) applyDefaults(keys keySet) {
	if h == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("http.addr", &h.Addr, defaultHTTPAddr),
		intFieldDefault("http.read_timeout_seconds", &h.ReadTimeoutSeconds, defaultHTTPReadTimeout),
		intFieldDefault("http.shutdown_timeout_seconds", &h.ShutdownTimeoutSeconds, defaultHTTPShutdown),
	)
}

// applyDefaults 未显式设置的字段取 fusion.DefaultConfig()。
func (f *FusionSection) applyDefaults(keys keySet) {
	if f == nil {
		return
	}
	def := fusion.DefaultConfig()
	applyFieldDefaults(keys,
		floatFieldDefault("fusion.min_harmony_for_execute", &f.MinHarmonyForExecute, def.MinHarmonyForExecute),
		floatFieldDefault("fusion.min_harmony_for_scale", &f.MinHarmonyForScale, def.MinHarmonyForScale),
		floatFieldDefault("fusion.max_size_discrepancy", &f.MaxSizeDiscrepancy, def.MaxSizeDiscrepancy),
		floatFieldDefault("fusion.max_delay_ms", &f.MaxDelayMs, def.MaxDelayMs),
		floatFieldDefault("fusion.confidence_discrepancy_max", &f.ConfidenceDiscrepancyMax, def.ConfidenceDiscrepancyMax),
		boolFieldDefault("fusion.emergency_abort_on_conflict", &f.EmergencyAbortOnConflict, def.EmergencyAbortOnConflict),
		floatFieldDefault("fusion.ideal_latency_ms", &f.IdealLatencyMs, def.IdealLatencyMs),
		floatFieldDefault("fusion.max_latency_ms", &f.MaxLatencyMs, def.MaxLatencyMs),
		intFieldDefault("fusion.batch_limit", &f.BatchLimit, defaultFusionBatchLimit),
	)
	// 权重要么整组给出，要么整组取默认，避免与默认值混搭后和不为 1。
	w := &f.Weights
	if w.Command == 0 && w.Confidence == 0 && w.Size == 0 && w.Timing == 0 {
		w.Command = def.Weights.Command
		w.Confidence = def.Weights.Confidence
		w.Size = def.Weights.Size
		w.Timing = def.Weights.Timing
	}
}

func (s *StoreConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("store.decision_db_path", &s.DecisionDBPath, defaultDecisionDBPath),
		stringFieldDefault("store.stats_db_path", &s.StatsDBPath, defaultStatsDBPath),
		intFieldDefault("store.snapshot_interval_seconds", &s.SnapshotIntervalSeconds, defaultSnapshotInterval),
		intFieldDefault("store.history_limit", &s.HistoryLimit, defaultHistoryLimit),
	)
}

func (p *PublisherConfig) applyDefaults(keys keySet) {
	if p == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("publisher.addr", &p.Addr, defaultPublisherAddr),
		stringFieldDefault("publisher.stream", &p.Stream, defaultPublisherStream),
		fieldDefault{
			key:   "publisher.max_len",
			need:  func() bool { return p.MaxLen <= 0 },
			apply: func() { p.MaxLen = defaultPublisherMaxLen },
		},
		intFieldDefault("publisher.timeout_ms", &p.TimeoutMs, defaultPublisherTimeoutMs),
		fieldDefault{
			key:   "publisher.breaker.max_requests",
			need:  func() bool { return p.Breaker.MaxRequests == 0 },
			apply: func() { p.Breaker.MaxRequests = defaultBreakerMaxRequests },
		},
		intFieldDefault("publisher.breaker.interval_seconds", &p.Breaker.IntervalSeconds, defaultBreakerInterval),
		intFieldDefault("publisher.breaker.timeout_seconds", &p.Breaker.TimeoutSeconds, defaultBreakerTimeout),
		fieldDefault{
			key:   "publisher.breaker.failure_threshold",
			need:  func() bool { return p.Breaker.FailureThreshold == 0 },
			apply: func() { p.Breaker.FailureThreshold = defaultBreakerFailures },
		},
	)
}

func (m *MetricsConfig) applyDefaults(keys keySet) {
	if m == nil {
		return
	}
	applyFieldDefaults(keys,
		boolFieldDefault("metrics.enabled", &m.Enabled, true),
		stringFieldDefault("metrics.namespace", &m.Namespace, defaultMetricsNamespace),
		stringFieldDefault("metrics.path", &m.Path, defaultMetricsPath),
	)
}

func (n *NotifyConfig) applyDefaults(keys keySet) {
	if n == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("notify.queue_size", &n.QueueSize, defaultNotifyQueueSize),
		fieldDefault{
			key:   "notify.commands",
			need:  func() bool { return len(n.Commands) == 0 },
			apply: func() { n.Commands = []string{string(fusion.CommandEmergencyAbort)} },
		},
	)
	for i, c := range n.Commands {
		n.Commands[i] = strings.ToUpper(strings.TrimSpace(c))
	}
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target <= 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func floatFieldDefault(key string, target *float64, def float64) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target == 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
