package config

import (
	"fmt"
	"strings"

	"bagbot/internal/fusion"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.App.validate(); err != nil {
		return err
	}
	if err := c.HTTP.validate(); err != nil {
		return err
	}
	if err := c.Fusion.validate(); err != nil {
		return err
	}
	if err := c.Store.validate(); err != nil {
		return err
	}
	if err := c.Publisher.validate(); err != nil {
		return err
	}
	if err := c.Metrics.validate(); err != nil {
		return err
	}
	if err := c.Notify.validate(); err != nil {
		return err
	}
	return nil
}

func (a *AppConfig) validate() error {
	switch a.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("app.log_format must be text or json, got %q", a.LogFormat)
	}
	return nil
}

func (h *HTTPConfig) validate() error {
	if strings.TrimSpace(h.Addr) == "" {
		return fmt.Errorf("http.addr cannot be empty")
	}
	return nil
}

func (f *FusionSection) validate() error {
	if f.BatchLimit <= 0 {
		return fmt.Errorf("fusion.batch_limit must be > 0")
	}
	if err := f.ToFusionConfig().Validate(); err != nil {
		return fmt.Errorf("invalid fusion section: %w", err)
	}
	return nil
}

func (s *StoreConfig) validate() error {
	if strings.TrimSpace(s.DecisionDBPath) == "" {
		return fmt.Errorf("store.decision_db_path cannot be empty")
	}
	if strings.TrimSpace(s.StatsDBPath) == "" {
		return fmt.Errorf("store.stats_db_path cannot be empty")
	}
	if s.SnapshotIntervalSeconds <= 0 {
		return fmt.Errorf("store.snapshot_interval_seconds must be > 0")
	}
	return nil
}

func (p *PublisherConfig) validate() error {
	if !p.Enabled {
		return nil
	}
	if strings.TrimSpace(p.Addr) == "" {
		return fmt.Errorf("publisher.addr is required when publisher is enabled")
	}
	if strings.TrimSpace(p.Stream) == "" {
		return fmt.Errorf("publisher.stream is required when publisher is enabled")
	}
	if p.DB < 0 {
		return fmt.Errorf("publisher.db must be >= 0")
	}
	return nil
}

func (m *MetricsConfig) validate() error {
	if m.Enabled && !strings.HasPrefix(m.Path, "/") {
		return fmt.Errorf("metrics.path must start with /, got %q", m.Path)
	}
	return nil
}

func (n *NotifyConfig) validate() error {
	for _, c := range n.Commands {
		if !fusion.Command(c).Valid() {
			return fmt.Errorf("notify.commands contains unknown command %q", c)
		}
	}
	if !n.Enabled {
		return nil
	}
	if strings.TrimSpace(n.BotToken) == "" || strings.TrimSpace(n.ChatID) == "" {
		return fmt.Errorf("notify.bot_token and notify.chat_id are required when notify is enabled")
	}
	return nil
}
