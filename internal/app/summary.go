package app

import (
	"fmt"
	"io"
	"strings"

	"bagbot/internal/fusion"
	"bagbot/internal/logger"
)

// StartupSummary 启动时打印一次，便于确认生效的阈值与挂载的观察者。
type StartupSummary struct {
	Env       string
	HTTPAddr  string
	Fusion    fusion.Config
	Rules     []string
	Observers []string
	HotReload string
}

// Print 逐行写入日志，json 格式下同样可被采集。
func (s *StartupSummary) Print() {
	var b strings.Builder
	if _, err := s.WriteTo(&b); err != nil {
		return
	}
	logger.InfoBlock(b.String())
}

func (s *StartupSummary) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder
	title := "启动配置摘要 (STARTUP SUMMARY)"
	b.WriteString(strings.Repeat("=", 80) + "\n")
	fmt.Fprintf(&b, "%*s\n", 40+len(title)/2, title)
	b.WriteString(strings.Repeat("=", 80) + "\n")

	fmt.Fprintf(&b, "[运行环境 (APP)]\n  环境: %s\n  HTTP: %s\n  热更新: %s\n\n", s.Env, s.HTTPAddr, orDash(s.HotReload))

	c := s.Fusion
	b.WriteString("[融合阈值 (FUSION)]\n")
	fmt.Fprintf(&b, "  execute>=%.1f scale>=%.1f\n", c.MinHarmonyForExecute, c.MinHarmonyForScale)
	fmt.Fprintf(&b, "  max_size_discrepancy=%.2f confidence_gap<=%.1f\n", c.MaxSizeDiscrepancy, c.ConfidenceDiscrepancyMax)
	fmt.Fprintf(&b, "  max_delay=%.0fms latency ideal/max=%.0f/%.0fms\n", c.MaxDelayMs, c.IdealLatencyMs, c.MaxLatencyMs)
	fmt.Fprintf(&b, "  weights cmd/conf/size/timing=%.2f/%.2f/%.2f/%.2f\n", c.Weights.Command, c.Weights.Confidence, c.Weights.Size, c.Weights.Timing)
	fmt.Fprintf(&b, "  emergency_abort_on_conflict=%v\n\n", c.EmergencyAbortOnConflict)

	fmt.Fprintf(&b, "[规则 (RULES)]\n  %s\n\n", formatList(s.Rules))
	fmt.Fprintf(&b, "[观察者 (OBSERVERS)]\n  %s\n", formatList(s.Observers))
	b.WriteString(strings.Repeat("=", 80) + "\n")

	n, err := io.WriteString(w, b.String())
	return int64(n), err
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
