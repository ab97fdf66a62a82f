package notifier

import (
	"fmt"
	"strings"
	"time"

	"bagbot/internal/fusion"
)

const maxMessageLen = 3800

// MessageSection 通知中的一个段落。
type MessageSection struct {
	Title string
	Lines []string
}

// StructuredMessage 统一格式的推送：标题 + 代码块段落 + 时间。
type StructuredMessage struct {
	Icon      string
	Title     string
	Sections  []MessageSection
	Timestamp time.Time
}

// DecisionMessage 把一条融合结果渲染成告警消息。
func DecisionMessage(d fusion.FusionDecision) StructuredMessage {
	icon := "⚠️"
	if d.FinalCommand == fusion.CommandEmergencyAbort {
		icon = "🛑"
	}
	h := d.Metrics.Harmony
	summary := []string{
		fmt.Sprintf("id=%s seq=%d", d.ID, d.Sequence),
		fmt.Sprintf("harmony=%.1f confidence=%.1f", d.HarmonyScore, d.Confidence),
		fmt.Sprintf("exo=%s %.0f reactor=%s %.0f", d.Sources.EXO.Command, d.Sources.EXO.Confidence,
			d.Sources.Reactor.Command, d.Sources.Reactor.Confidence),
	}
	if h.HasConflict {
		summary = append(summary, fmt.Sprintf("conflict=%s severity=%s", h.ConflictType, h.ConflictSeverity))
	}
	return StructuredMessage{
		Icon:  icon,
		Title: fmt.Sprintf("%s %s %s", d.FinalCommand, d.Symbol, d.Direction),
		Sections: []MessageSection{
			{Title: "摘要", Lines: summary},
			{Title: "原因", Lines: d.Reasons},
		},
		Timestamp: d.Timestamp,
	}
}

// RenderMarkdown 生成 Markdown 文本，超长时截断。
func (m StructuredMessage) RenderMarkdown() string {
	var b strings.Builder
	if header := strings.TrimSpace(m.Icon + " " + m.Title); header != "" {
		b.WriteString(header)
		b.WriteString("\n\n")
	}
	var block strings.Builder
	for _, sec := range m.Sections {
		lines := nonEmpty(sec.Lines)
		if len(lines) == 0 {
			continue
		}
		if block.Len() > 0 {
			block.WriteString("\n")
		}
		if title := strings.TrimSpace(sec.Title); title != "" {
			block.WriteString(escapeFence(title) + "\n")
		}
		for _, line := range lines {
			block.WriteString("- " + escapeFence(line) + "\n")
		}
	}
	if block.Len() > 0 {
		b.WriteString("```\n")
		b.WriteString(block.String())
		b.WriteString("```\n\n")
	}
	if !m.Timestamp.IsZero() {
		b.WriteString("时间：" + m.Timestamp.UTC().Format("2006-01-02 15:04:05.000 MST"))
	}
	body := strings.TrimSpace(b.String())
	if len(body) > maxMessageLen {
		body = body[:maxMessageLen] + "..."
	}
	return body
}

func nonEmpty(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if text := strings.TrimSpace(line); text != "" {
			out = append(out, text)
		}
	}
	return out
}

func escapeFence(s string) string {
	return strings.ReplaceAll(s, "```", "'''")
}
