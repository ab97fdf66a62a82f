package fusion

import (
	"fmt"
	"strings"
)

// FieldIssue 描述单个字段的校验失败。
type FieldIssue struct {
	Source string `json:"source"`
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (i FieldIssue) String() string {
	if i.Source == "" {
		return fmt.Sprintf("%s: %s", i.Field, i.Reason)
	}
	return fmt.Sprintf("%s.%s: %s", i.Source, i.Field, i.Reason)
}

// ValidationError 输入不合法，融合周期被拒绝，状态不变且不输出决策。
type ValidationError struct {
	Issues []FieldIssue `json:"issues"`
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Issues) == 0 {
		return "fusion: invalid input"
	}
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		parts = append(parts, issue.String())
	}
	return "fusion: invalid input: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(source, field, format string, args ...any) {
	e.Issues = append(e.Issues, FieldIssue{Source: source, Field: field, Reason: fmt.Sprintf(format, args...)})
}

func (e *ValidationError) orNil() error {
	if e == nil || len(e.Issues) == 0 {
		return nil
	}
	return e
}

// ConfigError 融合配置不合法，启动时直接失败；热更新时保留旧配置。
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("fusion config: %s %s", e.Field, e.Reason)
}
