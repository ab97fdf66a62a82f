package model

import "gorm.io/datatypes"

// FusionDecisionModel maps to 'fusion_decisions' table.
// 常用过滤字段单独成列，完整明细以 JSON 保存。
type FusionDecisionModel struct {
	ID             int64          `gorm:"column:id;primaryKey"`
	DecisionID     string         `gorm:"column:decision_id;uniqueIndex"`
	Sequence       uint64         `gorm:"column:sequence"`
	Symbol         string         `gorm:"column:symbol;index"`
	Direction      string         `gorm:"column:direction"`
	FinalCommand   string         `gorm:"column:final_command;index"`
	FinalSize      float64        `gorm:"column:final_size"`
	OrderType      string         `gorm:"column:order_type"`
	DelayMs        float64        `gorm:"column:delay_ms"`
	HarmonyScore   float64        `gorm:"column:harmony_score"`
	OverallHarmony float64        `gorm:"column:overall_harmony"`
	Confidence     float64        `gorm:"column:confidence"`
	HasConflict    bool           `gorm:"column:has_conflict"`
	ConflictType   string         `gorm:"column:conflict_type"`
	ReasonsJSON    datatypes.JSON `gorm:"column:reasons_json;type:TEXT"`
	MetricsJSON    datatypes.JSON `gorm:"column:metrics_json;type:TEXT"`
	SourcesJSON    datatypes.JSON `gorm:"column:sources_json;type:TEXT"`
	DecidedAtNanos int64          `gorm:"column:decided_at;index"`
	CreatedAtUnix  int64          `gorm:"column:created_at"`
}

func (FusionDecisionModel) TableName() string { return "fusion_decisions" }
