package fusion

import "time"

// 中文说明：
// 本文件定义决策融合层的输入/输出结构。EXO 与 Reactor 的决策由外部评估器产生，
// 进入融合层后只读；HarmonyMetrics 与 RuleResult 只存活于一次融合周期内。

// ExoCommand 是 EXO 策略评估器可以给出的指令。
type ExoCommand string

const (
	ExoExecute ExoCommand = "EXECUTE"
	ExoWait    ExoCommand = "WAIT"
	ExoCancel  ExoCommand = "CANCEL"
	ExoScale   ExoCommand = "SCALE"
)

func (c ExoCommand) Valid() bool {
	switch c {
	case ExoExecute, ExoWait, ExoCancel, ExoScale:
		return true
	default:
		return false
	}
}

// ReactorCommand 是 Reactor 微结构闸门可以给出的指令。
type ReactorCommand string

const (
	ReactorExecute        ReactorCommand = "EXECUTE"
	ReactorDelay          ReactorCommand = "DELAY"
	ReactorCancel         ReactorCommand = "CANCEL"
	ReactorScale          ReactorCommand = "SCALE"
	ReactorEmergencyAbort ReactorCommand = "EMERGENCY_ABORT"
)

func (c ReactorCommand) Valid() bool {
	switch c {
	case ReactorExecute, ReactorDelay, ReactorCancel, ReactorScale, ReactorEmergencyAbort:
		return true
	default:
		return false
	}
}

// Command 是融合后的最终指令，也用于规则的建议指令。空值表示“无建议”。
type Command string

const (
	CommandNone           Command = ""
	CommandExecute        Command = "EXECUTE"
	CommandDelay          Command = "DELAY"
	CommandCancel         Command = "CANCEL"
	CommandScale          Command = "SCALE"
	CommandEmergencyAbort Command = "EMERGENCY_ABORT"
)

func (c Command) Valid() bool {
	switch c {
	case CommandExecute, CommandDelay, CommandCancel, CommandScale, CommandEmergencyAbort:
		return true
	default:
		return false
	}
}

// Terminal 表示该指令不会产生任何下单数量。
func (c Command) Terminal() bool {
	return c == CommandCancel || c == CommandEmergencyAbort
}

// Direction 为 EXO 给出的方向。
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

func (d Direction) Valid() bool {
	return d == DirectionLong || d == DirectionShort
}

// OrderType 由 Reactor 决定，融合层原样透传给下游执行方。
type OrderType string

const (
	OrderMarket    OrderType = "MARKET"
	OrderLimit     OrderType = "LIMIT"
	OrderStop      OrderType = "STOP"
	OrderStopLimit OrderType = "STOP_LIMIT"
)

func (o OrderType) Valid() bool {
	switch o {
	case OrderMarket, OrderLimit, OrderStop, OrderStopLimit:
		return true
	default:
		return false
	}
}

// Severity 冲突严重度，随 overall harmony 单调阶梯变化。
type Severity string

const (
	SeverityNone     Severity = ""
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// ConflictType 标记第一个触发冲突的维度。
type ConflictType string

const (
	ConflictNone       ConflictType = ""
	ConflictCommand    ConflictType = "COMMAND_MISMATCH"
	ConflictSize       ConflictType = "SIZE_MISMATCH"
	ConflictConfidence ConflictType = "CONFIDENCE_GAP"
)

// EXODecision 策略层建议：方向 + 目标仓位。
type EXODecision struct {
	Command    ExoCommand `json:"command" yaml:"command"`
	Confidence float64    `json:"confidence" yaml:"confidence"`
	TargetSize float64    `json:"target_size" yaml:"target_size"`
	Direction  Direction  `json:"direction" yaml:"direction"`
	Reasons    []string   `json:"reasons,omitempty" yaml:"reasons"`
	RiskScore  *float64   `json:"risk_score,omitempty" yaml:"risk_score"`
	Timestamp  time.Time  `json:"timestamp" yaml:"timestamp"`
}

// ReactorDecision 微结构闸门的最终放行意见，带延迟与盘口压力诊断。
type ReactorDecision struct {
	Command       ReactorCommand `json:"command" yaml:"command"`
	DelayMs       float64        `json:"delay_ms" yaml:"delay_ms"`
	FinalSize     float64        `json:"final_size" yaml:"final_size"`
	OrderType     OrderType      `json:"order_type" yaml:"order_type"`
	Confidence    float64        `json:"confidence" yaml:"confidence"`
	LatencyMs     *float64       `json:"latency_ms,omitempty" yaml:"latency_ms"`
	PressureScore *float64       `json:"pressure_score,omitempty" yaml:"pressure_score"`
	Reasons       []string       `json:"reasons,omitempty" yaml:"reasons"`
	Timestamp     time.Time      `json:"timestamp" yaml:"timestamp"`
}

// Latency 返回上报的延迟，未上报视为 0。
func (r ReactorDecision) Latency() float64 {
	if r.LatencyMs == nil {
		return 0
	}
	return *r.LatencyMs
}

// MarketSnapshot 只读行情上下文。
type MarketSnapshot struct {
	Symbol    string    `json:"symbol" yaml:"symbol"`
	Price     float64   `json:"price" yaml:"price"`
	Bid       float64   `json:"bid" yaml:"bid"`
	Ask       float64   `json:"ask" yaml:"ask"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// Request 一次融合周期的完整输入。
type Request struct {
	EXO     EXODecision     `json:"exo" yaml:"exo"`
	Reactor ReactorDecision `json:"reactor" yaml:"reactor"`
	Market  MarketSnapshot  `json:"market" yaml:"market"`
}

// EvalContext 是规则函数可见的上下文（与 Request 同构，单独命名以便规则签名稳定）。
type EvalContext struct {
	EXO     EXODecision
	Reactor ReactorDecision
	Market  MarketSnapshot
}

// HarmonyMetrics 两路决策的一致性评分，每个周期重新计算。
type HarmonyMetrics struct {
	CommandHarmony    float64      `json:"command_harmony"`
	ConfidenceHarmony float64      `json:"confidence_harmony"`
	SizeHarmony       float64      `json:"size_harmony"`
	TimingHarmony     float64      `json:"timing_harmony"`
	OverallHarmony    float64      `json:"overall_harmony"`
	HasConflict       bool         `json:"has_conflict"`
	ConflictType      ConflictType `json:"conflict_type,omitempty"`
	ConflictSeverity  Severity     `json:"conflict_severity,omitempty"`
}

// RuleResult 单条规则的裁决。
type RuleResult struct {
	RuleName          string  `json:"rule_name"`
	Passed            bool    `json:"passed"`
	BlockExecution    bool    `json:"block_execution"`
	ForceCancel       bool    `json:"force_cancel"`
	SuggestedCommand  Command `json:"suggested_command,omitempty"`
	HarmonyAdjustment float64 `json:"harmony_adjustment"`
	Reason            string  `json:"reason"`
	Priority          int     `json:"priority"`
}

// DecisionMetrics 审计用的统计明细。
type DecisionMetrics struct {
	RulesEvaluated    int            `json:"rules_evaluated"`
	RulesPassed       int            `json:"rules_passed"`
	RulesBlocking     int            `json:"rules_blocking"`
	RulesForceCancel  int            `json:"rules_force_cancel"`
	Harmony           HarmonyMetrics `json:"harmony"`
	HarmonyAdjustment float64        `json:"harmony_adjustment"`
	Rules             []RuleResult   `json:"rules"`
	ElapsedMicros     int64          `json:"elapsed_us"`
}

// DecisionSources 原样保存两路输入，便于事后复盘。
type DecisionSources struct {
	EXO     EXODecision     `json:"exo"`
	Reactor ReactorDecision `json:"reactor"`
	Market  MarketSnapshot  `json:"market"`
}

// FusionDecision 是融合层唯一对外输出，也是审计记录；生成后不可修改。
type FusionDecision struct {
	ID           string          `json:"id,omitempty"`
	Sequence     uint64          `json:"sequence,omitempty"`
	Symbol       string          `json:"symbol"`
	Direction    Direction       `json:"direction"`
	FinalCommand Command         `json:"final_command"`
	FinalSize    float64         `json:"final_size"`
	OrderType    OrderType       `json:"order_type"`
	DelayMs      float64         `json:"delay_ms"`
	HarmonyScore float64         `json:"harmony_score"`
	Confidence   float64         `json:"confidence"`
	Reasons      []string        `json:"reasons"`
	Metrics      DecisionMetrics `json:"metrics"`
	Sources      DecisionSources `json:"sources"`
	Timestamp    time.Time       `json:"timestamp"`
}
