package fusion

import "math"

// intent 把两路指令折叠到同一语义轴上：停 < 等 < 部分执行 < 执行。
type intent int

const (
	intentStop intent = iota
	intentHold
	intentPartial
	intentGo
)

func exoIntent(c ExoCommand) intent {
	switch c {
	case ExoExecute:
		return intentGo
	case ExoScale:
		return intentPartial
	case ExoWait:
		return intentHold
	case ExoCancel:
		return intentStop
	default:
		return intentStop
	}
}

func reactorIntent(c ReactorCommand) intent {
	switch c {
	case ReactorExecute:
		return intentGo
	case ReactorScale:
		return intentPartial
	case ReactorDelay:
		return intentHold
	case ReactorCancel, ReactorEmergencyAbort:
		return intentStop
	default:
		return intentStop
	}
}

// commandHarmonyTable 行：EXO 指令，列：Reactor 指令。
var commandHarmonyTable = map[ExoCommand]map[ReactorCommand]float64{
	ExoExecute: {
		ReactorExecute:        100,
		ReactorScale:          75,
		ReactorDelay:          50,
		ReactorCancel:         0,
		ReactorEmergencyAbort: 0,
	},
	ExoScale: {
		ReactorExecute:        75,
		ReactorScale:          100,
		ReactorDelay:          50,
		ReactorCancel:         10,
		ReactorEmergencyAbort: 0,
	},
	ExoWait: {
		ReactorExecute:        40,
		ReactorScale:          50,
		ReactorDelay:          90,
		ReactorCancel:         60,
		ReactorEmergencyAbort: 20,
	},
	ExoCancel: {
		ReactorExecute:        0,
		ReactorScale:          10,
		ReactorDelay:          60,
		ReactorCancel:         100,
		ReactorEmergencyAbort: 80,
	},
}

func commandHarmony(exo ExoCommand, reactor ReactorCommand) float64 {
	row, ok := commandHarmonyTable[exo]
	if !ok {
		return 0
	}
	return row[reactor]
}

func confidenceGap(exo EXODecision, reactor ReactorDecision) float64 {
	return math.Abs(exo.Confidence - reactor.Confidence)
}

func timingHarmony(reactor ReactorDecision, cfg Config) float64 {
	delayScore := maxHarmony
	if reactor.DelayMs > 0 {
		limit := 2 * cfg.MaxDelayMs
		if limit <= 0 {
			delayScore = 0
		} else {
			delayScore = clampScore(maxHarmony * (1 - reactor.DelayMs/limit))
		}
	}
	latencyScore := maxHarmony
	if lat := reactor.Latency(); lat >= cfg.IdealLatencyMs {
		span := cfg.MaxLatencyMs - cfg.IdealLatencyMs
		if span <= 0 {
			latencyScore = 0
		} else {
			latencyScore = clampScore(maxHarmony * (1 - (lat-cfg.IdealLatencyMs)/span))
		}
	}
	return math.Min(delayScore, latencyScore)
}

// severityFor 冲突严重度是 overall harmony 的单调阶梯函数。
func severityFor(overall float64) Severity {
	switch {
	case overall < 30:
		return SeverityCritical
	case overall < 50:
		return SeverityHigh
	case overall < 70:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// ComputeHarmony 计算两路决策的一致性。纯函数，任何输入都有输出。
func ComputeHarmony(exo EXODecision, reactor ReactorDecision, cfg Config) HarmonyMetrics {
	cmdH := commandHarmony(exo.Command, reactor.Command)
	confH := clampScore(maxHarmony - confidenceGap(exo, reactor))
	sizeH := clampScore(maxHarmony * (1 - sizeDiscrepancy(exo.TargetSize, reactor.FinalSize)))
	timeH := timingHarmony(reactor, cfg)

	w := cfg.normalizedWeights()
	overall := clampScore(w.Command*cmdH + w.Confidence*confH + w.Size*sizeH + w.Timing*timeH)

	m := HarmonyMetrics{
		CommandHarmony:    roundScore(cmdH),
		ConfidenceHarmony: roundScore(confH),
		SizeHarmony:       roundScore(sizeH),
		TimingHarmony:     roundScore(timeH),
		OverallHarmony:    roundScore(overall),
	}
	switch {
	case cmdH < 50:
		m.ConflictType = ConflictCommand
	case sizeH < maxHarmony-cfg.MaxSizeDiscrepancy*100:
		m.ConflictType = ConflictSize
	case confidenceGap(exo, reactor) > cfg.ConfidenceDiscrepancyMax:
		m.ConflictType = ConflictConfidence
	}
	if m.ConflictType != ConflictNone {
		m.HasConflict = true
		m.ConflictSeverity = severityFor(m.OverallHarmony)
	}
	return m
}
