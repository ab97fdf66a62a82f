package fusion

import (
	"sync"
	"time"
)

// State 滚动统计，对外只读快照。
type State struct {
	TotalDecisions    uint64    `json:"total_decisions"`
	Executed          uint64    `json:"executed"`
	Cancelled         uint64    `json:"cancelled"`
	Scaled            uint64    `json:"scaled"`
	Delayed           uint64    `json:"delayed"`
	Aborted           uint64    `json:"aborted"`
	Conflicts         uint64    `json:"conflicts"`
	AverageHarmony    float64   `json:"average_harmony"`
	AverageConfidence float64   `json:"average_confidence"`
	ConflictRate      float64   `json:"conflict_rate"`
	LastSequence      uint64    `json:"last_sequence"`
	LastDecisionAt    time.Time `json:"last_decision_at,omitempty"`
}

// Accumulator 是融合层唯一的共享可变状态入口。
type Accumulator interface {
	// Record 累加一条决策并返回分配的序号。
	Record(d FusionDecision) uint64
	Snapshot() State
	Reset()
}

// MutexAccumulator 用一把互斥锁串行化写入。
type MutexAccumulator struct {
	mu    sync.Mutex
	state State
}

func NewAccumulator() *MutexAccumulator {
	return &MutexAccumulator{}
}

func (a *MutexAccumulator) Record(d FusionDecision) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := &a.state
	s.TotalDecisions++
	switch d.FinalCommand {
	case CommandExecute:
		s.Executed++
	case CommandCancel:
		s.Cancelled++
	case CommandScale:
		s.Scaled++
	case CommandDelay:
		s.Delayed++
	case CommandEmergencyAbort:
		s.Aborted++
	}
	if d.Metrics.Harmony.HasConflict {
		s.Conflicts++
	}
	n := float64(s.TotalDecisions)
	s.AverageHarmony += (d.HarmonyScore - s.AverageHarmony) / n
	s.AverageConfidence += (d.Confidence - s.AverageConfidence) / n
	s.ConflictRate = float64(s.Conflicts) / n
	s.LastSequence++
	s.LastDecisionAt = d.Timestamp
	return s.LastSequence
}

func (a *MutexAccumulator) Snapshot() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *MutexAccumulator) Reset() {
	a.mu.Lock()
	a.state = State{}
	a.mu.Unlock()
}
