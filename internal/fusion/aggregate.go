package fusion

import (
	"fmt"
	"math"
	"sort"
)

// executeQuorum 执行所需的通过比例（5 条规则时为 4 条）。
const executeQuorum = 0.8

// Outcome 聚合结果，尚未附加仓位与评分。
type Outcome struct {
	Command     Command
	Evaluated   int
	Passed      int
	Blocking    int
	ForceCancel int
	Adjustment  float64
	Reasons     []string
}

func requiredPasses(n int) int {
	return int(math.Ceil(executeQuorum * float64(n)))
}

// Aggregate 按固定优先级把规则裁决合成一个最终指令：
// EMERGENCY_ABORT > CANCEL(强制/双重阻断) > SCALE > DELAY > EXECUTE(达到法定通过数) > CANCEL。
// EXECUTE 额外要求没有任何规则阻断执行，单个阻断时不会因通过数达标而放行。
func Aggregate(results []RuleResult) Outcome {
	out := Outcome{Evaluated: len(results)}
	var (
		abortBy, scaleBy, delayBy string
	)
	for _, r := range results {
		if r.Passed {
			out.Passed++
		}
		if r.BlockExecution {
			out.Blocking++
		}
		if r.ForceCancel {
			out.ForceCancel++
		}
		out.Adjustment += r.HarmonyAdjustment
		switch {
		case r.SuggestedCommand == CommandEmergencyAbort && r.BlockExecution:
			if abortBy == "" {
				abortBy = r.RuleName
			}
		case r.BlockExecution:
		case r.SuggestedCommand == CommandScale:
			if scaleBy == "" {
				scaleBy = r.RuleName
			}
		case r.SuggestedCommand == CommandDelay:
			if delayBy == "" {
				delayBy = r.RuleName
			}
		}
	}

	var headline string
	switch {
	case abortBy != "":
		out.Command = CommandEmergencyAbort
		headline = fmt.Sprintf("EMERGENCY_ABORT: vetoed by %s", abortBy)
	case out.ForceCancel > 0 || out.Blocking >= 2:
		out.Command = CommandCancel
		headline = fmt.Sprintf("CANCEL: %d rule(s) forced cancel, %d blocked execution", out.ForceCancel, out.Blocking)
	case scaleBy != "":
		out.Command = CommandScale
		headline = fmt.Sprintf("SCALE: suggested by %s", scaleBy)
	case delayBy != "":
		out.Command = CommandDelay
		headline = fmt.Sprintf("DELAY: suggested by %s", delayBy)
	case out.Evaluated > 0 && out.Passed >= requiredPasses(out.Evaluated) && out.Blocking == 0:
		out.Command = CommandExecute
		headline = fmt.Sprintf("EXECUTE: %d/%d rules passed", out.Passed, out.Evaluated)
	default:
		out.Command = CommandCancel
		headline = fmt.Sprintf("CANCEL: conservative default, %d/%d rules passed, %d blocking", out.Passed, out.Evaluated, out.Blocking)
	}

	out.Reasons = append([]string{headline}, orderedReasons(results)...)
	return out
}

// severityRank 越小越严重。
func severityRank(r RuleResult) int {
	switch {
	case r.SuggestedCommand == CommandEmergencyAbort && r.BlockExecution:
		return 0
	case r.ForceCancel:
		return 1
	case r.BlockExecution:
		return 2
	case !r.Passed:
		return 3
	default:
		return 4
	}
}

func orderedReasons(results []RuleResult) []string {
	sorted := make([]RuleResult, len(results))
	copy(sorted, results)
	sort.SliceStable(sorted, func(i, j int) bool {
		ri, rj := severityRank(sorted[i]), severityRank(sorted[j])
		if ri != rj {
			return ri < rj
		}
		return sorted[i].Priority > sorted[j].Priority
	})
	reasons := make([]string, 0, len(sorted))
	for _, r := range sorted {
		if r.Reason == "" {
			continue
		}
		reasons = append(reasons, fmt.Sprintf("[%s] %s", r.RuleName, r.Reason))
	}
	return reasons
}
