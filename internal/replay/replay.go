package replay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"bagbot/internal/fusion"
	"bagbot/internal/logger"
)

// 中文说明：
// replay 把录制下来的 EXO/Reactor 决策对按顺序重新跑一遍融合，
// 与期望结果逐项比对，用于调参前后的回归检查。

// File 一个回放文件。At 用于补齐未填写的时间戳。
type File struct {
	Name      string     `yaml:"name"`
	At        time.Time  `yaml:"at"`
	Scenarios []Scenario `yaml:"scenarios"`
}

type Scenario struct {
	Name    string                 `yaml:"name"`
	EXO     fusion.EXODecision     `yaml:"exo"`
	Reactor fusion.ReactorDecision `yaml:"reactor"`
	Market  fusion.MarketSnapshot  `yaml:"market"`
	Expect  Expect                 `yaml:"expect"`
}

// Expect 只比较填写了的字段。
type Expect struct {
	Command    fusion.Command `yaml:"command"`
	Rejected   bool           `yaml:"rejected"`
	Size       *float64       `yaml:"size"`
	MinHarmony *float64       `yaml:"min_harmony"`
	MaxHarmony *float64       `yaml:"max_harmony"`
	Conflict   *bool          `yaml:"conflict"`
	BlockedBy  []string       `yaml:"blocked_by"`
}

// Result 单个场景的结果。
type Result struct {
	Name       string                 `json:"name"`
	Decision   *fusion.FusionDecision `json:"decision,omitempty"`
	Err        string                 `json:"error,omitempty"`
	Mismatches []string               `json:"mismatches,omitempty"`
}

func (r Result) Passed() bool { return len(r.Mismatches) == 0 }

// Report 整个文件的回放结果。
type Report struct {
	Name    string       `json:"name"`
	Results []Result     `json:"results"`
	Failed  int          `json:"failed"`
	Stats   fusion.State `json:"stats"`
}

func (r Report) Passed() bool { return r.Failed == 0 }

// Load 读取并严格解析回放文件，未知字段直接报错。
func Load(path string) (File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read replay file failed: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return File{}, fmt.Errorf("parse replay file failed: %w", err)
	}
	if len(f.Scenarios) == 0 {
		return File{}, errors.New("replay file has no scenarios")
	}
	for i := range f.Scenarios {
		sc := &f.Scenarios[i]
		if strings.TrimSpace(sc.Name) == "" {
			sc.Name = fmt.Sprintf("#%d", i+1)
		}
		if sc.Expect.Command != fusion.CommandNone && !sc.Expect.Command.Valid() {
			return File{}, fmt.Errorf("scenario %s: unknown expected command %q", sc.Name, sc.Expect.Command)
		}
		if !f.At.IsZero() {
			fillTimestamps(sc, f.At)
		}
	}
	return f, nil
}

func fillTimestamps(sc *Scenario, at time.Time) {
	if sc.EXO.Timestamp.IsZero() {
		sc.EXO.Timestamp = at
	}
	if sc.Reactor.Timestamp.IsZero() {
		sc.Reactor.Timestamp = at
	}
	if sc.Market.Timestamp.IsZero() {
		sc.Market.Timestamp = at
	}
}

// Request 场景对应的融合输入。
func (s Scenario) Request() fusion.Request {
	return fusion.Request{EXO: s.EXO, Reactor: s.Reactor, Market: s.Market}
}

// Run 用全新的 Service 顺序回放，统计在场景之间累积。
func Run(ctx context.Context, f File, cfg fusion.Config, opts ...fusion.Option) (Report, error) {
	svc, err := fusion.NewService(cfg, opts...)
	if err != nil {
		return Report{}, err
	}
	report := Report{Name: f.Name, Results: make([]Result, 0, len(f.Scenarios))}
	for _, sc := range f.Scenarios {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		res := Result{Name: sc.Name}
		d, err := svc.Fuse(ctx, sc.Request())
		if err != nil {
			res.Err = err.Error()
			res.Mismatches = checkRejected(sc.Expect, err)
		} else {
			res.Decision = &d
			res.Mismatches = compare(sc.Expect, d)
		}
		if !res.Passed() {
			report.Failed++
			logger.Warnf("replay %s/%s 不符合预期: %s", f.Name, sc.Name, strings.Join(res.Mismatches, "; "))
		}
		report.Results = append(report.Results, res)
	}
	report.Stats = svc.Statistics()
	return report, nil
}

func checkRejected(exp Expect, err error) []string {
	var verr *fusion.ValidationError
	if !errors.As(err, &verr) {
		return []string{"unexpected error: " + err.Error()}
	}
	if !exp.Rejected {
		return []string{"unexpectedly rejected: " + err.Error()}
	}
	return nil
}

const sizeTolerance = 1e-8

func compare(exp Expect, d fusion.FusionDecision) []string {
	var out []string
	if exp.Rejected {
		out = append(out, "expected rejection, got "+string(d.FinalCommand))
	}
	if exp.Command != fusion.CommandNone && exp.Command != d.FinalCommand {
		out = append(out, fmt.Sprintf("command: want %s got %s", exp.Command, d.FinalCommand))
	}
	if exp.Size != nil && math.Abs(*exp.Size-d.FinalSize) > sizeTolerance {
		out = append(out, fmt.Sprintf("size: want %v got %v", *exp.Size, d.FinalSize))
	}
	if exp.MinHarmony != nil && d.HarmonyScore < *exp.MinHarmony {
		out = append(out, fmt.Sprintf("harmony: want >= %v got %v", *exp.MinHarmony, d.HarmonyScore))
	}
	if exp.MaxHarmony != nil && d.HarmonyScore > *exp.MaxHarmony {
		out = append(out, fmt.Sprintf("harmony: want <= %v got %v", *exp.MaxHarmony, d.HarmonyScore))
	}
	if exp.Conflict != nil && *exp.Conflict != d.Metrics.Harmony.HasConflict {
		out = append(out, fmt.Sprintf("conflict: want %v got %v", *exp.Conflict, d.Metrics.Harmony.HasConflict))
	}
	if len(exp.BlockedBy) > 0 {
		blocked := make(map[string]bool, len(d.Metrics.Rules))
		for _, r := range d.Metrics.Rules {
			if r.BlockExecution {
				blocked[r.RuleName] = true
			}
		}
		for _, name := range exp.BlockedBy {
			if !blocked[name] {
				out = append(out, "rule not blocking: "+name)
			}
		}
	}
	return out
}
