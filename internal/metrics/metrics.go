package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bagbot/internal/fusion"
)

// 中文说明：
// Registry 作为 DecisionObserver/RejectionObserver 挂在融合服务上，
// 用独立 registry 避免测试之间互相污染全局默认注册表。

type Registry struct {
	reg *prometheus.Registry

	Decisions  *prometheus.CounterVec
	Conflicts  *prometheus.CounterVec
	RuleBlocks *prometheus.CounterVec
	Rejections prometheus.Counter
	Harmony    prometheus.Histogram
	FuseTime   prometheus.Histogram
}

// NewRegistry namespace 为空时不加前缀。
func NewRegistry(namespace string) *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		Decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "fusion",
				Name:      "decisions_total",
				Help:      "Fusion decisions by final command",
			},
			[]string{"command"},
		),
		Conflicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "fusion",
				Name:      "conflicts_total",
				Help:      "Detected EXO/Reactor conflicts by type and severity",
			},
			[]string{"type", "severity"},
		),
		RuleBlocks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "fusion",
				Name:      "rule_blocks_total",
				Help:      "Rule results that blocked execution, by rule",
			},
			[]string{"rule"},
		),
		Rejections: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "fusion",
				Name:      "rejected_requests_total",
				Help:      "Requests rejected by input validation",
			},
		),
		Harmony: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "fusion",
				Name:      "harmony_score",
				Help:      "Final harmony score distribution",
				Buckets:   []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
			},
		),
		FuseTime: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "fusion",
				Name:      "evaluate_duration_seconds",
				Help:      "Time spent in harmony + rules + aggregation",
				Buckets:   []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
			},
		),
	}
	r.reg.MustRegister(
		r.Decisions, r.Conflicts, r.RuleBlocks, r.Rejections, r.Harmony, r.FuseTime,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// AfterDecide 实现 fusion.DecisionObserver。
func (r *Registry) AfterDecide(_ context.Context, d fusion.FusionDecision) error {
	r.Decisions.WithLabelValues(string(d.FinalCommand)).Inc()
	h := d.Metrics.Harmony
	if h.HasConflict {
		r.Conflicts.WithLabelValues(string(h.ConflictType), string(h.ConflictSeverity)).Inc()
	}
	for _, res := range d.Metrics.Rules {
		if res.BlockExecution {
			r.RuleBlocks.WithLabelValues(res.RuleName).Inc()
		}
	}
	r.Harmony.Observe(d.HarmonyScore)
	r.FuseTime.Observe(float64(d.Metrics.ElapsedMicros) / 1e6)
	return nil
}

// OnRejected 实现 fusion.RejectionObserver。
func (r *Registry) OnRejected(context.Context, fusion.Request, error) {
	r.Rejections.Inc()
}

// Gatherer 供测试直接读取。
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}
