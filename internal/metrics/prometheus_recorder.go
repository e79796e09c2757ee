package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "rommer"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	reg              *prom.Registry
	stageDuration    *prom.HistogramVec
	stageResults     *prom.CounterVec
	buildDuration    prom.Histogram
	buildOutcome     *prom.CounterVec
	downloadAttempts *prom.CounterVec
	hookRuns         *prom.CounterVec
	patchDuration    prom.Histogram
	patchFiles       *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers the metrics on reg (a fresh registry when nil).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{reg: reg}
	pr.stageDuration = prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "stage_duration_seconds",
		Help:      "Duration of individual pipeline stages",
		Buckets:   []float64{.01, .1, 1, 5, 15, 60, 180, 600, 1800},
	}, []string{"stage"})
	pr.stageResults = prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "stage_results_total",
		Help:      "Stage result counts by outcome",
	}, []string{"stage", "result"})
	pr.buildDuration = prom.NewHistogram(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "build_duration_seconds",
		Help:      "Total build duration",
		Buckets:   []float64{1, 10, 60, 300, 900, 1800, 3600},
	})
	pr.buildOutcome = prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "build_outcomes_total",
		Help:      "Build outcomes by final status",
	}, []string{"outcome"})
	pr.downloadAttempts = prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "download_attempts_total",
		Help:      "ROM download attempts by result",
	}, []string{"result"})
	pr.hookRuns = prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "hook_runs_total",
		Help:      "Hook script executions by hook and result",
	}, []string{"hook", "result"})
	pr.patchDuration = prom.NewHistogram(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "patch_unit_duration_seconds",
		Help:      "Time spent applying a single patch unit",
		Buckets:   prom.DefBuckets,
	})
	pr.patchFiles = prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "patch_paths_total",
		Help:      "Paths touched by patch units by operation",
	}, []string{"op"})
	reg.MustRegister(pr.stageDuration, pr.stageResults, pr.buildDuration, pr.buildOutcome,
		pr.downloadAttempts, pr.hookRuns, pr.patchDuration, pr.patchFiles)
	return pr
}

// Registry exposes the underlying registry.
func (p *PrometheusRecorder) Registry() *prom.Registry { return p.reg }

// WriteTextfile writes the current metrics in text exposition format to path,
// atomically, for the node_exporter textfile collector.
func (p *PrometheusRecorder) WriteTextfile(path string) error {
	return prom.WriteToTextfile(path, p.reg)
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	if p == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStageResult(stage string, result ResultLabel) {
	if p == nil {
		return
	}
	p.stageResults.WithLabelValues(stage, string(result)).Inc()
}

func (p *PrometheusRecorder) ObserveBuildDuration(d time.Duration) {
	if p == nil {
		return
	}
	p.buildDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncBuildOutcome(outcome BuildOutcomeLabel) {
	if p == nil {
		return
	}
	p.buildOutcome.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) IncDownloadAttempt(success bool) {
	if p == nil {
		return
	}
	p.downloadAttempts.WithLabelValues(resultLabel(success)).Inc()
}

func (p *PrometheusRecorder) IncHookRun(hook string, success bool) {
	if p == nil {
		return
	}
	p.hookRuns.WithLabelValues(hook, resultLabel(success)).Inc()
}

func (p *PrometheusRecorder) ObservePatchUnit(d time.Duration, copied, deleted int) {
	if p == nil {
		return
	}
	p.patchDuration.Observe(d.Seconds())
	p.patchFiles.WithLabelValues("copy").Add(float64(copied))
	p.patchFiles.WithLabelValues("delete").Add(float64(deleted))
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failed"
}
