package pipeline

import (
	"time"

	"git.home.luguber.info/inful/rommer/internal/metrics"
)

// Observer receives callbacks around stage execution and the run lifecycle.
type Observer interface {
	OnStageStart(stage StageName)
	OnStageComplete(stage StageName, d time.Duration, result StageResult)
	OnBuildComplete(report *Report)
}

// NoopObserver ignores everything.
type NoopObserver struct{}

func (NoopObserver) OnStageStart(StageName)                                 {}
func (NoopObserver) OnStageComplete(StageName, time.Duration, StageResult) {}
func (NoopObserver) OnBuildComplete(*Report)                               {}

// recorderObserver adapts a metrics.Recorder.
type recorderObserver struct{ rec metrics.Recorder }

func (r recorderObserver) OnStageStart(StageName) {}

func (r recorderObserver) OnStageComplete(stage StageName, d time.Duration, result StageResult) {
	if result != StageResultSkipped {
		r.rec.ObserveStageDuration(string(stage), d)
	}
	r.rec.IncStageResult(string(stage), metrics.ResultLabel(result))
}

func (r recorderObserver) OnBuildComplete(report *Report) {
	r.rec.ObserveBuildDuration(report.Duration())
	r.rec.IncBuildOutcome(metrics.BuildOutcomeLabel(report.Outcome))
}

type multiObserver []Observer

func (m multiObserver) OnStageStart(stage StageName) {
	for _, o := range m {
		o.OnStageStart(stage)
	}
}

func (m multiObserver) OnStageComplete(stage StageName, d time.Duration, result StageResult) {
	for _, o := range m {
		o.OnStageComplete(stage, d, result)
	}
}

func (m multiObserver) OnBuildComplete(report *Report) {
	for _, o := range m {
		o.OnBuildComplete(report)
	}
}
