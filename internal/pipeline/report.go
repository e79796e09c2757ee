package pipeline

import (
	"time"

	"git.home.luguber.info/inful/rommer/internal/patch"
)

// Outcome is the overall result of a run.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeWarning  Outcome = "warning"
	OutcomeFailed   Outcome = "failed"
	OutcomeCanceled Outcome = "canceled"
)

// StageRecord is the report entry for one stage.
type StageRecord struct {
	Name     StageName
	Result   StageResult
	Duration time.Duration
	Error    string
}

// Report describes a finished run.
type Report struct {
	RunID     string
	DryRun    bool
	Start     time.Time
	End       time.Time
	Outcome   Outcome
	Stages    []StageRecord
	Patches   []patch.UnitReport
	Warnings  []string
	Workspace string
	Archive   string
	Output    string
	// FailedStage is set when the run did not succeed.
	FailedStage StageName
}

func newReport(runID string, dryRun bool) *Report {
	return &Report{RunID: runID, DryRun: dryRun, Start: time.Now(), Outcome: OutcomeSuccess}
}

func (r *Report) record(name StageName, res StageResult, d time.Duration, err error) {
	rec := StageRecord{Name: name, Result: res, Duration: d}
	if err != nil {
		rec.Error = err.Error()
	}
	r.Stages = append(r.Stages, rec)
}

// Stage returns the latest record for name, if the stage was reached.
func (r *Report) Stage(name StageName) (StageRecord, bool) {
	for i := len(r.Stages) - 1; i >= 0; i-- {
		if r.Stages[i].Name == name {
			return r.Stages[i], true
		}
	}
	return StageRecord{}, false
}

func (r *Report) finish(err error) {
	r.End = time.Now()
	var se *StageError
	switch {
	case err == nil:
		if len(r.Warnings) > 0 {
			r.Outcome = OutcomeWarning
		}
	case asStageError(err, &se) && se.Kind == StageErrorCanceled:
		r.Outcome = OutcomeCanceled
		r.FailedStage = se.Stage
	case asStageError(err, &se):
		r.Outcome = OutcomeFailed
		r.FailedStage = se.Stage
	default:
		r.Outcome = OutcomeFailed
	}
}

// Duration is the wall time of the run.
func (r *Report) Duration() time.Duration { return r.End.Sub(r.Start) }
