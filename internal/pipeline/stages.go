package pipeline

import (
	"context"
	stderrors "errors"
	"fmt"

	ferrors "git.home.luguber.info/inful/rommer/internal/foundation/errors"
)

// StageName identifies a pipeline stage.
type StageName string

// Stages in execution order. StageRun owns the pre-run and post-run hooks.
const (
	StageRun      StageName = "run"
	StageDownload StageName = "download"
	StageUnzip    StageName = "unzip"
	StagePatch    StageName = "patch"
	StageZip      StageName = "zip"
	StageSign     StageName = "sign"
	StageCleanup  StageName = "cleanup"
)

// StageErrorKind classifies how a stage ended.
type StageErrorKind string

const (
	StageErrorFatal    StageErrorKind = "fatal"
	StageErrorWarning  StageErrorKind = "warning"
	StageErrorCanceled StageErrorKind = "canceled"
)

// StageError wraps the cause of a failed stage with the stage's name.
type StageError struct {
	Kind  StageErrorKind
	Stage StageName
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s stage %s: %v", e.Kind, e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

// StageResult is the outcome recorded for a stage.
type StageResult string

const (
	StageResultSuccess  StageResult = "success"
	StageResultWarning  StageResult = "warning"
	StageResultFatal    StageResult = "fatal"
	StageResultCanceled StageResult = "canceled"
	StageResultSkipped  StageResult = "skipped"
)

// newStageError classifies err for stage.
func newStageError(stage StageName, err error) *StageError {
	kind := StageErrorFatal
	switch {
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded),
		ferrors.HasCategory(err, ferrors.CategoryCanceled):
		kind = StageErrorCanceled
	case ferrors.HasSeverity(err, ferrors.SeverityWarning):
		kind = StageErrorWarning
	}
	return &StageError{Kind: kind, Stage: stage, Err: err}
}

func (k StageErrorKind) result() StageResult {
	switch k {
	case StageErrorWarning:
		return StageResultWarning
	case StageErrorCanceled:
		return StageResultCanceled
	default:
		return StageResultFatal
	}
}
