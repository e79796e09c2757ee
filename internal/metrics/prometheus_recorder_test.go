package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.ObserveStageDuration("download", 150*time.Millisecond)
	pr.IncStageResult("download", ResultSuccess)
	pr.IncStageResult("sign", ResultSkipped)
	pr.ObserveBuildDuration(500 * time.Millisecond)
	pr.IncBuildOutcome(BuildOutcomeSuccess)
	pr.IncDownloadAttempt(false)
	pr.IncDownloadAttempt(true)
	pr.IncHookRun("pre-run", true)
	pr.ObservePatchUnit(10*time.Millisecond, 3, 2)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	counters := map[string]float64{}
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			if m.GetCounter() == nil {
				continue
			}
			key := mf.GetName()
			for _, l := range m.GetLabel() {
				key += "," + l.GetName() + "=" + l.GetValue()
			}
			counters[key] = m.GetCounter().GetValue()
		}
	}
	require.Equal(t, 1.0, counters["rommer_stage_results_total,result=skipped,stage=sign"])
	require.Equal(t, 1.0, counters["rommer_download_attempts_total,result=failed"])
	require.Equal(t, 3.0, counters["rommer_patch_paths_total,op=copy"])
}

func TestPrometheusRecorder_WriteTextfile(t *testing.T) {
	pr := NewPrometheusRecorder(nil)
	pr.IncBuildOutcome(BuildOutcomeFailed)

	path := filepath.Join(t.TempDir(), "rommer.prom")
	require.NoError(t, pr.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(data), `rommer_build_outcomes_total{outcome="failed"} 1`), string(data))
}

func TestNoopRecorder(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.ObserveStageDuration("x", time.Second)
	r.IncStageResult("x", ResultFatal)
	r.IncBuildOutcome(BuildOutcomeCanceled)
	r.IncHookRun("pre-run", false)
}
