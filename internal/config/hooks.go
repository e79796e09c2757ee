package config

// HookStage names a pipeline boundary at which a user script may run.
type HookStage string

const (
	HookPreRun       HookStage = "pre-run"
	HookPreDownload  HookStage = "pre-download"
	HookPostDownload HookStage = "post-download"
	HookPreUnzip     HookStage = "pre-unzip"
	HookPostUnzip    HookStage = "post-unzip"
	HookPrePatch     HookStage = "pre-patch"
	HookPostPatch    HookStage = "post-patch"
	HookPreZip       HookStage = "pre-zip"
	HookPostZip      HookStage = "post-zip"
	HookPreSign      HookStage = "pre-sign"
	HookPostSign     HookStage = "post-sign"
	HookPreCleanup   HookStage = "pre-cleanup"
	HookPostCleanup  HookStage = "post-cleanup"
	HookPostRun      HookStage = "post-run"
)

// HookStages lists every hook stage in the order the pipeline visits them.
var HookStages = []HookStage{
	HookPreRun,
	HookPreDownload, HookPostDownload,
	HookPreUnzip, HookPostUnzip,
	HookPrePatch, HookPostPatch,
	HookPreZip, HookPostZip,
	HookPreSign, HookPostSign,
	HookPreCleanup, HookPostCleanup,
	HookPostRun,
}

// IsValid reports whether s is a known hook stage.
func (s HookStage) IsValid() bool {
	for _, known := range HookStages {
		if s == known {
			return true
		}
	}
	return false
}

// Hooks maps a hook stage to the script run at that boundary.
type Hooks map[HookStage]string

// Script returns the configured script for stage, if any.
func (h Hooks) Script(stage HookStage) (string, bool) {
	if h == nil {
		return "", false
	}
	script, ok := h[stage]
	if !ok || script == "" {
		return "", false
	}
	return script, true
}
