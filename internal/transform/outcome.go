// Package transform holds the image decode/encode codec and the individual
// transform stages applied by the per-file pipeline.
package transform

type Status string

const (
	StatusApplied      Status = "applied"
	StatusSkipped      Status = "skipped"
	StatusFellBack     Status = "fell_back"
	StatusNotRequested Status = "not_requested"
)

const (
	StageResize        = "resize"
	StageBackground    = "background_removal"
	StageFilter        = "filter"
	StageWatermarkMark = "watermark_image"
	StageWatermarkText = "watermark_text"
	StageMetadata      = "metadata"
)

// StageOutcome records which path a stage took so callers can tell an applied
// effect from a skipped or degraded one without inspecting pixels.
type StageOutcome struct {
	Stage  string `json:"stage"`
	Status Status `json:"status"`
	Reason string `json:"reason,omitempty"`
}

func applied(stage string) StageOutcome {
	return StageOutcome{Stage: stage, Status: StatusApplied}
}

func skipped(stage, reason string) StageOutcome {
	return StageOutcome{Stage: stage, Status: StatusSkipped, Reason: reason}
}

func notRequested(stage string) StageOutcome {
	return StageOutcome{Stage: stage, Status: StatusNotRequested}
}
