package pipeline

import (
	"github.com/dunamismax/pixelbatch/internal/transform"
)

// SourceFile is one uploaded file as received from the caller.
type SourceFile struct {
	Name string
	Data []byte
}

// Result is the outcome of one file's pipeline run. Err is nil on success.
type Result struct {
	Index        int                      `json:"index"`
	OriginalName string                   `json:"original_name"`
	OriginalPath string                   `json:"original_path,omitempty"`
	OutputName   string                   `json:"output_name,omitempty"`
	OutputPath   string                   `json:"output_path,omitempty"`
	RemoteKey    string                   `json:"remote_key,omitempty"`
	Width        int                      `json:"width,omitempty"`
	Height       int                      `json:"height,omitempty"`
	Format       string                   `json:"format,omitempty"`
	Bytes        int                      `json:"bytes,omitempty"`
	Stages       []transform.StageOutcome `json:"stages,omitempty"`
	Reason       string                   `json:"error,omitempty"`
	Err          error                    `json:"-"`

	data []byte
}

func (r Result) Success() bool {
	return r.Err == nil
}

// Data returns the encoded output bytes of a successful run.
func (r Result) Data() []byte {
	return r.data
}

// Outcome is the ordered result of a batch. Archive is set only when more
// than one file was submitted.
type Outcome struct {
	BatchID     string   `json:"batch_id"`
	Results     []Result `json:"results"`
	Archive     []byte   `json:"-"`
	ArchivePath string   `json:"archive_path,omitempty"`
}

func (o Outcome) Successes() int {
	n := 0
	for _, r := range o.Results {
		if r.Success() {
			n++
		}
	}
	return n
}
