package domain

import "time"

// HistoryEntry is one append-only record per successfully processed file.
// An empty UserID means the batch was anonymous.
type HistoryEntry struct {
	ID           int64     `json:"id,omitempty"`
	UserID       string    `json:"user_id,omitempty"`
	OriginalName string    `json:"original_name"`
	OutputName   string    `json:"output_name"`
	Width        int       `json:"width"`
	Height       int       `json:"height"`
	Format       string    `json:"format"`
	CreatedAt    time.Time `json:"created_at"`
}

// HistoryQuery filters history listings. An empty UserID lists every user.
type HistoryQuery struct {
	UserID string
	Limit  int
}

// OptionPreset is a named bundle of transform options saved for reuse.
type OptionPreset struct {
	Name      string           `json:"name"`
	UserID    string           `json:"user_id,omitempty"`
	Options   TransformRequest `json:"options"`
	UpdatedAt time.Time        `json:"updated_at"`
}
