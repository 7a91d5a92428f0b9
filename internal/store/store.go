// Package store persists processing history and saved option presets.
package store

import (
	"context"
	"errors"

	"github.com/dunamismax/pixelbatch/internal/domain"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 500
)

var ErrPresetNotFound = errors.New("preset not found")

// HistoryStore is an append-only sink of processed files.
type HistoryStore interface {
	Record(ctx context.Context, entry domain.HistoryEntry) error
	Recent(ctx context.Context, q domain.HistoryQuery) ([]domain.HistoryEntry, error)
}

type PresetStore interface {
	SavePreset(ctx context.Context, preset domain.OptionPreset) error
	GetPreset(ctx context.Context, userID, name string) (domain.OptionPreset, error)
	ListPresets(ctx context.Context, userID string) ([]domain.OptionPreset, error)
}

// Store bundles both collaborators, which every implementation provides.
type Store interface {
	HistoryStore
	PresetStore
	Close() error
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		return MaxHistoryLimit
	default:
		return limit
	}
}
