package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dunamismax/pixelbatch/internal/domain"
)

type MemoryStore struct {
	mu      sync.RWMutex
	nextID  int64
	history []domain.HistoryEntry
	presets map[presetKey]domain.OptionPreset
}

type presetKey struct {
	userID string
	name   string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		presets: make(map[presetKey]domain.OptionPreset),
	}
}

func (s *MemoryStore) Record(_ context.Context, entry domain.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	entry.ID = s.nextID
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.history = append(s.history, entry)
	return nil
}

func (s *MemoryStore) Recent(_ context.Context, q domain.HistoryQuery) ([]domain.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.HistoryEntry, 0, len(s.history))
	for i := len(s.history) - 1; i >= 0; i-- {
		entry := s.history[i]
		if q.UserID != "" && entry.UserID != q.UserID {
			continue
		}
		out = append(out, entry)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit := clampLimit(q.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) SavePreset(_ context.Context, preset domain.OptionPreset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if preset.UpdatedAt.IsZero() {
		preset.UpdatedAt = time.Now().UTC()
	}
	s.presets[presetKey{userID: preset.UserID, name: preset.Name}] = preset
	return nil
}

func (s *MemoryStore) GetPreset(_ context.Context, userID, name string) (domain.OptionPreset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	preset, ok := s.presets[presetKey{userID: userID, name: name}]
	if !ok {
		return domain.OptionPreset{}, ErrPresetNotFound
	}
	return preset, nil
}

func (s *MemoryStore) ListPresets(_ context.Context, userID string) ([]domain.OptionPreset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.OptionPreset, 0)
	for key, preset := range s.presets {
		if key.userID == userID {
			out = append(out, preset)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
