package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dunamismax/pixelbatch/internal/domain"
	_ "github.com/lib/pq"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS history (
	id BIGSERIAL PRIMARY KEY,
	user_id TEXT,
	original_name TEXT NOT NULL,
	output_name TEXT NOT NULL,
	width INTEGER NOT NULL,
	height INTEGER NOT NULL,
	format TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS history_user_created_idx ON history (user_id, created_at DESC);
CREATE TABLE IF NOT EXISTS option_presets (
	user_id TEXT NOT NULL DEFAULT '',
	name TEXT NOT NULL,
	options JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (user_id, name)
);
`

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure history schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Record(ctx context.Context, entry domain.HistoryEntry) error {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO history (user_id, original_name, output_name, width, height, format, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		nullString(entry.UserID),
		entry.OriginalName,
		entry.OutputName,
		entry.Width,
		entry.Height,
		strings.ToUpper(entry.Format),
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("%w: insert history: %v", domain.ErrPersistenceFailure, err)
	}
	return nil
}

func (s *PostgresStore) Recent(ctx context.Context, q domain.HistoryQuery) ([]domain.HistoryEntry, error) {
	query := `SELECT id, user_id, original_name, output_name, width, height, format, created_at
		 FROM history`
	args := []any{}
	if q.UserID != "" {
		query += ` WHERE user_id = $1`
		args = append(args, q.UserID)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT %d`, clampLimit(q.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []domain.HistoryEntry
	for rows.Next() {
		var (
			entry  domain.HistoryEntry
			userID sql.NullString
		)
		if err := rows.Scan(
			&entry.ID,
			&userID,
			&entry.OriginalName,
			&entry.OutputName,
			&entry.Width,
			&entry.Height,
			&entry.Format,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		entry.UserID = userID.String
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) SavePreset(ctx context.Context, preset domain.OptionPreset) error {
	optionsJSON, err := json.Marshal(preset.Options)
	if err != nil {
		return fmt.Errorf("marshal preset options: %w", err)
	}
	updatedAt := preset.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO option_presets (user_id, name, options, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, name) DO UPDATE SET options = EXCLUDED.options, updated_at = EXCLUDED.updated_at`,
		preset.UserID,
		preset.Name,
		optionsJSON,
		updatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert preset: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPreset(ctx context.Context, userID, name string) (domain.OptionPreset, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT user_id, name, options, updated_at
		 FROM option_presets
		 WHERE user_id = $1 AND name = $2`,
		userID,
		name,
	)

	preset, err := scanPreset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.OptionPreset{}, ErrPresetNotFound
	}
	if err != nil {
		return domain.OptionPreset{}, fmt.Errorf("query preset: %w", err)
	}
	return preset, nil
}

func (s *PostgresStore) ListPresets(ctx context.Context, userID string) ([]domain.OptionPreset, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT user_id, name, options, updated_at
		 FROM option_presets
		 WHERE user_id = $1
		 ORDER BY name`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query presets: %w", err)
	}
	defer rows.Close()

	out := make([]domain.OptionPreset, 0)
	for rows.Next() {
		preset, err := scanPreset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan preset row: %w", err)
		}
		out = append(out, preset)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate preset rows: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPreset(row scanner) (domain.OptionPreset, error) {
	var (
		preset      domain.OptionPreset
		optionsJSON []byte
	)
	if err := row.Scan(&preset.UserID, &preset.Name, &optionsJSON, &preset.UpdatedAt); err != nil {
		return domain.OptionPreset{}, err
	}
	if err := json.Unmarshal(optionsJSON, &preset.Options); err != nil {
		return domain.OptionPreset{}, fmt.Errorf("unmarshal preset options: %w", err)
	}
	return preset, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
