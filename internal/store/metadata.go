package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pavelanni/autograde/internal/model"
)

const examConfigKey = "exam_config"

// SetMetadata upserts a key-value pair in the metadata table.
func (s *Store) SetMetadata(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO metadata (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		key, value,
	)
	return err
}

// GetMetadata returns the value for a metadata key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// DeleteMetadata removes a metadata key.
func (s *Store) DeleteMetadata(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM metadata WHERE key = $1`, key)
	return err
}

// CurrentExam returns the saved exam configuration, or nil if none is saved.
func (s *Store) CurrentExam(ctx context.Context) (*model.ExamConfiguration, error) {
	raw, err := s.GetMetadata(ctx, examConfigKey)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, nil
	}
	var cfg model.ExamConfiguration
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, fmt.Errorf("decode exam configuration: %w", err)
	}
	return &cfg, nil
}

// SaveExam replaces the current exam configuration.
func (s *Store) SaveExam(ctx context.Context, cfg *model.ExamConfiguration) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode exam configuration: %w", err)
	}
	return s.SetMetadata(ctx, examConfigKey, string(data))
}

// ClearExam removes the current exam configuration.
func (s *Store) ClearExam(ctx context.Context) error {
	return s.DeleteMetadata(ctx, examConfigKey)
}
