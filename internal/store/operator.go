package store

import (
	"context"
	"log/slog"
)

const operatorHashKey = "operator_password_hash"

// OperatorPasswordHash returns the stored bcrypt hash of the operator password,
// or empty string if none has been seeded.
func (s *Store) OperatorPasswordHash(ctx context.Context) (string, error) {
	return s.GetMetadata(ctx, operatorHashKey)
}

// SetOperatorPasswordHash stores the operator's bcrypt hash.
func (s *Store) SetOperatorPasswordHash(ctx context.Context, hash string) error {
	if err := s.SetMetadata(ctx, operatorHashKey, hash); err != nil {
		slog.Error("failed to store operator password", "error", err)
		return err
	}
	slog.Info("stored operator password hash")
	return nil
}
