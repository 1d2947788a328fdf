package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// LoadCursor returns the last block applied for stream. ok is false when the
// stream has never been read.
func (s *Store) LoadCursor(ctx context.Context, stream string) (block uint64, ok bool, err error) {
	err = s.db.QueryRow(ctx, `SELECT block_number FROM chain_cursors WHERE stream = $1`, stream).Scan(&block)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("load cursor: %w", err)
	}
	return block, true, nil
}

// SaveCursor advances the stream cursor. It never moves backwards.
func (s *Store) SaveCursor(ctx context.Context, stream string, block uint64) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO chain_cursors (stream, block_number)
		VALUES ($1, $2)
		ON CONFLICT (stream) DO UPDATE
		SET block_number = GREATEST(chain_cursors.block_number, EXCLUDED.block_number),
		    updated_at = NOW()`, stream, block)
	if err != nil {
		return fmt.Errorf("save cursor: %w", err)
	}
	return nil
}
