package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"loopfan-backend/models"
)

const outboxColumns = `id, kind, source_tx_hash, payload, status, attempts, last_error,
	result_tx_hash, submitted_tx_hash, created_at, updated_at`

func scanOutbox(row pgx.Row) (*models.OutboxEntry, error) {
	var e models.OutboxEntry
	err := row.Scan(
		&e.ID,
		&e.Kind,
		&e.SourceTxHash,
		&e.Payload,
		&e.Status,
		&e.Attempts,
		&e.LastError,
		&e.ResultTxHash,
		&e.SubmittedTxHash,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &e, nil
}

func insertOutbox(ctx context.Context, tx pgx.Tx, e *models.OutboxEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO outbox (id, kind, source_tx_hash, payload, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (kind, source_tx_hash) DO NOTHING`,
		e.ID, e.Kind, lower(e.SourceTxHash), string(e.Payload), models.OutboxPending)
	if err != nil {
		return fmt.Errorf("insert outbox: %w", err)
	}
	return nil
}

// ClaimOutbox moves a pending or failed entry to in_flight and returns it.
// ErrNotFound means another worker holds it or it is already settled.
func (s *Store) ClaimOutbox(ctx context.Context, id uuid.UUID) (*models.OutboxEntry, error) {
	e, err := scanOutbox(s.db.QueryRow(ctx, `
		UPDATE outbox
		SET status = 'in_flight', attempts = attempts + 1, updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'failed')
		RETURNING `+outboxColumns, id))
	if err != nil {
		return nil, fmt.Errorf("claim outbox: %w", err)
	}
	return e, nil
}

// ClaimDueOutbox claims up to limit entries that are pending, failed, or stuck
// in_flight for longer than staleAfter.
func (s *Store) ClaimDueOutbox(ctx context.Context, limit int, staleAfter time.Duration, maxAttempts int) ([]models.OutboxEntry, error) {
	rows, err := s.db.Query(ctx, `
		UPDATE outbox
		SET status = 'in_flight', attempts = attempts + 1, updated_at = NOW()
		WHERE id IN (
			SELECT id FROM outbox
			WHERE attempts < $3
			  AND (status IN ('pending', 'failed')
			       OR (status = 'in_flight' AND updated_at < NOW() - make_interval(secs => $2)))
			ORDER BY created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+outboxColumns,
		limit, staleAfter.Seconds(), maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("claim due outbox: %w", err)
	}
	defer rows.Close()

	var entries []models.OutboxEntry
	for rows.Next() {
		e, err := scanOutbox(rows)
		if err != nil {
			return nil, fmt.Errorf("scan outbox: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// RecordOutboxSubmission stores the hash of a signed transaction before it is
// broadcast. It survives failed attempts so a replay can look the transaction up.
func (s *Store) RecordOutboxSubmission(ctx context.Context, id uuid.UUID, txHash string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE outbox SET submitted_tx_hash = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'in_flight'`, id, lower(txHash))
	if err != nil {
		return fmt.Errorf("record outbox submission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("record outbox submission: %w", ErrNotFound)
	}
	return nil
}

func (s *Store) CompleteOutbox(ctx context.Context, id uuid.UUID, resultTxHash string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE outbox
		SET status = 'done', result_tx_hash = $2, last_error = NULL, updated_at = NOW()
		WHERE id = $1`, id, resultTxHash)
	if err != nil {
		return fmt.Errorf("complete outbox: %w", err)
	}
	return nil
}

// FailOutbox records a failed attempt. Entries that used up maxAttempts become dead.
func (s *Store) FailOutbox(ctx context.Context, id uuid.UUID, cause error, maxAttempts int) (status string, err error) {
	err = s.db.QueryRow(ctx, `
		UPDATE outbox
		SET status = CASE WHEN attempts >= $3 THEN 'dead' ELSE 'failed' END,
		    last_error = $2,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING status`, id, cause.Error(), maxAttempts).Scan(&status)
	if err != nil {
		return "", fmt.Errorf("fail outbox: %w", notFound(err))
	}
	return status, nil
}

// ExpireDeadOutbox marks entries that exhausted their attempts while pending or failed as dead.
func (s *Store) ExpireDeadOutbox(ctx context.Context, maxAttempts int) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE outbox SET status = 'dead', updated_at = NOW()
		WHERE status IN ('pending', 'failed', 'in_flight') AND attempts >= $1
		  AND updated_at < NOW() - INTERVAL '1 hour'`, maxAttempts)
	if err != nil {
		return 0, fmt.Errorf("expire outbox: %w", err)
	}
	return tag.RowsAffected(), nil
}
