package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"loopfan-backend/models"
)

// Ledger streams recorded in chain_events.
const (
	StreamTips        = "tips"
	StreamMemberships = "memberships"
	StreamRewards     = "rewards"
)

const tipColumns = `id, tx_hash, block_number, tipper_address, creator_address, amount, token,
	message, referrer_address, referral_amount, created_at`

const membershipColumns = `id, tx_hash, block_number, member_address, creator_address, tier_id,
	duration, expires_at, is_active, created_at`

func scanTip(row pgx.Row) (*models.Tip, error) {
	var t models.Tip
	err := row.Scan(
		&t.ID,
		&t.TxHash,
		&t.BlockNumber,
		&t.TipperAddress,
		&t.CreatorAddress,
		&t.Amount,
		&t.Token,
		&t.Message,
		&t.ReferrerAddress,
		&t.ReferralAmount,
		&t.CreatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func scanMembership(row pgx.Row) (*models.Membership, error) {
	var m models.Membership
	err := row.Scan(
		&m.ID,
		&m.TxHash,
		&m.BlockNumber,
		&m.MemberAddress,
		&m.CreatorAddress,
		&m.TierID,
		&m.Duration,
		&m.ExpiresAt,
		&m.IsActive,
		&m.CreatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

// RecordTip stores a tip, adds its amount to the tipper's running total and
// queues the award intent, all in one transaction. A tip whose tx hash is
// already stored changes nothing and reports inserted=false.
func (s *Store) RecordTip(ctx context.Context, tip *models.Tip, award *models.OutboxEntry) (inserted bool, err error) {
	tip.TxHash = lower(tip.TxHash)
	tip.TipperAddress = lower(tip.TipperAddress)
	tip.CreatorAddress = lower(tip.CreatorAddress)
	tip.ReferrerAddress = lowerPtr(tip.ReferrerAddress)

	err = s.inTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO tips (tx_hash, block_number, tipper_address, creator_address, amount, token,
				message, referrer_address, referral_amount)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (tx_hash) DO NOTHING
			RETURNING id, created_at`,
			tip.TxHash,
			tip.BlockNumber,
			tip.TipperAddress,
			tip.CreatorAddress,
			tip.Amount,
			tip.Token,
			tip.Message,
			tip.ReferrerAddress,
			tip.ReferralAmount,
		).Scan(&tip.ID, &tip.CreatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("insert tip: %w", err)
		}
		inserted = true

		_, err = tx.Exec(ctx, `
			INSERT INTO users (address, total_tips_given)
			VALUES ($1, $2)
			ON CONFLICT (address) DO UPDATE
			SET total_tips_given = users.total_tips_given + EXCLUDED.total_tips_given,
			    updated_at = NOW()`,
			tip.TipperAddress, tip.Amount)
		if err != nil {
			return fmt.Errorf("update tipper total: %w", err)
		}

		if award != nil {
			if err := insertOutbox(ctx, tx, award); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

// RecordMembership stores a mint and appends it to the member's history.
func (s *Store) RecordMembership(ctx context.Context, m *models.Membership) (inserted bool, err error) {
	m.TxHash = lower(m.TxHash)
	m.MemberAddress = lower(m.MemberAddress)
	m.CreatorAddress = lower(m.CreatorAddress)

	err = s.inTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO memberships (tx_hash, block_number, member_address, creator_address, tier_id,
				duration, expires_at, is_active)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (tx_hash) DO NOTHING
			RETURNING id, created_at`,
			m.TxHash,
			m.BlockNumber,
			m.MemberAddress,
			m.CreatorAddress,
			m.TierID,
			m.Duration,
			m.ExpiresAt,
			m.IsActive,
		).Scan(&m.ID, &m.CreatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("insert membership: %w", err)
		}
		inserted = true

		_, err = tx.Exec(ctx, `
			INSERT INTO users (address, membership_history)
			VALUES ($1, jsonb_build_array($2::jsonb))
			ON CONFLICT (address) DO UPDATE
			SET membership_history = users.membership_history || EXCLUDED.membership_history,
			    updated_at = NOW()`,
			m.MemberAddress, m.HistoryEntry())
		if err != nil {
			return fmt.Errorf("append membership history: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

// claimLedger records that a log was applied. It returns false when the log
// was applied before.
func claimLedger(ctx context.Context, tx pgx.Tx, stream string, ref models.ChainEventRef) (bool, error) {
	tag, err := tx.Exec(ctx, `
		INSERT INTO chain_events (tx_hash, log_index, stream, block_number)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tx_hash, log_index) DO NOTHING`,
		lower(ref.TxHash), ref.LogIndex, stream, ref.BlockNumber)
	if err != nil {
		return false, fmt.Errorf("record chain event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ApplyPointsAwarded credits the fan, creating the user if needed.
func (s *Store) ApplyPointsAwarded(ctx context.Context, ev models.PointsAward) (applied bool, err error) {
	err = s.inTx(ctx, func(tx pgx.Tx) error {
		fresh, err := claimLedger(ctx, tx, StreamRewards, ev.ChainEventRef)
		if err != nil || !fresh {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO users (address, points_balance)
			VALUES ($1, $2)
			ON CONFLICT (address) DO UPDATE
			SET points_balance = users.points_balance + EXCLUDED.points_balance,
			    updated_at = NOW()`,
			lower(ev.Fan), ev.Points)
		if err != nil {
			return fmt.Errorf("credit points: %w", err)
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// ApplyRewardRedeemed debits the fan only when the balance covers the cost.
// Otherwise nothing is kept and ErrInsufficientPoints is returned.
func (s *Store) ApplyRewardRedeemed(ctx context.Context, ev models.RewardRedemption) (applied bool, err error) {
	err = s.inTx(ctx, func(tx pgx.Tx) error {
		fresh, err := claimLedger(ctx, tx, StreamRewards, ev.ChainEventRef)
		if err != nil || !fresh {
			return err
		}

		tag, err := tx.Exec(ctx, `
			UPDATE users
			SET points_balance = points_balance - $2, updated_at = NOW()
			WHERE address = $1 AND points_balance >= $2`,
			lower(ev.Fan), ev.PointsCost)
		if err != nil {
			return fmt.Errorf("debit points: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrInsufficientPoints
		}

		// rewards created elsewhere have no local row; the debit still stands
		_, err = tx.Exec(ctx, `
			UPDATE rewards
			SET current_redemptions = current_redemptions + 1, updated_at = NOW()
			WHERE reward_id = $1`,
			ev.RewardID)
		if err != nil {
			return fmt.Errorf("count redemption: %w", err)
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

func (s *Store) ListTips(ctx context.Context, filter models.TipFilter, page models.Page) ([]models.Tip, int64, error) {
	var where []string
	var args []interface{}
	if filter.Creator != "" {
		args = append(args, lower(filter.Creator))
		where = append(where, fmt.Sprintf("creator_address = $%d", len(args)))
	}
	if filter.Tipper != "" {
		args = append(args, lower(filter.Tipper))
		where = append(where, fmt.Sprintf("tipper_address = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM tips`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count tips: %w", err)
	}

	args = append(args, page.Limit, page.Offset())
	query := fmt.Sprintf(`SELECT %s FROM tips%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		tipColumns, clause, len(args)-1, len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list tips: %w", err)
	}
	defer rows.Close()

	tips := []models.Tip{}
	for rows.Next() {
		t, err := scanTip(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan tip: %w", err)
		}
		tips = append(tips, *t)
	}
	return tips, total, rows.Err()
}

// ListMemberships returns active memberships only.
func (s *Store) ListMemberships(ctx context.Context, filter models.MembershipFilter, page models.Page) ([]models.Membership, int64, error) {
	where := []string{"is_active = TRUE"}
	var args []interface{}
	if filter.Creator != "" {
		args = append(args, lower(filter.Creator))
		where = append(where, fmt.Sprintf("creator_address = $%d", len(args)))
	}
	if filter.Member != "" {
		args = append(args, lower(filter.Member))
		where = append(where, fmt.Sprintf("member_address = $%d", len(args)))
	}
	clause := " WHERE " + strings.Join(where, " AND ")

	var total int64
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM memberships`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count memberships: %w", err)
	}

	args = append(args, page.Limit, page.Offset())
	query := fmt.Sprintf(`SELECT %s FROM memberships%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		membershipColumns, clause, len(args)-1, len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list memberships: %w", err)
	}
	defer rows.Close()

	memberships := []models.Membership{}
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan membership: %w", err)
		}
		memberships = append(memberships, *m)
	}
	return memberships, total, rows.Err()
}

// ExpireMemberships deactivates memberships whose expiry has passed, in the
// memberships table and in the members' history, and returns how many rows
// were deactivated.
func (s *Store) ExpireMemberships(ctx context.Context, now time.Time) (int64, error) {
	var expired int64
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE memberships SET is_active = FALSE
			WHERE is_active AND expires_at <= $1`, now)
		if err != nil {
			return fmt.Errorf("expire memberships: %w", err)
		}
		expired = tag.RowsAffected()
		if expired == 0 {
			return nil
		}

		_, err = tx.Exec(ctx, `
			UPDATE users u
			SET membership_history = (
				SELECT jsonb_agg(
					CASE WHEN (e->>'isActive')::boolean AND (e->>'endDate')::timestamptz <= $1
					     THEN jsonb_set(e, '{isActive}', 'false'::jsonb)
					     ELSE e END)
				FROM jsonb_array_elements(u.membership_history) e
			),
			updated_at = NOW()
			WHERE EXISTS (
				SELECT 1 FROM jsonb_array_elements(u.membership_history) e
				WHERE (e->>'isActive')::boolean AND (e->>'endDate')::timestamptz <= $1
			)`, now)
		if err != nil {
			return fmt.Errorf("expire membership history: %w", err)
		}
		return nil
	})
	return expired, err
}
