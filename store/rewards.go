package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"loopfan-backend/models"
)

const rewardColumns = `reward_id, creator_address, points_cost, description, max_redemptions,
	current_redemptions, is_active, chain_tx_hash, created_at, updated_at`

func scanReward(row pgx.Row) (*models.Reward, error) {
	var r models.Reward
	err := row.Scan(
		&r.RewardID,
		&r.CreatorAddress,
		&r.PointsCost,
		&r.Description,
		&r.MaxRedemptions,
		&r.CurrentRedemptions,
		&r.IsActive,
		&r.ChainTxHash,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

// CreateReward stores a reward under the ID the FanRewards contract assigned.
// IDs are global across creators; a repeated ID is ErrDuplicate.
func (s *Store) CreateReward(ctx context.Context, r *models.Reward) (*models.Reward, error) {
	created, err := scanReward(s.db.QueryRow(ctx, `
		INSERT INTO rewards (reward_id, creator_address, points_cost, description, max_redemptions,
			is_active, chain_tx_hash)
		VALUES ($1, $2, $3, $4, $5, TRUE, $6)
		RETURNING `+rewardColumns,
		r.RewardID,
		lower(r.CreatorAddress),
		r.PointsCost,
		r.Description,
		r.MaxRedemptions,
		lower(r.ChainTxHash),
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("create reward: %w", err)
	}
	return created, nil
}

// ListRewards returns active rewards, optionally for one creator.
func (s *Store) ListRewards(ctx context.Context, creator string) ([]models.Reward, error) {
	query := `SELECT ` + rewardColumns + ` FROM rewards WHERE is_active = TRUE`
	var args []interface{}
	if creator != "" {
		query += ` AND creator_address = $1`
		args = append(args, lower(creator))
	}
	query += ` ORDER BY created_at DESC, reward_id DESC`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list rewards: %w", err)
	}
	defer rows.Close()

	rewards := []models.Reward{}
	for rows.Next() {
		r, err := scanReward(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reward: %w", err)
		}
		rewards = append(rewards, *r)
	}
	return rewards, rows.Err()
}
