package models

import "time"

// Reward is a creator-defined redeemable item. RewardID is the FanRewards contract id.
type Reward struct {
	RewardID           int64     `json:"rewardId" db:"reward_id"`
	CreatorAddress     string    `json:"creatorAddress" db:"creator_address"`
	PointsCost         int64     `json:"pointsCost" db:"points_cost"`
	Description        string    `json:"description" db:"description"`
	MaxRedemptions     int64     `json:"maxRedemptions" db:"max_redemptions"`
	CurrentRedemptions int64     `json:"currentRedemptions" db:"current_redemptions"`
	IsActive           bool      `json:"isActive" db:"is_active"`
	ChainTxHash        string    `json:"chainTxHash,omitempty" db:"chain_tx_hash"`
	CreatedAt          time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt          time.Time `json:"updatedAt" db:"updated_at"`
}

type CreateRewardRequest struct {
	PointsCost     int64  `json:"pointsCost" binding:"required,min=1"`
	Description    string `json:"description" binding:"required,max=500"`
	MaxRedemptions int64  `json:"maxRedemptions" binding:"required,min=1"`
}
