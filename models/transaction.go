package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TokenETH is stored as the token of native-currency tips.
const TokenETH = "ETH"

// Tip is one on-chain TipReceived event, unique by transaction hash.
type Tip struct {
	ID              int64            `json:"id" db:"id"`
	TxHash          string           `json:"txHash" db:"tx_hash"`
	BlockNumber     uint64           `json:"blockNumber" db:"block_number"`
	TipperAddress   string           `json:"tipperAddress" db:"tipper_address"`
	CreatorAddress  string           `json:"creatorAddress" db:"creator_address"`
	Amount          decimal.Decimal  `json:"amount" db:"amount"`
	Token           string           `json:"token" db:"token"`
	Message         string           `json:"message" db:"message"`
	ReferrerAddress *string          `json:"referrerAddress,omitempty" db:"referrer_address"`
	ReferralAmount  *decimal.Decimal `json:"referralAmount,omitempty" db:"referral_amount"`
	CreatedAt       time.Time        `json:"createdAt" db:"created_at"`
}

// Membership is one on-chain MembershipMinted event, unique by transaction hash.
type Membership struct {
	ID             int64     `json:"id" db:"id"`
	TxHash         string    `json:"txHash" db:"tx_hash"`
	BlockNumber    uint64    `json:"blockNumber" db:"block_number"`
	MemberAddress  string    `json:"memberAddress" db:"member_address"`
	CreatorAddress string    `json:"creatorAddress" db:"creator_address"`
	TierID         int64     `json:"tierId" db:"tier_id"`
	Duration       int64     `json:"duration" db:"duration"`
	ExpiresAt      time.Time `json:"expiresAt" db:"expires_at"`
	IsActive       bool      `json:"isActive" db:"is_active"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
}

// HistoryEntry is the fan-profile view of a membership.
func (m *Membership) HistoryEntry() MembershipHistoryEntry {
	return MembershipHistoryEntry{
		CreatorAddress: m.CreatorAddress,
		TierID:         m.TierID,
		StartDate:      m.CreatedAt,
		EndDate:        m.ExpiresAt,
		IsActive:       m.IsActive,
	}
}

// ChainEventRef identifies one log of one transaction.
type ChainEventRef struct {
	TxHash      string `json:"txHash"`
	LogIndex    uint   `json:"logIndex"`
	BlockNumber uint64 `json:"blockNumber"`
}

func (r ChainEventRef) Ref() ChainEventRef { return r }

type PointsAward struct {
	ChainEventRef
	Fan    string `json:"fan"`
	Points int64  `json:"points"`
	Reason string `json:"reason"`
}

type RewardRedemption struct {
	ChainEventRef
	Fan        string `json:"fan"`
	RewardID   int64  `json:"rewardId"`
	PointsCost int64  `json:"pointsCost"`
}

type TipFilter struct {
	Creator string
	Tipper  string
}

type MembershipFilter struct {
	Creator string
	Member  string
}
