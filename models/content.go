package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Content type constants
const (
	ContentTypeVideo      = "video"
	ContentTypeAudio      = "audio"
	ContentTypeImage      = "image"
	ContentTypeText       = "text"
	ContentTypeLivestream = "livestream"
)

type Content struct {
	ID             uuid.UUID        `json:"id" db:"id"`
	CreatorAddress string           `json:"creatorAddress" db:"creator_address"`
	Title          string           `json:"title" db:"title"`
	Description    string           `json:"description" db:"description"`
	ContentHash    string           `json:"contentHash" db:"content_hash"`
	ContentType    string           `json:"contentType" db:"content_type"`
	FileURL        *string          `json:"fileUrl,omitempty" db:"file_url"`
	ThumbnailURL   *string          `json:"thumbnailUrl,omitempty" db:"thumbnail_url"`
	IsGated        bool             `json:"isGated" db:"is_gated"`
	RequiredTiers  []int64          `json:"requiredTiers" db:"required_tiers"`
	PriceInUSDC    *decimal.Decimal `json:"priceInUSDC,omitempty" db:"price_usdc"`
	IsActive       bool             `json:"isActive" db:"is_active"`
	Metadata       ContentMetadata  `json:"metadata" db:"metadata"`
	Engagement     Engagement       `json:"engagement"`
	ChainTxHash    *string          `json:"chainTxHash,omitempty" db:"chain_tx_hash"`
	CreatedAt      time.Time        `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time        `json:"updatedAt" db:"updated_at"`
}

type ContentMetadata struct {
	Duration   *float64    `json:"duration,omitempty"`
	FileSize   *int64      `json:"fileSize,omitempty"`
	Dimensions *Dimensions `json:"dimensions,omitempty"`
}

type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Engagement counters are informational; tip stats are not linked to the tips table.
type Engagement struct {
	Views int64    `json:"views" db:"views"`
	Tips  TipStats `json:"tips"`
}

type TipStats struct {
	Count       int64           `json:"count" db:"tip_count"`
	TotalAmount decimal.Decimal `json:"totalAmount" db:"tip_amount"`
}

// NeedsChainRegistration reports whether the content must be mirrored to the
// gated content registry.
func (c *Content) NeedsChainRegistration() bool {
	return c.IsGated && len(c.RequiredTiers) > 0 && c.PriceInUSDC != nil && c.PriceInUSDC.IsPositive()
}

type CreateContentRequest struct {
	Title         string           `json:"title" binding:"required,min=1,max=200"`
	Description   string           `json:"description" binding:"max=2000"`
	ContentType   string           `json:"contentType" binding:"required,oneof=video audio image text livestream"`
	FileURL       *string          `json:"fileUrl" binding:"omitempty,max=2048"`
	ThumbnailURL  *string          `json:"thumbnailUrl" binding:"omitempty,max=2048"`
	IsGated       *bool            `json:"isGated" binding:"required"`
	RequiredTiers []int64          `json:"requiredTiers" binding:"omitempty,dive,min=0"`
	PriceInUSDC   *decimal.Decimal `json:"priceInUSDC"`
	Metadata      ContentMetadata  `json:"metadata"`
}

type ContentFilter struct {
	Creator string
	Type    string
}

type AccessResult struct {
	HasAccess bool   `json:"hasAccess"`
	Reason    string `json:"reason"`
}
