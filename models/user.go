package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// User is keyed by its lowercase wallet address.
type User struct {
	Address        string          `json:"address" db:"address"`
	Email          *string         `json:"email,omitempty" db:"email"`
	Username       *string         `json:"username,omitempty" db:"username"`
	Bio            *string         `json:"bio,omitempty" db:"bio"`
	ProfileImage   *string         `json:"profileImage,omitempty" db:"profile_image"`
	IsCreator      bool            `json:"isCreator" db:"is_creator"`
	CreatorProfile *CreatorProfile `json:"creatorProfile,omitempty" db:"creator_profile"`
	FanProfile     FanProfile      `json:"fanProfile"`
	CreatedAt      time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time       `json:"updatedAt" db:"updated_at"`
}

type CreatorProfile struct {
	DisplayName     string           `json:"displayName"`
	Description     string           `json:"description"`
	SocialLinks     SocialLinks      `json:"socialLinks"`
	MembershipTiers []MembershipTier `json:"membershipTiers" binding:"omitempty,dive"`
}

type SocialLinks struct {
	Twitter   string `json:"twitter,omitempty"`
	Instagram string `json:"instagram,omitempty"`
	Youtube   string `json:"youtube,omitempty"`
	Website   string `json:"website,omitempty"`
}

type MembershipTier struct {
	ID          int64           `json:"id" binding:"min=0"`
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	MaxDuration int64           `json:"maxDuration" binding:"min=0"`
	Benefits    []string        `json:"benefits"`
	IsActive    bool            `json:"isActive"`
}

type FanProfile struct {
	PointsBalance     int64                    `json:"pointsBalance" db:"points_balance"`
	TotalTipsGiven    decimal.Decimal          `json:"totalTipsGiven" db:"total_tips_given"`
	MembershipHistory []MembershipHistoryEntry `json:"membershipHistory" db:"membership_history"`
}

type MembershipHistoryEntry struct {
	CreatorAddress string    `json:"creatorAddress"`
	TierID         int64     `json:"tierId"`
	StartDate      time.Time `json:"startDate"`
	EndDate        time.Time `json:"endDate"`
	IsActive       bool      `json:"isActive"`
}

// PublicUser is the profile shown to other users; membership history stays private.
type PublicUser struct {
	Address        string          `json:"address"`
	Username       *string         `json:"username,omitempty"`
	Bio            *string         `json:"bio,omitempty"`
	ProfileImage   *string         `json:"profileImage,omitempty"`
	IsCreator      bool            `json:"isCreator"`
	CreatorProfile *CreatorProfile `json:"creatorProfile,omitempty"`
	FanProfile     struct {
		PointsBalance  int64           `json:"pointsBalance"`
		TotalTipsGiven decimal.Decimal `json:"totalTipsGiven"`
	} `json:"fanProfile"`
	CreatedAt time.Time `json:"createdAt"`
}

func (u *User) Public() PublicUser {
	p := PublicUser{
		Address:        u.Address,
		Username:       u.Username,
		Bio:            u.Bio,
		ProfileImage:   u.ProfileImage,
		IsCreator:      u.IsCreator,
		CreatorProfile: u.CreatorProfile,
		CreatedAt:      u.CreatedAt,
	}
	p.FanProfile.PointsBalance = u.FanProfile.PointsBalance
	p.FanProfile.TotalTipsGiven = u.FanProfile.TotalTipsGiven
	return p
}

// AuthUser is the compact user summary returned on login.
type AuthUser struct {
	Address      string  `json:"address"`
	Username     *string `json:"username,omitempty"`
	IsCreator    bool    `json:"isCreator"`
	ProfileImage *string `json:"profileImage,omitempty"`
}

type NonceRequest struct {
	Address string `json:"address" binding:"required,eth_addr"`
}

type NonceResponse struct {
	Message string `json:"message"`
	Nonce   int64  `json:"nonce"`
}

type VerifyRequest struct {
	Address   string `json:"address" binding:"required,eth_addr"`
	Signature string `json:"signature" binding:"required"`
	Message   string `json:"message" binding:"required"`
}

// UpdateProfileRequest only touches fields that are present in the body.
type UpdateProfileRequest struct {
	Username       *string         `json:"username" binding:"omitempty,min=3,max=30"`
	Bio            *string         `json:"bio" binding:"omitempty,max=500"`
	Email          *string         `json:"email" binding:"omitempty,email"`
	ProfileImage   *string         `json:"profileImage" binding:"omitempty,max=2048"`
	IsCreator      *bool           `json:"isCreator"`
	CreatorProfile *CreatorProfile `json:"creatorProfile"`
}
