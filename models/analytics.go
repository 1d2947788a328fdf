package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Pagination is attached to every list response.
type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int64 `json:"pages"`
}

// Page is a validated page request.
type Page struct {
	Page  int
	Limit int
}

func (p Page) Offset() int {
	return (p.Page - 1) * p.Limit
}

func (p Page) Result(total int64) Pagination {
	pages := int64(0)
	if p.Limit > 0 {
		pages = (total + int64(p.Limit) - 1) / int64(p.Limit)
	}
	return Pagination{Page: p.Page, Limit: p.Limit, Total: total, Pages: pages}
}

type CreatorTipStats struct {
	TotalTips     int64           `json:"totalTips"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	UniqueTippers []string        `json:"uniqueTippers"`
}

type TierMembershipStats struct {
	TierID  int64    `json:"tierId"`
	Count   int64    `json:"count"`
	Members []string `json:"members"`
}

type ContentTypeStats struct {
	ContentType string `json:"contentType"`
	Count       int64  `json:"count"`
	TotalViews  int64  `json:"totalViews"`
	TotalTips   int64  `json:"totalTips"`
}

type MonthlyEarnings struct {
	Year     int             `json:"year"`
	Month    int             `json:"month"`
	Earnings decimal.Decimal `json:"earnings"`
	TipCount int64           `json:"tipCount"`
}

type CreatorAnalytics struct {
	Tips            CreatorTipStats       `json:"tips"`
	Memberships     []TierMembershipStats `json:"memberships"`
	Content         []ContentTypeStats    `json:"content"`
	MonthlyEarnings []MonthlyEarnings     `json:"monthlyEarnings"`
}

type FanTipStats struct {
	TotalTips      int64           `json:"totalTips"`
	TotalAmount    decimal.Decimal `json:"totalAmount"`
	UniqueCreators []string        `json:"uniqueCreators"`
}

type FanMembership struct {
	TierID    int64     `json:"tierId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type FanCreatorMemberships struct {
	CreatorAddress string          `json:"creatorAddress"`
	Memberships    []FanMembership `json:"memberships"`
}

type TopCreator struct {
	CreatorAddress string          `json:"creatorAddress"`
	TotalTipped    decimal.Decimal `json:"totalTipped"`
	TipCount       int64           `json:"tipCount"`
}

type FanAnalytics struct {
	Tips        FanTipStats             `json:"tips"`
	Memberships []FanCreatorMemberships `json:"memberships"`
	TopCreators []TopCreator            `json:"topCreators"`
}

type UserCounts struct {
	Total    int64 `json:"total"`
	Creators int64 `json:"creators"`
	Fans     int64 `json:"fans"`
}

type TipVolume struct {
	Count  int64           `json:"count"`
	Volume decimal.Decimal `json:"volume"`
}

type PlatformAnalytics struct {
	Users          UserCounts `json:"users"`
	Tips           TipVolume  `json:"tips"`
	Memberships    int64      `json:"memberships"`
	Content        int64      `json:"content"`
	RecentActivity []Tip      `json:"recentActivity"`
}
