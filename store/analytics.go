package store

import (
	"context"
	"fmt"

	"loopfan-backend/models"
)

func (s *Store) CreatorAnalytics(ctx context.Context, address string) (*models.CreatorAnalytics, error) {
	creator := lower(address)
	out := &models.CreatorAnalytics{
		Memberships:     []models.TierMembershipStats{},
		Content:         []models.ContentTypeStats{},
		MonthlyEarnings: []models.MonthlyEarnings{},
	}

	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(amount), 0),
		       COALESCE(array_agg(DISTINCT tipper_address) FILTER (WHERE tipper_address IS NOT NULL), '{}')
		FROM tips WHERE creator_address = $1`, creator,
	).Scan(&out.Tips.TotalTips, &out.Tips.TotalAmount, &out.Tips.UniqueTippers)
	if err != nil {
		return nil, fmt.Errorf("creator tip stats: %w", err)
	}

	rows, err := s.db.Query(ctx, `
		SELECT tier_id, COUNT(*), array_agg(DISTINCT member_address)
		FROM memberships WHERE creator_address = $1 AND is_active
		GROUP BY tier_id ORDER BY tier_id`, creator)
	if err != nil {
		return nil, fmt.Errorf("creator membership stats: %w", err)
	}
	for rows.Next() {
		var m models.TierMembershipStats
		if err := rows.Scan(&m.TierID, &m.Count, &m.Members); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan membership stats: %w", err)
		}
		out.Memberships = append(out.Memberships, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("creator membership stats: %w", err)
	}

	rows, err = s.db.Query(ctx, `
		SELECT content_type, COUNT(*), COALESCE(SUM(views), 0)::bigint, COALESCE(SUM(tip_count), 0)::bigint
		FROM content WHERE creator_address = $1 AND is_active
		GROUP BY content_type ORDER BY content_type`, creator)
	if err != nil {
		return nil, fmt.Errorf("creator content stats: %w", err)
	}
	for rows.Next() {
		var c models.ContentTypeStats
		if err := rows.Scan(&c.ContentType, &c.Count, &c.TotalViews, &c.TotalTips); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan content stats: %w", err)
		}
		out.Content = append(out.Content, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("creator content stats: %w", err)
	}

	rows, err = s.db.Query(ctx, `
		SELECT EXTRACT(YEAR FROM created_at)::int AS year, EXTRACT(MONTH FROM created_at)::int AS month,
		       SUM(amount), COUNT(*)
		FROM tips WHERE creator_address = $1
		GROUP BY year, month
		ORDER BY year DESC, month DESC
		LIMIT 12`, creator)
	if err != nil {
		return nil, fmt.Errorf("creator monthly earnings: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var m models.MonthlyEarnings
		if err := rows.Scan(&m.Year, &m.Month, &m.Earnings, &m.TipCount); err != nil {
			return nil, fmt.Errorf("scan monthly earnings: %w", err)
		}
		out.MonthlyEarnings = append(out.MonthlyEarnings, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("creator monthly earnings: %w", err)
	}
	return out, nil
}

func (s *Store) FanAnalytics(ctx context.Context, address string) (*models.FanAnalytics, error) {
	fan := lower(address)
	out := &models.FanAnalytics{
		Memberships: []models.FanCreatorMemberships{},
		TopCreators: []models.TopCreator{},
	}

	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(amount), 0),
		       COALESCE(array_agg(DISTINCT creator_address) FILTER (WHERE creator_address IS NOT NULL), '{}')
		FROM tips WHERE tipper_address = $1`, fan,
	).Scan(&out.Tips.TotalTips, &out.Tips.TotalAmount, &out.Tips.UniqueCreators)
	if err != nil {
		return nil, fmt.Errorf("fan tip stats: %w", err)
	}

	rows, err := s.db.Query(ctx, `
		SELECT creator_address, tier_id, expires_at
		FROM memberships WHERE member_address = $1 AND is_active
		ORDER BY creator_address, created_at`, fan)
	if err != nil {
		return nil, fmt.Errorf("fan memberships: %w", err)
	}
	index := map[string]int{}
	for rows.Next() {
		var creator string
		var m models.FanMembership
		if err := rows.Scan(&creator, &m.TierID, &m.ExpiresAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan fan membership: %w", err)
		}
		i, ok := index[creator]
		if !ok {
			i = len(out.Memberships)
			index[creator] = i
			out.Memberships = append(out.Memberships, models.FanCreatorMemberships{CreatorAddress: creator})
		}
		out.Memberships[i].Memberships = append(out.Memberships[i].Memberships, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fan memberships: %w", err)
	}

	rows, err = s.db.Query(ctx, `
		SELECT creator_address, SUM(amount) AS total, COUNT(*)
		FROM tips WHERE tipper_address = $1
		GROUP BY creator_address
		ORDER BY total DESC
		LIMIT 10`, fan)
	if err != nil {
		return nil, fmt.Errorf("fan top creators: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var c models.TopCreator
		if err := rows.Scan(&c.CreatorAddress, &c.TotalTipped, &c.TipCount); err != nil {
			return nil, fmt.Errorf("scan top creator: %w", err)
		}
		out.TopCreators = append(out.TopCreators, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fan top creators: %w", err)
	}
	return out, nil
}

func (s *Store) PlatformAnalytics(ctx context.Context) (*models.PlatformAnalytics, error) {
	out := &models.PlatformAnalytics{RecentActivity: []models.Tip{}}

	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE is_creator) FROM users`,
	).Scan(&out.Users.Total, &out.Users.Creators)
	if err != nil {
		return nil, fmt.Errorf("platform users: %w", err)
	}
	out.Users.Fans = out.Users.Total - out.Users.Creators

	err = s.db.QueryRow(ctx, `SELECT COUNT(*), COALESCE(SUM(amount), 0) FROM tips`).
		Scan(&out.Tips.Count, &out.Tips.Volume)
	if err != nil {
		return nil, fmt.Errorf("platform tips: %w", err)
	}

	err = s.db.QueryRow(ctx, `SELECT COUNT(*) FROM memberships WHERE is_active`).Scan(&out.Memberships)
	if err != nil {
		return nil, fmt.Errorf("platform memberships: %w", err)
	}

	err = s.db.QueryRow(ctx, `SELECT COUNT(*) FROM content WHERE is_active`).Scan(&out.Content)
	if err != nil {
		return nil, fmt.Errorf("platform content: %w", err)
	}

	rows, err := s.db.Query(ctx, `SELECT `+tipColumns+` FROM tips ORDER BY created_at DESC, id DESC LIMIT 10`)
	if err != nil {
		return nil, fmt.Errorf("platform recent tips: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		t, err := scanTip(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tip: %w", err)
		}
		out.RecentActivity = append(out.RecentActivity, *t)
	}
	return out, rows.Err()
}
