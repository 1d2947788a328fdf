package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"loopfan-backend/models"
)

const userColumns = `address, email, username, bio, profile_image, is_creator, creator_profile,
	points_balance, total_tips_given, membership_history, created_at, updated_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(
		&u.Address,
		&u.Email,
		&u.Username,
		&u.Bio,
		&u.ProfileImage,
		&u.IsCreator,
		&u.CreatorProfile,
		&u.FanProfile.PointsBalance,
		&u.FanProfile.TotalTipsGiven,
		&u.FanProfile.MembershipHistory,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	if u.FanProfile.MembershipHistory == nil {
		u.FanProfile.MembershipHistory = []models.MembershipHistoryEntry{}
	}
	return &u, nil
}

func (s *Store) FindUser(ctx context.Context, address string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE address = $1`
	u, err := scanUser(s.db.QueryRow(ctx, query, lower(address)))
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}

// FindOrCreateUser returns the user for address, inserting a blank fan profile
// on first sight.
func (s *Store) FindOrCreateUser(ctx context.Context, address string) (*models.User, error) {
	query := `
		INSERT INTO users (address)
		VALUES ($1)
		ON CONFLICT (address) DO UPDATE SET address = EXCLUDED.address
		RETURNING ` + userColumns

	u, err := scanUser(s.db.QueryRow(ctx, query, lower(address)))
	if err != nil {
		return nil, fmt.Errorf("find or create user: %w", err)
	}
	return u, nil
}

// UpdateProfile applies the fields present in req. A username or email that
// belongs to another user yields ErrDuplicate.
func (s *Store) UpdateProfile(ctx context.Context, address string, req models.UpdateProfileRequest) (*models.User, error) {
	query := `
		UPDATE users
		SET username = COALESCE($2, username),
		    bio = COALESCE($3, bio),
		    email = COALESCE($4, email),
		    profile_image = COALESCE($5, profile_image),
		    is_creator = COALESCE($6, is_creator),
		    creator_profile = COALESCE($7, creator_profile),
		    updated_at = NOW()
		WHERE address = $1
		RETURNING ` + userColumns

	var email *string
	if req.Email != nil {
		e := lower(*req.Email)
		email = &e
	}

	u, err := scanUser(s.db.QueryRow(ctx, query,
		lower(address),
		req.Username,
		req.Bio,
		email,
		req.ProfileImage,
		req.IsCreator,
		req.CreatorProfile,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return u, nil
}
