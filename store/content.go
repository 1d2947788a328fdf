package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"loopfan-backend/models"
)

const contentColumns = `id, creator_address, title, description, content_hash, content_type,
	file_url, thumbnail_url, is_gated, required_tiers, price_usdc, is_active, metadata,
	views, tip_count, tip_amount, chain_tx_hash, created_at, updated_at`

func scanContent(row pgx.Row) (*models.Content, error) {
	var c models.Content
	err := row.Scan(
		&c.ID,
		&c.CreatorAddress,
		&c.Title,
		&c.Description,
		&c.ContentHash,
		&c.ContentType,
		&c.FileURL,
		&c.ThumbnailURL,
		&c.IsGated,
		&c.RequiredTiers,
		&c.PriceInUSDC,
		&c.IsActive,
		&c.Metadata,
		&c.Engagement.Views,
		&c.Engagement.Tips.Count,
		&c.Engagement.Tips.TotalAmount,
		&c.ChainTxHash,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	if c.RequiredTiers == nil {
		c.RequiredTiers = []int64{}
	}
	return &c, nil
}

func (s *Store) CreateContent(ctx context.Context, c *models.Content) (*models.Content, error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	tiers := c.RequiredTiers
	if tiers == nil {
		tiers = []int64{}
	}

	query := `
		INSERT INTO content (id, creator_address, title, description, content_hash, content_type,
			file_url, thumbnail_url, is_gated, required_tiers, price_usdc, is_active, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, TRUE, $12)
		RETURNING ` + contentColumns

	created, err := scanContent(s.db.QueryRow(ctx, query,
		c.ID,
		lower(c.CreatorAddress),
		c.Title,
		c.Description,
		c.ContentHash,
		c.ContentType,
		c.FileURL,
		c.ThumbnailURL,
		c.IsGated,
		tiers,
		c.PriceInUSDC,
		c.Metadata,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("create content: %w", err)
	}
	return created, nil
}

func (s *Store) GetContent(ctx context.Context, id uuid.UUID) (*models.Content, error) {
	query := `SELECT ` + contentColumns + ` FROM content WHERE id = $1`
	c, err := scanContent(s.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get content: %w", err)
	}
	return c, nil
}

// ListContent returns active content, newest first, and the total match count.
func (s *Store) ListContent(ctx context.Context, filter models.ContentFilter, page models.Page) ([]models.Content, int64, error) {
	where := []string{"is_active = TRUE"}
	var args []interface{}
	if filter.Creator != "" {
		args = append(args, lower(filter.Creator))
		where = append(where, fmt.Sprintf("creator_address = $%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		where = append(where, fmt.Sprintf("content_type = $%d", len(args)))
	}
	clause := " WHERE " + strings.Join(where, " AND ")

	var total int64
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM content`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count content: %w", err)
	}

	args = append(args, page.Limit, page.Offset())
	query := fmt.Sprintf(`SELECT %s FROM content%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		contentColumns, clause, len(args)-1, len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list content: %w", err)
	}
	defer rows.Close()

	items := []models.Content{}
	for rows.Next() {
		c, err := scanContent(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan content: %w", err)
		}
		items = append(items, *c)
	}
	return items, total, rows.Err()
}

func (s *Store) IncrementViews(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Exec(ctx, `UPDATE content SET views = views + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("increment views: %w", err)
	}
	return nil
}

func (s *Store) SetContentChainTx(ctx context.Context, id uuid.UUID, txHash string) error {
	_, err := s.db.Exec(ctx, `UPDATE content SET chain_tx_hash = $2, updated_at = NOW() WHERE id = $1`, id, txHash)
	if err != nil {
		return fmt.Errorf("set content tx: %w", err)
	}
	return nil
}
