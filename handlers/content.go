package handlers

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"loopfan-backend/apperrors"
	"loopfan-backend/middleware"
	"loopfan-backend/models"
	"loopfan-backend/store"
)

const (
	viewUpdateTimeout    = 5 * time.Second
	contentHashSuffixLen = 9
)

type ContentStore interface {
	CreateContent(ctx context.Context, c *models.Content) (*models.Content, error)
	GetContent(ctx context.Context, id uuid.UUID) (*models.Content, error)
	ListContent(ctx context.Context, filter models.ContentFilter, page models.Page) ([]models.Content, int64, error)
	IncrementViews(ctx context.Context, id uuid.UUID) error
	SetContentChainTx(ctx context.Context, id uuid.UUID, txHash string) error
}

type ContentChain interface {
	RegisterContent(ctx context.Context, contentHash string, requiredTiers []int64, priceInUSDC decimal.Decimal) (string, error)
	CheckContentAccess(ctx context.Context, user, creator, contentHash string) (bool, error)
}

type ContentHandler struct {
	content ContentStore
	chain   ContentChain
	logger  *zap.Logger
}

func NewContentHandler(content ContentStore, chain ContentChain, logger *zap.Logger) *ContentHandler {
	return &ContentHandler{
		content: content,
		chain:   chain,
		logger:  logger,
	}
}

// newContentHash returns content_<unix ms>_<9 random base36 chars>. It is an
// opaque identifier, not derived from the content bytes.
func newContentHash(now time.Time) (string, error) {
	n, err := rand.Int(rand.Reader, new(big.Int).Exp(big.NewInt(36), big.NewInt(contentHashSuffixLen), nil))
	if err != nil {
		return "", err
	}
	suffix := n.Text(36)
	suffix = strings.Repeat("0", contentHashSuffixLen-len(suffix)) + suffix
	return fmt.Sprintf("content_%d_%s", now.UnixMilli(), suffix), nil
}

func (h *ContentHandler) CreateContent(c *gin.Context) {
	var req models.CreateContentRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, err)
		return
	}
	if req.PriceInUSDC != nil && req.PriceInUSDC.IsNegative() {
		fail(c, apperrors.Validation("Validation failed", apperrors.FieldError{
			Field:   "priceInUSDC",
			Message: "must be a non-negative number",
		}))
		return
	}
	ctx := c.Request.Context()

	hash, err := newContentHash(time.Now())
	if err != nil {
		fail(c, apperrors.Internal("Failed to create content", err))
		return
	}

	content, err := h.content.CreateContent(ctx, &models.Content{
		ID:             uuid.New(),
		CreatorAddress: middleware.CurrentAddress(c),
		Title:          req.Title,
		Description:    req.Description,
		ContentHash:    hash,
		ContentType:    req.ContentType,
		FileURL:        req.FileURL,
		ThumbnailURL:   req.ThumbnailURL,
		IsGated:        *req.IsGated,
		RequiredTiers:  req.RequiredTiers,
		PriceInUSDC:    req.PriceInUSDC,
		IsActive:       true,
		Metadata:       req.Metadata,
	})
	if errors.Is(err, store.ErrDuplicate) {
		fail(c, apperrors.Conflict("Content hash already exists"))
		return
	}
	if err != nil {
		fail(c, apperrors.Internal("Failed to create content", err))
		return
	}

	if content.NeedsChainRegistration() {
		h.registerOnChain(ctx, content)
	}

	respond(c, http.StatusCreated, gin.H{"content": content})
}

// registerOnChain mirrors gated content to the registry. Failures are logged
// and the stored row is kept.
func (h *ContentHandler) registerOnChain(ctx context.Context, content *models.Content) {
	txHash, err := h.chain.RegisterContent(ctx, content.ContentHash, content.RequiredTiers, *content.PriceInUSDC)
	if err != nil {
		h.logger.Warn("Failed to register content on chain",
			zap.String("content_id", content.ID.String()),
			zap.String("content_hash", content.ContentHash),
			zap.Error(err),
		)
		return
	}

	if err := h.content.SetContentChainTx(ctx, content.ID, txHash); err != nil {
		h.logger.Warn("Failed to store content registration tx",
			zap.String("content_id", content.ID.String()),
			zap.String("tx_hash", txHash),
			zap.Error(err),
		)
	}
	content.ChainTxHash = &txHash
}

func (h *ContentHandler) ListContent(c *gin.Context) {
	page := pageQuery(c)
	filter := models.ContentFilter{Creator: c.Query("creator"), Type: c.Query("type")}

	items, total, err := h.content.ListContent(c.Request.Context(), filter, page)
	if err != nil {
		fail(c, apperrors.Internal("Failed to get content", err))
		return
	}

	respond(c, http.StatusOK, gin.H{
		"content":    items,
		"pagination": page.Result(total),
	})
}

func (h *ContentHandler) loadContent(c *gin.Context) (*models.Content, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		fail(c, apperrors.Validation("Invalid content ID"))
		return nil, false
	}

	content, err := h.content.GetContent(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			fail(c, apperrors.NotFound("Content not found"))
			return nil, false
		}
		fail(c, apperrors.Internal("Failed to get content", err))
		return nil, false
	}
	return content, true
}

// GetContent returns the content and counts the view in the background.
func (h *ContentHandler) GetContent(c *gin.Context) {
	content, ok := h.loadContent(c)
	if !ok {
		return
	}

	go func(id uuid.UUID) {
		ctx, cancel := context.WithTimeout(context.Background(), viewUpdateTimeout)
		defer cancel()
		if err := h.content.IncrementViews(ctx, id); err != nil {
			h.logger.Warn("Failed to count content view", zap.String("content_id", id.String()), zap.Error(err))
		}
	}(content.ID)

	respond(c, http.StatusOK, gin.H{"content": content})
}

func (h *ContentHandler) CheckAccess(c *gin.Context) {
	content, ok := h.loadContent(c)
	if !ok {
		return
	}

	if !content.IsGated {
		respond(c, http.StatusOK, models.AccessResult{HasAccess: true, Reason: "Content is not gated"})
		return
	}

	hasAccess, err := h.chain.CheckContentAccess(c.Request.Context(), middleware.CurrentAddress(c), content.CreatorAddress, content.ContentHash)
	if err != nil {
		fail(c, apperrors.Internal("Failed to check access", err))
		return
	}

	reason := "Access denied"
	if hasAccess {
		reason = "Access granted"
	}
	respond(c, http.StatusOK, models.AccessResult{HasAccess: hasAccess, Reason: reason})
}
