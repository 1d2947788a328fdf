package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"loopfan-backend/apperrors"
	"loopfan-backend/auth"
	"loopfan-backend/middleware"
	"loopfan-backend/models"
	"loopfan-backend/store"
)

type UserStore interface {
	FindUser(ctx context.Context, address string) (*models.User, error)
	FindOrCreateUser(ctx context.Context, address string) (*models.User, error)
	UpdateProfile(ctx context.Context, address string, req models.UpdateProfileRequest) (*models.User, error)
}

type TokenIssuer interface {
	Issue(address string) (string, error)
}

type UserHandler struct {
	users  UserStore
	nonces auth.NonceStore
	tokens TokenIssuer
	logger *zap.Logger
}

func NewUserHandler(users UserStore, nonces auth.NonceStore, tokens TokenIssuer, logger *zap.Logger) *UserHandler {
	return &UserHandler{
		users:  users,
		nonces: nonces,
		tokens: tokens,
		logger: logger,
	}
}

// Nonce issues a sign-in challenge bound to the address.
func (h *UserHandler) Nonce(c *gin.Context) {
	var req models.NonceRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, err)
		return
	}

	ch, err := h.nonces.Issue(c.Request.Context(), req.Address)
	if err != nil {
		fail(c, apperrors.Internal("Failed to generate nonce", err))
		return
	}

	respond(c, http.StatusOK, models.NonceResponse{Message: ch.Message, Nonce: ch.Nonce})
}

// Verify checks the signed challenge and logs the wallet in.
func (h *UserHandler) Verify(c *gin.Context) {
	var req models.VerifyRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, err)
		return
	}
	ctx := c.Request.Context()

	if err := auth.VerifySignature(req.Address, req.Message, req.Signature); err != nil {
		fail(c, apperrors.Unauthorized("Invalid signature"))
		return
	}

	if err := h.nonces.Consume(ctx, req.Address, req.Message); err != nil {
		if errors.Is(err, auth.ErrNonceMismatch) {
			fail(c, apperrors.Unauthorized("Invalid signature"))
			return
		}
		fail(c, apperrors.Internal("Authentication failed", err))
		return
	}

	user, err := h.users.FindOrCreateUser(ctx, req.Address)
	if err != nil {
		fail(c, apperrors.Internal("Authentication failed", err))
		return
	}

	token, err := h.tokens.Issue(user.Address)
	if err != nil {
		fail(c, apperrors.Internal("Authentication failed", err))
		return
	}

	h.logger.Info("User authenticated", zap.String("address", user.Address))
	respond(c, http.StatusOK, gin.H{
		"token": token,
		"user": models.AuthUser{
			Address:      user.Address,
			Username:     user.Username,
			IsCreator:    user.IsCreator,
			ProfileImage: user.ProfileImage,
		},
	})
}

func (h *UserHandler) GetProfile(c *gin.Context) {
	user, err := h.users.FindUser(c.Request.Context(), middleware.CurrentAddress(c))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			fail(c, apperrors.NotFound("User not found"))
			return
		}
		fail(c, apperrors.Internal("Failed to get profile", err))
		return
	}

	respond(c, http.StatusOK, gin.H{"user": user})
}

func (h *UserHandler) UpdateProfile(c *gin.Context) {
	var req models.UpdateProfileRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, err)
		return
	}

	user, err := h.users.UpdateProfile(c.Request.Context(), middleware.CurrentAddress(c), req)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicate):
			fail(c, apperrors.Validation("Username or email already taken"))
		case errors.Is(err, store.ErrNotFound):
			fail(c, apperrors.NotFound("User not found"))
		default:
			fail(c, apperrors.Internal("Failed to update profile", err))
		}
		return
	}

	respond(c, http.StatusOK, gin.H{"user": user})
}

// GetPublicProfile shows another user's profile without membership history.
func (h *UserHandler) GetPublicProfile(c *gin.Context) {
	user, err := h.users.FindUser(c.Request.Context(), c.Param("address"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			fail(c, apperrors.NotFound("User not found"))
			return
		}
		fail(c, apperrors.Internal("Failed to get user", err))
		return
	}

	respond(c, http.StatusOK, gin.H{"user": user.Public()})
}
