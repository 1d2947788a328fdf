package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"loopfan-backend/apperrors"
	"loopfan-backend/auth"
	"loopfan-backend/models"
	"loopfan-backend/store"
)

// Context keys set by Auth.
const (
	AddressKey   = "address"
	IsCreatorKey = "isCreator"
)

const invalidToken = "Invalid token."

type TokenParser interface {
	Parse(token string) (*auth.Claims, error)
}

type UserFinder interface {
	FindUser(ctx context.Context, address string) (*models.User, error)
}

// Auth requires a valid bearer token for an existing user. Every credential
// failure is reported the same way; a failed user lookup is a server error.
func Auth(tokens TokenParser, users UserFinder, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			reject(c)
			return
		}

		claims, err := tokens.Parse(strings.TrimSpace(token))
		if err != nil {
			logger.Debug("Rejected bearer token", zap.Error(err))
			reject(c)
			return
		}

		user, err := users.FindUser(c.Request.Context(), claims.Address)
		if errors.Is(err, store.ErrNotFound) {
			logger.Debug("Token for unknown user", zap.String("address", claims.Address))
			reject(c)
			return
		}
		if err != nil {
			_ = c.Error(apperrors.Internal("Authentication failed", err))
			c.Abort()
			return
		}

		c.Set(AddressKey, user.Address)
		c.Set(IsCreatorKey, user.IsCreator)
		c.Next()
	}
}

func reject(c *gin.Context) {
	_ = c.Error(apperrors.Unauthorized(invalidToken))
	c.Abort()
}

// CurrentAddress is the lowercase address of the authenticated caller.
func CurrentAddress(c *gin.Context) string {
	return c.GetString(AddressKey)
}

func IsCreator(c *gin.Context) bool {
	return c.GetBool(IsCreatorKey)
}
