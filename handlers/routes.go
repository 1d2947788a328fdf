package handlers

import (
	"github.com/gin-gonic/gin"
)

// Handlers groups everything mounted under /api.
type Handlers struct {
	Health     *HealthHandler
	Users      *UserHandler
	Content    *ContentHandler
	Blockchain *BlockchainHandler
	Analytics  *AnalyticsHandler
}

// RegisterRoutes mounts the API. requireAuth guards the routes that need a
// logged-in wallet.
func RegisterRoutes(r *gin.Engine, h Handlers, requireAuth gin.HandlerFunc) {
	r.GET("/health", h.Health.Root)

	api := r.Group("/api")
	api.GET("/health", h.Health.API)

	users := api.Group("/users")
	{
		users.POST("/auth/nonce", h.Users.Nonce)
		users.POST("/auth/verify", h.Users.Verify)
		users.GET("/profile", requireAuth, h.Users.GetProfile)
		users.PUT("/profile", requireAuth, h.Users.UpdateProfile)
		users.GET("/:address", h.Users.GetPublicProfile)
	}

	content := api.Group("/content")
	{
		content.POST("", requireAuth, h.Content.CreateContent)
		content.GET("", h.Content.ListContent)
		content.GET("/:id", h.Content.GetContent)
		content.GET("/:id/access", requireAuth, h.Content.CheckAccess)
	}

	chain := api.Group("/blockchain")
	{
		chain.GET("/tips", h.Blockchain.GetTips)
		chain.GET("/memberships", h.Blockchain.GetMemberships)
		chain.GET("/contract-info", h.Blockchain.GetContractInfo)
		chain.GET("/membership-tiers/:tierId", h.Blockchain.GetTierInfo)
		chain.GET("/membership-balance/:address/:tierId", h.Blockchain.GetMembershipBalance)
		chain.GET("/content-info/:creator/:contentHash", h.Blockchain.GetContentInfo)
		chain.GET("/points/:address", h.Blockchain.GetPointsBalance)
		chain.GET("/tx/:hash", h.Blockchain.GetTransaction)
		chain.POST("/rewards", requireAuth, h.Blockchain.CreateReward)
		chain.GET("/rewards", h.Blockchain.GetRewards)
	}

	analytics := api.Group("/analytics")
	{
		analytics.GET("/creator/:address", h.Analytics.Creator)
		analytics.GET("/fan/:address", h.Analytics.Fan)
		analytics.GET("/platform", h.Analytics.Platform)
	}
}
