package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"loopfan-backend/apperrors"
	"loopfan-backend/config"
	"loopfan-backend/contracts"
	"loopfan-backend/middleware"
	"loopfan-backend/models"
)

type LedgerStore interface {
	ListTips(ctx context.Context, filter models.TipFilter, page models.Page) ([]models.Tip, int64, error)
	ListMemberships(ctx context.Context, filter models.MembershipFilter, page models.Page) ([]models.Membership, int64, error)
	CreateReward(ctx context.Context, r *models.Reward) (*models.Reward, error)
	ListRewards(ctx context.Context, creator string) ([]models.Reward, error)
}

type Chain interface {
	GetTipJarInfo(ctx context.Context) (*contracts.TipJarInfo, error)
	GetBlockNumber(ctx context.Context) (uint64, error)
	GetMembershipTierInfo(ctx context.Context, tierID int64) (*contracts.TierInfo, error)
	GetMembershipBalance(ctx context.Context, user string, tierID int64) (int64, error)
	GetContentInfo(ctx context.Context, creator, contentHash string) (*contracts.ContentInfo, error)
	GetPointsBalance(ctx context.Context, user string) (int64, error)
	GetTransactionReceipt(ctx context.Context, txHash string) (*types.Receipt, error)
	CreateReward(ctx context.Context, pointsCost int64, description string, maxRedemptions int64) (*contracts.CreatedReward, error)
}

type BlockchainHandler struct {
	ledger LedgerStore
	chain  Chain
	cfg    config.ChainConfig
	logger *zap.Logger
}

func NewBlockchainHandler(ledger LedgerStore, chain Chain, cfg config.ChainConfig, logger *zap.Logger) *BlockchainHandler {
	return &BlockchainHandler{
		ledger: ledger,
		chain:  chain,
		cfg:    cfg,
		logger: logger,
	}
}

type receiptView struct {
	Status      uint64 `json:"status"`
	BlockNumber uint64 `json:"blockNumber"`
	GasUsed     uint64 `json:"gasUsed"`
	TxHash      string `json:"txHash"`
}

func addressParam(c *gin.Context, name string) (string, bool) {
	addr := c.Param(name)
	if !common.IsHexAddress(addr) {
		fail(c, apperrors.Validation("Invalid address"))
		return "", false
	}
	return addr, true
}

func tierParam(c *gin.Context) (int64, bool) {
	tierID, err := strconv.ParseInt(c.Param("tierId"), 10, 64)
	if err != nil || tierID < 0 {
		fail(c, apperrors.Validation("Invalid tier ID"))
		return 0, false
	}
	return tierID, true
}

func (h *BlockchainHandler) GetTips(c *gin.Context) {
	page := pageQuery(c)
	filter := models.TipFilter{Creator: c.Query("creator"), Tipper: c.Query("tipper")}

	tips, total, err := h.ledger.ListTips(c.Request.Context(), filter, page)
	if err != nil {
		fail(c, apperrors.Internal("Failed to get tips", err))
		return
	}

	respond(c, http.StatusOK, gin.H{
		"tips":       tips,
		"pagination": page.Result(total),
	})
}

func (h *BlockchainHandler) GetMemberships(c *gin.Context) {
	page := pageQuery(c)
	filter := models.MembershipFilter{Creator: c.Query("creator"), Member: c.Query("member")}

	memberships, total, err := h.ledger.ListMemberships(c.Request.Context(), filter, page)
	if err != nil {
		fail(c, apperrors.Internal("Failed to get memberships", err))
		return
	}

	respond(c, http.StatusOK, gin.H{
		"memberships": memberships,
		"pagination":  page.Result(total),
	})
}

func (h *BlockchainHandler) GetContractInfo(c *gin.Context) {
	ctx := c.Request.Context()

	tipJar, err := h.chain.GetTipJarInfo(ctx)
	if err != nil {
		fail(c, apperrors.Internal("Failed to get contract info", err))
		return
	}
	blockNumber, err := h.chain.GetBlockNumber(ctx)
	if err != nil {
		fail(c, apperrors.Internal("Failed to get contract info", err))
		return
	}

	respond(c, http.StatusOK, gin.H{
		"tipJar":      tipJar,
		"blockNumber": blockNumber,
		"network":     h.cfg.NetworkName,
		"chainId":     h.cfg.ChainID,
	})
}

func (h *BlockchainHandler) GetTierInfo(c *gin.Context) {
	tierID, ok := tierParam(c)
	if !ok {
		return
	}

	info, err := h.chain.GetMembershipTierInfo(c.Request.Context(), tierID)
	if err != nil {
		fail(c, apperrors.Internal("Failed to get tier info", err))
		return
	}

	respond(c, http.StatusOK, gin.H{"tierInfo": info})
}

func (h *BlockchainHandler) GetMembershipBalance(c *gin.Context) {
	addr, ok := addressParam(c, "address")
	if !ok {
		return
	}
	tierID, ok := tierParam(c)
	if !ok {
		return
	}

	balance, err := h.chain.GetMembershipBalance(c.Request.Context(), addr, tierID)
	if err != nil {
		fail(c, apperrors.Internal("Failed to get membership balance", err))
		return
	}

	respond(c, http.StatusOK, gin.H{"balance": balance})
}

func (h *BlockchainHandler) GetContentInfo(c *gin.Context) {
	creator, ok := addressParam(c, "creator")
	if !ok {
		return
	}

	info, err := h.chain.GetContentInfo(c.Request.Context(), creator, c.Param("contentHash"))
	if err != nil {
		fail(c, apperrors.Internal("Failed to get content info", err))
		return
	}

	respond(c, http.StatusOK, gin.H{"contentInfo": info})
}

func (h *BlockchainHandler) GetPointsBalance(c *gin.Context) {
	addr, ok := addressParam(c, "address")
	if !ok {
		return
	}

	balance, err := h.chain.GetPointsBalance(c.Request.Context(), addr)
	if err != nil {
		fail(c, apperrors.Internal("Failed to get points balance", err))
		return
	}

	respond(c, http.StatusOK, gin.H{"pointsBalance": balance})
}

func (h *BlockchainHandler) GetTransaction(c *gin.Context) {
	hash := c.Param("hash")
	if len(hash) != 2+2*common.HashLength || !strings.HasPrefix(hash, "0x") {
		fail(c, apperrors.Validation("Invalid transaction hash"))
		return
	}

	receipt, err := h.chain.GetTransactionReceipt(c.Request.Context(), hash)
	if err != nil {
		if errors.Is(err, contracts.ErrReceiptNotFound) {
			fail(c, apperrors.NotFound("Transaction not found"))
			return
		}
		fail(c, apperrors.Internal("Failed to get transaction", err))
		return
	}

	var blockNumber uint64
	if receipt.BlockNumber != nil {
		blockNumber = receipt.BlockNumber.Uint64()
	}
	respond(c, http.StatusOK, gin.H{"receipt": receiptView{
		Status:      receipt.Status,
		BlockNumber: blockNumber,
		GasUsed:     receipt.GasUsed,
		TxHash:      receipt.TxHash.Hex(),
	}})
}

// CreateReward defines the reward on chain first and stores it under the ID the
// contract assigned once the transaction is mined.
func (h *BlockchainHandler) CreateReward(c *gin.Context) {
	if !middleware.IsCreator(c) {
		fail(c, apperrors.Forbidden("Only creators can create rewards"))
		return
	}

	var req models.CreateRewardRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, err)
		return
	}
	ctx := c.Request.Context()

	created, err := h.chain.CreateReward(ctx, req.PointsCost, req.Description, req.MaxRedemptions)
	if err != nil {
		fail(c, apperrors.Internal("Failed to create reward", err))
		return
	}

	reward, err := h.ledger.CreateReward(ctx, &models.Reward{
		RewardID:       created.RewardID,
		CreatorAddress: middleware.CurrentAddress(c),
		PointsCost:     req.PointsCost,
		Description:    req.Description,
		MaxRedemptions: req.MaxRedemptions,
		IsActive:       true,
		ChainTxHash:    created.TxHash,
	})
	if err != nil {
		h.logger.Error("Reward created on chain but not stored",
			zap.Int64("reward_id", created.RewardID),
			zap.String("tx_hash", created.TxHash),
			zap.Error(err),
		)
		fail(c, apperrors.Internal("Failed to create reward", err))
		return
	}

	respond(c, http.StatusCreated, gin.H{
		"reward": reward,
		"txHash": created.TxHash,
	})
}

func (h *BlockchainHandler) GetRewards(c *gin.Context) {
	rewards, err := h.ledger.ListRewards(c.Request.Context(), c.Query("creator"))
	if err != nil {
		fail(c, apperrors.Internal("Failed to get rewards", err))
		return
	}

	respond(c, http.StatusOK, gin.H{"rewards": rewards})
}
