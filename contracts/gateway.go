package contracts

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"loopfan-backend/config"
	"loopfan-backend/metrics"
)

var (
	ErrNoSigningKey    = errors.New("private key not configured")
	ErrTxReverted      = errors.New("transaction reverted")
	ErrReceiptNotFound = errors.New("transaction receipt not found")
	ErrNoRewardCreated = errors.New("no RewardCreated event in receipt")
)

// TxState is what the node currently knows about a submitted transaction.
type TxState int

const (
	// TxUnknown means the node has neither a receipt nor a pooled copy: the
	// transaction was never broadcast or has been dropped.
	TxUnknown TxState = iota
	TxPending
	TxSucceeded
	TxReverted
)

func (s TxState) String() string {
	switch s {
	case TxPending:
		return "pending"
	case TxSucceeded:
		return "succeeded"
	case TxReverted:
		return "reverted"
	default:
		return "unknown"
	}
}

// Backend is the JSON-RPC surface the gateway needs. *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractBackend
	BlockNumber(ctx context.Context) (uint64, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, txHash common.Hash) (*types.Transaction, bool, error)
}

// Gateway is the only component holding the signing key and contract handles.
type Gateway struct {
	backend      Backend
	closer       func()
	key          *ecdsa.PrivateKey
	chainID      *big.Int
	pollInterval time.Duration
	logger       *zap.Logger

	tipJarAddr     common.Address
	membershipAddr common.Address
	registryAddr   common.Address
	rewardsAddr    common.Address

	tipJar     *bind.BoundContract
	membership *bind.BoundContract
	registry   *bind.BoundContract
	rewards    *bind.BoundContract
}

type TipJarInfo struct {
	Creator        string `json:"creator"`
	ReferralFeeBps int64  `json:"referralFeeBps"`
}

type TierInfo struct {
	Price       decimal.Decimal `json:"price"`
	MaxDuration int64           `json:"maxDuration"`
	IsActive    bool            `json:"isActive"`
}

// CreatedReward is a reward as the FanRewards contract numbered it.
type CreatedReward struct {
	RewardID int64
	TxHash   string
}

type ContentInfo struct {
	RequiredTiers []int64         `json:"requiredTiers"`
	PriceInUSDC   decimal.Decimal `json:"priceInUSDC"`
	IsActive      bool            `json:"isActive"`
}

// NewGateway dials the RPC endpoint and binds the four contracts to one signer.
func NewGateway(ctx context.Context, cfg config.ChainConfig, logger *zap.Logger) (*Gateway, error) {
	if cfg.PrivateKey == "" {
		return nil, ErrNoSigningKey
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum client: %w", err)
	}

	g, err := newGateway(client, key, cfg, logger)
	if err != nil {
		client.Close()
		return nil, err
	}
	g.closer = client.Close

	logger.Info("Blockchain gateway ready",
		zap.String("rpc", cfg.RPCURL),
		zap.Int64("chain_id", cfg.ChainID),
		zap.String("signer", g.SignerAddress()),
	)
	return g, nil
}

func newGateway(backend Backend, key *ecdsa.PrivateKey, cfg config.ChainConfig, logger *zap.Logger) (*Gateway, error) {
	addrs := map[string]string{
		"TIPJAR_CONTRACT_ADDRESS":                 cfg.TipJarAddress,
		"MEMBERSHIP_NFT_CONTRACT_ADDRESS":         cfg.MembershipNFTAddress,
		"GATED_CONTENT_REGISTRY_CONTRACT_ADDRESS": cfg.GatedContentRegistryAddress,
		"FAN_REWARDS_CONTRACT_ADDRESS":            cfg.FanRewardsAddress,
	}
	for name, addr := range addrs {
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("%s is not a valid address: %q", name, addr)
		}
	}

	interval := cfg.EventPollInterval()
	if interval <= 0 {
		interval = 4 * time.Second
	}

	g := &Gateway{
		backend:        backend,
		key:            key,
		chainID:        big.NewInt(cfg.ChainID),
		pollInterval:   interval,
		logger:         logger,
		tipJarAddr:     common.HexToAddress(cfg.TipJarAddress),
		membershipAddr: common.HexToAddress(cfg.MembershipNFTAddress),
		registryAddr:   common.HexToAddress(cfg.GatedContentRegistryAddress),
		rewardsAddr:    common.HexToAddress(cfg.FanRewardsAddress),
	}
	g.tipJar = bind.NewBoundContract(g.tipJarAddr, TipJarABI, backend, backend, backend)
	g.membership = bind.NewBoundContract(g.membershipAddr, MembershipNFTABI, backend, backend, backend)
	g.registry = bind.NewBoundContract(g.registryAddr, GatedContentRegistryABI, backend, backend, backend)
	g.rewards = bind.NewBoundContract(g.rewardsAddr, FanRewardsABI, backend, backend, backend)
	return g, nil
}

// Close releases the RPC connection.
func (g *Gateway) Close() {
	if g.closer != nil {
		g.closer()
	}
}

func (g *Gateway) SignerAddress() string {
	return crypto.PubkeyToAddress(g.key.PublicKey).Hex()
}

func (g *Gateway) call(ctx context.Context, contract *bind.BoundContract, method string, args ...interface{}) ([]interface{}, error) {
	var out []interface{}
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return nil, fmt.Errorf("chain query %s: %w", method, err)
	}
	return out, nil
}

// TipJar

func (g *Gateway) GetTipJarInfo(ctx context.Context) (*TipJarInfo, error) {
	out, err := g.call(ctx, g.tipJar, "creator")
	if err != nil {
		return nil, err
	}
	creator := *abi.ConvertType(out[0], new(common.Address)).(*common.Address)

	out, err = g.call(ctx, g.tipJar, "referralFeeBps")
	if err != nil {
		return nil, err
	}
	bps, err := toInt64(abi.ConvertType(out[0], new(big.Int)).(*big.Int), "referralFeeBps")
	if err != nil {
		return nil, fmt.Errorf("chain query referralFeeBps: %w", err)
	}

	return &TipJarInfo{Creator: creator.Hex(), ReferralFeeBps: bps}, nil
}

// MembershipNFT

func (g *Gateway) GetMembershipTierInfo(ctx context.Context, tierID int64) (*TierInfo, error) {
	out, err := g.call(ctx, g.membership, "getTierInfo", big.NewInt(tierID))
	if err != nil {
		return nil, err
	}
	maxDuration, err := toInt64(abi.ConvertType(out[1], new(big.Int)).(*big.Int), "maxDuration")
	if err != nil {
		return nil, fmt.Errorf("chain query getTierInfo: %w", err)
	}
	return &TierInfo{
		Price:       ToDecimal(abi.ConvertType(out[0], new(big.Int)).(*big.Int), USDCDecimals),
		MaxDuration: maxDuration,
		IsActive:    *abi.ConvertType(out[2], new(bool)).(*bool),
	}, nil
}

func (g *Gateway) GetMembershipBalance(ctx context.Context, user string, tierID int64) (int64, error) {
	out, err := g.call(ctx, g.membership, "balanceOf", common.HexToAddress(user), big.NewInt(tierID))
	if err != nil {
		return 0, err
	}
	balance, err := toInt64(abi.ConvertType(out[0], new(big.Int)).(*big.Int), "balance")
	if err != nil {
		return 0, fmt.Errorf("chain query balanceOf: %w", err)
	}
	return balance, nil
}

// GatedContentRegistry

func (g *Gateway) CheckContentAccess(ctx context.Context, user, creator, contentHash string) (bool, error) {
	out, err := g.call(ctx, g.registry, "hasAccess", common.HexToAddress(user), common.HexToAddress(creator), contentHash)
	if err != nil {
		return false, err
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

func (g *Gateway) GetContentInfo(ctx context.Context, creator, contentHash string) (*ContentInfo, error) {
	out, err := g.call(ctx, g.registry, "getContentInfo", common.HexToAddress(creator), contentHash)
	if err != nil {
		return nil, err
	}

	rawTiers := *abi.ConvertType(out[0], new([]*big.Int)).(*[]*big.Int)
	tiers := make([]int64, 0, len(rawTiers))
	for _, t := range rawTiers {
		tier, err := toInt64(t, "tier")
		if err != nil {
			return nil, fmt.Errorf("chain query getContentInfo: %w", err)
		}
		tiers = append(tiers, tier)
	}

	return &ContentInfo{
		RequiredTiers: tiers,
		PriceInUSDC:   ToDecimal(abi.ConvertType(out[1], new(big.Int)).(*big.Int), USDCDecimals),
		IsActive:      *abi.ConvertType(out[2], new(bool)).(*bool),
	}, nil
}

func (g *Gateway) RegisterContent(ctx context.Context, contentHash string, requiredTiers []int64, priceInUSDC decimal.Decimal) (string, error) {
	price, err := FromDecimal(priceInUSDC, USDCDecimals)
	if err != nil {
		return "", fmt.Errorf("registerContent: %w", err)
	}
	tiers := make([]*big.Int, len(requiredTiers))
	for i, t := range requiredTiers {
		tiers[i] = big.NewInt(t)
	}
	receipt, err := g.transact(ctx, g.registry, "registerContent", contentHash, tiers, price)
	if err != nil {
		return "", err
	}
	return receipt.TxHash.Hex(), nil
}

// FanRewards

func (g *Gateway) GetPointsBalance(ctx context.Context, user string) (int64, error) {
	out, err := g.call(ctx, g.rewards, "getPointsBalance", common.HexToAddress(user))
	if err != nil {
		return 0, err
	}
	balance, err := toInt64(abi.ConvertType(out[0], new(big.Int)).(*big.Int), "points")
	if err != nil {
		return 0, fmt.Errorf("chain query getPointsBalance: %w", err)
	}
	return balance, nil
}

// SubmitAwardPoints signs an awardPoints transaction, hands its hash to record
// and broadcasts only once record succeeds. It does not wait for mining; use
// WaitTx or TxStatus with the returned hash.
func (g *Gateway) SubmitAwardPoints(ctx context.Context, fan string, points int64, reason string, record func(txHash string) error) (hash string, err error) {
	if points <= 0 {
		return "", fmt.Errorf("awardPoints: points must be positive, got %d", points)
	}
	start := time.Now()
	defer func() { metrics.RecordChainWrite("awardPoints", time.Since(start), err) }()

	tx, err := g.sign(ctx, g.rewards, "awardPoints", common.HexToAddress(fan), big.NewInt(points), reason)
	if err != nil {
		return "", err
	}
	hash = tx.Hash().Hex()
	if err := record(hash); err != nil {
		return "", fmt.Errorf("awardPoints: record %s: %w", hash, err)
	}
	if err := g.backend.SendTransaction(ctx, tx); err != nil {
		return hash, fmt.Errorf("awardPoints: send %s: %w", hash, err)
	}
	g.logger.Info("Transaction submitted", zap.String("method", "awardPoints"), zap.String("tx_hash", hash))
	return hash, nil
}

// CreateReward creates a reward on chain and returns the ID the contract assigned.
func (g *Gateway) CreateReward(ctx context.Context, pointsCost int64, description string, maxRedemptions int64) (*CreatedReward, error) {
	receipt, err := g.transact(ctx, g.rewards, "createReward", big.NewInt(pointsCost), description, big.NewInt(maxRedemptions))
	if err != nil {
		return nil, err
	}
	id, err := g.createdRewardID(receipt)
	if err != nil {
		return nil, fmt.Errorf("createReward %s: %w", receipt.TxHash.Hex(), err)
	}
	return &CreatedReward{RewardID: id, TxHash: receipt.TxHash.Hex()}, nil
}

func (g *Gateway) createdRewardID(receipt *types.Receipt) (int64, error) {
	ev := FanRewardsABI.Events["RewardCreated"]
	for _, l := range receipt.Logs {
		if l.Address != g.rewardsAddr || len(l.Topics) < 2 || l.Topics[0] != ev.ID {
			continue
		}
		return toInt64(l.Topics[1].Big(), "rewardId")
	}
	return 0, ErrNoRewardCreated
}

// Utility

func (g *Gateway) GetBlockNumber(ctx context.Context) (uint64, error) {
	n, err := g.backend.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("chain query blockNumber: %w", err)
	}
	return n, nil
}

func (g *Gateway) GetTransactionReceipt(ctx context.Context, txHash string) (*types.Receipt, error) {
	receipt, err := g.backend.TransactionReceipt(ctx, common.HexToHash(txHash))
	if errors.Is(err, ethereum.NotFound) {
		return nil, ErrReceiptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("chain query transactionReceipt: %w", err)
	}
	return receipt, nil
}

// TxStatus looks the transaction up by receipt first, then in the node's pool.
func (g *Gateway) TxStatus(ctx context.Context, txHash string) (TxState, error) {
	hash := common.HexToHash(txHash)
	receipt, err := g.backend.TransactionReceipt(ctx, hash)
	switch {
	case err == nil:
		if receipt.Status == types.ReceiptStatusSuccessful {
			return TxSucceeded, nil
		}
		return TxReverted, nil
	case !errors.Is(err, ethereum.NotFound):
		return TxUnknown, fmt.Errorf("chain query transactionReceipt: %w", err)
	}

	_, _, err = g.backend.TransactionByHash(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return TxUnknown, nil
	}
	if err != nil {
		return TxUnknown, fmt.Errorf("chain query transactionByHash: %w", err)
	}
	return TxPending, nil
}

// WaitTx polls until the transaction is mined or no longer known to the node.
func (g *Gateway) WaitTx(ctx context.Context, txHash string) (TxState, error) {
	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()
	for {
		state, err := g.TxStatus(ctx, txHash)
		if err != nil {
			return state, err
		}
		if state != TxPending {
			return state, nil
		}
		select {
		case <-ctx.Done():
			return TxPending, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (g *Gateway) sign(ctx context.Context, contract *bind.BoundContract, method string, args ...interface{}) (*types.Transaction, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(g.key, g.chainID)
	if err != nil {
		return nil, fmt.Errorf("%s: build transactor: %w", method, err)
	}
	opts.Context = ctx
	opts.NoSend = true

	tx, err := contract.Transact(opts, method, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: sign: %w", method, err)
	}
	return tx, nil
}

// transact signs and submits a call, then blocks until one confirmation.
// There is no retry: a stuck or reverted transaction is returned to the caller.
func (g *Gateway) transact(ctx context.Context, contract *bind.BoundContract, method string, args ...interface{}) (receipt *types.Receipt, err error) {
	start := time.Now()
	defer func() { metrics.RecordChainWrite(method, time.Since(start), err) }()

	tx, err := g.sign(ctx, contract, method, args...)
	if err != nil {
		return nil, err
	}
	hash := tx.Hash().Hex()
	if err := g.backend.SendTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("%s: send: %w", method, err)
	}
	g.logger.Info("Transaction submitted", zap.String("method", method), zap.String("tx_hash", hash))

	receipt, err = bind.WaitMined(ctx, g.backend, tx)
	if err != nil {
		return nil, fmt.Errorf("%s: wait for %s: %w", method, hash, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%s: %w: %s", method, ErrTxReverted, hash)
	}

	g.logger.Info("Transaction confirmed",
		zap.String("method", method),
		zap.String("tx_hash", hash),
		zap.Uint64("block", receipt.BlockNumber.Uint64()),
	)
	return receipt, nil
}
