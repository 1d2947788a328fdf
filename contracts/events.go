package contracts

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"loopfan-backend/models"
)

// Reward event types
const (
	RewardEventPointsAwarded  = "PointsAwarded"
	RewardEventRewardRedeemed = "RewardRedeemed"
)

// maxBlockRange bounds a single eth_getLogs request.
const maxBlockRange = 2000

// WatchOptions selects where a registrar starts reading. A nil FromBlock starts
// after the current head, so only new events are delivered.
type WatchOptions struct {
	FromBlock *uint64
}

type TipEvent struct {
	models.ChainEventRef
	Tipper         string
	Amount         decimal.Decimal
	Token          string
	Message        string
	Referrer       string
	ReferralAmount decimal.Decimal
}

type MembershipEvent struct {
	models.ChainEventRef
	Member    string
	TierID    int64
	Duration  int64
	ExpiresAt int64
}

// RewardEvent carries either a PointsAwarded or a RewardRedeemed log; Type says which.
type RewardEvent struct {
	models.ChainEventRef
	Type       string
	Fan        string
	Points     int64
	Reason     string
	RewardID   int64
	PointsCost int64
}

type tipReceivedLog struct {
	Tipper         common.Address
	Amount         *big.Int
	Token          common.Address
	Message        string
	Referrer       common.Address
	ReferralAmount *big.Int
}

type membershipMintedLog struct {
	Member    common.Address
	TierId    *big.Int
	Duration  *big.Int
	ExpiresAt *big.Int
}

type pointsAwardedLog struct {
	Fan    common.Address
	Points *big.Int
	Reason string
}

type rewardRedeemedLog struct {
	Fan        common.Address
	RewardId   *big.Int
	PointsCost *big.Int
}

func refOf(l types.Log) models.ChainEventRef {
	return models.ChainEventRef{TxHash: l.TxHash.Hex(), LogIndex: l.Index, BlockNumber: l.BlockNumber}
}

// ListenForTips delivers every TipReceived log to fn. Amounts are converted
// with 18 decimals for native tips and 6 for token (USDC) tips.
func (g *Gateway) ListenForTips(ctx context.Context, opts WatchOptions, fn func(TipEvent)) (event.Subscription, error) {
	topics := []common.Hash{TipJarABI.Events["TipReceived"].ID}
	return g.watch(ctx, "tips", g.tipJarAddr, topics, opts, func(l types.Log) error {
		ev, err := g.decodeTip(l)
		if err != nil {
			return err
		}
		fn(ev)
		return nil
	})
}

func (g *Gateway) decodeTip(l types.Log) (TipEvent, error) {
	var raw tipReceivedLog
	if err := g.tipJar.UnpackLog(&raw, "TipReceived", l); err != nil {
		return TipEvent{}, fmt.Errorf("decode TipReceived: %w", err)
	}

	token := models.TokenETH
	var decimals int32 = EtherDecimals
	if raw.Token != (common.Address{}) {
		token = strings.ToLower(raw.Token.Hex())
		decimals = USDCDecimals
	}

	return TipEvent{
		ChainEventRef:  refOf(l),
		Tipper:         raw.Tipper.Hex(),
		Amount:         ToDecimal(raw.Amount, decimals),
		Token:          token,
		Message:        raw.Message,
		Referrer:       raw.Referrer.Hex(),
		ReferralAmount: ToDecimal(raw.ReferralAmount, decimals),
	}, nil
}

func (g *Gateway) ListenForMemberships(ctx context.Context, opts WatchOptions, fn func(MembershipEvent)) (event.Subscription, error) {
	topics := []common.Hash{MembershipNFTABI.Events["MembershipMinted"].ID}
	return g.watch(ctx, "memberships", g.membershipAddr, topics, opts, func(l types.Log) error {
		ev, err := g.decodeMembership(l)
		if err != nil {
			return err
		}
		fn(ev)
		return nil
	})
}

func (g *Gateway) decodeMembership(l types.Log) (MembershipEvent, error) {
	var raw membershipMintedLog
	if err := g.membership.UnpackLog(&raw, "MembershipMinted", l); err != nil {
		return MembershipEvent{}, fmt.Errorf("decode MembershipMinted: %w", err)
	}

	ev := MembershipEvent{ChainEventRef: refOf(l), Member: raw.Member.Hex()}
	var err error
	if ev.TierID, err = toInt64(raw.TierId, "tierId"); err != nil {
		return ev, err
	}
	if ev.Duration, err = toInt64(raw.Duration, "duration"); err != nil {
		return ev, err
	}
	if ev.ExpiresAt, err = toInt64(raw.ExpiresAt, "expiresAt"); err != nil {
		return ev, err
	}
	return ev, nil
}

// ListenForRewards delivers both PointsAwarded and RewardRedeemed logs of the
// fan-rewards contract through one handle.
func (g *Gateway) ListenForRewards(ctx context.Context, opts WatchOptions, fn func(RewardEvent)) (event.Subscription, error) {
	topics := []common.Hash{
		FanRewardsABI.Events[RewardEventPointsAwarded].ID,
		FanRewardsABI.Events[RewardEventRewardRedeemed].ID,
	}
	return g.watch(ctx, "rewards", g.rewardsAddr, topics, opts, func(l types.Log) error {
		ev, err := g.decodeReward(l)
		if err != nil {
			return err
		}
		fn(ev)
		return nil
	})
}

func (g *Gateway) decodeReward(l types.Log) (RewardEvent, error) {
	if len(l.Topics) == 0 {
		return RewardEvent{}, fmt.Errorf("reward log without topics")
	}
	ev := RewardEvent{ChainEventRef: refOf(l)}
	var err error

	switch l.Topics[0] {
	case FanRewardsABI.Events[RewardEventPointsAwarded].ID:
		var raw pointsAwardedLog
		if err := g.rewards.UnpackLog(&raw, RewardEventPointsAwarded, l); err != nil {
			return ev, fmt.Errorf("decode PointsAwarded: %w", err)
		}
		ev.Type = RewardEventPointsAwarded
		ev.Fan = raw.Fan.Hex()
		ev.Reason = raw.Reason
		ev.Points, err = toInt64(raw.Points, "points")
	case FanRewardsABI.Events[RewardEventRewardRedeemed].ID:
		var raw rewardRedeemedLog
		if err := g.rewards.UnpackLog(&raw, RewardEventRewardRedeemed, l); err != nil {
			return ev, fmt.Errorf("decode RewardRedeemed: %w", err)
		}
		ev.Type = RewardEventRewardRedeemed
		ev.Fan = raw.Fan.Hex()
		if ev.RewardID, err = toInt64(raw.RewardId, "rewardId"); err != nil {
			return ev, err
		}
		ev.PointsCost, err = toInt64(raw.PointsCost, "pointsCost")
	default:
		return ev, fmt.Errorf("unknown reward event topic %s", l.Topics[0].Hex())
	}
	return ev, err
}

// watch starts a log poller for one contract. The returned subscription stops
// the poller on Unsubscribe; it never fails on its own, RPC errors are logged
// and the range is retried on the next tick.
func (g *Gateway) watch(ctx context.Context, stream string, address common.Address, topics []common.Hash, opts WatchOptions, deliver func(types.Log) error) (event.Subscription, error) {
	var next uint64
	if opts.FromBlock != nil {
		next = *opts.FromBlock
	} else {
		head, err := g.backend.BlockNumber(ctx)
		if err != nil {
			return nil, fmt.Errorf("listen %s: %w", stream, err)
		}
		next = head + 1
	}

	logger := g.logger.With(zap.String("stream", stream), zap.String("contract", address.Hex()))
	query := ethereum.FilterQuery{
		Addresses: []common.Address{address},
		Topics:    [][]common.Hash{topics},
	}

	sub := event.NewSubscription(func(quit <-chan struct{}) error {
		pollCtx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			<-quit
			cancel()
		}()

		ticker := time.NewTicker(g.pollInterval)
		defer ticker.Stop()

		for {
			n, err := g.poll(pollCtx, query, next, deliver, logger)
			if err != nil && pollCtx.Err() == nil {
				logger.Warn("Log poll failed", zap.Uint64("from", next), zap.Error(err))
			}
			next = n

			select {
			case <-quit:
				return nil
			case <-ticker.C:
			}
		}
	})

	logger.Info("Started listening for events", zap.Uint64("from_block", next))
	return sub, nil
}

// poll fetches logs in [from, head] and returns the next block to read. On an
// RPC error it returns the first block that has not been fully delivered.
func (g *Gateway) poll(ctx context.Context, query ethereum.FilterQuery, from uint64, deliver func(types.Log) error, logger *zap.Logger) (uint64, error) {
	head, err := g.backend.BlockNumber(ctx)
	if err != nil {
		return from, err
	}

	for from <= head {
		to := from + maxBlockRange - 1
		if to > head {
			to = head
		}
		query.FromBlock = new(big.Int).SetUint64(from)
		query.ToBlock = new(big.Int).SetUint64(to)

		logs, err := g.backend.FilterLogs(ctx, query)
		if err != nil {
			return from, err
		}
		for _, l := range logs {
			if l.Removed {
				continue
			}
			if err := deliver(l); err != nil {
				logger.Error("Dropping undecodable log",
					zap.String("tx_hash", l.TxHash.Hex()),
					zap.Uint("log_index", l.Index),
					zap.Error(err),
				)
			}
		}
		from = to + 1
	}
	return from, nil
}

var _ bind.ContractFilterer = (Backend)(nil)
