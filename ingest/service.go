// Package ingest turns contract logs into ledger rows and drives the on-chain
// side effects they imply.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"loopfan-backend/contracts"
	"loopfan-backend/metrics"
	"loopfan-backend/models"
	"loopfan-backend/store"
)

// pointsPerUnit is how many reward points one whole ETH or USDC of tips earns.
var pointsPerUnit = decimal.NewFromInt(10)

// Event results reported to metrics.
const (
	resultStored    = "stored"
	resultDuplicate = "duplicate"
	resultRejected  = "rejected"
	resultFailed    = "failed"
)

type Ledger interface {
	LoadCursor(ctx context.Context, stream string) (uint64, bool, error)
	SaveCursor(ctx context.Context, stream string, block uint64) error
	RecordTip(ctx context.Context, tip *models.Tip, award *models.OutboxEntry) (bool, error)
	RecordMembership(ctx context.Context, m *models.Membership) (bool, error)
	ApplyPointsAwarded(ctx context.Context, ev models.PointsAward) (bool, error)
	ApplyRewardRedeemed(ctx context.Context, ev models.RewardRedemption) (bool, error)
}

type Chain interface {
	GetTipJarInfo(ctx context.Context) (*contracts.TipJarInfo, error)
	ListenForTips(ctx context.Context, opts contracts.WatchOptions, fn func(contracts.TipEvent)) (event.Subscription, error)
	ListenForMemberships(ctx context.Context, opts contracts.WatchOptions, fn func(contracts.MembershipEvent)) (event.Subscription, error)
	ListenForRewards(ctx context.Context, opts contracts.WatchOptions, fn func(contracts.RewardEvent)) (event.Subscription, error)
}

// Service keeps one subscription per contract stream while running.
type Service struct {
	ledger     Ledger
	chain      Chain
	dispatcher *Dispatcher
	logger     *zap.Logger

	mu      sync.Mutex
	running bool
	creator string
	subs    []event.Subscription
	cancel  context.CancelFunc
	ctx     context.Context
}

func NewService(ledger Ledger, chain Chain, dispatcher *Dispatcher, logger *zap.Logger) *Service {
	return &Service{
		ledger:     ledger,
		chain:      chain,
		dispatcher: dispatcher,
		logger:     logger.Named("ingest"),
	}
}

// Start subscribes to the three contract streams, resuming each from its saved
// cursor. If any subscription fails, the ones already made are released.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.logger.Warn("Event listener already running")
		return nil
	}

	info, err := s.chain.GetTipJarInfo(ctx)
	if err != nil {
		return fmt.Errorf("resolve tip jar creator: %w", err)
	}
	s.creator = strings.ToLower(info.Creator)

	s.ctx, s.cancel = context.WithCancel(context.Background())

	var subs []event.Subscription
	release := func() {
		for _, sub := range subs {
			sub.Unsubscribe()
		}
		s.cancel()
	}

	opts, err := s.watchOptions(ctx, store.StreamTips)
	if err != nil {
		release()
		return err
	}
	sub, err := s.chain.ListenForTips(ctx, opts, guard(s, store.StreamTips, s.handleTip))
	if err != nil {
		release()
		return fmt.Errorf("listen for tips: %w", err)
	}
	subs = append(subs, sub)

	if opts, err = s.watchOptions(ctx, store.StreamMemberships); err != nil {
		release()
		return err
	}
	sub, err = s.chain.ListenForMemberships(ctx, opts, guard(s, store.StreamMemberships, s.handleMembership))
	if err != nil {
		release()
		return fmt.Errorf("listen for memberships: %w", err)
	}
	subs = append(subs, sub)

	if opts, err = s.watchOptions(ctx, store.StreamRewards); err != nil {
		release()
		return err
	}
	sub, err = s.chain.ListenForRewards(ctx, opts, guard(s, store.StreamRewards, s.handleReward))
	if err != nil {
		release()
		return fmt.Errorf("listen for rewards: %w", err)
	}
	subs = append(subs, sub)

	s.subs = subs
	s.running = true
	s.logger.Info("Event listeners started", zap.String("creator", s.creator))
	return nil
}

// Stop releases every subscription. Events already being handled see a
// cancelled context.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.cancel()
	for _, sub := range s.subs {
		sub.Unsubscribe()
	}
	s.subs = nil
	s.running = false
	s.logger.Info("Event listeners stopped")
}

func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Service) watchOptions(ctx context.Context, stream string) (contracts.WatchOptions, error) {
	block, ok, err := s.ledger.LoadCursor(ctx, stream)
	if err != nil {
		return contracts.WatchOptions{}, fmt.Errorf("load %s cursor: %w", stream, err)
	}
	if !ok {
		return contracts.WatchOptions{}, nil
	}
	return contracts.WatchOptions{FromBlock: &block}, nil
}

// guard adapts a handler into a listener callback. Errors and panics are
// logged and counted; the event is not retried. The stream cursor advances
// past every event that was handled.
func guard[E interface{ Ref() models.ChainEventRef }](s *Service, stream string, handle func(context.Context, E) (string, error)) func(E) {
	return func(ev E) {
		ref := ev.Ref()
		logger := s.logger.With(
			zap.String("stream", stream),
			zap.String("tx_hash", ref.TxHash),
			zap.Uint("log_index", ref.LogIndex),
		)
		defer func() {
			if r := recover(); r != nil {
				metrics.RecordChainEvent(stream, resultFailed)
				logger.Error("Panic while handling event", zap.Any("panic", r))
			}
		}()

		result, err := handle(s.ctx, ev)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			metrics.RecordChainEvent(stream, resultFailed)
			logger.Error("Error handling event", zap.Error(err))
			return
		}
		metrics.RecordChainEvent(stream, result)

		if err := s.ledger.SaveCursor(s.ctx, stream, ref.BlockNumber); err != nil {
			logger.Warn("Failed to save cursor", zap.Uint64("block", ref.BlockNumber), zap.Error(err))
		}
	}
}

func (s *Service) handleTip(ctx context.Context, ev contracts.TipEvent) (string, error) {
	tip := &models.Tip{
		TxHash:         ev.TxHash,
		BlockNumber:    ev.BlockNumber,
		TipperAddress:  strings.ToLower(ev.Tipper),
		CreatorAddress: s.creator,
		Amount:         ev.Amount,
		Token:          ev.Token,
		Message:        ev.Message,
	}
	if ev.Referrer != "" && common.HexToAddress(ev.Referrer) != (common.Address{}) {
		referrer := strings.ToLower(ev.Referrer)
		amount := ev.ReferralAmount
		tip.ReferrerAddress = &referrer
		tip.ReferralAmount = &amount
	}

	var award *models.OutboxEntry
	if points := TipPoints(ev.Amount); points > 0 {
		var err error
		award, err = models.NewAwardPointsEntry(tip.TxHash, models.AwardPointsPayload{
			Fan:    tip.TipperAddress,
			Points: points,
			Reason: fmt.Sprintf("Tip of %s %s", ev.Amount.String(), tipTokenLabel(ev.Token)),
		})
		if err != nil {
			return "", err
		}
	}

	inserted, err := s.ledger.RecordTip(ctx, tip, award)
	if err != nil {
		return "", fmt.Errorf("record tip: %w", err)
	}
	if !inserted {
		return resultDuplicate, nil
	}
	s.logger.Info("Tip recorded",
		zap.String("tx_hash", tip.TxHash),
		zap.String("tipper", tip.TipperAddress),
		zap.String("amount", tip.Amount.String()),
		zap.String("token", tip.Token),
	)

	if award != nil {
		// the award runs on the outbox workers; a full queue is left to replay
		s.dispatcher.Enqueue(award.ID)
	}
	return resultStored, nil
}

func (s *Service) handleMembership(ctx context.Context, ev contracts.MembershipEvent) (string, error) {
	m := &models.Membership{
		TxHash:         ev.TxHash,
		BlockNumber:    ev.BlockNumber,
		MemberAddress:  strings.ToLower(ev.Member),
		CreatorAddress: s.creator,
		TierID:         ev.TierID,
		Duration:       ev.Duration,
		ExpiresAt:      time.Unix(ev.ExpiresAt, 0).UTC(),
		IsActive:       true,
	}

	inserted, err := s.ledger.RecordMembership(ctx, m)
	if err != nil {
		return "", fmt.Errorf("record membership: %w", err)
	}
	if !inserted {
		return resultDuplicate, nil
	}
	s.logger.Info("Membership recorded",
		zap.String("member", m.MemberAddress),
		zap.Int64("tier_id", m.TierID),
		zap.Time("expires_at", m.ExpiresAt),
	)
	return resultStored, nil
}

func (s *Service) handleReward(ctx context.Context, ev contracts.RewardEvent) (string, error) {
	var (
		applied bool
		err     error
	)
	switch ev.Type {
	case contracts.RewardEventPointsAwarded:
		applied, err = s.ledger.ApplyPointsAwarded(ctx, models.PointsAward{
			ChainEventRef: ev.ChainEventRef,
			Fan:           ev.Fan,
			Points:        ev.Points,
			Reason:        ev.Reason,
		})
		if err == nil && applied {
			s.logger.Info("Points awarded", zap.String("fan", ev.Fan), zap.Int64("points", ev.Points))
		}
	case contracts.RewardEventRewardRedeemed:
		applied, err = s.ledger.ApplyRewardRedeemed(ctx, models.RewardRedemption{
			ChainEventRef: ev.ChainEventRef,
			Fan:           ev.Fan,
			RewardID:      ev.RewardID,
			PointsCost:    ev.PointsCost,
		})
		if errors.Is(err, store.ErrInsufficientPoints) {
			s.logger.Warn("Redemption exceeds stored balance",
				zap.String("fan", ev.Fan),
				zap.Int64("reward_id", ev.RewardID),
				zap.Int64("points_cost", ev.PointsCost),
			)
			return resultRejected, nil
		}
		if err == nil && applied {
			s.logger.Info("Reward redeemed", zap.String("fan", ev.Fan), zap.Int64("reward_id", ev.RewardID))
		}
	default:
		return "", fmt.Errorf("unknown reward event type %q", ev.Type)
	}

	if err != nil {
		return "", fmt.Errorf("apply %s: %w", ev.Type, err)
	}
	if !applied {
		return resultDuplicate, nil
	}
	return resultStored, nil
}

// TipPoints is floor(amount * 10).
func TipPoints(amount decimal.Decimal) int64 {
	return amount.Mul(pointsPerUnit).Floor().IntPart()
}

func tipTokenLabel(token string) string {
	if token == models.TokenETH {
		return token
	}
	return "USDC"
}
