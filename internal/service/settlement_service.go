package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vlockster/funding/internal/metrics"
	"github.com/vlockster/funding/internal/model"
	"github.com/vlockster/funding/internal/notify"
)

// Settlement outcome statuses surfaced in the webhook response
const (
	SettlementProcessed = "processed"
	SettlementDuplicate = "duplicate"
	SettlementNotFound  = "not_found"
	SettlementCancelled = "cancelled"
)

// SettlementService applies verified capture events to the funding ledger.
// The gateway delivers webhooks at least once and in no particular order;
// every transition here is a conditional update so replays are no-ops.
type SettlementService struct {
	campaigns CampaignStore
	backings  BackingStore
	rewards   RewardStore
	notifier  notify.Notifier
	logger    *zap.Logger
}

// NewSettlementService creates a new SettlementService instance
func NewSettlementService(campaigns CampaignStore, backings BackingStore, rewards RewardStore, notifier notify.Notifier, logger *zap.Logger) *SettlementService {
	return &SettlementService{
		campaigns: campaigns,
		backings:  backings,
		rewards:   rewards,
		notifier:  notifier,
		logger:    logger,
	}
}

// SettlementResult reports what a capture event did to the ledger
type SettlementResult struct {
	Status     string          `json:"status"`
	CampaignID int64           `json:"campaign_id,omitempty"`
	NewTotal   decimal.Decimal `json:"new_total,omitempty"`
}

// SettleCapture marks the backing completed, re-sums the campaign total and
// performs the one-shot active -> funded transition when the goal is crossed.
// An unknown order id is acknowledged, not failed: redelivery for foreign or
// already-reconciled events is expected.
func (s *SettlementService) SettleCapture(ctx context.Context, orderID string, captured decimal.Decimal, hasAmount bool) (*SettlementResult, error) {
	start := time.Now()
	status := "failure"
	defer func() {
		metrics.RecordSettlementDuration(status, time.Since(start).Seconds())
	}()

	backing, err := s.backings.GetBackingByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			s.logger.Warn("capture event for unknown order", zap.String("order_id", orderID))
			status = SettlementNotFound
			return &SettlementResult{Status: SettlementNotFound}, nil
		}
		return nil, err
	}

	if hasAmount && !captured.Equal(backing.Amount) {
		s.logger.Warn("captured amount differs from pledged amount",
			zap.String("order_id", orderID),
			zap.String("pledged", backing.Amount.StringFixed(2)),
			zap.String("captured", captured.StringFixed(2)))
	}

	completed, err := s.backings.MarkBackingCompleted(ctx, orderID, time.Now())
	if err != nil {
		return nil, err
	}
	if !completed {
		// Terminal already; duplicate delivery. Report the current total
		// without re-transitioning or re-notifying.
		campaign, err := s.campaigns.GetCampaign(ctx, backing.CampaignID)
		if err != nil {
			return nil, err
		}
		status = SettlementDuplicate
		return &SettlementResult{
			Status:     SettlementDuplicate,
			CampaignID: campaign.ID,
			NewTotal:   campaign.FundedAmount,
		}, nil
	}

	total, err := s.campaigns.RecomputeFundedAmount(ctx, backing.CampaignID)
	if err != nil {
		return nil, err
	}

	campaign, err := s.campaigns.GetCampaign(ctx, backing.CampaignID)
	if err != nil {
		return nil, err
	}

	if total.GreaterThanOrEqual(campaign.GoalAmount) && campaign.Status == model.CampaignStatusActive {
		if err := s.transitionToFunded(ctx, campaign, total); err != nil {
			return nil, err
		}
	}

	s.logger.Info("capture settled",
		zap.String("order_id", orderID),
		zap.String("backing_id", backing.ID),
		zap.Int64("campaign_id", campaign.ID),
		zap.String("new_total", total.StringFixed(2)))

	status = SettlementProcessed
	return &SettlementResult{
		Status:     SettlementProcessed,
		CampaignID: campaign.ID,
		NewTotal:   total,
	}, nil
}

// transitionToFunded performs the conditional status flip. The store-side
// status guard decides the winner under concurrent settlements, so the
// notification fires exactly once per campaign.
func (s *SettlementService) transitionToFunded(ctx context.Context, campaign *model.Campaign, total decimal.Decimal) error {
	now := time.Now()
	won, err := s.campaigns.MarkFunded(ctx, campaign.ID, now)
	if err != nil {
		return fmt.Errorf("failed to transition campaign to funded: %w", err)
	}
	if !won {
		return nil
	}

	metrics.CampaignsFunded.Inc()

	funded := *campaign
	funded.Status = model.CampaignStatusFunded
	funded.FundedAmount = total
	funded.FundedAt.Time = now
	funded.FundedAt.Valid = true
	s.notifier.CampaignFunded(ctx, &funded)

	return nil
}

// CancelCapture marks the backing cancelled and returns any claimed reward
// slot. The campaign total is untouched: a pending backing was never counted,
// and a completed backing is never reverted.
func (s *SettlementService) CancelCapture(ctx context.Context, orderID string) (*SettlementResult, error) {
	backing, err := s.backings.GetBackingByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			s.logger.Warn("cancellation event for unknown order", zap.String("order_id", orderID))
			return &SettlementResult{Status: SettlementNotFound}, nil
		}
		return nil, err
	}

	cancelled, err := s.backings.MarkBackingCancelled(ctx, orderID, time.Now())
	if err != nil {
		return nil, err
	}
	if !cancelled {
		return &SettlementResult{Status: SettlementDuplicate, CampaignID: backing.CampaignID}, nil
	}

	if backing.RewardTierID.Valid {
		if _, err := s.rewards.ReleaseRewardSlot(ctx, backing.RewardTierID.Int64); err != nil {
			s.logger.Warn("failed to release reward slot on cancellation",
				zap.Int64("reward_tier_id", backing.RewardTierID.Int64),
				zap.Error(err))
		}
	}

	s.logger.Info("capture cancelled",
		zap.String("order_id", orderID),
		zap.String("backing_id", backing.ID),
		zap.Int64("campaign_id", backing.CampaignID))

	return &SettlementResult{Status: SettlementCancelled, CampaignID: backing.CampaignID}, nil
}
