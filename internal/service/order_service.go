package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vlockster/funding/internal/metrics"
	"github.com/vlockster/funding/internal/model"
	"github.com/vlockster/funding/internal/paypal"
)

// OrderService validates backing requests and creates remote payment orders
type OrderService struct {
	campaigns CampaignStore
	backings  BackingStore
	rewards   RewardStore
	gateway   PaymentGateway
	logger    *zap.Logger
}

// NewOrderService creates a new OrderService instance
func NewOrderService(campaigns CampaignStore, backings BackingStore, rewards RewardStore, gateway PaymentGateway, logger *zap.Logger) *OrderService {
	return &OrderService{
		campaigns: campaigns,
		backings:  backings,
		rewards:   rewards,
		gateway:   gateway,
		logger:    logger,
	}
}

// InitiateBackingInput is a validated backing request
type InitiateBackingInput struct {
	BackerID     string
	CampaignID   int64
	RewardTierID int64 // zero when no reward was selected
	Amount       decimal.Decimal
}

// InitiateBackingResult is returned to the caller on success
type InitiateBackingResult struct {
	OrderID   string `json:"order_id"`
	BackingID string `json:"backing_id"`
}

// InitiateBacking runs the precondition chain, creates the remote order and
// records the pending backing row keyed by the external order id. The row
// exists before this returns, so a capture webhook can always correlate.
func (s *OrderService) InitiateBacking(ctx context.Context, input InitiateBackingInput) (*InitiateBackingResult, error) {
	start := time.Now()
	result := "failure"
	defer func() {
		metrics.RecordInitiateBackingDuration(result, time.Since(start).Seconds())
	}()

	if input.BackerID == "" {
		return nil, model.ErrUnauthenticated
	}
	if !input.Amount.IsPositive() {
		return nil, fmt.Errorf("amount must be positive: %w", model.ErrInvalidInput)
	}

	campaign, err := s.campaigns.GetCampaign(ctx, input.CampaignID)
	if err != nil {
		return nil, err
	}
	if campaign.Status != model.CampaignStatusActive {
		return nil, fmt.Errorf("campaign %d is %s: %w", campaign.ID, campaign.Status, model.ErrCampaignNotActive)
	}
	if campaign.OwnerID == input.BackerID {
		return nil, model.ErrSelfBacking
	}

	var tier *model.RewardTier
	if input.RewardTierID != 0 {
		tier, err = s.rewards.GetRewardTier(ctx, input.RewardTierID)
		if err != nil {
			return nil, err
		}
		if tier.CampaignID != campaign.ID {
			return nil, fmt.Errorf("reward tier %d does not belong to campaign %d: %w",
				tier.ID, campaign.ID, model.ErrNotFound)
		}
		if tier.BackerLimit.Valid && tier.ClaimedCount >= tier.BackerLimit.Int64 {
			return nil, model.ErrRewardUnavailable
		}
		if input.Amount.LessThan(tier.MinAmount) {
			return nil, model.ErrAmountBelowReward
		}

		// The read above is only a fast path; the claim below is the
		// authoritative, race-free check against the backer limit.
		claimed, err := s.rewards.ClaimRewardSlot(ctx, tier.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to claim reward slot: %w", err)
		}
		if !claimed {
			return nil, model.ErrRewardUnavailable
		}
	}

	orderID, err := s.gateway.CreateOrder(ctx, paypal.OrderRequest{
		Amount:       input.Amount,
		Description:  fmt.Sprintf("Backing for %q", campaign.Title),
		BackerID:     input.BackerID,
		CampaignID:   campaign.ID,
		RewardTierID: input.RewardTierID,
	})
	if err != nil {
		s.releaseClaim(ctx, tier)
		s.logger.Error("order creation failed",
			zap.String("backer_id", input.BackerID),
			zap.Int64("campaign_id", campaign.ID),
			zap.Error(err))
		return nil, err
	}

	backing := &model.Backing{
		ID:             uuid.NewString(),
		CampaignID:     campaign.ID,
		BackerID:       input.BackerID,
		Amount:         input.Amount,
		PaymentOrderID: orderID,
		PaymentStatus:  model.BackingStatusPending,
	}
	if input.RewardTierID != 0 {
		backing.RewardTierID = sql.NullInt64{Int64: input.RewardTierID, Valid: true}
	}

	if err := s.backings.CreateBacking(ctx, backing); err != nil {
		s.releaseClaim(ctx, tier)
		s.logger.Error("failed to record pending backing",
			zap.String("backer_id", input.BackerID),
			zap.Int64("campaign_id", campaign.ID),
			zap.String("order_id", orderID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to record pending backing: %w", err)
	}

	s.logger.Info("payment order created",
		zap.String("backer_id", input.BackerID),
		zap.Int64("campaign_id", campaign.ID),
		zap.String("order_id", orderID),
		zap.String("amount", input.Amount.StringFixed(2)))

	result = "success"
	return &InitiateBackingResult{OrderID: orderID, BackingID: backing.ID}, nil
}

func (s *OrderService) releaseClaim(ctx context.Context, tier *model.RewardTier) {
	if tier == nil {
		return
	}
	if _, err := s.rewards.ReleaseRewardSlot(ctx, tier.ID); err != nil {
		s.logger.Warn("failed to release reward slot",
			zap.Int64("reward_tier_id", tier.ID),
			zap.Error(err))
	}
}
