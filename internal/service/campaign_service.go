package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/vlockster/funding/internal/model"
)

// CampaignService owns campaign creation and the ledger read surface
type CampaignService struct {
	campaigns CampaignStore
	backings  BackingStore
	rewards   RewardStore
}

// NewCampaignService creates a new CampaignService instance
func NewCampaignService(campaigns CampaignStore, backings BackingStore, rewards RewardStore) *CampaignService {
	return &CampaignService{
		campaigns: campaigns,
		backings:  backings,
		rewards:   rewards,
	}
}

// CreateCampaignInput describes a new campaign and its optional reward tiers
type CreateCampaignInput struct {
	OwnerID     string
	Title       string
	GoalAmount  decimal.Decimal
	RewardTiers []CreateRewardTierInput
}

// CreateRewardTierInput describes one reward tier on a new campaign
type CreateRewardTierInput struct {
	Title       string
	MinAmount   decimal.Decimal
	BackerLimit int64 // zero means unlimited
}

// CreateCampaign creates an active campaign with its reward tiers
func (s *CampaignService) CreateCampaign(ctx context.Context, input CreateCampaignInput) (*model.Campaign, error) {
	if input.OwnerID == "" {
		return nil, model.ErrUnauthenticated
	}
	if input.Title == "" {
		return nil, fmt.Errorf("title is required: %w", model.ErrInvalidInput)
	}
	if !input.GoalAmount.IsPositive() {
		return nil, fmt.Errorf("goal amount must be positive: %w", model.ErrInvalidInput)
	}
	for _, tier := range input.RewardTiers {
		if !tier.MinAmount.IsPositive() {
			return nil, fmt.Errorf("reward tier minimum must be positive: %w", model.ErrInvalidInput)
		}
	}

	campaign := &model.Campaign{
		OwnerID:      input.OwnerID,
		Title:        input.Title,
		GoalAmount:   input.GoalAmount,
		FundedAmount: decimal.Zero,
		Status:       model.CampaignStatusActive,
	}
	if err := s.campaigns.CreateCampaign(ctx, campaign); err != nil {
		return nil, err
	}

	for _, tierInput := range input.RewardTiers {
		tier := &model.RewardTier{
			CampaignID: campaign.ID,
			Title:      tierInput.Title,
			MinAmount:  tierInput.MinAmount,
		}
		if tierInput.BackerLimit > 0 {
			tier.BackerLimit = sql.NullInt64{Int64: tierInput.BackerLimit, Valid: true}
		}
		if err := s.rewards.CreateRewardTier(ctx, tier); err != nil {
			return nil, err
		}
	}

	return campaign, nil
}

// CampaignSummary is the ledger view of a campaign
type CampaignSummary struct {
	Campaign     *model.Campaign `json:"campaign"`
	BackerCount  int64           `json:"backer_count"`
	GoalProgress string          `json:"goal_progress"`
}

// GetCampaignSummary returns the campaign with its completed-backer count
func (s *CampaignService) GetCampaignSummary(ctx context.Context, campaignID int64) (*CampaignSummary, error) {
	campaign, err := s.campaigns.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	count, err := s.backings.CountCompletedByCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	progress := decimal.Zero
	if campaign.GoalAmount.IsPositive() {
		progress = campaign.FundedAmount.Div(campaign.GoalAmount).Mul(decimal.NewFromInt(100)).Round(1)
	}

	return &CampaignSummary{
		Campaign:     campaign,
		BackerCount:  count,
		GoalProgress: progress.String() + "%",
	}, nil
}
