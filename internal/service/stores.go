package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vlockster/funding/internal/model"
	"github.com/vlockster/funding/internal/paypal"
)

// CampaignStore is the campaign persistence surface the services consume.
// Implemented by repository.CampaignRepository.
type CampaignStore interface {
	CreateCampaign(ctx context.Context, campaign *model.Campaign) error
	GetCampaign(ctx context.Context, id int64) (*model.Campaign, error)
	RecomputeFundedAmount(ctx context.Context, campaignID int64) (decimal.Decimal, error)
	MarkFunded(ctx context.Context, campaignID int64, at time.Time) (bool, error)
}

// BackingStore is the backing persistence surface.
// Implemented by repository.BackingRepository.
type BackingStore interface {
	CreateBacking(ctx context.Context, backing *model.Backing) error
	GetBackingByOrderID(ctx context.Context, orderID string) (*model.Backing, error)
	MarkBackingCompleted(ctx context.Context, orderID string, at time.Time) (bool, error)
	MarkBackingCancelled(ctx context.Context, orderID string, at time.Time) (bool, error)
	CountCompletedByCampaign(ctx context.Context, campaignID int64) (int64, error)
}

// RewardStore is the reward tier persistence surface.
// Implemented by repository.RewardRepository.
type RewardStore interface {
	CreateRewardTier(ctx context.Context, tier *model.RewardTier) error
	GetRewardTier(ctx context.Context, id int64) (*model.RewardTier, error)
	ClaimRewardSlot(ctx context.Context, id int64) (bool, error)
	ReleaseRewardSlot(ctx context.Context, id int64) (bool, error)
}

// PaymentGateway creates remote payment orders.
// Implemented by paypal.Client.
type PaymentGateway interface {
	CreateOrder(ctx context.Context, req paypal.OrderRequest) (string, error)
}
