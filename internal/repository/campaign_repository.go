package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/vlockster/funding/internal/model"
)

// CampaignRepository handles campaign data operations
type CampaignRepository struct {
	db *sqlx.DB
}

// NewCampaignRepository creates a new campaign repository
func NewCampaignRepository(db *sqlx.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

// CreateCampaign creates a new campaign
func (r *CampaignRepository) CreateCampaign(ctx context.Context, campaign *model.Campaign) error {
	query := `
		INSERT INTO campaigns (owner_id, title, goal_amount, funded_amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	now := time.Now()
	campaign.CreatedAt = now
	campaign.UpdatedAt = now
	if campaign.FundedAmount.IsZero() {
		campaign.FundedAmount = decimal.Zero
	}

	err := r.db.GetContext(ctx, &campaign.ID, query,
		campaign.OwnerID, campaign.Title, campaign.GoalAmount, campaign.FundedAmount,
		campaign.Status, campaign.CreatedAt, campaign.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}

	return nil
}

// GetCampaign retrieves a campaign by ID
func (r *CampaignRepository) GetCampaign(ctx context.Context, id int64) (*model.Campaign, error) {
	query := `
		SELECT id, owner_id, title, goal_amount, funded_amount, status, funded_at, created_at, updated_at
		FROM campaigns
		WHERE id = $1
	`

	var campaign model.Campaign
	err := r.db.GetContext(ctx, &campaign, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("campaign %d: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}

	return &campaign, nil
}

// RecomputeFundedAmount rewrites the campaign's funded amount as the sum of
// its completed backings and returns the new total. A full re-sum in one
// statement keeps the total self-healing under duplicate or reordered
// webhook deliveries.
func (r *CampaignRepository) RecomputeFundedAmount(ctx context.Context, campaignID int64) (decimal.Decimal, error) {
	query := `
		UPDATE campaigns
		SET funded_amount = (
			SELECT COALESCE(SUM(amount), 0)
			FROM backings
			WHERE campaign_id = $1 AND payment_status = 'completed'
		), updated_at = $2
		WHERE id = $1
		RETURNING funded_amount
	`

	var total decimal.Decimal
	err := r.db.GetContext(ctx, &total, query, campaignID, time.Now())
	if err != nil {
		if err == sql.ErrNoRows {
			return decimal.Zero, fmt.Errorf("campaign %d: %w", campaignID, model.ErrNotFound)
		}
		return decimal.Zero, fmt.Errorf("failed to recompute funded amount: %w", err)
	}

	return total, nil
}

// MarkFunded transitions the campaign from active to funded. The status
// guard lives in the statement itself, so concurrent settlements crossing
// the goal at the same time resolve to exactly one winner. Returns true
// only for the attempt that performed the transition.
func (r *CampaignRepository) MarkFunded(ctx context.Context, campaignID int64, at time.Time) (bool, error) {
	query := `
		UPDATE campaigns
		SET status = 'funded', funded_at = $1, updated_at = $1
		WHERE id = $2 AND status = 'active'
	`

	result, err := r.db.ExecContext(ctx, query, at, campaignID)
	if err != nil {
		return false, fmt.Errorf("failed to mark campaign as funded: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}
