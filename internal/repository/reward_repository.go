package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/vlockster/funding/internal/model"
)

// RewardRepository handles reward tier data operations
type RewardRepository struct {
	db *sqlx.DB
}

// NewRewardRepository creates a new reward repository
func NewRewardRepository(db *sqlx.DB) *RewardRepository {
	return &RewardRepository{db: db}
}

// CreateRewardTier creates a reward tier for a campaign
func (r *RewardRepository) CreateRewardTier(ctx context.Context, tier *model.RewardTier) error {
	query := `
		INSERT INTO reward_tiers (campaign_id, title, min_amount, backer_limit, claimed_count, created_at)
		VALUES ($1, $2, $3, $4, 0, $5)
		RETURNING id
	`

	tier.CreatedAt = time.Now()
	err := r.db.GetContext(ctx, &tier.ID, query,
		tier.CampaignID, tier.Title, tier.MinAmount, tier.BackerLimit, tier.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create reward tier: %w", err)
	}

	return nil
}

// GetRewardTier retrieves a reward tier by ID
func (r *RewardRepository) GetRewardTier(ctx context.Context, id int64) (*model.RewardTier, error) {
	query := `
		SELECT id, campaign_id, title, min_amount, backer_limit, claimed_count, created_at
		FROM reward_tiers
		WHERE id = $1
	`

	var tier model.RewardTier
	err := r.db.GetContext(ctx, &tier, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("reward tier %d: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get reward tier: %w", err)
	}

	return &tier, nil
}

// ClaimRewardSlot increments the tier's claimed count, guarded against the
// backer limit in the statement itself. Returns false when the tier is
// exhausted, so claimed_count can never exceed the limit under concurrency.
func (r *RewardRepository) ClaimRewardSlot(ctx context.Context, id int64) (bool, error) {
	query := `
		UPDATE reward_tiers
		SET claimed_count = claimed_count + 1
		WHERE id = $1 AND (backer_limit IS NULL OR claimed_count < backer_limit)
	`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to claim reward slot: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// ReleaseRewardSlot returns a previously claimed slot, used when order
// creation fails after the claim or when a pending capture is cancelled.
func (r *RewardRepository) ReleaseRewardSlot(ctx context.Context, id int64) (bool, error) {
	query := `
		UPDATE reward_tiers
		SET claimed_count = claimed_count - 1
		WHERE id = $1 AND claimed_count > 0
	`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to release reward slot: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}
