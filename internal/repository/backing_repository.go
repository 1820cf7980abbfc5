package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/vlockster/funding/internal/model"
)

// BackingRepository handles backing data operations
type BackingRepository struct {
	db *sqlx.DB
}

// NewBackingRepository creates a new backing repository
func NewBackingRepository(db *sqlx.DB) *BackingRepository {
	return &BackingRepository{db: db}
}

// CreateBacking inserts a pending backing row. payment_order_id carries a
// unique constraint, so a given external order maps to at most one backing.
func (r *BackingRepository) CreateBacking(ctx context.Context, backing *model.Backing) error {
	query := `
		INSERT INTO backings (id, campaign_id, backer_id, reward_tier_id, amount, payment_order_id, payment_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	now := time.Now()
	backing.CreatedAt = now
	backing.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		backing.ID, backing.CampaignID, backing.BackerID, backing.RewardTierID,
		backing.Amount, backing.PaymentOrderID, backing.PaymentStatus,
		backing.CreatedAt, backing.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create backing: %w", err)
	}

	return nil
}

// GetBackingByOrderID retrieves a backing by its external payment order id,
// the join key for webhook correlation.
func (r *BackingRepository) GetBackingByOrderID(ctx context.Context, orderID string) (*model.Backing, error) {
	query := `
		SELECT id, campaign_id, backer_id, reward_tier_id, amount, payment_order_id, payment_status, created_at, updated_at
		FROM backings
		WHERE payment_order_id = $1
	`

	var backing model.Backing
	err := r.db.GetContext(ctx, &backing, query, orderID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("backing for order %s: %w", orderID, model.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get backing: %w", err)
	}

	return &backing, nil
}

// MarkBackingCompleted transitions a backing from pending to completed.
// Returns false when the backing was already in a terminal state, which is
// how duplicate webhook deliveries are detected.
func (r *BackingRepository) MarkBackingCompleted(ctx context.Context, orderID string, at time.Time) (bool, error) {
	return r.transition(ctx, orderID, model.BackingStatusCompleted, at)
}

// MarkBackingCancelled transitions a backing from pending to cancelled.
// A completed backing is never reverted.
func (r *BackingRepository) MarkBackingCancelled(ctx context.Context, orderID string, at time.Time) (bool, error) {
	return r.transition(ctx, orderID, model.BackingStatusCancelled, at)
}

func (r *BackingRepository) transition(ctx context.Context, orderID, status string, at time.Time) (bool, error) {
	query := `
		UPDATE backings
		SET payment_status = $1, updated_at = $2
		WHERE payment_order_id = $3 AND payment_status = 'pending'
	`

	result, err := r.db.ExecContext(ctx, query, status, at, orderID)
	if err != nil {
		return false, fmt.Errorf("failed to mark backing as %s: %w", status, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// CountCompletedByCampaign returns the number of completed backings for a campaign
func (r *BackingRepository) CountCompletedByCampaign(ctx context.Context, campaignID int64) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM backings
		WHERE campaign_id = $1 AND payment_status = 'completed'
	`

	var count int64
	if err := r.db.GetContext(ctx, &count, query, campaignID); err != nil {
		return 0, fmt.Errorf("failed to count backings: %w", err)
	}

	return count, nil
}
