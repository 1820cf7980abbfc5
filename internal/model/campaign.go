package model

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

// Campaign lifecycle statuses. A campaign accepts backings only while
// active; the active -> funded transition is one-way and fires at most once.
const (
	CampaignStatusDraft     = "draft"
	CampaignStatusActive    = "active"
	CampaignStatusFunded    = "funded"
	CampaignStatusCompleted = "completed"
	CampaignStatusCancelled = "cancelled"
)

// Backing payment statuses. pending -> completed and pending -> cancelled
// are terminal transitions.
const (
	BackingStatusPending   = "pending"
	BackingStatusCompleted = "completed"
	BackingStatusCancelled = "cancelled"
)

// Campaign represents a crowdfunding campaign in the database.
// FundedAmount is derived: it always equals the sum of completed backings.
type Campaign struct {
	ID           int64           `db:"id" json:"id"`
	OwnerID      string          `db:"owner_id" json:"owner_id"`
	Title        string          `db:"title" json:"title"`
	GoalAmount   decimal.Decimal `db:"goal_amount" json:"goal_amount"`
	FundedAmount decimal.Decimal `db:"funded_amount" json:"funded_amount"`
	Status       string          `db:"status" json:"status"`
	FundedAt     sql.NullTime    `db:"funded_at" json:"funded_at,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// Backing represents a single pledge toward a campaign, correlated with the
// payment gateway through the unique external order id.
type Backing struct {
	ID             string          `db:"id" json:"id"`
	CampaignID     int64           `db:"campaign_id" json:"campaign_id"`
	BackerID       string          `db:"backer_id" json:"backer_id"`
	RewardTierID   sql.NullInt64   `db:"reward_tier_id" json:"reward_tier_id,omitempty"`
	Amount         decimal.Decimal `db:"amount" json:"amount"`
	PaymentOrderID string          `db:"payment_order_id" json:"payment_order_id"`
	PaymentStatus  string          `db:"payment_status" json:"payment_status"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// RewardTier represents an optional pledge reward with scarcity.
// BackerLimit is NULL for unlimited tiers; ClaimedCount never exceeds it.
type RewardTier struct {
	ID           int64           `db:"id" json:"id"`
	CampaignID   int64           `db:"campaign_id" json:"campaign_id"`
	Title        string          `db:"title" json:"title"`
	MinAmount    decimal.Decimal `db:"min_amount" json:"min_amount"`
	BackerLimit  sql.NullInt64   `db:"backer_limit" json:"backer_limit,omitempty"`
	ClaimedCount int64           `db:"claimed_count" json:"claimed_count"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}
