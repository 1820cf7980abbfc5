package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/vlockster/funding/internal/model"
)

// Notifier delivers the one-shot "campaign reached its goal" message to the
// campaign owner. Delivery is fire-and-forget: a failed notification must
// never fail or roll back the settlement that triggered it.
type Notifier interface {
	CampaignFunded(ctx context.Context, campaign *model.Campaign)
}

// LogNotifier records funded notifications in the service log. It stands in
// for the platform notification channel in environments without one.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log-backed notifier
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// CampaignFunded logs the funded notification for the campaign owner
func (n *LogNotifier) CampaignFunded(_ context.Context, campaign *model.Campaign) {
	n.logger.Info("campaign reached its funding goal",
		zap.Int64("campaign_id", campaign.ID),
		zap.String("owner_id", campaign.OwnerID),
		zap.String("title", campaign.Title),
		zap.String("goal_amount", campaign.GoalAmount.StringFixed(2)),
		zap.String("funded_amount", campaign.FundedAmount.StringFixed(2)))
}
