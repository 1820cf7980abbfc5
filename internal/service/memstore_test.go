package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vlockster/funding/internal/model"
	"github.com/vlockster/funding/internal/paypal"
)

// memStore is an in-memory implementation of the store interfaces. The
// conditional transitions mirror the SQL guards: they check-and-set under
// one lock, so concurrency tests exercise the same serialization the
// database provides.
type memStore struct {
	mu        sync.Mutex
	campaigns map[int64]*model.Campaign
	backings  map[string]*model.Backing // keyed by payment order id
	tiers     map[int64]*model.RewardTier
	nextID    int64
}

func newMemStore() *memStore {
	return &memStore{
		campaigns: make(map[int64]*model.Campaign),
		backings:  make(map[string]*model.Backing),
		tiers:     make(map[int64]*model.RewardTier),
	}
}

func (m *memStore) CreateCampaign(_ context.Context, campaign *model.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	campaign.ID = m.nextID
	campaign.CreatedAt = time.Now()
	campaign.UpdatedAt = campaign.CreatedAt
	clone := *campaign
	m.campaigns[campaign.ID] = &clone
	return nil
}

func (m *memStore) GetCampaign(_ context.Context, id int64) (*model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	campaign, ok := m.campaigns[id]
	if !ok {
		return nil, fmt.Errorf("campaign %d: %w", id, model.ErrNotFound)
	}
	clone := *campaign
	return &clone, nil
}

func (m *memStore) RecomputeFundedAmount(_ context.Context, campaignID int64) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	campaign, ok := m.campaigns[campaignID]
	if !ok {
		return decimal.Zero, fmt.Errorf("campaign %d: %w", campaignID, model.ErrNotFound)
	}
	total := decimal.Zero
	for _, backing := range m.backings {
		if backing.CampaignID == campaignID && backing.PaymentStatus == model.BackingStatusCompleted {
			total = total.Add(backing.Amount)
		}
	}
	campaign.FundedAmount = total
	return total, nil
}

func (m *memStore) MarkFunded(_ context.Context, campaignID int64, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	campaign, ok := m.campaigns[campaignID]
	if !ok || campaign.Status != model.CampaignStatusActive {
		return false, nil
	}
	campaign.Status = model.CampaignStatusFunded
	campaign.FundedAt.Time = at
	campaign.FundedAt.Valid = true
	return true, nil
}

func (m *memStore) CreateBacking(_ context.Context, backing *model.Backing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.backings[backing.PaymentOrderID]; exists {
		return fmt.Errorf("duplicate payment order id %s", backing.PaymentOrderID)
	}
	backing.CreatedAt = time.Now()
	backing.UpdatedAt = backing.CreatedAt
	clone := *backing
	m.backings[backing.PaymentOrderID] = &clone
	return nil
}

func (m *memStore) GetBackingByOrderID(_ context.Context, orderID string) (*model.Backing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	backing, ok := m.backings[orderID]
	if !ok {
		return nil, fmt.Errorf("backing for order %s: %w", orderID, model.ErrNotFound)
	}
	clone := *backing
	return &clone, nil
}

func (m *memStore) MarkBackingCompleted(_ context.Context, orderID string, at time.Time) (bool, error) {
	return m.transition(orderID, model.BackingStatusCompleted, at)
}

func (m *memStore) MarkBackingCancelled(_ context.Context, orderID string, at time.Time) (bool, error) {
	return m.transition(orderID, model.BackingStatusCancelled, at)
}

func (m *memStore) transition(orderID, status string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	backing, ok := m.backings[orderID]
	if !ok || backing.PaymentStatus != model.BackingStatusPending {
		return false, nil
	}
	backing.PaymentStatus = status
	backing.UpdatedAt = at
	return true, nil
}

func (m *memStore) CountCompletedByCampaign(_ context.Context, campaignID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, backing := range m.backings {
		if backing.CampaignID == campaignID && backing.PaymentStatus == model.BackingStatusCompleted {
			count++
		}
	}
	return count, nil
}

func (m *memStore) CreateRewardTier(_ context.Context, tier *model.RewardTier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	tier.ID = m.nextID
	tier.CreatedAt = time.Now()
	clone := *tier
	m.tiers[tier.ID] = &clone
	return nil
}

func (m *memStore) GetRewardTier(_ context.Context, id int64) (*model.RewardTier, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tier, ok := m.tiers[id]
	if !ok {
		return nil, fmt.Errorf("reward tier %d: %w", id, model.ErrNotFound)
	}
	clone := *tier
	return &clone, nil
}

func (m *memStore) ClaimRewardSlot(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tier, ok := m.tiers[id]
	if !ok {
		return false, nil
	}
	if tier.BackerLimit.Valid && tier.ClaimedCount >= tier.BackerLimit.Int64 {
		return false, nil
	}
	tier.ClaimedCount++
	return true, nil
}

func (m *memStore) ReleaseRewardSlot(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tier, ok := m.tiers[id]
	if !ok || tier.ClaimedCount == 0 {
		return false, nil
	}
	tier.ClaimedCount--
	return true, nil
}

// fakeGateway hands out sequential order ids, or fails when told to
type fakeGateway struct {
	mu      sync.Mutex
	calls   int
	fail    bool
	lastReq paypal.OrderRequest
}

func (g *fakeGateway) CreateOrder(_ context.Context, req paypal.OrderRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.lastReq = req
	if g.fail {
		return "", fmt.Errorf("order creation: %w", model.ErrUpstream)
	}
	return fmt.Sprintf("ORDER-%d", g.calls), nil
}

// fakeNotifier counts funded notifications
type fakeNotifier struct {
	mu           sync.Mutex
	fundedCalls  int
	lastCampaign *model.Campaign
}

func (n *fakeNotifier) CampaignFunded(_ context.Context, campaign *model.Campaign) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fundedCalls++
	n.lastCampaign = campaign
}

func (n *fakeNotifier) calls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.fundedCalls
}
