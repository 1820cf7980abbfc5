package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vlockster/funding/internal/config"
	"github.com/vlockster/funding/internal/model"
	"github.com/vlockster/funding/internal/notify"
	"github.com/vlockster/funding/internal/paypal"
	"github.com/vlockster/funding/internal/service"
)

// fakeStore is a minimal in-memory implementation of the store interfaces,
// just enough to drive the HTTP surface.
type fakeStore struct {
	mu        sync.Mutex
	campaigns map[int64]*model.Campaign
	backings  map[string]*model.Backing
	tiers     map[int64]*model.RewardTier
	nextID    int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		campaigns: make(map[int64]*model.Campaign),
		backings:  make(map[string]*model.Backing),
		tiers:     make(map[int64]*model.RewardTier),
	}
}

func (f *fakeStore) CreateCampaign(_ context.Context, campaign *model.Campaign) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	campaign.ID = f.nextID
	clone := *campaign
	f.campaigns[campaign.ID] = &clone
	return nil
}

func (f *fakeStore) GetCampaign(_ context.Context, id int64) (*model.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	campaign, ok := f.campaigns[id]
	if !ok {
		return nil, fmt.Errorf("campaign %d: %w", id, model.ErrNotFound)
	}
	clone := *campaign
	return &clone, nil
}

func (f *fakeStore) RecomputeFundedAmount(_ context.Context, campaignID int64) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	campaign, ok := f.campaigns[campaignID]
	if !ok {
		return decimal.Zero, model.ErrNotFound
	}
	total := decimal.Zero
	for _, backing := range f.backings {
		if backing.CampaignID == campaignID && backing.PaymentStatus == model.BackingStatusCompleted {
			total = total.Add(backing.Amount)
		}
	}
	campaign.FundedAmount = total
	return total, nil
}

func (f *fakeStore) MarkFunded(_ context.Context, campaignID int64, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	campaign, ok := f.campaigns[campaignID]
	if !ok || campaign.Status != model.CampaignStatusActive {
		return false, nil
	}
	campaign.Status = model.CampaignStatusFunded
	campaign.FundedAt.Time = at
	campaign.FundedAt.Valid = true
	return true, nil
}

func (f *fakeStore) CreateBacking(_ context.Context, backing *model.Backing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *backing
	f.backings[backing.PaymentOrderID] = &clone
	return nil
}

func (f *fakeStore) GetBackingByOrderID(_ context.Context, orderID string) (*model.Backing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	backing, ok := f.backings[orderID]
	if !ok {
		return nil, fmt.Errorf("backing for order %s: %w", orderID, model.ErrNotFound)
	}
	clone := *backing
	return &clone, nil
}

func (f *fakeStore) MarkBackingCompleted(_ context.Context, orderID string, at time.Time) (bool, error) {
	return f.transition(orderID, model.BackingStatusCompleted, at)
}

func (f *fakeStore) MarkBackingCancelled(_ context.Context, orderID string, at time.Time) (bool, error) {
	return f.transition(orderID, model.BackingStatusCancelled, at)
}

func (f *fakeStore) transition(orderID, status string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	backing, ok := f.backings[orderID]
	if !ok || backing.PaymentStatus != model.BackingStatusPending {
		return false, nil
	}
	backing.PaymentStatus = status
	backing.UpdatedAt = at
	return true, nil
}

func (f *fakeStore) CountCompletedByCampaign(_ context.Context, campaignID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, backing := range f.backings {
		if backing.CampaignID == campaignID && backing.PaymentStatus == model.BackingStatusCompleted {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) CreateRewardTier(_ context.Context, tier *model.RewardTier) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	tier.ID = f.nextID
	clone := *tier
	f.tiers[tier.ID] = &clone
	return nil
}

func (f *fakeStore) GetRewardTier(_ context.Context, id int64) (*model.RewardTier, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tier, ok := f.tiers[id]
	if !ok {
		return nil, fmt.Errorf("reward tier %d: %w", id, model.ErrNotFound)
	}
	clone := *tier
	return &clone, nil
}

func (f *fakeStore) ClaimRewardSlot(_ context.Context, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tier, ok := f.tiers[id]
	if !ok {
		return false, nil
	}
	if tier.BackerLimit.Valid && tier.ClaimedCount >= tier.BackerLimit.Int64 {
		return false, nil
	}
	tier.ClaimedCount++
	return true, nil
}

func (f *fakeStore) ReleaseRewardSlot(_ context.Context, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tier, ok := f.tiers[id]
	if !ok || tier.ClaimedCount == 0 {
		return false, nil
	}
	tier.ClaimedCount--
	return true, nil
}

type stubGateway struct {
	orders int
}

func (g *stubGateway) CreateOrder(_ context.Context, _ paypal.OrderRequest) (string, error) {
	g.orders++
	return fmt.Sprintf("ORD-%d", g.orders), nil
}

type fixture struct {
	store    *fakeStore
	verifier *paypal.WebhookVerifier
	router   http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newFakeStore()
	logger := zap.NewNop()
	verifier := paypal.NewWebhookVerifier(config.PayPalConfig{
		WebhookID:     "WH-1",
		WebhookSecret: "secret",
	})

	orders := service.NewOrderService(store, store, store, &stubGateway{}, logger)
	campaigns := service.NewCampaignService(store, store, store)
	settlements := service.NewSettlementService(store, store, store, notify.NewLogNotifier(logger), logger)
	h := NewHandler(orders, campaigns, settlements, verifier, logger)

	r := chi.NewRouter()
	r.Post("/api/v1/campaigns", h.createCampaign)
	r.Get("/api/v1/campaigns/{campaignID}", h.getCampaign)
	r.Post("/api/v1/campaigns/{campaignID}/backings", h.initiateBacking)
	r.Post("/api/v1/webhooks/paypal", h.handlePaymentWebhook)

	return &fixture{store: store, verifier: verifier, router: r}
}

func (f *fixture) seedCampaign(t *testing.T, goal string) *model.Campaign {
	t.Helper()
	campaign := &model.Campaign{
		OwnerID:    "owner-1",
		Title:      "Indie Game",
		GoalAmount: decimal.RequireFromString(goal),
		Status:     model.CampaignStatusActive,
	}
	require.NoError(t, f.store.CreateCampaign(context.Background(), campaign))
	return campaign
}

func (f *fixture) seedPendingBacking(t *testing.T, campaignID int64, orderID, amount string) {
	t.Helper()
	require.NoError(t, f.store.CreateBacking(context.Background(), &model.Backing{
		ID:             orderID + "-backing",
		CampaignID:     campaignID,
		BackerID:       "backer-1",
		Amount:         decimal.RequireFromString(amount),
		PaymentOrderID: orderID,
		PaymentStatus:  model.BackingStatusPending,
	}))
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) signedWebhook(body []byte) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/paypal", bytes.NewReader(body))
	req.Header.Set("Paypal-Transmission-Id", "tx-1")
	req.Header.Set("Paypal-Transmission-Time", "2026-08-28T12:00:00Z")
	req.Header.Set("Paypal-Transmission-Sig", f.verifier.Sign("tx-1", "2026-08-28T12:00:00Z", body))
	return req
}

func TestInitiateBackingEndpoint(t *testing.T) {
	f := newFixture(t)
	campaign := f.seedCampaign(t, "1000")

	body := []byte(`{"amount":"50.00"}`)
	req := httptest.NewRequest(http.MethodPost,
		fmt.Sprintf("/api/v1/campaigns/%d/backings", campaign.ID), bytes.NewReader(body))
	req.Header.Set("X-User-Id", "backer-1")

	rec := f.do(req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var result struct {
		OrderID   string `json:"order_id"`
		BackingID string `json:"backing_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "ORD-1", result.OrderID)
	assert.NotEmpty(t, result.BackingID)
}

func TestInitiateBackingEndpointErrors(t *testing.T) {
	f := newFixture(t)
	campaign := f.seedCampaign(t, "1000")

	cases := []struct {
		name   string
		url    string
		caller string
		body   string
		want   int
	}{
		{"missing identity", fmt.Sprintf("/api/v1/campaigns/%d/backings", campaign.ID), "", `{"amount":"50"}`, http.StatusUnauthorized},
		{"self backing", fmt.Sprintf("/api/v1/campaigns/%d/backings", campaign.ID), "owner-1", `{"amount":"50"}`, http.StatusForbidden},
		{"campaign missing", "/api/v1/campaigns/9999/backings", "backer-1", `{"amount":"50"}`, http.StatusNotFound},
		{"bad amount", fmt.Sprintf("/api/v1/campaigns/%d/backings", campaign.ID), "backer-1", `{"amount":"0"}`, http.StatusBadRequest},
		{"bad body", fmt.Sprintf("/api/v1/campaigns/%d/backings", campaign.ID), "backer-1", `{`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tc.url, bytes.NewReader([]byte(tc.body)))
			if tc.caller != "" {
				req.Header.Set("X-User-Id", tc.caller)
			}
			rec := f.do(req)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}
}

func TestWebhookSettlesCapture(t *testing.T) {
	f := newFixture(t)
	campaign := f.seedCampaign(t, "100")
	f.seedPendingBacking(t, campaign.ID, "ORD-1", "150")

	body := []byte(`{"id":"WH-EVT-1","event_type":"PAYMENT.CAPTURE.COMPLETED",` +
		`"resource":{"id":"CAP-1","amount":{"currency_code":"USD","value":"150.00"},` +
		`"supplementary_data":{"related_ids":{"order_id":"ORD-1"}}}}`)

	rec := f.do(f.signedWebhook(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Status string `json:"status"`
		Event  string `json:"event"`
		Result struct {
			Status     string `json:"status"`
			CampaignID int64  `json:"campaign_id"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, paypal.EventCaptureCompleted, resp.Event)
	assert.Equal(t, "processed", resp.Result.Status)

	updated, err := f.store.GetCampaign(context.Background(), campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignStatusFunded, updated.Status)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	f := newFixture(t)
	campaign := f.seedCampaign(t, "100")
	f.seedPendingBacking(t, campaign.ID, "ORD-1", "150")

	body := []byte(`{"event_type":"PAYMENT.CAPTURE.COMPLETED","resource":{"id":"ORD-1"}}`)
	sig := f.verifier.Sign("tx-1", "2026-08-28T12:00:00Z", body)

	// Tamper after signing.
	tampered := bytes.Replace(body, []byte("ORD-1"), []byte("ORD-2"), 1)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/paypal", bytes.NewReader(tampered))
	req.Header.Set("Paypal-Transmission-Id", "tx-1")
	req.Header.Set("Paypal-Transmission-Time", "2026-08-28T12:00:00Z")
	req.Header.Set("Paypal-Transmission-Sig", sig)

	rec := f.do(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// No state was touched.
	backing, err := f.store.GetBackingByOrderID(context.Background(), "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, model.BackingStatusPending, backing.PaymentStatus)
}

func TestWebhookCancelsCapture(t *testing.T) {
	f := newFixture(t)
	campaign := f.seedCampaign(t, "100")
	f.seedPendingBacking(t, campaign.ID, "ORD-1", "150")

	body := []byte(`{"event_type":"PAYMENT.CAPTURE.CANCELLED","resource":{"id":"ORD-1"}}`)
	rec := f.do(f.signedWebhook(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	backing, err := f.store.GetBackingByOrderID(context.Background(), "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, model.BackingStatusCancelled, backing.PaymentStatus)
}

func TestWebhookIgnoresUnknownEventTypes(t *testing.T) {
	f := newFixture(t)

	body := []byte(`{"event_type":"CHECKOUT.ORDER.APPROVED","resource":{"id":"ORD-1"}}`)
	rec := f.do(f.signedWebhook(body))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ignored"`)
}

func TestWebhookAcknowledgesUnknownOrder(t *testing.T) {
	f := newFixture(t)

	body := []byte(`{"event_type":"PAYMENT.CAPTURE.COMPLETED","resource":{"id":"ORD-UNKNOWN"}}`)
	rec := f.do(f.signedWebhook(body))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"not_found"`)
}

func TestGetCampaignEndpoint(t *testing.T) {
	f := newFixture(t)
	campaign := f.seedCampaign(t, "1000")

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/campaigns/%d", campaign.ID), nil)
	rec := f.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"backer_count":0`)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/campaigns/9999", nil)
	rec = f.do(req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateCampaignEndpoint(t *testing.T) {
	f := newFixture(t)

	body := []byte(`{"title":"Indie Game","goal_amount":"5000","reward_tiers":[{"title":"Copy","min_amount":"25","backer_limit":100}]}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/campaigns", bytes.NewReader(body))
	req.Header.Set("X-User-Id", "owner-1")

	rec := f.do(req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var campaign model.Campaign
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &campaign))
	assert.Equal(t, model.CampaignStatusActive, campaign.Status)
	assert.Equal(t, "owner-1", campaign.OwnerID)
}
