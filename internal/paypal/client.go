package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/vlockster/funding/internal/config"
	"github.com/vlockster/funding/internal/model"
)

// Client talks to the payment gateway's REST API. All calls are rate
// limited and timeout bounded; a hung gateway call must not hold the
// caller's request open indefinitely.
type Client struct {
	cfg        config.PayPalConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewClient creates a gateway client from injected configuration
func NewClient(cfg config.PayPalConfig, logger *zap.Logger) *Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.TimeoutSec) * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.MaxRPS), cfg.MaxRPS),
		logger:  logger,
	}
}

// OrderRequest carries the data needed to create a remote payment order.
// The correlation fields travel as opaque metadata on the order and come
// back with the capture webhook for reconciliation.
type OrderRequest struct {
	Amount       decimal.Decimal
	Description  string
	BackerID     string
	CampaignID   int64
	RewardTierID int64 // zero when no reward was selected
}

type orderCorrelation struct {
	BackerID     string `json:"backer_id"`
	CampaignID   int64  `json:"campaign_id"`
	RewardTierID int64  `json:"reward_tier_id,omitempty"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

type createOrderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// CreateOrder obtains a bearer credential and submits an order-creation
// request. It returns the external order id used later as the webhook
// correlation key.
func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (string, error) {
	token, err := c.token(ctx)
	if err != nil {
		return "", err
	}

	correlation, err := json.Marshal(orderCorrelation{
		BackerID:     req.BackerID,
		CampaignID:   req.CampaignID,
		RewardTierID: req.RewardTierID,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode order correlation: %w", err)
	}

	body := map[string]interface{}{
		"intent": "CAPTURE",
		"purchase_units": []map[string]interface{}{
			{
				"amount": map[string]string{
					"currency_code": c.cfg.Currency,
					"value":         req.Amount.StringFixed(2),
				},
				"description": req.Description,
				"custom_id":   string(correlation),
			},
		},
		"application_context": map[string]string{
			"return_url": c.cfg.ReturnURL,
			"cancel_url": c.cfg.CancelURL,
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to encode order request: %w", err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v2/checkout/orders", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build order request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error("gateway order creation failed",
			zap.String("backer_id", req.BackerID),
			zap.Int64("campaign_id", req.CampaignID),
			zap.Error(err))
		return "", fmt.Errorf("order creation: %w", model.ErrUpstream)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("gateway rejected order creation",
			zap.String("backer_id", req.BackerID),
			zap.Int64("campaign_id", req.CampaignID),
			zap.Int("status_code", resp.StatusCode),
			zap.ByteString("response", respBody))
		return "", fmt.Errorf("order creation returned %d: %w", resp.StatusCode, model.ErrUpstream)
	}

	var order createOrderResponse
	if err := json.Unmarshal(respBody, &order); err != nil || order.ID == "" {
		c.logger.Error("gateway returned an unreadable order response",
			zap.Int64("campaign_id", req.CampaignID),
			zap.ByteString("response", respBody))
		return "", fmt.Errorf("order response decode: %w", model.ErrUpstream)
	}

	return order.ID, nil
}

// token returns a cached bearer token, refreshing it through the
// client-credentials exchange when missing or close to expiry.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error("gateway token exchange failed", zap.Error(err))
		return "", fmt.Errorf("token exchange: %w", model.ErrUpstream)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("gateway rejected token exchange",
			zap.Int("status_code", resp.StatusCode),
			zap.ByteString("response", respBody))
		return "", fmt.Errorf("token exchange returned %d: %w", resp.StatusCode, model.ErrUpstream)
	}

	var token tokenResponse
	if err := json.Unmarshal(respBody, &token); err != nil || token.AccessToken == "" {
		return "", fmt.Errorf("token response decode: %w", model.ErrUpstream)
	}

	c.accessToken = token.AccessToken
	// Refresh a little early so in-flight calls never carry a stale token.
	c.tokenExpiry = time.Now().Add(time.Duration(token.ExpiresIn)*time.Second - 30*time.Second)

	c.logger.Debug("refreshed gateway access token",
		zap.String("expires_in", strconv.Itoa(token.ExpiresIn)+"s"))

	return c.accessToken, nil
}
