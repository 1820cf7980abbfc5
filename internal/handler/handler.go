package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vlockster/funding/internal/model"
	"github.com/vlockster/funding/internal/paypal"
	"github.com/vlockster/funding/internal/service"
)

// Handler wires the HTTP surface to the funding services
type Handler struct {
	orders      *service.OrderService
	campaigns   *service.CampaignService
	settlements *service.SettlementService
	verifier    *paypal.WebhookVerifier
	logger      *zap.Logger
}

// NewHandler creates a new Handler instance
func NewHandler(orders *service.OrderService, campaigns *service.CampaignService, settlements *service.SettlementService, verifier *paypal.WebhookVerifier, logger *zap.Logger) *Handler {
	return &Handler{
		orders:      orders,
		campaigns:   campaigns,
		settlements: settlements,
		verifier:    verifier,
		logger:      logger,
	}
}

type createCampaignRequest struct {
	Title       string              `json:"title"`
	GoalAmount  decimal.Decimal     `json:"goal_amount"`
	RewardTiers []rewardTierRequest `json:"reward_tiers,omitempty"`
}

type rewardTierRequest struct {
	Title       string          `json:"title"`
	MinAmount   decimal.Decimal `json:"min_amount"`
	BackerLimit int64           `json:"backer_limit,omitempty"`
}

type initiateBackingRequest struct {
	RewardTierID int64           `json:"reward_id,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
}

func (h *Handler) createCampaign(w http.ResponseWriter, r *http.Request) {
	var req createCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	input := service.CreateCampaignInput{
		OwnerID:    callerID(r),
		Title:      req.Title,
		GoalAmount: req.GoalAmount,
	}
	for _, tier := range req.RewardTiers {
		input.RewardTiers = append(input.RewardTiers, service.CreateRewardTierInput{
			Title:       tier.Title,
			MinAmount:   tier.MinAmount,
			BackerLimit: tier.BackerLimit,
		})
	}

	campaign, err := h.campaigns.CreateCampaign(r.Context(), input)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, campaign)
}

func (h *Handler) getCampaign(w http.ResponseWriter, r *http.Request) {
	campaignID, err := strconv.ParseInt(chi.URLParam(r, "campaignID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid campaign id")
		return
	}

	summary, err := h.campaigns.GetCampaignSummary(r.Context(), campaignID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) initiateBacking(w http.ResponseWriter, r *http.Request) {
	campaignID, err := strconv.ParseInt(chi.URLParam(r, "campaignID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid campaign id")
		return
	}

	var req initiateBackingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.orders.InitiateBacking(r.Context(), service.InitiateBackingInput{
		BackerID:     callerID(r),
		CampaignID:   campaignID,
		RewardTierID: req.RewardTierID,
		Amount:       req.Amount,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// callerID returns the authenticated caller identity. Authentication itself
// is an upstream concern; the proxy forwards the verified subject here.
func callerID(r *http.Request) string {
	return r.Header.Get("X-User-Id")
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, model.ErrUnauthenticated.Error())
	case errors.Is(err, model.ErrSelfBacking):
		writeError(w, http.StatusForbidden, model.ErrSelfBacking.Error())
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, model.ErrCampaignNotActive):
		writeError(w, http.StatusBadRequest, model.ErrCampaignNotActive.Error())
	case errors.Is(err, model.ErrRewardUnavailable):
		writeError(w, http.StatusConflict, model.ErrRewardUnavailable.Error())
	case errors.Is(err, model.ErrAmountBelowReward):
		writeError(w, http.StatusBadRequest, model.ErrAmountBelowReward.Error())
	case errors.Is(err, model.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, model.ErrUpstream):
		// Raw gateway responses stay in the logs, not in the reply.
		writeError(w, http.StatusInternalServerError, "payment gateway request failed")
	default:
		h.logger.Error("unhandled service error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
