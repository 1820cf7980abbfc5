package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/vlockster/funding/internal/metrics"
	"github.com/vlockster/funding/internal/paypal"
	"github.com/vlockster/funding/internal/service"
)

// Webhook bodies are small JSON envelopes; anything larger is suspect.
const maxWebhookBody = 1 << 20

type webhookResponse struct {
	Status string                    `json:"status"`
	Event  string                    `json:"event,omitempty"`
	Result *service.SettlementResult `json:"result,omitempty"`
}

// handlePaymentWebhook authenticates and dispatches gateway payment events.
// Verification runs over the exact bytes received, before any parsing; a
// failed signature short-circuits with 401 and the body is never trusted.
func (h *Handler) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	rawBody, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable request body")
		return
	}

	headers := paypal.HeadersFromRequest(r.Header)
	if !h.verifier.Verify(headers, rawBody) {
		metrics.WebhookEvents.WithLabelValues("unknown", "unauthorized").Inc()
		h.logger.Warn("webhook signature verification failed",
			zap.String("transmission_id", headers.TransmissionID))
		writeError(w, http.StatusUnauthorized, "webhook signature verification failed")
		return
	}

	var event paypal.WebhookEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		metrics.WebhookEvents.WithLabelValues("unknown", "malformed").Inc()
		writeError(w, http.StatusBadRequest, "malformed event body")
		return
	}

	switch event.EventType {
	case paypal.EventCaptureCompleted:
		captured, hasAmount := event.CapturedAmount()
		result, err := h.settlements.SettleCapture(r.Context(), event.OrderID(), captured, hasAmount)
		if err != nil {
			metrics.WebhookEvents.WithLabelValues(event.EventType, "error").Inc()
			h.logger.Error("settlement failed",
				zap.String("event_id", event.ID),
				zap.String("order_id", event.OrderID()),
				zap.Error(err))
			writeError(w, http.StatusInternalServerError, "settlement failed")
			return
		}
		metrics.WebhookEvents.WithLabelValues(event.EventType, result.Status).Inc()
		writeJSON(w, http.StatusOK, webhookResponse{Status: "ok", Event: event.EventType, Result: result})

	case paypal.EventCaptureCancelled:
		result, err := h.settlements.CancelCapture(r.Context(), event.OrderID())
		if err != nil {
			metrics.WebhookEvents.WithLabelValues(event.EventType, "error").Inc()
			h.logger.Error("cancellation failed",
				zap.String("event_id", event.ID),
				zap.String("order_id", event.OrderID()),
				zap.Error(err))
			writeError(w, http.StatusInternalServerError, "cancellation failed")
			return
		}
		metrics.WebhookEvents.WithLabelValues(event.EventType, result.Status).Inc()
		writeJSON(w, http.StatusOK, webhookResponse{Status: "ok", Event: event.EventType, Result: result})

	default:
		// Acknowledge everything else so the gateway stops redelivering.
		metrics.WebhookEvents.WithLabelValues(event.EventType, "ignored").Inc()
		writeJSON(w, http.StatusOK, webhookResponse{Status: "ok", Event: event.EventType,
			Result: &service.SettlementResult{Status: "ignored"}})
	}
}
