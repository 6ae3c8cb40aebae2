package http

import (
	"context"
	"encoding/json"
	"net/http"

	"payungku-returns/internal/logger"
	"payungku-returns/internal/payment"
	"payungku-returns/internal/session"
)

// WebhookHandler receives Snap payment notifications. The checkout order id
// is the rent code of the transaction being returned, so notifications route
// to the live session holding that rent code.
type WebhookHandler struct {
	sessions  *session.Manager
	serverKey string
}

func NewWebhookHandler(sessions *session.Manager, serverKey string) *WebhookHandler {
	return &WebhookHandler{sessions: sessions, serverKey: serverKey}
}

func (h *WebhookHandler) HandleNotification(w http.ResponseWriter, r *http.Request) {
	var n payment.Notification
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		writeError(w, http.StatusBadRequest, "invalid notification body")
		return
	}

	if !payment.VerifySignature(&n, h.serverKey) {
		logger.Warn("Snap notification with bad signature", "orderID", n.OrderID)
		writeError(w, http.StatusForbidden, "invalid signature")
		return
	}

	outcome := payment.MapTransactionStatus(n.TransactionStatus)
	logger.Info("Snap notification received", "orderID", n.OrderID, "status", n.TransactionStatus, "outcome", outcome)

	ctl, err := h.sessions.FindByRentCode(n.OrderID)
	if err != nil {
		// No live session for this order. The gateway retries on non-2xx;
		// there is nothing to apply, so acknowledge and move on.
		logger.Warn("Snap notification for unknown session", "orderID", n.OrderID)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	// Post-payment completion outlives this request; the gateway only needs
	// the acknowledgment.
	ctl.HandlePaymentOutcome(context.WithoutCancel(r.Context()), outcome)
	writeJSON(w, http.StatusOK, map[string]string{"status": "applied"})
}
