// Package payment wraps the Snap payment gateway used to collect late-return
// penalties. The gateway reports checkout results asynchronously via webhook
// notifications; this package maps every gateway-side status into one of four
// checkout outcomes so the flow controller can pattern-match instead of
// inspecting raw gateway statuses.
package payment

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"payungku-returns/internal/logger"
)

// CheckoutOutcome is the resolved result of one checkout attempt.
type CheckoutOutcome string

const (
	CheckoutSuccess CheckoutOutcome = "SUCCESS"
	CheckoutPending CheckoutOutcome = "PENDING"
	CheckoutError   CheckoutOutcome = "ERROR"
	CheckoutClosed  CheckoutOutcome = "CLOSED"
)

// Gateway abstracts the Snap checkout surface.
type Gateway interface {
	// RedirectURL builds the hosted checkout page URL for a Snap token.
	RedirectURL(snapToken string) string
	// CheckStatus queries the gateway for the current status of an order.
	CheckStatus(ctx context.Context, orderID string) (CheckoutOutcome, error)
}

type snapGateway struct {
	baseURL   string
	serverKey string
	http      *http.Client
}

func NewSnapGateway(baseURL, serverKey string) Gateway {
	return &snapGateway{
		baseURL:   baseURL,
		serverKey: serverKey,
		http:      &http.Client{Timeout: 15 * time.Second},
	}
}

func (g *snapGateway) RedirectURL(snapToken string) string {
	return fmt.Sprintf("%s/snap/v2/vtweb/%s", g.baseURL, snapToken)
}

func (g *snapGateway) CheckStatus(ctx context.Context, orderID string) (CheckoutOutcome, error) {
	endpoint := fmt.Sprintf("%s/v2/%s/status", g.baseURL, orderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return CheckoutError, err
	}
	req.SetBasicAuth(g.serverKey, "")
	req.Header.Set("Accept", "application/json")

	logger.ExternalServiceCall("snap", "CheckStatus", "orderID", orderID)
	resp, err := g.http.Do(req)
	if err != nil {
		logger.ExternalServiceResult("snap", "CheckStatus", err)
		return CheckoutError, fmt.Errorf("snap status check: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		TransactionStatus string `json:"transaction_status"`
		StatusMessage     string `json:"status_message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		logger.ExternalServiceResult("snap", "CheckStatus", err)
		return CheckoutError, fmt.Errorf("decode snap status: %w", err)
	}
	logger.ExternalServiceResult("snap", "CheckStatus", nil, "status", body.TransactionStatus)
	return MapTransactionStatus(body.TransactionStatus), nil
}

// MapTransactionStatus translates a Snap transaction_status value into a
// checkout outcome. Unknown statuses are treated as pending so the session
// stays recoverable until the gateway settles.
func MapTransactionStatus(status string) CheckoutOutcome {
	switch status {
	case "settlement", "capture":
		return CheckoutSuccess
	case "pending":
		return CheckoutPending
	case "deny", "expire", "failure":
		return CheckoutError
	case "cancel":
		return CheckoutClosed
	default:
		return CheckoutPending
	}
}

// Notification is a Snap webhook payload.
type Notification struct {
	OrderID           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	TransactionStatus string `json:"transaction_status"`
	SignatureKey      string `json:"signature_key"`
}

// VerifySignature checks the webhook signature:
// sha512(order_id + status_code + gross_amount + server_key).
func VerifySignature(n *Notification, serverKey string) bool {
	sum := sha512.Sum512([]byte(n.OrderID + n.StatusCode + n.GrossAmount + serverKey))
	return hex.EncodeToString(sum[:]) == n.SignatureKey
}
