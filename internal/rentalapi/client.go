// Package rentalapi is the HTTP client for the core rental API. The core API
// owns the rental state machine, stock control and code generation; this
// package only translates its loosely-typed JSON responses into the tagged
// types the rest of the gateway works with.
package rentalapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"payungku-returns/internal/domain"
	"payungku-returns/internal/logger"
)

const serviceName = "core-rental-api"

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// validateReturnResponse mirrors the core API's validate-return payload.
// valid/isLate/refreshed are independent booleans upstream; they are mapped
// into a single domain.ValidationOutcome here and nowhere else.
type validateReturnResponse struct {
	Valid     bool   `json:"valid"`
	IsLate    bool   `json:"isLate"`
	Refreshed bool   `json:"refreshed"`
	NewToken  string `json:"newToken"`
	Denda     int64  `json:"denda"`
	SnapToken string `json:"snapToken"`
	Message   string `json:"message"`
	Duration  string `json:"duration"`
	Transaction struct {
		RentCode       string `json:"rentCode"`
		BorrowLocation string `json:"borrowLocation"`
		ReturnLocation string `json:"returnLocation"`
		CreatedAt      string `json:"createdAt"`
	} `json:"transaction"`
	User struct {
		Name string `json:"name"`
	} `json:"user"`
}

type confirmReturnRequest struct {
	RentCode         string `json:"rentCode"`
	Token            string `json:"token"`
	ReturnLocationID string `json:"returnLocationId"`
}

type confirmReturnResponse struct {
	ReturnLockerCode string `json:"returnLockerCode"`
	RentDuration     string `json:"rentDuration"`
	Message          string `json:"message"`
}

type completeLateReturnResponse struct {
	ReturnCode string `json:"returnCode"`
	Message    string `json:"message"`
}

// ValidateReturn resolves a return token into a tagged outcome. Transport
// and decode failures are classified as INVALID with a network-failure
// reason; the error return is reserved for caller mistakes.
func (c *Client) ValidateReturn(ctx context.Context, token, locationID string) (domain.ValidationOutcome, error) {
	if token == "" {
		return domain.ValidationOutcome{}, domain.ErrEmptyToken
	}

	q := url.Values{"token": {token}}
	if locationID != "" {
		q.Set("locationId", locationID)
	}
	endpoint := fmt.Sprintf("%s/transactions/return/validate?%s", c.baseURL, q.Encode())

	logger.ExternalServiceCall(serviceName, "ValidateReturn")
	var body validateReturnResponse
	err := c.getJSON(ctx, endpoint, &body)
	logger.ExternalServiceResult(serviceName, "ValidateReturn", err)
	if err != nil {
		return domain.InvalidOutcome(domain.MsgNetworkFailure), nil
	}

	switch {
	case body.Refreshed && body.NewToken != "":
		return domain.RotatedOutcome(body.NewToken), nil
	case !body.Valid:
		reason := body.Message
		if reason == "" {
			reason = domain.MsgInvalidCode
		}
		return domain.InvalidOutcome(reason), nil
	case body.IsLate:
		if body.SnapToken == "" {
			// A late rental without a payment handle cannot be settled.
			return domain.InvalidOutcome(domain.MsgInvalidCode), nil
		}
		return domain.LateOutcome(snapshotFrom(&body), body.Denda, body.SnapToken), nil
	default:
		return domain.OnTimeOutcome(snapshotFrom(&body)), nil
	}
}

// ConfirmReturn finalizes an on-time return and yields the locker code.
func (c *Client) ConfirmReturn(ctx context.Context, rentCode, token, locationID, bearer string) (string, string, error) {
	payload, err := json.Marshal(confirmReturnRequest{
		RentCode:         rentCode,
		Token:            token,
		ReturnLocationID: locationID,
	})
	if err != nil {
		return "", "", err
	}

	endpoint := c.baseURL + "/transactions/return"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	logger.ExternalServiceCall(serviceName, "ConfirmReturn", "rentCode", rentCode)
	resp, err := c.http.Do(req)
	if err != nil {
		logger.ExternalServiceResult(serviceName, "ConfirmReturn", err)
		return "", "", fmt.Errorf("confirm return: %w", err)
	}
	defer resp.Body.Close()

	var body confirmReturnResponse
	if err := decodeResponse(resp, &body); err != nil {
		logger.ExternalServiceResult(serviceName, "ConfirmReturn", err)
		return "", "", err
	}
	logger.ExternalServiceResult(serviceName, "ConfirmReturn", nil)
	return body.ReturnLockerCode, body.RentDuration, nil
}

// CompleteLateReturn fetches the locker code after the penalty payment has
// been captured by the gateway.
func (c *Client) CompleteLateReturn(ctx context.Context, token, locationID string) (string, error) {
	q := url.Values{"token": {token}, "locationId": {locationID}}
	endpoint := fmt.Sprintf("%s/transactions/return/complete?%s", c.baseURL, q.Encode())

	logger.ExternalServiceCall(serviceName, "CompleteLateReturn")
	var body completeLateReturnResponse
	err := c.getJSON(ctx, endpoint, &body)
	logger.ExternalServiceResult(serviceName, "CompleteLateReturn", err)
	if err != nil {
		return "", err
	}
	if body.ReturnCode == "" {
		return "", fmt.Errorf("complete late return: empty return code")
	}
	return body.ReturnCode, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Error bodies still carry a "message" field; surface it when present.
		var em struct {
			Message string `json:"message"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&em); err == nil && em.Message != "" {
			return fmt.Errorf("core API status %d: %s", resp.StatusCode, em.Message)
		}
		return fmt.Errorf("core API status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode core API response: %w", err)
	}
	return nil
}

func snapshotFrom(body *validateReturnResponse) *domain.TransactionSnapshot {
	return &domain.TransactionSnapshot{
		RentCode:       body.Transaction.RentCode,
		UserName:       body.User.Name,
		BorrowLocation: body.Transaction.BorrowLocation,
		ReturnLocation: body.Transaction.ReturnLocation,
		CreatedOn:      body.Transaction.CreatedAt,
		Duration:       body.Duration,
	}
}
