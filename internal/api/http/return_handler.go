// Package http exposes the return-validation flow as the JSON API the SPA
// polls. Handlers never block on the flow's network calls: actions return
// immediately and the client observes the settled state on the next poll.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"payungku-returns/internal/domain"
	"payungku-returns/internal/flow"
	"payungku-returns/internal/security"
	"payungku-returns/internal/session"
)

type ReturnHandler struct {
	sessions *session.Manager
	tokens   security.TokenValidator
}

func NewReturnHandler(sessions *session.Manager, tokens security.TokenValidator) *ReturnHandler {
	return &ReturnHandler{sessions: sessions, tokens: tokens}
}

type createReturnRequest struct {
	Token            string `json:"token"`
	DeviceID         string `json:"device_id"`
	ReturnLocationID string `json:"return_location_id"`
}

func (h *ReturnHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createReturnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctl, err := h.sessions.Create(r.Context(), session.CreateParams{
		Token:            req.Token,
		DeviceID:         req.DeviceID,
		ReturnLocationID: req.ReturnLocationID,
	})
	if err != nil {
		if errors.Is(err, domain.ErrEmptyToken) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	writeJSON(w, http.StatusCreated, ctl.Snapshot())
}

func (h *ReturnHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctl, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ctl.Snapshot())
}

type confirmReturnRequest struct {
	ReturnLocationID string `json:"return_location_id"`
}

func (h *ReturnHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	ctl, ok := h.lookup(w, r)
	if !ok {
		return
	}

	bearer := bearerToken(r)
	if bearer == "" {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}
	if _, err := h.tokens.Validate(bearer); err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	var req confirmReturnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// The confirmation call outlives this request; the client observes the
	// result on its next poll.
	if err := ctl.ConfirmReturn(context.WithoutCancel(r.Context()), req.ReturnLocationID, bearer); err != nil {
		writeTransitionError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ctl.Snapshot())
}

func (h *ReturnHandler) Pay(w http.ResponseWriter, r *http.Request) {
	ctl, ok := h.lookup(w, r)
	if !ok {
		return
	}

	checkout, err := ctl.PayPenalty()
	if err != nil {
		if errors.Is(err, domain.ErrMissingPaymentHandle) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeTransitionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, checkout)
}

func (h *ReturnHandler) Retry(w http.ResponseWriter, r *http.Request) {
	ctl, ok := h.lookup(w, r)
	if !ok {
		return
	}

	// Re-validation outlives this request.
	if err := ctl.Retry(context.WithoutCancel(r.Context())); err != nil {
		writeTransitionError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ctl.Snapshot())
}

func (h *ReturnHandler) Close(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.sessions.Close(id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ReturnHandler) lookup(w http.ResponseWriter, r *http.Request) (*flow.Controller, bool) {
	id := mux.Vars(r)["id"]
	ctl, err := h.sessions.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	return ctl, true
}

func writeTransitionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrSessionClosed):
		writeError(w, http.StatusGone, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}
