package http

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

// NewRouter wires all gateway routes.
func NewRouter(returns *ReturnHandler, webhook *WebhookHandler) *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/returns", returns.Create).Methods(http.MethodPost)
	api.HandleFunc("/returns/{id}", returns.Get).Methods(http.MethodGet)
	api.HandleFunc("/returns/{id}", returns.Close).Methods(http.MethodDelete)
	api.HandleFunc("/returns/{id}/confirm", returns.Confirm).Methods(http.MethodPost)
	api.HandleFunc("/returns/{id}/pay", returns.Pay).Methods(http.MethodPost)
	api.HandleFunc("/returns/{id}/retry", returns.Retry).Methods(http.MethodPost)

	api.HandleFunc("/payments/snap/notify", webhook.HandleNotification).Methods(http.MethodPost)

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	return r
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
