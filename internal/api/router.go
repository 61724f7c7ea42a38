package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires all routes. Kept out of main so handler tests exercise the
// same routing table the server runs.
func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)

	r.HandleFunc("/webhooks/payment", h.PaymentWebhook).Methods(http.MethodPost)

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.HandleFunc("/accounts", h.CreateAccount).Methods(http.MethodPost)
	apiV1.HandleFunc("/accounts/{id}", h.GetAccount).Methods(http.MethodGet)
	apiV1.HandleFunc("/accounts/{id}/transactions", h.ListTransactions).Methods(http.MethodGet)
	apiV1.HandleFunc("/accounts/{id}/give", h.GiveTreats).Methods(http.MethodPost)
	apiV1.HandleFunc("/leaderboard", h.GetLeaderboard).Methods(http.MethodGet)

	return r
}
