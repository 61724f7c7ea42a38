package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"github.com/purrfect-spots/treats-ledger/internal/cache"
	"github.com/purrfect-spots/treats-ledger/internal/domain"
)

// Metrics
var (
	httpReqTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "treats_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "treats_http_request_duration_seconds",
		Help:    "Request latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"method", "endpoint"})

	creditOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "treats_purchase_credits_total",
		Help: "Purchase credit outcomes",
	}, []string{"outcome"})
)

// LedgerService is the balance-mutating surface the handlers call. Every
// write to an account goes through it.
type LedgerService interface {
	CreditPurchase(ctx context.Context, req domain.CreditRequest) (*domain.CreditResult, error)
	GiveTreats(ctx context.Context, req domain.GiftRequest) (*domain.GiftResult, error)
}

// AccountStore is the read-side surface.
type AccountStore interface {
	CreateAccount(ctx context.Context) (int64, error)
	GetAccount(ctx context.Context, id int64) (*domain.Account, error)
	ListTransactions(ctx context.Context, accountID int64, limit int) ([]domain.Transaction, error)
	Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error)
}

type Handler struct {
	store   AccountStore
	ledger  LedgerService
	lbCache *cache.Leaderboard // nil when Redis is not configured
}

func NewHandler(store AccountStore, ledger LedgerService, lbCache *cache.Leaderboard) *Handler {
	return &Handler{store: store, ledger: ledger, lbCache: lbCache}
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"}, r.Method, "/health")
}

// PaymentWebhook is the endpoint the payment-webhook route posts completed
// checkout events to. Signature verification already happened upstream; the
// only job here is to credit the account exactly once per payment session.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpLatency.WithLabelValues("POST", "/webhooks/payment"))
	defer timer.ObserveDuration()

	var req domain.CreditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "POST", "/webhooks/payment")
		return
	}

	if req.Amount <= 0 {
		h.respondError(w, http.StatusUnprocessableEntity, "Amount must be positive", "POST", "/webhooks/payment")
		return
	}
	if req.PaymentSessionID == "" {
		h.respondError(w, http.StatusUnprocessableEntity, "Missing payment_session_id", "POST", "/webhooks/payment")
		return
	}
	if req.AccountID <= 0 {
		h.respondError(w, http.StatusUnprocessableEntity, "Missing account_id", "POST", "/webhooks/payment")
		return
	}

	result, err := h.ledger.CreditPurchase(r.Context(), req)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			creditOutcomes.WithLabelValues("account_not_found").Inc()
			h.respondError(w, http.StatusNotFound, "Account not found", "POST", "/webhooks/payment")
			return
		}
		// Transient storage failure: a 503 tells the payment provider to
		// redeliver, which the idempotency key makes safe.
		creditOutcomes.WithLabelValues("error").Inc()
		logrus.WithError(err).WithField("payment_session_id", req.PaymentSessionID).
			Error("purchase credit failed")
		h.respondError(w, http.StatusServiceUnavailable, "Temporary failure, retry later", "POST", "/webhooks/payment")
		return
	}

	if result.Applied {
		creditOutcomes.WithLabelValues("applied").Inc()
		h.invalidateLeaderboard(r.Context())
	} else {
		creditOutcomes.WithLabelValues("duplicate").Inc()
	}
	h.respondJSON(w, http.StatusOK, result, "POST", "/webhooks/payment")
}

func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	id, err := h.store.CreateAccount(r.Context())
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "System error creating account", "POST", "/accounts")
		return
	}
	h.respondJSON(w, http.StatusCreated, map[string]int64{"account_id": id}, "POST", "/accounts")
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "GET", "/accounts/{id}")
	if !ok {
		return
	}

	account, err := h.store.GetAccount(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			h.respondError(w, http.StatusNotFound, "Account not found", "GET", "/accounts/{id}")
			return
		}
		h.respondError(w, http.StatusInternalServerError, "Internal Server Error", "GET", "/accounts/{id}")
		return
	}
	h.respondJSON(w, http.StatusOK, account, "GET", "/accounts/{id}")
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "GET", "/accounts/{id}/transactions")
	if !ok {
		return
	}

	limit := queryLimit(r, 50, 200)
	txns, err := h.store.ListTransactions(r.Context(), id, limit)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			h.respondError(w, http.StatusNotFound, "Account not found", "GET", "/accounts/{id}/transactions")
			return
		}
		h.respondError(w, http.StatusInternalServerError, "Internal Server Error", "GET", "/accounts/{id}/transactions")
		return
	}
	if txns == nil {
		txns = []domain.Transaction{}
	}
	h.respondJSON(w, http.StatusOK, txns, "GET", "/accounts/{id}/transactions")
}

func (h *Handler) GiveTreats(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpLatency.WithLabelValues("POST", "/accounts/{id}/give"))
	defer timer.ObserveDuration()

	id, ok := h.pathID(w, r, "POST", "/accounts/{id}/give")
	if !ok {
		return
	}

	var req domain.GiftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "POST", "/accounts/{id}/give")
		return
	}
	req.FromAccountID = id

	if req.Amount <= 0 {
		h.respondError(w, http.StatusUnprocessableEntity, "Amount must be positive", "POST", "/accounts/{id}/give")
		return
	}

	result, err := h.ledger.GiveTreats(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrSelfGift):
			h.respondError(w, http.StatusUnprocessableEntity, "Cannot gift treats to self", "POST", "/accounts/{id}/give")
		case errors.Is(err, domain.ErrInsufficientTreats):
			h.respondError(w, http.StatusUnprocessableEntity, "Insufficient treats", "POST", "/accounts/{id}/give")
		case errors.Is(err, domain.ErrAccountNotFound):
			h.respondError(w, http.StatusNotFound, "Account not found", "POST", "/accounts/{id}/give")
		default:
			logrus.WithError(err).Error("gift failed")
			h.respondError(w, http.StatusInternalServerError, "Internal Server Error", "POST", "/accounts/{id}/give")
		}
		return
	}

	h.invalidateLeaderboard(r.Context())
	h.respondJSON(w, http.StatusCreated, result, "POST", "/accounts/{id}/give")
}

func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 10, 100)

	if h.lbCache != nil {
		cached, err := h.lbCache.Get(r.Context())
		if err != nil {
			logrus.WithError(err).Warn("leaderboard cache read failed")
		} else if cached != nil && len(cached) >= limit {
			h.respondJSON(w, http.StatusOK, cached[:limit], "GET", "/leaderboard")
			return
		}
	}

	entries, err := h.store.Leaderboard(r.Context(), limit)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "Internal Server Error", "GET", "/leaderboard")
		return
	}
	if entries == nil {
		entries = []domain.LeaderboardEntry{}
	}

	if h.lbCache != nil {
		if err := h.lbCache.Set(r.Context(), entries); err != nil {
			logrus.WithError(err).Warn("leaderboard cache write failed")
		}
	}
	h.respondJSON(w, http.StatusOK, entries, "GET", "/leaderboard")
}

func (h *Handler) invalidateLeaderboard(ctx context.Context) {
	if h.lbCache == nil {
		return
	}
	if err := h.lbCache.Invalidate(ctx); err != nil {
		logrus.WithError(err).Warn("leaderboard cache invalidation failed")
	}
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, method, endpoint string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		h.respondError(w, http.StatusBadRequest, "Invalid account id", method, endpoint)
		return 0, false
	}
	return id, true
}

func queryLimit(r *http.Request, def, max int) int {
	limit := def
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > max {
		limit = max
	}
	return limit
}

// Helpers
func (h *Handler) respondJSON(w http.ResponseWriter, code int, payload interface{}, method, endpoint string) {
	httpReqTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

func (h *Handler) respondError(w http.ResponseWriter, code int, msg, method, endpoint string) {
	h.respondJSON(w, code, map[string]string{"error": msg}, method, endpoint)
}
