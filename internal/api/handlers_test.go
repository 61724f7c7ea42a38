package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/purrfect-spots/treats-ledger/internal/domain"
)

type stubLedger struct {
	creditFn func(ctx context.Context, req domain.CreditRequest) (*domain.CreditResult, error)
	giftFn   func(ctx context.Context, req domain.GiftRequest) (*domain.GiftResult, error)
}

func (s *stubLedger) CreditPurchase(ctx context.Context, req domain.CreditRequest) (*domain.CreditResult, error) {
	return s.creditFn(ctx, req)
}

func (s *stubLedger) GiveTreats(ctx context.Context, req domain.GiftRequest) (*domain.GiftResult, error) {
	return s.giftFn(ctx, req)
}

type stubStore struct {
	accounts map[int64]*domain.Account
	board    []domain.LeaderboardEntry
}

func (s *stubStore) CreateAccount(ctx context.Context) (int64, error) {
	return 1, nil
}

func (s *stubStore) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	acc, ok := s.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return acc, nil
}

func (s *stubStore) ListTransactions(ctx context.Context, accountID int64, limit int) ([]domain.Transaction, error) {
	if _, ok := s.accounts[accountID]; !ok {
		return nil, domain.ErrAccountNotFound
	}
	return nil, nil
}

func (s *stubStore) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	return s.board, nil
}

func serve(t *testing.T, ledger LedgerService, store AccountStore, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	NewRouter(NewHandler(store, ledger, nil)).ServeHTTP(rec, req)
	return rec
}

func TestPaymentWebhookApplied(t *testing.T) {
	balance := int64(100)
	ledger := &stubLedger{
		creditFn: func(ctx context.Context, req domain.CreditRequest) (*domain.CreditResult, error) {
			assert.Equal(t, "sess_1", req.PaymentSessionID)
			return &domain.CreditResult{Applied: true, NewBalance: &balance}, nil
		},
	}

	rec := serve(t, ledger, &stubStore{}, http.MethodPost, "/webhooks/payment", domain.CreditRequest{
		AccountID: 7, Amount: 100, Description: "Treat pack", PaymentSessionID: "sess_1",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var result domain.CreditResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Applied)
	require.NotNil(t, result.NewBalance)
	assert.Equal(t, int64(100), *result.NewBalance)
}

func TestPaymentWebhookDuplicate(t *testing.T) {
	ledger := &stubLedger{
		creditFn: func(ctx context.Context, req domain.CreditRequest) (*domain.CreditResult, error) {
			return &domain.CreditResult{Applied: false}, nil
		},
	}

	rec := serve(t, ledger, &stubStore{}, http.MethodPost, "/webhooks/payment", domain.CreditRequest{
		AccountID: 7, Amount: 100, PaymentSessionID: "sess_1",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var result domain.CreditResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.False(t, result.Applied)
	assert.Nil(t, result.NewBalance)
}

func TestPaymentWebhookAccountNotFound(t *testing.T) {
	ledger := &stubLedger{
		creditFn: func(ctx context.Context, req domain.CreditRequest) (*domain.CreditResult, error) {
			return nil, domain.ErrAccountNotFound
		},
	}

	rec := serve(t, ledger, &stubStore{}, http.MethodPost, "/webhooks/payment", domain.CreditRequest{
		AccountID: 424242, Amount: 100, PaymentSessionID: "sess_1",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPaymentWebhookTransientFailure(t *testing.T) {
	ledger := &stubLedger{
		creditFn: func(ctx context.Context, req domain.CreditRequest) (*domain.CreditResult, error) {
			return nil, errors.New("connection reset")
		},
	}

	rec := serve(t, ledger, &stubStore{}, http.MethodPost, "/webhooks/payment", domain.CreditRequest{
		AccountID: 7, Amount: 100, PaymentSessionID: "sess_1",
	})
	// 503 so the payment provider redelivers; the idempotency key makes
	// that redelivery safe.
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPaymentWebhookValidation(t *testing.T) {
	ledger := &stubLedger{
		creditFn: func(ctx context.Context, req domain.CreditRequest) (*domain.CreditResult, error) {
			t.Fatal("ledger must not be called for invalid payloads")
			return nil, nil
		},
	}

	cases := []struct {
		name string
		req  domain.CreditRequest
		want int
	}{
		{"zero amount", domain.CreditRequest{AccountID: 7, PaymentSessionID: "s"}, http.StatusUnprocessableEntity},
		{"negative amount", domain.CreditRequest{AccountID: 7, Amount: -5, PaymentSessionID: "s"}, http.StatusUnprocessableEntity},
		{"missing session", domain.CreditRequest{AccountID: 7, Amount: 100}, http.StatusUnprocessableEntity},
		{"missing account", domain.CreditRequest{Amount: 100, PaymentSessionID: "s"}, http.StatusUnprocessableEntity},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(t, ledger, &stubStore{}, http.MethodPost, "/webhooks/payment", tc.req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestPaymentWebhookMalformedJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	NewRouter(NewHandler(&stubStore{}, &stubLedger{}, nil)).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGiveTreats(t *testing.T) {
	ledger := &stubLedger{
		giftFn: func(ctx context.Context, req domain.GiftRequest) (*domain.GiftResult, error) {
			assert.Equal(t, int64(3), req.FromAccountID)
			return &domain.GiftResult{GiftID: 9, FromBalance: 20, ToAccountID: req.ToAccountID, AmountGifted: req.Amount}, nil
		},
	}

	rec := serve(t, ledger, &stubStore{}, http.MethodPost, "/api/v1/accounts/3/give", domain.GiftRequest{
		ToAccountID: 4, Amount: 10,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var result domain.GiftResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, int64(20), result.FromBalance)
}

func TestGiveTreatsErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"insufficient", domain.ErrInsufficientTreats, http.StatusUnprocessableEntity},
		{"self gift", domain.ErrSelfGift, http.StatusUnprocessableEntity},
		{"not found", domain.ErrAccountNotFound, http.StatusNotFound},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ledger := &stubLedger{
				giftFn: func(ctx context.Context, req domain.GiftRequest) (*domain.GiftResult, error) {
					return nil, tc.err
				},
			}
			rec := serve(t, ledger, &stubStore{}, http.MethodPost, "/api/v1/accounts/3/give", domain.GiftRequest{
				ToAccountID: 4, Amount: 10,
			})
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestGetAccount(t *testing.T) {
	st := &stubStore{accounts: map[int64]*domain.Account{
		5: {ID: 5, Balance: 150},
	}}

	rec := serve(t, &stubLedger{}, st, http.MethodGet, "/api/v1/accounts/5", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var acc domain.Account
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &acc))
	assert.Equal(t, int64(150), acc.Balance)

	rec = serve(t, &stubLedger{}, st, http.MethodGet, "/api/v1/accounts/6", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(t, &stubLedger{}, st, http.MethodGet, "/api/v1/accounts/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetLeaderboard(t *testing.T) {
	st := &stubStore{board: []domain.LeaderboardEntry{
		{AccountID: 1, Balance: 900, Rank: 1},
		{AccountID: 2, Balance: 400, Rank: 2},
	}}

	rec := serve(t, &stubLedger{}, st, http.MethodGet, "/api/v1/leaderboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var entries []domain.LeaderboardEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, int64(900), entries[0].Balance)
}

func TestHealthCheck(t *testing.T) {
	rec := serve(t, &stubLedger{}, &stubStore{}, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
