package domain

import "time"

// Transaction categories recorded in the ledger.
const (
	CategoryPurchase     = "purchase"
	CategoryGiftSent     = "gift_sent"
	CategoryGiftReceived = "gift_received"
)

// Account represents a user's treat balance. Balance is a whole number of
// treats and is never negative.
type Account struct {
	ID        int64     `json:"id"`
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
}

// Transaction is one immutable ledger row. Amount is signed: positive for
// credits, negative for debits. PaymentSessionID is set only for purchase
// credits and is unique across the table.
type Transaction struct {
	ID               int64     `json:"id"`
	AccountID        int64     `json:"account_id"`
	Amount           int64     `json:"amount"`
	Category         string    `json:"category"`
	Description      string    `json:"description"`
	PaymentSessionID *string   `json:"payment_session_id,omitempty"`
	GiftID           *int64    `json:"gift_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// CreditRequest is the payload delivered by the payment webhook route. The
// caller has already verified the payment event with the provider; this
// service trusts it.
type CreditRequest struct {
	AccountID        int64  `json:"account_id"`
	Amount           int64  `json:"amount"`
	Description      string `json:"description"`
	PaymentSessionID string `json:"payment_session_id"`
}

// CreditResult reports the outcome of a purchase credit. Applied is false
// when the payment session was already processed; NewBalance is only
// meaningful when Applied is true.
type CreditResult struct {
	Applied    bool   `json:"applied"`
	NewBalance *int64 `json:"new_balance"`
}

// GiftRequest moves treats from one account to another.
type GiftRequest struct {
	FromAccountID int64  `json:"from_account_id"`
	ToAccountID   int64  `json:"to_account_id"`
	Amount        int64  `json:"amount"`
	Note          string `json:"note"`
}

// GiftResult is returned after a successful gift.
type GiftResult struct {
	GiftID       int64 `json:"gift_id"`
	FromBalance  int64 `json:"from_balance"`
	ToAccountID  int64 `json:"to_account_id"`
	AmountGifted int64 `json:"amount_gifted"`
}

// LeaderboardEntry is one row of the top-balances ranking.
type LeaderboardEntry struct {
	AccountID int64 `json:"account_id"`
	Balance   int64 `json:"balance"`
	Rank      int   `json:"rank"`
}
