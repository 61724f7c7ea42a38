package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/purrfect-spots/treats-ledger/internal/domain"
)

const (
	leaderboardKey = "treats:leaderboard"
	leaderboardTTL = 30 * time.Second
)

// Leaderboard caches the top-balances ranking in Redis so the hot
// leaderboard read does not hit Postgres on every request. All methods are
// best-effort: a Redis failure is reported to the caller, who falls back to
// the database.
type Leaderboard struct {
	client *redis.Client
}

func NewLeaderboard(client *redis.Client) *Leaderboard {
	return &Leaderboard{client: client}
}

// Get returns the cached ranking, or (nil, nil) on a cache miss.
func (c *Leaderboard) Get(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	val, err := c.client.Get(ctx, leaderboardKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var entries []domain.LeaderboardEntry
	if err := json.Unmarshal([]byte(val), &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (c *Leaderboard) Set(ctx context.Context, entries []domain.LeaderboardEntry) error {
	b, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, leaderboardKey, b, leaderboardTTL).Err()
}

// Invalidate drops the cached ranking after any applied balance mutation.
func (c *Leaderboard) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, leaderboardKey).Err()
}
