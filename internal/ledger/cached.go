package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/kenshin-labs/bushido-duel/internal/domain"
)

const (
	leaderboardVersionKey = "leaderboard:version"
	leaderboardPagePrefix = "leaderboard:page:"
	leaderboardTotalKey   = "leaderboard:total:"
)

// Cache is the key/value store used for leaderboard pages.
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// Cached serves leaderboard pages from a cache in front of another Service.
// Every successful submission bumps a version key so stale pages are never
// read again; they expire on their own.
type Cached struct {
	next  Service
	cache Cache
	ttl   time.Duration
}

func NewCached(next Service, cache Cache, ttl time.Duration) *Cached {
	return &Cached{next: next, cache: cache, ttl: ttl}
}

func (c *Cached) SubmitOutcome(ctx context.Context, address string, outcome domain.Outcome) (Receipt, error) {
	receipt, err := c.next.SubmitOutcome(ctx, address, outcome)
	if err != nil {
		return receipt, err
	}
	version := strconv.FormatInt(time.Now().UnixNano(), 10)
	if err := c.cache.Set(ctx, leaderboardVersionKey, version, 0); err != nil {
		log.Printf("[LEDGER] Warning: failed to invalidate leaderboard cache: %v", err)
	}
	return receipt, nil
}

func (c *Cached) QueryLeaderboard(ctx context.Context, limit, offset int) ([]Standing, error) {
	limit, offset = ClampPage(limit, offset)
	key := c.pageKey(ctx, limit, offset)

	if raw, err := c.cache.Get(ctx, key); err == nil && raw != "" {
		var standings []Standing
		if err := json.Unmarshal([]byte(raw), &standings); err == nil {
			return standings, nil
		}
		c.cache.Del(ctx, key)
	}

	standings, err := c.next.QueryLeaderboard(ctx, limit, offset)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(standings)
	if err == nil {
		if err := c.cache.Set(ctx, key, data, c.ttl); err != nil {
			log.Printf("[LEDGER] Warning: failed to cache leaderboard page: %v", err)
		}
	}
	return standings, nil
}

func (c *Cached) PlayerStats(ctx context.Context, address string) (PlayerStats, error) {
	return c.next.PlayerStats(ctx, address)
}

// TotalPlayers is cached under the same version as the pages it counts.
func (c *Cached) TotalPlayers(ctx context.Context) (uint64, error) {
	key := leaderboardTotalKey + "v" + c.version(ctx)

	if raw, err := c.cache.Get(ctx, key); err == nil && raw != "" {
		if n, err := strconv.ParseUint(raw, 10, 64); err == nil {
			return n, nil
		}
		c.cache.Del(ctx, key)
	}

	n, err := c.next.TotalPlayers(ctx)
	if err != nil {
		return 0, err
	}
	if err := c.cache.Set(ctx, key, strconv.FormatUint(n, 10), c.ttl); err != nil {
		log.Printf("[LEDGER] Warning: failed to cache player total: %v", err)
	}
	return n, nil
}

func (c *Cached) pageKey(ctx context.Context, limit, offset int) string {
	return fmt.Sprintf("%sv%s:%d:%d", leaderboardPagePrefix, c.version(ctx), limit, offset)
}

func (c *Cached) version(ctx context.Context) string {
	version, err := c.cache.Get(ctx, leaderboardVersionKey)
	if err != nil || version == "" {
		return "0"
	}
	return version
}
