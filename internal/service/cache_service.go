package service

import (
	"context"
	"strconv"
	"time"
)

const (
	dashboardKeyPattern  = "dashboard:*"
	adminSummaryCacheKey = "dashboard:summary:admin"
)

type cacheStore interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CacheService centralises cache key layout so writers and invalidators
// cannot drift apart.
type CacheService struct {
	store cacheStore
}

// NewCacheService constructs the cache service.
func NewCacheService(store cacheStore) *CacheService {
	return &CacheService{store: store}
}

// Get reads a cached value into dest. Returns ErrCacheMiss when absent.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) error {
	return s.store.Get(ctx, key, dest)
}

// Set stores a value under key with the given TTL.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return s.store.Set(ctx, key, value, ttl)
}

// InvalidateSummaries drops every cached dashboard payload. Called after any
// lifecycle mutation so counters never serve stale state beyond the TTL.
func (s *CacheService) InvalidateSummaries(ctx context.Context) error {
	return s.store.DeleteByPattern(ctx, dashboardKeyPattern)
}

// UserSummaryKey returns the cache key for a requester-scoped summary.
func UserSummaryKey(userID string) string {
	return "dashboard:summary:user:" + userID
}

// TrendKey returns the cache key for an n-day trend payload.
func TrendKey(days int) string {
	return "dashboard:trend:" + strconv.Itoa(days)
}
