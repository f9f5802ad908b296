package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/course-admission-api/pkg/errors"
)

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// CacheOption configures a CacheService.
type CacheOption func(*CacheService)

// WithCacheMetrics records hit and write timings.
func WithCacheMetrics(metrics *MetricsService) CacheOption {
	return func(s *CacheService) { s.metrics = metrics }
}

// WithCacheLogger sets the logger.
func WithCacheLogger(logger *zap.Logger) CacheOption {
	return func(s *CacheService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithCacheTTL overrides the entry lifetime.
func WithCacheTTL(ttl time.Duration) CacheOption {
	return func(s *CacheService) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithCacheNamespace prefixes every key with namespace and a colon.
func WithCacheNamespace(namespace string) CacheOption {
	return func(s *CacheService) { s.namespace = namespace }
}

// CacheService is a read-through cache. A nil service or nil repository
// disables caching and every lookup falls through to the loader.
type CacheService struct {
	repo      CacheRepository
	metrics   *MetricsService
	logger    *zap.Logger
	ttl       time.Duration
	namespace string
}

// NewCacheService constructs a cache service over repo.
func NewCacheService(repo CacheRepository, opts ...CacheOption) *CacheService {
	s := &CacheService{repo: repo, logger: zap.NewNop(), ttl: 5 * time.Minute}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.repo != nil
}

func (s *CacheService) key(key string) string {
	if s.namespace == "" {
		return key
	}
	return s.namespace + ":" + key
}

// lookup reports a hit. Repository failures count as misses.
func (s *CacheService) lookup(ctx context.Context, key string, dest interface{}) bool {
	start := time.Now()
	err := s.repo.Get(ctx, s.key(key), dest)
	s.metrics.RecordCacheOperation(err == nil, time.Since(start))
	if err != nil && !errors.Is(err, appErrors.ErrCacheMiss) {
		s.logger.Warn("cache read failed", zap.String("key", s.key(key)), zap.Error(err))
	}
	return err == nil
}

func (s *CacheService) store(ctx context.Context, key string, value interface{}) {
	start := time.Now()
	err := s.repo.Set(ctx, s.key(key), value, s.ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("cache write failed", zap.String("key", s.key(key)), zap.Error(err))
	}
}

// Forget removes the given keys.
func (s *CacheService) Forget(ctx context.Context, keys ...string) {
	if !s.Enabled() || len(keys) == 0 {
		return
	}
	full := make([]string, len(keys))
	for i, key := range keys {
		full[i] = s.key(key)
	}
	if err := s.repo.Delete(ctx, full...); err != nil {
		s.logger.Warn("cache invalidate failed", zap.Strings("keys", full), zap.Error(err))
	}
}

// Remember returns the cached value for key, or calls load and caches its
// result. A NotFound from load evicts any stale entry.
func Remember[T any](ctx context.Context, s *CacheService, key string, load func(context.Context) (*T, error)) (*T, error) {
	if !s.Enabled() {
		return load(ctx)
	}
	var cached T
	if s.lookup(ctx, key, &cached) {
		return &cached, nil
	}
	value, err := load(ctx)
	if err != nil {
		if isNotFound(err) {
			s.Forget(ctx, key)
		}
		return nil, err
	}
	s.store(ctx, key, value)
	return value, nil
}
