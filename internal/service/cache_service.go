package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/farhanpavel/cognit-api/internal/models"
	appErrors "github.com/farhanpavel/cognit-api/pkg/errors"
)

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Incr(ctx context.Context, key string) (int64, error)
}

// CacheService caches request rows read on the hot paths (stream
// authorisation, detail views) and drops them after every transition.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
	enabled    bool
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = 2 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, defaultTTL: defaultTTL, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

func requestCacheKey(id string) string {
	return "donation-request:" + id
}

func requestGenerationKey(id string) string {
	return "donation-request-gen:" + id
}

// cachedRequest tags a request with the invalidation generation that was
// current before it was read from the store.
type cachedRequest struct {
	Generation int64                  `json:"generation"`
	Request    models.DonationRequest `json:"request"`
}

func (s *CacheService) generation(ctx context.Context, id string) (int64, error) {
	var gen int64
	err := s.repo.Get(ctx, requestGenerationKey(id), &gen)
	if errors.Is(err, appErrors.ErrCacheMiss) {
		return 0, nil
	}
	return gen, err
}

// GetRequest returns the cached request and whether it was a hit. On a miss
// the returned generation must be handed to PutRequest after reading the
// store. Cache failures are logged and reported as misses.
func (s *CacheService) GetRequest(ctx context.Context, id string) (*models.DonationRequest, int64, bool) {
	if !s.Enabled() {
		return nil, -1, false
	}
	start := time.Now()
	gen, err := s.generation(ctx, id)
	if err != nil {
		s.metrics.RecordCacheOperation(false, time.Since(start))
		s.logger.Warn("cache generation read failed", zap.String("request_id", id), zap.Error(err))
		return nil, -1, false
	}
	var entry cachedRequest
	err = s.repo.Get(ctx, requestCacheKey(id), &entry)
	hit := err == nil && entry.Generation == gen
	s.metrics.RecordCacheOperation(hit, time.Since(start))
	if err != nil && !errors.Is(err, appErrors.ErrCacheMiss) {
		s.logger.Warn("cache get failed", zap.String("request_id", id), zap.Error(err))
	}
	if !hit {
		return nil, gen, false
	}
	return &entry.Request, gen, true
}

// PutRequest stores req tagged with gen. Entries written after a concurrent
// InvalidateRequest carry an old generation and are never served.
func (s *CacheService) PutRequest(ctx context.Context, req *models.DonationRequest, gen int64) {
	if !s.Enabled() || req == nil || gen < 0 {
		return
	}
	start := time.Now()
	err := s.repo.Set(ctx, requestCacheKey(req.ID), cachedRequest{Generation: gen, Request: *req}, s.defaultTTL)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("cache set failed", zap.String("request_id", req.ID), zap.Error(err))
	}
}

// InvalidateRequest bumps the request's generation and drops the cached copy.
func (s *CacheService) InvalidateRequest(ctx context.Context, id string) {
	if !s.Enabled() {
		return
	}
	if _, err := s.repo.Incr(ctx, requestGenerationKey(id)); err != nil {
		s.logger.Warn("cache generation bump failed", zap.String("request_id", id), zap.Error(err))
	}
	if err := s.repo.Delete(ctx, requestCacheKey(id)); err != nil {
		s.logger.Warn("cache invalidate failed", zap.String("request_id", id), zap.Error(err))
	}
}
