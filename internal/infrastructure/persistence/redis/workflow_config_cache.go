package redis

import (
	"context"
	"errors"

	"github.com/iiitp-spms/spms-workflow/internal/domain/shared"
	"github.com/iiitp-spms/spms-workflow/pkg/logger"
)

// CachedConfigSource decorates a shared.WorkflowConfigSource with a short
// Redis-backed cache. Workflow configuration is read on nearly every command,
// so even a small TTL removes most of the load from the config store, while
// the short lease keeps registration-window changes visible quickly.
//
// Cache failures never fail the lookup: on any Redis error the decorator
// falls through to the underlying source.
type CachedConfigSource struct {
	source shared.WorkflowConfigSource
	cache  *Cache
	log    *logger.Logger
}

// NewCachedConfigSource wraps source with a Redis cache.
func NewCachedConfigSource(source shared.WorkflowConfigSource, cache *Cache, log *logger.Logger) *CachedConfigSource {
	return &CachedConfigSource{
		source: source,
		cache:  cache,
		log:    log.With(logger.Component("config_cache")),
	}
}

// WorkflowConfig returns the parameters for a semester and track, serving
// from cache when a fresh copy exists.
func (s *CachedConfigSource) WorkflowConfig(ctx context.Context, semester shared.Semester, track shared.Track) (shared.WorkflowConfig, error) {
	key := ConfigKey(int(semester), string(track))

	var cached shared.WorkflowConfig
	err := s.cache.Get(ctx, key, &cached)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		s.log.Warn("config cache read failed",
			logger.String("key", key),
			logger.Err(err))
	}

	cfg, err := s.source.WorkflowConfig(ctx, semester, track)
	if err != nil {
		return shared.WorkflowConfig{}, err
	}

	if err := s.cache.Set(ctx, key, cfg, TTLWorkflowConfig); err != nil {
		s.log.Warn("config cache write failed",
			logger.String("key", key),
			logger.Err(err))
	}

	return cfg, nil
}

// Invalidate drops the cached entry for one semester and track. Call after
// updating the config store so the next read sees the new row immediately.
func (s *CachedConfigSource) Invalidate(ctx context.Context, semester shared.Semester, track shared.Track) error {
	return s.cache.Delete(ctx, ConfigKey(int(semester), string(track)))
}

// InvalidateAll drops every cached configuration entry.
func (s *CachedConfigSource) InvalidateAll(ctx context.Context) error {
	return s.cache.DeleteByPattern(ctx, PrefixConfig+"*")
}
