package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/eximia-labs/backend-quotes/internal/lock"
	"github.com/eximia-labs/backend-quotes/internal/obs"
	"github.com/eximia-labs/backend-quotes/internal/pricing"
)

// Snapshot is the catalog served to clients and used for computations within
// a single request. FromRemote records whether the product lists came from
// the CRM or from the static fallback.
type Snapshot struct {
	pricing.Config
	FromRemote bool `json:"fromRemote"`
}

// Service resolves the pricing catalog: remote products merged over the
// static configuration, with a wholesale fallback to the static catalog when
// the remote source is unavailable. Mixing stale remote entries with fresh
// static ones is never allowed.
type Service struct {
	static pricing.Config
	source ProductSource
	cache  *Cache
	locker *lock.Locker
	logger zerolog.Logger
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Static pricing.Config
	Source ProductSource
	Cache  *Cache
	// Locker, when set, serializes remote refreshes across instances so a
	// cache expiry does not stampede the CRM products API.
	Locker *lock.Locker
	Logger zerolog.Logger
}

const (
	cacheKey       = "pricing:catalog"
	refreshLockKey = "pricing:catalog:refresh"
	refreshLockTTL = 15 * time.Second
)

// NewService constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if len(cfg.Static.ContractTerms) == 0 {
		return nil, errors.New("catalog: static config is required")
	}
	return &Service{
		static: cfg.Static,
		source: cfg.Source,
		cache:  cfg.Cache,
		locker: cfg.Locker,
		logger: cfg.Logger,
	}, nil
}

// Static returns the normalized static fallback configuration.
func (s *Service) Static() pricing.Config {
	return s.static
}

// Snapshot returns the current catalog. The remote listing is consulted
// first (through the cache); any failure falls back to the static catalog
// wholesale so a half-fresh catalog can never be observed.
func (s *Service) Snapshot(ctx context.Context) Snapshot {
	if s.source == nil {
		return Snapshot{Config: s.static}
	}

	var cached Snapshot
	if s.cache != nil {
		if ok, err := s.cache.GetJSON(ctx, cacheKey, &cached); err == nil && ok {
			return cached
		}
	}

	if s.locker == nil {
		return s.refresh(ctx)
	}
	snap := Snapshot{Config: s.static}
	err := s.locker.WithLock(ctx, refreshLockKey, refreshLockTTL, func(ctx context.Context) error {
		// Another instance may have refreshed while we waited.
		if s.cache != nil {
			if ok, err := s.cache.GetJSON(ctx, cacheKey, &snap); err == nil && ok {
				return nil
			}
		}
		snap = s.refresh(ctx)
		return nil
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("catalog refresh lock unavailable, using static pricing config")
		return Snapshot{Config: s.static}
	}
	return snap
}

func (s *Service) refresh(ctx context.Context) Snapshot {
	products, err := s.source.ListProducts(ctx)
	if err != nil || len(products) == 0 {
		if err != nil {
			s.logger.Warn().Err(err).Msg("remote catalog unavailable, using static pricing config")
		}
		if obs.CatalogFallbackTotal != nil {
			obs.CatalogFallbackTotal.Inc()
		}
		return Snapshot{Config: s.static}
	}

	snap := Snapshot{Config: merge(s.static, products), FromRemote: true}
	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, cacheKey, snap); err != nil {
			s.logger.Warn().Err(err).Msg("cache catalog snapshot")
		}
	}
	return snap
}
