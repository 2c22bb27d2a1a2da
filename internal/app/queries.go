package app

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"app_reviews/internal/domain"
)

type QueryService struct {
	store    domain.ReviewStore
	cache    domain.Cache
	cacheTTL time.Duration
	window   time.Duration
	now      func() time.Time
}

type QueryOption func(*QueryService)

// WithQueryClock replaces time.Now for the window cutoff.
func WithQueryClock(now func() time.Time) QueryOption {
	return func(s *QueryService) { s.now = now }
}

// NewQueryService serves the last window of reviews per app. cache may be nil.
func NewQueryService(st domain.ReviewStore, c domain.Cache, ttl, window time.Duration, opts ...QueryOption) *QueryService {
	s := &QueryService{store: st, cache: c, cacheTTL: ttl, window: window, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// RecentReviews returns reviews updated within the window, newest first.
// An app with no stored reviews at all is domain.ErrNotFound; a known app
// with nothing recent is an empty slice.
//
// Cached lists are keyed by the latest stored review, so a cached read still
// costs one indexed store lookup.
func (s *QueryService) RecentReviews(ctx context.Context, appID int64) ([]domain.Review, error) {
	cutoff := s.now().UTC().Add(-s.window)
	if s.cache == nil {
		ok, err := s.store.Exists(ctx, appID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, domain.ErrNotFound
		}
		return s.since(ctx, appID, cutoff)
	}

	latest, err := s.store.Latest(ctx, appID)
	if err != nil {
		return nil, err
	}
	key := domain.ReviewsCacheKey(appID, latest.UpdatedAt)

	var cached []domain.Review
	if ok, err := s.cache.Get(ctx, key, &cached); ok {
		// the entry may be older than the window has moved since
		return newerThan(cached, cutoff), nil
	} else if err != nil {
		log.Debug().Err(err).Str("key", key).Msg("cache read failed")
	}

	out, err := s.since(ctx, appID, cutoff)
	if err != nil {
		return nil, err
	}
	// optional size guard
	if b, _ := json.Marshal(out); len(b) < 1_000_000 {
		_ = s.cache.Set(ctx, key, out, int(s.cacheTTL.Seconds()))
	}
	return out, nil
}

func (s *QueryService) since(ctx context.Context, appID int64, cutoff time.Time) ([]domain.Review, error) {
	rs, err := s.store.Since(ctx, appID, cutoff)
	if err != nil {
		return nil, err
	}
	// copy to avoid aliasing the store's backing array
	out := make([]domain.Review, len(rs))
	copy(out, rs)
	return out, nil
}
