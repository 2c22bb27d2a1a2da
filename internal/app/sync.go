package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"app_reviews/internal/adapters/observability"
	"app_reviews/internal/domain"
)

// SyncResult summarizes one application's poll.
type SyncResult struct {
	AppID   int64
	Pages   int // fetch attempts, including the one that stopped pagination
	Fetched int // in-window entries seen on the feed
	Added   int // entries committed to the store
}

// SyncService pulls new reviews for one application at a time from the feed
// into the store.
type SyncService struct {
	feed     domain.FeedClient
	store    domain.ReviewStore
	cache    domain.Cache
	lookback time.Duration
	maxPages int
	now      func() time.Time

	inflight singleflight.Group
}

type SyncOption func(*SyncService)

// WithClock replaces time.Now for the lookback cutoff.
func WithClock(now func() time.Time) SyncOption {
	return func(s *SyncService) { s.now = now }
}

// WithMaxPages caps pages fetched per poll. 0 means no cap.
func WithMaxPages(n int) SyncOption {
	return func(s *SyncService) {
		if n >= 0 {
			s.maxPages = n
		}
	}
}

// NewSyncService wires the sync engine. cache may be nil.
func NewSyncService(feed domain.FeedClient, store domain.ReviewStore, cache domain.Cache, lookback time.Duration, opts ...SyncOption) *SyncService {
	s := &SyncService{
		feed:     feed,
		store:    store,
		cache:    cache,
		lookback: lookback,
		maxPages: 10,
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Poll computes and persists the delta for appID since its latest stored
// review. Concurrent calls for the same appID share a single run.
//
// Fetch and decode failures end pagination and are not returned; only store
// failures and cancellation are. A fetch failure also drops whatever the
// earlier pages produced, so the next poll walks the whole window again.
// The returned result is filled in as far as the poll got.
func (s *SyncService) Poll(ctx context.Context, appID int64) (SyncResult, error) {
	v, err, _ := s.inflight.Do(strconv.FormatInt(appID, 10), func() (any, error) {
		return s.poll(ctx, appID)
	})
	res, _ := v.(SyncResult)
	return res, err
}

func (s *SyncService) poll(ctx context.Context, appID int64) (SyncResult, error) {
	start := time.Now()
	lg := log.With().Int64("app_id", appID).Logger()
	res := SyncResult{AppID: appID}

	latest, err := s.store.Latest(ctx, appID)
	hasLatest := err == nil
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		lg.Warn().Err(err).Msg("read latest review failed")
		observability.ObservePoll("store_read", 0, 0, time.Since(start))
		return res, fmt.Errorf("poll app %d: latest: %w", appID, err)
	}

	cutoff := s.now().UTC().Add(-s.lookback)
	candidates, pages, fetchErr := s.collect(ctx, lg, appID, cutoff)
	res.Pages = pages
	res.Fetched = len(candidates)

	if err := ctx.Err(); err != nil {
		lg.Info().Int("pages", pages).Msg("poll canceled")
		observability.ObservePoll("canceled", res.Fetched, 0, time.Since(start))
		return res, err
	}
	// committing the earlier pages would move Latest past the reviews on
	// the page that failed
	if fetchErr != nil {
		lg.Warn().Err(fetchErr).Int("pages", pages).Int("discarded", res.Fetched).Msg("fetch failed, delta discarded")
		observability.ObservePoll("fetch_error", res.Fetched, 0, time.Since(start))
		return res, nil
	}

	delta := candidates
	if hasLatest {
		delta = newerThan(candidates, latest.UpdatedAt)
	}

	if len(delta) > 0 {
		if err := s.store.InsertBatch(ctx, appID, delta); err != nil {
			lg.Error().Err(err).Int("delta", len(delta)).Msg("insert reviews failed")
			observability.ObservePoll("store_write", res.Fetched, 0, time.Since(start))
			return res, fmt.Errorf("poll app %d: insert: %w", appID, err)
		}
		res.Added = len(delta)
		if hasLatest {
			s.invalidate(ctx, lg, domain.ReviewsCacheKey(appID, latest.UpdatedAt))
		}
	}

	lg.Info().
		Int("pages", res.Pages).
		Int("fetched", res.Fetched).
		Int("added", res.Added).
		Dur("took", time.Since(start)).
		Msg("poll complete")
	observability.ObservePoll("ok", res.Fetched, res.Added, time.Since(start))
	return res, nil
}

// collect walks the feed from page 1 and returns in-window entries in feed
// order, plus the number of fetch attempts. The error is set only when a
// fetch failed; every other way pagination ends leaves it nil.
func (s *SyncService) collect(ctx context.Context, lg zerolog.Logger, appID int64, cutoff time.Time) ([]domain.Review, int, error) {
	var (
		out   []domain.Review
		pages int
		seen  = make(map[string]struct{})
	)
	for page := 1; s.maxPages == 0 || page <= s.maxPages; page++ {
		if ctx.Err() != nil {
			return out, pages, nil
		}
		pages++

		raw, err := s.feed.FetchPage(ctx, appID, page)
		if err != nil {
			lg.Warn().Err(err).Int("page", page).Msg("fetch page failed, stopping pagination")
			observability.ObservePage("fetch_error")
			return out, pages, fmt.Errorf("page %d: %w", page, err)
		}
		rs, err := s.feed.DecodePage(raw)
		if err != nil {
			lg.Warn().Err(err).Int("page", page).Msg("decode page failed, stopping pagination")
			observability.ObservePage("decode_error")
			return out, pages, nil
		}
		if len(rs) == 0 {
			observability.ObservePage("empty")
			return out, pages, nil
		}
		observability.ObservePage("ok")

		for _, r := range rs {
			if r.UpdatedAt.Before(cutoff) {
				lg.Debug().Int("page", page).Time("cutoff", cutoff).Msg("lookback boundary reached")
				return out, pages, nil
			}
			// the feed can shift between two page fetches
			if _, dup := seen[r.ReviewID]; dup {
				continue
			}
			seen[r.ReviewID] = struct{}{}
			r.AppID = appID
			r.UpdatedAt = r.UpdatedAt.UTC()
			out = append(out, r)
		}
	}
	lg.Debug().Int("max_pages", s.maxPages).Msg("page cap reached")
	return out, pages, nil
}

func newerThan(rs []domain.Review, after time.Time) []domain.Review {
	out := make([]domain.Review, 0, len(rs))
	for _, r := range rs {
		if r.UpdatedAt.After(after) {
			out = append(out, r)
		}
	}
	return out
}

// invalidate drops the list cached under the generation this poll replaced.
// Readers switch keys on their own once the batch is visible.
func (s *SyncService) invalidate(ctx context.Context, lg zerolog.Logger, key string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, key); err != nil {
		lg.Warn().Err(err).Msg("cache invalidation failed")
	}
}
