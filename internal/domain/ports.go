package domain

import (
	"context"
	"strconv"
	"time"
)

type ReviewStore interface {
	// Read paths
	Exists(ctx context.Context, appID int64) (bool, error)
	// Latest returns ErrNotFound when nothing is stored for appID.
	Latest(ctx context.Context, appID int64) (Review, error)
	// Since returns reviews with UpdatedAt > cutoff, newest first.
	Since(ctx context.Context, appID int64, cutoff time.Time) ([]Review, error)

	// Write path. All rows become visible together or not at all;
	// no deduplication happens here.
	InsertBatch(ctx context.Context, appID int64, rs []Review) error
}

type FeedClient interface {
	FetchPage(ctx context.Context, appID int64, page int) ([]byte, error)
	DecodePage(raw []byte) ([]Review, error)
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}

// ReviewsCacheKey is shared by the read path (fill) and the poller (evict).
// gen is the UpdatedAt of the app's latest stored review; every committed
// batch moves it forward, so a list filled from an older read lands under a
// key nobody asks for again.
func ReviewsCacheKey(appID int64, gen time.Time) string {
	return "reviews:" + strconv.FormatInt(appID, 10) + ":" + strconv.FormatInt(gen.UnixNano(), 10)
}
