package shared_test

import (
	"errors"
	"testing"
	"time"

	"app_reviews/internal/shared"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"APP_IDS", "POLL_INTERVAL", "LOOKBACK", "POLL_WORKERS", "STORE_DRIVER"} {
		t.Setenv(k, "")
	}
	c := shared.Load()

	if c.PollInterval != 5*time.Minute {
		t.Fatalf("poll interval: got %s", c.PollInterval)
	}
	if c.Lookback != 48*time.Hour {
		t.Fatalf("lookback: got %s", c.Lookback)
	}
	if c.Workers != 1 {
		t.Fatalf("workers: got %d", c.Workers)
	}
	if c.StoreDriver != "mysql" {
		t.Fatalf("store driver: got %q", c.StoreDriver)
	}
	if len(c.AppIDs) != len(shared.DefaultAppIDs) {
		t.Fatalf("app ids: got %v", c.AppIDs)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_IDS", "1, 2,2,,3")
	t.Setenv("POLL_INTERVAL", "30s")
	t.Setenv("LOOKBACK", "12h")
	t.Setenv("POLL_WORKERS", "0")
	t.Setenv("STORE_DRIVER", "SQLite")
	t.Setenv("FEED_BASE_URL", "http://feed.local/")

	c := shared.Load()

	if got := c.AppIDs; len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("app ids: got %v", got)
	}
	if c.PollInterval != 30*time.Second || c.Lookback != 12*time.Hour {
		t.Fatalf("durations: %s %s", c.PollInterval, c.Lookback)
	}
	if c.Workers != 1 {
		t.Fatalf("workers should be clamped to 1, got %d", c.Workers)
	}
	if c.StoreDriver != "sqlite" {
		t.Fatalf("store driver: got %q", c.StoreDriver)
	}
	if c.FeedBase != "http://feed.local" {
		t.Fatalf("feed base: got %q", c.FeedBase)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("POLL_INTERVAL", "soon")
	t.Setenv("LOOKBACK", "-1h")
	t.Setenv("APP_IDS", "12,abc")

	c := shared.Load()

	if c.PollInterval != 5*time.Minute || c.Lookback != 48*time.Hour {
		t.Fatalf("expected defaults, got %s %s", c.PollInterval, c.Lookback)
	}
	if len(c.AppIDs) != len(shared.DefaultAppIDs) {
		t.Fatalf("expected default ids, got %v", c.AppIDs)
	}
}

func TestLoad_EmptyRedisAddrDisablesCache(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	if c := shared.Load(); c.RedisAddr != "" {
		t.Fatalf("expected cache disabled, got %q", c.RedisAddr)
	}
}

func TestParseAppIDs(t *testing.T) {
	if _, err := shared.ParseAppIDs("5,-1"); err == nil {
		t.Fatalf("expected error for negative id")
	}
	var ie *shared.InvalidAppIDError
	_, err := shared.ParseAppIDs("x")
	if !errors.As(err, &ie) || ie.Value != "x" {
		t.Fatalf("unexpected error: %v", err)
	}
}
