package shared

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// DefaultAppIDs are the iTunes ids polled when APP_IDS is unset.
var DefaultAppIDs = []int64{
	284882215, // Facebook
	389801252, // Instagram
	310633997, // WhatsApp
}

const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

type Config struct {
	AppEnv      string
	LogLevel    string
	HTTPAddr    string
	MetricsAddr string

	StoreDriver string // mysql|sqlite
	MySQLDSN    string
	SQLitePath  string

	RedisAddr string
	RedisDB   int
	RedisPass string
	CacheTTL  time.Duration

	FeedBase      string
	FeedCountry   string
	FeedUserAgent string
	FeedRPS       int
	FeedMaxPages  int

	AppIDs       []int64
	PollInterval time.Duration
	Lookback     time.Duration
	ReviewWindow time.Duration
	Workers      int
}

func Load() Config {
	// .env is optional; real environment wins over file values.
	_ = godotenv.Load()

	c := Config{
		AppEnv:        env("APP_ENV", "prod"),
		LogLevel:      env("LOG_LEVEL", "info"),
		HTTPAddr:      env("HTTP_ADDR", ":8080"),
		MetricsAddr:   env("METRICS_ADDR", ":9100"),
		StoreDriver:   strings.ToLower(env("STORE_DRIVER", "mysql")),
		MySQLDSN:      env("MYSQL_DSN", "root:root@tcp(localhost:3306)/reviews?parseTime=true&charset=utf8mb4,utf8&loc=UTC"),
		SQLitePath:    env("SQLITE_PATH", "reviews.db"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPass:     env("REDIS_PASSWORD", ""),
		RedisDB:       atoi("REDIS_DB", 0),
		CacheTTL:      dur("CACHE_TTL", time.Minute),
		FeedBase:      strings.TrimRight(env("FEED_BASE_URL", "https://itunes.apple.com"), "/"),
		FeedCountry:   env("FEED_COUNTRY", "us"),
		FeedUserAgent: env("FEED_USER_AGENT", defaultUserAgent),
		FeedRPS:       atoi("FEED_RPS", 5),
		FeedMaxPages:  atoi("FEED_MAX_PAGES", 10),
		AppIDs:        ids("APP_IDS", DefaultAppIDs),
		PollInterval:  dur("POLL_INTERVAL", 5*time.Minute),
		Lookback:      dur("LOOKBACK", 48*time.Hour),
		ReviewWindow:  dur("REVIEW_WINDOW", 48*time.Hour),
		Workers:       atoi("POLL_WORKERS", 1),
	}
	// REDIS_ADDR="" explicitly disables the cache; unset means the local default.
	if _, set := os.LookupEnv("REDIS_ADDR"); !set {
		c.RedisAddr = "localhost:6379"
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	if len(c.AppIDs) == 0 {
		log.Warn().Msg("no tracked applications configured")
	}
	return c
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func atoi(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		log.Warn().Str("key", k).Str("value", v).Msg("invalid integer, using default")
		return def
	}
	return n
}

func dur(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil || d <= 0 {
		log.Warn().Str("key", k).Str("value", v).Msg("invalid duration, using default")
		return def
	}
	return d
}

// ids parses a comma separated list of numeric application ids.
func ids(k string, def []int64) []int64 {
	v := os.Getenv(k)
	if v == "" {
		return append([]int64(nil), def...)
	}
	out, err := ParseAppIDs(v)
	if err != nil {
		log.Warn().Err(err).Str("key", k).Msg("invalid application ids, using default")
		return append([]int64(nil), def...)
	}
	return out
}

// ParseAppIDs parses "1,2, 3" into ids, skipping empty items and repeats.
func ParseAppIDs(s string) ([]int64, error) {
	seen := make(map[int64]struct{})
	var out []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, &InvalidAppIDError{Value: part}
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

type InvalidAppIDError struct{ Value string }

func (e *InvalidAppIDError) Error() string { return "invalid application id " + strconv.Quote(e.Value) }
