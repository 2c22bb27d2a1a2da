// Package itunes fetches and decodes the iTunes customer-reviews RSS feed
// (JSON flavour).
package itunes

import (
	"context"
	crand "crypto/rand"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"app_reviews/internal/adapters/observability"
)

const (
	maxBodyBytes = 8 << 20
	maxAttempts  = 4
)

var (
	ErrNotFound     = errors.New("itunes: not found")
	ErrInvalidPage  = errors.New("itunes: page numbers start at 1")
	ErrBodyTooLarge = errors.New("itunes: response body too large")
)

type Options struct {
	BaseURL   string // e.g. https://itunes.apple.com
	Country   string // storefront, e.g. us
	UserAgent string
	RPS       int
	Timeout   time.Duration
}

type Client struct {
	base    string
	country string
	ua      string
	hc      *http.Client
	rl      *rate.Limiter
}

func New(o Options) (*Client, error) {
	if o.BaseURL == "" {
		return nil, fmt.Errorf("feed base URL is required")
	}
	if o.UserAgent == "" {
		return nil, fmt.Errorf("user agent is required")
	}
	if o.Country == "" {
		o.Country = "us"
	}
	if o.RPS <= 0 {
		o.RPS = 5
	}
	if o.Timeout <= 0 {
		o.Timeout = 20 * time.Second
	}
	return &Client{
		base:    strings.TrimRight(o.BaseURL, "/"),
		country: o.Country,
		ua:      o.UserAgent,
		hc:      &http.Client{Timeout: o.Timeout},
		rl:      rate.NewLimiter(rate.Limit(o.RPS), o.RPS),
	}, nil
}

// PageURL builds the feed URL for one page of one application.
func (c *Client) PageURL(appID int64, page int) string {
	return fmt.Sprintf("%s/%s/rss/customerreviews/id=%d/sortBy=mostRecent/page=%d/json",
		c.base, c.country, appID, page)
}

// FetchPage returns the raw body of one feed page. Pages are 1-indexed.
func (c *Client) FetchPage(ctx context.Context, appID int64, page int) ([]byte, error) {
	if page < 1 {
		return nil, ErrInvalidPage
	}
	return c.get(ctx, c.PageURL(appID, page))
}

// get performs a GET with client-side rate limiting and retries.
// Retries on 429, transient 5xx and network errors, honoring Retry-After when provided.
func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	if err := c.rl.Wait(ctx); err != nil {
		return nil, err
	}

	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", c.ua)

		start := time.Now()
		resp, err := c.hc.Do(req)
		if err != nil {
			observability.ObserveExternal("itunes", "customerreviews", 0, time.Since(start))
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			if i < maxAttempts-1 && sleepCtx(ctx, backoff(i)) {
				continue
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, lastErr
		}
		observability.ObserveExternal("itunes", "customerreviews", resp.StatusCode, time.Since(start))

		switch resp.StatusCode {
		case http.StatusOK:
			b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
			resp.Body.Close()
			if err != nil {
				return nil, err
			}
			if len(b) > maxBodyBytes {
				return nil, ErrBodyTooLarge
			}
			return b, nil

		case http.StatusNotFound:
			resp.Body.Close()
			return nil, ErrNotFound

		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			wait := retryAfter(resp)
			resp.Body.Close()
			if wait == 0 {
				wait = backoff(i)
			}
			lastErr = fmt.Errorf("itunes: remote %d", resp.StatusCode)
			if i < maxAttempts-1 && sleepCtx(ctx, wait) {
				continue
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, lastErr

		default:
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return nil, fmt.Errorf("itunes: bad status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
		}
	}
	return nil, lastErr
}

// sleepCtx waits for d or returns early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// retryAfter parses Retry-After (seconds or HTTP-date). Returns 0 if absent/invalid.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// backoff doubles from 200ms per attempt with up to +50% jitter.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 200 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	return base + time.Duration(0.5*f*float64(base))
}
