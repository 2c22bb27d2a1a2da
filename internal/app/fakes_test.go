package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"app_reviews/internal/domain"
)

// ---- fakes ----

type fakeStore struct {
	mu        sync.Mutex
	rows      map[int64][]domain.Review
	inserts   int
	latestErr error
	insertErr error
	existsErr error
	cutoffs   []time.Time
	onSince   func() // runs after Since has read its rows
}

func newFakeStore() *fakeStore { return &fakeStore{rows: map[int64][]domain.Review{}} }

func (f *fakeStore) Exists(ctx context.Context, appID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.existsErr != nil {
		return false, f.existsErr
	}
	return len(f.rows[appID]) > 0, nil
}

func (f *fakeStore) Latest(ctx context.Context, appID int64) (domain.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.latestErr != nil {
		return domain.Review{}, f.latestErr
	}
	rs := f.rows[appID]
	if len(rs) == 0 {
		return domain.Review{}, domain.ErrNotFound
	}
	best := rs[0]
	for _, r := range rs[1:] {
		if !r.UpdatedAt.Before(best.UpdatedAt) {
			best = r
		}
	}
	return best, nil
}

func (f *fakeStore) Since(ctx context.Context, appID int64, cutoff time.Time) ([]domain.Review, error) {
	f.mu.Lock()
	f.cutoffs = append(f.cutoffs, cutoff)
	out := []domain.Review{}
	for _, r := range f.rows[appID] {
		if r.UpdatedAt.After(cutoff) {
			out = append(out, r)
		}
	}
	hook := f.onSince
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (f *fakeStore) InsertBatch(ctx context.Context, appID int64, rs []domain.Review) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserts++
	f.rows[appID] = append(f.rows[appID], rs...)
	return nil
}

func (f *fakeStore) count(appID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows[appID])
}

func (f *fakeStore) ids(appID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, r := range f.rows[appID] {
		out = append(out, r.ReviewID)
	}
	return out
}

var errFetch = errors.New("connection reset")

// fakeFeed serves pages by number. Pages past the last one decode empty.
// FetchPage returns the page number as the raw body so DecodePage can look
// it up again.
type fakeFeed struct {
	mu       sync.Mutex
	pages    map[int][]domain.Review
	fetchErr map[int]error
	badPages map[int]bool
	fetched  []int
	onFetch  func(page int)
}

func newFakeFeed(pages ...[]domain.Review) *fakeFeed {
	f := &fakeFeed{pages: map[int][]domain.Review{}, fetchErr: map[int]error{}, badPages: map[int]bool{}}
	for i, p := range pages {
		f.pages[i+1] = p
	}
	return f
}

func (f *fakeFeed) FetchPage(ctx context.Context, appID int64, page int) ([]byte, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, page)
	err := f.fetchErr[page]
	hook := f.onFetch
	f.mu.Unlock()
	if hook != nil {
		hook(page)
	}
	if err != nil {
		return nil, err
	}
	return []byte(strconv.Itoa(page)), nil
}

func (f *fakeFeed) DecodePage(raw []byte) ([]domain.Review, error) {
	page, _ := strconv.Atoi(string(raw))
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.badPages[page] {
		return nil, domain.ErrMalformedPage
	}
	return append([]domain.Review(nil), f.pages[page]...), nil
}

func (f *fakeFeed) fetchedPages() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.fetched...)
}

// fakeCache stores JSON like the redis adapter does.
type fakeCache struct {
	mu    sync.Mutex
	store map[string][]byte
	dels  []string
	sets  int
}

func (c *fakeCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.store[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (c *fakeCache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		c.store = map[string][]byte{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.store[key] = b
	c.sets++
	return nil
}

func (c *fakeCache) Del(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, key)
	c.dels = append(c.dels, key)
	return nil
}

// ---- helpers ----

var now = time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return now }

func rev(id string, age time.Duration) domain.Review {
	return domain.Review{
		ReviewID:   id,
		AuthorName: "author " + id,
		Rating:     4,
		Title:      "title " + id,
		Content:    "content " + id,
		UpdatedAt:  now.Add(-age),
		Version:    "1.0",
	}
}
