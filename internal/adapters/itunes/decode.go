package itunes

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"app_reviews/internal/domain"
)

const (
	// longer ids are not review ids; the store indexes this column
	maxReviewIDLen = 255
	// free-form text is clipped to this many bytes so one odd entry cannot
	// fail every insert for its app
	maxFieldLen = 16 << 10
)

// feed timestamps look like 2024-03-09T14:07:31-07:00; older mirrors drop the colon.
var timeLayouts = []string{time.RFC3339, "2006-01-02T15:04:05-0700"}

// DecodePage parses one page into reviews, newest first as served.
//
// A page without feed.entry is the normal past-the-end page and decodes to
// nothing. A body that is not JSON, or lacks the feed object, is reported as
// domain.ErrMalformedPage. Entries that are not reviews (no id, rating or
// timestamp) are skipped.
func (c *Client) DecodePage(raw []byte) ([]domain.Review, error) {
	return DecodePage(raw)
}

func DecodePage(raw []byte) ([]domain.Review, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%w: invalid JSON", domain.ErrMalformedPage)
	}
	feed := gjson.GetBytes(raw, "feed")
	if !feed.IsObject() {
		return nil, fmt.Errorf("%w: missing feed object", domain.ErrMalformedPage)
	}

	var entries []gjson.Result
	entry := feed.Get("entry")
	switch {
	case !entry.Exists():
		return nil, nil
	case entry.IsArray():
		entries = entry.Array()
	case entry.IsObject():
		// a feed with one entry serializes it as a bare object
		entries = []gjson.Result{entry}
	default:
		return nil, fmt.Errorf("%w: feed.entry is %s", domain.ErrMalformedPage, entry.Type)
	}

	out := make([]domain.Review, 0, len(entries))
	for i, e := range entries {
		r, err := decodeEntry(e)
		if err != nil {
			log.Debug().Err(err).Int("entry", i).Msg("skipping feed entry")
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func decodeEntry(e gjson.Result) (domain.Review, error) {
	if !e.IsObject() {
		return domain.Review{}, fmt.Errorf("entry is %s", e.Type)
	}
	id := label(e, "id")
	if id == "" {
		return domain.Review{}, fmt.Errorf("missing id")
	}
	if len(id) > maxReviewIDLen {
		return domain.Review{}, fmt.Errorf("id of %d bytes", len(id))
	}
	ratingStr := label(e, "im:rating")
	rating, err := strconv.Atoi(ratingStr)
	if err != nil || rating < 1 || rating > 5 {
		return domain.Review{}, fmt.Errorf("entry %s: rating %q", id, ratingStr)
	}
	updated, err := parseTime(label(e, "updated"))
	if err != nil {
		return domain.Review{}, fmt.Errorf("entry %s: %w", id, err)
	}
	return domain.Review{
		ReviewID:   id,
		AuthorName: clip(e.Get("author").Get("name").Get("label").String()),
		AuthorURI:  clip(e.Get("author").Get("uri").Get("label").String()),
		Rating:     rating,
		Title:      clip(label(e, "title")),
		Content:    label(e, "content"),
		UpdatedAt:  updated,
		Version:    clip(label(e, "im:version")),
	}, nil
}

// clip cuts s to maxFieldLen bytes without splitting a UTF-8 sequence.
func clip(s string) string {
	if len(s) <= maxFieldLen {
		return s
	}
	n := maxFieldLen
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// label reads the {"key":{"label":"..."}} shape every feed field uses.
func label(e gjson.Result, key string) string {
	return strings.TrimSpace(e.Get(key).Get("label").String())
}

func parseTime(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, fmt.Errorf("updated %q: %w", s, lastErr)
}
