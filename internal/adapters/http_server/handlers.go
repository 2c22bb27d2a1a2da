package httpserver

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"app_reviews/internal/domain"
)

// ReviewReader is the read side the handlers need; app.QueryService
// satisfies it.
type ReviewReader interface {
	RecentReviews(ctx context.Context, appID int64) ([]domain.Review, error)
}

type Handlers struct{ Q ReviewReader }

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// reviewJSON is the wire shape of one review.
type reviewJSON struct {
	ID         string `json:"id"`
	AuthorName string `json:"authorName"`
	AuthorURI  string `json:"authorUri"`
	Rating     int    `json:"rating"`
	Title      string `json:"title"`
	Content    string `json:"content"`
	Updated    string `json:"updated"`
	Version    string `json:"version"`
}

func toJSON(rs []domain.Review) []reviewJSON {
	out := make([]reviewJSON, 0, len(rs))
	for _, r := range rs {
		out = append(out, reviewJSON{
			ID:         r.ReviewID,
			AuthorName: r.AuthorName,
			AuthorURI:  r.AuthorURI,
			Rating:     r.Rating,
			Title:      r.Title,
			Content:    r.Content,
			Updated:    r.UpdatedAt.UTC().Format(time.RFC3339),
			Version:    r.Version,
		})
	}
	return out
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })
	s.mux.Get("/reviews", h.reviewsByQuery)
	s.mux.Get("/v1/apps/{id}/reviews", h.reviewsByPath)
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

// parseAppID accepts a plain run of ASCII digits that fits in int64.
func parseAppID(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func (h *Handlers) reviewsByQuery(w http.ResponseWriter, r *http.Request) {
	vals, ok := r.URL.Query()["app_id"]
	if !ok || len(vals) == 0 || vals[0] == "" {
		writeProblem(w, http.StatusBadRequest, "Missing app_id", "app_id query parameter is required")
		return
	}
	if len(vals) > 1 {
		writeProblem(w, http.StatusBadRequest, "Invalid app_id", "app_id must be given once")
		return
	}
	id, ok := parseAppID(vals[0])
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid app_id", "app_id must be a number")
		return
	}
	h.writeReviews(w, r, id)
}

func (h *Handlers) reviewsByPath(w http.ResponseWriter, r *http.Request) {
	id, ok := parseAppID(chi.URLParam(r, "id"))
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id must be a number")
		return
	}
	h.writeReviews(w, r, id)
}

func (h *Handlers) writeReviews(w http.ResponseWriter, r *http.Request, id int64) {
	rs, err := h.Q.RecentReviews(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Not Found", "no reviews stored for app "+strconv.FormatInt(id, 10))
		return
	}
	if err != nil {
		log.Error().Err(err).Int64("app_id", id).Msg("read reviews failed")
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "")
		return
	}

	etag, body := calcETagAndBody(toJSON(rs))
	// If client already has this version, short-circuit.
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag) // include ETag on 304
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write reviews body")
	}
}
