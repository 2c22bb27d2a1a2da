package domain

import "time"

// Review is one user rating+comment for one application, as stored.
type Review struct {
	AppID      int64
	ReviewID   string // upstream entry id, unique per app
	AuthorName string
	AuthorURI  string
	Rating     int
	Title      string
	Content    string
	UpdatedAt  time.Time // UTC
	Version    string    // app version the review was written against
}
