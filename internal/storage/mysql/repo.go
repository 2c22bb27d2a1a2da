package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"app_reviews/internal/domain"
)

// Repo is the MySQL review store. It expects a DSN with parseTime=true&loc=UTC.
type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

func (r *Repo) Exists(ctx context.Context, appID int64) (bool, error) {
	var ok bool
	if err := r.db.QueryRowContext(ctx, existsSQL, appID).Scan(&ok); err != nil {
		return false, fmt.Errorf("exists app %d: %w", appID, err)
	}
	return ok, nil
}

func (r *Repo) Latest(ctx context.Context, appID int64) (domain.Review, error) {
	rv, err := scanReview(r.db.QueryRowContext(ctx, latestSQL, appID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Review{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Review{}, fmt.Errorf("latest app %d: %w", appID, err)
	}
	return rv, nil
}

func (r *Repo) Since(ctx context.Context, appID int64, cutoff time.Time) ([]domain.Review, error) {
	rows, err := r.db.QueryContext(ctx, sinceSQL, appID, cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("since app %d: %w", appID, err)
	}
	defer rows.Close()

	out := []domain.Review{}
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("since app %d: %w", appID, err)
		}
		out = append(out, rv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("since app %d: %w", appID, err)
	}
	return out, nil
}

// InsertBatch writes every review in one transaction. Large batches are
// split into several multi-row INSERTs; any failure rolls back all of them.
func (r *Repo) InsertBatch(ctx context.Context, appID int64, rs []domain.Review) error {
	if len(rs) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("insert batch app %d: begin: %w", appID, err)
	}
	defer tx.Rollback() // no-op after commit

	for start := 0; start < len(rs); start += insertChunk {
		end := start + insertChunk
		if end > len(rs) {
			end = len(rs)
		}
		chunk := rs[start:end]

		values := make([]string, 0, len(chunk))
		args := make([]any, 0, len(chunk)*9) // 9 params per row
		for _, rv := range chunk {
			values = append(values, insertReviewsRow)
			args = append(args,
				appID,
				rv.ReviewID,
				rv.AuthorName,
				rv.AuthorURI,
				rv.Rating,
				rv.Title,
				rv.Content,
				rv.UpdatedAt.UTC(),
				rv.Version,
			)
		}
		if _, err := tx.ExecContext(ctx, insertReviewsPrefix+strings.Join(values, ","), args...); err != nil {
			return fmt.Errorf("insert batch app %d: %w", appID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("insert batch app %d: commit: %w", appID, err)
	}
	return nil
}

type scanner interface{ Scan(dest ...any) error }

func scanReview(s scanner) (domain.Review, error) {
	var rv domain.Review
	if err := s.Scan(
		&rv.AppID,
		&rv.ReviewID,
		&rv.AuthorName,
		&rv.AuthorURI,
		&rv.Rating,
		&rv.Title,
		&rv.Content,
		&rv.UpdatedAt,
		&rv.Version,
	); err != nil {
		return domain.Review{}, err
	}
	rv.UpdatedAt = rv.UpdatedAt.UTC()
	return rv, nil
}
