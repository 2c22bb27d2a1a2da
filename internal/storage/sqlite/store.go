// Package sqlite is a single-file review store for local deployments and
// hermetic tests.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"app_reviews/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

const columns = "app_id, review_id, author_name, author_uri, rating, title, content, updated_at, version"

type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path and applies the schema.
//
// The database runs in WAL mode so the API process can read while the
// poller writes, with a 5s busy timeout for lock contention.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect database: %w", err)
	}

	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Exists(ctx context.Context, appID int64) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM reviews WHERE app_id = ?)`, appID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("exists app %d: %w", appID, err)
	}
	return ok, nil
}

func (s *Store) Latest(ctx context.Context, appID int64) (domain.Review, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+columns+`
		FROM reviews
		WHERE app_id = ?
		ORDER BY updated_at DESC, id DESC
		LIMIT 1`, appID)
	rv, err := scanReview(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Review{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Review{}, fmt.Errorf("latest app %d: %w", appID, err)
	}
	return rv, nil
}

func (s *Store) Since(ctx context.Context, appID int64, cutoff time.Time) ([]domain.Review, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+columns+`
		FROM reviews
		WHERE app_id = ? AND updated_at > ?
		ORDER BY updated_at DESC, id DESC`, appID, cutoff.UTC().UnixNano())
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

// InsertBatch appends rs inside one transaction.
func (s *Store) InsertBatch(ctx context.Context, appID int64, rs []domain.Review) error {
	if len(rs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("insert batch app %d: begin: %w", appID, err)
	}
	defer tx.Rollback() // no-op after commit

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO reviews (`+columns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("insert batch app %d: prepare: %w", appID, err)
	}
	defer stmt.Close()

	for _, rv := range rs {
		if _, err := stmt.ExecContext(ctx,
			appID,
			rv.ReviewID,
			rv.AuthorName,
			rv.AuthorURI,
			rv.Rating,
			rv.Title,
			rv.Content,
			rv.UpdatedAt.UTC().UnixNano(),
			rv.Version,
		); err != nil {
			return fmt.Errorf("insert batch app %d: review %s: %w", appID, rv.ReviewID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("insert batch app %d: commit: %w", appID, err)
	}
	return nil
}

type scanner interface{ Scan(dest ...any) error }

func scanReview(sc scanner) (domain.Review, error) {
	var (
		rv      domain.Review
		updated int64
	)
	if err := sc.Scan(
		&rv.AppID,
		&rv.ReviewID,
		&rv.AuthorName,
		&rv.AuthorURI,
		&rv.Rating,
		&rv.Title,
		&rv.Content,
		&updated,
		&rv.Version,
	); err != nil {
		return domain.Review{}, err
	}
	rv.UpdatedAt = time.Unix(0, updated).UTC()
	return rv, nil
}
