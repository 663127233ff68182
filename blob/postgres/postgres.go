package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/zlnvch/letterbox/blob"
)

// uniqueViolation is the SQLSTATE for a duplicate primary key.
const uniqueViolation = "23505"

type PostgresBlobStore struct {
	db *sql.DB
}

func NewPostgresBlobStore(ctx context.Context, databaseURL string) (*PostgresBlobStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresBlobStore{db: db}, nil
}

func (s *PostgresBlobStore) Close() error {
	return s.db.Close()
}

func (s *PostgresBlobStore) Migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS blobs (
			path VARCHAR(255) PRIMARY KEY,
			owner_id VARCHAR(64) NOT NULL,
			data BYTEA NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		// Owner lookups for account removal
		`CREATE INDEX IF NOT EXISTS idx_blobs_owner ON blobs(owner_id)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

func (s *PostgresBlobStore) Put(ctx context.Context, b blob.Blob) error {
	createdAt := b.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blobs (path, owner_id, data, created_at)
		VALUES ($1, $2, $3, $4)`,
		b.Path, b.OwnerId, b.Data, createdAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return blob.ErrBlobExists
		}
		return err
	}
	return nil
}

func (s *PostgresBlobStore) Get(ctx context.Context, path string) (blob.Blob, error) {
	b := blob.Blob{Path: path}
	err := s.db.QueryRowContext(ctx, `
		SELECT owner_id, data, created_at FROM blobs
		WHERE path = $1`, path).Scan(&b.OwnerId, &b.Data, &b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return blob.Blob{}, blob.ErrBlobNotFound
	}
	if err != nil {
		return blob.Blob{}, err
	}
	return b, nil
}

func (s *PostgresBlobStore) Delete(ctx context.Context, path string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM blobs WHERE path = $1`, path)
	return err
}

func (s *PostgresBlobStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	if prefix == "" {
		return 0, blob.ErrInvalidPath
	}

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM blobs
		WHERE left(path, char_length($1)) = $1`, prefix)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
