// Package sqlite implements a persistent response cache store on SQLite,
// using modernc.org/sqlite (pure Go, no CGO).
//
// The database is opened for each operation and closed before it returns,
// so no handle outlives a call and several processes may share one file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/flemzord/parley/internal/cache"
)

// Compile-time interface guards.
var (
	_ cache.Store         = (*Store)(nil)
	_ cache.StatsReporter = (*Store)(nil)
)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. Logs are discarded when omitted.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store is a cache.Store backed by a SQLite file.
type Store struct {
	config Config
	logger *slog.Logger
}

// New validates cfg and returns a Store. The file is not touched until the
// first operation.
func New(cfg Config, opts ...Option) (*Store, error) {
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	s := &Store{config: cfg}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.config.Path
}

// withDB opens the database, runs fn and closes it again.
func (s *Store) withDB(ctx context.Context, fn func(*sql.DB) error) (err error) {
	db, err := open(ctx, s.config)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("sqlite: close: %w", cerr)
		}
	}()
	return fn(db)
}

// Get returns the response stored for key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		value string
		found bool
	)
	err := s.withDB(ctx, func(db *sql.DB) error {
		err := db.QueryRowContext(ctx,
			"SELECT response FROM responses WHERE request_key = ?", key,
		).Scan(&value)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil
		case err != nil:
			return fmt.Errorf("sqlite: get response: %w", err)
		}
		found = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	s.logger.Debug("cache store read", "path", s.config.Path, "found", found)
	if !found {
		return nil, false, nil
	}
	return []byte(value), true, nil
}

// Put inserts or replaces the response for key.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	return s.withDB(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO responses (request_key, response)
			VALUES (?, ?)
			ON CONFLICT(request_key) DO UPDATE SET
				response   = excluded.response,
				updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')`,
			key, string(value),
		)
		if err != nil {
			return fmt.Errorf("sqlite: put response: %w", err)
		}
		s.logger.Debug("cache store write", "path", s.config.Path, "bytes", len(value))
		return nil
	})
}

// Stats reports the number of entries and the total response payload size.
func (s *Store) Stats(ctx context.Context) (cache.Stats, error) {
	var st cache.Stats
	err := s.withDB(ctx, func(db *sql.DB) error {
		if err := db.QueryRowContext(ctx,
			"SELECT COUNT(*), COALESCE(SUM(LENGTH(CAST(response AS BLOB))), 0) FROM responses",
		).Scan(&st.Entries, &st.Bytes); err != nil {
			return fmt.Errorf("sqlite: stats: %w", err)
		}
		return nil
	})
	return st, err
}
