package server

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/todoauth/internal/dbx"
	"github.com/dmitrijs2005/todoauth/internal/logging"
	"github.com/dmitrijs2005/todoauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/todoauth/internal/server/repositories/users"
)

// UserStore is an open credential store and the handle that releases it.
type UserStore struct {
	Users users.Repository
	db    *sql.DB
}

// Close releases the database handle, if any.
func (s *UserStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// openPostgres is a seam for tests.
var openPostgres = dbx.OpenPostgres

// OpenUserStore connects to PostgreSQL and applies migrations when dsn is
// set, and falls back to an in-memory store otherwise.
func OpenUserStore(ctx context.Context, dsn string, rm repomanager.RepositoryManager, logger logging.Logger) (*UserStore, error) {
	if dsn == "" {
		logger.Warn(ctx, "DATABASE_URL is empty, using in-memory credential store")
		return &UserStore{Users: users.NewMemoryRepository()}, nil
	}

	db, err := openPostgres(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	return &UserStore{Users: rm.Users(db), db: db}, nil
}
