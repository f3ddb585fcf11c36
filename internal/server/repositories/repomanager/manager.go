package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/todoauth/internal/dbx"
	"github.com/dmitrijs2005/todoauth/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a connection and owns the
// schema bootstrap.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
}
