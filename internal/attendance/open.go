package attendance

import (
	"context"
	"fmt"

	"campusattend/internal/store"
)

// Backend names accepted by Open.
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
)

// Open returns the Store for backend. dsn is the Postgres connection string
// or the SQLite file path. The close func is always safe to call.
func Open(ctx context.Context, backend, dsn string) (Store, func(), error) {
	var (
		db  *store.DB
		err error
	)
	switch backend {
	case BackendMemory:
		return NewMemoryStore(), func() {}, nil
	case BackendSQLite:
		db, err = store.NewSQLite(ctx, dsn)
	case BackendPostgres, "":
		db, err = store.NewDB(ctx, dsn)
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", backend)
	}
	if err != nil {
		return nil, nil, err
	}
	return NewRepository(db.Client), func() { _ = db.Close() }, nil
}
