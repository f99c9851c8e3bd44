package session

import (
	"fmt"
	"io"

	"github.com/atinyakov/PhotoKeeper/internal/db"
	"github.com/atinyakov/PhotoKeeper/internal/repository"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open builds a Store for driver ("file", "sqlite3" or "postgres") at dsn.
// The returned Closer releases the underlying database, if any.
func Open(driver, dsn string) (*Store, io.Closer, error) {
	switch driver {
	case "file":
		return NewStore(NewFileBackend(dsn)), nopCloser{}, nil
	case "sqlite3", "postgres":
		conn, err := db.InitState(driver, dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("open session store: %w", err)
		}
		return NewStore(repository.NewStateRepository(conn)), conn, nil
	default:
		return nil, nil, fmt.Errorf("unknown session store driver %q", driver)
	}
}
