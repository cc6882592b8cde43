package acousticdna

import (
	"errors"

	"github.com/himanishpuri/sonicres/pkg/acousticdna/storage"
)

var _ Storage = (*storage.DBClient)(nil)

// NewSQLiteStorage opens (or creates) the SQLite catalogue at dbPath.
func NewSQLiteStorage(dbPath string) (Storage, error) {
	return storage.NewDBClientWithPath(dbPath)
}

// IsNotFound reports whether err means the requested song does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, storage.ErrSongNotFound)
}
