package storage

import (
	"fmt"
	"time"
)

const notFound = "NotFound"

func NotFound(e error) bool {
	return e.Error() == notFound
}

func NewNotFoundError() error {
	return fmt.Errorf("%s", notFound)
}

// StorageApi is the manager's long-lived bookkeeping: which lobby usernames
// have ever been seen (to decide whether a worker account must be
// registered) and the cache of auto-detected filesystem paths.
type StorageApi interface {
	UserSeen(username string) bool
	UserMarkSeen(username string) error
	UserSeenSince(username string) (time.Time, error)
	UserCount() (int, error)

	PathGet(key string) (string, error)
	PathPut(key, value string) error
}
