// Package storage implements the persistence port used by the board stores:
// keyed record collections kept in a YAML/JSON file or in SQLite.
package storage

import (
	"errors"
	"fmt"
)

// Collection is the key-value persistence contract the core stores write
// through. LoadAll returns every record keyed by id, SaveAll replaces the
// whole set atomically. Lock serializes load-mutate-save sequences across
// processes sharing the same backing store.
type Collection[T any] interface {
	LoadAll() (map[string]T, error)
	SaveAll(records map[string]T) error
	Lock() (unlock func() error, err error)
}

// ErrCorrupt is returned when the backing data cannot be decoded.
var ErrCorrupt = errors.New("corrupt collection data")

func corrupt(name string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrCorrupt, name, err)
}
