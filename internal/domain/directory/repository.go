package directory

import (
	"context"
	"errors"
)

// ErrEntryNotFound is returned when no directory entry matches a name.
var ErrEntryNotFound = errors.New("department directory entry not found")

// Repository is the read-only external department directory.
type Repository interface {
	// FindByName returns the entry whose name equals name case-insensitively
	// and has a non-empty address field, or ErrEntryNotFound.
	FindByName(ctx context.Context, name string) (*Entry, error)
	// List returns every entry, in a stable order.
	List(ctx context.Context) ([]*Entry, error)
}
