// internal/domain/notification/repository.go
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ombudsman_deadline_notifier/internal/domain/deadline"
)

// ErrAlreadyRecorded means a sent record already exists for the key. The
// storage layer enforces this with a unique index, so it is the signal that
// another run handled the case first, not a failure to retry.
var ErrAlreadyRecorded = errors.New("notification already recorded for protocol and bucket")

// DuplicateError carries the keys a batch write skipped because they were
// already recorded. It matches ErrAlreadyRecorded under errors.Is.
type DuplicateError struct {
	Keys []Key
}

func (e *DuplicateError) Error() string {
	keys := make([]string, len(e.Keys))
	for i, k := range e.Keys {
		keys[i] = k.String()
	}
	return fmt.Sprintf("%v: %s", ErrAlreadyRecorded, strings.Join(keys, ", "))
}

func (e *DuplicateError) Is(target error) bool {
	return target == ErrAlreadyRecorded
}

// Ledger is the append-only notification audit and dedup store.
type Ledger interface {
	// AlreadyNotified reports whether a sent record exists for the key.
	AlreadyNotified(ctx context.Context, protocol string, bucket deadline.Bucket) (bool, error)
	// NotifiedAmong returns the subset of protocols already sent for bucket.
	NotifiedAmong(ctx context.Context, bucket deadline.Bucket, protocols []string) (map[string]bool, error)

	// Record appends one row. A sent row that collides with an existing sent
	// row for the same key fails with ErrAlreadyRecorded.
	Record(ctx context.Context, r *Record) error
	// RecordBatch appends rows in one transaction. Colliding rows are skipped
	// and reported through a *DuplicateError; the others are committed.
	RecordBatch(ctx context.Context, records []*Record) error
}
