// internal/domain/notification/status.go
package notification

import (
	"database/sql"
	"time"

	"ombudsman_deadline_notifier/internal/domain/deadline"
)

// Status is the outcome of one delivery attempt as written to the ledger.
type Status string

const (
	StatusSent  Status = "sent"
	StatusError Status = "error"
)

// Record is one append-only ledger row. Rows are never updated or deleted.
// Corresponds to the 'notification_ledger' table in migration 0001.
type Record struct {
	ID            int64
	Protocol      string
	Department    string
	Recipients    string // resolved addresses joined with ", "
	Bucket        deadline.Bucket
	DueDate       deadline.Date
	DaysRemaining int
	MessageID     sql.NullString // provider message id, audit only
	Status        Status
	ErrorMessage  sql.NullString
	SentAt        time.Time
}

// Key returns the idempotency key of the record.
func (r *Record) Key() Key {
	return Key{Protocol: r.Protocol, Bucket: r.Bucket}
}
