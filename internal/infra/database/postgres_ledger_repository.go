// internal/infra/database/postgres_ledger_repository.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ombudsman_deadline_notifier/internal/domain/deadline"
	"ombudsman_deadline_notifier/internal/domain/notification"

	"github.com/lib/pq" // For pq.Array
)

const insertLedgerColumns = `INSERT INTO notification_ledger
               (protocol, department, recipients, bucket_type, due_date, days_remaining, message_id, status, error_message, sent_at)
               VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

type PostgresLedgerRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresLedgerRepository(db *sql.DB) *PostgresLedgerRepository {
	return &PostgresLedgerRepository{db: db, now: time.Now}
}

func (r *PostgresLedgerRepository) AlreadyNotified(ctx context.Context, protocol string, bucket deadline.Bucket) (bool, error) {
	query := `SELECT EXISTS (
                   SELECT 1 FROM notification_ledger
                   WHERE protocol = $1 AND bucket_type = $2 AND status = 'sent')`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, protocol, string(bucket)).Scan(&exists); err != nil {
		return false, fmt.Errorf("error checking ledger for %s/%s: %w", protocol, bucket, err)
	}
	return exists, nil
}

func (r *PostgresLedgerRepository) NotifiedAmong(ctx context.Context, bucket deadline.Bucket, protocols []string) (map[string]bool, error) {
	notified := make(map[string]bool)
	if len(protocols) == 0 {
		return notified, nil
	}
	query := `SELECT protocol FROM notification_ledger
               WHERE bucket_type = $1 AND status = 'sent' AND protocol = ANY($2::text[])`
	rows, err := r.db.QueryContext(ctx, query, string(bucket), pq.Array(protocols))
	if err != nil {
		return nil, fmt.Errorf("error querying ledger for bucket %s: %w", bucket, err)
	}
	defer rows.Close()
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("error scanning ledger protocol: %w", err)
		}
		notified[p] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger rows: %w", err)
	}
	return notified, nil
}

func (r *PostgresLedgerRepository) args(rec *notification.Record) []any {
	if rec.SentAt.IsZero() {
		rec.SentAt = r.now()
	}
	return []any{
		rec.Protocol, rec.Department, rec.Recipients, string(rec.Bucket),
		rec.DueDate.Time(), rec.DaysRemaining, rec.MessageID,
		string(rec.Status), rec.ErrorMessage, rec.SentAt,
	}
}

func (r *PostgresLedgerRepository) Record(ctx context.Context, rec *notification.Record) error {
	query := insertLedgerColumns + ` RETURNING id`
	err := r.db.QueryRowContext(ctx, query, r.args(rec)...).Scan(&rec.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", notification.ErrAlreadyRecorded, rec.Key())
		}
		return fmt.Errorf("error recording notification %s: %w", rec.Key(), err)
	}
	return nil
}

func (r *PostgresLedgerRepository) RecordBatch(ctx context.Context, records []*notification.Record) error {
	if len(records) == 0 {
		return nil
	}

	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for ledger batch: %w", err)
	}
	defer txn.Rollback() // Rollback if not committed

	// A duplicate sent row would abort the whole transaction with 23505, so
	// collisions are skipped in place and surface as "no row returned".
	stmt, err := txn.PrepareContext(ctx, insertLedgerColumns+`
               ON CONFLICT (protocol, bucket_type) WHERE status = 'sent' DO NOTHING
               RETURNING id`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement for ledger batch: %w", err)
	}
	defer stmt.Close()

	var dup *notification.DuplicateError
	for _, rec := range records {
		err := stmt.QueryRowContext(ctx, r.args(rec)...).Scan(&rec.ID)
		if errors.Is(err, sql.ErrNoRows) {
			if dup == nil {
				dup = &notification.DuplicateError{}
			}
			dup.Keys = append(dup.Keys, rec.Key())
			continue
		}
		if err != nil {
			return fmt.Errorf("error recording notification %s in batch: %w", rec.Key(), err)
		}
	}

	if err := txn.Commit(); err != nil {
		return fmt.Errorf("failed to commit ledger batch: %w", err)
	}
	if dup != nil {
		return dup
	}
	return nil
}
