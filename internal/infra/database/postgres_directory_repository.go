package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ombudsman_deadline_notifier/internal/domain/directory"
)

// PostgresDirectoryRepository reads the external department_directory table.
type PostgresDirectoryRepository struct {
	db *sql.DB
}

func NewPostgresDirectoryRepository(db *sql.DB) *PostgresDirectoryRepository {
	return &PostgresDirectoryRepository{db: db}
}

func (r *PostgresDirectoryRepository) FindByName(ctx context.Context, name string) (*directory.Entry, error) {
	query := `SELECT name, COALESCE(email, ''), COALESCE(email_alternativo, '')
               FROM department_directory
               WHERE LOWER(TRIM(name)) = LOWER(TRIM($1))
                 AND (COALESCE(TRIM(email), '') <> '' OR COALESCE(TRIM(email_alternativo), '') <> '')
               ORDER BY name
               LIMIT 1`
	e := &directory.Entry{}
	err := r.db.QueryRowContext(ctx, query, name).Scan(&e.Name, &e.Primary, &e.Alternate)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, directory.ErrEntryNotFound
		}
		return nil, fmt.Errorf("error looking up department %q: %w", name, err)
	}
	return e, nil
}

func (r *PostgresDirectoryRepository) List(ctx context.Context) ([]*directory.Entry, error) {
	query := `SELECT name, COALESCE(email, ''), COALESCE(email_alternativo, '')
               FROM department_directory
               ORDER BY name`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error listing department directory: %w", err)
	}
	defer rows.Close()

	entries := make([]*directory.Entry, 0)
	for rows.Next() {
		e := &directory.Entry{}
		if err := rows.Scan(&e.Name, &e.Primary, &e.Alternate); err != nil {
			return nil, fmt.Errorf("error scanning directory row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating directory rows: %w", err)
	}
	return entries, nil
}
