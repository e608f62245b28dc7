package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ombudsman_deadline_notifier/internal/domain/casefile"
)

// PostgresCaseRepository reads the externally owned cases table. It never writes.
// Native timestamps come back in the session zone; they are moved into loc so
// their calendar day matches the engine's "today".
type PostgresCaseRepository struct {
	db  *sql.DB
	loc *time.Location
}

func NewPostgresCaseRepository(db *sql.DB, loc *time.Location) *PostgresCaseRepository {
	if loc == nil {
		loc = time.Local
	}
	return &PostgresCaseRepository{db: db, loc: loc}
}

func (r *PostgresCaseRepository) ListCandidates(ctx context.Context) ([]*casefile.Case, error) {
	query := `SELECT protocol, manifestation_type, department, created_at, data_criacao,
                      completed_at, data_conclusao, payload
               FROM cases
               WHERE completed_at IS NULL
               ORDER BY protocol`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error querying candidate cases: %w", err)
	}
	defer rows.Close()

	cases := make([]*casefile.Case, 0)
	for rows.Next() {
		var (
			c                   casefile.Case
			protocol, typ, dept sql.NullString
			payload             []byte
		)
		if err := rows.Scan(
			&protocol, &typ, &dept, &c.CreatedAt, &c.LegacyCreated,
			&c.CompletedAt, &c.LegacyCompleted, &payload,
		); err != nil {
			return nil, fmt.Errorf("error scanning case row: %w", err)
		}
		c.Protocol = protocol.String
		c.ManifestationType = typ.String
		c.Department = dept.String
		c.Payload = payload
		if c.CreatedAt.Valid {
			c.CreatedAt.Time = c.CreatedAt.Time.In(r.loc)
		}
		if c.CompletedAt.Valid {
			c.CompletedAt.Time = c.CompletedAt.Time.In(r.loc)
		}
		cases = append(cases, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating case rows: %w", err)
	}
	return cases, nil
}
