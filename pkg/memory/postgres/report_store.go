package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/MrWong99/soelive/pkg/memory"
)

// SaveReport implements [memory.ReportStore]. An existing report with the same
// ID is overwritten.
func (s *Store) SaveReport(ctx context.Context, r memory.StoredReport) error {
	if r.ID == "" {
		return fmt.Errorf("report store: save: empty id")
	}
	const q = `
		INSERT INTO reports (id, session_id, student_name, body, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET session_id   = EXCLUDED.session_id,
		    student_name = EXCLUDED.student_name,
		    body         = EXCLUDED.body,
		    created_at   = EXCLUDED.created_at`

	if _, err := s.pool.Exec(ctx, q, r.ID, r.SessionID, r.StudentName, string(r.Body), r.CreatedAt); err != nil {
		return fmt.Errorf("report store: save: %w", err)
	}
	return nil
}

// GetReport implements [memory.ReportStore].
func (s *Store) GetReport(ctx context.Context, id string) (*memory.StoredReport, error) {
	const q = `
		SELECT id, session_id, student_name, body::text, created_at
		FROM   reports
		WHERE  id = $1`

	var (
		r    memory.StoredReport
		body string
	)
	err := s.pool.QueryRow(ctx, q, id).Scan(&r.ID, &r.SessionID, &r.StudentName, &body, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("report store: %q: %w", id, memory.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("report store: get: %w", err)
	}
	r.Body = []byte(body)
	return &r, nil
}
