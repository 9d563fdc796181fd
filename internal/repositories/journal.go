package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/scorebook/internal/models"
	"github.com/desertthunder/scorebook/internal/shared"
)

// ToggleJournal stores settled toggles. It satisfies toggle.Journal.
type ToggleJournal struct {
	db *sql.DB
}

// NewToggleJournal creates a journal over db
func NewToggleJournal(db *sql.DB) *ToggleJournal {
	return &ToggleJournal{db: db}
}

// Append records rec, generating an ID when it has none.
func (j *ToggleJournal) Append(ctx context.Context, rec models.ToggleRecord) error {
	if rec.ID == "" {
		rec.ID = shared.GenerateID()
	}

	query := `
		INSERT INTO toggle_journal (id, kind, subject_id, user_id, from_active, from_count, to_active, to_count,
			outcome, error, started_at, settled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := j.db.ExecContext(ctx, query,
		rec.ID,
		string(rec.Kind),
		rec.SubjectID,
		rec.User,
		rec.From.Active,
		rec.From.Count,
		rec.To.Active,
		rec.To.Count,
		string(rec.Outcome),
		rec.Error,
		rec.StartedAt,
		rec.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append toggle %s/%s: %w", rec.Kind, rec.SubjectID, err)
	}
	return nil
}

// Recent returns up to limit records, newest first. Empty kind or subjectID match everything.
func (j *ToggleJournal) Recent(ctx context.Context, kind models.Kind, subjectID string, limit int) ([]models.ToggleRecord, error) {
	query := `
		SELECT id, kind, subject_id, user_id, from_active, from_count, to_active, to_count,
			outcome, error, started_at, settled_at
		FROM toggle_journal
		WHERE 1 = 1
	`
	args := []any{}

	if kind != "" {
		query += " AND kind = ?"
		args = append(args, string(kind))
	}
	if subjectID != "" {
		query += " AND subject_id = ?"
		args = append(args, subjectID)
	}

	query += " ORDER BY settled_at DESC, rowid DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query toggle journal: %w", err)
	}
	defer rows.Close()

	var records []models.ToggleRecord
	for rows.Next() {
		var (
			rec              models.ToggleRecord
			kindText         string
			outcome          string
			startedAt, ended time.Time
		)
		err := rows.Scan(
			&rec.ID, &kindText, &rec.SubjectID, &rec.User,
			&rec.From.Active, &rec.From.Count, &rec.To.Active, &rec.To.Count,
			&outcome, &rec.Error, &startedAt, &ended,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan toggle record: %w", err)
		}

		rec.Kind = models.Kind(kindText)
		rec.Outcome = models.Outcome(outcome)
		rec.StartedAt, rec.SettledAt = startedAt, ended
		rec.From.Kind, rec.From.SubjectID = rec.Kind, rec.SubjectID
		rec.To.Kind, rec.To.SubjectID = rec.Kind, rec.SubjectID
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return records, nil
}

// Outcomes counts journal entries by outcome.
func (j *ToggleJournal) Outcomes(ctx context.Context) (map[models.Outcome]int, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT outcome, COUNT(*) FROM toggle_journal GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("failed to count toggle outcomes: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.Outcome]int)
	for rows.Next() {
		var (
			outcome string
			n       int
		)
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("failed to scan outcome count: %w", err)
		}
		counts[models.Outcome(outcome)] = n
	}
	return counts, rows.Err()
}
