package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type sqliteSubmissionRepo struct {
	db  *sql.DB
	seq *sequenceCounter
}

func (r *sqliteSubmissionRepo) CreateSubmission(ctx context.Context, sub *Submission) error {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}

	seqNum, err := r.seq.Next(ctx)
	if err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}

	var timeOpen sql.NullInt64
	if sub.TimeOpen != nil {
		timeOpen = sql.NullInt64{Int64: sub.TimeOpen.UnixMilli(), Valid: true}
	}
	var duration sql.NullInt64
	if sub.DurationMs != nil {
		duration = sql.NullInt64{Int64: *sub.DurationMs, Valid: true}
	}

	_, err = r.db.ExecContext(ctx, `INSERT INTO submissions
		(id, sequence, question, course, question_id, time_open_ms, time_submitted_ms, duration_ms,
		 user_answer, reasoning_steps, ai_feedback, correctness, username, email, user_id,
		 metadata, created_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, seqNum, sub.Question, sub.Course, sub.QuestionID, timeOpen,
		sub.TimeSubmitted.UnixMilli(), duration,
		jsonOrNull(sub.UserAnswer), sub.ReasoningSteps, jsonOrNull(sub.AIFeedback),
		sub.Correctness, sub.Username, sub.Email, sub.UserID,
		jsonOrNull(sub.Metadata), sub.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

const submissionColumns = `id, question, course, question_id, time_open_ms, time_submitted_ms,
	duration_ms, user_answer, reasoning_steps, ai_feedback, correctness, username, email,
	user_id, metadata, created_at_ms`

func (r *sqliteSubmissionRepo) GetSubmission(ctx context.Context, id string) (*Submission, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+submissionColumns+" FROM submissions WHERE id = ?", id)
	sub, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return sub, err
}

func (r *sqliteSubmissionRepo) ListSubmissions(ctx context.Context, f SubmissionFilter) ([]Submission, error) {
	var where []string
	var args []any
	if f.Course != "" {
		where = append(where, "course = ?")
		args = append(args, f.Course)
	}
	if f.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, f.UserID)
	}

	q := "SELECT " + submissionColumns + " FROM submissions"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY sequence DESC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}
	defer rows.Close()

	var out []Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sub)
	}
	return out, rows.Err()
}

func scanSubmission(s scanner) (*Submission, error) {
	var (
		sub                        Submission
		timeOpen, duration         sql.NullInt64
		submittedMs, createdMs     int64
		answer, feedback, metadata string
	)
	err := s.Scan(&sub.ID, &sub.Question, &sub.Course, &sub.QuestionID, &timeOpen, &submittedMs,
		&duration, &answer, &sub.ReasoningSteps, &feedback, &sub.Correctness, &sub.Username,
		&sub.Email, &sub.UserID, &metadata, &createdMs)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan submission: %w", err)
	}

	if timeOpen.Valid {
		t := time.UnixMilli(timeOpen.Int64).UTC()
		sub.TimeOpen = &t
	}
	if duration.Valid {
		d := duration.Int64
		sub.DurationMs = &d
	}
	sub.TimeSubmitted = time.UnixMilli(submittedMs).UTC()
	sub.CreatedAt = time.UnixMilli(createdMs).UTC()
	sub.UserAnswer = json.RawMessage(answer)
	sub.AIFeedback = json.RawMessage(feedback)
	sub.Metadata = json.RawMessage(metadata)
	return &sub, nil
}
