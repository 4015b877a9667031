package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// submissionRow is the gorm model for the Postgres submissions table.
type submissionRow struct {
	ID             string `gorm:"primaryKey;type:uuid"`
	Question       string `gorm:"type:text"`
	Course         string `gorm:"index"`
	QuestionID     string
	TimeOpen       *time.Time
	TimeSubmitted  time.Time `gorm:"not null"`
	DurationMs     *int64
	UserAnswer     string `gorm:"type:jsonb;default:'null'"`
	ReasoningSteps string `gorm:"type:text"`
	AIFeedback     string `gorm:"column:ai_feedback;type:jsonb;default:'null'"`
	Correctness    string
	Username       string
	Email          string
	UserID         string `gorm:"index"`
	Metadata       string `gorm:"type:jsonb;default:'null'"`
	CreatedAt      time.Time `gorm:"index"`
}

func (submissionRow) TableName() string { return "submissions" }

func toRow(sub *Submission) submissionRow {
	return submissionRow{
		ID:             sub.ID,
		Question:       sub.Question,
		Course:         sub.Course,
		QuestionID:     sub.QuestionID,
		TimeOpen:       sub.TimeOpen,
		TimeSubmitted:  sub.TimeSubmitted,
		DurationMs:     sub.DurationMs,
		UserAnswer:     jsonOrNull(sub.UserAnswer),
		ReasoningSteps: sub.ReasoningSteps,
		AIFeedback:     jsonOrNull(sub.AIFeedback),
		Correctness:    sub.Correctness,
		Username:       sub.Username,
		Email:          sub.Email,
		UserID:         sub.UserID,
		Metadata:       jsonOrNull(sub.Metadata),
		CreatedAt:      sub.CreatedAt,
	}
}

func fromRow(r submissionRow) Submission {
	return Submission{
		ID:             r.ID,
		Question:       r.Question,
		Course:         r.Course,
		QuestionID:     r.QuestionID,
		TimeOpen:       r.TimeOpen,
		TimeSubmitted:  r.TimeSubmitted.UTC(),
		DurationMs:     r.DurationMs,
		UserAnswer:     json.RawMessage(r.UserAnswer),
		ReasoningSteps: r.ReasoningSteps,
		AIFeedback:     json.RawMessage(r.AIFeedback),
		Correctness:    r.Correctness,
		Username:       r.Username,
		Email:          r.Email,
		UserID:         r.UserID,
		Metadata:       json.RawMessage(r.Metadata),
		CreatedAt:      r.CreatedAt.UTC(),
	}
}

// PostgresSubmissionRepo stores submissions in Postgres through gorm.
type PostgresSubmissionRepo struct {
	DB *gorm.DB
}

// OpenPostgres connects to Postgres and migrates the submissions table.
func OpenPostgres(dsn string) (*PostgresSubmissionRepo, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	if err := db.AutoMigrate(&submissionRow{}); err != nil {
		return nil, fmt.Errorf("auto-migrate submissions: %w", err)
	}
	return &PostgresSubmissionRepo{DB: db}, nil
}

// Close releases the underlying connection pool.
func (r *PostgresSubmissionRepo) Close() error {
	sqlDB, err := r.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (r *PostgresSubmissionRepo) CreateSubmission(ctx context.Context, sub *Submission) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}

	row := toRow(sub)
	if err := r.DB.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to create submission: %w", err)
	}
	return nil
}

func (r *PostgresSubmissionRepo) GetSubmission(ctx context.Context, id string) (*Submission, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	var row submissionRow
	err := r.DB.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find submission: %w", err)
	}
	sub := fromRow(row)
	return &sub, nil
}

func (r *PostgresSubmissionRepo) ListSubmissions(ctx context.Context, f SubmissionFilter) ([]Submission, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	q := r.DB.WithContext(ctx).Order("created_at DESC")
	if f.Course != "" {
		q = q.Where("course = ?", f.Course)
	}
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var rows []submissionRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	out := make([]Submission, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromRow(row))
	}
	return out, nil
}
