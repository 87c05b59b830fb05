package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/charitydesk/internal/receipt/domain"
	"gorm.io/gorm"
)

const jobColumns = `id, donation_id, correlation_id, status, attempts, last_error, emailed_at, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertJob(ctx context.Context, db *gorm.DB, job *domain.Job) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO receipt_jobs (`+jobColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (donation_id) DO NOTHING`,
		job.ID,
		job.DonationID,
		job.CorrelationID,
		job.Status,
		job.Attempts,
		job.LastError,
		job.EmailedAt,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ListPending(ctx context.Context, db *gorm.DB, limit int, staleBefore time.Time) ([]*domain.Job, error) {
	var items []*domain.Job
	err := db.WithContext(ctx).Raw(
		`SELECT `+jobColumns+`
		 FROM receipt_jobs
		 WHERE status = ? OR (status = ? AND updated_at < ?)
		 ORDER BY created_at ASC, id ASC
		 LIMIT ?`,
		domain.JobStatusPending,
		domain.JobStatusProcessing,
		staleBefore,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ClaimJob(ctx context.Context, db *gorm.DB, id snowflake.ID, now, staleBefore time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE receipt_jobs SET status = ?, updated_at = ?
		 WHERE id = ? AND (status = ? OR (status = ? AND updated_at < ?))`,
		domain.JobStatusProcessing,
		now,
		id,
		domain.JobStatusPending,
		domain.JobStatusProcessing,
		staleBefore,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FinishJob(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.JobStatus, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE receipt_jobs SET status = ?, last_error = NULL, updated_at = ? WHERE id = ?`,
		status,
		now,
		id,
	).Error
}

func (r *repo) FailJob(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.JobStatus, attempts int, lastError string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE receipt_jobs SET status = ?, attempts = ?, last_error = ?, updated_at = ? WHERE id = ?`,
		status,
		attempts,
		lastError,
		now,
		id,
	).Error
}

func (r *repo) MarkEmailed(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE receipt_jobs SET emailed_at = ?, updated_at = ? WHERE id = ?`,
		now,
		now,
		id,
	).Error
}
