package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// InsertJob reports false when a job for the donation already exists.
	InsertJob(ctx context.Context, db *gorm.DB, job *Job) (bool, error)
	// ListPending returns pending jobs plus processing jobs last touched before staleBefore,
	// which belong to a worker that died mid-delivery.
	ListPending(ctx context.Context, db *gorm.DB, limit int, staleBefore time.Time) ([]*Job, error)
	// ClaimJob moves a pending or stale processing job to processing and reports whether this
	// caller won it.
	ClaimJob(ctx context.Context, db *gorm.DB, id snowflake.ID, now, staleBefore time.Time) (bool, error)
	// MarkEmailed records that the donor already has the email, so a retry does not send it twice.
	MarkEmailed(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error
	FinishJob(ctx context.Context, db *gorm.DB, id snowflake.ID, status JobStatus, now time.Time) error
	FailJob(ctx context.Context, db *gorm.DB, id snowflake.ID, status JobStatus, attempts int, lastError string, now time.Time) error
}
