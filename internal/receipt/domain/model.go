package domain

import (
	"context"
	"io"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusSent       JobStatus = "sent"
	JobStatusSkipped    JobStatus = "skipped"
	JobStatusFailed     JobStatus = "failed"
)

// Job is one queued receipt for a completed donation.
type Job struct {
	ID            snowflake.ID `gorm:"primaryKey"`
	DonationID    snowflake.ID `gorm:"column:donation_id"`
	CorrelationID string       `gorm:"column:correlation_id"`
	Status        JobStatus    `gorm:"column:status"`
	Attempts      int          `gorm:"column:attempts"`
	LastError     *string      `gorm:"column:last_error"`
	EmailedAt     *time.Time   `gorm:"column:emailed_at"`
	CreatedAt     time.Time    `gorm:"column:created_at"`
	UpdatedAt     time.Time    `gorm:"column:updated_at"`
}

func (Job) TableName() string { return "receipt_jobs" }

// Queue is the one-way receipt trigger used by reconciliation. Enqueue never waits on generation.
type Queue interface {
	Enqueue(ctx context.Context, donationID snowflake.ID) error
}

// Receipt is the rendered content of a donation receipt.
type Receipt struct {
	Number       string
	Organization string
	DonorName    string
	DonorEmail   string
	Amount       decimal.Decimal
	Currency     string
	Frequency    string
	Campaign     string
	Dedication   string
	PaidAt       time.Time
}

type Renderer interface {
	Render(ctx context.Context, receipt Receipt) (io.Reader, error)
}

// Storage persists a rendered receipt and returns the URL it can be fetched from.
type Storage interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
}

type Mailer interface {
	Send(ctx context.Context, to []string, subject string, htmlBody string) error
}
