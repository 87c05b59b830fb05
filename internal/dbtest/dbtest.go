// Package dbtest opens throwaway sqlite databases carrying the donation schema.
package dbtest

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var seq atomic.Int64

var schema = []string{
	`CREATE TABLE donations (
		id BIGINT PRIMARY KEY,
		donor_type TEXT NOT NULL,
		user_id TEXT,
		guest_name TEXT,
		guest_email TEXT,
		receipt_email TEXT,
		external_payment_ref TEXT NOT NULL,
		external_customer_ref TEXT,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		is_recurring BOOLEAN NOT NULL DEFAULT FALSE,
		subscription_ref TEXT,
		frequency TEXT NOT NULL DEFAULT 'one-time',
		campaign_id TEXT,
		campaign_title TEXT,
		dedication_honoree TEXT,
		dedication_message TEXT,
		claim_token TEXT,
		is_claimed BOOLEAN NOT NULL DEFAULT FALSE,
		receipt_url TEXT,
		receipt_sent_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_donations_external_payment_ref ON donations (external_payment_ref)`,
	`CREATE INDEX idx_donations_claim_token ON donations (claim_token)`,
	`CREATE TABLE guest_donors (
		email TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		donation_ids TEXT NOT NULL DEFAULT '[]',
		account_created_at DATETIME,
		version BIGINT NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE payment_events (
		id BIGINT PRIMARY KEY,
		provider TEXT NOT NULL,
		provider_event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		payload TEXT NOT NULL,
		received_at DATETIME NOT NULL,
		processed_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_payment_events_provider_event ON payment_events (provider, provider_event_id)`,
	`CREATE TABLE receipt_jobs (
		id BIGINT PRIMARY KEY,
		donation_id BIGINT NOT NULL,
		correlation_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		emailed_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_receipt_jobs_donation ON receipt_jobs (donation_id)`,
}

// Open returns a fresh in-memory database with every table created.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:charitydesk_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), seq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return db
}

// Count runs a COUNT(*) style query and fails the test on error.
func Count(t *testing.T, db *gorm.DB, query string, args ...any) int64 {
	t.Helper()
	var n int64
	if err := db.Raw(query, args...).Scan(&n).Error; err != nil {
		t.Fatalf("count query: %v", err)
	}
	return n
}
