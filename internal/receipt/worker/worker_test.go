package worker_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/charitydesk/internal/clock"
	"github.com/smallbiznis/charitydesk/internal/config"
	"github.com/smallbiznis/charitydesk/internal/dbtest"
	donationdomain "github.com/smallbiznis/charitydesk/internal/donation/domain"
	donationrepo "github.com/smallbiznis/charitydesk/internal/donation/repository"
	donationservice "github.com/smallbiznis/charitydesk/internal/donation/service"
	"github.com/smallbiznis/charitydesk/internal/receipt/domain"
	"github.com/smallbiznis/charitydesk/internal/receipt/repository"
	"github.com/smallbiznis/charitydesk/internal/receipt/service"
	"github.com/smallbiznis/charitydesk/internal/receipt/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type stubRenderer struct{}

func (stubRenderer) Render(_ context.Context, r domain.Receipt) (io.Reader, error) {
	return strings.NewReader("%PDF " + r.Number), nil
}

type memoryStorage struct {
	mu      sync.Mutex
	objects map[string]string
}

func (s *memoryStorage) Put(_ context.Context, key string, body io.Reader, _ string) (string, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.objects == nil {
		s.objects = map[string]string{}
	}
	s.objects[key] = string(raw)
	return "https://files.example.org/" + key, nil
}

type sentMail struct {
	to      []string
	subject string
	body    string
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *recordingMailer) Send(_ context.Context, to []string, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

// flakyDonations fails AttachReceipt while attachErr is set.
type flakyDonations struct {
	donationdomain.Service
	attachErr error
}

func (f *flakyDonations) AttachReceipt(ctx context.Context, id string, receiptURL *string, sentAt time.Time) error {
	if f.attachErr != nil {
		return f.attachErr
	}
	return f.Service.AttachReceipt(ctx, id, receiptURL, sentAt)
}

type harness struct {
	worker    *worker.Worker
	queue     domain.Queue
	repo      domain.Repository
	donations *flakyDonations
	db        *gorm.DB
	clk       *clock.FakeClock
	storage   *memoryStorage
	mailer    *recordingMailer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := dbtest.Open(t)
	node, err := snowflake.NewNode(5)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	donations := donationservice.New(donationservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk, Repo: donationrepo.Provide(),
	})
	repo := repository.Provide()
	h := &harness{
		repo:      repo,
		donations: &flakyDonations{Service: donations},
		db:        db,
		clk:       clk,
		storage:   &memoryStorage{},
		mailer:    &recordingMailer{},
		queue: service.NewQueue(service.QueueParams{
			DB: db, Log: log, GenID: node, Clock: clk, Repo: repo,
		}),
	}
	h.worker = worker.New(worker.Params{
		DB:  db,
		Log: log,
		Cfg: config.Config{Receipt: config.ReceiptConfig{
			BatchSize:    10,
			MaxAttempts:  2,
			Organization: "City Food Bank",
		}},
		Clock:     clk,
		Repo:      repo,
		Donations: h.donations,
		Renderer:  stubRenderer{},
		Storage:   h.storage,
		Mailer:    h.mailer,
	})
	return h
}

func (h *harness) completedGuestDonation(t *testing.T, ref string) *donationdomain.Donation {
	t.Helper()
	d := donationdomain.Donation{
		DonorType:          donationdomain.DonorTypeGuest,
		ExternalPaymentRef: ref,
		Amount:             decimal.NewFromInt(50),
		Currency:           "usd",
		Frequency:          donationdomain.FrequencyOneTime,
		CampaignTitle:      donationdomain.StringPtr("Winter Drive"),
		ReceiptEmail:       donationdomain.StringPtr("jane@example.com"),
		ClaimToken:         donationdomain.StringPtr(donationdomain.NewClaimToken()),
	}
	d.SetGuest(&donationdomain.GuestInfo{Name: "Jane Doe", Email: "jane@example.com"})
	created, inserted, err := h.donations.RecordCompleted(context.Background(), d)
	require.NoError(t, err)
	require.True(t, inserted)
	return created
}

func (h *harness) job(t *testing.T, donationID snowflake.ID) domain.Job {
	t.Helper()
	var job domain.Job
	err := h.db.Raw(
		`SELECT id, donation_id, correlation_id, status, attempts, last_error, emailed_at, created_at, updated_at
		 FROM receipt_jobs WHERE donation_id = ?`, donationID,
	).Scan(&job).Error
	require.NoError(t, err)
	return job
}

func TestWorkerSendsReceiptForCompletedDonation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	d := h.completedGuestDonation(t, "cs_receipt_1")

	require.NoError(t, h.queue.Enqueue(ctx, d.ID))
	require.NoError(t, h.worker.RunOnce(ctx))

	assert.Equal(t, domain.JobStatusSent, h.job(t, d.ID).Status)

	require.Len(t, h.mailer.sent, 1)
	mail := h.mailer.sent[0]
	assert.Equal(t, []string{"jane@example.com"}, mail.to)
	assert.Equal(t, "Your donation receipt", mail.subject)
	assert.Contains(t, mail.body, "Dear Jane Doe")
	assert.Contains(t, mail.body, "50.00 USD")
	assert.Contains(t, mail.body, "Winter Drive")

	require.Len(t, h.storage.objects, 1)
	for key := range h.storage.objects {
		assert.True(t, strings.HasPrefix(key, "receipts/city-food-bank/2026/04/rcpt-"), key)
	}

	got, err := h.donations.GetByID(ctx, d.ID.String())
	require.NoError(t, err)
	require.NotNil(t, got.ReceiptURL)
	assert.True(t, strings.HasPrefix(*got.ReceiptURL, "https://files.example.org/receipts/"))
	assert.NotNil(t, got.ReceiptSentAt)

	// A second pass finds nothing pending.
	require.NoError(t, h.worker.RunOnce(ctx))
	assert.Len(t, h.mailer.sent, 1)
}

func TestEnqueueIsIdempotentPerDonation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	d := h.completedGuestDonation(t, "cs_receipt_dup")

	require.NoError(t, h.queue.Enqueue(ctx, d.ID))
	require.NoError(t, h.queue.Enqueue(ctx, d.ID))

	var count int64
	require.NoError(t, h.db.Raw(`SELECT COUNT(*) FROM receipt_jobs`).Scan(&count).Error)
	assert.EqualValues(t, 1, count)

	assert.ErrorIs(t, h.queue.Enqueue(ctx, 0), domain.ErrInvalidDonation)
}

func TestWorkerSkipsDonationsThatAreNotCompleted(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	pending, err := h.donations.CreatePending(ctx, donationdomain.Donation{
		DonorType:          donationdomain.DonorTypeAnonymous,
		ExternalPaymentRef: "cs_pending",
		Amount:             decimal.NewFromInt(10),
		Currency:           "usd",
		Frequency:          donationdomain.FrequencyOneTime,
		ReceiptEmail:       donationdomain.StringPtr("anon@example.com"),
	})
	require.NoError(t, err)

	require.NoError(t, h.queue.Enqueue(ctx, pending.ID))
	require.NoError(t, h.queue.Enqueue(ctx, snowflake.ID(424242)))
	require.NoError(t, h.worker.RunOnce(ctx))

	assert.Equal(t, domain.JobStatusSkipped, h.job(t, pending.ID).Status)
	assert.Equal(t, domain.JobStatusSkipped, h.job(t, snowflake.ID(424242)).Status)
	assert.Empty(t, h.mailer.sent)
}

func TestWorkerRetriesThenFails(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.mailer.err = errors.New("smtp unavailable")
	d := h.completedGuestDonation(t, "cs_receipt_fail")

	require.NoError(t, h.queue.Enqueue(ctx, d.ID))

	require.NoError(t, h.worker.RunOnce(ctx))
	job := h.job(t, d.ID)
	assert.Equal(t, domain.JobStatusPending, job.Status)
	assert.Equal(t, 1, job.Attempts)
	require.NotNil(t, job.LastError)
	assert.Contains(t, *job.LastError, "smtp unavailable")

	require.NoError(t, h.worker.RunOnce(ctx))
	job = h.job(t, d.ID)
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.Equal(t, 2, job.Attempts)

	got, err := h.donations.GetByID(ctx, d.ID.String())
	require.NoError(t, err)
	assert.Nil(t, got.ReceiptSentAt)
}

func TestWorkerReclaimsJobStuckInProcessing(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	d := h.completedGuestDonation(t, "cs_receipt_stuck")
	require.NoError(t, h.queue.Enqueue(ctx, d.ID))

	// A previous run claimed the job and died before finishing it.
	job := h.job(t, d.ID)
	now := h.clk.Now()
	won, err := h.repo.ClaimJob(ctx, h.db, job.ID, now, now.Add(-time.Minute))
	require.NoError(t, err)
	require.True(t, won)

	require.NoError(t, h.worker.RunOnce(ctx))
	assert.Equal(t, domain.JobStatusProcessing, h.job(t, d.ID).Status)
	assert.Empty(t, h.mailer.sent)

	h.clk.Advance(11 * time.Minute)
	require.NoError(t, h.worker.RunOnce(ctx))
	assert.Equal(t, domain.JobStatusSent, h.job(t, d.ID).Status)
	assert.Len(t, h.mailer.sent, 1)
}

func TestRetryAfterAttachFailureDoesNotResendEmail(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	d := h.completedGuestDonation(t, "cs_receipt_attach")
	require.NoError(t, h.queue.Enqueue(ctx, d.ID))

	h.donations.attachErr = errors.New("database is locked")
	require.NoError(t, h.worker.RunOnce(ctx))

	job := h.job(t, d.ID)
	assert.Equal(t, domain.JobStatusPending, job.Status)
	assert.Equal(t, 1, job.Attempts)
	assert.NotNil(t, job.EmailedAt)
	require.Len(t, h.mailer.sent, 1)

	h.donations.attachErr = nil
	require.NoError(t, h.worker.RunOnce(ctx))

	assert.Equal(t, domain.JobStatusSent, h.job(t, d.ID).Status)
	assert.Len(t, h.mailer.sent, 1)

	got, err := h.donations.GetByID(ctx, d.ID.String())
	require.NoError(t, err)
	assert.NotNil(t, got.ReceiptSentAt)
}
