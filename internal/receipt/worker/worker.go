package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/smallbiznis/charitydesk/internal/clock"
	"github.com/smallbiznis/charitydesk/internal/config"
	donationdomain "github.com/smallbiznis/charitydesk/internal/donation/domain"
	obsctx "github.com/smallbiznis/charitydesk/internal/observability/context"
	obsmetrics "github.com/smallbiznis/charitydesk/internal/observability/metrics"
	"github.com/smallbiznis/charitydesk/internal/providers/pdf"
	"github.com/smallbiznis/charitydesk/internal/providers/storage"
	"github.com/smallbiznis/charitydesk/internal/ratelimit"
	"github.com/smallbiznis/charitydesk/internal/receipt/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	batchLockKey    = "receipts:worker:batch"
	batchLockTTL    = 2 * time.Minute
	maxErrorLength  = 500
	pdfContentType  = "application/pdf"
	receiptSubject  = "Your donation receipt"
	defaultInterval = 15 * time.Second
)

// processingTimeout is how long a claimed job may sit in processing before another run takes it over.
const processingTimeout = 10 * time.Minute

var emailTemplate = template.Must(template.New("receipt").Parse(`<p>Dear {{.Name}},</p>
<p>Thank you for your donation of <strong>{{.Amount}}</strong>{{if .Campaign}} to {{.Campaign}}{{end}}.</p>
<p>Receipt number: {{.Number}}<br>Date: {{.Date}}</p>
{{if .URL}}<p><a href="{{.URL}}">Download your receipt</a></p>{{end}}
<p>{{.Organization}}</p>`))

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Cfg       config.Config
	Clock     clock.Clock
	Repo      domain.Repository
	Donations donationdomain.Service
	Renderer  domain.Renderer
	Storage   domain.Storage
	Mailer    domain.Mailer
	Locker    *ratelimit.Locker   `optional:"true"`
	Metrics   *obsmetrics.Metrics `optional:"true"`
}

// Worker drains receipt_jobs: render, store, email, then stamp the donation.
type Worker struct {
	db        *gorm.DB
	log       *zap.Logger
	cfg       config.ReceiptConfig
	clock     clock.Clock
	repo      domain.Repository
	donations donationdomain.Service
	renderer  domain.Renderer
	storage   domain.Storage
	mailer    domain.Mailer
	locker    *ratelimit.Locker
	metrics   *obsmetrics.Metrics
}

func New(p Params) *Worker {
	cfg := p.Cfg.Receipt
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	return &Worker{
		db:        p.DB,
		log:       p.Log.Named("receipt.worker"),
		cfg:       cfg,
		clock:     p.Clock,
		repo:      p.Repo,
		donations: p.Donations,
		renderer:  p.Renderer,
		storage:   p.Storage,
		mailer:    p.Mailer,
		locker:    p.Locker,
		metrics:   p.Metrics,
	}
}

func (w *Worker) RunForever(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := w.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.log.Warn("receipt batch failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce processes one batch of pending jobs. Only one replica runs a batch at a time.
func (w *Worker) RunOnce(ctx context.Context) error {
	ran, err := w.locker.WithLock(ctx, batchLockKey, batchLockTTL, w.processBatch)
	if err != nil {
		return err
	}
	if !ran {
		w.log.Debug("receipt batch held by another worker")
	}
	return nil
}

func (w *Worker) processBatch(ctx context.Context) error {
	jobs, err := w.repo.ListPending(ctx, w.db, w.cfg.BatchSize, w.clock.Now().Add(-processingTimeout))
	if err != nil {
		return err
	}
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return err
		}
		w.process(ctx, job)
	}
	return nil
}

func (w *Worker) process(ctx context.Context, job *domain.Job) {
	now := w.clock.Now()
	won, err := w.repo.ClaimJob(ctx, w.db, job.ID, now, now.Add(-processingTimeout))
	if err != nil {
		w.log.Warn("claim receipt job failed", zap.String("job_id", job.ID.String()), zap.Error(err))
		return
	}
	if !won {
		return
	}

	if job.CorrelationID != "" {
		ctx = obsctx.WithCorrelationID(ctx, job.CorrelationID)
	}
	log := w.log.With(
		zap.String("job_id", job.ID.String()),
		zap.String("donation_id", job.DonationID.String()),
		zap.String("correlation_id", job.CorrelationID),
	)

	status, err := w.deliver(ctx, log, job)
	if err != nil {
		w.retryOrFail(ctx, log, job, err)
		return
	}

	if err := w.repo.FinishJob(ctx, w.db, job.ID, status, w.clock.Now()); err != nil {
		log.Error("finish receipt job failed", zap.Error(err))
		return
	}
	log.Info("receipt job finished", zap.String("status", string(status)))
	w.metrics.RecordReceipt(ctx, string(status))
}

func (w *Worker) retryOrFail(ctx context.Context, log *zap.Logger, job *domain.Job, cause error) {
	attempts := job.Attempts + 1
	status := domain.JobStatusPending
	if attempts >= w.cfg.MaxAttempts {
		status = domain.JobStatusFailed
	}

	msg := cause.Error()
	if len(msg) > maxErrorLength {
		msg = msg[:maxErrorLength]
	}
	if err := w.repo.FailJob(ctx, w.db, job.ID, status, attempts, msg, w.clock.Now()); err != nil {
		log.Error("record receipt failure failed", zap.Error(err))
	}

	log.Warn("receipt delivery failed",
		zap.Int("attempts", attempts),
		zap.String("status", string(status)),
		zap.Error(cause),
	)
	if status == domain.JobStatusFailed {
		w.metrics.RecordReceipt(ctx, string(domain.JobStatusFailed))
		return
	}
	w.metrics.RecordReceipt(ctx, "retry")
}

func (w *Worker) deliver(ctx context.Context, log *zap.Logger, job *domain.Job) (domain.JobStatus, error) {
	d, err := w.donations.GetByID(ctx, job.DonationID.String())
	if errors.Is(err, donationdomain.ErrNotFound) {
		log.Warn("receipt job references missing donation")
		return domain.JobStatusSkipped, nil
	}
	if err != nil {
		return "", err
	}

	switch {
	case d.Status != donationdomain.StatusCompleted:
		log.Info("donation not completed, skipping receipt", zap.String("donation_status", string(d.Status)))
		return domain.JobStatusSkipped, nil
	case d.ReceiptSentAt != nil:
		return domain.JobStatusSkipped, nil
	}

	recipient := recipientOf(*d)
	if recipient == "" {
		log.Info("donation has no receipt email, skipping", zap.Error(domain.ErrNoRecipient))
		return domain.JobStatusSkipped, nil
	}

	receipt := w.buildReceipt(*d)
	rendered, err := w.renderer.Render(ctx, receipt)
	if err != nil {
		return "", fmt.Errorf("render receipt: %w", err)
	}
	body, err := io.ReadAll(rendered)
	if err != nil {
		return "", fmt.Errorf("render receipt: %w", err)
	}

	key := storage.ReceiptKey(receipt.Organization, receipt.Number, receipt.PaidAt)
	url, err := w.storage.Put(ctx, key, bytes.NewReader(body), pdfContentType)
	if err != nil {
		return "", fmt.Errorf("store receipt: %w", err)
	}

	html, err := emailBody(receipt, url)
	if err != nil {
		return "", err
	}
	if job.EmailedAt == nil {
		if err := w.mailer.Send(ctx, []string{recipient}, receiptSubject, html); err != nil {
			return "", fmt.Errorf("send receipt: %w", err)
		}
		if err := w.repo.MarkEmailed(ctx, w.db, job.ID, w.clock.Now()); err != nil {
			log.Warn("failed to record receipt email", zap.Error(err))
		}
	} else {
		log.Info("receipt already emailed, finishing stamp")
	}

	var receiptURL *string
	if url != "" {
		receiptURL = &url
	}
	if err := w.donations.AttachReceipt(ctx, d.ID.String(), receiptURL, w.clock.Now()); err != nil {
		return "", fmt.Errorf("attach receipt: %w", err)
	}
	return domain.JobStatusSent, nil
}

func (w *Worker) buildReceipt(d donationdomain.Donation) domain.Receipt {
	receipt := domain.Receipt{
		Number:       "RCPT-" + d.ID.String(),
		Organization: w.cfg.Organization,
		DonorEmail:   recipientOf(d),
		Amount:       d.Amount,
		Currency:     strings.ToUpper(d.Currency),
		Frequency:    string(d.Frequency),
		Campaign:     d.Campaign(),
		PaidAt:       d.UpdatedAt,
	}
	if d.GuestName != nil {
		receipt.DonorName = *d.GuestName
	}
	if ded := d.Dedication(); ded != nil && ded.InHonorOf != "" {
		receipt.Dedication = "In honor of " + ded.InHonorOf
		if ded.Message != "" {
			receipt.Dedication += ": " + ded.Message
		}
	}
	return receipt
}

func recipientOf(d donationdomain.Donation) string {
	if d.ReceiptEmail != nil && strings.TrimSpace(*d.ReceiptEmail) != "" {
		return strings.TrimSpace(*d.ReceiptEmail)
	}
	if d.GuestEmail != nil {
		return strings.TrimSpace(*d.GuestEmail)
	}
	return ""
}

func emailBody(receipt domain.Receipt, url string) (string, error) {
	name := receipt.DonorName
	if name == "" {
		name = "friend"
	}

	var buf bytes.Buffer
	err := emailTemplate.Execute(&buf, map[string]string{
		"Name":         name,
		"Amount":       pdf.FormatAmount(receipt),
		"Campaign":     receipt.Campaign,
		"Number":       receipt.Number,
		"Date":         receipt.PaidAt.UTC().Format("2006-01-02"),
		"URL":          url,
		"Organization": receipt.Organization,
	})
	if err != nil {
		return "", fmt.Errorf("render receipt email: %w", err)
	}
	return buf.String(), nil
}
