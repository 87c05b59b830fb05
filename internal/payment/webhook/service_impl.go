package webhook

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/charitydesk/internal/clock"
	"github.com/smallbiznis/charitydesk/internal/config"
	donationdomain "github.com/smallbiznis/charitydesk/internal/donation/domain"
	"github.com/smallbiznis/charitydesk/internal/observability/metrics"
	"github.com/smallbiznis/charitydesk/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/charitydesk/internal/payment/domain"
	receiptdomain "github.com/smallbiznis/charitydesk/internal/receipt/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	outcomeApplied   = "applied"
	outcomeDuplicate = "duplicate"
	outcomeIgnored   = "ignored"
	outcomeError     = "error"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Cfg       config.Config
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      paymentdomain.Repository
	Adapters  *adapters.Registry
	Donations donationdomain.Service
	Receipts  receiptdomain.Queue
	Metrics   *metrics.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	stripe    config.StripeConfig
	genID     *snowflake.Node
	clock     clock.Clock
	repo      paymentdomain.Repository
	adapters  *adapters.Registry
	donations donationdomain.Service
	receipts  receiptdomain.Queue
	metrics   *metrics.Metrics
}

func NewService(p Params) paymentdomain.WebhookService {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("payment.webhook"),
		stripe:    p.Cfg.Stripe,
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		adapters:  p.Adapters,
		donations: p.Donations,
		receipts:  p.Receipts,
		metrics:   p.Metrics,
	}
}

// IngestWebhook authenticates a delivery and applies it to the ledger. Only authentication and
// configuration problems are returned; once the signature checks out every outcome is
// acknowledged so the gateway does not amplify failures with retries.
func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return paymentdomain.ErrInvalidProvider
	}
	if s.adapters == nil || !s.adapters.ProviderExists(provider) {
		return paymentdomain.ErrProviderNotFound
	}

	adapter, err := s.adapters.NewAdapter(provider, paymentdomain.AdapterConfig{
		WebhookSecret: s.stripe.WebhookSecret,
		Tolerance:     s.stripe.WebhookTolerance,
		Now:           s.clock.Now,
	})
	if err != nil {
		return err
	}
	if err := adapter.Verify(ctx, payload, headers); err != nil {
		s.log.Warn("webhook signature rejected", zap.String("provider", provider))
		return err
	}

	event, err := adapter.Parse(ctx, payload)
	if err != nil {
		s.log.Warn("verified webhook could not be decoded", zap.String("provider", provider), zap.Error(err))
		s.metrics.RecordWebhookEvent(ctx, provider, "unknown", outcomeError)
		return nil
	}

	meta := event.Meta()
	log := s.log.With(
		zap.String("provider", provider),
		zap.String("event_id", meta.ProviderEventID),
		zap.String("event_type", meta.Type),
	)

	record, duplicate := s.recordEvent(ctx, log, meta)
	if duplicate {
		log.Info("webhook event already processed")
		s.metrics.RecordWebhookEvent(ctx, provider, meta.Type, outcomeDuplicate)
		return nil
	}

	outcome, err := s.dispatch(ctx, log, event)
	if err != nil {
		log.Error("webhook event handling failed", zap.Error(err))
		s.metrics.RecordWebhookEvent(ctx, provider, meta.Type, outcomeError)
		return nil
	}
	s.metrics.RecordWebhookEvent(ctx, provider, meta.Type, outcome)

	if record != nil {
		if err := s.repo.MarkProcessed(ctx, s.db, record.ID, s.clock.Now()); err != nil {
			log.Warn("failed to mark webhook event processed", zap.Error(err))
		}
	}
	return nil
}

// recordEvent stores the delivery in the event log. It reports duplicate=true only when the
// same event was already applied; a logging failure never blocks handling.
func (s *Service) recordEvent(ctx context.Context, log *zap.Logger, meta paymentdomain.EventMeta) (*paymentdomain.EventRecord, bool) {
	record := &paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        meta.Provider,
		ProviderEventID: meta.ProviderEventID,
		EventType:       meta.Type,
		Payload:         datatypes.JSON(meta.RawPayload),
		ReceivedAt:      s.clock.Now(),
	}
	inserted, err := s.repo.InsertEvent(ctx, s.db, record)
	if err != nil {
		log.Warn("failed to record webhook event", zap.Error(err))
		return nil, false
	}
	if inserted {
		return record, false
	}

	existing, err := s.repo.FindEvent(ctx, s.db, meta.Provider, meta.ProviderEventID)
	if err != nil || existing == nil {
		log.Warn("failed to load recorded webhook event", zap.Error(err))
		return nil, false
	}
	if existing.ProcessedAt != nil {
		return existing, true
	}
	return existing, false
}

func (s *Service) dispatch(ctx context.Context, log *zap.Logger, event paymentdomain.Event) (string, error) {
	switch ev := event.(type) {
	case paymentdomain.CheckoutCompleted:
		return outcomeApplied, s.handleCheckoutCompleted(ctx, log, ev)
	case paymentdomain.PaymentSucceeded:
		return s.handlePaymentResult(ctx, log, ev.PaymentIntentID, ev.Metadata, donationdomain.StatusCompleted,
			donationdomain.StatusPending, donationdomain.StatusFailed)
	case paymentdomain.PaymentFailed:
		if ev.FailureMessage != "" {
			log = log.With(zap.String("failure_message", ev.FailureMessage))
		}
		return s.handlePaymentResult(ctx, log, ev.PaymentIntentID, ev.Metadata, donationdomain.StatusFailed,
			donationdomain.StatusPending)
	case paymentdomain.SubscriptionChanged:
		status := donationdomain.StatusCanceled
		if ev.Active() {
			status = donationdomain.StatusCompleted
		}
		return s.handleSubscriptionStatus(ctx, log, ev.SubscriptionRef, status)
	case paymentdomain.SubscriptionDeleted:
		return s.handleSubscriptionStatus(ctx, log, ev.SubscriptionRef, donationdomain.StatusCanceled)
	case paymentdomain.InvoicePaid:
		return s.handleInvoicePaid(ctx, log, ev)
	case paymentdomain.InvoiceFailed:
		log.Warn("recurring invoice payment failed",
			zap.String("invoice_id", ev.InvoiceID),
			zap.String("subscription_ref", ev.SubscriptionRef),
			zap.Int64("attempt_count", ev.AttemptCount),
		)
		return outcomeIgnored, nil
	case paymentdomain.Unrecognized:
		log.Debug("ignoring unhandled webhook event type")
		return outcomeIgnored, nil
	default:
		log.Warn("ignoring webhook event of unknown kind")
		return outcomeIgnored, nil
	}
}

func (s *Service) handleCheckoutCompleted(ctx context.Context, log *zap.Logger, ev paymentdomain.CheckoutCompleted) error {
	existing, err := s.donations.GetByPaymentRef(ctx, ev.SessionID)
	if err != nil && !errors.Is(err, donationdomain.ErrNotFound) {
		return err
	}

	var subscriptionRef *string
	if ev.Mode == paymentdomain.SessionModeSubscription {
		subscriptionRef = donationdomain.StringPtr(ev.SubscriptionRef)
	}

	if existing != nil {
		if err := s.donations.CompleteCheckout(ctx, existing.ID.String(), donationdomain.StringPtr(ev.CustomerRef), subscriptionRef); err != nil {
			return err
		}
		log.Info("checkout completed", zap.String("donation_id", existing.ID.String()))
		s.enqueueReceipt(ctx, log, existing.ID)
		return nil
	}

	// The initiation write never landed; rebuild the row from what the gateway carried.
	d := donationFromMetadata(ev.Metadata, ev.AmountTotal, ev.Currency, ev.CustomerEmail)
	d.ExternalPaymentRef = ev.SessionID
	d.ExternalCustomerRef = donationdomain.StringPtr(ev.CustomerRef)
	d.SubscriptionRef = subscriptionRef
	if ev.Mode == paymentdomain.SessionModeSubscription {
		d.IsRecurring = true
		if d.Frequency == donationdomain.FrequencyOneTime {
			d.Frequency = donationdomain.FrequencyMonthly
		}
	}

	created, inserted, err := s.donations.RecordCompleted(ctx, d)
	if err != nil {
		return err
	}
	if inserted {
		log.Info("synthesized donation from checkout metadata", zap.String("donation_id", created.ID.String()))
		s.trackGuest(ctx, log, *created)
	}
	s.enqueueReceipt(ctx, log, created.ID)
	return nil
}

// handlePaymentResult finds the row by payment intent id, or by the donation id the checkout
// stamped on the intent, since rows from hosted checkout are keyed by session id.
func (s *Service) handlePaymentResult(ctx context.Context, log *zap.Logger, ref string, meta paymentdomain.CheckoutMetadata, to donationdomain.Status, from ...donationdomain.Status) (string, error) {
	d, err := s.donations.GetByPaymentRef(ctx, ref)
	if errors.Is(err, donationdomain.ErrNotFound) && meta.DonationID != "" {
		d, err = s.donations.GetByID(ctx, meta.DonationID)
	}
	if errors.Is(err, donationdomain.ErrNotFound) || errors.Is(err, donationdomain.ErrInvalidID) {
		log.Debug("no donation for payment intent", zap.String("payment_ref", ref))
		return outcomeIgnored, nil
	}
	if err != nil {
		return "", err
	}

	changed, err := s.donations.TransitionStatus(ctx, d.ID.String(), to, from...)
	if err != nil {
		return "", err
	}
	if !changed {
		log.Info("donation status left unchanged",
			zap.String("donation_id", d.ID.String()),
			zap.String("status", string(d.Status)),
			zap.String("requested", string(to)),
		)
		return outcomeIgnored, nil
	}
	return outcomeApplied, nil
}

func (s *Service) handleSubscriptionStatus(ctx context.Context, log *zap.Logger, ref string, to donationdomain.Status) (string, error) {
	if strings.TrimSpace(ref) == "" {
		return outcomeIgnored, nil
	}
	n, err := s.donations.SetSubscriptionStatus(ctx, ref, to)
	if err != nil {
		return "", err
	}
	log.Info("subscription status applied",
		zap.String("subscription_ref", ref),
		zap.String("status", string(to)),
		zap.Int64("rows", n),
	)
	if n == 0 {
		return outcomeIgnored, nil
	}
	return outcomeApplied, nil
}

// handleInvoicePaid records one billing cycle as its own completed row keyed by the invoice id.
func (s *Service) handleInvoicePaid(ctx context.Context, log *zap.Logger, ev paymentdomain.InvoicePaid) (string, error) {
	if strings.TrimSpace(ev.SubscriptionRef) == "" {
		log.Debug("invoice without subscription", zap.String("invoice_id", ev.InvoiceID))
		return outcomeIgnored, nil
	}
	if !ev.AmountPaid.IsPositive() {
		log.Info("skipping invoice with nothing collected",
			zap.String("invoice_id", ev.InvoiceID),
			zap.String("subscription_ref", ev.SubscriptionRef),
			zap.String("amount_paid", ev.AmountPaid.String()),
		)
		return outcomeIgnored, nil
	}

	var cycle donationdomain.Donation
	origin, err := s.donations.GetLatestBySubscription(ctx, ev.SubscriptionRef)
	switch {
	case err == nil:
		cycle = cloneForCycle(*origin)
	case errors.Is(err, donationdomain.ErrNotFound):
		if ev.Metadata.DonorType == "" {
			log.Warn("no donation for subscription and no metadata to rebuild from",
				zap.String("subscription_ref", ev.SubscriptionRef))
			return outcomeIgnored, nil
		}
		cycle = donationFromMetadata(ev.Metadata, ev.AmountPaid, ev.Currency, "")
		cycle.IsRecurring = true
		if cycle.Frequency == donationdomain.FrequencyOneTime {
			cycle.Frequency = donationdomain.FrequencyMonthly
		}
	default:
		return "", err
	}

	cycle.ExternalPaymentRef = ev.InvoiceID
	cycle.SubscriptionRef = donationdomain.StringPtr(ev.SubscriptionRef)
	if ref := donationdomain.StringPtr(ev.CustomerRef); ref != nil {
		cycle.ExternalCustomerRef = ref
	}
	cycle.Amount = ev.AmountPaid
	if ev.Currency != "" {
		cycle.Currency = ev.Currency
	}
	cycle.CreatedAt = ev.PaidAt

	created, inserted, err := s.donations.RecordCompleted(ctx, cycle)
	if err != nil {
		return "", err
	}
	if !inserted {
		return outcomeDuplicate, nil
	}
	log.Info("recorded recurring cycle",
		zap.String("donation_id", created.ID.String()),
		zap.String("invoice_id", ev.InvoiceID),
		zap.String("billing_reason", ev.BillingReason),
	)
	if origin == nil {
		s.trackGuest(ctx, log, *created)
	}
	s.enqueueReceipt(ctx, log, created.ID)
	return outcomeApplied, nil
}

func (s *Service) enqueueReceipt(ctx context.Context, log *zap.Logger, id snowflake.ID) {
	if s.receipts == nil {
		return
	}
	if err := s.receipts.Enqueue(ctx, id); err != nil {
		log.Warn("failed to queue receipt", zap.String("donation_id", id.String()), zap.Error(err))
	}
}

func (s *Service) trackGuest(ctx context.Context, log *zap.Logger, d donationdomain.Donation) {
	guest := d.Guest()
	if guest == nil {
		return
	}
	if err := s.donations.AppendGuestDonation(ctx, *guest, d.ID.String()); err != nil {
		log.Warn("failed to update guest donor", zap.String("donation_id", d.ID.String()), zap.Error(err))
	}
}
