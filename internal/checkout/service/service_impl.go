package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/charitydesk/internal/checkout/domain"
	"github.com/smallbiznis/charitydesk/internal/config"
	donationdomain "github.com/smallbiznis/charitydesk/internal/donation/domain"
	"github.com/smallbiznis/charitydesk/internal/identity"
	"github.com/smallbiznis/charitydesk/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/charitydesk/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var minimumAmount = decimal.NewFromInt(1)

type Params struct {
	fx.In

	Log       *zap.Logger
	Cfg       config.Config
	GenID     *snowflake.Node
	Catalog   *config.DonationConfigHolder
	Gateway   paymentdomain.Gateway
	Donations donationdomain.Service
	Metrics   *metrics.Metrics `optional:"true"`
}

type Service struct {
	log       *zap.Logger
	siteURL   string
	genID     *snowflake.Node
	catalog   *config.DonationConfigHolder
	gateway   paymentdomain.Gateway
	donations donationdomain.Service
	metrics   *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		log:       p.Log.Named("checkout.service"),
		siteURL:   strings.TrimRight(p.Cfg.SiteURL, "/"),
		genID:     p.GenID,
		catalog:   p.Catalog,
		gateway:   p.Gateway,
		donations: p.Donations,
		metrics:   p.Metrics,
	}
}

// checkout is a validated request with the donor identity settled.
type checkout struct {
	donorType     donationdomain.DonorType
	userID        string
	email         string
	guest         *donationdomain.GuestInfo
	amount        decimal.Decimal
	currency      string
	recurring     bool
	frequency     donationdomain.Frequency
	campaignID    string
	campaignTitle string
	dedication    *donationdomain.Dedication
}

func (s *Service) Initiate(ctx context.Context, req domain.Request, caller identity.Resolution) (*domain.Result, error) {
	if s.gateway == nil || !s.gateway.Configured() {
		s.metrics.RecordCheckout(ctx, req.DonorType, req.IsRecurring, "not_configured")
		return nil, paymentdomain.ErrNotConfigured
	}
	if reason := caller.Reason(); reason != nil {
		s.log.Debug("checkout continuing without identity", zap.Error(reason))
	}
	// userId from the body is never trusted; only a verified token binds an account.
	if _, ok := caller.Identity(); !ok && strings.TrimSpace(req.UserID) != "" {
		s.log.Warn("ignoring unauthenticated userId on checkout", zap.String("user_id", strings.TrimSpace(req.UserID)))
	}

	catalog := s.catalog.Get()
	in, err := normalize(req, caller, catalog)
	if err != nil {
		s.metrics.RecordCheckout(ctx, req.DonorType, req.IsRecurring, "invalid")
		return nil, err
	}

	customerRef, err := s.resolveCustomer(ctx, in)
	if err != nil {
		s.metrics.RecordCheckout(ctx, string(in.donorType), in.recurring, "gateway_error")
		return nil, err
	}

	var claimToken string
	if in.donorType != donationdomain.DonorTypeRegistered {
		claimToken = donationdomain.NewClaimToken()
	}
	donationID := s.genID.Generate()

	params := paymentdomain.SessionParams{
		Mode:        paymentdomain.SessionModePayment,
		CustomerRef: customerRef,
		Amount:      in.amount,
		Currency:    in.currency,
		ProductName: catalog.ProductName,
		Description: describe(in),
		SuccessURL:  s.successURL(claimToken),
		CancelURL:   s.siteURL + "/donate?canceled=true",
		Metadata:    metadataFor(in, claimToken, donationID),
	}
	if customerRef == "" {
		params.CustomerEmail = in.email
	}
	if in.recurring {
		priceID, err := s.resolvePrice(ctx, in, catalog)
		if err != nil {
			s.metrics.RecordCheckout(ctx, string(in.donorType), in.recurring, "gateway_error")
			return nil, err
		}
		params.Mode = paymentdomain.SessionModeSubscription
		params.PriceID = priceID
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, params)
	if err != nil {
		s.metrics.RecordCheckout(ctx, string(in.donorType), in.recurring, "gateway_error")
		return nil, err
	}

	result := &domain.Result{
		URL:        donationdomain.StringPtr(session.URL),
		SessionID:  donationdomain.StringPtr(session.ID),
		ClaimToken: donationdomain.StringPtr(claimToken),
	}

	donation, err := s.donations.CreatePending(ctx, ledgerRow(in, donationID, session.ID, customerRef, claimToken))
	if err != nil {
		s.log.Error("failed to write pending donation, webhook will reconcile",
			zap.String("session_id", session.ID),
			zap.Error(err),
		)
	} else {
		id := donation.ID.String()
		result.DonationID = &id
		if in.guest != nil {
			if err := s.donations.AppendGuestDonation(ctx, *in.guest, id); err != nil {
				s.log.Warn("failed to update guest donor", zap.String("donation_id", id), zap.Error(err))
			}
		}
	}

	s.metrics.RecordCheckout(ctx, string(in.donorType), in.recurring, "created")
	s.log.Info("checkout session created",
		zap.String("session_id", session.ID),
		zap.String("donor_type", string(in.donorType)),
		zap.Bool("recurring", in.recurring),
	)
	return result, nil
}

func normalize(req domain.Request, caller identity.Resolution, catalog config.DonationConfig) (checkout, error) {
	in := checkout{
		amount:        req.Amount,
		recurring:     req.IsRecurring,
		campaignID:    strings.TrimSpace(req.CampaignID),
		campaignTitle: strings.TrimSpace(req.CampaignTitle),
	}

	id, authenticated := caller.Identity()
	switch {
	case strings.TrimSpace(req.DonorType) != "":
		donorType, ok := donationdomain.ParseDonorType(req.DonorType)
		if !ok {
			return checkout{}, domain.ErrInvalidDonorType
		}
		in.donorType = donorType
	case authenticated:
		in.donorType = donationdomain.DonorTypeRegistered
	case req.IsAnonymous != nil && *req.IsAnonymous:
		in.donorType = donationdomain.DonorTypeAnonymous
	case req.GuestInfo != nil && strings.TrimSpace(req.GuestInfo.Email) != "":
		in.donorType = donationdomain.DonorTypeGuest
	default:
		in.donorType = donationdomain.DonorTypeAnonymous
	}

	var guest donationdomain.GuestInfo
	if req.GuestInfo != nil {
		guest = donationdomain.GuestInfo{
			Name:  strings.TrimSpace(req.GuestInfo.Name),
			Email: strings.TrimSpace(req.GuestInfo.Email),
		}
	}

	if in.donorType == donationdomain.DonorTypeRegistered {
		switch {
		case authenticated:
			in.userID, in.email = id.UserID, id.Email
		case guest.Name != "" && guest.Email != "":
			in.donorType = donationdomain.DonorTypeGuest
		default:
			in.donorType = donationdomain.DonorTypeAnonymous
		}
		if in.email == "" {
			in.email = guest.Email
		}
	}

	if !in.amount.GreaterThanOrEqual(minimumAmount) {
		return checkout{}, domain.ErrInvalidAmount
	}
	if in.donorType == donationdomain.DonorTypeGuest {
		if guest.Name == "" {
			return checkout{}, domain.ErrGuestNameRequired
		}
		if guest.Email == "" {
			return checkout{}, domain.ErrGuestEmailRequired
		}
		in.guest = &guest
		in.email = guest.Email
	}

	in.currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	if in.currency == "" {
		in.currency = strings.ToUpper(strings.TrimSpace(catalog.DefaultCurrency))
	}
	if in.currency == "" {
		in.currency = "USD"
	}
	if len(in.currency) != 3 || !catalog.SupportsCurrency(in.currency) {
		return checkout{}, domain.ErrInvalidCurrency
	}

	in.frequency = donationdomain.FrequencyOneTime
	if in.recurring {
		in.frequency = donationdomain.FrequencyMonthly
		if raw := strings.TrimSpace(req.Frequency); raw != "" {
			freq, ok := donationdomain.ParseFrequency(raw)
			if !ok {
				return checkout{}, domain.ErrInvalidFrequency
			}
			if freq != donationdomain.FrequencyOneTime {
				in.frequency = freq
			}
		}
	}

	if req.Dedication != nil {
		in.dedication = &donationdomain.Dedication{
			InHonorOf: strings.TrimSpace(req.Dedication.InHonorOf),
			Message:   strings.TrimSpace(req.Dedication.Message),
		}
	}
	return in, nil
}

func (s *Service) resolveCustomer(ctx context.Context, in checkout) (string, error) {
	if in.donorType == donationdomain.DonorTypeAnonymous || in.email == "" {
		return "", nil
	}

	customerRef, found, err := s.gateway.FindCustomerByEmail(ctx, in.email)
	if err != nil {
		return "", err
	}
	if found {
		return customerRef, nil
	}

	params := paymentdomain.CustomerParams{
		Email:    in.email,
		Metadata: map[string]string{paymentdomain.MetaDonorType: string(in.donorType)},
	}
	if in.donorType == donationdomain.DonorTypeRegistered {
		params.Metadata[paymentdomain.MetaUserID] = in.userID
	}
	if in.guest != nil {
		params.Name = in.guest.Name
	}
	return s.gateway.CreateCustomer(ctx, params)
}

func (s *Service) resolvePrice(ctx context.Context, in checkout, catalog config.DonationConfig) (string, error) {
	interval := in.frequency.Interval()
	if priceID, ok := catalog.LookupRecurringPrice(in.currency, interval, in.amount); ok {
		return priceID, nil
	}
	return s.gateway.CreateRecurringPrice(ctx, paymentdomain.PriceParams{
		Amount:      in.amount,
		Currency:    in.currency,
		Interval:    interval,
		ProductName: fmt.Sprintf("%s (%s)", describe(in), in.frequency),
	})
}

func (s *Service) successURL(claimToken string) string {
	target := s.siteURL + "/donate/success?session_id={CHECKOUT_SESSION_ID}"
	if claimToken != "" {
		target += "&claim_token=" + url.QueryEscape(claimToken)
	}
	return target
}

func describe(in checkout) string {
	if in.campaignTitle != "" {
		return "Donation to " + in.campaignTitle
	}
	return "Donation"
}

func metadataFor(in checkout, claimToken string, donationID snowflake.ID) paymentdomain.CheckoutMetadata {
	meta := paymentdomain.CheckoutMetadata{
		DonationID:    donationID.String(),
		DonorType:     string(in.donorType),
		UserID:        in.userID,
		ReceiptEmail:  in.email,
		Amount:        in.amount,
		Currency:      in.currency,
		Frequency:     string(in.frequency),
		IsRecurring:   in.recurring,
		CampaignID:    in.campaignID,
		CampaignTitle: in.campaignTitle,
		ClaimToken:    claimToken,
	}
	if in.guest != nil {
		meta.GuestName = in.guest.Name
		meta.GuestEmail = in.guest.Email
	}
	if in.dedication != nil {
		meta.DedicationHonoree = in.dedication.InHonorOf
		meta.DedicationMessage = in.dedication.Message
	}
	return meta
}

func ledgerRow(in checkout, id snowflake.ID, sessionID, customerRef, claimToken string) donationdomain.Donation {
	d := donationdomain.Donation{
		ID:                  id,
		DonorType:           in.donorType,
		ExternalPaymentRef:  sessionID,
		ExternalCustomerRef: donationdomain.StringPtr(customerRef),
		ReceiptEmail:        donationdomain.StringPtr(in.email),
		Amount:              in.amount,
		Currency:            in.currency,
		IsRecurring:         in.recurring,
		Frequency:           in.frequency,
		CampaignID:          donationdomain.StringPtr(in.campaignID),
		CampaignTitle:       donationdomain.StringPtr(in.campaignTitle),
		ClaimToken:          donationdomain.StringPtr(claimToken),
	}
	if in.donorType == donationdomain.DonorTypeRegistered {
		d.UserID = donationdomain.StringPtr(in.userID)
	}
	d.SetGuest(in.guest)
	d.SetDedication(in.dedication)
	return d
}
