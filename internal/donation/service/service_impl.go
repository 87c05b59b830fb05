package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/charitydesk/internal/clock"
	"github.com/smallbiznis/charitydesk/internal/donation/domain"
	"github.com/smallbiznis/charitydesk/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxGuestAppendAttempts = 5

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("donation.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) CreatePending(ctx context.Context, d domain.Donation) (*domain.Donation, error) {
	if strings.TrimSpace(d.ExternalPaymentRef) == "" {
		return nil, domain.ErrInvalidPaymentRef
	}
	now := s.clock.Now()
	if d.ID == 0 {
		d.ID = s.genID.Generate()
	}
	d.Status = domain.StatusPending
	d.CreatedAt = now
	d.UpdatedAt = now

	if err := s.repo.Insert(ctx, s.db, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Service) RecordCompleted(ctx context.Context, d domain.Donation) (*domain.Donation, bool, error) {
	if strings.TrimSpace(d.ExternalPaymentRef) == "" {
		return nil, false, domain.ErrInvalidPaymentRef
	}
	now := s.clock.Now()
	if d.ID == 0 {
		d.ID = s.genID.Generate()
	}
	d.Status = domain.StatusCompleted
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now

	created, err := s.repo.InsertIfAbsent(ctx, s.db, &d)
	if err != nil {
		return nil, false, err
	}
	if created {
		return &d, true, nil
	}

	existing, err := s.repo.FindByPaymentRef(ctx, s.db, d.ExternalPaymentRef)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("insert skipped but no row for %s: %w", d.ExternalPaymentRef, domain.ErrNotFound)
	}
	return existing, false, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*domain.Donation, error) {
	donationID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	return notFoundIfNil(s.repo.FindByID(ctx, s.db, donationID))
}

func (s *Service) GetByPaymentRef(ctx context.Context, ref string) (*domain.Donation, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, domain.ErrNotFound
	}
	return notFoundIfNil(s.repo.FindByPaymentRef(ctx, s.db, ref))
}

func (s *Service) GetByClaimToken(ctx context.Context, token string) (*domain.Donation, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, domain.ErrNotFound
	}
	return notFoundIfNil(s.repo.FindByClaimToken(ctx, s.db, token))
}

func (s *Service) GetLatestBySubscription(ctx context.Context, subscriptionRef string) (*domain.Donation, error) {
	subscriptionRef = strings.TrimSpace(subscriptionRef)
	if subscriptionRef == "" {
		return nil, domain.ErrNotFound
	}
	return notFoundIfNil(s.repo.FindLatestBySubscriptionRef(ctx, s.db, subscriptionRef))
}

func (s *Service) ListByUser(ctx context.Context, req domain.ListDonationsRequest) (domain.ListDonationsResponse, error) {
	page := pagination.Pagination{PageToken: req.PageToken, PageSize: req.PageSize}
	filter := domain.ListFilter{Limit: page.Size() + 1}

	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return domain.ListDonationsResponse{}, err
		}
		createdAt, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
		if err != nil {
			return domain.ListDonationsResponse{}, pagination.ErrInvalidPageToken
		}
		beforeID, err := parseID(cursor.ID)
		if err != nil {
			return domain.ListDonationsResponse{}, pagination.ErrInvalidPageToken
		}
		filter.CreatedBefore = &createdAt
		filter.BeforeID = beforeID
	}

	rows, err := s.repo.ListByUserID(ctx, s.db, req.UserID, filter)
	if err != nil {
		return domain.ListDonationsResponse{}, err
	}

	resp := domain.ListDonationsResponse{Donations: make([]domain.Donation, 0, len(rows))}
	if len(rows) > page.Size() {
		resp.HasMore = true
		rows = rows[:page.Size()]
	}
	for _, row := range rows {
		resp.Donations = append(resp.Donations, *row)
	}
	if resp.HasMore {
		last := rows[len(rows)-1]
		next, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        last.ID.String(),
			CreatedAt: last.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return domain.ListDonationsResponse{}, err
		}
		resp.NextPageToken = next
	}
	return resp, nil
}

func (s *Service) CompleteCheckout(ctx context.Context, id string, customerRef, subscriptionRef *string) error {
	donationID, err := parseID(id)
	if err != nil {
		return err
	}
	return s.repo.UpdateCheckoutCompleted(ctx, s.db, donationID, customerRef, subscriptionRef, s.clock.Now())
}

func (s *Service) TransitionStatus(ctx context.Context, id string, to domain.Status, from ...domain.Status) (bool, error) {
	donationID, err := parseID(id)
	if err != nil {
		return false, err
	}
	return s.repo.UpdateStatus(ctx, s.db, donationID, to, from, s.clock.Now())
}

func (s *Service) SetSubscriptionStatus(ctx context.Context, subscriptionRef string, to domain.Status) (int64, error) {
	subscriptionRef = strings.TrimSpace(subscriptionRef)
	if subscriptionRef == "" {
		return 0, nil
	}
	return s.repo.UpdateStatusBySubscriptionRef(ctx, s.db, subscriptionRef, to, s.clock.Now())
}

func (s *Service) BindToUser(ctx context.Context, d domain.Donation, userID string) (bool, error) {
	now := s.clock.Now()
	ok, err := s.repo.Claim(ctx, s.db, d.ID, userID, now)
	if err != nil || !ok {
		return ok, err
	}

	// Recurring cycles cloned from this row share its token and follow it to the account.
	if d.ClaimToken != nil && d.IsRecurring {
		siblings, err := s.repo.ClaimByToken(ctx, s.db, *d.ClaimToken, userID, now)
		if err != nil {
			s.log.Warn("failed to claim recurring siblings",
				zap.String("donation_id", d.ID.String()),
				zap.Error(err),
			)
		} else if siblings > 0 {
			s.log.Info("claimed recurring siblings",
				zap.String("donation_id", d.ID.String()),
				zap.Int64("count", siblings),
			)
		}
	}
	return true, nil
}

func (s *Service) AttachReceipt(ctx context.Context, id string, receiptURL *string, sentAt time.Time) error {
	donationID, err := parseID(id)
	if err != nil {
		return err
	}
	return s.repo.UpdateReceipt(ctx, s.db, donationID, receiptURL, sentAt)
}

// AppendGuestDonation adds donationID to the guest aggregate with a version compare-and-swap,
// so concurrent donations from the same email never drop an id.
func (s *Service) AppendGuestDonation(ctx context.Context, guest domain.GuestInfo, donationID string) error {
	email := domain.NormalizeEmail(guest.Email)
	if email == "" || strings.TrimSpace(donationID) == "" {
		return nil
	}

	now := s.clock.Now()
	created, err := s.repo.InsertGuestDonorIfAbsent(ctx, s.db, &domain.GuestDonor{
		Email:       email,
		Name:        strings.TrimSpace(guest.Name),
		DonationIDs: []string{donationID},
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return err
	}
	if created {
		return nil
	}

	for attempt := 0; attempt < maxGuestAppendAttempts; attempt++ {
		current, err := s.repo.FindGuestDonor(ctx, s.db, email)
		if err != nil {
			return err
		}
		if current == nil {
			return fmt.Errorf("guest donor %s vanished: %w", email, domain.ErrNotFound)
		}
		if current.Contains(donationID) {
			return nil
		}

		ids := append(append([]string{}, current.DonationIDs...), donationID)
		swapped, err := s.repo.SwapGuestDonationIDs(ctx, s.db, email, ids, current.Version, s.clock.Now())
		if err != nil {
			return err
		}
		if swapped {
			return nil
		}
		s.log.Debug("guest donor version moved, retrying", zap.Int("attempt", attempt+1))
	}
	return domain.ErrGuestDonorConflict
}

func (s *Service) MarkGuestAccountCreated(ctx context.Context, email string) error {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return nil
	}
	return s.repo.MarkGuestAccountCreated(ctx, s.db, email, s.clock.Now())
}

func parseID(raw string) (snowflake.ID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, domain.ErrInvalidID
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.ErrInvalidID
	}
	return snowflake.ID(id), nil
}

func notFoundIfNil(d *domain.Donation, err error) (*domain.Donation, error) {
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, domain.ErrNotFound
	}
	return d, nil
}
