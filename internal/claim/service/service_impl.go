package service

import (
	"context"
	"errors"
	"strings"

	"github.com/smallbiznis/charitydesk/internal/claim/domain"
	donationdomain "github.com/smallbiznis/charitydesk/internal/donation/domain"
	"github.com/smallbiznis/charitydesk/internal/identity"
	"github.com/smallbiznis/charitydesk/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log       *zap.Logger
	Donations donationdomain.Service
	Metrics   *metrics.Metrics `optional:"true"`
}

type Service struct {
	log       *zap.Logger
	donations donationdomain.Service
	metrics   *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		log:       p.Log.Named("claim.service"),
		donations: p.Donations,
		metrics:   p.Metrics,
	}
}

func (s *Service) Claim(ctx context.Context, caller identity.Identity, req domain.Request) (*domain.Result, error) {
	result, err := s.claim(ctx, caller, req)
	outcome := "claimed"
	if err != nil {
		outcome = errorCode(err)
	}
	s.metrics.RecordClaim(ctx, outcome)
	return result, err
}

func (s *Service) claim(ctx context.Context, caller identity.Identity, req domain.Request) (*domain.Result, error) {
	if strings.TrimSpace(caller.UserID) == "" {
		return nil, identity.ErrInvalidToken
	}

	transactionID := strings.TrimSpace(req.TransactionID)
	claimToken := strings.TrimSpace(req.ClaimToken)
	if (transactionID == "") == (claimToken == "") {
		return nil, domain.ErrIdentifierRequired
	}

	var (
		d   *donationdomain.Donation
		err error
	)
	if claimToken != "" {
		d, err = s.donations.GetByClaimToken(ctx, claimToken)
	} else {
		d, err = s.donations.GetByID(ctx, transactionID)
		if errors.Is(err, donationdomain.ErrInvalidID) {
			err = donationdomain.ErrNotFound
		}
	}
	if err != nil {
		return nil, err
	}

	if err := checkPreconditions(*d, req.Email); err != nil {
		return nil, err
	}

	bound, err := s.donations.BindToUser(ctx, *d, caller.UserID)
	if err != nil {
		return nil, err
	}
	if !bound {
		// Another request won the conditional update between our read and write.
		return nil, domain.ErrAlreadyClaimed
	}

	if guest := d.Guest(); guest != nil {
		if err := s.donations.MarkGuestAccountCreated(ctx, guest.Email); err != nil {
			s.log.Warn("failed to mark guest donor registered",
				zap.String("donation_id", d.ID.String()),
				zap.Error(err),
			)
		}
	}

	s.log.Info("donation claimed",
		zap.String("donation_id", d.ID.String()),
		zap.String("user_id", caller.UserID),
		zap.String("previous_donor_type", string(d.DonorType)),
	)
	return &domain.Result{
		Success: true,
		Donation: domain.ClaimedDonation{
			ID:       d.ID.String(),
			Amount:   d.Amount,
			Currency: d.Currency,
			Date:     d.CreatedAt,
			Campaign: d.Campaign(),
		},
	}, nil
}

// checkPreconditions applies the ordered ownership checks; the first failure wins. A claimed
// row is registered too, so it is reported as claimed before the linked check can see it.
func checkPreconditions(d donationdomain.Donation, email string) error {
	if d.IsClaimed {
		return domain.ErrAlreadyClaimed
	}
	if d.DonorType == donationdomain.DonorTypeRegistered {
		return domain.ErrAlreadyLinked
	}
	email = strings.TrimSpace(email)
	if guest := d.Guest(); guest != nil && email != "" {
		if !strings.EqualFold(email, strings.TrimSpace(guest.Email)) {
			return domain.ErrEmailMismatch
		}
	}
	return nil
}

func errorCode(err error) string {
	for _, known := range []error{
		domain.ErrIdentifierRequired,
		domain.ErrAlreadyLinked,
		domain.ErrAlreadyClaimed,
		domain.ErrEmailMismatch,
		donationdomain.ErrNotFound,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "error"
}
