package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/charitydesk/internal/clock"
	obsctx "github.com/smallbiznis/charitydesk/internal/observability/context"
	"github.com/smallbiznis/charitydesk/internal/receipt/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type QueueParams struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

// Queue stores receipt requests in receipt_jobs for the worker to pick up.
type Queue struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func NewQueue(p QueueParams) domain.Queue {
	return &Queue{
		db:    p.DB,
		log:   p.Log.Named("receipt.queue"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (q *Queue) Enqueue(ctx context.Context, donationID snowflake.ID) error {
	if donationID == 0 {
		return domain.ErrInvalidDonation
	}
	ctx, correlationID := obsctx.EnsureCorrelationID(ctx)
	now := q.clock.Now()

	inserted, err := q.repo.InsertJob(ctx, q.db, &domain.Job{
		ID:            q.genID.Generate(),
		DonationID:    donationID,
		CorrelationID: correlationID,
		Status:        domain.JobStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		return err
	}
	if !inserted {
		q.log.Debug("receipt already queued", zap.String("donation_id", donationID.String()))
	}
	return nil
}
