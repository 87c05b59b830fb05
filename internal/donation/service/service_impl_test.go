package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/charitydesk/internal/clock"
	"github.com/smallbiznis/charitydesk/internal/dbtest"
	"github.com/smallbiznis/charitydesk/internal/donation/domain"
	"github.com/smallbiznis/charitydesk/internal/donation/repository"
	"github.com/smallbiznis/charitydesk/internal/donation/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newService(t *testing.T) (domain.Service, *gorm.DB, *clock.FakeClock) {
	t.Helper()
	db := dbtest.Open(t)
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := service.New(service.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  repository.Provide(),
	})
	return svc, db, clk
}

func guestDonation(ref string) domain.Donation {
	d := domain.Donation{
		DonorType:          domain.DonorTypeGuest,
		ExternalPaymentRef: ref,
		Amount:             decimal.NewFromInt(50),
		Currency:           "USD",
		Frequency:          domain.FrequencyOneTime,
		ClaimToken:         domain.StringPtr("clm_" + ref),
	}
	d.SetGuest(&domain.GuestInfo{Name: "Jane", Email: "jane@x.com"})
	return d
}

func TestCreatePendingRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	in := guestDonation("cs_test_1")
	in.SetDedication(&domain.Dedication{InHonorOf: "Grandma"})
	created, err := svc.CreatePending(ctx, in)
	require.NoError(t, err)
	require.NotZero(t, created.ID)

	got, err := svc.GetByPaymentRef(ctx, "cs_test_1")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.True(t, decimal.NewFromInt(50).Equal(got.Amount))
	assert.Equal(t, &domain.GuestInfo{Name: "Jane", Email: "jane@x.com"}, got.Guest())
	assert.Equal(t, "Grandma", got.Dedication().InHonorOf)
	assert.True(t, got.Claimable())

	byToken, err := svc.GetByClaimToken(ctx, "clm_cs_test_1")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byToken.ID)
}

func TestGetReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	_, err := svc.GetByPaymentRef(ctx, "cs_missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = svc.GetByID(ctx, "12345")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = svc.GetByID(ctx, "not-a-number")
	assert.ErrorIs(t, err, domain.ErrInvalidID)
}

func TestRecordCompletedIsIdempotentOnPaymentRef(t *testing.T) {
	ctx := context.Background()
	svc, db, _ := newService(t)

	d := domain.Donation{
		DonorType:          domain.DonorTypeAnonymous,
		ExternalPaymentRef: "in_001",
		Amount:             decimal.NewFromInt(25),
		Currency:           "USD",
		Frequency:          domain.FrequencyMonthly,
	}
	first, created, err := svc.RecordCompleted(ctx, d)
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := svc.RecordCompleted(ctx, d)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(1), dbtest.Count(t, db, `SELECT COUNT(*) FROM donations WHERE external_payment_ref = ?`, "in_001"))
}

func TestTransitionStatusRespectsFromSet(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	created, err := svc.CreatePending(ctx, guestDonation("cs_test_2"))
	require.NoError(t, err)

	ok, err := svc.TransitionStatus(ctx, created.ID.String(), domain.StatusCompleted, domain.StatusPending)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.TransitionStatus(ctx, created.ID.String(), domain.StatusFailed, domain.StatusPending)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := svc.GetByID(ctx, created.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
}

func TestLatestBySubscriptionOrdersByCreatedAt(t *testing.T) {
	ctx := context.Background()
	svc, _, clk := newService(t)

	sub := "sub_1"
	first := guestDonation("cs_sub_1")
	first.SubscriptionRef = &sub
	first.IsRecurring = true
	_, err := svc.CreatePending(ctx, first)
	require.NoError(t, err)

	clk.Advance(24 * time.Hour)
	second := guestDonation("in_sub_1")
	second.SubscriptionRef = &sub
	second.IsRecurring = true
	second.Amount = decimal.NewFromInt(30)
	_, _, err = svc.RecordCompleted(ctx, second)
	require.NoError(t, err)

	latest, err := svc.GetLatestBySubscription(ctx, sub)
	require.NoError(t, err)
	assert.Equal(t, "in_sub_1", latest.ExternalPaymentRef)
}

func TestAppendGuestDonationCreatesThenAppends(t *testing.T) {
	ctx := context.Background()
	svc, db, _ := newService(t)
	repo := repository.Provide()

	guest := domain.GuestInfo{Name: "Jane", Email: " Jane@X.com "}
	require.NoError(t, svc.AppendGuestDonation(ctx, guest, "1"))
	require.NoError(t, svc.AppendGuestDonation(ctx, guest, "2"))
	require.NoError(t, svc.AppendGuestDonation(ctx, guest, "2"))

	got, err := repo.FindGuestDonor(ctx, db, "jane@x.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []string{"1", "2"}, got.DonationIDs)
	assert.Equal(t, int64(1), got.Version)
}

func TestSwapGuestDonationIDsRejectsStaleVersion(t *testing.T) {
	ctx := context.Background()
	svc, db, _ := newService(t)
	repo := repository.Provide()

	require.NoError(t, svc.AppendGuestDonation(ctx, domain.GuestInfo{Name: "Jane", Email: "jane@x.com"}, "1"))

	now := time.Now().UTC()
	ok, err := repo.SwapGuestDonationIDs(ctx, db, "jane@x.com", []string{"1", "2"}, 0, now)
	require.NoError(t, err)
	assert.True(t, ok)

	// A writer holding the version it read before the first swap loses.
	ok, err = repo.SwapGuestDonationIDs(ctx, db, "jane@x.com", []string{"1", "3"}, 0, now)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, svc.AppendGuestDonation(ctx, domain.GuestInfo{Name: "Jane", Email: "jane@x.com"}, "3"))
	got, err := repo.FindGuestDonor(ctx, db, "jane@x.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, got.DonationIDs)
}

func TestBindToUserClaimsRecurringSiblings(t *testing.T) {
	ctx := context.Background()
	svc, db, clk := newService(t)

	sub := "sub_9"
	origin := guestDonation("cs_rec")
	origin.IsRecurring = true
	origin.SubscriptionRef = &sub
	created, err := svc.CreatePending(ctx, origin)
	require.NoError(t, err)

	clk.Advance(time.Hour)
	cycle := guestDonation("in_rec_2")
	cycle.ClaimToken = origin.ClaimToken
	cycle.IsRecurring = true
	cycle.SubscriptionRef = &sub
	_, _, err = svc.RecordCompleted(ctx, cycle)
	require.NoError(t, err)

	byToken, err := svc.GetByClaimToken(ctx, *origin.ClaimToken)
	require.NoError(t, err)
	assert.Equal(t, created.ID, byToken.ID)

	ok, err := svc.BindToUser(ctx, *byToken, "user-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(2), dbtest.Count(t, db,
		`SELECT COUNT(*) FROM donations WHERE user_id = ? AND donor_type = ? AND is_claimed = ? AND guest_email IS NULL`,
		"user-1", "registered", true))

	ok, err = svc.BindToUser(ctx, *byToken, "user-2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListByUserPaginates(t *testing.T) {
	ctx := context.Background()
	svc, _, clk := newService(t)

	userID := "user-7"
	for _, ref := range []string{"cs_a", "cs_b", "cs_c"} {
		clk.Advance(time.Minute)
		_, err := svc.CreatePending(ctx, domain.Donation{
			DonorType:          domain.DonorTypeRegistered,
			UserID:             &userID,
			ExternalPaymentRef: ref,
			Amount:             decimal.NewFromInt(10),
			Currency:           "USD",
			Frequency:          domain.FrequencyOneTime,
		})
		require.NoError(t, err)
	}

	page, err := svc.ListByUser(ctx, domain.ListDonationsRequest{UserID: userID, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page.Donations, 2)
	assert.True(t, page.HasMore)
	assert.Equal(t, "cs_c", page.Donations[0].ExternalPaymentRef)
	assert.Equal(t, "cs_b", page.Donations[1].ExternalPaymentRef)

	next, err := svc.ListByUser(ctx, domain.ListDonationsRequest{UserID: userID, PageSize: 2, PageToken: page.NextPageToken})
	require.NoError(t, err)
	require.Len(t, next.Donations, 1)
	assert.False(t, next.HasMore)
	assert.Equal(t, "cs_a", next.Donations[0].ExternalPaymentRef)
}
