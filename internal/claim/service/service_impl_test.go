package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/charitydesk/internal/claim/domain"
	"github.com/smallbiznis/charitydesk/internal/claim/service"
	"github.com/smallbiznis/charitydesk/internal/clock"
	"github.com/smallbiznis/charitydesk/internal/dbtest"
	donationdomain "github.com/smallbiznis/charitydesk/internal/donation/domain"
	donationrepo "github.com/smallbiznis/charitydesk/internal/donation/repository"
	donationservice "github.com/smallbiznis/charitydesk/internal/donation/service"
	"github.com/smallbiznis/charitydesk/internal/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	alice = identity.Identity{UserID: "user-alice", Email: "a@b.com"}
	bob   = identity.Identity{UserID: "user-bob", Email: "bob@x.com"}
)

func setup(t *testing.T) (domain.Service, donationdomain.Service, *gorm.DB) {
	t.Helper()
	db := dbtest.Open(t)
	node, err := snowflake.NewNode(9)
	require.NoError(t, err)
	donations := donationservice.New(donationservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		Repo:  donationrepo.Provide(),
	})
	svc := service.New(service.Params{Log: zap.NewNop(), Donations: donations})
	return svc, donations, db
}

func seedGuest(t *testing.T, donations donationdomain.Service, ref, token, email string) *donationdomain.Donation {
	t.Helper()
	d := donationdomain.Donation{
		DonorType:          donationdomain.DonorTypeGuest,
		ExternalPaymentRef: ref,
		Amount:             decimal.NewFromInt(40),
		Currency:           "USD",
		Frequency:          donationdomain.FrequencyOneTime,
		CampaignTitle:      donationdomain.StringPtr("Clean Water"),
		ClaimToken:         donationdomain.StringPtr(token),
	}
	d.SetGuest(&donationdomain.GuestInfo{Name: "Guest", Email: email})
	created, err := donations.CreatePending(context.Background(), d)
	require.NoError(t, err)
	require.NoError(t, donations.AppendGuestDonation(context.Background(), *d.Guest(), created.ID.String()))
	return created
}

func TestClaimByTokenMatchesEmailCaseInsensitively(t *testing.T) {
	svc, donations, db := setup(t)
	ctx := context.Background()
	seeded := seedGuest(t, donations, "cs_1", "clm_d", "a@b.com")

	res, err := svc.Claim(ctx, alice, domain.Request{ClaimToken: "clm_d", Email: "A@B.com"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, seeded.ID.String(), res.Donation.ID)
	assert.True(t, decimal.NewFromInt(40).Equal(res.Donation.Amount))
	assert.Equal(t, "Clean Water", res.Donation.Campaign)

	d, err := donations.GetByID(ctx, seeded.ID.String())
	require.NoError(t, err)
	assert.Equal(t, donationdomain.DonorTypeRegistered, d.DonorType)
	assert.Equal(t, "user-alice", *d.UserID)
	assert.True(t, d.IsClaimed)
	assert.Nil(t, d.Guest())
	assert.Equal(t, "clm_d", *d.ClaimToken)

	assert.EqualValues(t, 1, dbtest.Count(t, db,
		`SELECT COUNT(*) FROM guest_donors WHERE email = ? AND account_created_at IS NOT NULL`, "a@b.com"))
}

func TestClaimTwiceFailsAlreadyClaimed(t *testing.T) {
	svc, donations, _ := setup(t)
	ctx := context.Background()
	seeded := seedGuest(t, donations, "cs_1", "clm_p1", "a@b.com")

	_, err := svc.Claim(ctx, alice, domain.Request{ClaimToken: "clm_p1"})
	require.NoError(t, err)

	_, err = svc.Claim(ctx, bob, domain.Request{ClaimToken: "clm_p1"})
	assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)
	_, err = svc.Claim(ctx, bob, domain.Request{TransactionID: seeded.ID.String()})
	assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)

	d, err := donations.GetByID(ctx, seeded.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "user-alice", *d.UserID)
}

func TestClaimByTransactionID(t *testing.T) {
	svc, donations, _ := setup(t)
	created, err := donations.CreatePending(context.Background(), donationdomain.Donation{
		DonorType:          donationdomain.DonorTypeAnonymous,
		ExternalPaymentRef: "cs_anon",
		Amount:             decimal.NewFromInt(5),
		Currency:           "USD",
		Frequency:          donationdomain.FrequencyOneTime,
		ClaimToken:         donationdomain.StringPtr("clm_anon"),
	})
	require.NoError(t, err)

	// An email is only checked against guest donations.
	res, err := svc.Claim(context.Background(), bob, domain.Request{TransactionID: created.ID.String(), Email: "other@x.com"})
	require.NoError(t, err)
	assert.Equal(t, created.ID.String(), res.Donation.ID)
}

func TestClaimPreconditions(t *testing.T) {
	svc, donations, _ := setup(t)
	ctx := context.Background()
	seedGuest(t, donations, "cs_g", "clm_g", "a@b.com")
	registered, err := donations.CreatePending(ctx, donationdomain.Donation{
		DonorType:          donationdomain.DonorTypeRegistered,
		UserID:             donationdomain.StringPtr("user-zed"),
		ExternalPaymentRef: "cs_reg",
		Amount:             decimal.NewFromInt(5),
		Currency:           "USD",
		Frequency:          donationdomain.FrequencyOneTime,
	})
	require.NoError(t, err)

	tests := []struct {
		name string
		req  domain.Request
		want error
	}{
		{"neither identifier", domain.Request{}, domain.ErrIdentifierRequired},
		{"both identifiers", domain.Request{TransactionID: "1", ClaimToken: "clm_g"}, domain.ErrIdentifierRequired},
		{"unknown token", domain.Request{ClaimToken: "clm_missing"}, donationdomain.ErrNotFound},
		{"malformed transaction id", domain.Request{TransactionID: "abc"}, donationdomain.ErrNotFound},
		{"registered row", domain.Request{TransactionID: registered.ID.String()}, domain.ErrAlreadyLinked},
		{"email mismatch", domain.Request{ClaimToken: "clm_g", Email: "x@y.com"}, domain.ErrEmailMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Claim(ctx, alice, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	d, err := donations.GetByClaimToken(ctx, "clm_g")
	require.NoError(t, err)
	assert.False(t, d.IsClaimed)
	assert.Equal(t, donationdomain.DonorTypeGuest, d.DonorType)
}

func TestClaimRequiresCaller(t *testing.T) {
	svc, donations, _ := setup(t)
	seedGuest(t, donations, "cs_1", "clm_x", "a@b.com")

	_, err := svc.Claim(context.Background(), identity.Identity{}, domain.Request{ClaimToken: "clm_x"})
	assert.ErrorIs(t, err, identity.ErrInvalidToken)
}
