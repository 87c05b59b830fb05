package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	checkoutdomain "github.com/smallbiznis/charitydesk/internal/checkout/domain"
	claimdomain "github.com/smallbiznis/charitydesk/internal/claim/domain"
	donationdomain "github.com/smallbiznis/charitydesk/internal/donation/domain"
	"github.com/smallbiznis/charitydesk/internal/identity"
	"github.com/smallbiznis/charitydesk/pkg/db/pagination"
)

type donationView struct {
	ID          string          `json:"id"`
	Status      string          `json:"status"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	IsRecurring bool            `json:"is_recurring"`
	Frequency   string          `json:"frequency"`
	Campaign    string          `json:"campaign,omitempty"`
	Date        time.Time       `json:"date"`
	Claimable   bool            `json:"claimable"`
	ReceiptURL  *string         `json:"receipt_url,omitempty"`
}

func newDonationView(d donationdomain.Donation) donationView {
	return donationView{
		ID:          d.ID.String(),
		Status:      string(d.Status),
		Amount:      d.Amount,
		Currency:    d.Currency,
		IsRecurring: d.IsRecurring,
		Frequency:   string(d.Frequency),
		Campaign:    d.Campaign(),
		Date:        d.CreatedAt,
		Claimable:   d.Claimable(),
		ReceiptURL:  d.ReceiptURL,
	}
}

func (s *Server) CreateCheckout(c *gin.Context) {
	var req checkoutdomain.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	caller := identity.Resolve(ctx, s.identity, c.GetHeader("Authorization"))

	res, err := s.checkoutSvc.Initiate(ctx, req, caller)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) ClaimDonation(c *gin.Context) {
	caller, ok := callerIdentity(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req claimdomain.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	res, err := s.claimSvc.Claim(c.Request.Context(), caller, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GetDonationBySession backs the checkout success page. It never exposes the claim token.
func (s *Server) GetDonationBySession(c *gin.Context) {
	sessionID := strings.TrimSpace(c.Param("session_id"))
	if sessionID == "" {
		AbortWithError(c, ErrNotFound)
		return
	}

	d, err := s.donationSvc.GetByPaymentRef(c.Request.Context(), sessionID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, newDonationView(*d))
}

func (s *Server) ListMyDonations(c *gin.Context) {
	caller, ok := callerIdentity(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	res, err := s.donationSvc.ListByUser(c.Request.Context(), donationdomain.ListDonationsRequest{
		UserID:    caller.UserID,
		PageToken: page.PageToken,
		PageSize:  page.PageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	views := make([]donationView, 0, len(res.Donations))
	for _, d := range res.Donations {
		views = append(views, newDonationView(d))
	}
	c.JSON(http.StatusOK, gin.H{
		"donations":       views,
		"next_page_token": res.NextPageToken,
		"has_more":        res.HasMore,
	})
}
