package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	ledgerdomain "github.com/watchkeep/watchkeep/internal/ledger/domain"
)

type createUserRequest struct {
	UserID         string         `json:"user_id" binding:"required"`
	Email          string         `json:"email" binding:"required"`
	Tier           string         `json:"tier,omitempty"`
	ReferredByCode string         `json:"referred_by,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

func (s *Server) createUserProfile(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ledgerdomain.ErrValidation)
		return
	}

	profile, err := s.ledgerSvc.CreateUserProfile(c.Request.Context(), ledgerdomain.CreateProfileRequest{
		UserID:         req.UserID,
		Email:          req.Email,
		Tier:           ledgerdomain.Tier(req.Tier),
		ReferredByCode: req.ReferredByCode,
		Metadata:       req.Metadata,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, profile)
}

type recordRevenueRequest struct {
	UserID    string         `json:"user_id" binding:"required"`
	EventType string         `json:"event_type" binding:"required"`
	Amount    string         `json:"amount" binding:"required"`
	Currency  string         `json:"currency" binding:"required"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (s *Server) recordRevenue(c *gin.Context) {
	var req recordRevenueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ledgerdomain.ErrValidation)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		AbortWithError(c, ledgerdomain.ErrInvalidAmount)
		return
	}

	eventID, err := s.ledgerSvc.RecordRevenueEvent(c.Request.Context(), ledgerdomain.RecordRevenueRequest{
		UserID:    req.UserID,
		EventType: ledgerdomain.EventType(req.EventType),
		Amount:    amount,
		Currency:  req.Currency,
		Metadata:  req.Metadata,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"event_id": eventID})
}

func (s *Server) referralStats(c *gin.Context) {
	stats, err := s.ledgerSvc.ReferralStats(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) foundingStats(c *gin.Context) {
	stats, err := s.ledgerSvc.FoundingStats(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) markAttributionPaid(c *gin.Context) {
	ok, err := s.ledgerSvc.MarkAttributionPaid(c.Request.Context(), c.Param("event_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !ok {
		AbortWithError(c, ledgerdomain.ErrAttributionNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"paid": true})
}
