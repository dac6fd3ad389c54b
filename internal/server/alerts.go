package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	alertdomain "github.com/watchkeep/watchkeep/internal/alert/domain"
)

type createAlertRequest struct {
	Type     string         `json:"type" binding:"required"`
	Severity string         `json:"severity" binding:"required"`
	Source   string         `json:"source" binding:"required"`
	Title    string         `json:"title" binding:"required"`
	Message  string         `json:"message" binding:"required"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (s *Server) createAlert(c *gin.Context) {
	var req createAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, alertdomain.ErrValidation)
		return
	}

	id, err := s.mgr.CreateAlert(c.Request.Context(), alertdomain.CreateAlertRequest{
		Type:     alertdomain.AlertType(req.Type),
		Severity: alertdomain.Severity(req.Severity),
		Source:   req.Source,
		Title:    req.Title,
		Message:  req.Message,
		Metadata: req.Metadata,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id.String()})
}

func (s *Server) listAlerts(c *gin.Context) {
	req := alertdomain.QueryRequest{
		Status:   alertdomain.Status(c.Query("status")),
		Type:     alertdomain.AlertType(c.Query("type")),
		Severity: alertdomain.Severity(c.Query("severity")),
		Source:   c.Query("source"),
	}
	if raw := c.Query("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			AbortWithError(c, alertdomain.ErrValidation)
			return
		}
		req.Since = &since
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			AbortWithError(c, alertdomain.ErrValidation)
			return
		}
		req.Limit = limit
	}
	if raw := c.Query("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil {
			AbortWithError(c, alertdomain.ErrValidation)
			return
		}
		req.Offset = offset
	}

	alerts, err := s.mgr.Query(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}

func (s *Server) alertStats(c *gin.Context) {
	stats, err := s.mgr.Stats(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

type updateStatusRequest struct {
	Status  string `json:"status" binding:"required"`
	Comment string `json:"comment,omitempty"`
}

func (s *Server) updateAlertStatus(c *gin.Context) {
	raw, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		AbortWithError(c, alertdomain.ErrValidation)
		return
	}

	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, alertdomain.ErrValidation)
		return
	}

	found, err := s.mgr.UpdateStatus(c.Request.Context(), snowflake.ID(raw), alertdomain.Status(req.Status), req.Comment)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, errorResponse{Error: errorPayload{Type: "not_found", Message: "alert not found"}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": true})
}

type recordMetricRequest struct {
	MetricType string  `json:"metric_type" binding:"required"`
	Value      float64 `json:"value"`
	Unit       string  `json:"unit,omitempty"`
	Source     string  `json:"source" binding:"required"`
}

func (s *Server) recordMetric(c *gin.Context) {
	var req recordMetricRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, alertdomain.ErrValidation)
		return
	}

	if err := s.mgr.RecordMetric(c.Request.Context(), req.MetricType, req.Value, req.Unit, req.Source); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"recorded": true})
}
