package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	alertdomain "github.com/watchkeep/watchkeep/internal/alert/domain"
	alertrepo "github.com/watchkeep/watchkeep/internal/alert/repository"
	alertservice "github.com/watchkeep/watchkeep/internal/alert/service"
	"github.com/watchkeep/watchkeep/internal/clock"
	"github.com/watchkeep/watchkeep/internal/config"
	ledgerdomain "github.com/watchkeep/watchkeep/internal/ledger/domain"
	ledgerservice "github.com/watchkeep/watchkeep/internal/ledger/service"
	"github.com/watchkeep/watchkeep/internal/manager"
	"github.com/watchkeep/watchkeep/internal/security"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestServer(t *testing.T, limiterMax int) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(
		&alertdomain.Alert{},
		&alertdomain.AlertAction{},
		&alertdomain.ThresholdRule{},
		&alertdomain.MetricSample{},
		&ledgerdomain.UserProfile{},
		&ledgerdomain.RevenueEvent{},
		&ledgerdomain.ReferralAttribution{},
	))

	node, err := snowflake.NewNode(4)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC))
	cipher, err := security.NewCipher("server-test-secret")
	require.NoError(t, err)

	alertSvc := alertservice.NewService(alertservice.Params{
		DB:      gdb,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   clk,
		Repo:    alertrepo.Provide(),
		Limiter: security.NewRateLimiter(clk, limiterMax, time.Minute),
	})
	ledgerSvc := ledgerservice.NewService(ledgerservice.Params{
		DB:       gdb,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clk,
		Cipher:   cipher,
		AlertSvc: alertSvc,
	})
	mgr := manager.New(manager.Params{
		Log:      zap.NewNop(),
		Clock:    clk,
		AlertSvc: alertSvc,
	})

	cfg := config.Config{Environment: "development", HTTPAddr: ":0"}
	engine := NewEngine(cfg)
	NewServer(ServerParams{Gin: engine, Cfg: cfg, Mgr: mgr, LedgerSvc: ledgerSvc})
	return engine
}

func doJSON(t *testing.T, engine *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestCreateAndListAlerts(t *testing.T) {
	engine := newTestServer(t, 100)

	w := doJSON(t, engine, http.MethodPost, "/v1/alerts", gin.H{
		"type":     "security",
		"severity": "critical",
		"source":   "doctor",
		"title":    "Suspicious login",
		"message":  "Repeated failures from 10.0.0.5",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)

	w = doJSON(t, engine, http.MethodGet, "/v1/alerts?severity=critical", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listed struct {
		Alerts []alertdomain.Alert `json:"alerts"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Len(t, listed.Alerts, 1)
	assert.Equal(t, "Suspicious login", listed.Alerts[0].Title)

	w = doJSON(t, engine, http.MethodGet, "/v1/alerts/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestCreateAlertRejectsBadPayload(t *testing.T) {
	engine := newTestServer(t, 100)

	w := doJSON(t, engine, http.MethodPost, "/v1/alerts", gin.H{
		"type": "security",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, engine, http.MethodPost, "/v1/alerts", gin.H{
		"type":     "weather",
		"severity": "critical",
		"source":   "doctor",
		"title":    "t",
		"message":  "m",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateAlertRateLimited(t *testing.T) {
	engine := newTestServer(t, 1)

	body := gin.H{
		"type": "notification", "severity": "low",
		"source": "cron", "title": "t", "message": "m",
	}
	w := doJSON(t, engine, http.MethodPost, "/v1/alerts", body)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, engine, http.MethodPost, "/v1/alerts", body)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestUpdateAlertStatus(t *testing.T) {
	engine := newTestServer(t, 100)

	w := doJSON(t, engine, http.MethodPost, "/v1/alerts", gin.H{
		"type": "audit", "severity": "normal",
		"source": "cli", "title": "t", "message": "m",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = doJSON(t, engine, http.MethodPost, "/v1/alerts/"+created.ID+"/status", gin.H{
		"status": "resolved", "comment": "done",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, engine, http.MethodPost, "/v1/alerts/999/status", gin.H{"status": "resolved"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, engine, http.MethodPost, "/v1/alerts/notanumber/status", gin.H{"status": "resolved"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecordMetricEndpoint(t *testing.T) {
	engine := newTestServer(t, 100)

	w := doJSON(t, engine, http.MethodPost, "/v1/metrics", gin.H{
		"metric_type": "cpu_percent", "value": 55.2, "unit": "percent", "source": "agent",
	})
	assert.Equal(t, http.StatusAccepted, w.Code)

	w = doJSON(t, engine, http.MethodPost, "/v1/metrics", gin.H{"value": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUserAndRevenueEndpoints(t *testing.T) {
	engine := newTestServer(t, 100)

	w := doJSON(t, engine, http.MethodPost, "/v1/users", gin.H{
		"user_id": "alice", "email": "alice@example.com", "tier": "pro",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var profile ledgerdomain.UserProfile
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &profile))
	assert.True(t, profile.FoundingMember)
	require.NotEmpty(t, profile.ReferralCode)

	// Duplicate user id conflicts.
	w = doJSON(t, engine, http.MethodPost, "/v1/users", gin.H{
		"user_id": "alice", "email": "else@example.com",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, engine, http.MethodPost, "/v1/users", gin.H{
		"user_id": "bob", "email": "bob@example.com", "referred_by": profile.ReferralCode,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, engine, http.MethodPost, "/v1/revenue", gin.H{
		"user_id": "bob", "event_type": "subscription", "amount": "29.99", "currency": "USD",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var rev struct {
		EventID string `json:"event_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rev))
	require.NotEmpty(t, rev.EventID)

	w = doJSON(t, engine, http.MethodGet, "/v1/referrals/alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats ledgerdomain.ReferralStatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, "3", stats.PendingBonusSum.String())

	w = doJSON(t, engine, http.MethodPost, "/v1/attributions/"+rev.EventID+"/paid", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = doJSON(t, engine, http.MethodPost, "/v1/attributions/"+rev.EventID+"/paid", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, engine, http.MethodGet, "/v1/founding/stats", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, engine, http.MethodPost, "/v1/revenue", gin.H{
		"user_id": "ghost", "event_type": "renewal", "amount": "10", "currency": "USD",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, engine, http.MethodGet, "/v1/referrals/ghost", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
