package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/watchkeep/watchkeep/internal/config"
	ledgerdomain "github.com/watchkeep/watchkeep/internal/ledger/domain"
	"github.com/watchkeep/watchkeep/internal/manager"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(cfg config.Config) *gin.Engine {
	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if cfg.MetricsEnabled {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	return r
}

func registerGin(cfg config.Config) *gin.Engine {
	return NewEngine(cfg)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

// Server registers the HTTP routes over the facade and the ledger. It is a
// thin adapter; all rules live in the services behind it.
type Server struct {
	engine    *gin.Engine
	cfg       config.Config
	mgr       *manager.Manager
	ledgerSvc ledgerdomain.Service
}

type ServerParams struct {
	fx.In

	Gin       *gin.Engine
	Cfg       config.Config
	Mgr       *manager.Manager
	LedgerSvc ledgerdomain.Service
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:    p.Gin,
		cfg:       p.Cfg,
		mgr:       p.Mgr,
		ledgerSvc: p.LedgerSvc,
	}

	v1 := s.engine.Group("/v1")
	{
		v1.POST("/alerts", s.createAlert)
		v1.GET("/alerts", s.listAlerts)
		v1.GET("/alerts/stats", s.alertStats)
		v1.POST("/alerts/:id/status", s.updateAlertStatus)
		v1.POST("/metrics", s.recordMetric)

		v1.POST("/users", s.createUserProfile)
		v1.POST("/revenue", s.recordRevenue)
		v1.GET("/referrals/:user_id", s.referralStats)
		v1.GET("/founding/stats", s.foundingStats)
		v1.POST("/attributions/:event_id/paid", s.markAttributionPaid)
	}

	return s
}
