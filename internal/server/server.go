package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/smallbiznis/loyara/internal/config"
	"github.com/smallbiznis/loyara/internal/ledger"
	ledgerdomain "github.com/smallbiznis/loyara/internal/ledger/domain"
	"github.com/smallbiznis/loyara/internal/merchant"
	merchantdomain "github.com/smallbiznis/loyara/internal/merchant/domain"
	"github.com/smallbiznis/loyara/internal/observability"
	obsmiddleware "github.com/smallbiznis/loyara/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/loyara/internal/observability/metrics"
	obstracing "github.com/smallbiznis/loyara/internal/observability/tracing"
	"github.com/smallbiznis/loyara/internal/ratelimit"
	"github.com/smallbiznis/loyara/internal/rule"
	ruledomain "github.com/smallbiznis/loyara/internal/rule/domain"
	"github.com/smallbiznis/loyara/internal/user"
	userdomain "github.com/smallbiznis/loyara/internal/user/domain"
	"github.com/smallbiznis/loyara/internal/wallet"
	walletdomain "github.com/smallbiznis/loyara/internal/wallet/domain"
)

// Module wires the full HTTP surface: member API plus admin API. The split
// apps under apps/ compose APIModule or AdminModule instead.
var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	merchant.Module,
	rule.Module,
	user.Module,
	wallet.Module,
	ledger.Module,
	ratelimit.Module,
	fx.Provide(NewServer),
	fx.Invoke(registerAllRoutes),
	fx.Invoke(run),
)

var APIModule = fx.Module("http.api",
	fx.Provide(registerGin),
	merchant.Module,
	rule.Module,
	user.Module,
	wallet.Module,
	ledger.Module,
	ratelimit.Module,
	fx.Provide(NewServer),
	fx.Invoke(registerAPIRoutes),
	fx.Invoke(run),
)

var AdminModule = fx.Module("http.admin",
	fx.Provide(registerGin),
	merchant.Module,
	rule.Module,
	user.Module,
	wallet.Module,
	ledger.Module,
	ratelimit.Module,
	fx.Provide(NewServer),
	fx.Invoke(registerAdminRoutes),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine      *gin.Engine
	cfg         config.Config
	db          *gorm.DB
	genID       *snowflake.Node
	userSvc     userdomain.Service
	walletSvc   walletdomain.Service
	merchantSvc merchantdomain.Service
	ruleSvc     ruledomain.Service
	ledgerSvc   ledgerdomain.Service
	earnLimiter *ratelimit.EarnLimiter
	obsMetrics  *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	DB          *gorm.DB
	GenID       *snowflake.Node
	UserSvc     userdomain.Service
	WalletSvc   walletdomain.Service
	MerchantSvc merchantdomain.Service
	RuleSvc     ruledomain.Service
	LedgerSvc   ledgerdomain.Service
	EarnLimiter *ratelimit.EarnLimiter `optional:"true"`
	ObsMetrics  *obsmetrics.Metrics    `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		db:          p.DB,
		genID:       p.GenID,
		userSvc:     p.UserSvc,
		walletSvc:   p.WalletSvc,
		merchantSvc: p.MerchantSvc,
		ruleSvc:     p.RuleSvc,
		ledgerSvc:   p.LedgerSvc,
		earnLimiter: p.EarnLimiter,
		obsMetrics:  p.ObsMetrics,
	}
}

func registerAllRoutes(s *Server) {
	s.RegisterAPIRoutes()
	s.RegisterAdminRoutes()
}

func registerAPIRoutes(s *Server) {
	s.RegisterAPIRoutes()
}

func registerAdminRoutes(s *Server) {
	s.RegisterAdminRoutes()
}

// RegisterAPIRoutes mounts the member-facing surface.
func (s *Server) RegisterAPIRoutes() {
	v1 := s.engine.Group("/v1")

	v1.POST("/users", s.RegisterUser)
	v1.GET("/users/:id", s.GetUser)

	v1.GET("/wallets/:userId", s.GetWallet)
	v1.GET("/wallets/:userId/batches", s.GetWalletBatches)

	points := v1.Group("/points")
	points.POST("/earn", s.EarnRateLimit(), s.EarnPoints)
	points.POST("/burn", s.BurnPoints)

	v1.GET("/users/:id/transactions", s.ListTransactions)
	v1.GET("/transactions/:id", s.GetTransaction)
}

// RegisterAdminRoutes mounts the operator surface.
func (s *Server) RegisterAdminRoutes() {
	admin := s.engine.Group("/admin/v1")

	admin.POST("/merchants", s.CreateMerchant)
	admin.GET("/merchants", s.ListMerchants)
	admin.GET("/merchants/:id", s.GetMerchant)
	admin.PATCH("/merchants/:id", s.UpdateMerchant)
	admin.DELETE("/merchants/:id", s.DeactivateMerchant)

	admin.POST("/rules", s.CreateRule)
	admin.GET("/rules", s.ListRules)
	admin.GET("/rules/:id", s.GetRule)
	admin.DELETE("/rules/:id", s.DeactivateRule)

	admin.POST("/transactions/:id/reverse", s.ReverseTransaction)
}
