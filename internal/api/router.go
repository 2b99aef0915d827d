package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/dfs-sim/showdown/internal/api/handlers"
	"github.com/stitts-dev/dfs-sim/showdown/internal/api/middleware"
	"github.com/stitts-dev/dfs-sim/showdown/internal/export"
	"github.com/stitts-dev/dfs-sim/showdown/internal/session"
	"github.com/stitts-dev/dfs-sim/showdown/internal/store"
	"github.com/stitts-dev/dfs-sim/showdown/internal/strategy"
	"github.com/stitts-dev/dfs-sim/showdown/pkg/metrics"
)

// Settings are the HTTP-facing knobs from configuration.
type Settings struct {
	CorsOrigins       []string
	GenerationTimeout time.Duration
	RateLimitRPS      float64
	RateLimitBurst    int
}

// Dependencies wire the router to the services behind it.
type Dependencies struct {
	Sessions *session.Manager
	Registry *strategy.Registry
	Store    store.LineupStore
	Exporter *export.Exporter
	Metrics  *metrics.Manager
	Logger   *logrus.Logger
	Settings Settings
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(deps Dependencies) *gin.Engine {
	if deps.Exporter == nil {
		deps.Exporter = export.NewExporter()
	}

	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestLogger(deps.Logger, deps.Metrics),
		middleware.CORS(deps.Settings.CorsOrigins),
	)

	optimizerHandler := handlers.NewOptimizerHandler(deps.Sessions, deps.Registry, deps.Logger)
	progressHandler := handlers.NewProgressHandler(deps.Sessions, middleware.OriginAllowed(deps.Settings.CorsOrigins), deps.Logger)
	lineupHandler := handlers.NewLineupHandler(deps.Sessions, deps.Registry, deps.Store, deps.Settings.GenerationTimeout, deps.Logger)
	exportHandler := handlers.NewExportHandler(deps.Sessions, deps.Store, deps.Exporter, deps.Logger)
	healthHandler := handlers.NewHealthHandler(deps.Sessions, deps.Store, deps.Logger)
	limiter := middleware.NewRateLimiter(deps.Settings.RateLimitRPS, deps.Settings.RateLimitBurst)

	opt := router.Group("/optimizer")
	{
		opt.POST("/initialize", optimizerHandler.Initialize)
		opt.GET("/strategies", optimizerHandler.GetStrategies)
		opt.GET("/progress/:session_id", progressHandler.StreamProgress)
		opt.GET("/progress/:session_id/ws", progressHandler.ProgressWebSocket)
		opt.GET("/sessions/:session_id", optimizerHandler.GetSession)
		opt.DELETE("/sessions/:session_id", optimizerHandler.CloseSession)
		opt.PUT("/sessions/:session_id/formula", optimizerHandler.SetFormula)
	}

	lineups := router.Group("/lineups")
	{
		lineups.POST("/generate-hybrid", limiter.Middleware(), lineupHandler.GenerateHybrid)
		lineups.POST("/export", exportHandler.ExportLineups)
		lineups.GET("/export/formats", exportHandler.GetFormats)
	}

	router.GET("/health", healthHandler.GetHealth)
	router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))

	return router
}
