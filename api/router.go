package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/listcrawl/api/handler"
	"github.com/use-agent/listcrawl/api/middleware"
	"github.com/use-agent/listcrawl/models"
)

// Options carries the router's collaborators.
type Options struct {
	Service *handler.CrawlService

	// Engines lists the configured fetch engines for the health report.
	Engines []string

	// Sessions reports browser session usage; nil without a browser.
	Sessions func() models.SessionStats

	StartTime time.Time
}

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health stays outside auth so monitoring probes always work.
func NewRouter(opts Options) *gin.Engine {
	cfg := opts.Service.Config
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.Server.Mode != gin.TestMode {
		r.Use(gin.Logger())
	}

	v1 := r.Group("/api/v1")

	v1.GET("/health", handler.Health(opts.Engines, opts.Sessions, opts.Service.Jobs, opts.StartTime))

	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	protected.POST("/crawl", handler.PostCrawl(opts.Service))
	protected.GET("/crawl/:id", handler.GetCrawl(opts.Service.Jobs))
	protected.GET("/crawl/:id/export", handler.ExportCrawl(opts.Service.Jobs))

	return r
}
