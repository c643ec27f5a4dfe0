package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/listcrawl/cleaner"
	"github.com/use-agent/listcrawl/config"
	"github.com/use-agent/listcrawl/crawl"
	"github.com/use-agent/listcrawl/export"
	"github.com/use-agent/listcrawl/fetcher"
	"github.com/use-agent/listcrawl/jobs"
	"github.com/use-agent/listcrawl/models"
	"github.com/use-agent/listcrawl/webhook"
)

// CrawlService holds what every crawl job shares.
type CrawlService struct {
	Dispatcher fetcher.Dispatcher
	Cleaner    *cleaner.Cleaner
	Extractor  crawl.ExtractionEngine
	Config     *config.Config
	Jobs       *jobs.Store
	Webhooks   *webhook.Sender

	// Ctx bounds running jobs; cancel it on shutdown.
	Ctx context.Context
}

// PostCrawl returns a handler for POST /api/v1/crawl.
//
// The target is validated synchronously; the crawl itself runs in the
// background and is polled through GetCrawl.
func PostCrawl(svc *CrawlService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.CrawlRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.CrawlResponse{
				Status: models.StatusFailed,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: fmt.Sprintf("invalid request: %v", err),
				},
			})
			return
		}

		cfg := jobConfig(svc.Config, &req)
		if err := validateTarget(&cfg.Crawl); err != nil {
			c.JSON(http.StatusBadRequest, models.CrawlResponse{
				Status: models.StatusFailed,
				Error:  &models.ErrorDetail{Code: models.ErrCodeInvalidInput, Message: err.Error()},
			})
			return
		}

		job, err := svc.Jobs.Create(cfg.Crawl.BaseURL, cfg.Crawl.IdentityField)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, models.CrawlResponse{
				Status: models.StatusFailed,
				Error:  &models.ErrorDetail{Code: models.ErrCodeRateLimited, Message: "too many crawl jobs in flight"},
			})
			return
		}
		job.WebhookURL = req.WebhookURL
		job.WebhookSecret = req.WebhookSecret
		if job.WebhookSecret == "" {
			job.WebhookSecret = svc.Config.Webhook.Secret
		}

		go svc.run(job, cfg)

		c.JSON(http.StatusAccepted, models.CrawlResponse{
			ID:     job.ID(),
			Status: models.StatusQueued,
		})
	}
}

// GetCrawl returns a handler for GET /api/v1/crawl/:id.
// Records are included with ?results=true.
func GetCrawl(store *jobs.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, ok := store.Get(c.Param("id"))
		if !ok {
			notFound(c)
			return
		}
		c.JSON(http.StatusOK, job.Snapshot(c.Query("results") == "true"))
	}
}

// ExportCrawl returns a handler for GET /api/v1/crawl/:id/export.
// ?format=csv (default) or json. The job must have finished.
func ExportCrawl(store *jobs.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, ok := store.Get(c.Param("id"))
		if !ok {
			notFound(c)
			return
		}
		if !job.Done() {
			c.JSON(http.StatusConflict, models.ErrorResponse{Error: &models.ErrorDetail{
				Code:    models.ErrCodeInvalidInput,
				Message: "crawl job has not finished",
			}})
			return
		}

		format := c.DefaultQuery("format", export.FormatCSV)
		var contentType string
		switch format {
		case export.FormatCSV:
			contentType = "text/csv; charset=utf-8"
		case export.FormatJSON:
			contentType = "application/json; charset=utf-8"
		default:
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: &models.ErrorDetail{
				Code:    models.ErrCodeInvalidInput,
				Message: fmt.Sprintf("unsupported export format %q", format),
			}})
			return
		}

		c.Header("Content-Type", contentType)
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.%s"`, job.ID(), format))
		c.Status(http.StatusOK)
		if err := export.Write(c.Writer, format, export.BuildTable(job.Records(), job.IdentityField())); err != nil {
			slog.Error("export failed", "job_id", job.ID(), "error", err)
		}
	}
}

func notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, models.ErrorResponse{Error: &models.ErrorDetail{
		Code:    models.ErrCodeNotFound,
		Message: "crawl job not found",
	}})
}

// jobConfig overlays the request on a copy of the server configuration.
func jobConfig(base *config.Config, req *models.CrawlRequest) *config.Config {
	cfg := *base
	cfg.ApplyTarget(&config.TargetFile{
		BaseURL:         req.BaseURL,
		PageParam:       req.PageParam,
		Selector:        req.Selector,
		RequiredKeys:    req.RequiredKeys,
		IdentityField:   req.IdentityField,
		Instruction:     req.Instruction,
		Schema:          req.Schema,
		NoResultsMarker: req.NoResultsMarker,
		MaxPages:        req.MaxPages,
		MaxEmptyPages:   req.MaxEmptyPages,
		StartPage:       req.StartPage,
		ExtractMode:     req.ExtractMode,
		InputFormat:     req.InputFormat,
		WaitFor:         req.WaitFor,
		Actions:         req.Actions,
	})
	return &cfg
}

// maxJobPages caps a single API crawl job.
const maxJobPages = 500

func validateTarget(cc *config.CrawlConfig) error {
	if err := cc.Target().Validate(); err != nil {
		return err
	}
	if err := cleaner.ValidateSelector(cc.Selector); err != nil {
		return err
	}
	// Background jobs have no operator to interrupt them, so both bounds
	// must be set even where the CLI allows an unbounded run.
	if cc.MaxPages < 1 || cc.MaxPages > maxJobPages {
		return fmt.Errorf("max_pages must be between 1 and %d, got %d", maxJobPages, cc.MaxPages)
	}
	if cc.MaxEmptyPages < 1 {
		return fmt.Errorf("max_empty_pages must be at least 1, got %d", cc.MaxEmptyPages)
	}
	return nil
}

// run executes one job once a slot is free.
func (svc *CrawlService) run(job *jobs.Job, cfg *config.Config) {
	ctx := svc.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	logger := slog.Default().With("job_id", job.ID())

	if err := svc.Jobs.Acquire(ctx); err != nil {
		job.Finish(nil, err)
		svc.notify(job, webhook.EventFailed, job.Snapshot(false))
		return
	}
	defer svc.Jobs.Release()

	job.Start()
	logger.Info("crawl job started", "base_url", cfg.Crawl.BaseURL)

	f := fetcher.New(svc.Dispatcher, svc.Cleaner, svc.Extractor, fetcher.OptionsFrom(cfg))
	defer f.CloseSession(job.SessionID())

	crawler := crawl.NewCrawler(f, cfg.Crawl.Target(), cfg.Crawl.Limits(),
		crawl.WithSessionID(job.SessionID()),
		crawl.WithLogger(logger),
		crawl.WithPageObserver(func(out crawl.PageOutcome) {
			job.RecordPage(out)
			ev := models.PageEvent{
				Page:       out.Page,
				URL:        out.URL,
				Records:    len(out.Records),
				Candidates: out.Candidates,
				Terminal:   out.Terminal,
				Usage:      out.Usage,
			}
			if out.Err != nil {
				ev.Error = out.Err.Error()
			}
			svc.notify(job, webhook.EventPage, ev)
		}),
	)

	res, err := crawler.Run(ctx)
	job.Finish(res, err)

	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("crawl job canceled")
		} else {
			logger.Error("crawl job failed", "error", err)
		}
		svc.notify(job, webhook.EventFailed, job.Snapshot(false))
		return
	}
	logger.Info("crawl job finished", "records", len(res.Records), "stop_reason", res.StopReason)
	svc.notify(job, webhook.EventCompleted, job.Snapshot(false))
}

func (svc *CrawlService) notify(job *jobs.Job, event string, data any) {
	if job.WebhookURL == "" || svc.Webhooks == nil {
		return
	}
	svc.Webhooks.DeliverAsync(job.WebhookURL, job.WebhookSecret, webhook.NewEvent(event, job.ID(), data), nil)
}
