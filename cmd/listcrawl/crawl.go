package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/use-agent/listcrawl/config"
	"github.com/use-agent/listcrawl/crawl"
	"github.com/use-agent/listcrawl/export"
	"github.com/use-agent/listcrawl/fetcher"
)

func crawlCommand() *cli.Command {
	return &cli.Command{
		Name:  "crawl",
		Usage: "run one crawl and write the records to the output file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "base-url", Usage: "listing URL; the page parameter is added to it"},
			&cli.StringFlag{Name: "selector", Usage: "CSS selector for the record regions"},
			&cli.StringSliceFlag{Name: "required-keys", Usage: "fields every record must carry"},
			&cli.IntFlag{Name: "max-pages", Usage: "stop after this many pages (0 = unbounded)"},
			&cli.IntFlag{Name: "max-empty", Usage: "stop after this many record-less pages in a row (0 = unbounded)"},
			&cli.IntFlag{Name: "start-page", Usage: "first page number"},
			&cli.StringFlag{Name: "session-id", Usage: "fetch session id (default: generated)"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "output file (.csv, .json or .db)"},
		},
		Action: runCrawl,
	}
}

// applyCrawlFlags overlays explicitly set flags on cfg.
func applyCrawlFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet("base-url") {
		cfg.Crawl.BaseURL = c.String("base-url")
	}
	if c.IsSet("selector") {
		cfg.Crawl.Selector = c.String("selector")
	}
	if c.IsSet("required-keys") {
		cfg.Crawl.RequiredKeys = c.StringSlice("required-keys")
	}
	if c.IsSet("max-pages") {
		cfg.Crawl.MaxPages = c.Int("max-pages")
	}
	if c.IsSet("max-empty") {
		cfg.Crawl.MaxEmptyPages = c.Int("max-empty")
	}
	if c.IsSet("start-page") {
		cfg.Crawl.StartPage = c.Int("start-page")
	}
	if c.IsSet("session-id") {
		cfg.Crawl.SessionID = c.String("session-id")
	}
	if c.IsSet("output") {
		cfg.Export.Output = c.String("output")
	}
}

func runCrawl(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	applyCrawlFlags(c, cfg)

	if cfg.LLM.APIKey == "" {
		return errors.New("no LLM API key: set LISTCRAWL_LLM_API_KEY or GROQ_API_KEY")
	}
	target := cfg.Crawl.Target()
	if err := target.Validate(); err != nil {
		return err
	}

	st, err := newStack(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	f := fetcher.New(st.dispatcher, st.cleaner, st.extractor, fetcher.OptionsFrom(cfg))

	var opts []crawl.Option
	if cfg.Crawl.SessionID != "" {
		opts = append(opts, crawl.WithSessionID(cfg.Crawl.SessionID))
	}

	res, runErr := crawl.NewCrawler(f, target, cfg.Crawl.Limits(), opts...).Run(ctx)
	if res == nil {
		return runErr
	}
	f.CloseSession(res.SessionID)

	if len(res.Records) == 0 {
		slog.Warn("no records were found during the crawl", "pages", res.Pages, "stop_reason", res.StopReason)
		return runErr
	}

	// A canceled run still saves what it accepted.
	if err := export.Save(cfg.Export.Output, res.Records, cfg.Crawl.IdentityField); err != nil {
		return fmt.Errorf("save %s: %w", cfg.Export.Output, err)
	}
	slog.Info("saved records", "count", len(res.Records), "output", cfg.Export.Output)
	return runErr
}
